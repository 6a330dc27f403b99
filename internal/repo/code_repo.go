package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillpost/server/internal/model"
)

// CodeRepo defines the interface for verification code repository operations
type CodeRepo interface {
	Create(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) (model.VerificationCode, error)
	FindLatestMatching(ctx context.Context, userID uuid.UUID, code string) (model.VerificationCode, error)
	MarkConsumed(ctx context.Context, id uuid.UUID) error
}

type codeRepo struct {
	db *sql.DB
}

// NewCodeRepo creates a new CodeRepo instance
func NewCodeRepo(db *sql.DB) CodeRepo {
	return &codeRepo{db: db}
}

// Create supersedes any outstanding unconsumed codes for the user and
// inserts a fresh one. Code values are not deduplicated; a collision with
// a prior code for the same user is tolerated.
func (r *codeRepo) Create(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) (model.VerificationCode, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Consume ALL outstanding codes for the user, including expired ones,
	// so only the newest code is ever accepted.
	_, err = tx.ExecContext(ctx, `
		UPDATE verification_codes
		SET consumed_at = now()
		WHERE user_id = $1 AND consumed_at IS NULL
	`, userID.String())
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("supersede existing codes: %w", err)
	}

	var vc model.VerificationCode
	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO verification_codes (user_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, expires_at
	`, userID.String(), code, expiresAt).Scan(&idStr, &vc.CreatedAt, &vc.ExpiresAt)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("insert code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.VerificationCode{}, fmt.Errorf("commit: %w", err)
	}

	vc.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("parse code ID: %w", err)
	}
	vc.UserID = userID
	vc.Code = code
	return vc, nil
}

// FindLatestMatching returns the most recently created unconsumed code for
// the user whose value equals the supplied code. Expiry is NOT filtered
// here; the caller decides what an expired match means.
func (r *codeRepo) FindLatestMatching(ctx context.Context, userID uuid.UUID, code string) (model.VerificationCode, error) {
	query := `
		SELECT id, user_id, code, created_at, expires_at, consumed_at
		FROM verification_codes
		WHERE user_id = $1 AND code = $2 AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	var vc model.VerificationCode
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, query, userID.String(), code).Scan(
		&idStr,
		&userIDStr,
		&vc.Code,
		&vc.CreatedAt,
		&vc.ExpiresAt,
		&vc.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.VerificationCode{}, ErrNotFound
		}
		return model.VerificationCode{}, fmt.Errorf("query code: %w", err)
	}
	vc.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("parse code ID: %w", err)
	}
	vc.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("parse user ID: %w", err)
	}
	return vc, nil
}

// MarkConsumed sets consumed_at = now() for the code.
func (r *codeRepo) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes SET consumed_at = now() WHERE id = $1
	`, id.String())
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
