package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quillpost/server/internal/mail"
	"github.com/quillpost/server/internal/model"
	"github.com/quillpost/server/internal/repo"
)

// Service orchestrates registration, login and the email verification flow
type Service struct {
	users   repo.UserRepo
	codes   repo.CodeRepo
	tokens  *TokenIssuer
	mailer  mail.Sender
	codeTTL time.Duration
}

// NewService creates a new auth service
func NewService(
	users repo.UserRepo,
	codes repo.CodeRepo,
	tokens *TokenIssuer,
	mailer mail.Sender,
	codeTTL time.Duration,
) *Service {
	return &Service{
		users:   users,
		codes:   codes,
		tokens:  tokens,
		mailer:  mailer,
		codeTTL: codeTTL,
	}
}

// RegisterInput holds the fields required to create an account
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// LoginResult is the outcome of a successful login or verification.
// Either ChallengeSent is true (unverified account, code emailed) or the
// token pair is populated.
type LoginResult struct {
	User          model.User
	AccessToken   string
	RefreshToken  string
	ChallengeSent bool
}

const usernameSuffixCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randSuffix returns n random characters from the username charset.
func randSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = usernameSuffixCharset[int(buf[i])%len(usernameSuffixCharset)]
	}
	return string(buf), nil
}

// sanitizeEmail canonicalizes an email address for lookup and storage.
func sanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new unverified account. The username is generated
// from the first name plus a short random suffix.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}
	suffix, err := randSuffix(2)
	if err != nil {
		return model.User{}, fmt.Errorf("generate username: %w", err)
	}
	user := model.User{
		Email:        sanitizeEmail(in.Email),
		Username:     in.FirstName + "_" + suffix,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	created, err := s.users.Create(ctx, user)
	if err != nil {
		return model.User{}, err
	}
	return created, nil
}

// Login authenticates credentials. For a verified account it issues a
// session; for an unverified one it creates a verification code and emails
// it to the account address. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, sanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			burnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		if err := s.issueChallenge(ctx, user); err != nil {
			return nil, err
		}
		return &LoginResult{User: user, ChallengeSent: true}, nil
	}

	return s.issueSession(user)
}

// VerifyEmail validates a challenge response. On success the account is
// promoted to verified (idempotent) and a session is issued.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, sanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	vc, err := s.codes.FindLatestMatching(ctx, user.ID, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	if vc.Expired(time.Now()) {
		return nil, ErrCodeExpired
	}

	if err := s.codes.MarkConsumed(ctx, vc.ID); err != nil {
		return nil, err
	}
	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true

	return s.issueSession(user)
}

// Refresh mints a new access token from a valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrTokenInvalid
		}
		return "", err
	}
	accessToken, err := s.tokens.sign(user, TokenUseAccess, s.tokens.accessTTL)
	if err != nil {
		return "", err
	}
	return accessToken, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

func (s *Service) issueSession(user model.User) (*LoginResult, error) {
	accessToken, refreshToken, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *Service) issueChallenge(ctx context.Context, user model.User) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}
	vc, err := s.codes.Create(ctx, user.ID, code, time.Now().Add(s.codeTTL))
	if err != nil {
		return fmt.Errorf("create verification code: %w", err)
	}

	subject := "Your verification code"
	body := fmt.Sprintf(
		"Your verification code is %s. It expires in %d minutes.",
		vc.Code, int(s.codeTTL.Minutes()),
	)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	return nil
}
