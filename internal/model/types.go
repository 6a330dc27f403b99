package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	IsVerified   bool
	DateOfBirth  *time.Time
	Bio          *string
	District     *string
	City         *string
	PhotoURL     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VerificationCode represents a one-time email verification code
type VerificationCode struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Code       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the code is past its expiry at the given time.
func (c VerificationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Consumed reports whether the code has already been used.
func (c VerificationCode) Consumed() bool {
	return c.ConsumedAt != nil
}
