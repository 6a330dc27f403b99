package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// the two are never distinguishable to a caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by VerifyEmail for an unknown email.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCode means no outstanding code matches the supplied value.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrCodeExpired means the matching code is past its TTL.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrDeliveryFailure means the verification email could not be sent.
	ErrDeliveryFailure = errors.New("verification email delivery failed")

	// Token validation failure kinds. Callers may log which kind occurred
	// but must collapse all of them to a uniform unauthenticated response.
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenInvalid   = errors.New("token invalid")
)
