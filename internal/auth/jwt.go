package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/quillpost/server/internal/model"
)

const (
	// TokenUseAccess marks short-lived tokens used to authenticate API calls.
	TokenUseAccess = "access"
	// TokenUseRefresh marks long-lived tokens whose only use is minting
	// replacement access tokens.
	TokenUseRefresh = "refresh"
)

// Claims represents the JWT token claims for both access and refresh tokens
type Claims struct {
	UserID   uuid.UUID `json:"sub"`
	Email    string    `json:"email,omitempty"`
	TokenUse string    `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates signed session tokens
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates a new token issuer. The secret is process-wide
// configuration loaded once at startup and never logged.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (i *TokenIssuer) sign(user model.User, use string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

// Issue mints an access/refresh token pair for the user.
func (i *TokenIssuer) Issue(user model.User) (accessToken, refreshToken string, err error) {
	accessToken, err = i.sign(user, TokenUseAccess, i.accessTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = i.sign(user, TokenUseRefresh, i.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// validate parses the token and checks its signature, expiry and token_use.
// The returned error is one of the ErrToken* kinds so callers can log the
// specific failure while responding uniformly.
func (i *TokenIssuer) validate(tokenString, use string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenUse != use {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateAccess verifies an access token and returns its claims.
func (i *TokenIssuer) ValidateAccess(tokenString string) (*Claims, error) {
	return i.validate(tokenString, TokenUseAccess)
}

// ValidateRefresh verifies a refresh token and returns its claims.
func (i *TokenIssuer) ValidateRefresh(tokenString string) (*Claims, error) {
	return i.validate(tokenString, TokenUseRefresh)
}

// AccessTTL returns the access token lifetime (used for cookie expiry).
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.accessTTL
}
