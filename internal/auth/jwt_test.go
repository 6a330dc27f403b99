package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/server/internal/model"
)

const testSecret = "unit-test-secret-at-least-32-chars-long"

func testUser() model.User {
	return model.User{
		ID:    uuid.New(),
		Email: "a@x.com",
	}
}

func TestIssueValidateRoundtrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, 7*24*time.Hour)
	user := testUser()

	access, refresh, err := issuer.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := issuer.ValidateAccess(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, TokenUseAccess, claims.TokenUse)

	refreshClaims, err := issuer.ValidateRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, user.ID, refreshClaims.UserID)
	assert.Equal(t, TokenUseRefresh, refreshClaims.TokenUse)
}

func TestValidateExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, -time.Minute, -time.Minute)
	access, refresh, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = issuer.ValidateAccess(access)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = issuer.ValidateRefresh(refresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateBadSignature(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, time.Hour)
	forger := NewTokenIssuer("a-different-secret-32-characters-xx", 15*time.Minute, time.Hour)

	forged, _, err := forger.Issue(testUser())
	require.NoError(t, err)

	_, err = issuer.ValidateAccess(forged)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestValidateMalformedToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, time.Hour)

	_, err := issuer.ValidateAccess("not-a-token")
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = issuer.ValidateAccess("")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenUseIsEnforced(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, time.Hour)
	access, refresh, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = issuer.ValidateAccess(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = issuer.ValidateRefresh(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
