package tests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/server/internal/auth"
	"github.com/quillpost/server/internal/repo"
)

func registerUser(t *testing.T, app *testApp, email, password string) {
	t.Helper()
	_, err := app.Service.Register(context.Background(), auth.RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  password,
	})
	require.NoError(t, err)
}

func TestLoginBeforeVerificationIssuesChallengeNotSession(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	result, err := app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.NoError(t, err)

	assert.True(t, result.ChallengeSent)
	assert.Empty(t, result.AccessToken)
	assert.Empty(t, result.RefreshToken)
	assert.Equal(t, 1, app.Mailer.SentCount())
	assert.Equal(t, "a@x.com", app.Mailer.lastTo)
}

func TestVerifyWithinTTLIssuesSessionAndMarksVerified(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	_, err := app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.NoError(t, err)
	code := app.Mailer.LastCode(t)

	result, err := app.Service.VerifyEmail(context.Background(), "a@x.com", code)
	require.NoError(t, err)
	assert.False(t, result.ChallengeSent)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.True(t, result.User.IsVerified)

	stored, err := app.Users.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)

	// The code was consumed; re-presenting it is rejected deterministically.
	_, err = app.Service.VerifyEmail(context.Background(), "a@x.com", code)
	assert.ErrorIs(t, err, auth.ErrInvalidCode)

	// The account stays verified and can now log straight in.
	login, err := app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.NoError(t, err)
	assert.False(t, login.ChallengeSent)
	assert.NotEmpty(t, login.AccessToken)
}

func TestVerifyExpiredCodeFails(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	_, err := app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.NoError(t, err)
	code := app.Mailer.LastCode(t)

	app.Codes.expireAll()

	_, err = app.Service.VerifyEmail(context.Background(), "a@x.com", code)
	assert.ErrorIs(t, err, auth.ErrCodeExpired)

	stored, getErr := app.Users.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, getErr)
	assert.False(t, stored.IsVerified)
}

func TestVerifyErrors(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	_, err := app.Service.VerifyEmail(context.Background(), "nobody@x.com", "123456")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = app.Service.VerifyEmail(context.Background(), "a@x.com", "000000")
	assert.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestNewerCodeSupersedesOlder(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	_, err := app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.NoError(t, err)
	oldCode := app.Mailer.LastCode(t)

	// Second login issues a fresh code and supersedes the first.
	_, err = app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.NoError(t, err)
	newCode := app.Mailer.LastCode(t)

	if oldCode != newCode {
		_, err = app.Service.VerifyEmail(context.Background(), "a@x.com", oldCode)
		assert.ErrorIs(t, err, auth.ErrInvalidCode)
	}

	result, err := app.Service.VerifyEmail(context.Background(), "a@x.com", newCode)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestLoginInvalidCredentialsIndistinguishable(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	_, unknownErr := app.Service.Login(context.Background(), "nobody@x.com", "longpass1")
	_, wrongErr := app.Service.Login(context.Background(), "a@x.com", "wrongpass")

	assert.ErrorIs(t, unknownErr, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, auth.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestConcurrentRegistrationSameEmail(t *testing.T) {
	app := newTestApp(t)

	const attempts = 2
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = app.Service.Register(context.Background(), auth.RegisterInput{
				FirstName: "Ada",
				LastName:  "Lovelace",
				Email:     "a@x.com",
				Password:  "longpass1",
			})
		}(i)
	}
	wg.Wait()

	successes, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, repo.ErrDuplicateEmail):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, duplicates)
}

func TestMailDeliveryFailureIsSurfaced(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	app.Mailer.failErr = errors.New("smtp connection refused")

	_, err := app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrDeliveryFailure)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRefreshMintsNewAccessToken(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "a@x.com", "longpass1")

	_, err := app.Service.Login(context.Background(), "a@x.com", "longpass1")
	require.NoError(t, err)
	code := app.Mailer.LastCode(t)

	session, err := app.Service.VerifyEmail(context.Background(), "a@x.com", code)
	require.NoError(t, err)

	accessToken, err := app.Service.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)

	claims, err := app.Issuer.ValidateAccess(accessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)

	// An access token must not work as a refresh token.
	_, err = app.Service.Refresh(context.Background(), session.AccessToken)
	assert.Error(t, err)
}
