package tests

import (
	"context"
	"net/http/httptest"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quillpost/server/internal/auth"
	httphandler "github.com/quillpost/server/internal/http"
	"github.com/quillpost/server/internal/http/handlers"
	"github.com/quillpost/server/internal/model"
	"github.com/quillpost/server/internal/repo"
)

const (
	testJWTSecret  = "test-jwt-secret-at-least-32-characters-long"
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 7 * 24 * time.Hour
	testCodeTTL    = 10 * time.Minute
)

// memUserRepo is an in-memory UserRepo used by service and HTTP tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]model.User)}
}

func (r *memUserRepo) Create(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return model.User{}, repo.ErrDuplicateEmail
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (r *memUserRepo) MarkVerified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	user.IsVerified = true
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}

func (r *memUserRepo) UpdateProfile(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Email == user.Email {
			return model.User{}, repo.ErrDuplicateEmail
		}
	}
	user.PasswordHash = current.PasswordHash
	user.IsVerified = current.IsVerified
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) UpdatePhoto(_ context.Context, id uuid.UUID, photoURL string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	user.PhotoURL = &photoURL
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return user, nil
}

func (r *memUserRepo) List(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]model.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// memCodeRepo is an in-memory CodeRepo mirroring the superseding semantics
// of the Postgres implementation.
type memCodeRepo struct {
	mu    sync.Mutex
	codes []model.VerificationCode
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{}
}

func (r *memCodeRepo) Create(_ context.Context, userID uuid.UUID, code string, expiresAt time.Time) (model.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for i := range r.codes {
		if r.codes[i].UserID == userID && r.codes[i].ConsumedAt == nil {
			consumed := now
			r.codes[i].ConsumedAt = &consumed
		}
	}
	vc := model.VerificationCode{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	r.codes = append(r.codes, vc)
	return vc, nil
}

func (r *memCodeRepo) FindLatestMatching(_ context.Context, userID uuid.UUID, code string) (model.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.VerificationCode
	for i := range r.codes {
		c := &r.codes[i]
		if c.UserID != userID || c.Code != code || c.ConsumedAt != nil {
			continue
		}
		if found == nil || c.CreatedAt.After(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return model.VerificationCode{}, repo.ErrNotFound
	}
	return *found, nil
}

func (r *memCodeRepo) MarkConsumed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID == id {
			now := time.Now()
			r.codes[i].ConsumedAt = &now
			return nil
		}
	}
	return repo.ErrNotFound
}

// expireAll backdates every stored code so the next verification sees it
// as past its TTL.
func (r *memCodeRepo) expireAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		r.codes[i].ExpiresAt = time.Now().Add(-time.Minute)
	}
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// capturingSender records sent mail so tests can capture the emailed code.
type capturingSender struct {
	mu      sync.Mutex
	sent    []string // bodies, in order
	lastTo  string
	failErr error
}

func (s *capturingSender) Send(_ context.Context, to, _ string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.lastTo = to
	s.sent = append(s.sent, body)
	return nil
}

// LastCode extracts the 6-digit code from the most recent mail body.
func (s *capturingSender) LastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("no verification mail was sent")
	}
	code := codePattern.FindString(s.sent[len(s.sent)-1])
	if code == "" {
		t.Fatalf("no code found in mail body: %q", s.sent[len(s.sent)-1])
	}
	return code
}

func (s *capturingSender) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// testApp wires the real service, handlers and router over in-memory stores.
type testApp struct {
	Server  *httptest.Server
	Users   *memUserRepo
	Codes   *memCodeRepo
	Mailer  *capturingSender
	Issuer  *auth.TokenIssuer
	Service *auth.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	users := newMemUserRepo()
	codes := newMemCodeRepo()
	mailer := &capturingSender{}
	issuer := auth.NewTokenIssuer(testJWTSecret, testAccessTTL, testRefreshTTL)
	service := auth.NewService(users, codes, issuer, mailer, testCodeTTL)
	userHandler := handlers.NewUserHandler(service, users)

	router := httphandler.NewRouter(userHandler, issuer, users)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{
		Server:  server,
		Users:   users,
		Codes:   codes,
		Mailer:  mailer,
		Issuer:  issuer,
		Service: service,
	}
}
