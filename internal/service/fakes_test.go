package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/mail"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/security"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *memUserRepo) FindByID(id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) FindByEmail(email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) Create(user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return errors.New("duplicate email")
		}
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) Update(user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	audits   []*domain.AuditLog
	failNext bool
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *memSessionRepo) RecordLogin(s *domain.Session, audit *domain.AuditLog, loginAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errors.New("commit failed")
	}
	if _, ok := r.sessions[s.RefreshToken]; ok {
		return errors.New("duplicate token")
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = loginAt
	copied := *s
	r.sessions[s.RefreshToken] = &copied
	r.audits = append(r.audits, audit)
	return nil
}

func (r *memSessionRepo) FindByToken(token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) ListByUserID(userID uuid.UUID) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) DeleteByToken(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *memSessionRepo) DeleteByIDForUser(userID, sessionID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, s := range r.sessions {
		if s.ID == sessionID && s.UserID == userID {
			delete(r.sessions, token)
			return true, nil
		}
	}
	return false, nil
}

func (r *memSessionRepo) DeleteByUserID(userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for token, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func (r *memSessionRepo) CleanupExpired() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var removed int64
	for token, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (r *memAuditRepo) Create(entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) ListPaged(req repository.PageRequest, action string) (repository.PageResult[domain.AuditLog], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.AuditLog
	for _, e := range r.entries {
		if action == "" || e.Action == action {
			items = append(items, *e)
		}
	}
	return repository.PageResult[domain.AuditLog]{
		Items: items,
		Page:  1, PageSize: len(items),
		Total: int64(len(items)), TotalPages: 1,
	}, nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type memEnqueuer struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (e *memEnqueuer) Enqueue(_ context.Context, msg mail.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
	return nil
}

func (e *memEnqueuer) snapshot() []mail.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]mail.Message, len(e.msgs))
	copy(out, e.msgs)
	return out
}

// waitForMail polls until the enqueuer has seen n messages; email sends are
// fire-and-forget, so tests cannot observe them synchronously.
func waitForMail(t *testing.T, e *memEnqueuer, n int) []mail.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := e.snapshot(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d queued emails, got %d", n, len(e.snapshot()))
	return nil
}

type authHarness struct {
	svc      *AuthService
	tokens   *TokenService
	users    *memUserRepo
	sessions *memSessionRepo
	audits   *memAuditRepo
	mail     *memEnqueuer
	jwtMgr   *security.JWTManager
	hasher   *security.PasswordHasher
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	audits := &memAuditRepo{}
	enqueuer := &memEnqueuer{}

	jwtMgr := security.NewJWTManager(
		"gabrielsolarenergy", "gabrielsolarenergy-api",
		"test-token-secret-0123456789abcdef", "test-email-secret-0123456789abcdef",
	)
	hasher := security.NewPasswordHasher(4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens := NewTokenService(jwtMgr, sessions, users, 15*time.Minute, 7*24*time.Hour)
	twoFactor := NewTwoFactorService(users, security.NewTOTPManager("Gabriel Solar Energy"))
	svc := NewAuthService(
		users, sessions, audits, hasher, jwtMgr, tokens, twoFactor,
		enqueuer, mail.NewComposer("https://app.example.com"), logger,
	)
	return &authHarness{
		svc:      svc,
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		audits:   audits,
		mail:     enqueuer,
		jwtMgr:   jwtMgr,
		hasher:   hasher,
	}
}

func currentTOTPCode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// seedUser creates a verified active account with the given password.
func (h *authHarness) seedUser(t *testing.T, email, password string) *domain.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &domain.User{
		Email:          email,
		HashedPassword: hash,
		FirstName:      "Test",
		Role:           domain.RoleUser,
		IsActive:       true,
		IsVerified:     true,
	}
	if err := h.users.Create(user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}
