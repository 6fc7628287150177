package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gabrielsolarenergy/server/internal/chat"
	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/http/handler"
	"github.com/gabrielsolarenergy/server/internal/http/router"
	"github.com/gabrielsolarenergy/server/internal/mail"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/security"
	"github.com/gabrielsolarenergy/server/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// capturingEnqueuer records outbound mail instead of touching a broker so
// tests can pull verification and reset tokens out of the bodies.
type capturingEnqueuer struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (e *capturingEnqueuer) Enqueue(_ context.Context, msg mail.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
	return nil
}

func (e *capturingEnqueuer) waitForMail(t *testing.T, n int) []mail.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		count := len(e.msgs)
		e.mu.Unlock()
		if count >= n {
			e.mu.Lock()
			defer e.mu.Unlock()
			out := make([]mail.Message, len(e.msgs))
			copy(out, e.msgs)
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d emails, got %d", n, len(e.msgs))
	return nil
}

var tokenLinkPattern = regexp.MustCompile(`token=([A-Za-z0-9._-]+)`)

func tokenFromMail(t *testing.T, msg mail.Message) string {
	t.Helper()
	m := tokenLinkPattern.FindStringSubmatch(msg.Body)
	if len(m) != 2 {
		t.Fatalf("no token link in email body: %q", msg.Body)
	}
	return m[1]
}

type testServer struct {
	baseURL string
	client  *http.Client
	mail    *capturingEnqueuer
	db      *gorm.DB
	jwtMgr  *security.JWTManager
	users   repository.UserRepository
}

func newAuthTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}, &domain.ChatMessage{}, &domain.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtMgr := security.NewJWTManager(
		"gabrielsolarenergy", "gabrielsolarenergy-api",
		"test-token-secret-0123456789abcdef", "test-email-secret-0123456789abcdef",
	)
	hasher := security.NewPasswordHasher(4)
	totpMgr := security.NewTOTPManager("Gabriel Solar Energy")
	enqueuer := &capturingEnqueuer{}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	audits := repository.NewAuditRepository(db)
	messages := repository.NewChatMessageRepository(db)

	tokens := service.NewTokenService(jwtMgr, sessions, users, 15*time.Minute, 7*24*time.Hour)
	twoFactor := service.NewTwoFactorService(users, totpMgr)
	auth := service.NewAuthService(users, sessions, audits, hasher, jwtMgr, tokens, twoFactor,
		enqueuer, mail.NewComposer("https://app.example.com"), logger)
	sessionSvc := service.NewSessionService(sessions, logger)

	hub := chat.NewHub()
	relay := chat.NewRelay(hub, messages, jwtMgr, auth, logger)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:        handler.NewAuthHandler(auth),
		UserHandler:        handler.NewUserHandler(sessionSvc),
		TwoFactorHandler:   handler.NewTwoFactorHandler(twoFactor),
		ChatHandler:        handler.NewChatHandler(messages),
		AdminHandler:       handler.NewAdminHandler(sessionSvc, audits),
		ChatRelay:          relay,
		JWTManager:         jwtMgr,
		AccountResolver:    auth,
		Logger:             logger,
		CORSOrigins:        []string{"https://app.example.com"},
		AuthRateLimitRPM:   1000,
		ForgotRateLimitRPM: 1000,
		APIRateLimitRPM:    1000,
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &testServer{
		baseURL: server.URL,
		client:  server.Client(),
		mail:    enqueuer,
		db:      db,
		jwtMgr:  jwtMgr,
		users:   users,
	}
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp, env
}

// registerAndVerify walks an account through registration and email
// verification, returning the login password.
func (s *testServer) registerAndVerify(t *testing.T, email string) string {
	t.Helper()
	const password = "Valid#Pass1234"

	known := len(s.mail.waitForMail(t, 0))
	resp, env := s.doJSON(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":      email,
		"password":   password,
		"first_name": "Integration",
		"last_name":  "Test",
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("register failed: status=%d env=%+v", resp.StatusCode, env)
	}

	msgs := s.mail.waitForMail(t, known+1)
	token := tokenFromMail(t, msgs[len(msgs)-1])
	resp, env = s.doJSON(t, http.MethodGet, "/api/v1/auth/verify-email?token="+token, nil, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("verify failed: status=%d env=%+v", resp.StatusCode, env)
	}
	return password
}

type tokenGrant struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	Requires2FA  bool            `json:"requires_2fa"`
	User         json.RawMessage `json:"user"`
}

func (s *testServer) login(t *testing.T, email, password string) tokenGrant {
	t.Helper()
	resp, env := s.doJSON(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login failed: status=%d env=%+v", resp.StatusCode, env)
	}
	var grant tokenGrant
	if err := json.Unmarshal(env.Data, &grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	return grant
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// totpCode derives the code an authenticator app would show right now,
// using the same parameters the server validates with.
func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate totp code: %v", err)
	}
	return code
}
