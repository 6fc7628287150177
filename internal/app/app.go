// Package app wires configuration, storage, services and transport into a
// runnable server process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gabrielsolarenergy/server/internal/chat"
	"github.com/gabrielsolarenergy/server/internal/config"
	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/health"
	"github.com/gabrielsolarenergy/server/internal/http/handler"
	"github.com/gabrielsolarenergy/server/internal/http/middleware"
	"github.com/gabrielsolarenergy/server/internal/http/router"
	"github.com/gabrielsolarenergy/server/internal/mail"
	"github.com/gabrielsolarenergy/server/internal/observability"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/security"
	"github.com/gabrielsolarenergy/server/internal/service"
)

const (
	shutdownGrace   = 10 * time.Second
	janitorInterval = time.Hour
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	db           *gorm.DB
	redisClient  *redis.Client
	mailConsumer *mail.Consumer
	sessions     *service.SessionService
}

// New builds the whole dependency graph from configuration. Nothing starts
// running until Run is called.
func New(ctx context.Context, cfg *config.Config, runtime *observability.Runtime) (*App, error) {
	logger := runtime.Logger

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(
		&domain.User{}, &domain.Session{}, &domain.ChatMessage{}, &domain.AuditLog{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, rate limiting falls back open", "error", err)
	}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	audits := repository.NewAuditRepository(db)
	messages := repository.NewChatMessageRepository(db)

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenSecret, cfg.EmailTokenSecret)
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	totpMgr := security.NewTOTPManager(cfg.TOTPIssuer)

	publisher := mail.NewQueuePublisher(cfg.AMQPURL, cfg.MailQueue, logger)
	composer := mail.NewComposer(cfg.FrontendURL)
	sender := mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.MailFromName)
	consumer := mail.NewConsumer(cfg.AMQPURL, cfg.MailQueue, sender, logger)

	tokens := service.NewTokenService(jwtMgr, sessions, users, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	twoFactor := service.NewTwoFactorService(users, totpMgr)
	auth := service.NewAuthService(users, sessions, audits, hasher, jwtMgr, tokens, twoFactor, publisher, composer, logger)
	auth.UseResetTokenGuard(service.NewRedisResetTokenGuard(redisClient, ""))
	sessionSvc := service.NewSessionService(sessions, logger)

	hub := chat.NewHub()
	relay := chat.NewRelay(hub, messages, jwtMgr, auth, logger)

	readiness := health.NewProbeRunner(2*time.Second,
		health.DatabaseProbe(db),
		health.RedisProbe(redisClient),
	)

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
		CORSOrigins:        []string{cfg.FrontendURL},
		AuthRateLimitRPM:   cfg.AuthRateLimitRPM,
		ForgotRateLimitRPM: cfg.ForgotRateLimitRPM,
		APIRateLimitRPM:    cfg.APIRateLimitRPM,
		Limiter:            middleware.NewRedisLimiter(redisClient),
		Readiness:          readiness,
		EnableOTelHTTP:     cfg.EnableOTelHTTP,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		db:            db,
		redisClient:   redisClient,
		mailConsumer:  consumer,
		sessions:      sessionSvc,
	}, nil
}

// Run serves HTTP alongside the mail consumer and session janitor until the
// context is cancelled, then drains everything within the shutdown grace.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr, "env", a.Config.AppEnv)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.mailConsumer.Run(ctx)
	})
	g.Go(func() error {
		return a.sessions.RunJanitor(ctx, janitorInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) close() {
	if err := a.redisClient.Close(); err != nil {
		a.Logger.Warn("close redis", "error", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Logger.Warn("close database", "error", err)
		}
	}
}
