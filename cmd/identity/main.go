package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"identity/internal/config"
	"identity/internal/domain"
	"identity/internal/mailer"
	"identity/internal/observability/logging"
	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
	"identity/internal/password"
	"identity/internal/service/impl"
	"identity/internal/store"
	"identity/internal/token"
	httpx "identity/internal/transport/http"
	"identity/pkg/db"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.NewLogger(logging.Config{
		ServiceName: "identity",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	metrics.MustRegister("identity")

	gdb, err := db.OpenGorm(db.Config{
		DSN:    cfg.DatabaseURL,
		LogSQL: cfg.LogSQL,
	})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if cfg.AutoMigrate {
		if err := gdb.AutoMigrate(
			&domain.User{},
			&domain.LinkedAccount{},
			&domain.Session{},
			&domain.VerificationToken{},
			&domain.OtpAttempt{},
			&domain.TrustedDevice{},
		); err != nil {
			logger.Error("auto migrate", "error", err)
			os.Exit(1)
		}
	}

	st := store.New(gdb)
	hasher := password.NewHasher()
	issuer := token.NewIssuer()

	var mail mailer.Mailer = mailer.LogMailer{}
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	sessions := impl.NewSessionService(st, issuer, cfg.SessionTTL)
	mfa := impl.NewMfaService(st, issuer, mail, sessions,
		cfg.OTPTTL, cfg.OTPDigits, cfg.OTPMaxAttempts,
		cfg.OTPLockDuration, cfg.TrustedDeviceTTL)
	auth := impl.NewAuthService(st, hasher, issuer, mail, sessions, mfa,
		cfg.AppBaseURL, cfg.ResetTokenTTL, cfg.VerifyTokenTTL)
	oauth := impl.NewOAuthService(st, issuer, sessions, mfa,
		map[domain.Provider]config.OAuthProvider{
			domain.ProviderGoogle: cfg.Google,
			domain.ProviderGitHub: cfg.GitHub,
		}, cfg.AppBaseURL)

	handler := middleware.WithRequestAndTrace(middleware.WithMetrics(httpx.NewRouter(httpx.Config{
		AppBaseURL:    cfg.AppBaseURL,
		CORSOrigins:   cfg.CORSOrigins,
		SecureCookies: cfg.Environment != "dev",
	}, auth, mfa, oauth)))

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-janitorCtx.Done():
				return
			case <-ticker.C:
				if n, err := st.TrustedDevices().DeleteExpired(janitorCtx, time.Now().UTC()); err != nil {
					slog.Warn("expired device cleanup failed", "error", err)
				} else if n > 0 {
					slog.Info("expired trusted devices removed", "count", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("identity service listening", "addr", srv.Addr, "base_url", cfg.AppBaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
