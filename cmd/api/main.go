package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/dutchville-accounts/internal/http/handlers"
	ratelimit "github.com/diagnosis/dutchville-accounts/internal/http/middleware"
	"github.com/diagnosis/dutchville-accounts/internal/http/response"
	"github.com/diagnosis/dutchville-accounts/internal/platform/auth"
	"github.com/diagnosis/dutchville-accounts/internal/platform/mailer"
	"github.com/diagnosis/dutchville-accounts/internal/repo/postgres"
	"github.com/diagnosis/dutchville-accounts/internal/service"
	"github.com/diagnosis/dutchville-accounts/pkg/config"
	"github.com/diagnosis/dutchville-accounts/pkg/database"
	"github.com/diagnosis/dutchville-accounts/pkg/events"
	"github.com/diagnosis/dutchville-accounts/pkg/logger"
	"github.com/diagnosis/dutchville-accounts/pkg/metrics"
	mw "github.com/diagnosis/dutchville-accounts/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	// A missing .env is fine; the process environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()
	logger.SetDefault(logger.New(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	dispatcher, err := mailer.New(cfg.Email)
	if err != nil {
		logger.Error("Failed to configure mail transport", "error", err)
		os.Exit(1)
	}
	if cfg.Email.DevMode {
		logger.Warn("EMAIL_DEV_MODE is on; verification codes are logged, not sent")
	}

	m := metrics.New(prometheus.NewRegistry())

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		publisher = bus
	}

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Requests > 0 && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unreachable; rate limiter will fail open", "error", err)
		}
		cancel()

		trusted, err := ratelimit.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
		if err != nil {
			logger.Error("Invalid TRUSTED_PROXIES", "error", err)
			os.Exit(1)
		}

		rateLimit = ratelimit.NewRateLimiter(rdb, ratelimit.RateLimitConfig{
			Requests:       cfg.RateLimit.Requests,
			Window:         cfg.RateLimit.Window,
			Route:          "/register",
			TrustedProxies: trusted,
		}, m).Middleware()
	}

	accounts := postgres.NewAccountsRepo(pool, cfg.Database.QueryTimeout)
	svc := service.NewRegistrationService(accounts, auth.NewPasswordHasher(nil), dispatcher,
		service.WithEvents(publisher, cfg.NATS.Subject),
		service.WithMetrics(m),
		service.WithSendTimeout(cfg.Email.SendTimeout),
	)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("accounts"))
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(mw.Health(pool))
	r.Use(mw.Metrics(m))

	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Mount("/", handlers.NewRegisterHandler(svc, rateLimit).Routes())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, response.MsgNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, response.MsgMethodNotAllowed)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down accounts service...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Accounts service shutdown error", "error", err)
		}
		close(idle)
	}()

	logger.Info("Starting accounts service", "port", cfg.Server.Port, "mail_transport", cfg.Email.Transport)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Accounts service error", "error", err)
		os.Exit(1)
	}
	<-idle
}
