// Package botapp собирает и запускает сервис приема заявок.
package botapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"intake_bot/internal/adminpanel"
	"intake_bot/internal/applicant"
	"intake_bot/internal/bot"
	"intake_bot/internal/config"
	"intake_bot/internal/intake"
	"intake_bot/internal/logging"
	"intake_bot/internal/metrics"
	"intake_bot/internal/observability"
	"intake_bot/internal/ratelimit"
	"intake_bot/internal/relay"
	"intake_bot/internal/settings"
	"intake_bot/internal/store/postgres"
	"intake_bot/internal/telegram"
)

// Run запускает бота приема заявок и блокирует выполнение до остановки.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	redisClient := connectRedis(cfg.RedisURL, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("redis close failed", slog.String("error", err.Error()))
			}
		}()
	}

	stores, db, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	groupID := cfg.StaffGroupID
	if value, err := stores.settings.Get(context.Background(), settings.KeyStaffGroupID); err == nil {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed != 0 {
			groupID = parsed
			logger.Info("staff group id overridden by stored setting", slog.Int64("group_id", groupID))
		}
	}

	telegramClient := telegram.NewClient(cfg.BotToken, &http.Client{Timeout: cfg.TelegramTimeout}, cfg.TelegramSendRate)
	pollerClient := telegramClient
	if cfg.TelegramPollingEnabled {
		pollTimeout := cfg.TelegramPollingTimeout + 5*time.Second
		if pollTimeout < cfg.TelegramTimeout {
			pollTimeout = cfg.TelegramTimeout
		}
		pollerClient = telegram.NewClient(cfg.BotToken, &http.Client{Timeout: pollTimeout}, cfg.TelegramSendRate)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	var pending relay.PendingStore
	if redisClient != nil {
		pending = relay.NewRedisPendingStore(redisClient, cfg.PendingAcceptTTL)
	} else {
		pending = relay.NewMemoryPendingStore(cfg.PendingAcceptTTL)
	}

	var inboundLimiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.InboundRateLimit > 0 {
		if redisClient != nil {
			inboundLimiter = ratelimit.NewRedisLimiter(redisClient, cfg.InboundRateLimit, time.Minute, "telegram:inbound")
		} else {
			inboundLimiter = ratelimit.NewMemoryLimiter(cfg.InboundRateLimit, time.Minute)
		}
	}

	directory := relay.NewDirectory(stores.mappings, stores.applicants, telegramClient, groupID, logger, collector)
	mirror := relay.NewMirror(stores.mappings, stores.log, stores.applicants, telegramClient, groupID, logger, collector)
	propagator := relay.NewPropagator(stores.log, stores.reactions, telegramClient, groupID, logger, collector)
	coordinator := relay.NewStatusCoordinator(stores.applicants, directory, pending, logger)
	issuer := adminpanel.NewIssuer(stores.tokens, cfg.AdminTokenTTL)

	router := bot.New(bot.Deps{
		Sender:      telegramClient,
		Form:        intake.NewForm(),
		Applicants:  stores.applicants,
		Directory:   directory,
		Mirror:      mirror,
		Propagator:  propagator,
		Coordinator: coordinator,
		Tokens:      issuer,
		Settings:    stores.settings,
		Limiter:     inboundLimiter,
		GroupID:     groupID,
		AdminID:     cfg.PrimaryAdminID,
		AdminURL:    cfg.AdminBaseURL,
		Logger:      logger,
	})

	webhookHandler := telegram.NewWebhookHandler(router, cfg.TelegramWebhookSecret, logger)
	var poller *telegram.Poller
	if cfg.TelegramPollingEnabled {
		poller = telegram.NewPoller(pollerClient, router, logger, cfg.TelegramPollingTimeout, cfg.TelegramPollingInterval, cfg.TelegramPollingLimit, cfg.TelegramPollingDropPending)
	} else if cfg.TelegramWebhookURL == "" {
		logger.Warn("telegram webhook url missing; bot will not receive updates")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telegramClient.SetWebhook(ctx, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret, cfg.TelegramWebhookDropPending); err != nil {
			return fmt.Errorf("telegram set webhook failed: %w", err)
		}
		logger.Info("telegram webhook configured", slog.String("url", cfg.TelegramWebhookURL))
	}

	mux := http.NewServeMux()
	mux.Handle("/telegram/webhook", webhookHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withRequestID(logger, mux),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("intake bot listening", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("intake bot server error", slog.String("error", err.Error()))
		}
	}()
	if poller != nil {
		go poller.Run(ctx)
		logger.Info("telegram polling enabled", slog.Duration("timeout", cfg.TelegramPollingTimeout))
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("intake bot shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

// RunAdminPanel запускает веб-панель модераторов отдельным процессом.
func RunAdminPanel() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	stores, db, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	telegramClient := telegram.NewClient(cfg.BotToken, &http.Client{Timeout: cfg.TelegramTimeout}, cfg.TelegramSendRate)
	directory := relay.NewDirectory(stores.mappings, stores.applicants, telegramClient, cfg.StaffGroupID, logger, collector)
	coordinator := relay.NewStatusCoordinator(stores.applicants, directory, relay.NewMemoryPendingStore(cfg.PendingAcceptTTL), logger)
	auth := adminpanel.NewAuthenticator(stores.tokens, telegramClient, cfg.StaffGroupID)
	panel := adminpanel.NewServer(stores.applicants, coordinator, auth, collector, logger)

	mux := http.NewServeMux()
	mux.Handle("/", panel)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withRequestID(logger, mux),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("admin panel listening", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin panel server error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin panel shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

type appStores struct {
	applicants applicant.Store
	mappings   relay.MappingStore
	log        relay.LogStore
	reactions  relay.ReactionStore
	tokens     adminpanel.TokenStore
	settings   settings.Store
}

func openStores(cfg config.Config, logger *slog.Logger) (appStores, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("database url missing, using in-memory stores")
		return appStores{
			applicants: applicant.NewMemoryStore(),
			mappings:   relay.NewMemoryMappingStore(),
			log:        relay.NewMemoryLogStore(),
			reactions:  relay.NewMemoryReactionStore(),
			tokens:     adminpanel.NewMemoryTokenStore(),
			settings:   settings.NewMemoryStore(),
		}, nil, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return appStores{}, nil, fmt.Errorf("database connect failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdle)
	db.SetConnMaxLifetime(cfg.DBConnMaxLife)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return appStores{}, nil, err
	}

	return appStores{
		applicants: postgres.NewApplicantStore(db),
		mappings:   postgres.NewMappingStore(db),
		log:        postgres.NewLogStore(db),
		reactions:  postgres.NewReactionStore(db),
		tokens:     postgres.NewTokenStore(db),
		settings:   postgres.NewSettingsStore(db),
	}, db, nil
}

func connectRedis(redisURL string, logger *slog.Logger) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("redis url parse failed", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	return client
}

func withRequestID(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = observability.NewRequestID()
		}
		ctx := observability.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		logger.Debug("request received", slog.String("path", r.URL.Path), slog.String("method", r.Method), slog.String("request_id", requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
