package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stellar/go-stellar-sdk/clients/horizonclient"

	"github.com/stellar-payment-gateway/internal/cache"
	"github.com/stellar-payment-gateway/internal/config"
	"github.com/stellar-payment-gateway/internal/events"
	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/metrics"
	"github.com/stellar-payment-gateway/internal/middleware"
	"github.com/stellar-payment-gateway/internal/server"
	"github.com/stellar-payment-gateway/internal/service"
	"github.com/stellar-payment-gateway/internal/stellar"
	"github.com/stellar-payment-gateway/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "payment-gateway").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	submissions, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	signer := stellar.NewSigner(cfg.NetworkPassphrase())
	horizon := &horizonclient.Client{
		HorizonURL: cfg.DefaultHorizonURL(),
		HTTP:       &http.Client{Timeout: cfg.HorizonTimeout},
	}
	retry := ledger.DefaultRetryPolicy()
	retry.MaxRetries = cfg.HorizonRetries
	retry.Backoff = cfg.HorizonRetryBackoff
	var gateway ledger.Gateway = stellar.NewGateway(horizon, retry)
	gateway = ledger.Instrument(gateway, m)

	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func(c *redis.Client) {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close redis client")
			}
		}(client)
		gateway = cache.NewGateway(gateway, client, cfg.CacheTTL)
		log.Info().Msg("transaction cache enabled")
	}

	var publisher events.Publisher = events.NewLogPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		publisher = kp
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing finalized submissions to kafka")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event publisher")
		}
	}()

	submissionSvc := service.NewSubmissionService(submissions, gateway, stellar.NewBuilder(signer), publisher, m, service.SubmissionConfig{
		MaxAttempts:  cfg.SubmitMaxAttempts,
		WaitTimeout:  cfg.SubmitWaitTimeout,
		TxTimeout:    cfg.TxTimeout,
		ExpiryGrace:  cfg.ExpiryGrace,
		PollInterval: cfg.MonitorPollInterval,
		BaseFee:      cfg.BaseFee,
		MaxFee:       cfg.MaxFee,
	})
	defer submissionSvc.Close()

	if _, err := submissionSvc.Resume(ctx); err != nil {
		return err
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	router := server.NewRouter(server.Deps{
		Submissions:       submissionSvc,
		Notifications:     service.NewNotificationService(gateway, submissions, m, publicURL),
		Accounts:          service.NewAccountService(gateway),
		Store:             submissions,
		Network:           gateway,
		Metrics:           m,
		Logger:            log.Logger,
		StellarNetwork:    cfg.StellarNetwork,
		NetworkPassphrase: cfg.NetworkPassphrase(),
		PublicURL:         publicURL,
		BaseFee:           cfg.BaseFee,
		MaxFee:            cfg.MaxFee,
		CORSOrigins:       cfg.CORSOrigins,
		APIKeys:           cfg.APIKeys,
		RateLimiter:       middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("network", cfg.StellarNetwork).
			Str("horizon", cfg.DefaultHorizonURL()).
			Bool("auth", len(cfg.APIKeys) > 0).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// submissionStore is the store surface the server needs.
type submissionStore interface {
	store.SubmissionStore
	Ping(ctx context.Context) error
}

// openStore connects to Postgres and applies migrations, or falls back to the
// in-memory store when no database is configured.
func openStore(ctx context.Context, cfg *config.Config) (submissionStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, submissions are kept in memory and lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	if err := migrateUp(cfg.MigrationsURL, cfg.DatabaseURL); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	pg := store.NewPostgres(pool)
	if err := pg.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool.Close, nil
}

func migrateUp(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("database migrated")
	return nil
}
