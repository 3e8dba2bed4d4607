package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/assetgate/adapters/clock"
	"github.com/layer-3/assetgate/adapters/events"
	"github.com/layer-3/assetgate/adapters/hasher"
	"github.com/layer-3/assetgate/adapters/kyc"
	"github.com/layer-3/assetgate/adapters/mailer"
	"github.com/layer-3/assetgate/adapters/signature"
	"github.com/layer-3/assetgate/adapters/store"
	"github.com/layer-3/assetgate/adapters/tokenizer"
	"github.com/layer-3/assetgate/config"
	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/metrics"
	"github.com/layer-3/assetgate/ports"
	"github.com/layer-3/assetgate/service"
	transport "github.com/layer-3/assetgate/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)
	wmLogger := watermill.NewSlogLogger(logger.Logger)

	var checks []func(context.Context) error

	// Redis: identity cache and event stream
	var redisClient *redis.Client
	var publisher message.Publisher
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to parse Redis URL", "error", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		checks = append(checks, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			logger.Fatal("failed to create Redis publisher", "error", err)
		}
	} else {
		logger.Warn("REDIS_URL not set, events stay in process")
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	defer publisher.Close()

	// Identity store
	var identities ports.IdentityStore
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("failed to initialize storage", "error", err)
		}
		defer pg.Close()
		identities = pg
		checks = append(checks, pg.Ping)
	} else {
		logger.Warn("DATABASE_DSN not set, identities are kept in memory")
		identities = store.NewMemoryStore()
	}
	var lookup ports.IdentityLookup
	if redisClient != nil {
		cache := store.NewRedisCache(identities, redisClient, cfg.Redis.CacheTTL, logger)
		identities, lookup = cache, cache
	}

	systemClock := clock.NewSystem()
	tk, err := tokenizer.NewJWTTokenizer(cfg.JWT.Secret, cfg.JWT.AccessLifetime, cfg.JWT.RefreshLifetime, systemClock)
	if err != nil {
		logger.Fatal("failed to create tokenizer", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := service.Dependencies{
		Store:     identities,
		Lookup:    lookup,
		Tokenizer: tk,
		Verifier:  signature.NewVerifier(systemClock, logger),
		Hasher:    hasher.NewArgon2(hasher.Params{Time: cfg.KDF.Time, MemKiB: cfg.KDF.MemKiB, Par: cfg.KDF.Par}),
		Mailer:    mailer.NewWatermillMailer(publisher, cfg.Mail.Topic, cfg.Mail.From),
		Events:    events.NewWatermillPublisher(publisher),
		Clock:     systemClock,
		Policy:    core.DefaultPolicy(),
		Metrics:   metrics.NewCollector(reg),
		Logger:    logger,
	}

	authService, err := service.NewAuthService(deps, service.Options{AppBaseURL: cfg.Mail.AppBaseURL})
	if err != nil {
		logger.Fatal("failed to create auth service", "error", err)
	}

	var didit ports.KYCDecisionClient
	if cfg.KYC.DiditAPIKey != "" {
		didit = kyc.NewDiditClient(cfg.KYC.DiditAPIURL, cfg.KYC.DiditAPIKey, cfg.KYC.DiditTimeout)
	}
	kycService := service.NewKYCService(deps, didit, service.KYCOptions{
		PersonaWebhookSecret:  cfg.KYC.PersonaWebhookSecret,
		DiditWebhookSecret:    cfg.KYC.DiditWebhookSecret,
		AllowUnsignedWebhooks: cfg.KYC.AllowUnsignedWebhooks,
	})

	router := transport.SetupRouter(transport.RouterConfig{
		Auth:     authService,
		KYC:      kycService,
		Guard:    service.NewGuard(deps),
		Limiter:  transport.NewIPRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
		Gatherer: reg,
		Health: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server on", "address", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}

	// pending mail must be queued before the publisher closes
	authService.Wait()
	kycService.Wait()
	logger.Info("shutdown complete")
}
