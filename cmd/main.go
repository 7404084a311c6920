package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/kyc-service/internal/api"
	"github.com/transfa/kyc-service/internal/app"
	"github.com/transfa/kyc-service/internal/config"
	"github.com/transfa/kyc-service/internal/domain"
	"github.com/transfa/kyc-service/internal/store"
	"github.com/transfa/kyc-service/pkg/rabbitmq"
	"github.com/transfa/kyc-service/pkg/sumsubclient"
)

func maskURLForLog(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database URL: %v\n", err)
	}
	dbConfig.MaxConns = 10
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer dbpool.Close()
	log.Println("Database connection established")

	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx, dbpool); err != nil {
			log.Fatalf("failed to ensure schema: %v", err)
		}
	}

	repo := store.NewPostgresRepository(dbpool)

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: invalid REDIS_URL, webhook dedupe will be in-memory: %v", err)
		} else {
			client := redis.NewClient(opts)
			defer client.Close()
			redisClient = client
			log.Printf("Redis configured (masked)=%s", maskURLForLog(cfg.RedisURL))
		}
	}
	deduper := app.NewVerdictDeduper(redisClient, cfg.RedisKeyPrefix, time.Duration(cfg.VerdictDedupeTTLSeconds)*time.Second)

	var registrar app.ApplicantRegistrar
	var statusClient app.ReviewStatusClient
	if cfg.SumsubConfigured() {
		client := sumsubclient.NewClient(cfg.SumsubBaseURL, cfg.SumsubAppToken, cfg.SumsubSecretKey, cfg.SumsubLevelName)
		registrar = client
		statusClient = client
	} else {
		log.Println("WARNING: SumSub credentials not configured; applicants will not be registered and verdict polling is disabled")
	}

	service := app.NewService(repo, app.NewOutboxNotifier(repo, cfg.EventsExchange), registrar)

	log.Printf("RABBITMQ_URL (masked)=%s", maskURLForLog(cfg.RabbitMQURL))

	// The webhook falls back to in-process verdict handling when the broker is down.
	var webhookProducer rabbitmq.Publisher
	if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("WARNING: Failed to connect to RabbitMQ at startup: %v. Verdicts will be applied in-process.", err)
	} else {
		defer producer.Close()
		webhookProducer = producer
		log.Println("RabbitMQ producer connected")
	}

	if consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL); err != nil {
		log.Printf("WARNING: Failed to start verdict consumer: %v", err)
	} else {
		defer consumer.Close()
		verdicts := app.NewVerdictConsumer(service)
		if err := consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.VerdictEventQueue, map[string]func([]byte) bool{
			domain.RoutingKeyVerdictReceived: verdicts.HandleMessage,
		}); err != nil {
			log.Printf("WARNING: Failed to bind verdict queue: %v", err)
		} else {
			log.Printf("Verdict consumer listening on queue %s", cfg.VerdictEventQueue)
		}
	}

	dispatcher := app.NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		return producer, nil
	})
	go dispatcher.Run(ctx)

	var scheduler *app.Scheduler
	if statusClient != nil {
		jobs := app.NewJobs(repo, service, statusClient, logger, cfg)
		scheduler = app.NewScheduler(jobs, logger, cfg)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
	}

	webhook := api.NewWebhookHandler(webhookProducer, cfg.EventsExchange, service, deduper, cfg.SumsubWebhookSecret)
	router := api.NewRouter(api.RouterConfig{
		Auth: api.AuthMiddlewareConfig{
			JWKSURL:             cfg.ClerkJWKSURL,
			ExpectedAudience:    cfg.ClerkAudience,
			ExpectedIssuer:      cfg.ClerkIssuer,
			AllowHeaderFallback: cfg.AllowHeaderAuthFallback,
		},
		AllowedOrigins: cfg.CORSOrigins(),
	}, service, webhook)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
