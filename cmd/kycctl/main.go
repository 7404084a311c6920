package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/transfa/kyc-service/internal/app"
	"github.com/transfa/kyc-service/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if err := newApp(connectPostgres, os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// connectPostgres opens a small pool and builds the operations on top of the same
// repository and service the HTTP server uses. Notifications go through the outbox,
// so the running service publishes them.
func connectPostgres(ctx context.Context, databaseURL, exchange string) (*backend, error) {
	dbConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	dbConfig.MaxConns = 2
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	repo := store.NewPostgresRepository(dbpool)
	return &backend{
		ops: app.NewService(repo, app.NewOutboxNotifier(repo, exchange), nil),
		migrate: func(ctx context.Context) error {
			return store.EnsureSchema(ctx, dbpool)
		},
		close: dbpool.Close,
	}, nil
}
