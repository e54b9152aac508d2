package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lib/pq"
	"github.com/princekumarofficial/video-service/internal/config"
	"github.com/princekumarofficial/video-service/internal/storage/sqlstore"
)

const uniqueViolation = pq.ErrorCode("23505")

var schema = []string{
	`
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(32) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS videos (
		id VARCHAR(36) PRIMARY KEY,
		filename VARCHAR(255) UNIQUE NOT NULL,
		original_filename VARCHAR(255) NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL CHECK (file_size >= 0),
		duration DOUBLE PRECISION,
		thumbnail VARCHAR(255),
		processing_status VARCHAR(16) NOT NULL CHECK (processing_status IN ('pending', 'processing', 'completed', 'failed')),
		failure_reason VARCHAR(255) NOT NULL DEFAULT '',
		views BIGINT NOT NULL DEFAULT 0 CHECK (views >= 0),
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (processing_status <> 'completed' OR (duration IS NOT NULL AND thumbnail IS NOT NULL))
	);
	`,
	`CREATE INDEX IF NOT EXISTS idx_videos_owner ON videos (owner_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_videos_status ON videos (processing_status, updated_at);`,
}

// Dialect is the Postgres flavor of the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:   "postgres",
		Schema: schema,
		IsUniqueViolation: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
		},
	}
}

// New connects to Postgres, retrying the first ping with exponential backoff
// so the service can start alongside the database container.
func New(ctx context.Context, cfg config.PQSQL) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	operation := func() (struct{}, error) {
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("Postgres not ready, retrying", slog.String("error", err.Error()))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	if _, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(5)); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("Connected to Postgres database", slog.String("host", cfg.Host), slog.String("db", cfg.DBName))

	store := sqlstore.New(db, Dialect())
	if err := store.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}
