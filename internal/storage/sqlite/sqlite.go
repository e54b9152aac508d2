package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/princekumarofficial/video-service/internal/storage/sqlstore"
)

var schema = []string{
	`
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		filename TEXT UNIQUE NOT NULL,
		original_filename TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL CHECK (file_size >= 0),
		duration REAL,
		thumbnail TEXT,
		processing_status TEXT NOT NULL CHECK (processing_status IN ('pending', 'processing', 'completed', 'failed')),
		failure_reason TEXT NOT NULL DEFAULT '',
		views INTEGER NOT NULL DEFAULT 0 CHECK (views >= 0),
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (processing_status <> 'completed' OR (duration IS NOT NULL AND thumbnail IS NOT NULL))
	);
	`,
	`CREATE INDEX IF NOT EXISTS idx_videos_owner ON videos (owner_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_videos_status ON videos (processing_status, updated_at);`,
}

// Dialect is the SQLite flavor of the shared SQL store. Numbered ?N
// parameters keep the $N argument positions.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:   "sqlite",
		Schema: schema,
		Placeholder: func(n int) string {
			return "?" + strconv.Itoa(n)
		},
		IsUniqueViolation: func(err error) bool {
			var sqliteErr sqlite3.Error
			return errors.As(err, &sqliteErr) &&
				sqliteErr.Code == sqlite3.ErrConstraint &&
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
		},
	}
}

// New opens the database at path with foreign keys and WAL enabled.
// ":memory:" gives a private in-memory database held on one connection.
func New(ctx context.Context, path string) (*sqlstore.Store, error) {
	memory := path == ":memory:"
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if !memory {
		dsn += "&_journal_mode=WAL"
	}
	if strings.Contains(path, "?") {
		return nil, fmt.Errorf("sqlite path must not carry parameters: %s", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := sqlstore.New(db, Dialect())
	if err := store.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("Opened SQLite database", slog.String("path", path))
	return store, nil
}
