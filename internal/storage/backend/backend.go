// Package backend opens the metadata store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/princekumarofficial/video-service/internal/config"
	"github.com/princekumarofficial/video-service/internal/storage/postgres"
	"github.com/princekumarofficial/video-service/internal/storage/sqlite"
	"github.com/princekumarofficial/video-service/internal/storage/sqlstore"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func Open(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.Database.Driver {
	case DriverSQLite, "":
		return sqlite.New(ctx, cfg.Database.SQLitePath)
	case DriverPostgres:
		return postgres.New(ctx, cfg.PGSQL)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}
