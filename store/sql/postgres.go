package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const defaultPostgresMaxOpenConns = 16

// OpenPostgres opens a Postgres-backed bun DB for the production deployment.
// SQLite stays the embedded and test driver; this is the only place the
// Postgres driver is linked in.
func OpenPostgres(dsn string) (*bun.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(defaultPostgresMaxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}
