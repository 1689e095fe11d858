package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // registers the "libsql" driver
)

// Driver names the backend selected for a DSN.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverLibSQL   Driver = "libsql"
	DriverPostgres Driver = "postgres"
)

// DetectDriver picks the backend from the DSN prefix.
func DetectDriver(dsn string) Driver {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "wss://"):
		return DriverLibSQL
	default:
		return DriverSQLite
	}
}

var sqlitePragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Open connects to the database named by dsn. SQLite files (and :memory:) use
// the embedded driver, libsql:// URLs go to a remote libSQL server through the
// same dialect, and postgres:// URLs use Postgres.
//
// The handle is returned to the caller; there is no package-level connection.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch DetectDriver(dsn) {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverLibSQL:
		dialector = sqlite.New(sqlite.Config{DriverName: "libsql", DSN: dsn})
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, err
	}

	if DetectDriver(dsn) == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite serializes writers anyway; one connection also keeps
		// :memory: databases from splitting across the pool.
		sqlDB.SetMaxOpenConns(1)
		for _, pragma := range sqlitePragmas {
			if err := db.Exec(pragma).Error; err != nil {
				sqlDB.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
