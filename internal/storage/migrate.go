package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// AuditSchemaVersion is the newest migration under migrations/.
const AuditSchemaVersion = 1

//go:embed migrations/*.sql
var auditMigrations embed.FS

// MigrateAuditLog brings the audit database at dbPath up to
// AuditSchemaVersion and returns the version it ended on. A database left
// dirty by an interrupted migration is reported, not repaired.
func MigrateAuditLog(dbPath string) (uint, error) {
	// The migrator closes its connection, so it gets its own.
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open audit database for migration: %w", err)
	}
	defer conn.Close()

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{MigrationsTable: "audit_schema_migrations"})
	if err != nil {
		return 0, fmt.Errorf("create sqlite migration driver: %w", err)
	}

	src, err := iofs.New(auditMigrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("load audit migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create audit migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate audit log: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read audit schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("audit schema version %d is dirty", version)
	}
	return version, nil
}
