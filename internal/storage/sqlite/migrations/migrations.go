// Package migrations has the memory bank schema, embedded and applied with
// golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/ralph/internal/log"
)

//go:embed sql/*.sql
var schema embed.FS

// DefaultTable is the table that tracks the applied memory bank schema version.
const DefaultTable = "memory_schema_migrations"

// MigratorConfig is the configuration of the memory bank migrator.
type MigratorConfig struct {
	DB     *sql.DB
	Table  string
	Logger log.Logger
}

func (c *MigratorConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sqlite.Migrator"})
	return nil
}

// Migrator applies the memory bank schema.
type Migrator struct {
	db     *sql.DB
	table  string
	logger log.Logger
}

// NewMigrator returns a new memory bank migrator.
func NewMigrator(cfg MigratorConfig) (*Migrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Migrator{
		db:     cfg.DB,
		table:  cfg.Table,
		logger: cfg.Logger,
	}, nil
}

// Up brings the schema to the latest version.
func (m *Migrator) Up(ctx context.Context) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		from := currentVersion(mg)
		if err := mg.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				m.logger.Debugf("Memory bank schema up to date at version %d", from)
				return nil
			}
			return fmt.Errorf("could not apply schema: %w", err)
		}
		m.logger.Debugf("Memory bank schema migrated from version %d to %d", from, currentVersion(mg))
		return nil
	})
}

// Down removes the whole schema.
func (m *Migrator) Down(ctx context.Context) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := mg.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not remove schema: %w", err)
		}
		m.logger.Debugf("Memory bank schema removed")
		return nil
	})
}

// Version returns the applied schema version, 0 when nothing is applied. A
// dirty version means a migration failed halfway and is returned as an error.
func (m *Migrator) Version(ctx context.Context) (uint, error) {
	var version uint
	err := m.with(ctx, func(mg *migrate.Migrate) error {
		v, dirty, err := mg.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			return nil
		case err != nil:
			return fmt.Errorf("could not get schema version: %w", err)
		case dirty:
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version = v
		return nil
	})
	return version, err
}

func (m *Migrator) with(ctx context.Context, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{MigrationsTable: m.table})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(schema, "sql")
	if err != nil {
		return fmt.Errorf("could not load embedded schema: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Warningf("Could not close schema source: %s", err)
		}
	}()

	mg, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	return fn(mg)
}

func currentVersion(mg *migrate.Migrate) uint {
	v, _, err := mg.Version()
	if err != nil {
		return 0
	}
	return v
}
