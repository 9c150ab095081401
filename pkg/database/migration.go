package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrator runs schema migrations from an embedded filesystem.
type Migrator struct {
	db      *DB
	migrate *migrate.Migrate
}

// NewMigrator creates a migrator over the given embedded migration files.
func NewMigrator(db *DB, migrations embed.FS, path string) (*Migrator, error) {
	src, err := iofs.New(migrations, path)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db.Conn(), &postgres.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    db.Name(),
	})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, db.Name(), driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &Migrator{db: db, migrate: m}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.migrate.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	if err := m.migrate.Down(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Force sets the schema version without running migrations.
func (m *Migrator) Force(version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Version reports the current schema version and dirty flag.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migrator's source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	if srcErr != nil {
		return fmt.Errorf("close migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration database: %w", dbErr)
	}
	return nil
}

// AutoMigrate applies pending migrations under a postgres advisory lock so
// concurrent service starts do not race.
func AutoMigrate(ctx context.Context, db *DB, migrations embed.FS, path string) error {
	var locked bool
	if err := db.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&locked); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("migration lock already held")
	}
	defer func() {
		var unlocked bool
		_ = db.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID).Scan(&unlocked)
	}()

	m, err := NewMigrator(db, migrations, path)
	if err != nil {
		return err
	}
	defer m.Close()

	if _, dirty, err := m.Version(); err != nil {
		return err
	} else if dirty {
		return fmt.Errorf("schema is dirty; manual intervention required")
	}

	return m.Up()
}

const migrationLockID = 7241
