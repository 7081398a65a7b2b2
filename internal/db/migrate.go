package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationResult reports the schema version after a migration run.
type MigrationResult struct {
	Version uint
	Dirty   bool
	// Changed is false when the schema was already current.
	Changed bool
}

// NewMigrator opens a golang-migrate instance for the migrations directory.
func NewMigrator(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations path: %w", err)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", abs), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(databaseURL, migrationsPath string) (*MigrationResult, error) {
	m, err := NewMigrator(databaseURL, migrationsPath)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	result := &MigrationResult{Changed: true}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		result.Changed = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("read migration version: %w", err)
	}
	result.Version = version
	result.Dirty = dirty

	return result, nil
}
