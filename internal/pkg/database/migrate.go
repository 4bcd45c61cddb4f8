package database

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/SubFox/internal/pkg/env"
)

// MigrationURL is the golang-migrate database URL for the configured server.
func MigrationURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "subfox"),
		env.GetEnv("DB_PASSWORD", "subfox"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "subfox_db"),
	)
}

// NewMigrator opens the SQL migrations in dir against the configured database.
func NewMigrator(dir string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+dir, MigrationURL())
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}
