// Package database provides database driver abstraction for extensibility.
// Currently only SQLite is supported, but the interface allows for future
// support of PostgreSQL, MySQL, and other relational databases.
package database

import "gorm.io/gorm"

// Driver abstracts one relational backend
type Driver interface {
	// Name returns the driver name (e.g., "sqlite", "postgres", "mysql")
	Name() string

	// Open opens a database connection and returns a GORM dialector
	Open(dsn string) (gorm.Dialector, error)

	// PreMigrationConfig applies settings needed before migration runs,
	// such as the connection pool and WAL mode. Foreign key enforcement
	// must wait until after migration.
	PreMigrationConfig(db *gorm.DB) error

	// PostMigrationConfig applies settings that require the final
	// schema, such as foreign key enforcement
	PostMigrationConfig(db *gorm.DB) error
}
