// Database bootstrap
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if needed) the SQLite database at path and migrates
// every table the workflow engine uses.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database dir %s: %w", dir, err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// SQLite permits one writer; a single pooled connection queues
	// concurrent transactions instead of failing them with SQLITE_BUSY.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return gdb, nil
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&User{},
		&Project{},
		&ProjectMember{},
		&ProjectInvitation{},
		&Message{},
		&Issue{},
		&Proposal{},
		&ProposalPoint{},
		&Agreement{},
		&Signature{},
		&Estate{},
	)
}
