// Package db opens the SQLite database that backs the transaction store.
package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pushchain/push-wallet-link/walletlink/store"
)

// InMemorySQLiteDSN opens an ephemeral database that lives as long as its connection.
const InMemorySQLiteDSN = ":memory:"

const dirPerm = 0o750

// pragmas applied to file backed databases after opening
var filePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// DB owns a gorm handle over a single SQLite connection.
type DB struct {
	client *gorm.DB
}

// OpenFileDB opens dir/filename, creating dir when missing.
func OpenFileDB(dir, filename string, migrateSchema bool) (*DB, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
	}
	d, err := open(filepath.Join(dir, filename), migrateSchema)
	if err != nil {
		return nil, err
	}
	for _, pragma := range filePragmas {
		if err := d.client.Exec(pragma).Error; err != nil {
			_ = d.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}
	return d, nil
}

// OpenInMemoryDB opens a database that is discarded on Close.
func OpenInMemoryDB(migrateSchema bool) (*DB, error) {
	return open(InMemorySQLiteDSN, migrateSchema)
}

func open(dsn string, migrateSchema bool) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database %s", dsn)
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// one connection so :memory: is shared and writers never contend
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	d := &DB{client: client}
	if migrateSchema {
		if err := client.AutoMigrate(&store.SubmittedTransaction{}, &store.StatusTransition{}); err != nil {
			_ = d.Close()
			return nil, errors.Wrap(err, "failed to migrate schema")
		}
	}
	return d, nil
}

// Client returns the gorm handle for queries
func (d *DB) Client() *gorm.DB {
	return d.client
}

// Close releases the connection
func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database")
}
