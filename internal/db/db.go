package db

import (
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/garywanggali/think-first/internal/dialogue"
	"github.com/garywanggali/think-first/internal/models"
)

const sqlitePrefix = "sqlite://"

// Connect opens MySQL for a regular DSN and SQLite for "sqlite://<path>".
func Connect(dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if strings.HasPrefix(dsn, sqlitePrefix) {
		path := strings.TrimPrefix(dsn, sqlitePrefix)
		gdb, err := gorm.Open(gormsqlite.Open(path+"?_pragma=foreign_keys(1)"), gcfg)
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		return gdb, nil
	}

	gdb, err := gorm.Open(mysql.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&dialogue.Conversation{},
		&dialogue.Interaction{},
		&dialogue.Review{},
		&dialogue.Job{},
	)
}
