// Package database opens the gorm connection shared by the override engine
// and the audit store, and provides the JSON column types both use.
package database

import (
	"fmt"
	"os"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database types.
const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

// Config selects the database dialect and connection string.
type Config struct {
	Type     string `yaml:"type" mapstructure:"type"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	LogLevel string `yaml:"logLevel" mapstructure:"logLevel"` // silent, error, warn, info
}

// ConfigFromEnv fills empty fields from DATABASE_TYPE and DATABASE_DSN.
func (c Config) ConfigFromEnv() Config {
	if c.Type == "" {
		c.Type = os.Getenv("DATABASE_TYPE")
	}
	if c.DSN == "" {
		c.DSN = os.Getenv("DATABASE_DSN")
	}
	if c.Type == "" {
		c.Type = TypePostgres
	}
	return c
}

// Open connects to the configured database.
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required (use --db-dsn or DATABASE_DSN)")
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case TypePostgres, "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case TypeMySQL:
		dialector = mysql.Open(cfg.DSN)
	case TypeSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected postgres, mysql or sqlite)", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}
	if dialector.Name() == TypeSQLite {
		// One connection: sqlite serializes writers, and ":memory:" is per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
