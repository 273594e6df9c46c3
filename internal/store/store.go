package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrNotFound is returned by KV.Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// KV is the storage port used by the gateway and the monitor. Writes are
// last-writer-wins per key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Config.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Config selects and configures a KV backend.
type Config struct {
	Backend     string      `mapstructure:"backend"`
	SQLitePath  string      `mapstructure:"sqlite_path"`
	BadgerPath  string      `mapstructure:"badger_path"`
	Redis       RedisConfig `mapstructure:"redis"`
	PostgresURL string      `mapstructure:"postgres_url"`
}

// Open builds the configured backend. An empty SQLite path resolves to
// DefaultDBPath.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (KV, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case "", BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		} else if err := EnsureDir(path); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		logger.Debug("opening store", zap.String("path", path))
		return NewSQLite(ctx, path)
	case BackendBadger:
		bc := DefaultBadgerConfig()
		bc.Path = cfg.BadgerPath
		if bc.Path == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			bc.Path = filepath.Join(filepath.Dir(p), "badger")
		}
		bc.Logger = logger
		logger.Debug("opening store", zap.String("path", bc.Path))
		return NewBadger(bc)
	case BackendRedis:
		return NewRedis(ctx, cfg.Redis)
	case BackendPostgres:
		return NewPostgres(ctx, cfg.PostgresURL)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}

// DefaultDBPath resolves the database file path in priority order:
// 1. STUDYBUDDY_DB environment variable
// 2. $XDG_DATA_HOME/studybuddy/studybuddy.db
// 3. ~/.local/share/studybuddy/studybuddy.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("STUDYBUDDY_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "studybuddy", "studybuddy.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
