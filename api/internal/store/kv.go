package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownDriver = errors.New("store: unknown driver")

// KV: хранилище документов "ключ → строка". История лежит одним документом.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

type Options struct {
	Driver     string // memory | sqlite | postgres
	SQLitePath string
	DSN        string
}

// Open выбирает реализацию по имени драйвера и готовит схему.
func Open(ctx context.Context, o Options) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(o.Driver)) {
	case "", "memory":
		return NewMemoryKV(), nil
	case "sqlite":
		return OpenSQLite(ctx, o.SQLitePath)
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(ctx, o.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, o.Driver)
	}
}
