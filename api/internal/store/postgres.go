package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresKV struct{ DB *sql.DB }

func NewPostgresKV(db *sql.DB) *PostgresKV { return &PostgresKV{DB: db} }

// OpenPostgres открывает пул через pgx stdlib, пингует и создаёт таблицу.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresKV, error) {
	if dsn == "" {
		return nil, errors.New("store: postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	kv := NewPostgresKV(db)
	if err := kv.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return kv, nil
}

func (r *PostgresKV) EnsureSchema(ctx context.Context) error {
	const q = `
create table if not exists kv_store(
    key        text primary key,
    value      text not null,
    updated_at timestamptz not null default now()
)`
	if _, err := r.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `select value from kv_store where key=$1`
	var v string
	err := r.DB.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set: upsert по ключу.
func (r *PostgresKV) Set(ctx context.Context, key, value string) error {
	const q = `
insert into kv_store(key, value)
values ($1,$2)
on conflict (key)
do update set value=excluded.value, updated_at=now()`
	_, err := r.DB.ExecContext(ctx, q, key, value)
	return err
}

func (r *PostgresKV) Close() error { return r.DB.Close() }

// Ping: для /healthz.
func (r *PostgresKV) Ping(ctx context.Context) error { return r.DB.PingContext(ctx) }
