// Package pg implements the durable stores on PostgreSQL via pgxpool.
// Every mutation runs in a transaction and appends its activity row
// before committing.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/observability/logger"
	"github.com/healthguard/surveillance/internal/store/core"
)

// Options tunes the connection pool. Zero values keep pgxpool defaults.
type Options struct {
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxLifetime string
}

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New parses the DSN, applies pool tuning and pings once. A failed ping
// is fatal here: the process has nothing to serve without its database.
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(opts.MaxOpenConns)
	}
	if opts.MinIdleConns > 0 {
		pcfg.MinConns = int32(opts.MinIdleConns)
	}
	if opts.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(opts.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	log := logger.Named("store.pg")
	log.Info("pool ready", zap.Int32("max_conns", pcfg.MaxConns))
	return &Store{pool: pool, log: log}, nil
}

// Pool exposes the underlying pool for migrations and pool metrics.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping satisfies the health prober.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close shuts the pool down. Idempotent.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// inTx runs fn inside a transaction, committing on nil error.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isUniqueViolation reports a 23505 from postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// notFound maps pgx's no-rows to the domain sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}
