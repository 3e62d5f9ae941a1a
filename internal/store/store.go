package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Schema states reported by SchemaVersion and HealthCheck.
var (
	ErrSchemaMissing = errors.New("store: schema not migrated")
	ErrSchemaDirty   = errors.New("store: schema left dirty by a failed migration")
	ErrSchemaBehind  = errors.New("store: schema version does not match binary")
)

const migrationsTable = "schema_migrations"

// Options tunes the pgx pool. Zero values keep the pgxpool defaults, and a
// negative StatementCacheCapacity leaves the query exec mode untouched.
type Options struct {
	MaxConns               int32
	MinConns               int32
	MaxConnIdleTime        time.Duration
	MaxConnLifetime        time.Duration
	ConnTimeout            time.Duration
	StatementCacheCapacity int
	Logger                 logrus.FieldLogger
}

// Store owns the ratings database pool. Repositories borrow the pool, while
// the store itself answers health and schema questions.
type Store struct {
	pool       *pgxpool.Pool
	logger     logrus.FieldLogger
	opts       Options
	wantSchema uint
}

// New connects to Postgres, pings it, and records the schema version the
// embedded migrations expect. The schema itself is checked by HealthCheck so
// a fresh database can still be migrated after startup.
func New(ctx context.Context, dbURL string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	want, err := LatestVersion()
	if err != nil {
		return nil, err
	}

	cfg, err := poolConfig(dbURL, opts)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"max_conns":  cfg.MaxConns,
		"min_conns":  cfg.MinConns,
		"stmt_cache": opts.StatementCacheCapacity,
		"schema":     want,
	}).Info("store: opening ratings database")

	connCtx, cancel := withOptionalTimeout(ctx, opts.ConnTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool, logger: logger, opts: opts, wantSchema: want}, nil
}

func poolConfig(dbURL string, opts Options) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.StatementCacheCapacity >= 0 {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		cfg.ConnConfig.StatementCacheCapacity = opts.StatementCacheCapacity
	}
	return cfg, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Close releases database resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.logger.Info("store: closing ratings database")
	s.pool.Close()
}

// SchemaVersion reads the version golang-migrate recorded for the database.
func (s *Store) SchemaVersion(ctx context.Context) (version uint, dirty bool, err error) {
	var v int64
	err = s.pool.QueryRow(ctx, "SELECT version, dirty FROM "+migrationsTable+" LIMIT 1").Scan(&v, &dirty)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "42P01") {
			return 0, false, ErrSchemaMissing
		}
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return uint(v), dirty, nil
}

// HealthCheck verifies the database is reachable and migrated to the
// version this binary was built with.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}
	checkCtx, cancel := withOptionalTimeout(ctx, s.opts.ConnTimeout)
	defer cancel()

	if err := s.pool.Ping(checkCtx); err != nil {
		return err
	}
	version, dirty, err := s.SchemaVersion(checkCtx)
	switch {
	case err != nil:
		return err
	case dirty:
		return fmt.Errorf("%w: version %d", ErrSchemaDirty, version)
	case version != s.wantSchema:
		return fmt.Errorf("%w: have %d, want %d", ErrSchemaBehind, version, s.wantSchema)
	}
	return nil
}

// Pool exposes the underlying pgx pool for repositories.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Stats returns pool statistics, or nil before the pool exists. It feeds the
// db pool collectors in the metrics package.
func (s *Store) Stats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}
