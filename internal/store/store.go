package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options controls connection-pool behaviour.
type Options struct {
	MaxConns               int32
	MinConns               int32
	MaxConnIdleTime        time.Duration
	MaxConnLifetime        time.Duration
	ConnTimeout            time.Duration
	StatementCacheCapacity int
	Logger                 zerolog.Logger
}

// PoolStats is a driver-neutral snapshot of connection pool usage.
type PoolStats struct {
	Acquired int64
	Idle     int64
	Total    int64
}

// Store hides direct access to the underlying connection pool so higher layers
// can focus on query logic. Exactly one of pool or db is set, depending on the driver.
type Store struct {
	driver string
	pool   *pgxpool.Pool
	db     *sql.DB
	logger zerolog.Logger
	opts   Options
}

// New initializes a connection pool for the given driver and validates connectivity with Ping.
func New(ctx context.Context, driver, dbURL string, opts Options) (*Store, error) {
	logger := opts.Logger.With().Str("component", "store").Str("driver", driver).Logger()
	logger.Info().
		Int32("max_conns", opts.MaxConns).
		Int32("min_conns", opts.MinConns).
		Dur("max_idle", opts.MaxConnIdleTime).
		Dur("max_life", opts.MaxConnLifetime).
		Int("stmt_cache", opts.StatementCacheCapacity).
		Msg("initializing connection pool")

	connCtx := ctx
	if opts.ConnTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, opts.ConnTimeout)
		defer cancel()
	}

	st := &Store{driver: driver, logger: logger, opts: opts}
	var err error
	switch driver {
	case DriverPostgres:
		st.pool, err = openPostgres(connCtx, dbURL, opts)
	case DriverMySQL:
		st.db, err = openMySQL(connCtx, dbURL, opts)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("database connection established")
	return st, nil
}

func openPostgres(ctx context.Context, dbURL string, opts Options) (*pgxpool.Pool, error) {
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
	// A zero capacity disables the statement cache, so fall back to describe-exec.
	if opts.StatementCacheCapacity > 0 {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		cfg.ConnConfig.StatementCacheCapacity = opts.StatementCacheCapacity
	} else {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
		cfg.ConnConfig.StatementCacheCapacity = 0
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func openMySQL(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	if opts.ConnTimeout > 0 {
		cfg.Timeout = opts.ConnTimeout
	}
	// Report matched rather than changed rows so an unchanged UPDATE still finds its row.
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("build mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
		db.SetMaxIdleConns(int(opts.MaxConns))
	}
	if opts.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.MaxConnIdleTime)
	}
	if opts.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(opts.MaxConnLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// NewWithPool wraps an existing pgx pool. The caller keeps ownership of the pool.
func NewWithPool(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{driver: DriverPostgres, pool: pool, logger: logger}
}

// NewWithDB wraps an existing MySQL *sql.DB. The caller keeps ownership of the handle.
func NewWithDB(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{driver: DriverMySQL, db: db, logger: logger}
}

// Close releases database resources.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.logger.Info().Msg("closing connection pool")
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close mysql handle")
		}
	}
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || (s.pool == nil && s.db == nil) {
		return fmt.Errorf("store not initialized")
	}
	checkCtx := ctx
	if s.opts.ConnTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, s.opts.ConnTimeout)
		defer cancel()
	}
	if s.pool != nil {
		return s.pool.Ping(checkCtx)
	}
	return s.db.PingContext(checkCtx)
}

// Driver reports which backend the store talks to.
func (s *Store) Driver() string {
	return s.driver
}

// Pool exposes the underlying pgx pool for repositories. Nil for mysql.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// DB exposes the underlying database/sql handle for repositories. Nil for postgres.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Stats exposes pool statistics for observability.
func (s *Store) Stats() PoolStats {
	switch {
	case s == nil:
		return PoolStats{}
	case s.pool != nil:
		st := s.pool.Stat()
		return PoolStats{
			Acquired: int64(st.AcquiredConns()),
			Idle:     int64(st.IdleConns()),
			Total:    int64(st.TotalConns()),
		}
	case s.db != nil:
		st := s.db.Stats()
		return PoolStats{
			Acquired: int64(st.InUse),
			Idle:     int64(st.Idle),
			Total:    int64(st.OpenConnections),
		}
	}
	return PoolStats{}
}
