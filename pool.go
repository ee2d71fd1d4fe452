package pubquery

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// newPool builds a pgxpool.Pool from a typed Config, the Connection Pool
// Adapter's construction path (spec.md §4.5: min_size/max_size map onto
// MinConnections/MaxConnections, autocommit=true and row-format=mapping are
// pgx's defaults and are never overridden).
func newPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	conf, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, err
	}
	if mc := cfg.poolMaxConns(); mc > 0 {
		conf.MaxConns = mc
	}
	if cfg.MinConnections > 0 {
		conf.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		conf.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		conf.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		conf.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	return pgxpool.NewWithConfig(ctx, conf)
}

func newPoolFromConnString(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	conf, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, conf)
}

func healthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil pool")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	if err := pool.QueryRow(ctx, "select 1").Scan(&one); err != nil {
		return err
	}
	if one != 1 {
		return errors.New("health check failed")
	}
	return nil
}

// Connection is the scoped handle returned by Core.Checkout: the pool
// adapter's checkout() operation from spec.md §4.5. Release must be called
// on every exit path; Connection never outlives the request that checked
// it out.
type Connection struct {
	tx      pgx.Tx
	Release func(context.Context) error
}

// Execute runs sql with already-driver-ordered args against the checked-out
// connection: the pool adapter's execute(conn, sql, named_params) operation.
// The core is read-only, so Execute is scan-agnostic; callers fetch rows via
// Query and map them themselves, same as the QueryBuilder does against the pool.
func (c *Connection) Execute(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.tx.Query(ctx, sql, args...)
}

// Checkout acquires a connection from the pool, scoped to the caller: the
// Connection Pool Adapter's checkout() operation. The core's query paths run
// directly against the pool (pgxpool multiplexes internally and more
// cheaply than a held transaction per statement); Checkout exists for
// callers that need a single connection's worth of sequential statements.
func (core *Core) Checkout(ctx context.Context) (*Connection, error) {
	if core.breaker != nil {
		if err := core.breaker.before("checkout"); err != nil {
			return nil, wrapBackendError(err, "", nil)
		}
	}
	tx, err := core.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		if core.breaker != nil {
			core.breaker.after("checkout", err)
		}
		return nil, wrapBackendError(err, "", nil)
	}
	if core.breaker != nil {
		core.breaker.after("checkout", nil)
	}
	return &Connection{
		tx:      tx,
		Release: func(c context.Context) error { return tx.Rollback(c) },
	}, nil
}
