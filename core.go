package pubquery

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Core is the module's entry point: it wires the connection pool, the
// circuit breaker, the query cache, and the pluggable logger/metrics
// together, the same role the teacher's KintsNorm struct plays for its ORM.
// Every predefined query constructor and the Table Controller / Graph
// Materializer take a *Core (or the *ComposedQuery it mints) as their only
// database dependency.
type Core struct {
	pool    *pgxpool.Pool
	config  *Config
	logger  Logger
	logMode LogMode
	metrics Metrics
	cache   Cache
	breaker *circuitBreaker

	logContextFields   func(ctx context.Context) []Field
	slowQueryThreshold time.Duration
	maskParams         bool

	// testExec, when set, is returned by executer() in place of pool/breaker
	// wiring. It exists solely so tests can exercise the Predefined Query
	// Constructors and the pipelines built on top of them (Table Controller,
	// Graph Materializer) against a fakeExec without a live pgx pool.
	testExec dbExecuter
}

// New creates a Core, opening the pgx pool and, if enabled, the circuit
// breaker described by cfg.
func New(cfg *Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	pool, err := newPool(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	c := &Core{
		pool:               pool,
		config:             cfg,
		logger:             options.logger,
		logMode:            options.logMode,
		metrics:            options.metrics,
		cache:              options.cache,
		logContextFields:   options.logContextFields,
		slowQueryThreshold: options.slowQueryThreshold,
		maskParams:         options.maskParams,
	}
	if c.cache == nil {
		lc, lerr := NewLRUCache(cfg.cacheSize())
		if lerr != nil {
			return nil, lerr
		}
		c.cache = lc
	}
	if cfg.CircuitBreakerEnabled {
		c.breaker = newCircuitBreaker(circuitBreakerConfig{
			failureThreshold:    defaultIfZeroInt(cfg.CircuitFailureThreshold, 5),
			openTimeout:         defaultIfZeroDuration(cfg.CircuitOpenTimeout, 30*time.Second),
			halfOpenMaxInFlight: defaultIfZeroInt(cfg.CircuitHalfOpenMaxCalls, 1),
			onStateChange: func(state, label string) {
				if c.metrics != nil {
					c.metrics.ErrorCount("circuit_" + state + "_" + label)
				}
				if c.logger != nil {
					c.logger.Warn("circuit_breaker_state_change",
						Field{Key: "state", Value: state},
						Field{Key: "table", Value: label})
				}
			},
		})
	}
	return c, nil
}

// NewWithConnString creates a Core from a full pgx connection string,
// bypassing Config entirely (used by tests and ad-hoc tooling).
func NewWithConnString(connString string, opts ...Option) (*Core, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	pool, err := newPoolFromConnString(context.Background(), connString)
	if err != nil {
		return nil, err
	}
	c := &Core{
		pool:               pool,
		logger:             options.logger,
		logMode:            options.logMode,
		metrics:            options.metrics,
		cache:              options.cache,
		logContextFields:   options.logContextFields,
		slowQueryThreshold: options.slowQueryThreshold,
		maskParams:         options.maskParams,
	}
	if c.cache == nil {
		c.cache = NoopCache{}
	}
	return c, nil
}

// makeLogFields builds structured fields honoring the context extractor and
// parameter masking option, mirroring the teacher's makeLogFields.
func (core *Core) makeLogFields(ctx context.Context, query string, args []any) []Field {
	fields := make([]Field, 0, 4)
	if core != nil && core.logContextFields != nil {
		if ctxFields := core.logContextFields(ctx); len(ctxFields) > 0 {
			fields = append(fields, ctxFields...)
		}
	}
	fields = append(fields, Field{Key: "sql", Value: query})
	if core != nil && core.maskParams {
		fields = append(fields, Field{Key: "args", Value: "[masked]"})
	} else {
		fields = append(fields, Field{Key: "args", Value: args})
	}
	return fields
}

func defaultIfZeroInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultIfZeroDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// Close gracefully closes the connection pool. The Connection Pool
// Adapter's close() operation (spec.md §4.5).
func (core *Core) Close() error {
	if core.pool != nil {
		core.pool.Close()
	}
	return nil
}

// Health performs a simple health check against the database.
func (core *Core) Health(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return healthCheck(ctx, core.pool)
}

// Pool exposes the underlying pgx pool.
func (core *Core) Pool() *pgxpool.Pool { return core.pool }

func (core *Core) executer() dbExecuter {
	if core.testExec != nil {
		return core.testExec
	}
	var exec dbExecuter = core.pool
	if core.breaker != nil {
		exec = breakerExecuter{core: core, exec: exec}
	}
	return exec
}
