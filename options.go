package pubquery

import (
	"context"
	"time"
)

type options struct {
	logger  Logger
	metrics Metrics
	cache   Cache
	logMode LogMode

	logContextFields   func(ctx context.Context) []Field
	slowQueryThreshold time.Duration
	maskParams         bool
}

// Option configures a Core at construction time.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:             NoopLogger{},
		metrics:            NoopMetrics{},
		cache:              nil,
		logMode:            LogSilent,
		logContextFields:   nil,
		slowQueryThreshold: 0,
		maskParams:         false,
	}
}

func WithLogger(l Logger) Option   { return func(o *options) { o.logger = l } }
func WithMetrics(m Metrics) Option { return func(o *options) { o.metrics = m } }

// WithCache overrides the default LRUCache, e.g. with a RedisCache for a
// process-shared query cache.
func WithCache(c Cache) Option { return func(o *options) { o.cache = c } }

// WithLogMode sets the global query-logging verbosity.
func WithLogMode(mode LogMode) Option { return func(o *options) { o.logMode = mode } }

// WithLogContextFields registers a function to derive structured log fields
// from context (e.g. request/correlation IDs).
func WithLogContextFields(fn func(ctx context.Context) []Field) Option {
	return func(o *options) { o.logContextFields = fn }
}

// WithSlowQueryThreshold enables slow-query warnings above the given duration.
func WithSlowQueryThreshold(threshold time.Duration) Option {
	return func(o *options) { o.slowQueryThreshold = threshold }
}

// WithLogParameterMasking hides bound parameter values from logs.
func WithLogParameterMasking(mask bool) Option {
	return func(o *options) { o.maskParams = mask }
}
