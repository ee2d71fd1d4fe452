package pubquery

import (
	"fmt"
	"time"
)

// Config holds the connection parameters and the dynamic-config keys the
// core consumes from an external loader (spec.md §6). Unknown keys passed
// to ConfigFromMap are rejected rather than silently ignored, per the
// design note that the dynamic-config map must be a typed, enumerated
// structure.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxConnections    int32
	MinConnections    int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	ApplicationName   string

	// Circuit breaker
	CircuitBreakerEnabled   bool
	CircuitFailureThreshold int
	CircuitOpenTimeout      time.Duration
	CircuitHalfOpenMaxCalls int

	// Dynamic-config keys (spec.md §6)
	MaxActiveTransactions int // bounds BFS / pair-enrichment fan-out concurrency
	MaxPoolTransactions   int // pgxpool MaxConns; takes precedence over MaxConnections when set
	MaxOverviewRows       int // default page size for table overviews
	MaxGenerativeDepth    int // upper bound on BFS depth accepted by the Graph Materializer
	MaxTuplePerQuery      int // max batch width B for VALUES-joined batched queries

	// HandleTTL overrides the Table Controller's handle expiry (default 24h).
	HandleTTL time.Duration

	// CacheSize overrides the QueryBuilder LRU cache capacity (default 1000).
	CacheSize int
}

// ConnString returns a pgx-compatible connection string.
func (c *Config) ConnString() string {
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s application_name=%s connect_timeout=%d",
		host, port, c.Database, c.Username, c.Password, ssl, c.ApplicationName,
		int(c.ConnectTimeout.Seconds()),
	)
}

func (c *Config) poolMaxConns() int32 {
	if c.MaxPoolTransactions > 0 {
		return int32(c.MaxPoolTransactions)
	}
	return c.MaxConnections
}

func (c *Config) overviewLimit() int {
	if c.MaxOverviewRows > 0 {
		return c.MaxOverviewRows
	}
	return 100
}

func (c *Config) batchWidth() int {
	if c.MaxTuplePerQuery > 0 {
		return c.MaxTuplePerQuery
	}
	return 200
}

func (c *Config) maxDepth() int {
	if c.MaxGenerativeDepth > 0 {
		return c.MaxGenerativeDepth
	}
	return 5
}

func (c *Config) fanoutConcurrency() int64 {
	if c.MaxActiveTransactions > 0 {
		return int64(c.MaxActiveTransactions)
	}
	return 8
}

func (c *Config) handleTTL() time.Duration {
	if c.HandleTTL > 0 {
		return c.HandleTTL
	}
	return 24 * time.Hour
}

func (c *Config) cacheSize() int {
	if c.CacheSize > 0 {
		return c.CacheSize
	}
	return 1000
}

// configKeys enumerates the recognized keys for ConfigFromMap.
var configKeys = map[string]bool{
	"db_url": true, "db_name": true, "db_user": true, "db_password": true,
	"db_port": true, "db_host": true, "db_sslmode": true,
	"max_active_transactions": true, "max_pool_transactions": true,
	"max_overview_rows": true, "max_generative_depth": true,
	"max_tuple_per_query": true, "application_name": true,
	"circuit_breaker_enabled": true, "circuit_failure_threshold": true,
	"circuit_open_timeout_seconds": true,
}

// ConfigFromMap builds a Config from a loosely-typed map, as handed over by
// the (out-of-scope) external config file loader. It rejects unknown keys.
func ConfigFromMap(m map[string]any) (*Config, error) {
	for k := range m {
		if !configKeys[k] {
			return nil, &CoreError{Kind: KindBadRequest, Message: fmt.Sprintf("unknown config key %q", k)}
		}
	}
	cfg := &Config{}
	if v, ok := m["db_host"].(string); ok {
		cfg.Host = v
	}
	if v, ok := m["db_url"].(string); ok && cfg.Host == "" {
		cfg.Host = v
	}
	if v, ok := m["db_name"].(string); ok {
		cfg.Database = v
	}
	if v, ok := m["db_user"].(string); ok {
		cfg.Username = v
	}
	if v, ok := m["db_password"].(string); ok {
		cfg.Password = v
	}
	if v, ok := m["db_sslmode"].(string); ok {
		cfg.SSLMode = v
	}
	if v, ok := intFromAny(m["db_port"]); ok {
		cfg.Port = v
	}
	if v, ok := intFromAny(m["max_active_transactions"]); ok {
		cfg.MaxActiveTransactions = v
	}
	if v, ok := intFromAny(m["max_pool_transactions"]); ok {
		cfg.MaxPoolTransactions = v
	}
	if v, ok := intFromAny(m["max_overview_rows"]); ok {
		cfg.MaxOverviewRows = v
	}
	if v, ok := intFromAny(m["max_generative_depth"]); ok {
		cfg.MaxGenerativeDepth = v
	}
	if v, ok := intFromAny(m["max_tuple_per_query"]); ok {
		cfg.MaxTuplePerQuery = v
	}
	if v, ok := m["application_name"].(string); ok {
		cfg.ApplicationName = v
	}
	if v, ok := m["circuit_breaker_enabled"].(bool); ok {
		cfg.CircuitBreakerEnabled = v
	}
	if v, ok := intFromAny(m["circuit_failure_threshold"]); ok {
		cfg.CircuitFailureThreshold = v
	}
	if v, ok := intFromAny(m["circuit_open_timeout_seconds"]); ok {
		cfg.CircuitOpenTimeout = time.Duration(v) * time.Second
	}
	return cfg, nil
}

func intFromAny(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
