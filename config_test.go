package pubquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	c := &Config{}
	assert.Equal(t, 100, c.overviewLimit())
	assert.Equal(t, 200, c.batchWidth())
	assert.Equal(t, 5, c.maxDepth())
	assert.Equal(t, int64(8), c.fanoutConcurrency())
	assert.Equal(t, 24*time.Hour, c.handleTTL())
	assert.Equal(t, 1000, c.cacheSize())
	assert.Equal(t, int32(0), c.poolMaxConns())
}

func TestConfig_Overrides(t *testing.T) {
	c := &Config{
		MaxOverviewRows:       25,
		MaxTuplePerQuery:      50,
		MaxGenerativeDepth:    2,
		MaxActiveTransactions: 4,
		HandleTTL:             time.Minute,
		CacheSize:             10,
		MaxPoolTransactions:   16,
		MaxConnections:        4,
	}
	assert.Equal(t, 25, c.overviewLimit())
	assert.Equal(t, 50, c.batchWidth())
	assert.Equal(t, 2, c.maxDepth())
	assert.Equal(t, int64(4), c.fanoutConcurrency())
	assert.Equal(t, time.Minute, c.handleTTL())
	assert.Equal(t, 10, c.cacheSize())
	assert.Equal(t, int32(16), c.poolMaxConns(), "MaxPoolTransactions takes precedence over MaxConnections")
}

func TestConfig_ConnString(t *testing.T) {
	c := &Config{Database: "pubquery", Username: "reader", Password: "secret"}
	s := c.ConnString()
	assert.Contains(t, s, "host=localhost")
	assert.Contains(t, s, "port=5432")
	assert.Contains(t, s, "dbname=pubquery")
	assert.Contains(t, s, "sslmode=disable")
}

func TestConfigFromMap_RejectsUnknownKey(t *testing.T) {
	_, err := ConfigFromMap(map[string]any{"bogus_key": "x"})
	require.Error(t, err)
	var ce *CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindBadRequest, ce.Kind)
}

func TestConfigFromMap_Populates(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"db_host":                  "db.internal",
		"db_name":                  "pubquery",
		"max_active_transactions":  float64(6),
		"circuit_breaker_enabled":  true,
		"circuit_open_timeout_seconds": 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, "pubquery", cfg.Database)
	assert.Equal(t, 6, cfg.MaxActiveTransactions)
	assert.True(t, cfg.CircuitBreakerEnabled)
	assert.Equal(t, 30*time.Second, cfg.CircuitOpenTimeout)
}
