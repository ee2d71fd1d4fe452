package pubquery

import (
	"expvar"
	"time"
)

// ExpvarMetrics is a minimal stdlib Metrics adapter exposing counters under
// /debug/vars, for deployments that don't want a Prometheus dependency.
type ExpvarMetrics struct{}

var (
	expvarQueryCount        = expvar.NewInt("pubquery_query_count")
	expvarLastQueryMs       = expvar.NewInt("pubquery_last_query_ms")
	expvarCacheHits         = expvar.NewInt("pubquery_cache_hits")
	expvarCacheMisses       = expvar.NewInt("pubquery_cache_misses")
	expvarErrorCount        = expvar.NewMap("pubquery_error_count")
	expvarConnectionsActive = expvar.NewInt("pubquery_connections_active")
	expvarConnectionsIdle   = expvar.NewInt("pubquery_connections_idle")
)

func (ExpvarMetrics) QueryDuration(duration time.Duration, _ string) {
	expvarQueryCount.Add(1)
	expvarLastQueryMs.Set(duration.Milliseconds())
}
func (ExpvarMetrics) CacheHit(_ string)  { expvarCacheHits.Add(1) }
func (ExpvarMetrics) CacheMiss(_ string) { expvarCacheMisses.Add(1) }
func (ExpvarMetrics) ConnectionCount(active, idle int32) {
	expvarConnectionsActive.Set(int64(active))
	expvarConnectionsIdle.Set(int64(idle))
}
func (ExpvarMetrics) ErrorCount(kind string) {
	expvarErrorCount.Add(kind, 1)
}
