package pubquery

import "time"

// Metrics is the pluggable metrics sink every component reports through.
type Metrics interface {
	QueryDuration(duration time.Duration, query string)
	CacheHit(query string)
	CacheMiss(query string)
	ConnectionCount(active, idle int32)
	ErrorCount(kind string)
}

// NoopMetrics discards everything; it is the default when no sink is wired.
type NoopMetrics struct{}

func (NoopMetrics) QueryDuration(duration time.Duration, query string) {}
func (NoopMetrics) CacheHit(query string)                              {}
func (NoopMetrics) CacheMiss(query string)                             {}
func (NoopMetrics) ConnectionCount(active, idle int32)                 {}
func (NoopMetrics) ErrorCount(kind string)                             {}
