// Package metrics keeps process-wide operational counters.
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var counters struct {
	UpstreamRequests atomic.Int64
	UpstreamRetries  atomic.Int64
	UpstreamErrors   atomic.Int64
	EmbeddingCalls   atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	Refreshes        atomic.Int64
	RefreshErrors    atomic.Int64
	TrendQueries     atomic.Int64
}

var order = []string{
	"upstream_requests", "upstream_retries", "upstream_errors",
	"embedding_calls",
	"cache_hits", "cache_misses",
	"refreshes", "refresh_errors",
	"trend_queries",
}

// Snapshot returns the current value of every counter.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"upstream_requests": counters.UpstreamRequests.Load(),
		"upstream_retries":  counters.UpstreamRetries.Load(),
		"upstream_errors":   counters.UpstreamErrors.Load(),
		"embedding_calls":   counters.EmbeddingCalls.Load(),
		"cache_hits":        counters.CacheHits.Load(),
		"cache_misses":      counters.CacheMisses.Load(),
		"refreshes":         counters.Refreshes.Load(),
		"refresh_errors":    counters.RefreshErrors.Load(),
		"trend_queries":     counters.TrendQueries.Load(),
	}
}

// Format renders counters as "name value" lines for the HTTP endpoint.
func Format() string {
	m := Snapshot()
	var sb strings.Builder
	for _, k := range order {
		fmt.Fprintf(&sb, "commenttrends_%s %d\n", k, m[k])
	}
	return sb.String()
}

func IncrUpstreamRequests() { counters.UpstreamRequests.Add(1) }
func IncrUpstreamRetries()  { counters.UpstreamRetries.Add(1) }
func IncrUpstreamErrors()   { counters.UpstreamErrors.Add(1) }
func IncrEmbeddingCalls()   { counters.EmbeddingCalls.Add(1) }
func IncrCacheHits()        { counters.CacheHits.Add(1) }
func IncrCacheMisses()      { counters.CacheMisses.Add(1) }
func IncrRefreshes()        { counters.Refreshes.Add(1) }
func IncrRefreshErrors()    { counters.RefreshErrors.Add(1) }
func IncrTrendQueries()     { counters.TrendQueries.Add(1) }
