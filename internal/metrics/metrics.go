// Package metrics provides in-process metrics collection for the engine.
package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

// Metrics holds all engine metrics.
type Metrics struct {
	// Mutation metrics
	DocumentsIndexed atomic.Int64
	DocumentsUpdated atomic.Int64
	DocumentsRemoved atomic.Int64
	BulkUpdates      atomic.Int64

	// Search metrics
	SearchCount     atomic.Int64
	SearchErrors    atomic.Int64
	SearchDuration  atomic.Int64 // milliseconds, cumulative
	RegexTimeouts   atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	CacheEvictions  atomic.Int64

	// System metrics
	StartTime time.Time
	Version   string
	Commit    string

	customCounters   map[string]*atomic.Int64
	customGauges     map[string]*atomic.Int64
	customHistograms map[string]*histogram
	mu               sync.RWMutex
}

type histogram struct {
	buckets []int64
	counts  []atomic.Int64
	sum     atomic.Int64
	count   atomic.Int64
}

var (
	globalMetrics *Metrics
	once          sync.Once
)

// Initialize initializes the global metrics instance.
func Initialize(version, commit string) *Metrics {
	once.Do(func() {
		globalMetrics = &Metrics{
			StartTime:        time.Now(),
			Version:          version,
			Commit:           commit,
			customCounters:   make(map[string]*atomic.Int64),
			customGauges:     make(map[string]*atomic.Int64),
			customHistograms: make(map[string]*histogram),
		}
	})
	return globalMetrics
}

// Get returns the global metrics instance, initializing defaults if needed.
func Get() *Metrics {
	if globalMetrics == nil {
		return Initialize("0.1.0", "unknown")
	}
	return globalMetrics
}

// RecordIndexed increments the documents-indexed counter.
func (m *Metrics) RecordIndexed(n int) {
	m.DocumentsIndexed.Add(int64(n))
}

// RecordUpdated increments the documents-updated counter.
func (m *Metrics) RecordUpdated() {
	m.DocumentsUpdated.Add(1)
}

// RecordRemoved increments the documents-removed counter.
func (m *Metrics) RecordRemoved() {
	m.DocumentsRemoved.Add(1)
}

// RecordBulkUpdate increments the bulk-update counter.
func (m *Metrics) RecordBulkUpdate() {
	m.BulkUpdates.Add(1)
}

// RecordSearch records one search invocation.
func (m *Metrics) RecordSearch(duration time.Duration, err error) {
	m.SearchCount.Add(1)
	m.SearchDuration.Add(duration.Milliseconds())
	if err != nil {
		m.SearchErrors.Add(1)
	}
}

// RecordRegexTimeout increments the regex-traversal-timeout counter.
func (m *Metrics) RecordRegexTimeout() {
	m.RegexTimeouts.Add(1)
}

// RecordCacheHit increments the cache-hit counter.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Add(1)
}

// RecordCacheMiss increments the cache-miss counter.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Add(1)
}

// RecordCacheEviction increments the cache-eviction counter.
func (m *Metrics) RecordCacheEviction() {
	m.CacheEvictions.Add(1)
}

// IncrementCounter increments a custom named counter.
func (m *Metrics) IncrementCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, ok := m.customCounters[name]; ok {
		counter.Add(1)
	} else {
		newCounter := &atomic.Int64{}
		newCounter.Add(1)
		m.customCounters[name] = newCounter
	}
}

// SetGauge sets a custom named gauge value.
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, ok := m.customGauges[name]; ok {
		gauge.Store(value)
	} else {
		newGauge := &atomic.Int64{}
		newGauge.Store(value)
		m.customGauges[name] = newGauge
	}
}

// RecordHistogram records a value in a named histogram.
func (m *Metrics) RecordHistogram(name string, value int64, buckets []int64) {
	m.mu.Lock()
	h, ok := m.customHistograms[name]
	if !ok {
		h = &histogram{
			buckets: buckets,
			counts:  make([]atomic.Int64, len(buckets)+1),
		}
		m.customHistograms[name] = h
	}
	m.mu.Unlock()

	h.sum.Add(value)
	h.count.Add(1)

	for i, bucket := range buckets {
		if value <= bucket {
			h.counts[i].Add(1)
			return
		}
	}
	h.counts[len(buckets)].Add(1)
}

// GetUptime returns elapsed time since Initialize.
func (m *Metrics) GetUptime() time.Duration {
	return time.Since(m.StartTime)
}

// Snapshot returns a point-in-time view of all metrics, suitable for
// get_stats and logging.
func (m *Metrics) Snapshot() map[string]any {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	customCounters := make(map[string]int64, len(m.customCounters))
	for name, counter := range m.customCounters {
		customCounters[name] = counter.Load()
	}
	customGauges := make(map[string]int64, len(m.customGauges))
	for name, gauge := range m.customGauges {
		customGauges[name] = gauge.Load()
	}
	m.mu.RUnlock()

	return map[string]any{
		"documents": map[string]int64{
			"indexed": m.DocumentsIndexed.Load(),
			"updated": m.DocumentsUpdated.Load(),
			"removed": m.DocumentsRemoved.Load(),
			"bulk":    m.BulkUpdates.Load(),
		},
		"search": map[string]any{
			"count":          m.SearchCount.Load(),
			"errors":         m.SearchErrors.Load(),
			"avg_duration":   m.getAvgSearchDuration(),
			"regex_timeouts": m.RegexTimeouts.Load(),
			"cache_hits":     m.CacheHits.Load(),
			"cache_misses":   m.CacheMisses.Load(),
			"cache_evicted":  m.CacheEvictions.Load(),
		},
		"system": map[string]any{
			"uptime":     humanize.RelTime(m.StartTime, time.Now(), "", ""),
			"version":    m.Version,
			"commit":     m.Commit,
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc":       humanize.Bytes(memStats.Alloc),
				"total_alloc": humanize.Bytes(memStats.TotalAlloc),
				"sys":         humanize.Bytes(memStats.Sys),
				"num_gc":      memStats.NumGC,
			},
		},
		"custom_counters": customCounters,
		"custom_gauges":   customGauges,
	}
}

func (m *Metrics) getAvgSearchDuration() float64 {
	count := m.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return float64(m.SearchDuration.Load()) / float64(count)
}

// JSON renders the current snapshot as indented JSON.
func (m *Metrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m.Snapshot(), "", "  ")
}
