package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics the engine exposes (spec §4.10).
type Collector struct {
	Registry *prometheus.Registry

	FactsIngested   prometheus.Counter
	DecisionsByType *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	SearchLatency   *prometheus.HistogramVec
	DBOperations    *prometheus.CounterVec
	DBDuration      *prometheus.HistogramVec
	LLMTokensUsed   prometheus.Counter
	PromotionEvents *prometheus.CounterVec

	// hitCount/missCount mirror CacheHits/CacheMisses as plain atomics so
	// CacheHitRate can read them back without decoding prometheus's
	// protobuf wire format, which Counter.Write requires and which a
	// Collector has no other reason to depend on.
	hitCount  atomic.Int64
	missCount atomic.Int64
}

// NewCollector creates a metrics collector registered under namespace. Each
// call creates an independent registry, unlike the teacher's process-wide
// singleton, so tests can instantiate the engine repeatedly without
// colliding on duplicate registration (spec §9: "the engine is constructed
// once per process; tests construct per-test instances").
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		Registry: registry,
		FactsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "facts_ingested_total", Help: "Total facts extracted from observations.",
		}),
		DecisionsByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total", Help: "Decisions emitted by the decision engine, by kind.",
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Cache hits across L1/L2.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Cache misses across L1/L2.",
		}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_latency_seconds", Help: "Retrieval search latency.", Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		DBOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "db_operations_total", Help: "Storage substrate operations.",
		}, []string{"operation", "entity", "status"}),
		DBDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "db_operation_duration_seconds", Help: "Storage substrate operation duration.", Buckets: prometheus.DefBuckets,
		}, []string{"operation", "entity"}),
		LLMTokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_used_total", Help: "Tokens consumed by LLM calls.",
		}),
		PromotionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "promotion_events_total", Help: "Memory level promotions/demotions.",
		}, []string{"direction"}),
	}

	registry.MustRegister(
		c.FactsIngested, c.DecisionsByType, c.CacheHits, c.CacheMisses,
		c.SearchLatency, c.DBOperations, c.DBDuration, c.LLMTokensUsed, c.PromotionEvents,
	)
	return c
}

// RecordCacheHit increments both the Prometheus counter and the internal
// tally used for CacheHitRate.
func (c *Collector) RecordCacheHit() {
	c.CacheHits.Inc()
	c.hitCount.Add(1)
}

// RecordCacheMiss increments both the Prometheus counter and the internal
// tally used for CacheHitRate.
func (c *Collector) RecordCacheMiss() {
	c.CacheMisses.Inc()
	c.missCount.Add(1)
}

// CacheHitRate reports the current hit rate, or 0 when there have been no
// accesses yet.
func (c *Collector) CacheHitRate() float64 {
	hits := float64(c.hitCount.Load())
	misses := float64(c.missCount.Load())
	total := hits + misses
	if total == 0 {
		return 0
	}
	return hits / total
}
