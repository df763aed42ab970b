// Package memo provides the bounded, concurrency-safe memo tables used by the
// render and excerpt caches.
package memo

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCapacity is the number of entries kept when no capacity is configured.
const DefaultCapacity = 128

// LRU is a fixed-capacity table with least-recently-used eviction.
// Get refreshes recency; Put evicts the oldest entry when the table is full.
// It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	name    string
	entries *lru.Cache[K, V]
	metrics *Metrics
}

// Option configures an LRU.
type Option func(*options)

type options struct {
	metrics *Metrics
}

// WithMetrics records hits, misses and evictions under the table name.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a table holding at most capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func New[K comparable, V any](name string, capacity int, opts ...Option) (*LRU[K, V], error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	t := &LRU[K, V]{name: name, metrics: o.metrics}
	c, err := lru.NewWithEvict[K, V](capacity, func(K, V) {
		t.metrics.evicted(t.name)
	})
	if err != nil {
		return nil, fmt.Errorf("memo %s: %w", name, err)
	}
	t.entries = c
	return t, nil
}

// Get returns the value stored under key and marks it most recently used.
func (t *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := t.entries.Get(key)
	if ok {
		t.metrics.hit(t.name)
	} else {
		t.metrics.miss(t.name)
	}
	return v, ok
}

// Peek returns the value stored under key without touching recency or metrics.
func (t *LRU[K, V]) Peek(key K) (V, bool) {
	return t.entries.Peek(key)
}

// Put stores value under key, evicting the least recently used entry if needed.
// It reports whether an eviction happened.
func (t *LRU[K, V]) Put(key K, value V) bool {
	return t.entries.Add(key, value)
}

// RemoveFunc drops every entry whose key matches pred and returns how many were removed.
func (t *LRU[K, V]) RemoveFunc(pred func(K) bool) int {
	n := 0
	for _, k := range t.entries.Keys() {
		if pred(k) && t.entries.Remove(k) {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (t *LRU[K, V]) Len() int {
	return t.entries.Len()
}

// Metrics counts memo table lookups, labelled by table name.
type Metrics struct {
	lookups   *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

// NewMetrics registers the memo counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memo_lookups_total",
				Help: "Memo table lookups by table and result.",
			},
			[]string{"table", "result"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memo_evictions_total",
				Help: "Entries evicted from memo tables.",
			},
			[]string{"table"},
		),
	}
	for _, c := range []prometheus.Collector{m.lookups, m.evictions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) hit(table string) {
	if m != nil {
		m.lookups.WithLabelValues(table, "hit").Inc()
	}
}

func (m *Metrics) miss(table string) {
	if m != nil {
		m.lookups.WithLabelValues(table, "miss").Inc()
	}
}

func (m *Metrics) evicted(table string) {
	if m != nil {
		m.evictions.WithLabelValues(table).Inc()
	}
}
