package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tourwise/pulse/pkg/logging"
)

// DefaultSeriesCap bounds how many samples one metric name retains.
const DefaultSeriesCap = 1000

// Cache is the optional durable backend behind the store. Implementations must
// tolerate backend outages; the store treats every cache error as non-fatal.
type Cache interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// Store owns all Metric and ServiceHealth records. Metrics accumulate in
// bounded per-name ring buffers; health records are overwritten in place.
// Writers from different loops touch disjoint key sets, so the store only
// needs short critical sections around map and ring access.
type Store struct {
	mu       sync.RWMutex
	series   map[string]*ring
	health   map[string]ServiceHealth
	capacity int

	cache    Cache
	cacheTTL time.Duration
	logger   *logging.StructuredLogger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCache attaches a durable write-through cache with the given TTL.
func WithCache(cache Cache, ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithSeriesCap overrides the per-name buffer capacity.
func WithSeriesCap(capacity int) StoreOption {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// NewStore creates a metric store.
func NewStore(logger *logging.StructuredLogger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	s := &Store{
		series:   make(map[string]*ring),
		health:   make(map[string]ServiceHealth),
		capacity: DefaultSeriesCap,
		cacheTTL: 10 * time.Minute,
		logger:   logger.WithComponent("metric_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends a metric to its series, evicting the oldest sample when the
// buffer is full. Recording is best-effort and never fails; a cache write
// error is logged and swallowed.
func (s *Store) Record(m Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	s.mu.Lock()
	r, ok := s.series[m.Name]
	if !ok {
		r = newRing(s.capacity)
		s.series[m.Name] = r
	}
	s.mu.Unlock()

	r.push(m)
	s.writeThrough("metric:latest:"+m.Name, m)
}

// Query returns up to limit samples for name, most recent first. An unknown
// name yields an empty slice, never an error.
func (s *Store) Query(name string, limit int) []Metric {
	s.mu.RLock()
	r, ok := s.series[name]
	s.mu.RUnlock()
	if !ok || limit <= 0 {
		return nil
	}
	return r.newestFirst(limit)
}

// Latest returns the most recent sample for name.
func (s *Store) Latest(name string) (Metric, bool) {
	out := s.Query(name, 1)
	if len(out) == 0 {
		return Metric{}, false
	}
	return out[0], true
}

// SeriesNames returns the names of all recorded series.
func (s *Store) SeriesNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	return names
}

// SetHealth overwrites the current health record for a service.
func (s *Store) SetHealth(h ServiceHealth) {
	if h.LastCheck.IsZero() {
		h.LastCheck = time.Now()
	}

	s.mu.Lock()
	s.health[h.ServiceName] = h
	s.mu.Unlock()

	s.writeThrough("health:"+h.ServiceName, h)
}

// Health returns the current health record for a service. A record missing
// from memory falls through to the durable cache before reporting absence.
func (s *Store) Health(serviceName string) (ServiceHealth, bool) {
	s.mu.RLock()
	h, ok := s.health[serviceName]
	s.mu.RUnlock()
	if ok {
		return h, true
	}

	if s.cache != nil {
		raw, found, err := s.cache.Get(context.Background(), "health:"+serviceName)
		if err != nil {
			s.logger.Debug("cache read failed, serving memory only",
				"service", serviceName, "error", err.Error())
			return ServiceHealth{}, false
		}
		if found {
			var cached ServiceHealth
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, true
			}
		}
	}
	return ServiceHealth{}, false
}

// AllHealth returns a copy of every current health record.
func (s *Store) AllHealth() map[string]ServiceHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ServiceHealth, len(s.health))
	for name, h := range s.health {
		out[name] = h
	}
	return out
}

func (s *Store) writeThrough(key string, v interface{}) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("cache marshal failed", "key", key, "error", err.Error())
		return
	}
	if err := s.cache.Put(context.Background(), key, raw, s.cacheTTL); err != nil {
		s.logger.Debug("cache write failed, continuing memory only",
			"key", key, "error", err.Error())
	}
}

// ring is a fixed-capacity buffer of metrics with its own lock so concurrent
// series never contend with each other.
type ring struct {
	mu   sync.Mutex
	buf  []Metric
	head int // index of the next write
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Metric, capacity)}
}

func (r *ring) push(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) newestFirst(limit int) []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.size
	if limit < n {
		n = limit
	}
	out := make([]Metric, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + len(r.buf)*2) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}
