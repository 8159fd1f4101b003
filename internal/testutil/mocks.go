package testutil

import (
	"context"
	"sync"
	"time"

	"memoryd/internal/models"
	"memoryd/internal/providers"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level with type t.
func (m *MockLogger) Count(level string, t providers.TypeEnum) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.Logs {
		if l.Level == level && l.Type == t {
			n++
		}
	}
	return n
}

// MockCache implements providers.CacheProviderInterface. Setting Err makes
// every call fail, which simulates a cache outage.
type MockCache struct {
	mu       sync.Mutex
	Data     map[string][]byte
	Err      error
	Gets     int
	Sets     int
	Deleted  []string
	SetDelay time.Duration
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.Err != nil {
		return nil, m.Err
	}
	val, ok := m.Data[key]
	if !ok {
		return nil, models.ErrCacheMiss
	}
	return val, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if m.SetDelay > 0 {
		select {
		case <-time.After(m.SetDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.Err != nil {
		return m.Err
	}
	m.Data[key] = value
	return nil
}

func (m *MockCache) Invalidate(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, k := range keys {
		delete(m.Data, k)
		m.Deleted = append(m.Deleted, k)
	}
	return nil
}

func (m *MockCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Data[key]
	return ok
}

// MockCompressor implements interfaces.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	// Default: return as-is (identity)
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() {}

// MockMetrics implements providers.MetricsProviderInterface and counts the calls tests assert on.
type MockMetrics struct {
	mu              sync.Mutex
	CacheHits       int
	CacheMisses     int
	CacheFallbacks  map[string]int
	BreakerStates   map[string]int
	TaskResults     map[string]int
	RateLimited     map[string]int
	Degraded        map[string]int
	Recomputed      int
	QueueDepth      int
	RequestStatuses []int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		CacheFallbacks: map[string]int{},
		BreakerStates:  map[string]int{},
		TaskResults:    map[string]int{},
		RateLimited:    map[string]int{},
		Degraded:       map[string]int{},
	}
}

func (m *MockMetrics) IncRequestsTotal(_ string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestStatuses = append(m.RequestStatuses, status)
}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}
func (m *MockMetrics) IncCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}
func (m *MockMetrics) IncCacheFallback(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheFallbacks[op]++
}
func (m *MockMetrics) SetBreakerState(dep string, state int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BreakerStates[dep] = state
}
func (m *MockMetrics) ObserveStoreDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncTaskResult(task, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskResults[task+":"+result]++
}
func (m *MockMetrics) SetQueueDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueueDepth = depth
}
func (m *MockMetrics) IncRateLimited(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimited[kind]++
}
func (m *MockMetrics) IncEngagementRecomputed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recomputed++
}
func (m *MockMetrics) IncDegradedContext(entity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Degraded[entity]++
}

// FallbackCount returns the number of store-only fallbacks recorded for op.
func (m *MockMetrics) FallbackCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CacheFallbacks[op]
}

// TaskResult returns how many times task finished with result.
func (m *MockMetrics) TaskResult(task, result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TaskResults[task+":"+result]
}

func (m *MockMetrics) CurrentQueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.QueueDepth
}

// DegradedCount returns how many context builds served entity from a default.
func (m *MockMetrics) DegradedCount(entity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Degraded[entity]
}
