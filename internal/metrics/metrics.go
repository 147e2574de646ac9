package metrics

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

// Recorder принимает метрики от планировщика задач
type Recorder interface {
	IncrementCounter(name string, labels map[string]string)
	AddCounter(name string, delta int64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
	RecordDuration(name string, duration time.Duration, labels map[string]string)
}

// DurationSummary агрегирует длительности одной метрики
type DurationSummary struct {
	Count   int64 `json:"count"`
	TotalMs int64 `json:"total_ms"`
	MaxMs   int64 `json:"max_ms"`
}

// Snapshot - копия всех метрик для отдачи через API
type Snapshot struct {
	Counters  map[string]int64           `json:"counters"`
	Gauges    map[string]float64         `json:"gauges"`
	Durations map[string]DurationSummary `json:"durations"`
}

// InMemoryMetrics реализует простую in-memory систему метрик
type InMemoryMetrics struct {
	counters  map[string]int64
	gauges    map[string]float64
	durations map[string]DurationSummary
	mu        sync.RWMutex
}

var _ Recorder = (*InMemoryMetrics)(nil)

// NewInMemoryMetrics создает новую in-memory систему метрик
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:  make(map[string]int64),
		gauges:    make(map[string]float64),
		durations: make(map[string]DurationSummary),
	}
}

// IncrementCounter увеличивает счетчик на единицу
func (m *InMemoryMetrics) IncrementCounter(name string, labels map[string]string) {
	m.AddCounter(name, 1, labels)
}

// AddCounter увеличивает счетчик на delta
func (m *InMemoryMetrics) AddCounter(name string, delta int64, labels map[string]string) {
	key := BuildKey(name, labels)
	m.mu.Lock()
	m.counters[key] += delta
	value := m.counters[key]
	m.mu.Unlock()

	logutils.Log.WithFields(map[string]any{
		"metric": key,
		"value":  value,
	}).Debug("Counter incremented")
}

// SetGauge устанавливает значение gauge
func (m *InMemoryMetrics) SetGauge(name string, value float64, labels map[string]string) {
	key := BuildKey(name, labels)
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// RecordDuration записывает время выполнения
func (m *InMemoryMetrics) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	key := BuildKey(name, labels)
	ms := duration.Milliseconds()

	m.mu.Lock()
	d := m.durations[key]
	d.Count++
	d.TotalMs += ms
	d.MaxMs = max(d.MaxMs, ms)
	m.durations[key] = d
	m.mu.Unlock()

	logutils.Log.WithFields(map[string]any{
		"metric":      key,
		"duration_ms": ms,
	}).Debug("Duration recorded")
}

// Snapshot возвращает копию всех метрик
func (m *InMemoryMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Counters:  make(map[string]int64, len(m.counters)),
		Gauges:    make(map[string]float64, len(m.gauges)),
		Durations: make(map[string]DurationSummary, len(m.durations)),
	}
	for k, v := range m.counters {
		s.Counters[k] = v
	}
	for k, v := range m.gauges {
		s.Gauges[k] = v
	}
	for k, v := range m.durations {
		s.Durations[k] = v
	}
	return s
}

// Reset сбрасывает все метрики
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.durations = make(map[string]DurationSummary)

	logutils.Log.Info("All metrics reset")
}

// BuildKey создает ключ вида name{a=1,b=2}; labels сортируются по имени
func BuildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k + "=" + labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// NoOpMetrics реализует интерфейс Recorder без выполнения операций
type NoOpMetrics struct{}

func (NoOpMetrics) IncrementCounter(_ string, _ map[string]string) {}
func (NoOpMetrics) AddCounter(_ string, _ int64, _ map[string]string) {}
func (NoOpMetrics) SetGauge(_ string, _ float64, _ map[string]string) {}
func (NoOpMetrics) RecordDuration(_ string, _ time.Duration, _ map[string]string) {}

const bytesToMB = 1024 * 1024

// CollectSystemMetrics собирает метрики рантайма
func CollectSystemMetrics(r Recorder) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	r.SetGauge("system_goroutines", float64(runtime.NumGoroutine()), nil)
	r.SetGauge("system_memory_alloc_mb", float64(memStats.Alloc)/bytesToMB, nil)
	r.SetGauge("system_memory_sys_mb", float64(memStats.Sys)/bytesToMB, nil)
	r.SetGauge("system_gc_cycles", float64(memStats.NumGC), nil)
}

// StartPeriodicCollection собирает метрики рантайма до отмены ctx
func StartPeriodicCollection(ctx context.Context, r Recorder, interval time.Duration) {
	CollectSystemMetrics(r)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CollectSystemMetrics(r)
		}
	}
}
