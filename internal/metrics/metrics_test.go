package metrics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey("tasks_total", nil); got != "tasks_total" {
		t.Errorf("Expected bare name, got %q", got)
	}
	got := BuildKey("tasks_total", map[string]string{"status": "failed", "mode": "leech"})
	if got != "tasks_total{mode=leech,status=failed}" {
		t.Errorf("Expected sorted labels, got %q", got)
	}
}

func TestInMemoryMetrics_CountersAndDurations(t *testing.T) {
	m := NewInMemoryMetrics()
	labels := map[string]string{"mode": "mirror"}

	m.IncrementCounter("tasks_total", labels)
	m.AddCounter("tasks_total", 2, labels)
	m.SetGauge("queue", 3, nil)
	m.RecordDuration("task_duration", 2*time.Second, labels)
	m.RecordDuration("task_duration", 500*time.Millisecond, labels)

	snap := m.Snapshot()
	if got := snap.Counters["tasks_total{mode=mirror}"]; got != 3 {
		t.Errorf("Expected counter 3, got %d", got)
	}
	if got := snap.Gauges["queue"]; got != 3 {
		t.Errorf("Expected gauge 3, got %v", got)
	}
	d := snap.Durations["task_duration{mode=mirror}"]
	if d.Count != 2 || d.TotalMs != 2500 || d.MaxMs != 2000 {
		t.Errorf("Unexpected duration summary: %+v", d)
	}

	// snapshots are copies
	snap.Counters["tasks_total{mode=mirror}"] = 100
	if got := m.Snapshot().Counters["tasks_total{mode=mirror}"]; got != 3 {
		t.Errorf("Expected snapshot to be detached, got %d", got)
	}

	m.Reset()
	if got := len(m.Snapshot().Counters); got != 0 {
		t.Errorf("Expected no counters after reset, got %d", got)
	}
}

func TestCollectSystemMetrics(t *testing.T) {
	m := NewInMemoryMetrics()
	CollectSystemMetrics(m)

	snap := m.Snapshot()
	for _, name := range []string{"system_goroutines", "system_memory_alloc_mb", "system_memory_sys_mb", "system_gc_cycles"} {
		if _, ok := snap.Gauges[name]; !ok {
			t.Errorf("Expected gauge %s", name)
		}
	}
	if snap.Gauges["system_goroutines"] < 1 {
		t.Errorf("Expected at least one goroutine, got %v", snap.Gauges["system_goroutines"])
	}
}

func TestStartPeriodicCollection_StopsOnCancel(t *testing.T) {
	m := NewInMemoryMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartPeriodicCollection(ctx, m, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected collection loop to stop")
	}
	if _, ok := m.Snapshot().Gauges["system_goroutines"]; !ok {
		t.Error("Expected an initial collection")
	}
}
