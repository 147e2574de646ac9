package taskctx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/ledger"
)

// Progress is one status-bar sample from a running stage.
type Progress struct {
	Header   string
	Engine   string
	Filename string
	Done     int64
	Total    int64
	Speed    string
	ETA      float64
	Percent  float64
}

// Reporter receives progress samples. Implementations throttle on their own.
type Reporter interface {
	Report(p Progress)
}

type NopReporter struct{}

func (NopReporter) Report(Progress) {}

// TaskContext is the one live task and its ledgers.
type TaskContext struct {
	Task     Task
	Transfer *ledger.Transfer
	Errors   *ledger.Errors
	Paths    Paths
	Status   Reporter
	Started  time.Time

	mu       sync.RWMutex
	name     string
	cancel   context.CancelFunc
	byUser   atomic.Bool
	finished atomic.Bool
}

func New(task Task, paths Paths, status Reporter) *TaskContext {
	if status == nil {
		status = NopReporter{}
	}
	return &TaskContext{
		Task:     task,
		Transfer: ledger.NewTransfer(),
		Errors:   ledger.NewErrors(),
		Paths:    paths,
		Status:   status,
		Started:  Clock(),
	}
}

// Bind derives the task's context from parent; Cancel cancels it.
func (tc *TaskContext) Bind(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	tc.mu.Lock()
	tc.cancel = cancel
	tc.mu.Unlock()
	return ctx
}

// Cancel stops the running task. Calling it more than once is harmless.
func (tc *TaskContext) Cancel() {
	tc.mu.RLock()
	cancel := tc.cancel
	tc.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// CancelByUser records that the owner asked to stop the task, then cancels it.
func (tc *TaskContext) CancelByUser() {
	tc.byUser.Store(true)
	tc.Cancel()
}

func (tc *TaskContext) CancelledByUser() bool {
	return tc.byUser.Load()
}

// MarkFinished returns true only for the first caller.
func (tc *TaskContext) MarkFinished() bool {
	return tc.finished.CompareAndSwap(false, true)
}

func (tc *TaskContext) Finished() bool {
	return tc.finished.Load()
}

// Name is the display name of the current download.
func (tc *TaskContext) Name() string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.name
}

func (tc *TaskContext) SetName(name string) {
	tc.mu.Lock()
	tc.name = name
	tc.mu.Unlock()
}

func (tc *TaskContext) Elapsed() time.Duration {
	return Clock().Sub(tc.Started)
}

// Report forwards a sample to the status reporter.
func (tc *TaskContext) Report(p Progress) {
	tc.Status.Report(p)
}
