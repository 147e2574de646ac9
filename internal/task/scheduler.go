// Package task runs one leech, mirror or dir-leech task at a time and
// reports its outcome.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/database"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/manager"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/metrics"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/models"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/status"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingInput
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

const (
	ReasonCompleted = "Task Completed"
	ReasonCancelled = "Cancelled by user"
	ReasonShutdown  = "Bot is shutting down"

	// RecoverableFailureMessage ends a leech whose only failures were downloads.
	RecoverableFailureMessage = "Task completed with recoverable download errors."
	AllDownloadsFailedMessage = "All downloads failed."
)

// Processor turns a download directory into the path the next stage reads.
type Processor interface {
	Process(ctx context.Context, tc *taskctx.TaskContext, src string) (string, error)
}

// Uploader sends a file or directory tree to the upload chat.
type Uploader interface {
	UploadPath(ctx context.Context, tc *taskctx.TaskContext, path string) bool
}

type Scheduler struct {
	cfg     *config.Config
	bot     bot.Service
	manager *manager.Manager
	proc    Processor
	up      Uploader
	store   database.TaskWriter
	metrics metrics.Recorder

	mu      sync.Mutex
	state   State
	running map[string]struct{}
	current *taskctx.TaskContext
	wg      sync.WaitGroup

	// per-task messages, reset by prepare
	status     *status.Message
	sourceLink string
}

func New(cfg *config.Config, b bot.Service, mgr *manager.Manager, proc Processor, up Uploader, store database.TaskWriter) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		bot:     b,
		manager: mgr,
		proc:    proc,
		up:      up,
		store:   store,
		metrics: metrics.NoOpMetrics{},
		running: make(map[string]struct{}),
	}
}

// WithMetrics makes finalize report task outcomes to r.
func (s *Scheduler) WithMetrics(r metrics.Recorder) *Scheduler {
	s.metrics = r
	return s
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Await marks the bot as waiting for the links of a new task. It fails when
// a task is already running.
func (s *Scheduler) Await() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return false
	}
	s.state = StateAwaitingInput
	return true
}

// Abandon drops a pending Await.
func (s *Scheduler) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingInput {
		s.state = StateIdle
	}
}

// Health describes the scheduler for the health endpoint.
func (s *Scheduler) Health() models.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := models.HealthStatus{Status: "ok", State: s.state.String()}
	if s.current != nil {
		h.TaskID = s.current.Task.ID
		h.TaskName = s.current.Name()
		h.StartedAt = s.current.Started
	}
	return h
}

// Start registers t and runs it in the background. An identical task that is
// still registered yields ErrDuplicateTask; any other running task yields
// ErrTaskConflict.
func (s *Scheduler) Start(ctx context.Context, t taskctx.Task) error {
	if len(t.Links) == 0 {
		return errors.WrapDomainError(nil, errors.ErrorTypeValidation, "no_links", "task has no links").
			WithUserMessage("No links or path provided.")
	}
	key := t.Key()

	s.mu.Lock()
	if _, dup := s.running[key]; dup {
		s.mu.Unlock()
		logutils.Log.WithField("task_id", t.ID).Warn("Duplicate task detected, aborting scheduler call")
		return errors.ErrDuplicateTask
	}
	if s.state == StateRunning {
		s.mu.Unlock()
		return errors.ErrTaskConflict
	}
	if t.ChatID == 0 {
		t.ChatID = s.cfg.OwnerID
	}
	tc := taskctx.New(t, taskctx.NewPaths(s.cfg.WorkPath, s.cfg.MirrorDir), nil)
	taskCtx := tc.Bind(ctx)
	s.running[key] = struct{}{}
	s.current = tc
	s.state = StateRunning
	s.wg.Add(1)
	s.mu.Unlock()

	logutils.Log.WithFields(map[string]any{
		"task_id":    t.ID,
		"mode":       string(t.Mode),
		"processing": t.Processing.String(),
		"service":    t.Service.String(),
		"links":      len(t.Links),
	}).Info("Task scheduled")

	go func() {
		defer s.wg.Done()
		defer s.release(key)
		s.execute(taskCtx, tc)
	}()
	return nil
}

// Cancel stops the running task on behalf of the user. It reports whether
// there was anything to cancel.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	tc := s.current
	if tc == nil && s.state == StateAwaitingInput {
		s.state = StateIdle
	}
	s.mu.Unlock()
	if tc == nil {
		return false
	}
	logutils.Log.WithField("task_id", tc.Task.ID).Info("Task cancellation requested by user")
	tc.CancelByUser()
	return true
}

// Wait blocks until the running task has been finalized.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown cancels the running task and waits for its report, up to ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	tc := s.current
	s.mu.Unlock()
	if tc != nil {
		tc.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if tc != nil {
			if !tc.Errors.IsFatal() {
				tc.Errors.Fail(ReasonShutdown)
			}
			s.finalize(tc, ReasonShutdown)
		}
		return ctx.Err()
	}
}

func (*Scheduler) Name() string {
	return "task_scheduler"
}

func (s *Scheduler) release(key string) {
	s.mu.Lock()
	delete(s.running, key)
	s.mu.Unlock()
}

func (s *Scheduler) execute(ctx context.Context, tc *taskctx.TaskContext) {
	reason := ReasonCompleted
	func() {
		defer func() {
			if r := recover(); r != nil {
				logutils.Log.WithFields(map[string]any{
					"task_id": tc.Task.ID,
					"stack":   string(debug.Stack()),
				}).Errorf("Error within task scheduler: %v", r)
				tc.Errors.Fail(fmt.Sprintf("Scheduler Error: %v", r))
			}
		}()

		if !s.prepare(ctx, tc) {
			return
		}
		switch tc.Task.Mode {
		case taskctx.ModeMirror:
			s.mirror(ctx, tc)
		case taskctx.ModeDirLeech:
			s.dirLeech(ctx, tc)
		default:
			s.leech(ctx, tc)
		}
	}()

	switch {
	case tc.CancelledByUser():
		reason = ReasonCancelled
	case ctx.Err() != nil:
		// Cancelled from outside the chat, i.e. the bot is stopping.
		reason = ReasonShutdown
		if !tc.Errors.IsFatal() {
			tc.Errors.Fail(ReasonShutdown)
		}
	}
	s.finalize(tc, reason)
}

// Finalize ends the running task with reason. Calling it with no task, or
// for a task that was already finalized, does nothing.
func (s *Scheduler) Finalize(reason string) {
	s.mu.Lock()
	tc := s.current
	s.mu.Unlock()
	if tc != nil {
		s.finalize(tc, reason)
	}
}
