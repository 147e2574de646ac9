package ledger

import (
	"strconv"
	"sync"
)

// UploadIndex marks failure records produced by the upload stage.
const UploadIndex = "Upload"

type Failure struct {
	Link     string
	Filename string
	Index    string
	Reason   string
}

func OrdinalIndex(ordinal int) string {
	return strconv.Itoa(ordinal)
}

// FatalState is a snapshot of the fatal flag and its message.
type FatalState struct {
	Set     bool
	Message string
}

// Errors holds the fatal flag and per-link failure records. A cleared flag
// with recorded failures means the task is continuing after partial failure.
type Errors struct {
	mu sync.RWMutex

	fatal    bool
	message  string
	failures []Failure
}

func NewErrors() *Errors {
	return &Errors{}
}

func (e *Errors) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fatal = false
	e.message = ""
	e.failures = nil
}

func (e *Errors) Fail(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fatal = true
	e.message = message
}

// Clear resets the flag and message. Failure records are kept.
func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fatal = false
	e.message = ""
}

func (e *Errors) Snapshot() FatalState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return FatalState{Set: e.fatal, Message: e.message}
}

// Restore puts back a snapshot taken earlier. A flag raised since the
// snapshot is kept unless the snapshot itself was fatal.
func (e *Errors) Restore(s FatalState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.Set {
		e.fatal = true
		e.message = s.Message
	}
}

func (e *Errors) IsFatal() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fatal
}

func (e *Errors) Message() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.message
}

func (e *Errors) AddFailure(f Failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, f)
}

func (e *Errors) Failures() []Failure {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Failure(nil), e.failures...)
}

func (e *Errors) FailureCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.failures)
}

// FailedLinks returns the set of links with at least one failure record,
// excluding upload failures which carry no source link.
func (e *Errors) FailedLinks() map[string]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	links := make(map[string]bool, len(e.failures))
	for _, f := range e.failures {
		if f.Index == UploadIndex {
			continue
		}
		links[f.Link] = true
	}
	return links
}
