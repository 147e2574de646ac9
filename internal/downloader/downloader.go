package downloader

import (
	"context"
	"fmt"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
)

// Request is one link handed to an engine.
type Request struct {
	Link    string
	Ordinal int
	// FilenameHint is the explicit or guessed output name; engines may ignore it.
	FilenameHint string
	DestDir      string
	// Headers are extra HTTP headers for engines that fetch over HTTP.
	Headers  map[string]string
	Password string
	Progress taskctx.Reporter
}

func (r Request) Report(p taskctx.Progress) {
	if r.Progress != nil {
		r.Progress.Report(p)
	}
}

type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
)

// Result is what an engine returns for one link: either Success with the
// byte count and file name, or Failure with a reason. Engines never write to
// the task ledgers; the download manager records the result.
type Result struct {
	Outcome  Outcome
	Filename string
	Bytes    int64
	Reason   string
}

func Success(filename string, bytes int64) Result {
	return Result{Outcome: OutcomeSuccess, Filename: filename, Bytes: bytes}
}

func Failure(filename, reason string) Result {
	return Result{Outcome: OutcomeFailure, Filename: filename, Reason: reason}
}

func Failuref(filename, format string, args ...any) Result {
	return Failure(filename, fmt.Sprintf(format, args...))
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("success(%s, %d bytes)", r.Filename, r.Bytes)
	}
	return fmt.Sprintf("failure(%s: %s)", r.Filename, r.Reason)
}

type Engine interface {
	Name() string
	Download(ctx context.Context, req Request) Result
}

// Sizer is implemented by engines that can report the expected size of a
// link before downloading it.
type Sizer interface {
	Size(ctx context.Context, link string) (int64, error)
}

// Namer is implemented by engines that can resolve a display name for a link
// without downloading it.
type Namer interface {
	DisplayName(ctx context.Context, link string) (string, error)
}

type Updater interface {
	RunUpdate(ctx context.Context)
}

// Remote is implemented by engines that hand links to an external daemon;
// their successes leave nothing in the local download dir.
type Remote interface {
	Remote() bool
}

// IsRemote reports whether e hands its links off instead of downloading them.
func IsRemote(e Engine) bool {
	r, ok := e.(Remote)
	return ok && r.Remote()
}
