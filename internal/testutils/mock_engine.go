package testutils

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
)

// MockEngine implements downloader.Engine for testing.
// Results are keyed by link; links without an entry succeed and write a
// small file named after FilenameHint (or "file-<ordinal>") into DestDir.
type MockEngine struct {
	EngineName string
	Results    map[string]downloader.Result
	// Panic, if set, makes Download panic with this value.
	Panic any
	// Block, if set, makes Download wait for ctx cancellation.
	Block bool
	// Hold, if set, makes Download wait until it is closed, ignoring ctx.
	Hold chan struct{}

	mu    sync.Mutex
	calls []downloader.Request
}

func NewMockEngine(name string) *MockEngine {
	return &MockEngine{EngineName: name, Results: make(map[string]downloader.Result)}
}

func (m *MockEngine) Name() string { return m.EngineName }

func (m *MockEngine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Panic != nil {
		panic(m.Panic)
	}
	if m.Hold != nil {
		<-m.Hold
		return downloader.Failure(req.FilenameHint, downloader.ReasonCancelled)
	}
	if m.Block {
		<-ctx.Done()
		return downloader.Failure(req.FilenameHint, downloader.ReasonCancelled)
	}
	if res, ok := m.Results[req.Link]; ok {
		return res
	}

	name := req.FilenameHint
	if name == "" {
		name = "file-" + strconv.Itoa(req.Ordinal)
	}
	data := []byte("mock engine payload")
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return downloader.Failure(name, err.Error())
	}
	if err := os.WriteFile(filepath.Join(req.DestDir, name), data, 0o600); err != nil {
		return downloader.Failure(name, err.Error())
	}
	return downloader.Success(name, int64(len(data)))
}

// Calls returns every request the engine received.
func (m *MockEngine) Calls() []downloader.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]downloader.Request(nil), m.calls...)
}
