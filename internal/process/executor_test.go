package process

import (
	"context"
	stderrors "errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestOSProcessExecutor_RunStreamsLines(t *testing.T) {
	requireShell(t)
	e := NewOSProcessExecutor()

	var lines []string
	res, err := e.Run(context.Background(), "sh", []string{"-c", "printf 'a\\rb\\nc\\n'; echo err >&2"}, func(l string) {
		lines = append(lines, l)
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", res.ExitCode)
	}
	joined := strings.Join(lines, ",")
	for _, want := range []string{"a", "b", "c", "err"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected line %q in %v", want, lines)
		}
	}
}

func TestOSProcessExecutor_NonZeroExit(t *testing.T) {
	requireShell(t)
	e := NewOSProcessExecutor()

	res, err := e.Run(context.Background(), "sh", []string{"-c", "echo boom >&2; exit 3"}, nil)
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", res.ExitCode)
	}
	if res.LastLine() != "boom" {
		t.Errorf("Expected last line 'boom', got '%s'", res.LastLine())
	}
	var de *errors.DomainError
	if !stderrors.As(err, &de) || de.Type != errors.ErrorTypeSubprocess {
		t.Errorf("Expected subprocess domain error, got %v", err)
	}
}

func TestOSProcessExecutor_CancelTerminates(t *testing.T) {
	requireShell(t)
	e := &OSProcessExecutor{GracePeriod: 500 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Run(ctx, "sh", []string{"-c", "sleep 30"}, nil)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Expected process to be terminated promptly, took %v", time.Since(start))
	}
}

func TestOSProcessExecutor_MissingBinary(t *testing.T) {
	e := NewOSProcessExecutor()
	if _, err := e.Run(context.Background(), "definitely-not-a-real-tool-xyz", nil, nil); err == nil {
		t.Error("Expected error for missing binary")
	}
	if _, err := e.LookPath("definitely-not-a-real-tool-xyz"); err == nil {
		t.Error("Expected LookPath error for missing binary")
	}
}

func TestMockExecutor(t *testing.T) {
	m := NewMockExecutor()
	m.On("aria2c", Script{Lines: []string{"[#1 10MiB/20MiB(50%)]"}, ExitCode: 3})

	var got []string
	res, err := m.Run(context.Background(), "aria2c", []string{"-x16"}, func(l string) { got = append(got, l) })
	if err == nil || res.ExitCode != 3 {
		t.Errorf("Expected exit code 3 with error, got %d/%v", res.ExitCode, err)
	}
	if len(got) != 1 {
		t.Errorf("Expected one streamed line, got %v", got)
	}
	if m.Calls("aria2c") != 1 {
		t.Errorf("Expected one aria2c call, got %d", m.Calls("aria2c"))
	}
}

func TestExitCode(t *testing.T) {
	m := NewMockExecutor()
	m.On("7z", Script{ExitCode: 2})

	_, err := m.Run(context.Background(), "7z", []string{"x"}, nil)
	code, ok := ExitCode(err)
	if !ok || code != 2 {
		t.Errorf("Expected exit code 2, got %d (ok=%v)", code, ok)
	}

	if _, ok := ExitCode(context.Canceled); ok {
		t.Error("Expected no exit code for a cancellation error")
	}
}
