package process

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

// DefaultGracePeriod время между SIGTERM и SIGKILL при отмене
const DefaultGracePeriod = 5 * time.Second

const tailSize = 20

// Result итог выполнения внешней команды
type Result struct {
	ExitCode int
	// Tail последние строки вывода, для сообщений об ошибках
	Tail []string
}

// LastLine возвращает последнюю непустую строку вывода
func (r Result) LastLine() string {
	for i := len(r.Tail) - 1; i >= 0; i-- {
		if r.Tail[i] != "" {
			return r.Tail[i]
		}
	}
	return ""
}

// LineHandler получает строки stdout и stderr по мере их появления
type LineHandler func(line string)

// Executor запускает внешние инструменты (aria2c, yt-dlp, ffmpeg, 7z...)
type Executor interface {
	// Run выполняет команду построчно передавая вывод в onLine.
	// Ненулевой код выхода возвращается как ошибка вместе с Result.
	Run(ctx context.Context, name string, args []string, onLine LineHandler) (Result, error)
	// Output выполняет команду и возвращает stdout
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// OSProcessExecutor выполняет процессы через ОС. При отмене контекста группа
// процессов получает SIGTERM, а по истечении GracePeriod процесс убивается.
type OSProcessExecutor struct {
	GracePeriod time.Duration
}

func NewOSProcessExecutor() *OSProcessExecutor {
	return &OSProcessExecutor{GracePeriod: DefaultGracePeriod}
}

func (e *OSProcessExecutor) command(ctx context.Context, name string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// отрицательный pid адресует всю группу
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		return nil
	}
	grace := e.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	cmd.WaitDelay = grace
	return cmd
}

func (e *OSProcessExecutor) Run(ctx context.Context, name string, args []string, onLine LineHandler) (Result, error) {
	cmd := e.command(ctx, name, args)

	logutils.Log.WithFields(map[string]any{
		"command": name,
		"args":    args,
	}).Debug("Executing command")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, startError(err, name)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, startError(err, name)
	}
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, startError(err, name)
	}

	tail := newTail(tailSize)
	var mu sync.Mutex
	emit := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		tail.push(line)
		if onLine != nil {
			onLine(line)
		}
	}

	var wg sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			scanLines(r, emit)
		}(r)
	}
	wg.Wait()

	waitErr := cmd.Wait()
	res := Result{ExitCode: -1, Tail: tail.lines()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		logutils.Log.WithField("command", name).Info("Command terminated by cancellation")
		return res, ctx.Err()
	}
	if waitErr != nil {
		return res, errors.WrapDomainError(
			waitErr,
			errors.ErrorTypeSubprocess,
			"exit_status",
			"command exited with error",
		).WithDetails(map[string]any{
			"command":   name,
			"exit_code": res.ExitCode,
			"last_line": res.LastLine(),
		})
	}
	return res, nil
}

func (e *OSProcessExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := e.command(ctx, name, args)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		var execErr *exec.Error
		if stderrors.As(err, &execErr) {
			return out, startError(err, name)
		}
		return out, errors.WrapDomainError(
			err,
			errors.ErrorTypeSubprocess,
			"exit_status",
			"command exited with error",
		).WithDetails(map[string]any{
			"command": name,
			"stderr":  stderr.String(),
		})
	}
	return out, nil
}

func (*OSProcessExecutor) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", startError(err, name)
	}
	return path, nil
}

func startError(err error, name string) error {
	return errors.WrapDomainError(
		err,
		errors.ErrorTypeSubprocess,
		"start_failed",
		"failed to start command",
	).WithDetails(map[string]any{"command": name})
}

// scanLines разбивает поток по \n и \r, чтобы строки прогресса не склеивались
func scanLines(r io.Reader, emit func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			return i + 1, bytes.TrimSpace(data[:i]), nil
		}
		if atEOF {
			return len(data), bytes.TrimSpace(data), nil
		}
		return 0, nil, nil
	})
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			emit(line)
		}
	}
	// остаток читаем, чтобы процесс не блокировался на записи
	_, _ = io.Copy(io.Discard, r)
}

type ring struct {
	buf  []string
	size int
}

func newTail(size int) *ring { return &ring{size: size} }

func (r *ring) push(line string) {
	r.buf = append(r.buf, line)
	if len(r.buf) > r.size {
		r.buf = r.buf[len(r.buf)-r.size:]
	}
}

func (r *ring) lines() []string {
	return append([]string(nil), r.buf...)
}

// ExitCode извлекает код выхода из ошибки Run/Output, если процесс завершился сам
func ExitCode(err error) (int, bool) {
	var de *errors.DomainError
	if !stderrors.As(err, &de) || de.Code != "exit_status" {
		return 0, false
	}
	if code, ok := de.Details["exit_code"].(int); ok {
		return code, true
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}
