package process

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
)

// CommandCall представляет вызов команды
type CommandCall struct {
	Command string
	Args    []string
}

// Script описывает поведение mock для одной команды
type Script struct {
	Lines    []string
	ExitCode int
	Output   []byte
	Err      error
	// Effect вызывается до возврата, например чтобы создать выходной файл
	Effect func(args []string) error
}

// MockExecutor для тестирования
type MockExecutor struct {
	mu       sync.Mutex
	commands []CommandCall
	scripts  map[string]Script
	missing  map[string]bool
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		scripts: make(map[string]Script),
		missing: make(map[string]bool),
	}
}

// On задаёт сценарий для команды
func (m *MockExecutor) On(command string, s Script) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[command] = s
	return m
}

// SetMissing делает инструмент недоступным для LookPath
func (m *MockExecutor) SetMissing(command string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing[command] = true
}

// GetCommands возвращает список выполненных команд
func (m *MockExecutor) GetCommands() []CommandCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CommandCall(nil), m.commands...)
}

// Calls возвращает число вызовов команды
func (m *MockExecutor) Calls(command string) int {
	n := 0
	for _, c := range m.GetCommands() {
		if c.Command == command {
			n++
		}
	}
	return n
}

func (m *MockExecutor) record(command string, args []string) Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, CommandCall{Command: command, Args: append([]string(nil), args...)})
	return m.scripts[command]
}

func (m *MockExecutor) Run(ctx context.Context, name string, args []string, onLine LineHandler) (Result, error) {
	s := m.record(name, args)
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	for _, line := range s.Lines {
		if onLine != nil {
			onLine(line)
		}
	}
	if s.Effect != nil {
		if err := s.Effect(args); err != nil {
			return Result{ExitCode: -1}, err
		}
	}
	res := Result{ExitCode: s.ExitCode, Tail: s.Lines}
	if s.Err != nil {
		return res, s.Err
	}
	if s.ExitCode != 0 {
		return res, exitError(name, s.ExitCode)
	}
	return res, nil
}

func (m *MockExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	s := m.record(name, args)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Effect != nil {
		if err := s.Effect(args); err != nil {
			return nil, err
		}
	}
	if s.Err != nil {
		return s.Output, s.Err
	}
	if s.ExitCode != 0 {
		return s.Output, exitError(name, s.ExitCode)
	}
	return s.Output, nil
}

func (m *MockExecutor) LookPath(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[name] {
		return "", errors.NewDomainError(errors.ErrorTypeSubprocess, "start_failed", "executable not found: "+name)
	}
	return "/usr/bin/" + strings.TrimPrefix(name, "/"), nil
}

func exitError(name string, code int) error {
	return errors.NewDomainError(errors.ErrorTypeSubprocess, "exit_status",
		fmt.Sprintf("%s exited with code %d", name, code)).
		WithDetails(map[string]any{"command": name, "exit_code": code})
}
