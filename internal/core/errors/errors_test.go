package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestDomainError_Is(t *testing.T) {
	err := fmt.Errorf("start: %w", WrapDomainError(stderrors.New("busy"), ErrorTypeConflict, "duplicate_task", "dup"))
	if !stderrors.Is(err, ErrDuplicateTask) {
		t.Errorf("Expected error to match ErrDuplicateTask")
	}
	if stderrors.Is(err, ErrTaskConflict) {
		t.Errorf("Expected error not to match ErrTaskConflict")
	}
}

func TestDomainError_IsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		want bool
	}{
		{"network", NewDomainError(ErrorTypeNetwork, "reset", "reset"), true},
		{"timeout", NewDomainError(ErrorTypeTimeout, "timeout", "slow"), true},
		{"flood wait", NewDomainError(ErrorTypeTelegram, CodeFloodWait, "flood"), true},
		{"slowmode", NewDomainError(ErrorTypeTelegram, CodeSlowmode, "slow"), true},
		{"telegram bad request", NewDomainError(ErrorTypeTelegram, "bad_request", "bad"), false},
		{"validation", NewDomainError(ErrorTypeValidation, "x", "x"), false},
		{"subprocess", NewDomainError(ErrorTypeSubprocess, "exit", "exit"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("upload: %w", NewDomainError(ErrorTypeTelegram, CodeFloodWait, "flood").WithRetryAfter(7*time.Second))
	d, ok := RetryAfter(err)
	if !ok || d != 7*time.Second {
		t.Errorf("Expected 7s retry-after, got %v (ok=%v)", d, ok)
	}
	if _, ok := RetryAfter(stderrors.New("plain")); ok {
		t.Errorf("Expected no retry-after for plain error")
	}
	if !IsRetryable(err) {
		t.Errorf("Expected wrapped flood wait to be retryable")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(fmt.Errorf("x: %w", ErrNetworkTimeout)); got != "Timeout" {
		t.Errorf("Expected 'Timeout', got '%s'", got)
	}
	if got := UserMessage(stderrors.New("boom")); got != "boom" {
		t.Errorf("Expected 'boom', got '%s'", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Errorf("Expected empty message, got '%s'", got)
	}
}
