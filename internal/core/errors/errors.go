package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType классифицирует ошибку для политики повторов и отчётов
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeAuth       ErrorType = "auth"

	// Внешние сервисы и транспорт
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeTimeout  ErrorType = "timeout"
	ErrorTypeTelegram ErrorType = "telegram"
	ErrorTypeExternal ErrorType = "external"

	// Внутренние стадии задачи
	ErrorTypeSubprocess ErrorType = "subprocess"
	ErrorTypeFileSystem ErrorType = "filesystem"
	ErrorTypeDownload   ErrorType = "download"
	ErrorTypeProcessing ErrorType = "processing"
	ErrorTypeUpload     ErrorType = "upload"
	ErrorTypeDatabase   ErrorType = "database"

	ErrorTypeConflict  ErrorType = "conflict"
	ErrorTypeCancelled ErrorType = "cancelled"
)

// DomainError представляет доменную ошибку с типизацией
type DomainError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
	UserMsg string         `json:"user_message,omitempty"`
	// RetryAfter задаётся сервером (flood wait), ноль если не указан
	RetryAfter time.Duration `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is сравнивает по типу и коду, чтобы предопределённые ошибки работали с errors.Is
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// GetUserMessage возвращает сообщение для пользователя или техническое, если его нет
func (e *DomainError) GetUserMessage() string {
	if e.UserMsg != "" {
		return e.UserMsg
	}
	return e.Message
}

// IsRetryable определяет, можно ли повторить операцию
func (e *DomainError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	case ErrorTypeTelegram:
		return e.Code == CodeFloodWait || e.Code == CodeSlowmode || e.Code == "server_error"
	default:
		return false
	}
}

const (
	CodeFloodWait = "flood_wait"
	CodeSlowmode  = "slowmode_wait"
)

func NewDomainError(errType ErrorType, code, message string) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// WrapDomainError оборачивает существующую ошибку в доменную
func WrapDomainError(err error, errType ErrorType, code, message string) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
		Details: make(map[string]any),
	}
}

func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func (e *DomainError) WithUserMessage(msg string) *DomainError {
	e.UserMsg = msg
	return e
}

func (e *DomainError) WithRetryAfter(d time.Duration) *DomainError {
	e.RetryAfter = d
	return e
}

// IsRetryable проверяет цепочку ошибок на наличие повторяемой доменной ошибки
func IsRetryable(err error) bool {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.IsRetryable()
	}
	return false
}

// RetryAfter возвращает серверную задержку из цепочки, если она есть
func RetryAfter(err error) (time.Duration, bool) {
	var de *DomainError
	if stderrors.As(err, &de) && de.RetryAfter > 0 {
		return de.RetryAfter, true
	}
	return 0, false
}

// UserMessage достаёт сообщение для пользователя из цепочки, иначе текст ошибки
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.GetUserMessage()
	}
	return err.Error()
}

var (
	ErrInvalidInput  = NewDomainError(ErrorTypeValidation, "invalid_input", "invalid input provided")
	ErrInvalidFormat = NewDomainError(ErrorTypeValidation, "invalid_format", "invalid format")
	ErrUnsupported   = NewDomainError(ErrorTypeValidation, "unsupported_service", "unsupported download service")
)

var (
	ErrUnauthorized = NewDomainError(ErrorTypeAuth, "unauthorized", "authentication required").
		WithUserMessage("You are not allowed to use this bot.")
)

var (
	ErrTaskConflict = NewDomainError(ErrorTypeConflict, "task_running", "another task is running").
			WithUserMessage("A task is already running. Use /cancel to stop it first.")
	ErrDuplicateTask = NewDomainError(ErrorTypeConflict, "duplicate_task", "identical task already running").
				WithUserMessage("An identical task is already running. Please wait until it finishes.")
	ErrCancelled = NewDomainError(ErrorTypeCancelled, "cancelled", "task cancelled by user").
			WithUserMessage("Task Cancelled by User")
)

var (
	ErrNetworkTimeout = NewDomainError(ErrorTypeTimeout, "timeout", "network timeout").
				WithUserMessage("Timeout")
	ErrConnection = NewDomainError(ErrorTypeNetwork, "connection", "connection failed").
			WithUserMessage("Connection Error")
	ErrFloodWait = NewDomainError(ErrorTypeTelegram, CodeFloodWait, "telegram flood wait")
	ErrSlowmode  = NewDomainError(ErrorTypeTelegram, CodeSlowmode, "telegram slowmode wait")
)
