package utils

import (
	"errors"
	"strings"
)

var (
	ErrInvalidURL         = errors.New("invalid URL provided")
	ErrConfigurationError = errors.New("configuration error")
)

type WrappedError struct {
	Err     error
	Message string
	Context map[string]any
}

func (w *WrappedError) Error() string {
	if w.Message != "" {
		return w.Message + ": " + w.Err.Error()
	}
	return w.Err.Error()
}

func (w *WrappedError) Unwrap() error {
	return w.Err
}

func WrapError(err error, message string, ctx map[string]any) error {
	return &WrappedError{
		Err:     err,
		Message: message,
		Context: ctx,
	}
}

// ShortReason trims an error message to n runes so it fits a report line.
func ShortReason(err error, n int) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	r := []rune(msg)
	if len(r) > n {
		return string(r[:n])
	}
	return msg
}
