package upload

import (
	"context"
	stderrors "errors"
	"io"
	"math"
	"net"
	"net/url"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
)

const (
	floodWaitPadding = 5 * time.Second
	baseBackoff      = 15 * time.Second
	maxBackoff       = 180 * time.Second
)

// Classify maps a Bot API send error onto a domain error so retry decisions
// look only at the type.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var de *errors.DomainError
	if stderrors.As(err, &de) {
		return err
	}

	if secs, ok := bot.RetryAfter(err); ok {
		return errors.WrapDomainError(err, errors.ErrorTypeTelegram, errors.CodeFloodWait, "telegram flood wait").
			WithRetryAfter(time.Duration(secs) * time.Second)
	}
	var apiErr *tgbotapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Code >= 500 {
		return errors.WrapDomainError(err, errors.ErrorTypeTelegram, "server_error", "telegram server error")
	}

	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded),
		stderrors.As(err, &netErr) && netErr.Timeout():
		return errors.WrapDomainError(err, errors.ErrorTypeTimeout, "upload_timeout", "upload timed out")
	case stderrors.Is(err, io.ErrUnexpectedEOF),
		stderrors.Is(err, syscall.ECONNRESET),
		stderrors.Is(err, syscall.ECONNREFUSED),
		stderrors.Is(err, syscall.EPIPE):
		return errors.WrapDomainError(err, errors.ErrorTypeNetwork, "connection", "connection error")
	}
	var urlErr *url.Error
	var opErr *net.OpError
	if stderrors.As(err, &urlErr) || stderrors.As(err, &opErr) {
		return errors.WrapDomainError(err, errors.ErrorTypeNetwork, "connection", "connection error")
	}
	return errors.WrapDomainError(err, errors.ErrorTypeUpload, "upload_failed", "upload failed")
}

// Backoff is the wait before retry attempt n (1-based). Flood waits use the
// server's value plus a margin; other retryable errors back off
// exponentially up to three minutes.
func Backoff(err error, attempt int) time.Duration {
	if d, ok := errors.RetryAfter(err); ok {
		return d + floodWaitPadding
	}
	var de *errors.DomainError
	if stderrors.As(err, &de) && de.Code == errors.CodeFloodWait {
		return baseBackoff
	}
	wait := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempt)))
	if wait > maxBackoff || wait <= 0 {
		return maxBackoff
	}
	return wait
}

// kind names an error class for failure reasons.
func kind(err error) string {
	var de *errors.DomainError
	if !stderrors.As(err, &de) {
		return "Error"
	}
	switch {
	case de.Code == errors.CodeFloodWait || de.Code == errors.CodeSlowmode:
		return "FloodWait"
	case de.Type == errors.ErrorTypeTimeout:
		return "Timeout"
	case de.Type == errors.ErrorTypeNetwork:
		return "NetworkError"
	case de.Code == "server_error":
		return "ServerError"
	default:
		return "Error"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
