package downloader

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
	"strings"
)

const (
	ReasonTimeout    = "Timeout"
	ReasonConnection = "Connection Error"
	ReasonCancelled  = "Cancelled"
)

// ErrStoppedByUser is returned when the task context was cancelled mid-download.
var ErrStoppedByUser = errors.New("download stopped by user")

// NetworkReason maps a transport error to the short reason shown in reports.
// It returns "" when err is not a recognizable network failure.
func NetworkReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrStoppedByUser) {
		return ReasonCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ReasonConnection
	}
	if errors.As(err, &urlErr) && strings.Contains(strings.ToLower(urlErr.Err.Error()), "connection") {
		return ReasonConnection
	}
	return ""
}
