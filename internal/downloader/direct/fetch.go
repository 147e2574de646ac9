// Package direct downloads plain HTTP(S) links with grab. The fetcher is also
// used by engines that resolve a link first (Google Drive, Telegram files).
package direct

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	progressTick     = time.Second
)

type FetchRequest struct {
	URL string
	// DestDir receives the file; Name overrides the server-provided name.
	DestDir  string
	Name     string
	Headers  map[string]string
	Cookies  []*http.Cookie
	Header   string
	Engine   string
	Progress taskctx.Reporter
}

type Fetcher struct {
	client *grab.Client
	tick   time.Duration
}

func NewFetcher() *Fetcher {
	client := grab.NewClient()
	client.UserAgent = DefaultUserAgent
	return &Fetcher{client: client, tick: progressTick}
}

// NewFetcherWithClient is used by tests to talk to an httptest server.
func NewFetcherWithClient(hc *http.Client) *Fetcher {
	f := NewFetcher()
	f.client.HTTPClient = hc
	return f
}

// Fetch downloads r.URL and returns the written path and its size. A partial
// file is removed on any failure.
func (f *Fetcher) Fetch(ctx context.Context, r FetchRequest) (string, int64, error) {
	if err := os.MkdirAll(r.DestDir, 0o755); err != nil {
		return "", 0, utils.WrapError(err, "failed to create download directory", map[string]any{"dir": r.DestDir})
	}

	dst := r.DestDir
	if r.Name != "" {
		dst = filepath.Join(r.DestDir, r.Name)
	}

	req, err := grab.NewRequest(dst, r.URL)
	if err != nil {
		return "", 0, utils.WrapError(utils.ErrInvalidURL, err.Error(), map[string]any{"url": r.URL})
	}
	req = req.WithContext(ctx)
	req.NoResume = true
	for k, v := range r.Headers {
		req.HTTPRequest.Header.Set(k, v)
	}
	for _, c := range r.Cookies {
		req.HTTPRequest.AddCookie(c)
	}

	logutils.Log.WithFields(map[string]any{
		"url":  r.URL,
		"dest": dst,
	}).Info("Starting HTTP download")

	start := time.Now()
	resp := f.client.Do(req)

	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

Loop:
	for {
		select {
		case <-ticker.C:
			f.report(r, resp, start)
		case <-resp.Done:
			break Loop
		}
	}

	if err := resp.Err(); err != nil {
		if resp.Filename != "" {
			if rmErr := os.Remove(resp.Filename); rmErr != nil && !os.IsNotExist(rmErr) {
				logutils.Log.WithError(rmErr).WithField("path", resp.Filename).Warn("Could not remove partial download")
			}
		}
		return "", 0, err
	}

	info, err := os.Stat(resp.Filename)
	if err != nil {
		return "", 0, utils.WrapError(err, "downloaded file missing", map[string]any{"path": resp.Filename})
	}
	return resp.Filename, info.Size(), nil
}

func (*Fetcher) report(r FetchRequest, resp *grab.Response, start time.Time) {
	if r.Progress == nil {
		return
	}
	name := r.Name
	if name == "" && resp.Filename != "" {
		name = filepath.Base(resp.Filename)
	}
	done, total := resp.BytesComplete(), resp.Size()
	speed, eta, pct := utils.SpeedETA(start, done, total)
	if bps := resp.BytesPerSecond(); bps > 0 {
		speed = utils.SizeUnit(bps) + "/s"
	}
	r.Progress.Report(taskctx.Progress{
		Header:   r.Header,
		Engine:   r.Engine,
		Filename: name,
		Done:     done,
		Total:    total,
		Speed:    speed,
		ETA:      eta,
		Percent:  pct,
	})
}

// Reason turns a fetch error into the text recorded in the failure report.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var status grab.StatusCodeError
	if errors.As(err, &status) {
		return fmt.Sprintf("HTTP Error: %d %s", int(status), http.StatusText(int(status)))
	}
	if r := downloader.NetworkReason(err); r != "" {
		return r
	}
	return "Unexpected Error: " + utils.ShortReason(err, 100)
}

// NameFromURL derives a file name from the last path segment of a URL.
func NameFromURL(link string) string {
	link = strings.TrimSpace(link)
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	base := link[strings.LastIndex(link, "/")+1:]
	return utils.CleanFilename(base)
}
