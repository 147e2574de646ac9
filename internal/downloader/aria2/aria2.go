package aria2

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	binary      = "aria2c"
	engineLabel = "Aria2c 🧨"

	exitNotFound     = 3
	exitNoSpace      = 9
	exitAuthFailed   = 24
	exitNetworkError = 29

	maxConnections = 16
)

// Engine downloads plain HTTP(S)/FTP links and torrents through aria2c.
type Engine struct {
	exec        process.Executor
	connections int
}

func New(exec process.Executor, connections int) *Engine {
	if connections < 1 || connections > maxConnections {
		connections = maxConnections
	}
	return &Engine{exec: exec, connections: connections}
}

func (*Engine) Name() string {
	return "aria2"
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	if req.Link == "" {
		return downloader.Failure(req.FilenameHint, "Missing URL/Filename")
	}
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return downloader.Failuref(req.FilenameHint, "Cannot create download dir: %v", err)
	}
	if IsTorrentSource(req.Link) {
		return e.downloadTorrent(ctx, req)
	}
	return e.downloadFile(ctx, req)
}

// ExpectedName picks the output file name: URL path first, then the hint,
// then a numbered fallback.
func ExpectedName(link, hint string, ordinal int) string {
	raw := direct.NameFromURL(link)
	if raw == "" {
		raw = hint
	}
	if raw == "" {
		raw = fmt.Sprintf("aria2_download_%d", ordinal)
	}
	name := utils.CleanFilename(raw)
	if name == "" {
		name = fmt.Sprintf("aria2_download_%d_cleaned", ordinal)
	}
	return name
}

func (e *Engine) downloadFile(ctx context.Context, req downloader.Request) downloader.Result {
	name := ExpectedName(req.Link, req.FilenameHint, req.Ordinal)
	target := filepath.Join(req.DestDir, name)

	logutils.Log.WithFields(map[string]any{
		"link":    req.Link,
		"ordinal": req.Ordinal,
		"file":    name,
	}).Info("Starting aria2c download")

	_, err := e.exec.Run(ctx, binary, e.args(req, name), e.progress(req, name))
	if err != nil {
		removeQuietly(target)
		return downloader.Failure(name, failureReason(ctx, err))
	}

	info, statErr := os.Stat(target)
	if statErr != nil || info.Size() == 0 {
		if statErr == nil {
			removeQuietly(target)
		}
		logutils.Log.WithField("file", target).Error("aria2c exited cleanly but output is missing or empty")
		return downloader.Failuref(name, "Aria2 success code 0 but expected output file invalid/missing/empty: %s", name)
	}
	return downloader.Success(name, info.Size())
}

// downloadTorrent lets aria2 choose the output layout, so success is judged
// by the growth of the destination directory.
func (e *Engine) downloadTorrent(ctx context.Context, req downloader.Request) downloader.Result {
	name := req.FilenameHint
	if name == "" {
		name = fmt.Sprintf("torrent_download_%d", req.Ordinal)
	}
	before := utils.GetSize(req.DestDir)

	_, err := e.exec.Run(ctx, binary, e.args(req, ""), e.progress(req, name))
	if err != nil {
		return downloader.Failure(name, failureReason(ctx, err))
	}

	grown := utils.GetSize(req.DestDir) - before
	if grown <= 0 {
		return downloader.Failure(name, "Aria2 success code 0 but torrent produced no data")
	}
	return downloader.Success(name, grown)
}

func (e *Engine) args(req downloader.Request, out string) []string {
	args := []string{
		fmt.Sprintf("-x%d", e.connections),
		"--seed-time=0",
		"--summary-interval=1",
		"--max-tries=3",
		"--console-log-level=warn",
		"--file-allocation=none",
		"--content-disposition=false",
		"-d", req.DestDir,
	}
	if out != "" {
		args = append(args, "-o", out)
	}
	for k, v := range req.Headers {
		args = append(args, "--header="+k+": "+v)
	}
	return append(args, req.Link)
}

func (*Engine) progress(req downloader.Request, name string) process.LineHandler {
	header := fmt.Sprintf("📥 DOWNLOADING » 🔗Link %02d", req.Ordinal)
	return func(line string) {
		s, ok := ParseProgress(line)
		if !ok {
			return
		}
		req.Report(taskctx.Progress{
			Header:   header,
			Engine:   engineLabel,
			Filename: name,
			Done:     s.Done,
			Total:    s.Total,
			Speed:    s.Speed,
			ETA:      s.ETA,
			Percent:  s.Percent,
		})
	}
}

// ExitReason maps an aria2c exit status to the text shown in reports.
func ExitReason(code int) string {
	switch code {
	case exitNotFound:
		return "Aria2 Error: Resource Not Found (404?)"
	case exitNoSpace:
		return "Aria2 Error: Not enough disk space"
	case exitAuthFailed:
		return "Aria2 Error: HTTP authorization failed (401/403?)"
	case exitNetworkError:
		return "Aria2 Error: Network/Connection Issue (Code 29)"
	default:
		return fmt.Sprintf("Aria2 failed code %d", code)
	}
}

func failureReason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return downloader.ReasonCancelled
	}
	if code, ok := process.ExitCode(err); ok {
		return ExitReason(code)
	}
	return "Aria2 Process Error: " + utils.ShortReason(err, 100)
}

// IsTorrentSource reports whether link is a magnet URI or a .torrent file or URL.
func IsTorrentSource(link string) bool {
	lower := strings.ToLower(link)
	return strings.HasPrefix(lower, "magnet:") || strings.HasSuffix(lower, ".torrent")
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logutils.Log.WithError(err).WithField("path", path).Warn("Failed to remove partial aria2 output")
	}
}
