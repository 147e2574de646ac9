package ytdlp

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/aria2"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	defaultYtdlpBinary = "yt-dlp"
	engineLabel        = "Xr-YtDL 🏮"

	// FailureName is recorded as the file name of every failed media download.
	FailureName = "YTDL Download"

	// outputTemplate keeps playlist entries in a folder named after the playlist.
	outputTemplate = "%(playlist_title&{}/|)s%(title).180B.%(ext)s"
)

var reDownload = regexp.MustCompile(
	`^\[download\]\s+([\d.]+)%\s+of\s+~?\s*([\d.]+[KMGT]?i?B)` +
		`(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)

// Engine downloads media pages with yt-dlp.
type Engine struct {
	exec     process.Executor
	binary   string
	thumbDir string
	titles   *TitleResolver
}

func New(exec process.Executor, thumbDir string, titles *TitleResolver) *Engine {
	return &Engine{exec: exec, binary: defaultYtdlpBinary, thumbDir: thumbDir, titles: titles}
}

func (*Engine) Name() string {
	return "ytdlp"
}

// DisplayName implements downloader.Namer.
func (e *Engine) DisplayName(ctx context.Context, link string) (string, error) {
	if e.titles == nil {
		return FallbackName(link)
	}
	return e.titles.DisplayName(ctx, link)
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	if req.Link == "" {
		return downloader.Failure(FailureName, "Missing URL/Filename")
	}
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return downloader.Failuref(FailureName, "Cannot create download dir: %v", err)
	}

	title := req.FilenameHint
	if title == "" && e.titles != nil {
		if t, err := e.titles.Title(ctx, req.Link); err == nil {
			title = t
		}
	}

	before := utils.GetSize(req.DestDir)
	_, err := e.exec.Run(ctx, e.binary, e.args(req), e.progress(req, title))
	if err != nil {
		reason := downloader.ReasonCancelled
		if ctx.Err() == nil {
			reason = "yt-dlp failed: " + utils.ShortReason(err, 100)
			logutils.Log.WithError(err).WithFields(map[string]any{
				"link":    req.Link,
				"ordinal": req.Ordinal,
			}).Error("yt-dlp download failed")
		}
		return downloader.Failure(FailureName, reason)
	}

	grown := utils.GetSize(req.DestDir) - before
	if grown <= 0 {
		return downloader.Failure(FailureName, "yt-dlp finished but produced no files")
	}
	if title == "" {
		title = FailureName
	}
	return downloader.Success(title, grown)
}

func (e *Engine) args(req downloader.Request) []string {
	args := []string{
		"--newline",
		"--no-warnings",
		"-f", "bv*+ba/b",
		"--write-subs", "--sub-format", "srt/best",
		"-P", req.DestDir,
		"-o", outputTemplate,
	}
	if e.thumbDir != "" {
		args = append(args,
			"--write-thumbnail", "--convert-thumbnails", "jpg",
			"-P", "thumbnail:"+e.thumbDir,
			"-o", "thumbnail:%(id)s.%(ext)s",
		)
	}
	return append(args, req.Link)
}

func (*Engine) progress(req downloader.Request, title string) process.LineHandler {
	header := fmt.Sprintf("📥 DOWNLOADING FROM » 🔗Link %02d", req.Ordinal)
	return func(line string) {
		s, ok := ParseProgress(line)
		if !ok {
			return
		}
		req.Report(taskctx.Progress{
			Header:   header,
			Engine:   engineLabel,
			Filename: title,
			Done:     int64(float64(s.Total) * s.Percent / 100),
			Total:    s.Total,
			Speed:    s.Speed,
			ETA:      s.ETA,
			Percent:  s.Percent,
		})
	}
}

// Sample is one parsed "[download]" line.
type Sample struct {
	Percent float64
	Total   int64
	Speed   string
	ETA     float64
}

func ParseProgress(line string) (Sample, bool) {
	m := reDownload.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Sample{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Sample{}, false
	}
	s := Sample{
		Percent: math.Min(pct, 100),
		Total:   aria2.ParseSize(m[2]),
		Speed:   "N/A",
		ETA:     math.Inf(1),
	}
	if m[3] != "" && !strings.HasPrefix(m[3], "Unknown") {
		s.Speed = m[3]
	}
	if m[4] != "" {
		if d, ok := parseClock(m[4]); ok {
			s.ETA = d.Seconds()
		}
	}
	return s, true
}

// parseClock parses yt-dlp's "MM:SS" or "HH:MM:SS" ETA.
func parseClock(v string) (time.Duration, bool) {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}
