// Package mega downloads mega.nz links with megadl from megatools.
package mega

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	binary      = "megadl"
	engineLabel = "Mega 🔴"
	unknownName = "Unknown Mega File"
)

// "movie.mkv: 45.20% - 452.0 MiB (473956352 bytes) of 1000.0 MiB (1048576000) 12.3 MiB/s"
var reProgress = regexp.MustCompile(
	`^(?P<name>.+?):\s+(?P<pct>[\d.]+)%\s+-\s+.*?\((?P<done>\d+)\s+bytes\)\s+of\s+.*?\((?P<total>\d+)\)\s*(?P<speed>[\d.]+\s*\w+/s)?`)

// "Downloaded movie.mkv"
var reDone = regexp.MustCompile(`^Downloaded\s+(.+)$`)

type Engine struct {
	exec process.Executor
}

func New(exec process.Executor) *Engine {
	return &Engine{exec: exec}
}

func (*Engine) Name() string {
	return "mega"
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return downloader.Failuref(unknownName, "Cannot create download dir: %v", err)
	}

	name := ""
	header := fmt.Sprintf("📥 DOWNLOADING FROM MEGA » 🔗Link %02d", req.Ordinal)
	onLine := func(line string) {
		if m := reDone.FindStringSubmatch(line); m != nil {
			name = strings.TrimSpace(m[1])
			return
		}
		s, ok := ParseProgress(line)
		if !ok {
			return
		}
		name = s.Name
		req.Report(taskctx.Progress{
			Header:   header,
			Engine:   engineLabel,
			Filename: s.Name,
			Done:     s.Done,
			Total:    s.Total,
			Speed:    s.Speed,
			ETA:      s.ETA,
			Percent:  s.Percent,
		})
	}

	before := utils.GetSize(req.DestDir)
	args := []string{"--print-names", "--path", req.DestDir, req.Link}
	if _, err := e.exec.Run(ctx, binary, args, onLine); err != nil {
		failed := name
		if failed == "" {
			failed = unknownName
		}
		if ctx.Err() != nil {
			return downloader.Failure(failed, downloader.ReasonCancelled)
		}
		logutils.Log.WithError(err).WithField("link", req.Link).Error("Mega download failed")
		if code, ok := process.ExitCode(err); ok {
			return downloader.Failuref(failed, "MegaError: megadl exited with code %d", code)
		}
		return downloader.Failure(failed, "Unexpected Mega Error: "+utils.ShortReason(err, 100))
	}

	if name == "" {
		logutils.Log.WithField("link", req.Link).Warn("Mega download finished but filename is unknown")
		return downloader.Failure("Unknown", "Could not determine filename")
	}
	name = filepath.Base(name)
	if _, err := os.Stat(filepath.Join(req.DestDir, name)); err != nil {
		return downloader.Failure(name, "Output file not found post-download")
	}
	grown := utils.GetSize(req.DestDir) - before
	if grown < 0 {
		grown = 0
	}
	return downloader.Success(name, grown)
}

type Sample struct {
	Name    string
	Done    int64
	Total   int64
	Percent float64
	Speed   string
	ETA     float64
}

// ParseProgress reads one megadl progress line.
func ParseProgress(line string) (Sample, bool) {
	m := reProgress.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Sample{}, false
	}
	group := func(name string) string {
		return strings.TrimSpace(m[reProgress.SubexpIndex(name)])
	}
	pct, err := strconv.ParseFloat(group("pct"), 64)
	if err != nil {
		return Sample{}, false
	}
	done, _ := strconv.ParseInt(group("done"), 10, 64)
	total, _ := strconv.ParseInt(group("total"), 10, 64)

	s := Sample{
		Name:    group("name"),
		Done:    done,
		Total:   total,
		Percent: pct,
		Speed:   "N/A",
		ETA:     math.Inf(1),
	}
	if speed := group("speed"); speed != "" {
		s.Speed = speed
		if bps := parseRate(speed); bps > 0 && total > done {
			s.ETA = float64(total-done) / bps
		}
	}
	return s, true
}

// parseRate turns "12.3 MiB/s" into bytes per second.
func parseRate(s string) float64 {
	fields := strings.Fields(strings.TrimSuffix(s, "/s"))
	if len(fields) != 2 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(strings.TrimSuffix(fields[1], "iB")) {
	case "K":
		return v * 1024
	case "M":
		return v * 1024 * 1024
	case "G":
		return v * 1024 * 1024 * 1024
	default:
		return v
	}
}
