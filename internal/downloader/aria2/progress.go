package aria2

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

const maxProgressPercent = 100

// Summary line, e.g. "[#2089b0 400.0KiB/33.2MiB(1%) CN:1 DL:115.7KiB ETA:4m51s]".
var reSummary = regexp.MustCompile(
	`\[#[a-f0-9]+\s+` +
		`(?P<done>[\d.]+[KMGT]?i?B)/(?P<total>[\d.]+[KMGT]?i?B)` +
		`\(\s*(?P<pct>[\d.]+)%\s*\)\s*` +
		`(?:CN:\d+\s+DL:(?P<speed>[\d.]+[KMGT]?i?B(?:/s)?))?` +
		`(?:\s+ETA:(?P<eta>[^\]]+))?` +
		`\s*\]`)

var reSize = regexp.MustCompile(`^([\d.]+)([KMGT]?)(i?)B$`)

// Sample is one parsed aria2 summary line.
type Sample struct {
	Done    int64
	Total   int64
	Percent float64
	Speed   string
	// ETA in seconds, +Inf when aria2 did not print one.
	ETA float64
}

// ParseProgress extracts a Sample from an aria2c console line.
func ParseProgress(line string) (Sample, bool) {
	m := reSummary.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false
	}
	group := func(name string) string {
		return strings.TrimSpace(m[reSummary.SubexpIndex(name)])
	}

	pct, err := strconv.ParseFloat(group("pct"), 64)
	if err != nil {
		logutils.Log.WithError(err).WithField("line", line).Debug("Failed to parse aria2 percentage")
		return Sample{}, false
	}

	s := Sample{
		Done:    ParseSize(group("done")),
		Total:   ParseSize(group("total")),
		Percent: math.Min(pct, maxProgressPercent),
		Speed:   "N/A",
		ETA:     math.Inf(1),
	}
	if speed := group("speed"); speed != "" {
		if !strings.HasSuffix(speed, "/s") {
			speed += "/s"
		}
		s.Speed = speed
	}
	if eta := group("eta"); eta != "" {
		if d, err := time.ParseDuration(eta); err == nil {
			s.ETA = d.Seconds()
		}
	}
	return s, true
}

// ParseSize converts aria2's "33.2MiB" notation to bytes. Unparseable input gives 0.
func ParseSize(s string) int64 {
	m := reSize.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	base := 1000.0
	if m[3] == "i" {
		base = 1024
	}
	power := strings.Index("KMGT", m[2]) + 1
	if m[2] == "" {
		power = 0
	}
	return int64(v * math.Pow(base, float64(power)))
}
