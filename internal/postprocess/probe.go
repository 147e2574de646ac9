package postprocess

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const probeTimeout = 30 * time.Second

// MediaInfo is what ffprobe reports for the first video stream.
type MediaInfo struct {
	Duration float64
	// Bitrate in bits per second, stream value first, then the container's.
	Bitrate float64
	Codec   string
	Level   int
}

type ffprobeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		BitRate   string `json:"bit_rate"`
		Level     int    `json:"level"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

func (p *Pipeline) Probe(ctx context.Context, path string) (MediaInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := p.exec.Output(probeCtx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)
	if err != nil {
		return MediaInfo{}, err
	}
	return ParseProbe(out)
}

// ParseProbe decodes ffprobe JSON output. Missing numbers stay zero.
func ParseProbe(data []byte) (MediaInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return MediaInfo{}, err
	}
	info := MediaInfo{Duration: parseFloat(raw.Format.Duration)}
	if len(raw.Streams) > 0 {
		s := raw.Streams[0]
		info.Codec = strings.ToLower(strings.TrimSpace(s.CodecName))
		info.Level = s.Level
		info.Bitrate = parseFloat(s.BitRate)
	}
	if info.Bitrate <= 0 {
		info.Bitrate = parseFloat(raw.Format.BitRate)
	}
	return info, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// NeedsReencode reports whether a codec name rules out a plain stream copy
// into an mp4 container. Unknown codecs are re-encoded.
func NeedsReencode(codec string) bool {
	v := strings.ToLower(strings.TrimSpace(codec))
	switch {
	case v == "" || v == "none":
		return true
	case strings.Contains(v, "h264") || strings.Contains(v, "avc"):
		return false
	case strings.Contains(v, "hevc") || strings.Contains(v, "h265"):
		return false
	default:
		return true
	}
}

func isVideo(path string) bool {
	return utils.FileType(path) == utils.CategoryVideo
}
