package postprocess

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	splitterLabel = "Splitter ✂️"

	// TargetSegmentMB is the preferred size of one video part.
	TargetSegmentMB = 1500
	// MaxVideoPartBytes caps a video part so it stays well under the upload limit.
	MaxVideoPartBytes = 1.5 * 1024 * 1024 * 1024
	minSegmentSeconds = 10

	copyBufferSize = 4 << 20
)

// SegmentDuration is the ffmpeg segment length for a video of size bytes:
// max(10, min(floor(duration/parts), target_bits/bitrate)), where parts is
// the smallest count keeping each part under MaxVideoPartBytes.
func SegmentDuration(size int64, duration, bitrate float64) float64 {
	byParts := math.Inf(1)
	if parts := math.Ceil(float64(size) / MaxVideoPartBytes); parts > 1 {
		byParts = math.Floor(duration / parts)
	}
	byTarget := math.Inf(1)
	if bitrate > 0 {
		byTarget = math.Trunc(TargetSegmentMB * 1024 * 1024 * 8 / bitrate)
	}
	return math.Max(minSegmentSeconds, math.Min(byParts, byTarget))
}

// SplitVideo cuts path into "<name>.partNNN<ext>" segments in outDir without
// re-encoding. It returns no parts when one segment would cover the video.
func (p *Pipeline) SplitVideo(ctx context.Context, path, outDir string, progress taskctx.Reporter) ([]string, error) {
	filename := filepath.Base(path)
	size := utils.GetSize(path)
	if size <= 0 {
		return nil, failure("split_source", "Split source size invalid: "+filename, nil)
	}

	info, err := p.Probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure("ffprobe_failed", "ffprobe failed for "+filename, err)
	}
	if info.Duration <= 0 {
		return nil, failure("no_duration", "Could not get video duration for "+filename, nil)
	}
	bitrate := info.Bitrate
	if bitrate <= 0 {
		bitrate = float64(size) * 8 / info.Duration
	}

	segment := SegmentDuration(size, info.Duration, bitrate)
	if segment >= info.Duration {
		logutils.Log.WithFields(map[string]any{
			"segment":  segment,
			"duration": info.Duration,
		}).Info("Segment covers the whole video, no splitting required")
		return nil, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, failure("split_dir", "Split execution error for "+filename, err)
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	pattern := filepath.Join(outDir, stem+".part%03d"+ext)
	args := []string{
		"-hide_banner", "-y",
		"-i", path,
		"-c", "copy", "-map", "0:v", "-map", "0:a?", "-copyts",
		"-segment_time", strconv.FormatFloat(segment, 'f', 0, 64),
		"-f", "segment", "-reset_timestamps", "1", "-segment_start_number", "1",
		"-movflags", "+faststart",
		pattern,
	}

	logutils.Log.WithFields(map[string]any{
		"file":    filename,
		"segment": segment,
	}).Info("Splitting video")
	if progress != nil {
		progress.Report(taskctx.Progress{
			Header:   "✂️ SPLITTING » ",
			Engine:   splitterLabel,
			Filename: filename,
			Total:    size,
			Speed:    "N/A",
		})
	}

	if _, err := p.exec.Run(ctx, "ffmpeg", args, nil); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if code, ok := process.ExitCode(err); ok {
			return nil, failure("split_failed", fmt.Sprintf("Split failed (ffmpeg code %d): %s", code, filename), err)
		}
		return nil, failure("split_failed", "Split execution error for "+filename, err)
	}

	parts, _ := filepath.Glob(filepath.Join(outDir, globEscape(stem)+".part*"+globEscape(ext)))
	if len(parts) == 0 {
		return nil, failure("split_no_output", "Split failed (no output files): "+filename, nil)
	}
	utils.NaturalSort(parts)
	return parts, nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}

// SplitArchive cuts path into "<name>.001", "<name>.002"... of at most
// maxSize bytes in outDir. The source is removed only when every byte was
// written; on failure all parts are removed.
func SplitArchive(ctx context.Context, path, outDir string, maxSize int64, progress taskctx.Reporter) ([]string, error) {
	filename := filepath.Base(path)
	in, err := os.Open(path)
	if err != nil {
		return nil, failure("split_source", "Archive splitting source missing: "+filename, err)
	}
	info, err := in.Stat()
	if err != nil || info.IsDir() {
		in.Close()
		return nil, failure("split_source", "Archive splitting source missing: "+filename, err)
	}
	if info.Size() == 0 {
		in.Close()
		return nil, failure("split_source", "Archive splitting source is empty: "+filename, nil)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		in.Close()
		return nil, failure("split_dir", "I/O Error during split: "+utils.ShortReason(err, 100), err)
	}
	if progress == nil {
		progress = taskctx.NopReporter{}
	}

	total := info.Size()
	start := time.Now()
	var (
		parts   []string
		written int64
	)
	cleanup := func() {
		for _, part := range parts {
			removeQuietly(part)
		}
	}

	buf := make([]byte, copyBufferSize)
	for num := 1; written < total; num++ {
		if err := ctx.Err(); err != nil {
			in.Close()
			cleanup()
			return nil, err
		}
		part := filepath.Join(outDir, fmt.Sprintf("%s.%03d", filename, num))
		n, err := writePart(in, part, maxSize, buf)
		if n > 0 || err != nil {
			parts = append(parts, part)
		}
		written += n
		if err != nil {
			in.Close()
			cleanup()
			return nil, failure("split_io", "I/O Error during split: "+utils.ShortReason(err, 100), err)
		}
		if n == 0 {
			break
		}

		speed, eta, pct := utils.SpeedETA(start, written, total)
		progress.Report(taskctx.Progress{
			Header:   "✂️ SPLITTING ARCHIVE » ",
			Engine:   splitterLabel,
			Filename: filename,
			Done:     written,
			Total:    total,
			Speed:    speed,
			ETA:      eta,
			Percent:  pct,
		})
	}
	in.Close()

	if written != total {
		cleanup()
		reason := fmt.Sprintf("Split size mismatch (%d vs %d)", written, total)
		return nil, failure("split_mismatch", reason, nil)
	}
	if err := os.Remove(path); err != nil {
		logutils.Log.WithError(err).WithField("path", path).Warn("Could not remove original archive after splitting")
	}
	logutils.Log.WithFields(map[string]any{
		"file":  filename,
		"parts": len(parts),
	}).Info("Archive splitting completed")
	return parts, nil
}

func writePart(in io.Reader, part string, maxSize int64, buf []byte) (int64, error) {
	out, err := os.Create(part)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyBuffer(out, io.LimitReader(in, maxSize), buf)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		removeQuietly(part)
	}
	return n, err
}
