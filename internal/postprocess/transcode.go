package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// TranscodeArgs builds the ffmpeg arguments. Streams ffmpeg can carry over
// as they are get copied; anything else is re-encoded to H.264/AAC.
func TranscodeArgs(in, out string, reencode bool) []string {
	args := []string{"-hide_banner", "-y", "-i", in}
	if reencode {
		args = append(args, "-c:v", "libx264", "-preset", "medium", "-crf", "23", "-c:a", "aac")
	} else {
		args = append(args, "-c", "copy")
	}
	return append(args, "-movflags", "+faststart", out)
}

// Transcode converts path into the configured container next to it and
// removes the original. Files already in that container are returned as is.
func (p *Pipeline) Transcode(ctx context.Context, path string, progress taskctx.Reporter) (string, error) {
	target := "." + strings.TrimPrefix(strings.ToLower(p.cfg.VideoOut), ".")
	if !isVideo(path) || strings.EqualFold(filepath.Ext(path), target) {
		return path, nil
	}
	filename := filepath.Base(path)
	out := strings.TrimSuffix(path, filepath.Ext(path)) + target

	reencode := true
	if info, err := p.Probe(ctx, path); err == nil {
		reencode = NeedsReencode(info.Codec)
	} else {
		logutils.Log.WithError(err).WithField("file", filename).Warn("Codec probe failed, re-encoding")
	}

	if progress != nil {
		progress.Report(taskctx.Progress{
			Header:   "🎥 CONVERTING » ",
			Engine:   "FFmpeg 🏍",
			Filename: filename,
			Total:    utils.GetSize(path),
			Speed:    "N/A",
		})
	}
	logutils.Log.WithFields(map[string]any{
		"file":     filename,
		"reencode": reencode,
		"target":   target,
	}).Info("Converting video")

	if _, err := p.exec.Run(ctx, "ffmpeg", TranscodeArgs(path, out, reencode), nil); err != nil {
		removeQuietly(out)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if code, ok := process.ExitCode(err); ok {
			return "", failure("convert_failed", fmt.Sprintf("Video conversion failed (ffmpeg code %d): %s", code, filename), err)
		}
		return "", failure("convert_failed", "Video conversion failed: "+filename, err)
	}
	if utils.GetSize(out) <= 0 {
		removeQuietly(out)
		return "", failure("convert_empty", "Video conversion produced empty file: "+filename, nil)
	}
	if err := os.Remove(path); err != nil {
		logutils.Log.WithError(err).WithField("path", path).Warn("Could not remove original after conversion")
	}
	return out, nil
}
