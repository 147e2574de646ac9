package upload

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const thumbnailTimeout = 30 * time.Second

// thumbnail returns the thumbnail for an upload and a cleanup for any file it
// generated. The task's custom thumbnail wins; whole videos get a frame from
// ffmpeg; split parts and other kinds get none.
func (u *Uploader) thumbnail(ctx context.Context, tc *taskctx.TaskContext, path string, kind bot.FileKind) (string, func()) {
	noop := func() {}
	if kind == bot.KindPhoto || kind == bot.KindAudio {
		return "", noop
	}
	if tc.Paths.Thumbnail != "" && utils.GetSize(tc.Paths.Thumbnail) > 0 {
		return tc.Paths.Thumbnail, noop
	}
	if u.exec == nil || utils.FileType(path) != utils.CategoryVideo || utils.IsSplitFile(filepath.Base(path)) {
		return "", noop
	}

	out := filepath.Join(os.TempDir(), "leecher-thumb-"+uuid.NewString()+".jpg")
	thumbCtx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()

	args := []string{"-hide_banner", "-y", "-ss", "00:00:01", "-i", path, "-vframes", "1", "-vf", "scale=320:-1", out}
	if _, err := u.exec.Run(thumbCtx, "ffmpeg", args, nil); err != nil || utils.GetSize(out) <= 0 {
		logutils.Log.WithError(err).WithField("file", filepath.Base(path)).Warn("Thumbnail generation failed")
		_ = os.Remove(out)
		return "", noop
	}
	return out, func() { _ = os.Remove(out) }
}
