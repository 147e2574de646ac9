// Package upload sends finished files to the dump chat, splitting or
// archiving anything over the size ceiling first.
package upload

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ledger"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	uploadHeader = "📤 UPLOADING » "
	uploadEngine = "TG Upload 🚀"
)

// SizeChecker makes an oversized file fit the upload ceiling and returns the
// directory holding the replacement parts, or "" when nothing changed.
type SizeChecker interface {
	CheckSize(ctx context.Context, tc *taskctx.TaskContext, file string, remove bool) (string, error)
}

type Uploader struct {
	bot    bot.Service
	sizer  SizeChecker
	exec   process.Executor
	cfg    config.UploadConfig
	chatID int64

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an uploader sending to chatID. exec is used for video
// thumbnails and may be nil.
func New(b bot.Service, sizer SizeChecker, exec process.Executor, cfg config.UploadConfig, chatID int64) *Uploader {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Uploader{bot: b, sizer: sizer, exec: exec, cfg: cfg, chatID: chatID, sleep: sleep}
}

// UploadPath uploads path, a file or the items of a directory in natural
// order. Oversized items are split first. Per-file failures are recorded and
// the walk goes on; a processing failure sets the fatal flag and stops it.
// It reports whether every file made it.
func (u *Uploader) UploadPath(ctx context.Context, tc *taskctx.TaskContext, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		logutils.Log.WithError(err).WithField("path", path).Error("Upload source does not exist")
		tc.Errors.Fail("Leech source path missing.")
		return false
	}
	remove := tc.Task.Mode != taskctx.ModeDirLeech

	items := []string{path}
	if info.IsDir() {
		if items, err = listDir(path, false); err != nil {
			tc.Errors.Fail("Leech source path invalid: " + utils.ShortReason(err, 50))
			return false
		}
	}
	logutils.Log.WithFields(map[string]any{
		"path":  path,
		"items": len(items),
	}).Info("Uploading items")

	ok := true
	for i, item := range items {
		if ctx.Err() != nil {
			return false
		}
		if tc.Errors.IsFatal() {
			logutils.Log.WithField("item", filepath.Base(item)).Warn("Skipping item after fatal error")
			return false
		}
		logutils.Log.WithFields(map[string]any{
			"item":  filepath.Base(item),
			"index": i + 1,
			"total": len(items),
		}).Debug("Processing upload item")
		if !u.uploadItem(ctx, tc, item, remove) {
			ok = false
		}
	}
	return ok
}

func (u *Uploader) uploadItem(ctx context.Context, tc *taskctx.TaskContext, item string, remove bool) bool {
	name := filepath.Base(item)
	info, err := os.Stat(item)
	if err != nil {
		tc.Errors.AddFailure(uploadFailure(name, "Source file/dir missing"))
		return false
	}
	if info.IsDir() {
		files, err := listDir(item, true)
		if err != nil {
			tc.Errors.AddFailure(uploadFailure(name, "Cannot read directory"))
			return false
		}
		ok := true
		for _, f := range files {
			if !u.UploadFile(ctx, tc, f, filepath.Base(f)) {
				ok = false
			}
		}
		return ok
	}

	parts, err := u.sizer.CheckSize(ctx, tc, item, remove)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		reason := errors.UserMessage(err)
		logutils.Log.WithError(err).WithField("item", name).Error("Size processing failed")
		tc.Errors.Fail(reason)
		return false
	}
	if parts == "" {
		return u.UploadFile(ctx, tc, item, name)
	}

	defer resetDir(parts)
	files, err := listDir(parts, true)
	if err != nil || len(files) == 0 {
		logutils.Log.WithField("dir", parts).Warn("Processed directory is empty, uploading original")
		return u.UploadFile(ctx, tc, item, name)
	}
	ok := true
	for i, f := range files {
		if !u.UploadFile(ctx, tc, f, PartName(name, i+1)) {
			ok = false
		}
	}
	return ok
}

// UploadFile sends one file under displayName with retries. Success lands in
// the transfer ledger, failure in the error ledger.
func (u *Uploader) UploadFile(ctx context.Context, tc *taskctx.TaskContext, path, displayName string) bool {
	size := utils.GetSize(path)
	if size == 0 {
		logutils.Log.WithField("file", path).Error("Skipping zero-byte file")
		tc.Errors.AddFailure(uploadFailure(displayName, "Zero-byte file"))
		return false
	}
	if u.chatID == 0 {
		tc.Errors.AddFailure(uploadFailure(displayName, "Target chat ID not configured"))
		return false
	}

	up := bot.Upload{
		ChatID:  u.chatID,
		Path:    path,
		Name:    displayName,
		Caption: u.Caption(displayName),
		Kind:    u.kindFor(path),
		Stream:  u.cfg.StreamUpload,
	}
	thumb, cleanup := u.thumbnail(ctx, tc, path, up.Kind)
	defer cleanup()
	up.Thumbnail = thumb

	logutils.Log.WithFields(map[string]any{
		"file": filepath.Base(path),
		"name": displayName,
		"kind": up.Kind.String(),
		"size": utils.SizeUnit(float64(size)),
	}).Info("Preparing upload")

	msgID, err := u.send(ctx, tc, up, size)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logutils.Log.WithError(err).WithField("name", displayName).Error("Upload failed")
		tc.Errors.AddFailure(uploadFailure(displayName, err.Error()))
		return false
	}

	tc.Transfer.RecordUpload(ledger.SentFile{
		ChatID:    u.chatID,
		MessageID: msgID,
		Name:      displayName,
		Size:      size,
	})
	logutils.Log.WithFields(map[string]any{
		"name":       displayName,
		"message_id": msgID,
	}).Info("Upload completed")
	return true
}

func (u *Uploader) send(ctx context.Context, tc *taskctx.TaskContext, up bot.Upload, size int64) (int, error) {
	for attempt := 0; ; attempt++ {
		tc.Report(taskctx.Progress{
			Header:   uploadHeader,
			Engine:   uploadEngine,
			Filename: up.Name,
			Total:    size,
			Speed:    "N/A",
		})
		msgID, err := u.bot.SendFile(up)
		if err == nil {
			return msgID, nil
		}
		cause := err
		err = Classify(err)
		if !errors.IsRetryable(err) {
			return 0, fmt.Errorf("Non-retryable Upload Error: %s", utils.ShortReason(cause, 100))
		}
		if attempt >= u.cfg.MaxRetries {
			return 0, fmt.Errorf("Exceeded max retries (%d) due to %s", u.cfg.MaxRetries+1, kind(err))
		}

		wait := Backoff(err, attempt+1)
		logutils.Log.WithError(err).WithFields(map[string]any{
			"name":    up.Name,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).Warn("Upload attempt failed, retrying")
		tc.Report(taskctx.Progress{
			Header:   uploadHeader,
			Engine:   "TG " + kind(err) + " ⏳",
			Filename: up.Name,
			Total:    size,
			Speed:    "N/A",
			ETA:      wait.Seconds(),
		})
		if err := u.sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
}

// Caption wraps the display name with the configured prefix and suffix.
func (u *Uploader) Caption(name string) string {
	return "<code>" + html.EscapeString(u.cfg.CaptionPrefix+name+u.cfg.CaptionSuffix) + "</code>"
}

// kindFor picks the send method: streamable video and audio when streaming
// is on, photos only when it is off, documents otherwise.
func (u *Uploader) kindFor(path string) bot.FileKind {
	switch utils.FileType(path) {
	case utils.CategoryVideo:
		if u.cfg.StreamUpload {
			return bot.KindVideo
		}
	case utils.CategoryAudio:
		if u.cfg.StreamUpload {
			return bot.KindAudio
		}
	case utils.CategoryPhoto:
		if !u.cfg.StreamUpload {
			return bot.KindPhoto
		}
	}
	return bot.KindDocument
}

// PartName is the display name of the n-th piece of item.
func PartName(item string, n int) string {
	return fmt.Sprintf("%s.part%03d", item, n)
}

func uploadFailure(name, reason string) ledger.Failure {
	return ledger.Failure{Link: "N/A", Filename: name, Index: ledger.UploadIndex, Reason: reason}
}

// listDir returns the entries of dir in natural order, only regular files
// when filesOnly is set.
func listDir(dir string, filesOnly bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if filesOnly && !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	utils.NaturalSort(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

func resetDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logutils.Log.WithError(err).WithField("dir", dir).Warn("Failed to clean processed directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logutils.Log.WithError(err).WithField("dir", dir).Warn("Failed to recreate processed directory")
	}
}
