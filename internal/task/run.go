package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/manager"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/filesystem"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ledger"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/status"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// prepare resets the ledgers, rebuilds the work tree and announces the task.
// It returns false when the task cannot start.
func (s *Scheduler) prepare(ctx context.Context, tc *taskctx.TaskContext) bool {
	t := tc.Task
	tc.Transfer.Reset()
	tc.Errors.Reset()

	if err := filesystem.ResetDir(tc.Paths.Work); err != nil {
		logutils.Log.WithError(err).WithField("path", tc.Paths.Work).Error("Failed to prepare work directory")
		tc.Errors.Fail("Cannot prepare work directory: " + utils.ShortReason(err, 100))
		return false
	}
	if err := filesystem.CreateDir(tc.Paths.Down); err != nil {
		tc.Errors.Fail("Cannot prepare download directory: " + utils.ShortReason(err, 100))
		return false
	}

	if t.Mode == taskctx.ModeDirLeech {
		info, err := os.Stat(t.Links[0])
		if err != nil {
			logutils.Log.WithError(err).WithField("path", t.Links[0]).Error("Directory Path Not Found")
			tc.Errors.Fail("Directory Path Not Found")
			return false
		}
		tc.SetName(filepath.Base(filepath.Clean(t.Links[0])))
		tc.Transfer.SetTotalSize(utils.GetSize(t.Links[0]))
		if !info.IsDir() {
			if err := filesystem.CreateDir(tc.Paths.DirLeechTemp); err != nil {
				tc.Errors.Fail("Cannot prepare dir-leech temp directory")
				return false
			}
		}
	}

	s.sendSources(tc)

	msg := status.New(s.bot, t.ChatID, s.cfg.DownloadSettings.StatusInterval, tc.Paths.Work)
	if err := msg.Create(TaskTitle(t) + "\n\n<b>📥 DOWNLOADING » </b>\n\n📝 <i>Initializing...</i>"); err != nil {
		logutils.Log.WithError(err).Error("Failed to send status message")
		tc.Errors.Fail("Failed send status: " + utils.ShortReason(err, 100))
		return false
	}
	tc.Status = msg
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()

	if t.Mode != taskctx.ModeDirLeech && !t.Service.SkipsPrecheck() {
		if size := s.manager.CalculateSize(ctx, t.Links); size > 0 {
			tc.Transfer.SetTotalSize(size)
			if !utils.HasEnoughSpace(tc.Paths.Work, size) {
				tc.Errors.Fail("Not enough disk space for " + utils.SizeUnit(float64(size)))
				return false
			}
		}
		tc.SetName(s.manager.GuessName(ctx, t.Links[0]))
	}

	if t.Mode != taskctx.ModeDirLeech && t.Processing == taskctx.Zip {
		base := t.CustomName
		if base == "" {
			base = tc.Name()
		}
		base = utils.CleanFilename(base)
		if base == "" {
			base = "Download"
		}
		tc.Paths = tc.Paths.WithDownSubdir(base)
		if err := filesystem.CreateDir(tc.Paths.Down); err != nil {
			tc.Errors.Fail("Cannot prepare download directory: " + utils.ShortReason(err, 100))
			return false
		}
		logutils.Log.WithField("path", tc.Paths.Down).Info("Zip mode: download target subfolder")
	}
	return ctx.Err() == nil
}

// leech downloads one link per batch and uploads what each batch produced.
// A download failure is recorded and the loop moves on; a processing or
// upload failure is fatal and ends the loop.
func (s *Scheduler) leech(ctx context.Context, tc *taskctx.TaskContext) {
	t := tc.Task
	if len(t.Filenames) > 0 && len(t.Filenames) != len(t.Links) {
		logutils.Log.WithFields(map[string]any{
			"filenames": len(t.Filenames),
			"links":     len(t.Links),
		}).Error("Initial filename count doesn't match link count")
		tc.Errors.Fail("Initial filename/link count mismatch.")
		return
	}
	remote := downloader.IsRemote(s.manager.Engines().ForService(t.Service))
	overallSuccess := true

	for i, link := range t.Links {
		if ctx.Err() != nil {
			overallSuccess = false
			break
		}
		if tc.Errors.IsFatal() {
			logutils.Log.Warn("Skipping further batches due to earlier critical error")
			overallSuccess = false
			break
		}
		logutils.Log.WithFields(map[string]any{
			"batch": i + 1,
			"total": len(t.Links),
		}).Info("Processing batch")

		s.cleanScratch(tc)

		failuresBefore := tc.Errors.FailureCount()
		prior := tc.Errors.Snapshot()
		tc.Errors.Clear()
		batch := manager.Batch{Links: []string{link}, Media: t.Media, Offset: i}
		if name := t.FilenameFor(i); name != "" {
			batch.Filenames = []string{name}
		}
		s.manager.Run(ctx, tc, batch)
		batchState := tc.Errors.Snapshot()
		tc.Errors.Clear()
		tc.Errors.Restore(prior)

		// A batch refused as a whole leaves no failure record of its own; that
		// is a validation error and ends the task with the manager's message.
		if batchState.Set && tc.Errors.FailureCount() == failuresBefore && ctx.Err() == nil {
			logutils.Log.WithFields(map[string]any{
				"batch":  i + 1,
				"reason": batchState.Message,
			}).Error("Download manager refused the batch")
			tc.Errors.Fail(batchState.Message)
			overallSuccess = false
			break
		}
		downloadFailed := tc.Errors.FailureCount() > failuresBefore
		if downloadFailed {
			logutils.Log.WithField("batch", i+1).Warn("One or more downloads failed during batch, continuing task")
			overallSuccess = false
		}
		if ctx.Err() != nil {
			overallSuccess = false
			break
		}
		if remote {
			continue
		}

		if utils.IsEmptyDirectory(tc.Paths.Down) {
			logutils.Log.WithField("batch", i+1).Warn("Download path empty after batch, skipping processing and upload")
			if !downloadFailed {
				tc.Errors.AddFailure(ledger.Failure{
					Link:     link,
					Filename: orNA(tc.Name()),
					Index:    ledger.OrdinalIndex(i + 1),
					Reason:   "Download produced no files",
				})
				overallSuccess = false
			}
			continue
		}

		if !s.processAndUpload(ctx, tc, tc.Paths.Down) {
			overallSuccess = false
			break
		}
	}

	if overallSuccess {
		logutils.Log.Info("All batches processed successfully")
		return
	}
	logutils.Log.WithFields(map[string]any{
		"failed": tc.Errors.FailureCount(),
		"fatal":  tc.Errors.IsFatal(),
	}).Warn("Processing stopped or completed with errors in one or more batches")
	// Download failures alone leave the flag clear and the task ends as a
	// partial completion, unless nothing was downloaded at all.
	if ctx.Err() == nil && !tc.Errors.IsFatal() && tc.Transfer.DownloadCount() == 0 {
		tc.Errors.Fail(AllDownloadsFailedMessage)
	}
}

// processAndUpload runs the pipeline on src and uploads the result. Any
// failure outside cancellation leaves the error ledger fatal.
func (s *Scheduler) processAndUpload(ctx context.Context, tc *taskctx.TaskContext, src string) bool {
	tc.Transfer.SetTotalSize(utils.GetSize(src))
	s.applyCustomName(tc, src)

	out, err := s.proc.Process(ctx, tc, src)
	if err != nil {
		if ctx.Err() == nil {
			logutils.Log.WithError(err).Error("Critical processing error, stopping further batches")
			tc.Errors.Fail(errors.UserMessage(err))
		}
		return false
	}
	if !s.up.UploadPath(ctx, tc, out) {
		if ctx.Err() == nil && !tc.Errors.IsFatal() {
			tc.Errors.Fail("Processing/Upload Error")
		}
		return false
	}
	return true
}

// mirror downloads every link, processes the result and copies it into the
// mirror directory.
func (s *Scheduler) mirror(ctx context.Context, tc *taskctx.TaskContext) {
	t := tc.Task
	if err := filesystem.CreateDir(tc.Paths.Mirror); err != nil {
		tc.Errors.Fail("Cannot create local mirror dir: " + utils.ShortReason(err, 100))
		return
	}

	s.manager.Run(ctx, tc, manager.Batch{Links: t.Links, Filenames: t.Filenames, Media: t.Media})
	if tc.Errors.IsFatal() || ctx.Err() != nil {
		logutils.Log.Error("Download failed before mirroring")
		return
	}
	if downloader.IsRemote(s.manager.Engines().ForService(t.Service)) {
		return
	}
	if utils.IsEmptyDirectory(tc.Paths.Down) {
		tc.Errors.Fail("Mirror download inconsistency (Empty Dir).")
		return
	}

	tc.Transfer.SetTotalSize(utils.GetSize(tc.Paths.Down))
	s.applyCustomName(tc, tc.Paths.Down)

	out, err := s.proc.Process(ctx, tc, tc.Paths.Down)
	if err != nil {
		if ctx.Err() == nil {
			tc.Errors.Fail(errors.UserMessage(err))
		}
		return
	}

	dest := filepath.Join(tc.Paths.Mirror, mirrorName(tc))
	logutils.Log.WithFields(map[string]any{
		"from": out,
		"to":   dest,
	}).Info("Mirroring content")
	if err := filesystem.CopyTree(out, dest); err != nil {
		logutils.Log.WithError(err).Error("Error mirroring content")
		tc.Errors.Fail("Mirror copy error: " + utils.ShortReason(err, 100))
		return
	}
	if out != tc.Paths.Down {
		if err := filesystem.RemoveDir(out); err != nil {
			logutils.Log.WithError(err).Warn("Failed to clean mirror temp processing dir")
		}
	}
}

// dirLeech uploads a local file or directory. Single files are copied to a
// temp dir first so the user's file is never touched.
func (s *Scheduler) dirLeech(ctx context.Context, tc *taskctx.TaskContext) {
	src := tc.Task.Links[0]
	info, err := os.Stat(src)
	if err != nil {
		tc.Errors.Fail("Dir-leech source missing: " + src)
		return
	}

	target := src
	if tc.Task.Processing == taskctx.Passthrough && !info.IsDir() {
		target = tc.Paths.DirLeechTemp
		if err := filesystem.CopyFile(src, filepath.Join(target, info.Name())); err != nil {
			logutils.Log.WithError(err).Error("Failed copy single file for dir-leech")
			tc.Errors.Fail("Copy Error: " + utils.ShortReason(err, 100))
			return
		}
	}

	tc.Transfer.RecordDownload(src, filepath.Base(filepath.Clean(src)), utils.GetSize(src))
	out, err := s.proc.Process(ctx, tc, target)
	if err != nil {
		if ctx.Err() == nil {
			tc.Errors.Fail(errors.UserMessage(err))
		}
		return
	}
	if !s.up.UploadPath(ctx, tc, out) && ctx.Err() == nil && !tc.Errors.IsFatal() {
		tc.Errors.Fail("Processing/Upload Error")
	}
}

// cleanScratch empties the per-batch directories and recreates the download dir.
func (s *Scheduler) cleanScratch(tc *taskctx.TaskContext) {
	for _, dir := range tc.Paths.Scratch() {
		if err := filesystem.RemoveDir(dir); err != nil {
			logutils.Log.WithError(err).WithField("path", dir).Warn("Failed to clean work directory")
		}
	}
	if err := filesystem.CreateDir(tc.Paths.Down); err != nil {
		logutils.Log.WithError(err).WithField("path", tc.Paths.Down).Warn("Failed to recreate download directory")
	}
}

// applyCustomName renames the only item in dir to the task's custom name.
// Zip modes name the archive instead.
func (s *Scheduler) applyCustomName(tc *taskctx.TaskContext, dir string) {
	t := tc.Task
	if t.CustomName == "" || t.Processing == taskctx.Zip || t.Processing == taskctx.UnzipThenZip {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		return
	}
	name := utils.CleanFilename(t.CustomName)
	if name == "" || name == entries[0].Name() {
		return
	}
	if err := os.Rename(filepath.Join(dir, entries[0].Name()), filepath.Join(dir, name)); err != nil {
		logutils.Log.WithError(err).Warn("Failed to apply custom name")
		return
	}
	logutils.Log.WithFields(map[string]any{
		"from": entries[0].Name(),
		"to":   name,
	}).Info("Applied custom name")
	tc.SetName(name)
}

func mirrorName(tc *taskctx.TaskContext) string {
	name := tc.Name()
	if name == "" {
		name = utils.CleanFilename(filepath.Base(tc.Task.Links[0]))
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" {
		name = "Mirrored_Item"
	}
	return name
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// TaskTitle is the task header used in the source listing and status message.
func TaskTitle(t taskctx.Task) string {
	mode := strings.TrimSuffix(string(t.Mode), "-leech")
	if mode == "" {
		mode = string(taskctx.ModeLeech)
	}
	title := capitalize(t.Processing.String()) + " " + capitalize(mode)
	if t.Service != taskctx.ServiceAuto {
		title += fmt.Sprintf(" (%s)", capitalize(string(t.Service)))
	}
	return "<b>TASK MODE » </b><i>" + title + "</i>"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
