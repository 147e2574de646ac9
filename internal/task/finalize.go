package task

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/filesystem"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ledger"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/models"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	reportFileName = "download_report.txt"
	reportTime     = "2006-01-02 15:04:05"
	captionLimit   = 200
	historyKeep    = 500
	persistTimeout = 10 * time.Second
)

// Skipped is a source link that was neither downloaded nor recorded as failed.
type Skipped struct {
	URL      string
	Filename string
}

// SkippedLinks returns the task links missing from both ledgers, in task order.
func SkippedLinks(tc *taskctx.TaskContext) []Skipped {
	seen := tc.Errors.FailedLinks()
	for _, d := range tc.Transfer.Successful() {
		seen[d.URL] = true
	}
	var out []Skipped
	for i, link := range tc.Task.Links {
		if seen[link] {
			continue
		}
		name := tc.Task.FilenameFor(i)
		if name == "" {
			name = "N/A"
			if len(tc.Task.Filenames) > 0 {
				name = "N/A (Filename List Mismatch?)"
			}
		}
		out = append(out, Skipped{URL: link, Filename: name})
	}
	return out
}

// BuildReport renders the plain-text task report.
func BuildReport(tc *taskctx.TaskContext, reason, sourceLink string, skipped []Skipped) string {
	var b strings.Builder
	fmt.Fprintf(&b, "===== Task Report - %s =====\n", taskctx.Clock().Format(reportTime))
	fmt.Fprintf(&b, "Reason for Stop/Completion: %s\n", reason)
	fmt.Fprintf(&b, "Mode: %s, Type: %s, Service: %s\n", tc.Task.Mode, tc.Task.Processing, tc.Task.Service)
	fmt.Fprintf(&b, "Total Time Elapsed: %s\n", utils.GetTime(tc.Elapsed().Seconds()))
	fmt.Fprintf(&b, "Source Link: %s\n\n", orNA(sourceLink))

	successful := tc.Transfer.Successful()
	fmt.Fprintf(&b, "--- Successful Downloads (%d) ---\n", len(successful))
	for i, d := range successful {
		fmt.Fprintf(&b, "%d. Filename: %s\n   URL: %s\n\n", i+1, orNA(d.Filename), orNA(d.URL))
	}
	if len(successful) == 0 {
		b.WriteString("   None\n\n")
	}

	failures := tc.Errors.Failures()
	fmt.Fprintf(&b, "--- Failed Downloads (%d) ---\n", len(failures))
	for i, f := range failures {
		fmt.Fprintf(&b, "%d. Index/Link Num: %s\n", i+1, orNA(f.Index))
		fmt.Fprintf(&b, "   Filename: %s\n", orNA(f.Filename))
		fmt.Fprintf(&b, "   URL: %s\n", orNA(f.Link))
		reasonText := f.Reason
		if reasonText == "" {
			reasonText = "Unknown"
		}
		fmt.Fprintf(&b, "   Reason: %s\n\n", reasonText)
	}
	if len(failures) == 0 {
		b.WriteString("   None\n\n")
	}

	fmt.Fprintf(&b, "--- Skipped / Not Attempted (%d) ---\n", len(skipped))
	for i, sk := range skipped {
		fmt.Fprintf(&b, "%d. Filename: %s\n   URL: %s\n\n", i+1, sk.Filename, sk.URL)
	}
	if len(skipped) == 0 {
		b.WriteString("   None\n\n")
	}

	if tc.Task.Mode != taskctx.ModeMirror {
		sent := tc.Transfer.Sent()
		fmt.Fprintf(&b, "--- Successful Uploads (%d) ---\n", len(sent))
		for i, f := range sent {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, f.Name, utils.SizeUnit(float64(f.Size)))
		}
		if len(sent) == 0 {
			b.WriteString("   None\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("===== End of Report =====\n")
	return b.String()
}

// Outcome classifies how a finalized task ended.
func Outcome(tc *taskctx.TaskContext) models.TaskStatus {
	switch {
	case tc.CancelledByUser():
		return models.StatusCancelled
	case tc.Errors.IsFatal():
		return models.StatusFailed
	case tc.Errors.FailureCount() > 0:
		return models.StatusPartial
	default:
		return models.StatusCompleted
	}
}

// SummaryHeader is the first line of the final message for status.
func SummaryHeader(st models.TaskStatus) string {
	switch st {
	case models.StatusFailed:
		return "❌ <b>Task Failed!</b>"
	case models.StatusCancelled:
		return "🛑 <b>Task Cancelled by User</b>"
	case models.StatusPartial:
		return "⚠️ <b>Task Completed with partial failures</b>"
	default:
		return "✅ <b>Task Completed</b>"
	}
}

// finalize writes the report, resets the scheduler and tells the owner how
// the task ended. Only the first call for a task does anything.
func (s *Scheduler) finalize(tc *taskctx.TaskContext, trigger string) {
	if !tc.MarkFinished() {
		return
	}

	reason := trigger
	if tc.Errors.IsFatal() && tc.Errors.Message() != "" {
		reason = tc.Errors.Message()
	}
	outcome := Outcome(tc)
	if outcome == models.StatusPartial && reason == ReasonCompleted {
		reason = RecoverableFailureMessage
	}
	logutils.Log.WithFields(map[string]any{
		"task_id": tc.Task.ID,
		"status":  outcome.String(),
		"reason":  reason,
	}).Warn("Task cancellation/completion triggered")

	s.mu.Lock()
	sourceLink := s.sourceLink
	msg := s.status
	s.mu.Unlock()

	skipped := SkippedLinks(tc)
	report := BuildReport(tc, reason, sourceLink, skipped)
	reportSaved := true
	if err := filesystem.WriteFile(tc.Paths.Report, []byte(report)); err != nil {
		logutils.Log.WithError(err).Error("Failed to save download report file")
		reportSaved = false
	}
	s.persist(tc, outcome, reason, sourceLink, len(skipped))
	s.record(tc, outcome, len(skipped))

	tc.Cancel()

	failures := tc.Errors.FailureCount()
	if failures == 0 {
		if err := filesystem.RemoveDir(tc.Paths.Work); err != nil {
			logutils.Log.WithError(err).Error("Error during workspace cleanup")
		}
	} else {
		logutils.Log.WithField("path", tc.Paths.Work).Warn("Workspace cleanup skipped due to download failures")
	}

	s.mu.Lock()
	s.state = StateIdle
	if s.current == tc {
		s.current = nil
	}
	s.status = nil
	s.sourceLink = ""
	s.mu.Unlock()

	chat := tc.Task.ChatID
	if outcome == models.StatusCompleted && failures == 0 && len(skipped) == 0 {
		s.sendCompletion(tc, chat)
	} else {
		s.sendReport(tc, chat, outcome, reason, report, reportSaved, failures, len(skipped))
	}
	if msg != nil {
		msg.Delete()
	}
}

func (s *Scheduler) sendReport(tc *taskctx.TaskContext, chat int64, outcome models.TaskStatus, reason, report string, saved bool, failed, skipped int) {
	caption := fmt.Sprintf("Download Report: %s - %s", tc.Task.Mode, reason)
	if r := []rune(caption); len(r) > captionLimit {
		caption = string(r[:captionLimit])
	}
	if err := s.bot.SendDocument(chat, reportFileName, []byte(report), html.EscapeString(caption)); err != nil {
		logutils.Log.WithError(err).Error("Failed to send report document")
		saved = false
	}

	var b strings.Builder
	b.WriteString(SummaryHeader(outcome) + "\n")
	b.WriteString("Reason: " + html.EscapeString(reason) + "\n")
	b.WriteString("Elapsed: " + utils.GetTime(tc.Elapsed().Seconds()) + "\n")
	if saved {
		b.WriteString("\n📜 Report file generated & sent.")
	} else {
		b.WriteString("\n⚠️ Report file generation failed.")
	}
	if failed > 0 {
		fmt.Fprintf(&b, "\nFailed Downloads: %d", failed)
	}
	if skipped > 0 {
		fmt.Fprintf(&b, "\nSkipped/Not Attempted: %d", skipped)
	}
	if failed > 0 || skipped > 0 {
		b.WriteString("\n(See report file for details)")
	}
	if _, err := s.bot.SendMessage(chat, b.String(), nil); err != nil {
		logutils.Log.WithError(err).Error("Failed to send final task summary")
	}
}

func (s *Scheduler) sendCompletion(tc *taskctx.TaskContext, chat int64) {
	summary := CompletionSummary(tc)
	if _, err := s.bot.SendMessage(chat, summary, nil); err != nil {
		logutils.Log.WithError(err).Error("Failed to send completion summary")
	}
	if dump := s.cfg.UploadChat(); dump != chat {
		if _, err := s.bot.SendMessage(dump, summary, nil); err != nil {
			logutils.Log.WithError(err).Warn("Cannot send final summary to dump chat")
		}
	}

	sent := tc.Transfer.Sent()
	if !tc.Task.Mode.UploadsToChat() || len(sent) == 0 {
		return
	}
	for _, part := range UploadLog(sent) {
		if _, err := s.bot.SendMessage(chat, part, nil); err != nil {
			logutils.Log.WithError(err).Error("Error sending log part")
			return
		}
	}
}

func (s *Scheduler) persist(tc *taskctx.TaskContext, outcome models.TaskStatus, reason, sourceLink string, skipped int) {
	if s.store == nil {
		return
	}
	name := tc.Name()
	if tc.Task.CustomName != "" {
		name = tc.Task.CustomName
	}
	if name == "" {
		name = tc.Task.Links[0]
	}
	rec := &models.TaskRecord{
		TaskID:          tc.Task.ID,
		Name:            name,
		Mode:            string(tc.Task.Mode),
		Processing:      tc.Task.Processing.String(),
		Service:         string(tc.Task.Service),
		Status:          outcome,
		Reason:          reason,
		SourceLink:      sourceLink,
		ChatID:          tc.Task.ChatID,
		LinkCount:       len(tc.Task.Links),
		SuccessCount:    tc.Transfer.DownloadCount(),
		SkippedCount:    skipped,
		UploadCount:     len(tc.Transfer.Sent()),
		DownloadedBytes: tc.Transfer.DownloadedBytes(),
		UploadedBytes:   tc.Transfer.UploadedBytes(),
		ElapsedSeconds:  int64(tc.Elapsed().Seconds()),
		Failures:        recordFailures(tc.Errors.Failures()),
		StartedAt:       tc.Started,
		FinishedAt:      taskctx.Clock(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := s.store.SaveTask(ctx, rec); err != nil {
		logutils.Log.WithError(err).WithField("task_id", tc.Task.ID).Error("Failed to save task history")
		return
	}
	if n, err := s.store.PruneTasks(ctx, historyKeep); err != nil {
		logutils.Log.WithError(err).Warn("Failed to prune task history")
	} else if n > 0 {
		logutils.Log.WithField("removed", n).Debug("Pruned task history")
	}
}

func recordFailures(fs []ledger.Failure) []models.TaskFailure {
	out := make([]models.TaskFailure, 0, len(fs))
	for _, f := range fs {
		out = append(out, models.TaskFailure{
			Link:     orNA(f.Link),
			Filename: orNA(f.Filename),
			Index:    orNA(f.Index),
			Reason:   f.Reason,
		})
	}
	return out
}

func (s *Scheduler) record(tc *taskctx.TaskContext, outcome models.TaskStatus, skipped int) {
	mode := map[string]string{"mode": string(tc.Task.Mode)}
	s.metrics.IncrementCounter("tasks_total", map[string]string{"mode": string(tc.Task.Mode), "status": outcome.String()})
	s.metrics.RecordDuration("task_duration", tc.Elapsed(), mode)
	s.metrics.AddCounter("links_downloaded_total", int64(tc.Transfer.DownloadCount()), nil)
	s.metrics.AddCounter("links_failed_total", int64(tc.Errors.FailureCount()), nil)
	s.metrics.AddCounter("links_skipped_total", int64(skipped), nil)
	s.metrics.AddCounter("files_uploaded_total", int64(len(tc.Transfer.Sent())), nil)
	s.metrics.AddCounter("bytes_downloaded_total", tc.Transfer.DownloadedBytes(), nil)
	s.metrics.AddCounter("bytes_uploaded_total", tc.Transfer.UploadedBytes(), nil)
}
