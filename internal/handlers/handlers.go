// Package handlers turns Telegram updates into scheduler calls: task
// commands, the link reply, /cancel, /history and thumbnails.
package handlers

import (
	"context"
	"fmt"
	"html"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/database"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ratelimit"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/status"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/task"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
)

const (
	defaultHistory = 10
	maxHistory     = 50
)

// Scheduler is what the chat commands drive; *task.Scheduler implements it.
type Scheduler interface {
	Await() bool
	Abandon()
	Start(ctx context.Context, t taskctx.Task) error
	Cancel() bool
	State() task.State
}

// FileFetcher downloads a Telegram file URL; *direct.Fetcher implements it.
type FileFetcher interface {
	Fetch(ctx context.Context, r direct.FetchRequest) (string, int64, error)
}

// draft is the task a prompt was sent for, waiting for its links.
type draft struct {
	mode       taskctx.Mode
	processing taskctx.ProcessingMode
	service    taskctx.Service
	media      bool
}

type Handler struct {
	bot     bot.Service
	cfg     *config.Config
	sched   Scheduler
	history database.TaskReader
	fetcher FileFetcher
	chain   *Chain

	mu      sync.Mutex
	pending *draft
}

func New(b bot.Service, cfg *config.Config, sched Scheduler, history database.TaskReader, fetcher FileFetcher, limiter ratelimit.Limiter) *Handler {
	return &Handler{
		bot:     b,
		cfg:     cfg,
		sched:   sched,
		history: history,
		fetcher: fetcher,
		chain: NewChain(
			ValidationMiddleware,
			LoggingMiddleware,
			AuthMiddleware(cfg.OwnerID),
			RateLimitMiddleware(limiter),
		),
	}
}

// Run handles updates one at a time until ctx is done or updates is closed.
func (h *Handler) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	logutils.Log.Info("Listening for Telegram updates")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	uc := &UpdateContext{Context: ctx, Update: &update}
	defer func() {
		if r := recover(); r != nil {
			logutils.Log.WithFields(map[string]any{
				"chat_id": uc.ChatID,
				"user_id": uc.UserID,
				"stack":   string(debug.Stack()),
			}).Errorf("Panic recovered in update handler: %v", r)
			if uc.ChatID != 0 {
				h.reply(uc.ChatID, "Internal error while handling the message.")
			}
		}
	}()

	if err := h.chain.Execute(uc); err != nil {
		if uc.ChatID == 0 {
			logutils.Log.WithError(err).Debug("Update dropped")
			return
		}
		if cq := update.CallbackQuery; cq != nil {
			h.bot.AnswerCallbackQuery(tgbotapi.NewCallback(cq.ID, errors.UserMessage(err)))
			return
		}
		h.replyError(uc.ChatID, err)
		return
	}

	if update.CallbackQuery != nil {
		h.handleCallback(uc)
		return
	}
	msg := update.Message
	switch {
	case msg.IsCommand():
		h.handleCommand(uc, msg)
	case len(msg.Photo) > 0:
		h.handleThumbnail(uc, msg)
	default:
		h.handleLinks(uc, msg)
	}
}

func (h *Handler) handleCommand(uc *UpdateContext, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	switch cmd := strings.ToLower(msg.Command()); cmd {
	case "start":
		h.reply(uc.ChatID, startText)
	case "help":
		h.reply(uc.ChatID, helpText)
	case "leech":
		h.prompt(uc, taskctx.ModeLeech, args, false)
	case "mirror":
		h.prompt(uc, taskctx.ModeMirror, args, false)
	case "dirleech":
		h.prompt(uc, taskctx.ModeDirLeech, args, false)
	case "ytleech":
		h.prompt(uc, taskctx.ModeLeech, args, true)
	case "cancel":
		h.reply(uc.ChatID, h.cancel())
	case "history":
		h.showHistory(uc, args)
	default:
		logutils.Log.WithField("command", cmd).Warn("Unknown command")
		h.reply(uc.ChatID, "Unknown command. Send /help for the list.")
	}
}

// prompt parses "[type] [service]" and asks for the links.
func (h *Handler) prompt(uc *UpdateContext, mode taskctx.Mode, args []string, media bool) {
	d := draft{mode: mode, media: media}
	var err error
	if len(args) > 0 {
		if d.processing, err = taskctx.ParseProcessingMode(args[0]); err != nil {
			h.reply(uc.ChatID, "Unknown task type. Use normal, zip, unzip or undzip.")
			return
		}
	}
	switch {
	case media:
		d.service = taskctx.ServiceYTDL
	case len(args) > 1 && mode != taskctx.ModeDirLeech:
		if d.service, err = taskctx.ParseService(args[1]); err != nil {
			h.reply(uc.ChatID, "Unknown service. Use auto, direct, ytdl, nzbcloud, debrid, bitso, nzb or jd.")
			return
		}
	}

	if !h.sched.Await() {
		h.replyError(uc.ChatID, errors.ErrTaskConflict)
		return
	}
	h.mu.Lock()
	h.pending = &d
	h.mu.Unlock()

	logutils.Log.WithFields(map[string]any{
		"mode":       string(d.mode),
		"processing": d.processing.String(),
		"service":    d.service.String(),
	}).Info("Awaiting task input")

	text := task.TaskTitle(taskctx.Task{
		Mode:       d.mode,
		Processing: d.processing,
		Service:    d.service,
		Media:      d.media,
	}) + "\n\n<b>Send the link(s) 🔗</b>\n\n" + promptHint(d)
	if _, err := h.bot.SendMessage(uc.ChatID, text, status.CancelKeyboard()); err != nil {
		logutils.Log.WithError(err).Error("Failed to send task prompt")
	}
}

func promptHint(d draft) string {
	switch {
	case d.mode == taskctx.ModeDirLeech:
		return "<code>/path/to/folder\n[name.ext]\n{zip_pw}</code>"
	case d.service.RequiresFilenames():
		return "<code>https://link1 | name1.ext\nhttps://link2 | name2.ext\n{zip_pw}\n(unzip_pw)</code>"
	default:
		return "<code>https://link1.xyz\n[name.ext]\n{zip_pw}\n(unzip_pw)</code>"
	}
}

// handleLinks starts the pending task from a link reply. A reply that fails
// to parse keeps the prompt open so the owner can resend it.
func (h *Handler) handleLinks(uc *UpdateContext, msg *tgbotapi.Message) {
	h.mu.Lock()
	d := h.pending
	h.mu.Unlock()
	if d == nil || h.sched.State() != task.StateAwaitingInput {
		h.reply(uc.ChatID, "Send /leech, /mirror, /dirleech or /ytleech first.")
		return
	}

	in, err := ParseInput(msg.Text, d.mode, d.service)
	if err != nil {
		logutils.Log.WithError(err).Warn("Rejected task input")
		h.replyError(uc.ChatID, err)
		return
	}

	t := taskctx.NewTask(in.Links, d.mode, d.processing, d.service)
	t.Filenames = in.Filenames
	t.CustomName = in.CustomName
	t.ZipPassword = in.ZipPassword
	t.UnzipPassword = in.UnzipPassword
	t.Media = d.media
	t.ChatID = uc.ChatID
	t.SourceMsgID = msg.MessageID

	h.mu.Lock()
	if h.pending == d {
		h.pending = nil
	}
	h.mu.Unlock()

	if err := h.sched.Start(uc.Context, t); err != nil {
		logutils.Log.WithError(err).WithField("task_id", t.ID).Warn("Task was not started")
		h.sched.Abandon()
		h.replyError(uc.ChatID, err)
	}
}

func (h *Handler) handleCallback(uc *UpdateContext) {
	cq := uc.Update.CallbackQuery
	if cq.Data != status.CancelCallback {
		logutils.Log.WithField("callback_data", cq.Data).Warn("Unknown callback")
		h.bot.AnswerCallbackQuery(tgbotapi.NewCallback(cq.ID, "Unknown action"))
		return
	}
	h.bot.AnswerCallbackQuery(tgbotapi.NewCallback(cq.ID, h.cancel()))
}

// cancel stops the running task or drops a pending prompt and returns the
// text to show the owner.
func (h *Handler) cancel() string {
	h.mu.Lock()
	hadPending := h.pending != nil
	h.pending = nil
	h.mu.Unlock()

	if h.sched.Cancel() {
		return "Cancelling the running task..."
	}
	h.sched.Abandon()
	if hadPending {
		return "Task input cancelled."
	}
	return "Nothing to cancel."
}

func (h *Handler) showHistory(uc *UpdateContext, args []string) {
	if h.history == nil {
		h.reply(uc.ChatID, "Task history is unavailable.")
		return
	}
	limit := defaultHistory
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			h.reply(uc.ChatID, "Usage: /history [count]")
			return
		}
		limit = min(n, maxHistory)
	}

	records, err := h.history.ListTasks(uc.Context, limit)
	if err != nil {
		logutils.Log.WithError(err).Error("Failed to list task history")
		h.reply(uc.ChatID, "Could not load task history.")
		return
	}
	if len(records) == 0 {
		h.reply(uc.ChatID, "No tasks yet.")
		return
	}
	for _, chunk := range task.Chunk("<b>Recent tasks</b>\n", HistoryLines(records), task.MessageLimit) {
		h.reply(uc.ChatID, chunk)
	}
}

// HistoryLines renders one entry per task record.
func HistoryLines(records []database.TaskRecord) []string {
	lines := make([]string, 0, len(records))
	for i := range records {
		r := &records[i]
		line := fmt.Sprintf("%s <b>%s</b>\n    %s · %s/%s · %s · %d ok, %d failed, %d skipped",
			r.Status.Icon(),
			html.EscapeString(r.Name),
			r.Status,
			r.Mode,
			r.Processing,
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
			r.SuccessCount,
			r.FailedCount(),
			r.SkippedCount,
		)
		if r.Status != database.StatusCompleted && r.Reason != "" {
			line += "\n    " + html.EscapeString(r.Reason)
		}
		lines = append(lines, line+"\n")
	}
	return lines
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := h.bot.SendMessage(chatID, text, nil); err != nil {
		logutils.Log.WithError(err).WithField("chat_id", chatID).Error("Failed to send reply")
	}
}

func (h *Handler) replyError(chatID int64, err error) {
	h.reply(chatID, "❌ "+html.EscapeString(errors.UserMessage(err)))
}

const startText = "<b>Telegram Leecher</b>\n\n" +
	"Send /leech, /mirror, /dirleech or /ytleech, then reply with the links.\n" +
	"Send a photo to set the upload thumbnail. /help lists every command."

const helpText = "<b>Commands</b>\n\n" +
	"/leech [type] [service] - download and upload to Telegram\n" +
	"/mirror [type] [service] - download into the mirror directory\n" +
	"/dirleech [type] - upload a local file or folder\n" +
	"/ytleech [type] - download with yt-dlp and upload\n" +
	"/cancel - stop the running task\n" +
	"/history [count] - recent tasks\n\n" +
	"<b>Types</b>: normal, zip, unzip, undzip\n" +
	"<b>Services</b>: auto, direct, ytdl, nzbcloud, debrid, bitso, nzb, jd"
