package task

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/classifier"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ledger"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// MessageLimit is the Telegram text length limit.
const MessageLimit = 4096

// Chunk joins head and items into messages no longer than limit. An item that
// does not fit starts a new message.
func Chunk(head string, items []string, limit int) []string {
	var out []string
	cur := head
	for _, item := range items {
		if len(cur)+len(item) >= limit && cur != "" {
			out = append(out, cur)
			cur = item
			continue
		}
		cur += item
	}
	return append(out, cur)
}

// SourceIcon picks the listing marker for link.
func SourceIcon(t taskctx.Task, link string) string {
	switch t.Service {
	case taskctx.ServiceDebrid:
		return "💧"
	case taskctx.ServiceNZBCloud:
		return "☁️"
	case taskctx.ServiceBitso:
		return "🪙"
	case taskctx.ServiceYTDL:
		return classifier.KindMedia.Icon()
	}
	if t.Media {
		return classifier.KindMedia.Icon()
	}
	if t.Mode == taskctx.ModeDirLeech {
		return classifier.KindLocal.Icon()
	}
	return classifier.Classify(link).Icon()
}

// SourceListing renders the task announcement posted to the upload chat.
func (s *Scheduler) SourceListing(t taskctx.Task) []string {
	head := TaskTitle(t)
	if t.Mode.UploadsToChat() {
		as := "Document"
		if s.cfg.UploadSettings.StreamUpload {
			as = "Media"
		}
		head = strings.TrimSuffix(head, "</i>") + " as " + as + "</i>"
	}
	head += "\n\n<b>🖇️ SOURCES » </b>"

	items := make([]string, 0, len(t.Links)+1)
	for _, link := range t.Links {
		items = append(items, fmt.Sprintf("\n\n%s <code>%s</code>", SourceIcon(t, link), html.EscapeString(link)))
	}
	items = append(items, "\n\n<b>📆 Task Date » </b><i>"+taskctx.Clock().Format("02-01-2006")+"</i>")
	return Chunk(head, items, MessageLimit)
}

func (s *Scheduler) sendSources(tc *taskctx.TaskContext) {
	chat := s.cfg.UploadChat()
	link := "N/A"
	for i, text := range s.SourceListing(tc.Task) {
		id, err := s.bot.SendMessage(chat, text, nil)
		if err != nil {
			logutils.Log.WithError(err).WithField("part", i+1).Warn("Failed to send source listing")
			break
		}
		if i == 0 {
			link = MessageLink(chat, id)
		}
	}
	s.mu.Lock()
	s.sourceLink = link
	s.mu.Unlock()
}

// MessageLink returns the t.me link of a message in a channel or supergroup,
// or "N/A" for private chats.
func MessageLink(chatID int64, messageID int) string {
	id := strconv.FormatInt(chatID, 10)
	if !strings.HasPrefix(id, "-100") || messageID == 0 {
		return "N/A"
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(id, "-100"), messageID)
}

// CompletionSummary is sent after a task finished without any failure.
func CompletionSummary(tc *taskctx.TaskContext) string {
	name := tc.Task.CustomName
	if name == "" {
		name = tc.Name()
	}
	if name == "" {
		name = "N/A"
	}

	label, size, count := "Total Size", tc.Transfer.TotalSize(), ""
	if tc.Task.Mode.UploadsToChat() {
		label, size = "Uploaded", tc.Transfer.UploadedBytes()
		count = fmt.Sprintf("├<b>☘️ File Count » </b><code>%d</code> Files\n", len(tc.Transfer.Sent()))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>#%s_COMPLETE 🔥</b>\n\n", strings.ToUpper(strings.ReplaceAll(string(tc.Task.Mode), "-", "_")))
	fmt.Fprintf(&b, "╭<b>📛 Name » </b><code>%s</code>\n", html.EscapeString(name))
	fmt.Fprintf(&b, "├<b>📦 %s » </b><code>%s</code>\n", label, utils.SizeUnit(float64(size)))
	b.WriteString(count)
	fmt.Fprintf(&b, "╰<b>⏱️ Time Taken »</b> <code>%s</code>", utils.GetTime(tc.Elapsed().Seconds()))
	return b.String()
}

// UploadLog lists every uploaded file with a link to its message.
func UploadLog(sent []ledger.SentFile) []string {
	items := make([]string, 0, len(sent))
	for i, f := range sent {
		name := html.EscapeString(f.Name)
		if link := MessageLink(f.ChatID, f.MessageID); link != "N/A" {
			items = append(items, fmt.Sprintf("\n(%02d) <a href='%s'>%s</a>", i+1, link, name))
		} else {
			items = append(items, fmt.Sprintf("\n(%02d) %s (Link Unavailable)", i+1, name))
		}
	}
	return Chunk(fmt.Sprintf("<b>📜 Uploaded Files Log (%d):</b>\n", len(sent)), items, MessageLimit)
}
