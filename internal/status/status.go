// Package status keeps the single task status message in the owner chat up
// to date. Edits are throttled and stale-message errors are ignored.
package status

import (
	"fmt"
	"html"
	"math"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ratelimit"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	// CancelCallback is the callback data of the cancel button.
	CancelCallback = "cancel"
	barLength      = 12
)

// Message is the live status message of one task. It implements
// taskctx.Reporter.
type Message struct {
	bot     bot.Service
	chatID  int64
	limiter ratelimit.Limiter
	sysInfo func() string

	mu      sync.Mutex
	msgID   int
	started time.Time
	last    string
}

var _ taskctx.Reporter = (*Message)(nil)

// New prepares a status message for chatID edited at most once per interval.
// workPath selects the disk shown in the footer. A non-positive interval
// edits on every report.
func New(b bot.Service, chatID int64, interval time.Duration, workPath string) *Message {
	var limiter ratelimit.Limiter = ratelimit.NoOpRateLimiter{}
	if interval > 0 {
		limiter = ratelimit.NewTokenBucketLimiter(1, interval)
	}
	return &Message{
		bot:     b,
		chatID:  chatID,
		limiter: limiter,
		sysInfo: func() string { return SysInfo(workPath) },
		started: time.Now(),
	}
}

// CancelKeyboard is the inline keyboard attached to every status edit.
func CancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel ❌", CancelCallback),
		),
	)
}

// Create sends the initial status message and restarts the elapsed clock.
func (m *Message) Create(text string) error {
	id, err := m.bot.SendMessage(m.chatID, text+m.sysInfo(), CancelKeyboard())
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.msgID = id
	m.started = time.Now()
	m.last = ""
	m.mu.Unlock()
	return nil
}

func (m *Message) ID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msgID
}

// Report renders a progress sample and edits the message when the limiter
// allows it.
func (m *Message) Report(p taskctx.Progress) {
	m.mu.Lock()
	elapsed := time.Since(m.started)
	m.mu.Unlock()
	m.Update(Render(p, elapsed))
}

// Update replaces the message body, throttled.
func (m *Message) Update(text string) {
	m.mu.Lock()
	id := m.msgID
	if id == 0 || !m.limiter.Allow(int64(id)) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.edit(id, text)
}

// Flush replaces the message body regardless of the limiter.
func (m *Message) Flush(text string) {
	if id := m.ID(); id != 0 {
		m.edit(id, text)
	}
}

func (m *Message) edit(id int, text string) {
	full := text + m.sysInfo()
	m.mu.Lock()
	if full == m.last {
		m.mu.Unlock()
		return
	}
	m.last = full
	m.mu.Unlock()

	kb := CancelKeyboard()
	if err := m.bot.EditMessage(m.chatID, id, full, &kb); err != nil {
		if bot.IsIgnorableEditError(err) {
			logutils.Log.WithError(err).Debug("Status edit skipped")
			return
		}
		logutils.Log.WithError(err).WithField("message_id", id).Warn("Status bar update failed")
	}
}

// Delete removes the status message. It is safe to call more than once.
func (m *Message) Delete() {
	m.mu.Lock()
	id := m.msgID
	m.msgID = 0
	m.mu.Unlock()
	if id == 0 {
		return
	}
	m.limiter.Forget(int64(id))
	if err := m.bot.DeleteMessage(m.chatID, id); err != nil && !bot.IsIgnorableEditError(err) {
		logutils.Log.WithError(err).WithField("message_id", id).Warn("Failed to delete status message")
	}
}

// Render formats one progress sample as the status bar body.
func Render(p taskctx.Progress, elapsed time.Duration) string {
	pct := math.Max(0, math.Min(100, p.Percent))
	filled := int(pct / 100 * barLength)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barLength-filled)

	speed := p.Speed
	if speed == "" {
		speed = "N/A"
	}
	eta := "N/A"
	if p.ETA > 0 {
		eta = utils.GetTime(p.ETA)
	}
	done, total := "N/A", "N/A"
	if p.Done > 0 {
		done = utils.SizeUnit(float64(p.Done))
	}
	if p.Total > 0 {
		total = utils.SizeUnit(float64(p.Total))
	}

	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(p.Header) + "</b>\n")
	if p.Filename != "" {
		b.WriteString("\n<b>🏷️ Name » </b><code>" + html.EscapeString(p.Filename) + "</code>\n")
	}
	fmt.Fprintf(&b, "\n╭「%s」 <b>»</b> <i>%.1f%%</i>", bar, pct)
	fmt.Fprintf(&b, "\n├⚡️ <b>Speed »</b> <b>%s</b>", html.EscapeString(speed))
	fmt.Fprintf(&b, "\n├⚙️ <b>Engine »</b> <b>%s</b>", html.EscapeString(p.Engine))
	fmt.Fprintf(&b, "\n├⏳ <b>ETA »</b> <i>%s</i>", eta)
	fmt.Fprintf(&b, "\n├⏱️ <b>Elapsed »</b> <i>%s</i>", utils.GetTime(elapsed.Seconds()))
	fmt.Fprintf(&b, "\n├✅ <b>Done »</b> <b>%s</b>", done)
	fmt.Fprintf(&b, "\n╰📦 <b>Total »</b> <i>%s</i>", total)
	return b.String()
}
