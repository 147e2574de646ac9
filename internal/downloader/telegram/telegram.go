// Package telegram downloads files referenced by t.me message links.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/classifier"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	engineLabel = "BotAPI 💥"
	// PublicAPILimit is the largest file the public Bot API serves.
	PublicAPILimit = 20 * 1024 * 1024
)

// Messenger is the slice of the bot used to reach a referenced message.
type Messenger interface {
	ForwardMessage(toChatID int64, fromChat string, messageID int) (tgbotapi.Message, error)
	DeleteMessage(chatID int64, messageID int) error
	GetFileDirectURL(fileID string) (string, error)
}

// Media is the downloadable part of a message.
type Media struct {
	FileID string
	Name   string
	Size   int64
}

// Engine forwards the referenced message into the owner chat, resolves the
// file through the Bot API and downloads it. The forwarded copy is deleted
// afterwards.
type Engine struct {
	bot     Messenger
	fetcher *direct.Fetcher
	ownerID int64
	// limit is the largest downloadable file; 0 means unlimited.
	limit int64
}

func NewEngine(bot Messenger, fetcher *direct.Fetcher, ownerID int64, selfHosted bool) *Engine {
	var limit int64 = PublicAPILimit
	if selfHosted {
		limit = 0
	}
	return &Engine{bot: bot, fetcher: fetcher, ownerID: ownerID, limit: limit}
}

func (*Engine) Name() string {
	return "telegram"
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	ref, err := classifier.ParseTelegramLink(req.Link)
	if err != nil {
		return downloader.Failure("Unknown (Media Identify Fail)", "Invalid TG link format: "+req.Link)
	}

	media, cleanup, err := e.identify(ref)
	if err != nil {
		return downloader.Failure("Unknown (Media Identify Fail)", err.Error())
	}
	defer cleanup()

	name := media.Name
	if req.FilenameHint != "" {
		name = utils.CleanFilename(req.FilenameHint)
	}
	if e.limit > 0 && media.Size > e.limit {
		return downloader.Failuref(name, "TG Download Error: file is %s, Bot API limit is %s",
			utils.SizeUnit(float64(media.Size)), utils.SizeUnit(float64(e.limit)))
	}

	fileURL, err := e.bot.GetFileDirectURL(media.FileID)
	if err != nil {
		return downloader.Failure(name, "TG Download Error: "+utils.ShortReason(err, 100))
	}

	path, size, err := e.fetcher.Fetch(ctx, direct.FetchRequest{
		URL:      fileURL,
		DestDir:  req.DestDir,
		Name:     name,
		Header:   fmt.Sprintf("📥 DOWNLOADING FROM TG » 🔗Link %02d", req.Ordinal),
		Engine:   engineLabel,
		Progress: req.Progress,
	})
	if err != nil {
		logutils.Log.WithError(err).WithFields(map[string]any{
			"link": req.Link,
			"file": name,
		}).Error("Error downloading Telegram file")
		if ctx.Err() != nil {
			return downloader.Failure(name, downloader.ReasonCancelled)
		}
		return downloader.Failure(name, "TG Download Error: "+utils.ShortReason(err, 100))
	}
	if size == 0 {
		return downloader.Failure(name, "TG Download Error: Downloaded file missing or empty")
	}
	logutils.Log.WithField("path", path).Info("Finished Telegram download")
	return downloader.Success(name, size)
}

// Size implements downloader.Sizer.
func (e *Engine) Size(_ context.Context, link string) (int64, error) {
	ref, err := classifier.ParseTelegramLink(link)
	if err != nil {
		return 0, err
	}
	media, cleanup, err := e.identify(ref)
	if err != nil {
		return 0, err
	}
	cleanup()
	return media.Size, nil
}

// identify forwards the message and extracts its media. cleanup deletes the
// forwarded copy.
func (e *Engine) identify(ref classifier.TelegramRef) (Media, func(), error) {
	noop := func() {}
	msg, err := e.bot.ForwardMessage(e.ownerID, ref.ChatString(), ref.MessageID)
	if err != nil {
		logutils.Log.WithError(err).WithFields(map[string]any{
			"chat":       ref.ChatString(),
			"message_id": ref.MessageID,
		}).Error("Error getting Telegram message")
		return Media{}, noop, fmt.Errorf("Could not get TG message: %s", messageReason(err, ref))
	}
	cleanup := func() {
		if err := e.bot.DeleteMessage(e.ownerID, msg.MessageID); err != nil {
			logutils.Log.WithError(err).Warn("Failed to delete forwarded Telegram message")
		}
	}
	media, ok := MediaOf(&msg)
	if !ok {
		cleanup()
		return Media{}, noop, errors.New("Msg has no media.")
	}
	return media, cleanup, nil
}

func messageReason(err error, ref classifier.TelegramRef) string {
	text := err.Error()
	switch {
	case strings.Contains(text, "chat not found"), strings.Contains(text, "CHAT_ID_INVALID"), strings.Contains(text, "PEER_ID_INVALID"):
		return fmt.Sprintf("Chat ID '%s' invalid/inaccessible.", ref.ChatString())
	case strings.Contains(text, "message to forward not found"), strings.Contains(text, "MESSAGE_ID_INVALID"):
		return fmt.Sprintf("Message ID '%d' invalid in chat '%s'.", ref.MessageID, ref.ChatString())
	default:
		return utils.ShortReason(err, 100)
	}
}

// MediaOf picks the first downloadable attachment of a message and names it.
func MediaOf(msg *tgbotapi.Message) (Media, bool) {
	var (
		m    Media
		mime string
	)
	switch {
	case msg.Document != nil:
		m = Media{FileID: msg.Document.FileID, Name: msg.Document.FileName, Size: int64(msg.Document.FileSize)}
		mime = msg.Document.MimeType
	case msg.Video != nil:
		m = Media{FileID: msg.Video.FileID, Name: msg.Video.FileName, Size: int64(msg.Video.FileSize)}
		mime = msg.Video.MimeType
	case msg.Audio != nil:
		m = Media{FileID: msg.Audio.FileID, Name: msg.Audio.FileName, Size: int64(msg.Audio.FileSize)}
		mime = msg.Audio.MimeType
	case len(msg.Photo) > 0:
		p := msg.Photo[len(msg.Photo)-1]
		m = Media{FileID: p.FileID, Size: int64(p.FileSize)}
		mime = "image/jpeg"
	case msg.Voice != nil:
		m = Media{FileID: msg.Voice.FileID, Size: int64(msg.Voice.FileSize)}
		mime = msg.Voice.MimeType
	case msg.VideoNote != nil:
		m = Media{FileID: msg.VideoNote.FileID, Size: int64(msg.VideoNote.FileSize)}
		mime = "video/mp4"
	case msg.Animation != nil:
		m = Media{FileID: msg.Animation.FileID, Name: msg.Animation.FileName, Size: int64(msg.Animation.FileSize)}
		mime = msg.Animation.MimeType
	case msg.Sticker != nil:
		m = Media{FileID: msg.Sticker.FileID, Size: int64(msg.Sticker.FileSize)}
		mime = "image/webp"
	default:
		return Media{}, false
	}

	if m.Name == "" {
		ext := "bin"
		if i := strings.LastIndex(mime, "/"); i >= 0 && i < len(mime)-1 {
			ext = mime[i+1:]
		}
		id := m.FileID
		if id == "" {
			id = strconv.Itoa(msg.MessageID)
		}
		m.Name = fmt.Sprintf("telegram_%s.%s", id, ext)
	}
	m.Name = utils.CleanFilename(m.Name)
	if m.Name == "" {
		m.Name = "Unknown_Telegram_File"
	}
	return m, true
}
