package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

// FileKind selects the Telegram upload method.
type FileKind int

const (
	KindDocument FileKind = iota
	KindVideo
	KindAudio
	KindPhoto
)

func (k FileKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindPhoto:
		return "photo"
	default:
		return "document"
	}
}

// Upload describes one file sent to a chat.
type Upload struct {
	ChatID    int64
	Path      string
	Name      string
	Caption   string
	Kind      FileKind
	Thumbnail string
	Stream    bool
}

// Service is the chat surface the rest of the bot depends on.
type Service interface {
	SendMessage(chatID int64, text string, keyboard any) (int, error)
	EditMessage(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	DeleteMessage(chatID int64, messageID int) error
	SendDocument(chatID int64, fileName string, data []byte, caption string) error
	SendFile(u Upload) (int, error)
	AnswerCallbackQuery(callbackConfig tgbotapi.CallbackConfig)
	ForwardMessage(toChatID int64, fromChat string, messageID int) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot implements Service on top of the Bot API.
type Bot struct {
	Api *tgbotapi.BotAPI
	// fileEndpoint is the file download URL pattern, token and path filled in.
	fileEndpoint string
}

var _ Service = (*Bot)(nil)

// NewBot connects to the Bot API. A non-empty endpoint selects a self-hosted
// Bot API server, e.g. "http://localhost:8081".
func NewBot(botToken, endpoint string) (*Bot, error) {
	var (
		api *tgbotapi.BotAPI
		err error
	)
	fileEndpoint := tgbotapi.FileEndpoint
	if endpoint != "" {
		endpoint = strings.TrimRight(endpoint, "/")
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(botToken, endpoint+"/bot%s/%s")
		fileEndpoint = endpoint + "/file/bot%s/%s"
	} else {
		api, err = tgbotapi.NewBotAPI(botToken)
	}
	if err != nil {
		logutils.Log.WithError(err).Error("Error creating bot")
		return nil, fmt.Errorf("error creating bot: %w", err)
	}
	logutils.Log.Infof("Authorized on account %s", api.Self.UserName)
	return &Bot{Api: api, fileEndpoint: fileEndpoint}, nil
}

func (b *Bot) SendMessage(chatID int64, text string, keyboard any) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if keyboard != nil {
		switch k := keyboard.(type) {
		case tgbotapi.ReplyKeyboardMarkup:
			msg.ReplyMarkup = k
		case tgbotapi.ReplyKeyboardRemove:
			msg.ReplyMarkup = k
		case tgbotapi.InlineKeyboardMarkup:
			msg.ReplyMarkup = k
		}
	}
	sent, err := b.Api.Send(msg)
	if err != nil {
		logutils.Log.WithError(err).WithField("chat_id", chatID).Error("Message not sent")
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) EditMessage(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = markup
	_, err := b.Api.Request(edit)
	return err
}

func (b *Bot) DeleteMessage(chatID int64, messageID int) error {
	_, err := b.Api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	if err != nil {
		logutils.Log.WithError(err).Errorf("Failed to delete message %d in chat %d", messageID, chatID)
	}
	return err
}

func (b *Bot) SendDocument(chatID int64, fileName string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	if _, err := b.Api.Send(doc); err != nil {
		logutils.Log.WithError(err).WithField("file", fileName).Error("Failed to send document")
		return err
	}
	return nil
}

func (b *Bot) SendFile(u Upload) (int, error) {
	file := tgbotapi.FilePath(u.Path)
	var thumb tgbotapi.RequestFileData
	if u.Thumbnail != "" {
		thumb = tgbotapi.FilePath(u.Thumbnail)
	}

	var c tgbotapi.Chattable
	switch u.Kind {
	case KindVideo:
		v := tgbotapi.NewVideo(u.ChatID, file)
		v.Caption, v.ParseMode = u.Caption, tgbotapi.ModeHTML
		v.SupportsStreaming = u.Stream
		v.Thumb = thumb
		c = v
	case KindAudio:
		a := tgbotapi.NewAudio(u.ChatID, file)
		a.Caption, a.ParseMode = u.Caption, tgbotapi.ModeHTML
		a.Thumb = thumb
		c = a
	case KindPhoto:
		p := tgbotapi.NewPhoto(u.ChatID, file)
		p.Caption, p.ParseMode = u.Caption, tgbotapi.ModeHTML
		c = p
	default:
		d := tgbotapi.NewDocument(u.ChatID, file)
		d.Caption, d.ParseMode = u.Caption, tgbotapi.ModeHTML
		d.Thumb = thumb
		c = d
	}

	sent, err := b.Api.Send(c)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) AnswerCallbackQuery(callbackConfig tgbotapi.CallbackConfig) {
	if _, err := b.Api.Request(callbackConfig); err != nil {
		logutils.Log.WithError(err).Error("Failed to answer callback query")
	}
}

// ForwardMessage copies a message into toChatID and returns the copy, which
// carries the media file ids. fromChat is a numeric id or "@username".
func (b *Bot) ForwardMessage(toChatID int64, fromChat string, messageID int) (tgbotapi.Message, error) {
	fwd := tgbotapi.ForwardConfig{
		BaseChat:  tgbotapi.BaseChat{ChatID: toChatID},
		MessageID: messageID,
	}
	if strings.HasPrefix(fromChat, "@") {
		fwd.FromChannelUsername = fromChat
	} else {
		id, err := strconv.ParseInt(fromChat, 10, 64)
		if err != nil {
			return tgbotapi.Message{}, fmt.Errorf("invalid chat id %q: %w", fromChat, err)
		}
		fwd.FromChatID = id
	}
	return b.Api.Send(fwd)
}

func (b *Bot) GetFileDirectURL(fileID string) (string, error) {
	file, err := b.Api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}
	return fmt.Sprintf(b.fileEndpoint, b.Api.Token, file.FilePath), nil
}

func (b *Bot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.Api.GetUpdatesChan(config)
}

// IsIgnorableEditError reports edit failures that only mean the status
// message is gone or unchanged.
func IsIgnorableEditError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message is not modified") ||
		strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message not found")
}

// RetryAfter extracts the flood-wait delay in seconds from a Bot API error.
func RetryAfter(err error) (int, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return 0, true
	}
	return 0, false
}
