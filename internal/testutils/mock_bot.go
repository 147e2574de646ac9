package testutils

import (
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/bot"
)

// MockMessage captures a single message sent by MockBot.
type MockMessage struct {
	ID       int
	ChatID   int64
	Text     string
	Keyboard any
}

// MockDocument captures a single document sent by MockBot.
type MockDocument struct {
	ChatID   int64
	FileName string
	Data     []byte
	Caption  string
}

// MockEdit captures a status message edit.
type MockEdit struct {
	ChatID    int64
	MessageID int
	Text      string
	Markup    *tgbotapi.InlineKeyboardMarkup
}

// MockBot implements bot.Service for testing.
// SentMessages collects every message sent via SendMessage.
// SentDocuments collects every document sent via SendDocument.
// Uploads collects every file sent via SendFile.
type MockBot struct {
	mu sync.Mutex

	SentMessages  []MockMessage
	SentDocuments []MockDocument
	Edits         []MockEdit
	Uploads       []bot.Upload
	Deleted       []int
	Answers       []tgbotapi.CallbackConfig

	// SendDocumentError, if set, is returned by SendDocument.
	SendDocumentError error
	// EditError, if set, is returned by EditMessage. Failed edits are still
	// recorded in Edits.
	EditError error
	// UploadErrors are returned by successive SendFile calls; nil entries
	// and calls past the end succeed.
	UploadErrors []error
	// Forwarded is returned by ForwardMessage; ForwardError takes precedence.
	Forwarded    tgbotapi.Message
	ForwardError error
	// FileURL is returned by GetFileDirectURL.
	FileURL string

	nextID      int
	uploadCalls int
}

var _ bot.Service = (*MockBot)(nil)

func NewMockBot() *MockBot {
	return &MockBot{nextID: 100}
}

func (m *MockBot) SendMessage(chatID int64, text string, keyboard any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.SentMessages = append(m.SentMessages, MockMessage{
		ID:       m.nextID,
		ChatID:   chatID,
		Text:     text,
		Keyboard: keyboard,
	})
	return m.nextID, nil
}

func (m *MockBot) EditMessage(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, MockEdit{ChatID: chatID, MessageID: messageID, Text: text, Markup: markup})
	return m.EditError
}

func (m *MockBot) DeleteMessage(_ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, messageID)
	return nil
}

func (m *MockBot) SendDocument(chatID int64, fileName string, data []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendDocumentError != nil {
		return m.SendDocumentError
	}
	m.SentDocuments = append(m.SentDocuments, MockDocument{
		ChatID:   chatID,
		FileName: fileName,
		Data:     data,
		Caption:  caption,
	})
	return nil
}

func (m *MockBot) SendFile(u bot.Upload) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.uploadCalls
	m.uploadCalls++
	if call < len(m.UploadErrors) && m.UploadErrors[call] != nil {
		return 0, m.UploadErrors[call]
	}
	m.nextID++
	m.Uploads = append(m.Uploads, u)
	return m.nextID, nil
}

func (m *MockBot) AnswerCallbackQuery(c tgbotapi.CallbackConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Answers = append(m.Answers, c)
}

func (m *MockBot) ForwardMessage(_ int64, _ string, _ int) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForwardError != nil {
		return tgbotapi.Message{}, m.ForwardError
	}
	return m.Forwarded, nil
}

func (m *MockBot) GetFileDirectURL(_ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FileURL == "" {
		return "", errors.New("file not found")
	}
	return m.FileURL, nil
}

// UploadAttempts counts every SendFile call, failed ones included.
func (m *MockBot) UploadAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadCalls
}

// Messages returns a copy of the sent messages.
func (m *MockBot) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.SentMessages...)
}

// Documents returns a copy of the sent documents.
func (m *MockBot) Documents() []MockDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockDocument(nil), m.SentDocuments...)
}

// GetLastMessage returns the most recently sent message, or nil if none.
func (m *MockBot) GetLastMessage() *MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentMessages) == 0 {
		return nil
	}
	msg := m.SentMessages[len(m.SentMessages)-1]
	return &msg
}

// GetLastDocument returns the most recently sent document, or nil if none.
func (m *MockBot) GetLastDocument() *MockDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentDocuments) == 0 {
		return nil
	}
	doc := m.SentDocuments[len(m.SentDocuments)-1]
	return &doc
}

// ClearMessages resets the captured messages.
func (m *MockBot) ClearMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = nil
	m.SentDocuments = nil
	m.Edits = nil
}
