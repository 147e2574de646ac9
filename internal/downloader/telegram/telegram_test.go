package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

type fakeMessenger struct {
	msg        tgbotapi.Message
	forwardErr error
	baseURL    string

	forwardedFrom string
	deleted       []int
}

func (f *fakeMessenger) ForwardMessage(_ int64, fromChat string, messageID int) (tgbotapi.Message, error) {
	f.forwardedFrom = fromChat
	if f.forwardErr != nil {
		return tgbotapi.Message{}, f.forwardErr
	}
	m := f.msg
	m.MessageID = 900 + messageID
	return m, nil
}

func (f *fakeMessenger) DeleteMessage(_ int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) GetFileDirectURL(fileID string) (string, error) {
	return f.baseURL + "/file/" + fileID, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("telegram bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEngine_DownloadDocument(t *testing.T) {
	srv := newServer(t)
	bot := &fakeMessenger{
		baseURL: srv.URL,
		msg: tgbotapi.Message{Document: &tgbotapi.Document{
			FileID:   "doc1",
			FileName: "report.pdf",
			FileSize: 14,
		}},
	}
	dir := t.TempDir()
	e := NewEngine(bot, direct.NewFetcher(), 1001, false)

	res := e.Download(context.Background(), downloader.Request{
		Link:    "https://t.me/c/12345/67",
		Ordinal: 1,
		DestDir: dir,
	})
	if !res.OK() {
		t.Fatalf("Expected success, got %s", res)
	}
	if res.Filename != "report.pdf" || res.Bytes != int64(len("telegram bytes")) {
		t.Errorf("Unexpected result %s", res)
	}
	if bot.forwardedFrom != "-10012345" {
		t.Errorf("Expected forward from -10012345, got %s", bot.forwardedFrom)
	}
	if len(bot.deleted) != 1 || bot.deleted[0] != 967 {
		t.Errorf("Expected forwarded copy 967 to be deleted, got %v", bot.deleted)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.pdf")); err != nil {
		t.Errorf("Expected downloaded file: %v", err)
	}
}

func TestEngine_Failures(t *testing.T) {
	tests := []struct {
		name string
		bot  *fakeMessenger
		link string
		want string
	}{
		{
			name: "Malformed link",
			bot:  &fakeMessenger{},
			link: "https://t.me/c/abc/def",
			want: "Invalid TG link format: https://t.me/c/abc/def",
		},
		{
			name: "Chat not found",
			bot:  &fakeMessenger{forwardErr: errors.New("Bad Request: chat not found")},
			link: "https://t.me/somechannel/5",
			want: "Could not get TG message: Chat ID '@somechannel' invalid/inaccessible.",
		},
		{
			name: "No media",
			bot:  &fakeMessenger{msg: tgbotapi.Message{Text: "hello"}},
			link: "https://t.me/somechannel/5",
			want: "Msg has no media.",
		},
		{
			name: "Too large for public API",
			bot: &fakeMessenger{msg: tgbotapi.Message{Video: &tgbotapi.Video{
				FileID: "v", FileName: "big.mp4", FileSize: PublicAPILimit + 1,
			}}},
			link: "https://t.me/somechannel/5",
			want: "TG Download Error: file is",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.bot, direct.NewFetcher(), 1001, false)
			res := e.Download(context.Background(), downloader.Request{Link: tt.link, DestDir: t.TempDir()})
			if res.OK() {
				t.Fatal("Expected failure")
			}
			if !strings.HasPrefix(res.Reason, tt.want) {
				t.Errorf("Expected reason starting with '%s', got '%s'", tt.want, res.Reason)
			}
		})
	}
}

func TestEngine_SelfHostedLiftsLimit(t *testing.T) {
	srv := newServer(t)
	bot := &fakeMessenger{
		baseURL: srv.URL,
		msg: tgbotapi.Message{Video: &tgbotapi.Video{
			FileID: "v", FileName: "big.mp4", FileSize: PublicAPILimit + 1,
		}},
	}
	e := NewEngine(bot, direct.NewFetcher(), 1001, true)
	res := e.Download(context.Background(), downloader.Request{Link: "https://t.me/chan/1", DestDir: t.TempDir()})
	if !res.OK() {
		t.Fatalf("Expected success with self-hosted API, got %s", res)
	}
}

func TestEngine_Size(t *testing.T) {
	bot := &fakeMessenger{msg: tgbotapi.Message{Audio: &tgbotapi.Audio{FileID: "a", FileSize: 4096}}}
	e := NewEngine(bot, direct.NewFetcher(), 1001, false)
	size, err := e.Size(context.Background(), "https://t.me/chan/3")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if size != 4096 {
		t.Errorf("Expected 4096, got %d", size)
	}
	if len(bot.deleted) != 1 {
		t.Errorf("Expected forwarded copy to be deleted, got %v", bot.deleted)
	}
}

func TestMediaOf(t *testing.T) {
	tests := []struct {
		name string
		msg  tgbotapi.Message
		want string
		ok   bool
	}{
		{"Document", tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d", FileName: "a:b.zip"}}, "a_b.zip", true},
		{"Photo picks largest", tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "s"}, {FileID: "l"}}}, "telegram_l.jpeg", true},
		{"Voice from mime", tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v", MimeType: "audio/ogg"}}, "telegram_v.ogg", true},
		{"Text only", tgbotapi.Message{Text: "x"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := MediaOf(&tt.msg)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && m.Name != tt.want {
				t.Errorf("Expected name '%s', got '%s'", tt.want, m.Name)
			}
		})
	}
}
