package testutils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackpal/bencode-go"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
)

const (
	pollInterval = 10 * time.Millisecond
	testFileMode = 0600
)

// TorrentPayload is the content described by WriteTorrent's metadata.
const TorrentPayload = "payload described by a single-file torrent"

// TestConfig returns a config rooted in tempDir with fast status updates.
func TestConfig(tempDir string) *config.Config {
	return &config.Config{
		BotToken:  "test-bot-token",
		OwnerID:   1001,
		WorkPath:  filepath.Join(tempDir, "work"),
		MirrorDir: filepath.Join(tempDir, "mirror"),
		LogLevel:  "debug",
		DBPath:    ":memory:",

		DownloadSettings: config.DownloadConfig{
			Aria2Connections: 4,
			StatusInterval:   10 * time.Millisecond,
		},

		UploadSettings: config.UploadConfig{
			SplitVideo:   true,
			StreamUpload: true,
			VideoOut:     "mp4",
			MaxRetries:   1,
			SizeCeiling:  config.DefaultUploadSizeCeiling,
		},

		Services: config.ServiceConfig{
			TeraboxAPI: "http://127.0.0.1:0/terabox",
		},
	}
}

// WriteTorrent writes a single-file torrent named name.torrent whose payload
// is name.txt of len(TorrentPayload) bytes.
func WriteTorrent(t *testing.T, dir, name string) string {
	t.Helper()

	meta := map[string]any{
		"announce":      "http://tracker.example.com:8080/announce",
		"creation date": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"created by":    "telegram-leecher-test",
		"info": map[string]any{
			"name":         name + ".txt",
			"length":       int64(len(TorrentPayload)),
			"piece length": 16384,
			"pieces":       "12345678901234567890",
		},
	}

	path := filepath.Join(dir, name+".torrent")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create torrent file: %v", err)
	}
	defer f.Close()
	if err := bencode.Marshal(f, meta); err != nil {
		t.Fatalf("Failed to encode torrent: %v", err)
	}
	return path
}

// CreateTestDataFile writes size bytes of patterned data to dir/name.
func CreateTestDataFile(t *testing.T, dir, name string, size int64) string {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, testFileMode); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}
	return path
}

// ServeFiles serves body by URL path and 404s everything else.
func ServeFiles(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-bittorrent")
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Expected file %s to exist, but it doesn't", path)
	}
}

func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("Expected file %s to not exist, but it does", path)
	}
}

// WaitForCondition polls condition until it holds or timeout passes.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}
