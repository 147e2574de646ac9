package torrent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jackpal/bencode-go"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/testutils"
)

func writeTorrent(t *testing.T, dir string, meta map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "meta.torrent")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create torrent: %v", err)
	}
	defer f.Close()
	if err := bencode.Marshal(f, meta); err != nil {
		t.Fatalf("Failed to encode torrent: %v", err)
	}
	return path
}

func TestParseMeta(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, dir string) string
		wantName  string
		wantSize  int64
		wantFiles int
		wantErr   bool
	}{
		{
			name: "Single file torrent",
			setup: func(t *testing.T, dir string) string {
				return testutils.WriteTorrent(t, dir, "single")
			},
			wantName:  "single.txt",
			wantSize:  int64(len(testutils.TorrentPayload)),
			wantFiles: 1,
		},
		{
			name: "Multi file torrent",
			setup: func(t *testing.T, dir string) string {
				return writeTorrent(t, dir, map[string]any{
					"announce": "http://tracker.example.com/announce",
					"info": map[string]any{
						"name":         "Season 1",
						"piece length": 16384,
						"pieces":       "12345678901234567890",
						"files": []any{
							map[string]any{"length": int64(100), "path": []string{"e01.mkv"}},
							map[string]any{"length": int64(250), "path": []string{"e02.mkv"}},
						},
					},
				})
			},
			wantName:  "Season 1",
			wantSize:  350,
			wantFiles: 2,
		},
		{
			name: "Missing name",
			setup: func(t *testing.T, dir string) string {
				return writeTorrent(t, dir, map[string]any{
					"announce": "http://tracker.example.com/announce",
					"info":     map[string]any{"length": int64(1)},
				})
			},
			wantErr: true,
		},
		{
			name: "Missing file",
			setup: func(_ *testing.T, dir string) string {
				return filepath.Join(dir, "nope.torrent")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseMeta(tt.setup(t, t.TempDir()))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if meta.Info.Name != tt.wantName {
				t.Errorf("Expected name '%s', got '%s'", tt.wantName, meta.Info.Name)
			}
			if meta.TotalSize() != tt.wantSize {
				t.Errorf("Expected size %d, got %d", tt.wantSize, meta.TotalSize())
			}
			if meta.FileCount() != tt.wantFiles {
				t.Errorf("Expected %d files, got %d", tt.wantFiles, meta.FileCount())
			}
		})
	}
}
