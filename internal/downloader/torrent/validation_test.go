package torrent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/testutils"
)

const errorPage = `<!DOCTYPE html>
<html>
<head><title>Error</title></head>
<body><h1>File not found</h1></body>
</html>`

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		head    string
		wantErr string
	}{
		{"bencoded with announce", "d8:announce9:test-url4:infod4:name4:testee", ""},
		{"bencoded with info only", "d4:infod4:name9:test-fileee", ""},
		{"tracker error page", errorPage, "HTML page"},
		{"single leading tag", "<body>login required</body>", "HTML page"},
		{"pasted magnet", "  MAGNET:?xt=urn:btih:1234567890abcdef1234567890abcdef12345678  ", "magnet link"},
		{"dictionary without torrent keys", "d4:spam5:eggse", "not a bencoded torrent"},
		{"plain text", "invalid bencode data", "not a bencoded torrent"},
		{"empty", "   ", "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent([]byte(tt.head))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0600); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"real torrent", testutils.WriteTorrent(t, dir, "ok"), ""},
		{"error page saved as torrent", write("page.torrent", errorPage), "HTML page"},
		{"tiny file", write("tiny.torrent", "d"), "too small"},
		{"missing file", filepath.Join(dir, "missing.torrent"), "cannot open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFile(tt.path)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateMagnetBtih(t *testing.T) {
	tests := []struct {
		name    string
		magnet  string
		wantErr string
	}{
		{"40 hex", "magnet:?xt=urn:btih:1234567890abcdef1234567890abcdef12345678&dn=test", ""},
		{"32 base32", "magnet:?xt=urn:btih:ABCDEFGHIJKLMNOPQRSTUVWXYZ234567&dn=test", ""},
		{"24 hex", "magnet:?xt=urn:btih:3A26B5C7D0E082D990F4F24B&dn=test", "24-character"},
		{"not a magnet", "http://example.com/file.torrent", ""},
		{"no btih", "magnet:?dn=test", ""},
		{"encoded ampersand", "magnet:?xt=urn:btih:ABCDEFGHIJKLMNOPQRSTUVWXYZ234567%26tr=udp://tracker.example.com:80", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMagnetBtih(tt.magnet)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
