package torrent

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/testutils"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

const testHash = "1234567890abcdef1234567890abcdef12345678"

func TestEngine_MagnetUsesDisplayName(t *testing.T) {
	payload := testutils.NewMockEngine("aria2")
	e := NewEngine(payload, direct.NewFetcher())

	res := e.Download(context.Background(), downloader.Request{
		Link:    "magnet:?xt=urn:btih:" + testHash + "&dn=Big%20Buck%20Bunny",
		Ordinal: 1,
		DestDir: t.TempDir(),
	})
	if !res.OK() {
		t.Fatalf("Expected success, got %s", res)
	}
	calls := payload.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 payload call, got %d", len(calls))
	}
	if calls[0].FilenameHint != "Big Buck Bunny" {
		t.Errorf("Expected hint 'Big Buck Bunny', got '%s'", calls[0].FilenameHint)
	}
}

func TestEngine_InvalidMagnet(t *testing.T) {
	payload := testutils.NewMockEngine("aria2")
	e := NewEngine(payload, direct.NewFetcher())

	res := e.Download(context.Background(), downloader.Request{
		Link:    "magnet:?xt=urn:btih:3A26B5C7D0E082D990F4F24B",
		DestDir: t.TempDir(),
	})
	if res.OK() || !strings.HasPrefix(res.Reason, "Invalid magnet link") {
		t.Errorf("Expected invalid magnet failure, got %s", res)
	}
	if len(payload.Calls()) != 0 {
		t.Error("Expected payload engine not to be called")
	}
}

func TestEngine_RemoteTorrent(t *testing.T) {
	torrentPath := testutils.WriteTorrent(t, t.TempDir(), "remote")
	data, err := os.ReadFile(torrentPath)
	if err != nil {
		t.Fatalf("Failed to read torrent: %v", err)
	}
	srv := testutils.ServeFiles(t, map[string]string{
		"/good.torrent": string(data),
		"/page.torrent": "<!DOCTYPE html><html><body>login</body></html>",
	})

	payload := testutils.NewMockEngine("aria2")
	e := NewEngine(payload, direct.NewFetcherWithClient(srv.Client()))

	res := e.Download(context.Background(), downloader.Request{
		Link:    srv.URL + "/good.torrent",
		Ordinal: 2,
		DestDir: t.TempDir(),
	})
	if !res.OK() {
		t.Fatalf("Expected success, got %s", res)
	}
	calls := payload.Calls()
	if calls[0].FilenameHint != "remote.txt" {
		t.Errorf("Expected hint from metadata 'remote.txt', got '%s'", calls[0].FilenameHint)
	}
	if !strings.HasSuffix(calls[0].Link, ".torrent") || strings.HasPrefix(calls[0].Link, "http") {
		t.Errorf("Expected a local .torrent path to be handed off, got '%s'", calls[0].Link)
	}

	res = e.Download(context.Background(), downloader.Request{
		Link:    srv.URL + "/page.torrent",
		DestDir: t.TempDir(),
	})
	if res.OK() || !strings.Contains(res.Reason, "HTML") {
		t.Errorf("Expected HTML validation failure, got %s", res)
	}

	size, err := e.Size(context.Background(), srv.URL+"/good.torrent")
	if err != nil || size != int64(len(testutils.TorrentPayload)) {
		t.Errorf("Unexpected size %d (%v)", size, err)
	}
}

func TestParseMagnet(t *testing.T) {
	m, err := ParseMagnet("magnet:?xt=urn:btih:" + testHash + "&dn=test&tr=udp://tracker.example.com:80")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.InfoHash != testHash {
		t.Errorf("Expected hash %s, got %s", testHash, m.InfoHash)
	}
	if m.Name != "test" {
		t.Errorf("Expected name 'test', got '%s'", m.Name)
	}
	if len(m.Trackers) != 1 {
		t.Errorf("Expected 1 tracker, got %d", len(m.Trackers))
	}
}
