package direct

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
)

type recordedRequest struct {
	mu      sync.Mutex
	referer string
	cookies map[string]string
}

func newServer(t *testing.T, rec *recordedRequest, payload []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && rec != nil {
			rec.mu.Lock()
			rec.referer = r.Header.Get("Referer")
			rec.cookies = map[string]string{}
			for _, c := range r.Cookies() {
				rec.cookies[c.Name] = c.Value
			}
			rec.mu.Unlock()
		}
		http.ServeContent(w, r, "file.bin", time.Now(), bytes.NewReader(payload))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEngine_DownloadSuccess(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	rec := &recordedRequest{}
	srv := newServer(t, rec, payload)

	cfg := config.ServiceConfig{BitsoIdentity: "id-cookie", BitsoPHPSessID: "sess"}
	engine := NewEngine(NewFetcherWithClient(srv.Client()), BitsoProfile(cfg))
	dest := t.TempDir()

	res := engine.Download(context.Background(), downloader.Request{
		Link:         srv.URL + "/files/archive.bin",
		Ordinal:      1,
		FilenameHint: "my file.bin",
		DestDir:      dest,
	})

	if !res.OK() {
		t.Fatalf("Expected success, got %s", res)
	}
	if res.Bytes != int64(len(payload)) {
		t.Errorf("Expected %d bytes, got %d", len(payload), res.Bytes)
	}
	if res.Filename != "my file.bin" {
		t.Errorf("Expected filename 'my file.bin', got '%s'", res.Filename)
	}
	if _, err := os.Stat(filepath.Join(dest, "my file.bin")); err != nil {
		t.Errorf("Expected downloaded file on disk: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.referer != "https://panel.bitso.ir/" {
		t.Errorf("Expected bitso referer, got '%s'", rec.referer)
	}
	if rec.cookies["_identity"] != "id-cookie" || rec.cookies["PHPSESSID"] != "sess" {
		t.Errorf("Expected bitso cookies, got %v", rec.cookies)
	}
}

func TestEngine_DownloadNotFound(t *testing.T) {
	srv := newServer(t, nil, nil)
	engine := NewEngine(NewFetcherWithClient(srv.Client()), DebridProfile())
	dest := t.TempDir()

	res := engine.Download(context.Background(), downloader.Request{
		Link:    srv.URL + "/missing",
		Ordinal: 3,
		DestDir: dest,
	})

	if res.OK() {
		t.Fatalf("Expected failure, got %s", res)
	}
	if res.Reason != "HTTP Error: 404 Not Found" {
		t.Errorf("Expected 404 reason, got '%s'", res.Reason)
	}
	if res.Filename != "debrid_file_3" {
		t.Errorf("Expected default filename debrid_file_3, got '%s'", res.Filename)
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Errorf("Expected partial file to be removed, found %d entries", len(entries))
	}
}

func TestEngine_MissingLink(t *testing.T) {
	engine := NewEngine(NewFetcher(), NZBCloudProfile(config.ServiceConfig{}))
	res := engine.Download(context.Background(), downloader.Request{Ordinal: 1, FilenameHint: "x.nzb", DestDir: t.TempDir()})
	if res.OK() || res.Reason != "Missing URL/Filename" {
		t.Errorf("Expected missing URL failure, got %s", res)
	}
}

func TestReason(t *testing.T) {
	if got := Reason(context.DeadlineExceeded); got != "Timeout" {
		t.Errorf("Expected Timeout, got '%s'", got)
	}
	if got := Reason(os.ErrPermission); !strings.HasPrefix(got, "Unexpected Error: ") {
		t.Errorf("Expected unexpected error prefix, got '%s'", got)
	}
}

func TestNameFromURL(t *testing.T) {
	tests := map[string]string{
		"https://host/path/My%20File.zip?token=abc": "My File.zip",
		"https://host/":                              "",
		"https://host/a/b.tar.gz#frag":               "b.tar.gz",
	}
	for in, want := range tests {
		if got := NameFromURL(in); got != want {
			t.Errorf("NameFromURL(%q): expected '%s', got '%s'", in, want, got)
		}
	}
}
