package gdrive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

// fakeDrive serves a tiny Drive tree:
//
//	folder1/
//	  a.txt
//	  sub/
//	    b.txt
//	  doc (Google Doc)
type fakeDrive struct {
	files    map[string]File
	children map[string][]string
	content  map[string]string
	status   map[string]int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		files: map[string]File{
			"folder1": {ID: "folder1", Name: "My Folder", MimeType: FolderMimeType},
			"a":       {ID: "a", Name: "a.txt", MimeType: "text/plain", Size: 5},
			"sub":     {ID: "sub", Name: "sub", MimeType: FolderMimeType},
			"b":       {ID: "b", Name: "b.txt", MimeType: "text/plain", Size: 3},
			"doc":     {ID: "doc", Name: "Notes", MimeType: "application/vnd.google-apps.document"},
			"single":  {ID: "single", Name: "movie.mkv", MimeType: "video/x-matroska", Size: 7},
		},
		children: map[string][]string{
			"folder1": {"a", "sub"},
			"sub":     {"b"},
		},
		content: map[string]string{"a": "hello", "b": "abc", "single": "payload"},
		status:  map[string]int{},
	}
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != "test-key" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if r.URL.Path == "/files" {
		q := r.URL.Query().Get("q")
		parent := strings.SplitN(q, "'", 3)[1]
		var out []map[string]any
		for _, id := range d.children[parent] {
			out = append(out, encodeFile(d.files[id]))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": out})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/files/")
	if code := d.status[id]; code != 0 {
		w.WriteHeader(code)
		return
	}
	f, ok := d.files[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.URL.Query().Get("alt") == "media" {
		_, _ = w.Write([]byte(d.content[id]))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(encodeFile(f))
}

func encodeFile(f File) map[string]any {
	m := map[string]any{"id": f.ID, "name": f.Name, "mimeType": f.MimeType}
	if !f.IsFolder() && !f.IsGoogleDoc() {
		m["size"] = strconv.FormatInt(f.Size, 10)
	}
	return m
}

func newTestEngine(t *testing.T, d *fakeDrive) *Engine {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return NewEngine(NewClient(srv.URL, "test-key"), direct.NewFetcher())
}

func TestFileID(t *testing.T) {
	tests := []struct {
		link    string
		want    string
		wantErr bool
	}{
		{"https://drive.google.com/file/d/1AbC-_x/view?usp=sharing", "1AbC-_x", false},
		{"https://drive.google.com/drive/folders/0Bxyz", "0Bxyz", false},
		{"https://drive.google.com/open?id=XYZ123", "XYZ123", false},
		{"https://drive.google.com/", "", true},
	}
	for _, tt := range tests {
		got, err := FileID(tt.link)
		if (err != nil) != tt.wantErr {
			t.Errorf("FileID(%q): expected error=%v, got %v", tt.link, tt.wantErr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FileID(%q): expected '%s', got '%s'", tt.link, tt.want, got)
		}
	}
}

func TestEngine_SingleFile(t *testing.T) {
	e := newTestEngine(t, newFakeDrive())
	dir := t.TempDir()

	res := e.Download(context.Background(), downloader.Request{
		Link:    "https://drive.google.com/file/d/single/view",
		Ordinal: 1,
		DestDir: dir,
	})
	if !res.OK() {
		t.Fatalf("Expected success, got %s", res)
	}
	if res.Filename != "movie.mkv" || res.Bytes != 7 {
		t.Errorf("Unexpected result %s", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "movie.mkv"))
	if err != nil || string(data) != "payload" {
		t.Errorf("Expected file content 'payload', got %q (%v)", data, err)
	}
}

func TestEngine_FolderRecursive(t *testing.T) {
	e := newTestEngine(t, newFakeDrive())
	dir := t.TempDir()

	res := e.Download(context.Background(), downloader.Request{
		Link:    "https://drive.google.com/drive/folders/folder1",
		Ordinal: 1,
		DestDir: dir,
	})
	if !res.OK() {
		t.Fatalf("Expected success, got %s", res)
	}
	if res.Filename != "My Folder" || res.Bytes != 8 {
		t.Errorf("Unexpected result %s", res)
	}
	for _, p := range []string{"My Folder/a.txt", "My Folder/sub/b.txt"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Errorf("Expected %s to exist: %v", p, err)
		}
	}
}

func TestEngine_FolderPartialFailureKeepsFiles(t *testing.T) {
	d := newFakeDrive()
	d.children["folder1"] = append(d.children["folder1"], "doc")
	e := newTestEngine(t, d)
	dir := t.TempDir()

	res := e.Download(context.Background(), downloader.Request{
		Link:    "https://drive.google.com/drive/folders/folder1",
		DestDir: dir,
	})
	if res.OK() {
		t.Fatal("Expected failure when a folder item fails")
	}
	if !strings.Contains(res.Reason, "1 of 3 files failed") || !strings.Contains(res.Reason, "Export first") {
		t.Errorf("Unexpected reason '%s'", res.Reason)
	}
	if _, err := os.Stat(filepath.Join(dir, "My Folder", "a.txt")); err != nil {
		t.Errorf("Expected downloaded files to be kept: %v", err)
	}
}

func TestEngine_Errors(t *testing.T) {
	d := newFakeDrive()
	d.status["locked"] = http.StatusForbidden
	e := newTestEngine(t, d)

	tests := []struct {
		name string
		link string
		want string
	}{
		{"Bad link", "https://drive.google.com/", "G-Drive ID not found."},
		{"Missing", "https://drive.google.com/file/d/nothere/view", "GDrive Metadata Error: File/Folder not found/permission denied."},
		{"Forbidden", "https://drive.google.com/file/d/locked/view", "GDrive Metadata Error: Permission denied."},
		{"Google Doc", "https://drive.google.com/file/d/doc/view", "Cannot download GDocs (Notes). Export first."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Download(context.Background(), downloader.Request{Link: tt.link, DestDir: t.TempDir()})
			if res.OK() {
				t.Fatal("Expected failure")
			}
			if res.Reason != tt.want {
				t.Errorf("Expected reason '%s', got '%s'", tt.want, res.Reason)
			}
		})
	}
}

func TestEngine_MissingAPIKey(t *testing.T) {
	e := NewEngine(NewClient("http://127.0.0.1:1", ""), direct.NewFetcher())
	res := e.Download(context.Background(), downloader.Request{
		Link:    "https://drive.google.com/file/d/x/view",
		DestDir: t.TempDir(),
	})
	if res.Reason != "GDrive Service Error." {
		t.Errorf("Expected service error, got '%s'", res.Reason)
	}
}

func TestEngine_SizeAndDisplayName(t *testing.T) {
	e := newTestEngine(t, newFakeDrive())
	ctx := context.Background()

	size, err := e.Size(ctx, "https://drive.google.com/drive/folders/folder1")
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 8 {
		t.Errorf("Expected folder size 8, got %d", size)
	}
	name, err := e.DisplayName(ctx, "https://drive.google.com/file/d/single/view")
	if err != nil || name != "movie.mkv" {
		t.Errorf("Expected name 'movie.mkv', got '%s' (%v)", name, err)
	}
}
