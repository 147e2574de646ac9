package mega

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

func writeIntoPath(name, data string) func(args []string) error {
	return func(args []string) error {
		for i := 0; i < len(args)-1; i++ {
			if args[i] == "--path" {
				return os.WriteFile(filepath.Join(args[i+1], name), []byte(data), 0o600)
			}
		}
		return nil
	}
}

func TestEngine_Download(t *testing.T) {
	exec := process.NewMockExecutor()
	exec.On(binary, process.Script{
		Lines: []string{
			"movie.mkv: 50.00% - 5.0 B (5 bytes) of 10.0 B (10) 1.0 KiB/s",
			"Downloaded movie.mkv",
		},
		Effect: writeIntoPath("movie.mkv", "0123456789"),
	})

	res := New(exec).Download(context.Background(), downloader.Request{
		Link:    "https://mega.nz/file/abc#key",
		Ordinal: 1,
		DestDir: t.TempDir(),
	})
	if !res.OK() {
		t.Fatalf("Expected success, got %s", res)
	}
	if res.Filename != "movie.mkv" || res.Bytes != 10 {
		t.Errorf("Unexpected result %s", res)
	}
}

func TestEngine_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script process.Script
		want   string
	}{
		{"Exit code", process.Script{ExitCode: 1}, "MegaError: megadl exited with code 1"},
		{"Unknown name", process.Script{}, "Could not determine filename"},
		{"Missing output", process.Script{Lines: []string{"Downloaded ghost.bin"}}, "Output file not found post-download"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := process.NewMockExecutor()
			exec.On(binary, tt.script)
			res := New(exec).Download(context.Background(), downloader.Request{
				Link:    "https://mega.nz/file/abc#key",
				DestDir: t.TempDir(),
			})
			if res.OK() {
				t.Fatal("Expected failure")
			}
			if res.Reason != tt.want {
				t.Errorf("Expected reason '%s', got '%s'", tt.want, res.Reason)
			}
		})
	}
}

func TestParseProgress(t *testing.T) {
	s, ok := ParseProgress("big file.iso: 25.50% - 256.0 MiB (268435456 bytes) of 1.0 GiB (1073741824) 2.0 MiB/s")
	if !ok {
		t.Fatal("Expected progress line to parse")
	}
	if s.Name != "big file.iso" || s.Percent != 25.5 {
		t.Errorf("Unexpected sample %+v", s)
	}
	if s.Done != 268435456 || s.Total != 1073741824 {
		t.Errorf("Unexpected byte counts %d/%d", s.Done, s.Total)
	}
	if s.Speed != "2.0 MiB/s" || math.Abs(s.ETA-384) > 0.001 {
		t.Errorf("Expected speed '2.0 MiB/s' and ETA 384, got '%s' / %v", s.Speed, s.ETA)
	}

	if _, ok := ParseProgress("Downloaded big file.iso"); ok {
		t.Error("Expected completion line not to parse as progress")
	}
}
