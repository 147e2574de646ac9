package postprocess

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/testutils"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

func uploadConfig() config.UploadConfig {
	return config.UploadConfig{
		SplitVideo:  true,
		VideoOut:    "mp4",
		SizeCeiling: config.DefaultUploadSizeCeiling,
	}
}

func newTaskContext(t *testing.T, mode taskctx.Mode, processing taskctx.ProcessingMode) *taskctx.TaskContext {
	t.Helper()
	task := taskctx.NewTask([]string{"https://example.com/a"}, mode, processing, taskctx.ServiceAuto)
	tc := taskctx.New(task, taskctx.NewPaths(t.TempDir(), t.TempDir()), nil)
	if err := os.MkdirAll(tc.Paths.Down, 0o755); err != nil {
		t.Fatal(err)
	}
	return tc
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// writeLastArg makes a mocked tool create its output file.
func writeLastArg(content string) func(args []string) error {
	return func(args []string) error {
		return os.WriteFile(args[len(args)-1], []byte(content), 0o600)
	}
}

func zipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer r.Close()
	out := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(rc)
		rc.Close()
		out[f.Name] = buf.String()
	}
	return out
}

func TestArchiveName(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "movie.part.mkv")
	writeFile(t, file, "x")

	tests := []struct {
		name, custom, src, download, want string
	}{
		{"Custom name wins", "My/Name", dir, "dl", "My_Name"},
		{"File without extension", "", file, "dl", "movie.part"},
		{"Directory name", "", dir, "dl", filepath.Base(dir)},
		{"Download name fallback", "", filepath.Join(dir, "missing"), "dl", "dl"},
		{"Last resort", "", filepath.Join(dir, "missing"), "", "archive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArchiveName(tt.custom, tt.src, tt.download); got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}

func TestArchive_Directory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Show")
	writeFile(t, filepath.Join(src, "e01.mkv"), "episode one")
	writeFile(t, filepath.Join(src, "subs", "e01.srt"), "subtitles")
	outDir := t.TempDir()

	p := New(process.NewMockExecutor(), uploadConfig())
	out, size, err := p.Archive(context.Background(), ArchiveRequest{Source: src, OutDir: outDir, Name: "Show", Remove: true})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if out != filepath.Join(outDir, "Show.zip") || size <= 0 {
		t.Errorf("Unexpected archive %s (%d bytes)", out, size)
	}
	entries := zipEntries(t, out)
	if entries["e01.mkv"] != "episode one" || entries["subs/e01.srt"] != "subtitles" {
		t.Errorf("Unexpected archive entries %v", entries)
	}
	testutils.AssertFileNotExists(t, src)
}

func TestArchive_KeepsSourceWhenAsked(t *testing.T) {
	src := filepath.Join(t.TempDir(), "report.pdf")
	writeFile(t, src, "pdf")

	p := New(process.NewMockExecutor(), uploadConfig())
	out, _, err := p.Archive(context.Background(), ArchiveRequest{Source: src, OutDir: t.TempDir(), Name: "report"})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if entries := zipEntries(t, out); entries["report.pdf"] != "pdf" {
		t.Errorf("Unexpected archive entries %v", entries)
	}
	testutils.AssertFileExists(t, src)
}

func TestArchive_PasswordUsesSevenZip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "data")
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	exec := process.NewMockExecutor()
	exec.On("7z", process.Script{Effect: func(args []string) error {
		return os.WriteFile(args[len(args)-2], []byte("encrypted"), 0o600)
	}})

	p := New(exec, uploadConfig())
	_, _, err := p.Archive(context.Background(), ArchiveRequest{Source: src, OutDir: t.TempDir(), Name: "data", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	args := strings.Join(exec.GetCommands()[0].Args, " ")
	for _, want := range []string{"a -tzip", "-ps3cret", filepath.Join(src, "*")} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected 7z args to contain %q, got %s", want, args)
		}
	}
}

func TestArchive_EmptyOutputFails(t *testing.T) {
	src := filepath.Join(t.TempDir(), "data")
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	exec := process.NewMockExecutor()
	exec.On("7z", process.Script{})

	p := New(exec, uploadConfig())
	_, _, err := p.Archive(context.Background(), ArchiveRequest{Source: src, OutDir: t.TempDir(), Name: "data", Password: "pw"})
	if err == nil {
		t.Fatal("Expected failure for empty archive")
	}
	if msg := errors.UserMessage(err); msg != "Archive produced empty file." {
		t.Errorf("Unexpected reason '%s'", msg)
	}
	testutils.AssertFileExists(t, src)
}

func TestFindArchives(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"movie.part1.rar", "movie.part2.rar", "movie.rar", "a.zip",
		"b.7z.001", "b.7z.002", "c.z01", "notes.txt", "pack.tar.gz",
	} {
		writeFile(t, filepath.Join(dir, name), "x")
	}

	got, err := FindArchives(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range got {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	want := []string{"a.zip", "b.7z.001", "c.z01", "movie.part1.rar", "pack.tar.gz"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, names)
	}
}

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		archive, password string
		tool              string
		args              string
	}{
		{"/d/a.rar", "pw", "unrar", "e -kb -o+ -y -ppw /d/a.rar /out" + string(os.PathSeparator)},
		{"/d/a.zip", "", "7z", "x -o/out -y /d/a.zip"},
		{"/d/a.7z.001", "pw", "7z", "x -o/out -y -ppw /d/a.7z.001"},
		{"/d/a.tar", "", "tar", "-xf /d/a.tar -C /out"},
		{"/d/a.tgz", "", "tar", "-xzf /d/a.tgz -C /out"},
	}
	for _, tt := range tests {
		t.Run(tt.archive, func(t *testing.T) {
			tool, args, ok := ExtractCommand(tt.archive, "/out", tt.password)
			if !ok {
				t.Fatal("Expected supported archive")
			}
			if tool != tt.tool || strings.Join(args, " ") != tt.args {
				t.Errorf("Expected %s %s, got %s %s", tt.tool, tt.args, tool, strings.Join(args, " "))
			}
		})
	}
	if _, _, ok := ExtractCommand("/d/a.txt", "/out", ""); ok {
		t.Error("Expected .txt to be unsupported")
	}
}

func TestExtractAll_NoArchivesPassesThrough(t *testing.T) {
	tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Unzip)
	writeFile(t, filepath.Join(tc.Paths.Down, "movie.mkv"), "x")

	out, err := New(process.NewMockExecutor(), uploadConfig()).ExtractAll(context.Background(), tc, tc.Paths.Down)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if out != tc.Paths.Down {
		t.Errorf("Expected source to pass through, got %s", out)
	}
}

func TestExtractAll_Success(t *testing.T) {
	tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Unzip)
	tc.Task.UnzipPassword = "pw"
	writeFile(t, filepath.Join(tc.Paths.Down, "pack.zip"), "zipdata")
	exec := process.NewMockExecutor()
	exec.On("7z", process.Script{Effect: func(args []string) error {
		dir := strings.TrimPrefix(args[1], "-o")
		return os.WriteFile(filepath.Join(dir, "inside.txt"), []byte("hello"), 0o600)
	}})

	out, err := New(exec, uploadConfig()).ExtractAll(context.Background(), tc, tc.Paths.Down)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if out != tc.Paths.Unzip {
		t.Errorf("Expected unzip dir, got %s", out)
	}
	testutils.AssertFileExists(t, filepath.Join(tc.Paths.Unzip, "inside.txt"))
	if !strings.Contains(strings.Join(exec.GetCommands()[0].Args, " "), "-ppw") {
		t.Error("Expected password to be passed to 7z")
	}
}

func TestExtractAll_Failure(t *testing.T) {
	tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Unzip)
	writeFile(t, filepath.Join(tc.Paths.Down, "x.rar"), "rar")
	exec := process.NewMockExecutor()
	exec.On("unrar", process.Script{ExitCode: 3, Lines: []string{"ERROR: wrong password"}})

	_, err := New(exec, uploadConfig()).ExtractAll(context.Background(), tc, tc.Paths.Down)
	if err == nil {
		t.Fatal("Expected extraction failure")
	}
	want := "Failed: x.rar - Extractor failed code 3. Stderr: ERROR: wrong password"
	if msg := errors.UserMessage(err); msg != want {
		t.Errorf("Expected '%s', got '%s'", want, msg)
	}
}

func TestExtract_MissingTool(t *testing.T) {
	exec := process.NewMockExecutor()
	exec.SetMissing("unrar")
	err := New(exec, uploadConfig()).Extract(context.Background(), "/d/a.rar", t.TempDir(), "")
	if err == nil || err.Error() != "Extractor command 'unrar' not found." {
		t.Errorf("Unexpected error %v", err)
	}
}

func TestSegmentDuration(t *testing.T) {
	const gib = 1024 * 1024 * 1024
	tests := []struct {
		name     string
		size     int64
		duration float64
		bitrate  float64
		want     float64
	}{
		{"Bitrate target below part cap", 3 * gib, 3600, 8e6, 1572},
		{"Part cap below bitrate target", 3 * gib, 3600, 1e6, 1800},
		{"Clamped to minimum", 4 * gib, 15, 1e12, 10},
		{"Small file uses bitrate only", 100, 7200, 4e6, 3145},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentDuration(tt.size, tt.duration, tt.bitrate); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSplitArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.zip")
	writeFile(t, src, "0123456789abcdefghijKLMNO")
	outDir := filepath.Join(dir, "parts")

	parts, err := SplitArchive(context.Background(), src, outDir, 10, nil)
	if err != nil {
		t.Fatalf("SplitArchive failed: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("Expected 3 parts, got %d", len(parts))
	}
	var joined strings.Builder
	for i, p := range parts {
		if want := filepath.Join(outDir, "big.zip.00"+string(rune('1'+i))); p != want {
			t.Errorf("Expected part %s, got %s", want, p)
		}
		data, _ := os.ReadFile(p)
		joined.Write(data)
	}
	if joined.String() != "0123456789abcdefghijKLMNO" {
		t.Errorf("Parts do not reassemble the source: %q", joined.String())
	}
	testutils.AssertFileNotExists(t, src)
}

func TestSplitArchive_CancelledRemovesParts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.zip")
	writeFile(t, src, "0123456789")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := SplitArchive(ctx, src, filepath.Join(dir, "parts"), 4, nil); err == nil {
		t.Fatal("Expected cancellation error")
	}
	testutils.AssertFileExists(t, src)
	testutils.AssertFileNotExists(t, filepath.Join(dir, "parts", "big.zip.001"))
}

func TestSplitArchive_EmptySource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.zip")
	writeFile(t, src, "")
	outDir := filepath.Join(dir, "parts")

	parts, err := SplitArchive(context.Background(), src, outDir, 10, nil)
	if err == nil {
		t.Fatalf("Expected error for empty source, got parts %v", parts)
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Errorf("Expected empty source error, got %v", err)
	}
	testutils.AssertFileExists(t, src)
	testutils.AssertFileNotExists(t, filepath.Join(outDir, "empty.zip.001"))
}

const probeJSON = `{"streams":[{"codec_name":"h264","level":41}],"format":{"duration":"3600.5","bit_rate":"8000000"}}`

func TestParseProbe(t *testing.T) {
	info, err := ParseProbe([]byte(probeJSON))
	if err != nil {
		t.Fatal(err)
	}
	if info.Codec != "h264" || info.Level != 41 || info.Duration != 3600.5 || info.Bitrate != 8e6 {
		t.Errorf("Unexpected media info %+v", info)
	}
	if _, err := ParseProbe([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestNeedsReencode(t *testing.T) {
	tests := map[string]bool{"h264": false, "HEVC": false, "vp9": true, "av1": true, "": true}
	for codec, want := range tests {
		if got := NeedsReencode(codec); got != want {
			t.Errorf("NeedsReencode(%q): expected %v, got %v", codec, want, got)
		}
	}
}

func splitExecutor(probe string) *process.MockExecutor {
	exec := process.NewMockExecutor()
	exec.On("ffprobe", process.Script{Output: []byte(probe)})
	exec.On("ffmpeg", process.Script{Effect: func(args []string) error {
		pattern := args[len(args)-1]
		for _, n := range []string{"001", "002"} {
			if err := os.WriteFile(strings.Replace(pattern, "%03d", n, 1), []byte("seg"), 0o600); err != nil {
				return err
			}
		}
		return nil
	}})
	return exec
}

func TestSplitVideo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Film [2024].mkv")
	writeFile(t, src, "video-bytes")
	outDir := filepath.Join(dir, "split")
	exec := splitExecutor(probeJSON)

	parts, err := New(exec, uploadConfig()).SplitVideo(context.Background(), src, outDir, nil)
	if err != nil {
		t.Fatalf("SplitVideo failed: %v", err)
	}
	if len(parts) != 2 || filepath.Base(parts[0]) != "Film [2024].part001.mkv" {
		t.Errorf("Unexpected parts %v", parts)
	}
	args := strings.Join(exec.GetCommands()[1].Args, " ")
	if !strings.Contains(args, "-segment_time 1572") || !strings.Contains(args, "-f segment") {
		t.Errorf("Unexpected ffmpeg args %s", args)
	}
}

func TestSplitVideo_ShortVideoNeedsNoSplit(t *testing.T) {
	src := filepath.Join(t.TempDir(), "clip.mp4")
	writeFile(t, src, "video")
	exec := splitExecutor(`{"streams":[{"codec_name":"h264"}],"format":{"duration":"60","bit_rate":"8000000"}}`)

	parts, err := New(exec, uploadConfig()).SplitVideo(context.Background(), src, t.TempDir(), nil)
	if err != nil || parts != nil {
		t.Errorf("Expected no parts and no error, got %v / %v", parts, err)
	}
	if exec.Calls("ffmpeg") != 0 {
		t.Error("Expected ffmpeg not to run")
	}
}

func TestSplitVideo_NoDuration(t *testing.T) {
	src := filepath.Join(t.TempDir(), "clip.mp4")
	writeFile(t, src, "video")
	exec := splitExecutor(`{"streams":[],"format":{}}`)

	_, err := New(exec, uploadConfig()).SplitVideo(context.Background(), src, t.TempDir(), nil)
	if msg := errors.UserMessage(err); msg != "Could not get video duration for clip.mp4" {
		t.Errorf("Unexpected error '%s'", msg)
	}
}

func TestCheckSize(t *testing.T) {
	t.Run("Fits", func(t *testing.T) {
		tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Passthrough)
		file := testutils.CreateTestDataFile(t, tc.Paths.Down, "small.bin", 5)
		cfg := uploadConfig()
		cfg.SizeCeiling = 10

		out, err := New(process.NewMockExecutor(), cfg).CheckSize(context.Background(), tc, file, true)
		if err != nil || out != "" {
			t.Errorf("Expected no processing, got %q / %v", out, err)
		}
	})

	t.Run("Archive then split", func(t *testing.T) {
		tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Passthrough)
		file := testutils.CreateTestDataFile(t, tc.Paths.Down, "data.bin", 64)
		cfg := uploadConfig()
		cfg.SizeCeiling = 32

		out, err := New(process.NewMockExecutor(), cfg).CheckSize(context.Background(), tc, file, true)
		if err != nil {
			t.Fatalf("CheckSize failed: %v", err)
		}
		if out != tc.Paths.Split {
			t.Errorf("Expected split dir, got %s", out)
		}
		testutils.AssertFileExists(t, filepath.Join(out, "data.zip.001"))
		testutils.AssertFileNotExists(t, filepath.Join(out, "data.zip"))
		testutils.AssertFileNotExists(t, file)
	})

	t.Run("Video split", func(t *testing.T) {
		tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Passthrough)
		file := testutils.CreateTestDataFile(t, tc.Paths.Down, "movie.mp4", 64)
		cfg := uploadConfig()
		cfg.SizeCeiling = 32

		out, err := New(splitExecutor(probeJSON), cfg).CheckSize(context.Background(), tc, file, false)
		if err != nil {
			t.Fatalf("CheckSize failed: %v", err)
		}
		testutils.AssertFileExists(t, filepath.Join(out, "movie.part001.mp4"))
		testutils.AssertFileExists(t, file)
	})
}

func TestProcess_Zip(t *testing.T) {
	tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Zip)
	tc.Task.CustomName = "Holiday"
	writeFile(t, filepath.Join(tc.Paths.Down, "a.jpg"), "a")

	out, err := New(process.NewMockExecutor(), uploadConfig()).Process(context.Background(), tc, tc.Paths.Down)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out != tc.Paths.Zip {
		t.Errorf("Expected zip dir, got %s", out)
	}
	testutils.AssertFileExists(t, filepath.Join(tc.Paths.Zip, "Holiday.zip"))
	testutils.AssertFileNotExists(t, tc.Paths.Down)
	if tc.Name() != "Holiday.zip" {
		t.Errorf("Expected task name to follow the archive, got %s", tc.Name())
	}
}

func TestProcess_DirLeechKeepsSource(t *testing.T) {
	tc := newTaskContext(t, taskctx.ModeDirLeech, taskctx.Zip)
	src := filepath.Join(t.TempDir(), "Photos")
	writeFile(t, filepath.Join(src, "a.jpg"), "a")

	if _, err := New(process.NewMockExecutor(), uploadConfig()).Process(context.Background(), tc, src); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	testutils.AssertFileExists(t, filepath.Join(tc.Paths.Zip, "Photos.zip"))
	testutils.AssertFileExists(t, src)
}

func TestProcess_PassthroughConvertsVideo(t *testing.T) {
	tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Passthrough)
	writeFile(t, filepath.Join(tc.Paths.Down, "clip.mkv"), "mkv")
	writeFile(t, filepath.Join(tc.Paths.Down, "ready.mp4"), "mp4")
	exec := process.NewMockExecutor()
	exec.On("ffprobe", process.Script{Output: []byte(probeJSON)})
	exec.On("ffmpeg", process.Script{Effect: writeLastArg("converted")})
	cfg := uploadConfig()
	cfg.ConvertVideo = true

	out, err := New(exec, cfg).Process(context.Background(), tc, tc.Paths.Down)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out != tc.Paths.Down {
		t.Errorf("Expected download dir, got %s", out)
	}
	testutils.AssertFileExists(t, filepath.Join(out, "clip.mp4"))
	testutils.AssertFileNotExists(t, filepath.Join(out, "clip.mkv"))
	if exec.Calls("ffmpeg") != 1 {
		t.Errorf("Expected one conversion, got %d", exec.Calls("ffmpeg"))
	}
	if !strings.Contains(strings.Join(exec.GetCommands()[1].Args, " "), "-c copy") {
		t.Error("Expected stream copy for h264 source")
	}
}

func TestProcess_MissingSource(t *testing.T) {
	tc := newTaskContext(t, taskctx.ModeLeech, taskctx.Passthrough)
	_, err := New(process.NewMockExecutor(), uploadConfig()).Process(context.Background(), tc, filepath.Join(tc.Paths.Work, "nope"))
	if msg := errors.UserMessage(err); msg != "Processing source missing: nope" {
		t.Errorf("Unexpected error '%s'", msg)
	}
}
