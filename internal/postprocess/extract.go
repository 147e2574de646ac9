package postprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

var archiveExtensions = []string{".rar", ".zip", ".7z", ".tar", ".gz", ".tgz", ".001", ".z01"}

var reRarPart = regexp.MustCompile(`(?i)^(.+)\.part(\d+)\.rar$`)

// FindArchives lists the archives in dir that start an extraction. Later
// volumes of a multi-part set are left for the tool to pick up.
func FindArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isArchive(e.Name()) {
			names = append(names, e.Name())
		}
	}
	utils.NaturalSort(names)

	multipart := make(map[string]bool)
	for _, name := range names {
		if m := reRarPart.FindStringSubmatch(name); m != nil {
			multipart[strings.ToLower(m[1])] = true
		}
	}

	var out []string
	for _, name := range names {
		if m := reRarPart.FindStringSubmatch(name); m != nil {
			if strings.TrimLeft(m[2], "0") != "1" {
				logutils.Log.WithField("file", name).Debug("Skipping subsequent RAR part")
				continue
			}
		} else if strings.EqualFold(filepath.Ext(name), ".rar") {
			base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
			if multipart[base] {
				continue
			}
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func isArchive(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ExtractAll extracts every archive found directly in src into the task's
// unzip dir. With no archives src is passed through unchanged.
func (p *Pipeline) ExtractAll(ctx context.Context, tc *taskctx.TaskContext, src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", failure("unzip_source", "Unzip source path invalid: "+filepath.Base(src), err)
	}
	dir := src
	if !info.IsDir() {
		dir = filepath.Dir(src)
	}
	archives, err := FindArchives(dir)
	if err != nil {
		return "", failure("unzip_scan", "Error scanning unzip source: "+utils.ShortReason(err, 50), err)
	}
	if !info.IsDir() {
		archives = filterPath(archives, src)
	}
	if len(archives) == 0 {
		logutils.Log.WithField("path", src).Warn("No archive files found, skipping extraction")
		return src, nil
	}

	var failed []string
	for _, a := range archives {
		tc.Report(taskctx.Progress{
			Header:   "📂 EXTRACTING » ",
			Engine:   "Extractor ⚙️",
			Filename: filepath.Base(a),
			Total:    utils.GetSize(a),
			Speed:    "N/A",
		})
		if err := p.Extract(ctx, a, tc.Paths.Unzip, tc.Task.UnzipPassword); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			failed = append(failed, fmt.Sprintf("Failed: %s - %s", filepath.Base(a), err.Error()))
		}
	}
	if len(failed) > 0 {
		reason := strings.Join(failed, "; ")
		logutils.Log.WithField("errors", len(failed)).Error("Extraction finished with errors")
		return "", failure("unzip_failed", reason, nil)
	}
	return tc.Paths.Unzip, nil
}

func filterPath(paths []string, keep string) []string {
	for _, p := range paths {
		if p == keep {
			return []string{p}
		}
	}
	return nil
}

// ExtractCommand returns the tool and arguments for archive, or false when
// the extension is not supported.
func ExtractCommand(archive, outDir, password string) (string, []string, bool) {
	lower := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(lower, ".rar"):
		args := []string{"e", "-kb", "-o+", "-y"}
		if password != "" {
			args = append(args, "-p"+password)
		}
		return "unrar", append(args, archive, outDir+string(os.PathSeparator)), true
	case strings.HasSuffix(lower, ".tar"):
		return "tar", []string{"-xf", archive, "-C", outDir}, true
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".gz"):
		return "tar", []string{"-xzf", archive, "-C", outDir}, true
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".7z"),
		strings.HasSuffix(lower, ".001"), strings.HasSuffix(lower, ".z01"):
		args := []string{"x", "-o" + outDir, "-y"}
		if password != "" {
			args = append(args, "-p"+password)
		}
		return sevenZip, append(args, archive), true
	}
	return "", nil, false
}

// Extract unpacks one archive into outDir. Success needs a zero exit code and
// a non-empty output directory.
func (p *Pipeline) Extract(ctx context.Context, archive, outDir, password string) error {
	tool, args, ok := ExtractCommand(archive, outDir, password)
	if !ok {
		return fmt.Errorf("Unsupported archive type: %s", filepath.Ext(archive))
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if _, err := p.exec.LookPath(tool); err != nil {
		return fmt.Errorf("Extractor command '%s' not found.", tool)
	}

	logutils.Log.WithFields(map[string]any{
		"tool":    tool,
		"archive": archive,
	}).Info("Running extractor")

	res, err := p.exec.Run(ctx, tool, args, nil)
	if err != nil {
		if code, ok := process.ExitCode(err); ok {
			reason := fmt.Sprintf("Extractor failed code %d.", code)
			if last := res.LastLine(); last != "" {
				reason += " Stderr: " + last
			}
			return errors.New(reason)
		}
		return fmt.Errorf("Extractor runtime error: %s", utils.ShortReason(err, 50))
	}
	if utils.IsEmptyDirectory(outDir) {
		return errors.New("Extractor exited cleanly but produced no files")
	}
	return nil
}
