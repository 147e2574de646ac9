package postprocess

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	sevenZip     = "7z"
	zipperLabel  = "Zipper 🤐"
	zipHeaderFmt = "🔐 ZIPPING » "
)

type ArchiveRequest struct {
	Source string
	OutDir string
	// Name is the archive name without the .zip extension.
	Name string
	// Password switches to 7z, which writes AES-256 encrypted entries.
	Password string
	// Remove deletes Source after a successful archive.
	Remove   bool
	Progress taskctx.Reporter
}

// ArchiveName picks the archive base name: the custom name, a file's name
// without extension, a directory's name, then the download name.
func ArchiveName(custom, src, downloadName string) string {
	name := custom
	if name == "" {
		if info, err := os.Stat(src); err == nil {
			name = filepath.Base(src)
			if !info.IsDir() {
				name = strings.TrimSuffix(name, filepath.Ext(name))
			}
		}
	}
	if name == "" {
		name = downloadName
	}
	if name == "" {
		name = "archive"
	}
	return strings.ReplaceAll(name, "/", "_")
}

// Archive writes <OutDir>/<Name>.zip. A failed or empty archive is removed
// and reported as a processing failure.
func (p *Pipeline) Archive(ctx context.Context, req ArchiveRequest) (string, int64, error) {
	if _, err := os.Stat(req.Source); err != nil {
		return "", 0, failure("archive_source_missing", "Archive source path missing.", err)
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return "", 0, failure("archive_dir", "Archive error: cannot create output dir", err)
	}
	out := filepath.Join(req.OutDir, req.Name+".zip")
	if req.Progress == nil {
		req.Progress = taskctx.NopReporter{}
	}

	logutils.Log.WithFields(map[string]any{
		"source":    req.Source,
		"archive":   out,
		"encrypted": req.Password != "",
	}).Info("Creating archive")

	var err error
	if req.Password != "" {
		err = p.sevenZipArchive(ctx, req, out)
	} else {
		err = zipTree(ctx, req.Source, out, progressFunc(req, filepath.Base(out)))
	}
	if err != nil {
		removeQuietly(out)
		return "", 0, failure("archive_failed", "Archive error: "+utils.ShortReason(err, 100), err)
	}

	size := utils.GetSize(out)
	if size <= 0 {
		removeQuietly(out)
		return "", 0, failure("archive_empty", "Archive produced empty file.", nil)
	}
	if req.Remove {
		logutils.Log.WithField("path", req.Source).Info("Removing original source after archiving")
		removePath(req.Source)
	}
	return out, size, nil
}

func progressFunc(req ArchiveRequest, name string) func(done, total int64) {
	return func(done, total int64) {
		req.Progress.Report(taskctx.Progress{
			Header:   zipHeaderFmt,
			Engine:   zipperLabel,
			Filename: name,
			Done:     done,
			Total:    total,
			Speed:    "N/A",
			Percent:  percent(done, total),
		})
	}
}

func (p *Pipeline) sevenZipArchive(ctx context.Context, req ArchiveRequest, out string) error {
	target := req.Source
	if info, err := os.Stat(req.Source); err == nil && info.IsDir() {
		target = filepath.Join(req.Source, "*")
	}
	args := []string{"a", "-tzip", "-mem=AES256", "-y", "-p" + req.Password, out, target}
	res, err := p.exec.Run(ctx, sevenZip, args, nil)
	if err != nil && res.LastLine() != "" {
		logutils.Log.WithError(err).WithField("output", res.LastLine()).Error("7z archive failed")
	}
	return err
}

// zipTree deflates a file, or a directory's contents relative to its root.
func zipTree(ctx context.Context, src, dst string, onProgress func(done, total int64)) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	total := utils.GetSize(src)
	var done int64

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := addFile(ctx, zw, src, filepath.Base(src), &done); err != nil {
			return err
		}
		onProgress(done, total)
		return zw.Close()
	}

	err = filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if err := addFile(ctx, zw, path, filepath.ToSlash(rel), &done); err != nil {
			return err
		}
		onProgress(done, total)
		return nil
	})
	if err != nil {
		return err
	}
	return zw.Close()
}

func addFile(ctx context.Context, zw *zip.Writer, path, name string, done *int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	n, err := io.Copy(w, in)
	*done += n
	return err
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logutils.Log.WithError(err).WithField("path", path).Warn("Failed to remove partial output")
	}
}
