// Package postprocess turns a finished download into what gets uploaded or
// mirrored: archives, extracted trees, transcoded videos and split parts.
package postprocess

import (
	"context"
	"os"
	"path/filepath"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

type Pipeline struct {
	exec process.Executor
	cfg  config.UploadConfig
}

func New(exec process.Executor, cfg config.UploadConfig) *Pipeline {
	if cfg.SizeCeiling <= 0 {
		cfg.SizeCeiling = config.DefaultUploadSizeCeiling
	}
	if cfg.VideoOut == "" {
		cfg.VideoOut = config.DefaultVideoOut
	}
	return &Pipeline{exec: exec, cfg: cfg}
}

// Process applies the task's processing mode to src and returns the path the
// next stage should read from. Sources are only consumed in link modes; a
// dir-leech source belongs to the user.
func (p *Pipeline) Process(ctx context.Context, tc *taskctx.TaskContext, src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", failure("source_missing", "Processing source missing: "+filepath.Base(src), err)
	}
	remove := tc.Task.Mode != taskctx.ModeDirLeech

	logutils.Log.WithFields(map[string]any{
		"path": src,
		"type": tc.Task.Processing.String(),
		"size": utils.SizeUnit(float64(utils.GetSize(src))),
	}).Info("Post-processing download")

	out := src
	var err error
	switch tc.Task.Processing {
	case taskctx.Zip:
		out, err = p.zipForTask(ctx, tc, src, remove)
	case taskctx.Unzip:
		out, err = p.ExtractAll(ctx, tc, src)
	case taskctx.UnzipThenZip:
		out, err = p.ExtractAll(ctx, tc, src)
		if err == nil {
			out, err = p.zipForTask(ctx, tc, out, out != src || remove)
		}
	}
	if err != nil {
		return "", err
	}

	if p.cfg.ConvertVideo && tc.Task.Processing != taskctx.Zip && tc.Task.Processing != taskctx.UnzipThenZip {
		if err := p.transcodeTree(ctx, tc, out); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (p *Pipeline) zipForTask(ctx context.Context, tc *taskctx.TaskContext, src string, remove bool) (string, error) {
	name := ArchiveName(tc.Task.CustomName, src, tc.Name())
	archive, size, err := p.Archive(ctx, ArchiveRequest{
		Source:   src,
		OutDir:   tc.Paths.Zip,
		Name:     name,
		Password: tc.Task.ZipPassword,
		Remove:   remove,
		Progress: tc,
	})
	if err != nil {
		return "", err
	}
	tc.SetName(filepath.Base(archive))
	logutils.Log.WithFields(map[string]any{
		"archive": archive,
		"size":    utils.SizeUnit(float64(size)),
	}).Info("Archive created")
	return tc.Paths.Zip, nil
}

// transcodeTree converts every non-target video below root.
func (p *Pipeline) transcodeTree(ctx context.Context, tc *taskctx.TaskContext, root string) error {
	var videos []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && utils.FileType(path) == utils.CategoryVideo {
			videos = append(videos, path)
		}
		return nil
	})
	if err != nil {
		return failure("scan_failed", "Error scanning videos for conversion", err)
	}
	for _, v := range videos {
		if _, err := p.Transcode(ctx, v, tc); err != nil {
			return err
		}
	}
	return nil
}

func failure(code, reason string, cause error) error {
	return errors.WrapDomainError(cause, errors.ErrorTypeProcessing, code, reason).WithUserMessage(reason)
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		logutils.Log.WithError(err).WithField("path", path).Warn("Failed to remove processed source")
	}
}
