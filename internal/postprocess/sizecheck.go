package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// CheckSize makes an oversized file fit the upload ceiling. It returns the
// directory holding the replacement parts, or "" when file can be uploaded
// as it is. Videos are split by time when splitting is on; everything else
// is archived and, if still too big, cut into numbered chunks.
func (p *Pipeline) CheckSize(ctx context.Context, tc *taskctx.TaskContext, file string, remove bool) (string, error) {
	info, err := os.Stat(file)
	if err != nil || info.IsDir() || info.Size() <= p.cfg.SizeCeiling {
		return "", nil
	}
	outDir := tc.Paths.Split
	filename := filepath.Base(file)
	ext := strings.ToLower(filepath.Ext(filename))

	logutils.Log.WithFields(map[string]any{
		"file":  filename,
		"size":  utils.SizeUnit(float64(info.Size())),
		"limit": utils.SizeUnit(float64(p.cfg.SizeCeiling)),
	}).Info("File exceeds upload limit, processing required")

	if (ext == ".mp4" || ext == ".mkv") && p.cfg.SplitVideo {
		parts, err := p.SplitVideo(ctx, file, outDir, tc)
		if err != nil {
			return "", err
		}
		if len(parts) == 0 {
			return "", nil
		}
		if remove {
			removeQuietly(file)
		}
		return outDir, nil
	}

	archive, size, err := p.Archive(ctx, ArchiveRequest{
		Source:   file,
		OutDir:   outDir,
		Name:     strings.TrimSuffix(filename, filepath.Ext(filename)),
		Remove:   remove,
		Progress: tc,
	})
	if err != nil {
		return "", err
	}
	if size > p.cfg.SizeCeiling {
		if _, err := SplitArchive(ctx, archive, outDir, p.cfg.SizeCeiling, tc); err != nil {
			return "", err
		}
	}
	return outDir, nil
}
