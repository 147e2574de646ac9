package torrent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// Engine resolves magnets and .torrent sources, then hands the download to
// aria2 (or any engine given as the payload engine).
type Engine struct {
	payload downloader.Engine
	fetcher *direct.Fetcher
}

func NewEngine(payload downloader.Engine, fetcher *direct.Fetcher) *Engine {
	return &Engine{payload: payload, fetcher: fetcher}
}

func (*Engine) Name() string {
	return "torrent"
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	hint := req.FilenameHint

	if IsMagnet(req.Link) {
		m, err := ParseMagnet(req.Link)
		if err != nil {
			return downloader.Failure(hint, "Invalid magnet link: "+err.Error())
		}
		if hint == "" {
			hint = utils.CleanFilename(m.Name)
		}
		return e.handOff(ctx, req, req.Link, hint)
	}

	path, cleanup, err := e.metaFile(ctx, req.Link)
	if err != nil {
		logutils.Log.WithError(err).WithField("link", req.Link).Error("Failed to obtain torrent file")
		return downloader.Failure(hint, "Torrent file error: "+utils.ShortReason(err, 100))
	}
	defer cleanup()

	if err := ValidateFile(path); err != nil {
		return downloader.Failure(hint, "Torrent file validation failed: "+err.Error())
	}
	if hint == "" {
		if meta, metaErr := ParseMeta(path); metaErr == nil {
			hint = utils.CleanFilename(meta.Info.Name)
		}
	}
	return e.handOff(ctx, req, path, hint)
}

func (e *Engine) handOff(ctx context.Context, req downloader.Request, source, hint string) downloader.Result {
	if hint == "" {
		hint = fmt.Sprintf("torrent_download_%d", req.Ordinal)
	}
	next := req
	next.Link = source
	next.FilenameHint = hint
	return e.payload.Download(ctx, next)
}

// metaFile returns a local path to the .torrent for link, fetching it first
// when link is remote.
func (e *Engine) metaFile(ctx context.Context, link string) (string, func(), error) {
	if !isRemote(link) {
		return utils.ExpandHome(link), func() {}, nil
	}
	dir, err := os.MkdirTemp("", "leecher-torrent-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logutils.Log.WithError(rmErr).WithField("path", dir).Warn("Failed to remove torrent temp dir")
		}
	}
	path, _, err := e.fetcher.Fetch(ctx, direct.FetchRequest{
		URL:     link,
		DestDir: dir,
		Name:    uuid.NewString() + ".torrent",
	})
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// DisplayName resolves the display name of a magnet or .torrent without downloading the payload.
func (e *Engine) DisplayName(ctx context.Context, link string) (string, error) {
	if IsMagnet(link) {
		m, err := ParseMagnet(link)
		if err != nil {
			return "", err
		}
		return m.Name, nil
	}
	meta, err := e.meta(ctx, link)
	if err != nil {
		return "", err
	}
	return meta.Info.Name, nil
}

// Size reports the payload size from .torrent metadata; magnets are unknown (0).
func (e *Engine) Size(ctx context.Context, link string) (int64, error) {
	if IsMagnet(link) {
		return 0, nil
	}
	meta, err := e.meta(ctx, link)
	if err != nil {
		return 0, err
	}
	return meta.TotalSize(), nil
}

func (e *Engine) meta(ctx context.Context, link string) (*Meta, error) {
	path, cleanup, err := e.metaFile(ctx, link)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if err := ValidateFile(path); err != nil {
		return nil, err
	}
	return ParseMeta(filepath.Clean(path))
}

func isRemote(link string) bool {
	lower := strings.ToLower(link)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
