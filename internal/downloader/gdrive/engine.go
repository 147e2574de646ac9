package gdrive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cavaliergopher/grab/v3"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const engineLabel = "G-Api ♻️"

// Engine downloads Google Drive files and folders.
type Engine struct {
	api     *Client
	fetcher *direct.Fetcher
}

func NewEngine(api *Client, fetcher *direct.Fetcher) *Engine {
	return &Engine{api: api, fetcher: fetcher}
}

func (*Engine) Name() string {
	return "gdrive"
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	fallback := req.FilenameHint
	if fallback == "" {
		fallback = "GDrive Download"
	}
	if e.api == nil || e.api.APIKey == "" {
		return downloader.Failure(fallback, "GDrive Service Error.")
	}

	id, err := FileID(req.Link)
	if err != nil {
		return downloader.Failure(fallback, err.Error()+".")
	}
	meta, err := e.api.Metadata(ctx, id)
	if err != nil {
		return downloader.Failure(fallback, "GDrive Metadata Error: "+metadataReason(err))
	}

	if meta.IsFolder() {
		return e.downloadFolder(ctx, req, meta)
	}
	return e.downloadFile(ctx, req, meta, req.DestDir)
}

func (e *Engine) downloadFile(ctx context.Context, req downloader.Request, meta File, dir string) downloader.Result {
	name := utils.CleanFilename(meta.Name)
	if name == "" {
		name = "gdrive_" + meta.ID
	}
	if meta.IsGoogleDoc() {
		return downloader.Failuref(name, "Cannot download GDocs (%s). Export first.", meta.Name)
	}

	path, size, err := e.fetcher.Fetch(ctx, direct.FetchRequest{
		URL:      e.api.MediaURL(meta.ID),
		DestDir:  dir,
		Name:     name,
		Header:   fmt.Sprintf("📥 GDRIVE » 🔗Link %02d", req.Ordinal),
		Engine:   engineLabel,
		Progress: req.Progress,
	})
	if err != nil {
		logutils.Log.WithError(err).WithFields(map[string]any{
			"file_id": meta.ID,
			"name":    name,
		}).Error("Google Drive download failed")
		return downloader.Failure(name, downloadReason(err))
	}
	if size == 0 && meta.Size > 0 {
		removeQuietly(path)
		return downloader.Failure(name, "Download finished with invalid size")
	}
	return downloader.Success(name, size)
}

// downloadFolder mirrors the folder tree under DestDir. Files that fail are
// skipped; the link fails only when something failed, and whatever did
// download stays on disk.
func (e *Engine) downloadFolder(ctx context.Context, req downloader.Request, folder File) downloader.Result {
	name := utils.CleanFilename(folder.Name)
	if name == "" {
		name = "gdrive_folder_" + folder.ID
	}
	var (
		total    int64
		failed   int
		attempts int
		first    string
	)
	var walk func(id, dir string) error
	walk = func(id, dir string) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		items, err := e.api.List(ctx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if item.IsFolder() {
				sub := utils.CleanFilename(item.Name)
				if sub == "" {
					sub = item.ID
				}
				if err := walk(item.ID, filepath.Join(dir, sub)); err != nil {
					return err
				}
				continue
			}
			attempts++
			res := e.downloadFile(ctx, req, item, dir)
			if res.OK() {
				total += res.Bytes
				continue
			}
			failed++
			if first == "" {
				first = res.Filename + ": " + res.Reason
			}
		}
		return nil
	}

	if err := walk(folder.ID, filepath.Join(req.DestDir, name)); err != nil {
		if ctx.Err() != nil {
			return downloader.Failure(name, downloader.ReasonCancelled)
		}
		return downloader.Failure(name, "Error processing GDrive folder: "+utils.ShortReason(err, 100))
	}
	if failed > 0 {
		return downloader.Failuref(name, "%d of %d files failed (%s)", failed, attempts, first)
	}
	if total == 0 {
		return downloader.Failure(name, "GDrive folder is empty")
	}
	return downloader.Success(name, total)
}

// Size implements downloader.Sizer.
func (e *Engine) Size(ctx context.Context, link string) (int64, error) {
	id, err := FileID(link)
	if err != nil {
		return 0, err
	}
	meta, err := e.api.Metadata(ctx, id)
	if err != nil {
		return 0, err
	}
	if meta.IsFolder() {
		return e.api.FolderSize(ctx, id)
	}
	return meta.Size, nil
}

// DisplayName implements downloader.Namer.
func (e *Engine) DisplayName(ctx context.Context, link string) (string, error) {
	id, err := FileID(link)
	if err != nil {
		return "", err
	}
	meta, err := e.api.Metadata(ctx, id)
	if err != nil {
		return "", err
	}
	return meta.Name, nil
}

func metadataReason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 404:
			return "File/Folder not found/permission denied."
		case 403:
			return "Permission denied."
		default:
			return fmt.Sprintf("API Error: %d", apiErr.Status)
		}
	}
	if r := downloader.NetworkReason(err); r != "" {
		return r
	}
	return utils.ShortReason(err, 100)
}

func downloadReason(err error) string {
	var status grab.StatusCodeError
	if errors.As(err, &status) {
		switch int(status) {
		case 403:
			return "GDrive HttpError: Permission Denied."
		case 404:
			return "GDrive HttpError: File Not Found."
		case 429:
			return "GDrive HttpError: Download quota exceeded."
		default:
			return fmt.Sprintf("GDrive HttpError: API Error %d", int(status))
		}
	}
	if r := downloader.NetworkReason(err); r != "" {
		return r
	}
	return "Unexpected GDrive Error: " + utils.ShortReason(err, 100)
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logutils.Log.WithError(err).WithField("path", path).Warn("Failed to remove invalid download")
	}
}
