package handlers

import (
	"html"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
)

// handleThumbnail stores the largest size of a photo as the thumbnail used
// for every upload. The file lives outside the work dir.
func (h *Handler) handleThumbnail(uc *UpdateContext, msg *tgbotapi.Message) {
	if h.fetcher == nil {
		h.reply(uc.ChatID, "Thumbnails are not supported.")
		return
	}
	photo := msg.Photo[len(msg.Photo)-1]
	url, err := h.bot.GetFileDirectURL(photo.FileID)
	if err != nil {
		logutils.Log.WithError(err).WithField("file_id", photo.FileID).Error("Failed to resolve thumbnail URL")
		h.reply(uc.ChatID, "Could not fetch the photo from Telegram.")
		return
	}

	dst := taskctx.NewPaths(h.cfg.WorkPath, h.cfg.MirrorDir).Thumbnail
	path, size, err := h.fetcher.Fetch(uc.Context, direct.FetchRequest{
		URL:     url,
		DestDir: filepath.Dir(dst),
		Name:    filepath.Base(dst),
		Engine:  "thumbnail",
	})
	if err != nil {
		logutils.Log.WithError(err).WithField("path", dst).Error("Failed to save thumbnail")
		h.reply(uc.ChatID, "Could not save the thumbnail: "+html.EscapeString(direct.Reason(err)))
		return
	}
	logutils.Log.WithFields(map[string]any{"path": path, "size": size}).Info("Thumbnail updated")
	h.reply(uc.ChatID, "Thumbnail saved ✅")
}
