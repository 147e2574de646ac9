package downloader

import (
	"context"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

// StartPeriodicUpdater runs u once per interval until ctx is done. Tools like
// yt-dlp break as sites change, so they are refreshed while the bot runs.
func StartPeriodicUpdater(ctx context.Context, interval time.Duration, u Updater) {
	if interval <= 0 || u == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logutils.Log.WithField("interval", interval).Info("Starting periodic external tool updater")

	for {
		select {
		case <-ctx.Done():
			logutils.Log.Info("Stopping periodic external tool updater")
			return
		case <-ticker.C:
			u.RunUpdate(ctx)
		}
	}
}
