package ytdlp

import (
	"context"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
)

const updateTimeout = 3 * time.Minute

type updater struct {
	exec       process.Executor
	binaryPath string
}

func NewUpdater(exec process.Executor, binaryPath string) downloader.Updater {
	if binaryPath == "" {
		binaryPath = defaultYtdlpBinary
	}
	return &updater{exec: exec, binaryPath: binaryPath}
}

// RunUpdate runs "yt-dlp -U" and logs the outcome; failures never propagate.
func (u *updater) RunUpdate(ctx context.Context) {
	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	output, err := u.exec.Output(updateCtx, u.binaryPath, "-U")
	out := strings.TrimSpace(string(output))

	if err != nil {
		if updateCtx.Err() != nil {
			logutils.Log.WithError(err).Warn("yt-dlp update timed out or was canceled")
			return
		}
		logutils.Log.WithError(err).WithFields(map[string]any{
			"output": out,
			"binary": u.binaryPath,
		}).Warn("yt-dlp update failed")
		return
	}

	logutils.Log.WithFields(map[string]any{
		"binary": u.binaryPath,
		"output": out,
	}).Info("yt-dlp update check completed successfully")
}
