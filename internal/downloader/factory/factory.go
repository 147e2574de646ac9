// Package factory wires the configured download engines.
package factory

import (
	"context"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/aria2"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/gdrive"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/jdownloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/manager"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/mega"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/nzb"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/telegram"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/terabox"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/torrent"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/ytdlp"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
)

// NewEngines builds every engine from cfg. Services without credentials still
// get an engine; it fails each link with a configuration reason.
func NewEngines(cfg *config.Config, exec process.Executor, messenger telegram.Messenger) manager.Engines {
	fetcher := direct.NewFetcher()
	a2 := aria2.New(exec, cfg.DownloadSettings.Aria2Connections)
	svc := cfg.Services

	var sab *nzb.Client
	if svc.SABnzbdURL != "" && svc.SABnzbdAPIKey != "" {
		sab = nzb.NewClient(svc.SABnzbdURL, svc.SABnzbdAPIKey)
	}

	engines := manager.Engines{
		Aria2:    a2,
		Torrent:  torrent.NewEngine(a2, fetcher),
		YTDL:     ytdlp.New(exec, cfg.WorkPath, ytdlp.NewTitleResolver(exec, nil)),
		GDrive:   gdrive.NewEngine(gdrive.NewClient("", svc.GDriveAPIKey), fetcher),
		Mega:     mega.New(exec),
		Terabox:  terabox.New(svc.TeraboxAPI, a2),
		NZBCloud: direct.NewEngine(fetcher, direct.NZBCloudProfile(svc)),
		Debrid:   direct.NewEngine(fetcher, direct.DebridProfile()),
		Bitso:    direct.NewEngine(fetcher, direct.BitsoProfile(svc)),
		NZB:      nzb.New(sab),
		JD:       jdownloader.New(svc.JDownloaderURL),
	}
	if messenger != nil {
		engines.Telegram = telegram.NewEngine(messenger, fetcher, cfg.OwnerID, svc.TelegramAPIEndpoint != "")
	}

	logutils.Log.WithFields(map[string]any{
		"gdrive":      svc.GDriveAPIKey != "",
		"sabnzbd":     sab != nil,
		"jdownloader": svc.JDownloaderURL != "",
		"telegram":    engines.Telegram != nil,
	}).Info("Download engines initialized")
	return engines
}

// RunUpdatersOnStart refreshes yt-dlp once in the background when periodic
// updates are enabled.
func RunUpdatersOnStart(ctx context.Context, cfg *config.Config, exec process.Executor) {
	if cfg.DownloadSettings.YtdlpUpdateInterval > 0 {
		go newYtdlpUpdater(exec).RunUpdate(ctx)
	}
}

func StartPeriodicUpdaters(ctx context.Context, cfg *config.Config, exec process.Executor) {
	if cfg.DownloadSettings.YtdlpUpdateInterval > 0 {
		go downloader.StartPeriodicUpdater(ctx, cfg.DownloadSettings.YtdlpUpdateInterval, newYtdlpUpdater(exec))
	}
}

func newYtdlpUpdater(exec process.Executor) downloader.Updater {
	return ytdlp.NewUpdater(exec, "")
}
