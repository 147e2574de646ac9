package direct

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// Profile is the per-service request shape for direct downloads.
type Profile struct {
	Service string
	Label   string
	Headers map[string]string
	Cookies []*http.Cookie
	// DefaultName names the file when no hint is given, by 1-based ordinal.
	DefaultName func(ordinal int) string
}

func DebridProfile() Profile {
	return Profile{
		Service:     "debrid",
		Label:       "Debrid 🌐",
		DefaultName: func(i int) string { return fmt.Sprintf("debrid_file_%d", i) },
	}
}

func BitsoProfile(cfg config.ServiceConfig) Profile {
	var cookies []*http.Cookie
	if cfg.BitsoIdentity != "" {
		cookies = append(cookies, &http.Cookie{Name: "_identity", Value: cfg.BitsoIdentity})
	}
	if cfg.BitsoPHPSessID != "" {
		cookies = append(cookies, &http.Cookie{Name: "PHPSESSID", Value: cfg.BitsoPHPSessID})
	}
	return Profile{
		Service:     "bitso",
		Label:       "Bitso 🌐",
		Headers:     map[string]string{"Referer": "https://panel.bitso.ir/"},
		Cookies:     cookies,
		DefaultName: func(i int) string { return fmt.Sprintf("bitso_file_%d", i) },
	}
}

func NZBCloudProfile(cfg config.ServiceConfig) Profile {
	var cookies []*http.Cookie
	if cfg.NZBCloudCookie != "" {
		cookies = append(cookies, &http.Cookie{Name: "cf_clearance", Value: cfg.NZBCloudCookie})
	}
	return Profile{
		Service:     "nzbcloud",
		Label:       "NZBCloud 🌐",
		Headers:     map[string]string{"Referer": "https://app.nzbcloud.com/"},
		Cookies:     cookies,
		DefaultName: func(i int) string { return fmt.Sprintf("nzbcloud_file_%d", i) },
	}
}

func GenericProfile() Profile {
	return Profile{
		Service:     "direct",
		Label:       "HTTP 🌐",
		DefaultName: func(i int) string { return fmt.Sprintf("Direct_Link_%d", i) },
	}
}

type Engine struct {
	fetcher *Fetcher
	profile Profile
}

func NewEngine(fetcher *Fetcher, profile Profile) *Engine {
	return &Engine{fetcher: fetcher, profile: profile}
}

func (e *Engine) Name() string {
	return e.profile.Service
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	link := strings.TrimSpace(req.Link)
	name := utils.CleanFilename(req.FilenameHint)
	if name == "" && e.profile.DefaultName != nil {
		name = e.profile.DefaultName(req.Ordinal)
	}
	if link == "" {
		return downloader.Failure(name, "Missing URL/Filename")
	}

	headers := make(map[string]string, len(e.profile.Headers)+len(req.Headers))
	for k, v := range e.profile.Headers {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}

	path, size, err := e.fetcher.Fetch(ctx, FetchRequest{
		URL:      link,
		DestDir:  req.DestDir,
		Name:     name,
		Headers:  headers,
		Cookies:  e.profile.Cookies,
		Header:   fmt.Sprintf("📥 DOWNLOADING » Link %d", req.Ordinal),
		Engine:   e.profile.Label,
		Progress: req.Progress,
	})
	if err != nil {
		reason := Reason(err)
		logutils.Log.WithError(err).WithFields(map[string]any{
			"link":    link,
			"ordinal": req.Ordinal,
			"engine":  e.profile.Service,
		}).Error("Direct download failed")
		return downloader.Failure(name, reason)
	}

	logutils.Log.WithFields(map[string]any{
		"path": path,
		"size": size,
	}).Info("Direct download complete")
	return downloader.Success(filepath.Base(path), size)
}
