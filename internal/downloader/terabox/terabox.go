// Package terabox resolves Terabox share links through a resolver API and
// hands the resulting direct link to another engine.
package terabox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	requestTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

	ResolutionFast = "Fast Download"
	ResolutionHD   = "HD Video"
)

// ErrNoDownloadLink is returned when the resolver answered without any usable URL.
var ErrNoDownloadLink = errors.New("no download link in resolver response")

type resolverResponse struct {
	Response []struct {
		Title       string            `json:"title"`
		Resolutions map[string]string `json:"resolutions"`
	} `json:"response"`
}

// Resolved is what the resolver returns for a share link.
type Resolved struct {
	Title string
	Fast  string
	HD    string
}

type Engine struct {
	client  *resty.Client
	payload downloader.Engine
}

// New builds the engine; payload downloads the resolved direct link (aria2).
func New(resolverURL string, payload downloader.Engine) *Engine {
	client := resty.New().
		SetBaseURL(resolverURL).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", userAgent)
	return &Engine{client: client, payload: payload}
}

func (*Engine) Name() string {
	return "terabox"
}

func (e *Engine) Resolve(ctx context.Context, link string) (Resolved, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"url": link}).
		SetResult(&resolverResponse{}).
		Post("")
	if err != nil {
		return Resolved{}, fmt.Errorf("failed to call resolver: %w", err)
	}
	if resp.IsError() {
		return Resolved{}, fmt.Errorf("resolver returned %s", resp.Status())
	}
	body, ok := resp.Result().(*resolverResponse)
	if !ok || body == nil || len(body.Response) == 0 {
		return Resolved{}, ErrNoDownloadLink
	}
	item := body.Response[0]
	r := Resolved{
		Title: item.Title,
		Fast:  item.Resolutions[ResolutionFast],
		HD:    item.Resolutions[ResolutionHD],
	}
	if r.Fast == "" && r.HD == "" {
		return r, ErrNoDownloadLink
	}
	return r, nil
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	hint := req.FilenameHint
	if hint == "" {
		hint = "Unknown Terabox File"
	}

	resolved, err := e.Resolve(ctx, req.Link)
	if err != nil {
		logutils.Log.WithError(err).WithField("link", req.Link).Error("Error getting Terabox download link")
		return downloader.Failure(hint, "Failed to get Terabox link: "+utils.ShortReason(err, 100))
	}
	if resolved.Title != "" {
		hint = utils.CleanFilename(resolved.Title)
	}

	var last downloader.Result
	for _, candidate := range []struct{ label, url string }{
		{ResolutionFast, resolved.Fast},
		{ResolutionHD, resolved.HD},
	} {
		if candidate.url == "" {
			continue
		}
		logutils.Log.WithFields(map[string]any{
			"ordinal":    req.Ordinal,
			"resolution": candidate.label,
		}).Info("Attempting Terabox download")

		sub := req
		sub.Link = candidate.url
		sub.FilenameHint = hint
		last = e.payload.Download(ctx, sub)
		if last.OK() || ctx.Err() != nil {
			break
		}
	}

	if last.OK() {
		// Record the share link, not the short-lived resolved URL.
		return downloader.Success(hint, last.Bytes)
	}
	if ctx.Err() != nil {
		return downloader.Failure(hint, downloader.ReasonCancelled)
	}
	return downloader.Failure(hint, "Slow Terabox DL failed: "+last.Reason)
}
