// Package jdownloader queues links on a local JDownloader 2 instance through
// its local REST API (port 3128 by default).
package jdownloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const requestTimeout = 30 * time.Second

var ErrNotConfigured = errors.New("JDownloader API URL is not configured")

// AddLinksQuery mirrors the LinkCollectingJob body of /linkgrabberv2/addLinks.
type AddLinksQuery struct {
	Links                    string `json:"links"`
	PackageName              string `json:"packageName,omitempty"`
	ExtractPassword          string `json:"extractPassword,omitempty"`
	DestinationFolder        string `json:"destinationFolder,omitempty"`
	AutoStart                bool   `json:"autostart"`
	AutoExtract              bool   `json:"autoExtract"`
	OverwritePackagizerRules bool   `json:"overwritePackagizerRules"`
}

type addLinksResponse struct {
	Data struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

type Engine struct {
	client *resty.Client
}

// New returns an engine for the API at baseURL; empty means not configured.
func New(baseURL string) *Engine {
	if baseURL == "" {
		return &Engine{}
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")
	return &Engine{client: client}
}

func (*Engine) Name() string {
	return "jd"
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	name := req.FilenameHint
	if name == "" {
		name = fmt.Sprintf("JD_Link_%d", req.Ordinal)
	}
	if e.client == nil {
		return downloader.Failure(name, ErrNotConfigured.Error())
	}

	id, err := e.AddLinks(ctx, AddLinksQuery{
		Links:           strings.TrimSpace(req.Link),
		PackageName:     req.FilenameHint,
		ExtractPassword: req.Password,
		AutoStart:       true,
		AutoExtract:     true,
	})
	if err != nil {
		logutils.Log.WithError(err).WithField("link", req.Link).Error("JDownloader rejected link")
		if r := downloader.NetworkReason(err); r != "" {
			return downloader.Failure(name, r)
		}
		return downloader.Failure(name, "JDownloader Error: "+utils.ShortReason(err, 100))
	}
	logutils.Log.WithFields(map[string]any{
		"link":   req.Link,
		"job_id": id,
	}).Info("Link queued on JDownloader")
	return downloader.Success(name, 0)
}

// AddLinks posts one collecting job and returns its id.
func (e *Engine) AddLinks(ctx context.Context, q AddLinksQuery) (int64, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(q).
		SetResult(&addLinksResponse{}).
		Post("/linkgrabberv2/addLinks")
	if err != nil {
		return 0, fmt.Errorf("failed to call JDownloader: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("JDownloader returned %s", resp.Status())
	}
	body, ok := resp.Result().(*addLinksResponse)
	if !ok || body == nil {
		return 0, fmt.Errorf("failed to parse JDownloader response")
	}
	return body.Data.ID, nil
}

// Remote marks engines whose output never reaches the local download dir.
func (*Engine) Remote() bool {
	return true
}
