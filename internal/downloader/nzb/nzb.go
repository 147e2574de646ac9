// Package nzb hands NZB links to a SABnzbd server. Files land in SABnzbd's
// own download folder; the bot only queues them.
package nzb

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

const requestTimeout = 60 * time.Second

var ErrNotConfigured = errors.New("SABnzbd credentials are missing")

type addResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type queueResponse struct {
	Queue struct {
		Slots []Slot `json:"slots"`
	} `json:"queue"`
}

// Slot is one job in the SABnzbd queue.
type Slot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
}

// Client wraps the subset of the SABnzbd API the bot uses.
type Client struct {
	client *resty.Client
	apiKey string
}

func NewClient(baseURL, apiKey string) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(requestTimeout).
		SetQueryParams(map[string]string{
			"apikey": apiKey,
			"output": "json",
		})
	return &Client{client: client, apiKey: apiKey}
}

// AddURL queues an NZB by URL and returns the job ids.
func (c *Client) AddURL(ctx context.Context, link, name, password string) ([]string, error) {
	params := map[string]string{
		"mode":     "addurl",
		"name":     link,
		"cat":      "*",
		"priority": "0",
		"pp":       "1",
	}
	if name != "" {
		params["nzbname"] = name
	}
	if password != "" {
		params["password"] = password
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&addResponse{}).
		Get("/sabnzbd/api")
	if err != nil {
		return nil, fmt.Errorf("SABnzbd API request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("SABnzbd API request failed: %s", resp.Status())
	}
	body, ok := resp.Result().(*addResponse)
	if !ok || body == nil {
		return nil, fmt.Errorf("empty response from SABnzbd")
	}
	if !body.Status {
		if body.Error != "" {
			return nil, fmt.Errorf("SABnzbd rejected link: %s", body.Error)
		}
		return nil, fmt.Errorf("SABnzbd rejected link")
	}
	return body.NzoIDs, nil
}

// Queue returns the current SABnzbd queue.
func (c *Client) Queue(ctx context.Context) ([]Slot, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("mode", "queue").
		SetResult(&queueResponse{}).
		Get("/sabnzbd/api")
	if err != nil {
		return nil, fmt.Errorf("SABnzbd API request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("SABnzbd API request failed: %s", resp.Status())
	}
	body, ok := resp.Result().(*queueResponse)
	if !ok || body == nil {
		return nil, fmt.Errorf("empty response from SABnzbd")
	}
	return body.Queue.Slots, nil
}

// Engine queues each link on SABnzbd. A queued link counts as a success with
// zero local bytes.
type Engine struct {
	client *Client
}

// New returns an engine; a nil client means SABnzbd is not configured.
func New(client *Client) *Engine {
	return &Engine{client: client}
}

func (*Engine) Name() string {
	return "nzb"
}

func (e *Engine) Download(ctx context.Context, req downloader.Request) downloader.Result {
	name := req.FilenameHint
	if name == "" {
		name = fmt.Sprintf("NZB_Link_%d", req.Ordinal)
	}
	if e.client == nil {
		logutils.Log.Error("SABnzbd credentials are missing. Set SABNZBD_URL and SABNZBD_API_KEY")
		return downloader.Failure(name, ErrNotConfigured.Error())
	}
	link := strings.TrimSpace(req.Link)
	if link == "" {
		return downloader.Failure(name, "Missing URL/Filename")
	}

	ids, err := e.client.AddURL(ctx, link, req.FilenameHint, req.Password)
	if err != nil {
		logutils.Log.WithError(err).WithField("link", link).Error("Error adding NZB link")
		if r := downloader.NetworkReason(err); r != "" {
			return downloader.Failure(name, r)
		}
		return downloader.Failure(name, utils.ShortReason(err, 100))
	}
	logutils.Log.WithFields(map[string]any{
		"link":    link,
		"nzo_ids": ids,
	}).Info("NZB link queued on SABnzbd")
	return downloader.Success(name, 0)
}

// Remote marks engines whose output never reaches the local download dir.
func (*Engine) Remote() bool {
	return true
}
