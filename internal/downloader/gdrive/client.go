package gdrive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"
	FolderMimeType = "application/vnd.google-apps.folder"
	appsMimePrefix = "application/vnd.google-apps"
	listPageSize   = 200
)

var reFileID = regexp.MustCompile(`/(?:folders|file/d)/([-\w]+)`)

// File is the subset of Drive file metadata the bot uses.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,string"`
}

func (f File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// IsGoogleDoc reports native Docs/Sheets/Slides files, which need an export
// instead of a plain media download.
func (f File) IsGoogleDoc() bool {
	return strings.HasPrefix(f.MimeType, appsMimePrefix) && !f.IsFolder()
}

type fileList struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []File `json:"files"`
}

// APIError carries the HTTP status of a failed Drive call.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive api error: %d %s", e.Status, http.StatusText(e.Status))
}

// Client talks to the Drive v3 REST API with an API key.
type Client struct {
	Client  *resty.Client
	APIKey  string
	BaseURL string
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetQueryParam("key", apiKey).
		SetQueryParam("supportsAllDrives", "true")
	logutils.Log.WithField("base_url", baseURL).Debug("Initialized Google Drive client")
	return &Client{Client: client, APIKey: apiKey, BaseURL: baseURL}
}

// FileID extracts the file or folder id from a Drive share link.
func FileID(link string) (string, error) {
	if m := reFileID.FindStringSubmatch(link); m != nil {
		return m[1], nil
	}
	u, err := url.Parse(link)
	if err == nil {
		if id := u.Query().Get("id"); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("G-Drive ID not found")
}

func (c *Client) Metadata(ctx context.Context, id string) (File, error) {
	resp, err := c.Client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParam("fields", "id,name,mimeType,size").
		SetResult(&File{}).
		Get("/files/{id}")
	if err != nil {
		return File{}, fmt.Errorf("failed to request drive metadata: %w", err)
	}
	if resp.IsError() {
		return File{}, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	f, ok := resp.Result().(*File)
	if !ok || f == nil {
		return File{}, fmt.Errorf("failed to parse drive metadata response")
	}
	return *f, nil
}

// List returns every non-trashed child of a folder, folders first.
func (c *Client) List(ctx context.Context, folderID string) ([]File, error) {
	var (
		files []File
		token string
	)
	for {
		req := c.Client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":                         fmt.Sprintf("'%s' in parents and trashed = false", folderID),
				"fields":                    "nextPageToken,files(id,name,mimeType,size)",
				"includeItemsFromAllDrives": "true",
				"orderBy":                   "folder,name",
				"pageSize":                  fmt.Sprint(listPageSize),
			}).
			SetResult(&fileList{})
		if token != "" {
			req.SetQueryParam("pageToken", token)
		}
		resp, err := req.Get("/files")
		if err != nil {
			return nil, fmt.Errorf("failed to list drive folder: %w", err)
		}
		if resp.IsError() {
			return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
		}
		page, ok := resp.Result().(*fileList)
		if !ok || page == nil {
			return nil, fmt.Errorf("failed to parse drive list response")
		}
		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		token = page.NextPageToken
	}
}

// FolderSize sums file sizes below a folder recursively.
func (c *Client) FolderSize(ctx context.Context, folderID string) (int64, error) {
	items, err := c.List(ctx, folderID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, item := range items {
		if item.IsFolder() {
			sub, err := c.FolderSize(ctx, item.ID)
			if err != nil {
				return 0, err
			}
			total += sub
			continue
		}
		total += item.Size
	}
	return total, nil
}

// MediaURL is the direct content URL for a file.
func (c *Client) MediaURL(id string) string {
	q := url.Values{}
	q.Set("alt", "media")
	q.Set("supportsAllDrives", "true")
	q.Set("key", c.APIKey)
	return strings.TrimRight(c.BaseURL, "/") + "/files/" + url.PathEscape(id) + "?" + q.Encode()
}
