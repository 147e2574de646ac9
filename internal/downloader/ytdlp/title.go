package ytdlp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/process"
)

const titleTimeout = 30 * time.Second

var (
	reYouTubeID = regexp.MustCompile(
		`(?:youtube(?:-nocookie)?\.com/(?:[^/\n\s]+/\S+/|(?:v|e(?:mbed)?|shorts)/|\S*?[?&]v=)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	reUnsafeID = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// TitleResolver finds a display title for a media link: YouTube through the
// YouTube API client, everything else through "yt-dlp --get-title".
type TitleResolver struct {
	exec   process.Executor
	binary string
	client *youtube.Client
}

func NewTitleResolver(exec process.Executor, hc *http.Client) *TitleResolver {
	if hc == nil {
		hc = &http.Client{Timeout: titleTimeout}
	}
	return &TitleResolver{
		exec:   exec,
		binary: defaultYtdlpBinary,
		client: &youtube.Client{HTTPClient: hc},
	}
}

func (r *TitleResolver) Title(ctx context.Context, link string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	if isYouTubePlaylist(link) {
		if pl, err := r.client.GetPlaylistContext(ctx, link); err == nil && pl.Title != "" {
			return pl.Title, nil
		}
	} else if id, err := extractYouTubeID(link); err == nil {
		video, err := r.client.GetVideoContext(ctx, id)
		if err == nil && video.Title != "" {
			return video.Title, nil
		}
		logutils.Log.WithError(err).WithField("video_id", id).Debug("YouTube client lookup failed, falling back to yt-dlp")
	}

	out, err := r.exec.Output(ctx, r.binary, "--get-title", "--no-playlist", "--no-warnings", link)
	if err != nil {
		return "", fmt.Errorf("failed to get video title: %w", err)
	}
	title := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if title == "" {
		return "", fmt.Errorf("yt-dlp returned an empty title for %s", link)
	}
	return title, nil
}

// DisplayName implements downloader.Namer with a stable fallback built from the URL.
func (r *TitleResolver) DisplayName(ctx context.Context, link string) (string, error) {
	title, err := r.Title(ctx, link)
	if err == nil {
		return title, nil
	}
	logutils.Log.WithError(err).WithField("link", link).Warn("Failed to retrieve video title, using URL-based name")
	return FallbackName(link)
}

func extractYouTubeID(link string) (string, error) {
	m := reYouTubeID.FindStringSubmatch(link)
	if len(m) < 2 {
		return "", fmt.Errorf("invalid YouTube URL")
	}
	return m[1], nil
}

func isYouTubePlaylist(link string) bool {
	u, err := url.Parse(link)
	if err != nil || !strings.Contains(u.Hostname(), "youtube") {
		return false
	}
	return u.Query().Get("list") != "" && u.Query().Get("v") == ""
}

// FallbackName builds "<host>_<video id or path>" for links without a title.
func FallbackName(link string) (string, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	host := reUnsafeID.ReplaceAllString(parsed.Hostname(), "_")
	if v := parsed.Query().Get("v"); v != "" {
		return host + "_" + v, nil
	}
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		return host + "_" + reUnsafeID.ReplaceAllString(path, "_"), nil
	}
	return host, nil
}
