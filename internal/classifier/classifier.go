// Package classifier decides which download engine handles a source link.
package classifier

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

type Kind int

const (
	KindDirect Kind = iota
	KindLocal
	KindTorrent
	KindGDrive
	KindTelegram
	KindMega
	KindMedia
	KindTerabox
	KindUnrecognized
)

var kindNames = map[Kind]string{
	KindDirect:       "direct",
	KindLocal:        "local",
	KindTorrent:      "torrent",
	KindGDrive:       "gdrive",
	KindTelegram:     "telegram",
	KindMega:         "mega",
	KindMedia:        "media",
	KindTerabox:      "terabox",
	KindUnrecognized: "unrecognized",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Icon is the marker used in the source listing message.
func (k Kind) Icon() string {
	switch k {
	case KindLocal:
		return "📂"
	case KindTorrent:
		return "🧲"
	case KindGDrive:
		return "♻️"
	case KindTelegram:
		return "💬"
	case KindMega:
		return "💾"
	case KindMedia:
		return "🏮"
	case KindTerabox:
		return "🍑"
	case KindUnrecognized:
		return "❓"
	default:
		return "🔗"
	}
}

var mediaDomains = []string{
	"youtube.com", "youtube-nocookie.com", "youtu.be", "vimeo.com", "dailymotion.com",
	"twitter.com", "facebook.com", "instagram.com", "tiktok.com", "soundcloud.com",
	"twitch.tv", "bitchute.com", "rumble.com", "mindvalley.com",
}

var teraboxHosts = []string{"terabox", "1024tera", "teraboxapp", "nephobox", "4funbox", "mirrobox", "momerybox"}

// Classify maps a link to the engine kind that handles it. It never fails:
// anything not matched by a more specific rule is a direct download.
func Classify(link string) Kind {
	link = strings.TrimSpace(link)
	lower := strings.ToLower(link)

	switch {
	case IsLocalPath(link):
		return KindLocal
	case strings.HasPrefix(lower, "magnet:") || strings.HasSuffix(pathOf(lower), ".torrent"):
		return KindTorrent
	case strings.Contains(lower, "drive.google.com"):
		return KindGDrive
	case IsTelegramLink(link):
		if _, err := ParseTelegramLink(link); err != nil {
			return KindUnrecognized
		}
		return KindTelegram
	case strings.Contains(lower, "mega.nz"):
		return KindMega
	case IsMediaLink(link):
		return KindMedia
	case isTerabox(lower):
		return KindTerabox
	default:
		return KindDirect
	}
}

var telegramHosts = []string{"t.me", "telegram.me"}

// parseHostURL parses link, assuming https when the scheme is missing.
func parseHostURL(link string) (*url.URL, error) {
	link = strings.TrimSpace(link)
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	return url.Parse(link)
}

// IsTelegramLink reports whether link points at t.me or telegram.me itself.
// Other hosts that merely contain "t.me" are not Telegram links.
func IsTelegramLink(link string) bool {
	u, err := parseHostURL(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return slices.Contains(telegramHosts, host)
}

func IsLocalPath(link string) bool {
	return strings.HasPrefix(link, "/") || strings.HasPrefix(link, "~")
}

// IsMediaLink reports whether yt-dlp should handle the link.
func IsMediaLink(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".m3u8") {
		return true
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, domain := range mediaDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func isTerabox(lower string) bool {
	u, err := url.Parse(lower)
	if err != nil {
		return false
	}
	for _, h := range teraboxHosts {
		if strings.Contains(u.Hostname(), h) {
			return true
		}
	}
	return false
}

func pathOf(link string) string {
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		return u.Path
	}
	return link
}

// TelegramRef identifies a message referenced by a t.me link. Chat is either a
// numeric id (-100 prefixed for private channels) or a public username.
type TelegramRef struct {
	ChatID    int64
	Username  string
	MessageID int
}

// ChatString renders the chat reference the way the bot API expects it.
func (r TelegramRef) ChatString() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strconv.FormatInt(r.ChatID, 10)
}

// ParseTelegramLink accepts https://t.me/c/<id>/<msg>, https://t.me/<user>/<msg>
// and the topic form with an extra path segment.
func ParseTelegramLink(link string) (TelegramRef, error) {
	var ref TelegramRef

	if !IsTelegramLink(link) {
		return ref, fmt.Errorf("not a telegram link: %s", link)
	}
	u, err := parseHostURL(link)
	if err != nil {
		return ref, fmt.Errorf("not a telegram link: %s", link)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return ref, fmt.Errorf("telegram link has no message id: %s", link)
	}

	msgID, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || msgID <= 0 {
		return ref, fmt.Errorf("invalid telegram message id in %s", link)
	}
	ref.MessageID = msgID

	if parts[0] == "c" {
		if len(parts) < 3 {
			return ref, fmt.Errorf("private telegram link has no chat id: %s", link)
		}
		raw := parts[1]
		if !strings.HasPrefix(raw, "-100") {
			raw = "-100" + raw
		}
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ref, fmt.Errorf("invalid telegram chat id in %s", link)
		}
		ref.ChatID = chatID
		return ref, nil
	}

	if parts[0] == "" {
		return ref, fmt.Errorf("telegram link has no chat: %s", link)
	}
	ref.Username = parts[0]
	return ref, nil
}

// IsLink is the chat-side check for a submitted line: a local path, a magnet
// or an absolute URL with scheme and host.
func IsLink(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if IsLocalPath(text) || strings.HasPrefix(strings.ToLower(text), "magnet:") {
		return true
	}
	u, err := url.Parse(text)
	return err == nil && u.Scheme != "" && u.Host != ""
}
