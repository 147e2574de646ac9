package torrent

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// Magnet is the part of a magnet link the bot cares about.
type Magnet struct {
	InfoHash string
	Name     string
	Trackers []string
}

var (
	reBtih   = regexp.MustCompile(`(?i)xt=urn:btih:([^&?]+)`)
	reHex40  = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	reBase32 = regexp.MustCompile(`^[A-Za-z2-7]{32}$`)
)

func IsMagnet(link string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(link)), "magnet:")
}

// normalizeMagnet undoes the percent-encoding of separators that some sites
// apply to the whole query, so "btih:<hash>%26tr=..." splits correctly.
func normalizeMagnet(link string) string {
	r := strings.NewReplacer("%26", "&", "%3F", "&", "%3f", "&")
	return r.Replace(strings.TrimSpace(link))
}

// ValidateMagnetBtih rejects info hashes aria2 cannot handle. Links that are
// not magnets, or carry no btih, pass.
func ValidateMagnetBtih(link string) error {
	if !IsMagnet(link) {
		return nil
	}
	m := reBtih.FindStringSubmatch(normalizeMagnet(link))
	if m == nil {
		return nil
	}
	hash := m[1]
	if reHex40.MatchString(hash) || reBase32.MatchString(hash) {
		return nil
	}
	return fmt.Errorf("unsupported %d-character btih: expected 40 hex or 32 base32 characters", len(hash))
}

func ParseMagnet(link string) (Magnet, error) {
	if err := ValidateMagnetBtih(link); err != nil {
		return Magnet{}, err
	}
	m, err := metainfo.ParseMagnetUri(normalizeMagnet(link))
	if err != nil {
		return Magnet{}, fmt.Errorf("invalid magnet link: %w", err)
	}
	name := m.DisplayName
	if decoded, derr := url.QueryUnescape(name); derr == nil {
		name = decoded
	}
	return Magnet{
		InfoHash: m.InfoHash.HexString(),
		Name:     name,
		Trackers: m.Trackers,
	}, nil
}
