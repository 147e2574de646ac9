package torrent

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

const (
	sniffSize      = 512
	minTorrentSize = 20
	maxTorrentSize = 10 * 1024 * 1024
)

var (
	htmlMarkers = [][]byte{
		[]byte("<!doctype html"), []byte("<html"), []byte("<head>"), []byte("<body>"),
		[]byte("<title>"), []byte("<meta"), []byte("<script"), []byte("<style"),
	}
	torrentKeys = [][]byte{[]byte("8:announce"), []byte("13:announce-list"), []byte("4:info")}
)

// ValidateFile rejects a fetched .torrent that is really an error page, a
// pasted magnet link or something too small or too big to be a torrent.
func ValidateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open torrent file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat torrent file: %w", err)
	}
	switch {
	case st.Size() < minTorrentSize:
		return fmt.Errorf("torrent file too small (%d bytes)", st.Size())
	case st.Size() > maxTorrentSize:
		return fmt.Errorf("torrent file too large (%d bytes)", st.Size())
	}

	head, err := io.ReadAll(io.LimitReader(f, sniffSize))
	if err != nil {
		return fmt.Errorf("cannot read torrent file: %w", err)
	}
	return ValidateContent(head)
}

// ValidateContent sniffs the start of a torrent file. head may be truncated,
// so it is not decoded.
func ValidateContent(head []byte) error {
	trimmed := bytes.ToLower(bytes.TrimSpace(head))
	switch {
	case len(trimmed) == 0:
		return fmt.Errorf("torrent file is empty")
	case looksLikeHTML(trimmed):
		return fmt.Errorf("got an HTML page instead of a torrent file")
	case bytes.HasPrefix(trimmed, []byte("magnet:")):
		return fmt.Errorf("got a magnet link instead of a torrent file")
	case !looksLikeTorrent(head):
		return fmt.Errorf("not a bencoded torrent file")
	}
	return nil
}

// looksLikeHTML catches trackers that answer with an error or login page.
func looksLikeHTML(lower []byte) bool {
	hits := 0
	for _, m := range htmlMarkers {
		if bytes.Contains(lower, m) {
			hits++
		}
	}
	return hits >= 2 || (hits == 1 && lower[0] == '<')
}

func looksLikeTorrent(head []byte) bool {
	if len(head) == 0 || head[0] != 'd' {
		return false
	}
	for _, key := range torrentKeys {
		if bytes.Contains(head, key) {
			return true
		}
	}
	return false
}
