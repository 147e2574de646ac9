package torrent

import (
	"fmt"
	"os"

	"github.com/jackpal/bencode-go"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

type Meta struct {
	Announce string `bencode:"announce"`
	Info     struct {
		Name   string `bencode:"name"`
		Length int64  `bencode:"length"`
		Files  []struct {
			Length int64    `bencode:"length"`
			Path   []string `bencode:"path"`
		} `bencode:"files"`
	} `bencode:"info"`
}

func ParseMeta(filePath string) (*Meta, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open torrent file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logutils.Log.WithError(cerr).WithField("path", filePath).Warn("Failed to close torrent file")
		}
	}()

	var meta Meta
	if err := bencode.Unmarshal(f, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode torrent meta: %w", err)
	}
	if meta.Info.Name == "" {
		return nil, fmt.Errorf("torrent meta does not contain a file name")
	}
	return &meta, nil
}

// TotalSize is the payload size: the single file length or the sum over files.
func (m *Meta) TotalSize() int64 {
	if len(m.Info.Files) == 0 {
		return m.Info.Length
	}
	var total int64
	for _, f := range m.Info.Files {
		total += f.Length
	}
	return total
}

func (m *Meta) FileCount() int {
	if len(m.Info.Files) == 0 {
		return 1
	}
	return len(m.Info.Files)
}
