package utils

import (
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var sizeUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// SizeUnit formats a byte count with binary units, e.g. "1.50 MiB".
func SizeUnit(size float64) string {
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return "0 B"
	}
	power := int(math.Floor(math.Log(size) / math.Log(1024)))
	if power < 0 {
		power = 0
	}
	if power > len(sizeUnits)-1 {
		power = len(sizeUnits) - 1
	}
	return fmt.Sprintf("%.2f %s", size/math.Pow(1024, float64(power)), sizeUnits[power])
}

// GetTime renders seconds as "1d 2h 3m 4s". Negative, NaN and infinite inputs give "N/A".
func GetTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "N/A"
	}
	s := int64(seconds)
	days := s / 86400
	s %= 86400
	hours := s / 3600
	s %= 3600
	minutes := s / 60
	s %= 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}

// SpeedETA returns the speed string, the ETA in seconds (+Inf when unknown)
// and the completion percentage for a transfer that started at start.
func SpeedETA(start time.Time, done, total int64) (speed string, eta, percentage float64) {
	elapsed := time.Since(start).Seconds()
	eta = math.Inf(1)

	if total > 0 {
		percentage = math.Min(100, float64(done)/float64(total)*100)
	}

	var bps float64
	if done > 0 && elapsed > 0 {
		bps = float64(done) / elapsed
	}
	if bps > 0 && total > 0 && done < total {
		eta = math.Max(0, float64(total-done)/bps)
	}

	speed = "N/A"
	if bps > 0 {
		speed = SizeUnit(bps) + "/s"
	}
	return speed, eta, percentage
}

var forbiddenNameChars = regexp.MustCompile(`[\\/:*?"<>|]+|[\x00-\x1f]`)

const maxFileNameLen = 240

// CleanFilename URL-decodes a name, replaces characters that are unsafe in
// file names and trims separators. Empty results return "".
func CleanFilename(name string) string {
	if name == "" {
		return ""
	}
	decoded, err := url.PathUnescape(name)
	if err != nil {
		decoded = name
	}
	cleaned := forbiddenNameChars.ReplaceAllString(decoded, "_")
	cleaned = strings.Trim(cleaned, "._ -")
	if r := []rune(cleaned); len(r) > maxFileNameLen {
		cleaned = string(r[:maxFileNameLen])
	}
	return cleaned
}

const shortNameLimit = 60

// ShortFileName shortens a display name to 60 runes, keeping the extension.
func ShortFileName(name string) string {
	r := []rune(name)
	if len(r) <= shortNameLimit {
		return name
	}
	ext := filepath.Ext(name)
	if ext == "" || len([]rune(ext)) >= shortNameLimit {
		return string(r[:shortNameLimit])
	}
	baseLen := shortNameLimit - len([]rune(ext))
	if baseLen < 1 {
		baseLen = 1
	}
	base := []rune(strings.TrimSuffix(name, ext))
	if len(base) > baseLen {
		base = base[:baseLen]
	}
	return string(base) + ext
}

// FileCategory is the upload method a file is sent with.
type FileCategory string

const (
	CategoryVideo    FileCategory = "video"
	CategoryAudio    FileCategory = "audio"
	CategoryPhoto    FileCategory = "photo"
	CategoryDocument FileCategory = "document"
)

var categoryExtensions = map[FileCategory][]string{
	CategoryVideo: {".mp4", ".avi", ".mkv", ".m2ts", ".mov", ".ts", ".m3u8", ".webm", ".mpg", ".mpeg",
		".mpeg4", ".vob", ".m4v", ".wmv", ".flv"},
	CategoryAudio: {".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a", ".opus"},
	CategoryPhoto: {".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp", ".tiff", ".heic", ".heif"},
}

func FileType(path string) FileCategory {
	ext := strings.ToLower(filepath.Ext(path))
	for category, exts := range categoryExtensions {
		for _, e := range exts {
			if e == ext {
				return category
			}
		}
	}
	return CategoryDocument
}

var splitPartPattern = regexp.MustCompile(`(?i)\.part\d{3}(\.[a-z0-9]+)?$|\.\d{3}$`)

// IsSplitFile reports whether name looks like a part produced by the splitter.
func IsSplitFile(name string) bool {
	return splitPartPattern.MatchString(name)
}
