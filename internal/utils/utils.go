package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

func HasEnoughSpace(path string, requiredSpace int64) bool {
	if requiredSpace < 0 {
		return false
	}
	usage, err := disk.Usage(path)
	if err != nil {
		logutils.Log.WithError(err).WithField("path", path).Error("Failed to get filesystem stats")
		return false
	}
	availableSpace := usage.Free

	logutils.Log.WithFields(map[string]any{
		"required":  requiredSpace,
		"available": availableSpace,
	}).Debug("Checked free space")

	return availableSpace >= uint64(requiredSpace)
}

func IsEmptyDirectory(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	return len(entries) == 0
}

// GetSize returns the size of a file or the total size of regular files
// below a directory. Missing paths count as 0.
func GetSize(path string) int64 {
	info, err := os.Lstat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}

	var total int64
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logutils.Log.WithError(walkErr).WithField("path", p).Warn("Skipping entry while sizing directory")
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if fi, infoErr := d.Info(); infoErr == nil {
			total += fi.Size()
		}
		return nil
	})
	if err != nil {
		logutils.Log.WithError(err).WithField("path", path).Error("Failed to walk directory")
		return 0
	}
	return total
}

// NaturalSort orders names so that "file2" sorts before "file10".
func NaturalSort(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})
}

func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, restA := leadingNumber(a)
			nb, restB := leadingNumber(b)
			if na != nb {
				return na < nb
			}
			a, b = restA, restB
			continue
		}
		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			return la < lb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingNumber(s string) (int64, string) {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, s[end:]
	}
	return n, s[end:]
}

// ExpandHome resolves a leading "~" against the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
