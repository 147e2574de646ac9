// Package taskctx carries the state of the single active task through every
// stage. Stages receive a *TaskContext explicitly instead of reaching into
// globals.
package taskctx

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeLeech    Mode = "leech"
	ModeMirror   Mode = "mirror"
	ModeDirLeech Mode = "dir-leech"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLeech, "":
		return ModeLeech, nil
	case ModeMirror:
		return ModeMirror, nil
	case ModeDirLeech, "dirleech", "dir_leech":
		return ModeDirLeech, nil
	default:
		return "", fmt.Errorf("unknown task mode %q", s)
	}
}

// UploadsToChat reports whether the mode ends with a chat upload.
func (m Mode) UploadsToChat() bool {
	return m == ModeLeech || m == ModeDirLeech
}

// ProcessingMode is the post-download transformation. Exactly one applies.
type ProcessingMode int

const (
	Passthrough ProcessingMode = iota
	Zip
	Unzip
	UnzipThenZip
)

// ParseProcessingMode accepts the task type names used in chat: normal, zip,
// unzip and undzip.
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return Passthrough, nil
	case "zip":
		return Zip, nil
	case "unzip":
		return Unzip, nil
	case "undzip", "unzip-zip", "dualzip":
		return UnzipThenZip, nil
	default:
		return Passthrough, fmt.Errorf("unknown task type %q", s)
	}
}

func (p ProcessingMode) String() string {
	switch p {
	case Zip:
		return "zip"
	case Unzip:
		return "unzip"
	case UnzipThenZip:
		return "undzip"
	default:
		return "normal"
	}
}

// Service selects an explicit engine for the whole task. ServiceAuto lets the
// classifier decide per link.
type Service string

const (
	ServiceAuto     Service = ""
	ServiceDirect   Service = "direct"
	ServiceYTDL     Service = "ytdl"
	ServiceNZBCloud Service = "nzbcloud"
	ServiceDebrid   Service = "debrid"
	ServiceBitso    Service = "bitso"
	ServiceNZB      Service = "nzb"
	ServiceJD       Service = "jd"
)

// ParseService accepts the service names used in chat commands. "auto" and
// the empty string select per-link classification.
func ParseService(s string) (Service, error) {
	switch v := Service(strings.ToLower(strings.TrimSpace(s))); v {
	case "", "auto":
		return ServiceAuto, nil
	case ServiceDirect, ServiceYTDL, ServiceNZBCloud, ServiceDebrid, ServiceBitso, ServiceNZB, ServiceJD:
		return v, nil
	case "ytdlp", "yt-dlp":
		return ServiceYTDL, nil
	case "sabnzbd":
		return ServiceNZB, nil
	case "jdownloader":
		return ServiceJD, nil
	default:
		return ServiceAuto, fmt.Errorf("unknown service %q", s)
	}
}

func (s Service) IsAuto() bool {
	return s == ServiceAuto || s == ServiceDirect
}

func (s Service) String() string {
	if s == ServiceAuto {
		return "N/A"
	}
	return string(s)
}

// RequiresFilenames reports whether every link must come with an explicit
// output name.
func (s Service) RequiresFilenames() bool {
	switch s {
	case ServiceNZBCloud, ServiceDebrid, ServiceBitso:
		return true
	default:
		return false
	}
}

// SkipsPrecheck reports whether size and name pre-computation is pointless
// for the service.
func (s Service) SkipsPrecheck() bool {
	switch s {
	case ServiceNZBCloud, ServiceBitso, ServiceYTDL:
		return true
	default:
		return false
	}
}

type Task struct {
	ID         string
	Links      []string
	Mode       Mode
	Processing ProcessingMode
	Service    Service
	// Filenames are per-link output names, aligned with Links by index.
	Filenames     []string
	CustomName    string
	Media         bool
	ZipPassword   string
	UnzipPassword string
	ChatID        int64
	SourceMsgID   int
}

func NewTask(links []string, mode Mode, processing ProcessingMode, service Service) Task {
	return Task{
		ID:         uuid.NewString(),
		Links:      append([]string(nil), links...),
		Mode:       mode,
		Processing: processing,
		Service:    service,
	}
}

// Key is the duplicate-detection key: the sorted source links.
func (t Task) Key() string {
	sorted := append([]string(nil), t.Links...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\n")
}

// FilenameFor returns the explicit name for the link at index i, if any.
func (t Task) FilenameFor(i int) string {
	if i >= 0 && i < len(t.Filenames) {
		return t.Filenames[i]
	}
	return ""
}

// Clock is swapped in tests.
var Clock = time.Now
