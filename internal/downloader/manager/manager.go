// Package manager routes the links of one batch to download engines and
// records every outcome in the task ledgers.
package manager

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/classifier"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ledger"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	// BatchFailedMessage is the advisory fatal text set when a batch had failures.
	BatchFailedMessage = "One or more downloads failed/skipped in batch."
	sizeWorkers        = 4
)

// Engines is the set of engines the manager dispatches to. A nil engine makes
// links of that kind fail with an unsupported-service reason.
type Engines struct {
	Aria2    downloader.Engine
	Torrent  downloader.Engine
	YTDL     downloader.Engine
	GDrive   downloader.Engine
	Telegram downloader.Engine
	Mega     downloader.Engine
	Terabox  downloader.Engine
	NZBCloud downloader.Engine
	Debrid   downloader.Engine
	Bitso    downloader.Engine
	NZB      downloader.Engine
	JD       downloader.Engine
}

// ForService returns the engine that takes a whole batch for an explicit
// service, or nil for auto-detected and unknown services.
func (e Engines) ForService(s taskctx.Service) downloader.Engine {
	switch s {
	case taskctx.ServiceNZBCloud:
		return e.NZBCloud
	case taskctx.ServiceDebrid:
		return e.Debrid
	case taskctx.ServiceBitso:
		return e.Bitso
	case taskctx.ServiceNZB:
		return e.NZB
	case taskctx.ServiceJD:
		return e.JD
	case taskctx.ServiceYTDL:
		return e.YTDL
	default:
		return nil
	}
}

type Manager struct {
	engines Engines
}

func New(engines Engines) *Manager {
	return &Manager{engines: engines}
}

func (m *Manager) Engines() Engines {
	return m.engines
}

// Batch is one call into the manager. Offset is the number of task links
// before Links[0], so ordinals stay task-global when the scheduler feeds
// links one at a time.
type Batch struct {
	Links     []string
	Filenames []string
	Media     bool
	Offset    int
}

// RunBatch downloads links for the task in tc. It returns nothing: outcomes
// land in tc.Transfer and tc.Errors.
func (m *Manager) RunBatch(ctx context.Context, tc *taskctx.TaskContext, links []string, media bool, filenames []string) {
	m.Run(ctx, tc, Batch{Links: links, Filenames: filenames, Media: media})
}

func (m *Manager) Run(ctx context.Context, tc *taskctx.TaskContext, b Batch) {
	service := tc.Task.Service
	failuresBefore := tc.Errors.FailureCount()

	logutils.Log.WithFields(map[string]any{
		"service":   service.String(),
		"links":     len(b.Links),
		"filenames": len(b.Filenames),
		"offset":    b.Offset,
	}).Info("Download manager received batch")

	switch {
	case service == taskctx.ServiceYTDL || (b.Media && service.IsAuto()):
		m.runMedia(ctx, tc, b)
	case service.IsAuto():
		m.runAuto(ctx, tc, b)
	case m.engines.ForService(service) != nil:
		m.runService(ctx, tc, b, service)
	default:
		logutils.Log.WithField("service", string(service)).Error("Unsupported service type selected")
		tc.Errors.Fail("Unsupported service type: " + string(service))
		return
	}

	if tc.Errors.FailureCount() > failuresBefore && !tc.Errors.IsFatal() {
		logutils.Log.Warn("Download manager finished batch, and one or more downloads failed")
		tc.Errors.Fail(BatchFailedMessage)
	}
}

// runService hands the whole batch to one explicit engine.
func (m *Manager) runService(ctx context.Context, tc *taskctx.TaskContext, b Batch, service taskctx.Service) {
	engine := m.engines.ForService(service)
	if service.RequiresFilenames() && len(b.Filenames) != len(b.Links) {
		logutils.Log.WithFields(map[string]any{
			"service":   string(service),
			"filenames": len(b.Filenames),
			"links":     len(b.Links),
		}).Error("Batch filename count doesn't match link count")
		tc.Errors.Fail(fmt.Sprintf("Filename/link count mismatch for %s (%d vs %d).", service, len(b.Filenames), len(b.Links)))
		return
	}

	for i, link := range b.Links {
		if ctx.Err() != nil {
			return
		}
		ordinal := b.Offset + i + 1
		link = strings.TrimSpace(link)
		name := ""
		if i < len(b.Filenames) {
			name = strings.TrimSpace(b.Filenames[i])
		}
		if service.RequiresFilenames() && (link == "" || name == "") {
			logutils.Log.WithField("ordinal", ordinal).Warn("Skipping item with missing URL or filename")
			tc.Errors.AddFailure(ledger.Failure{
				Link:     orNA(link),
				Filename: orNA(name),
				Index:    fmt.Sprintf("Batch-%d", ordinal),
				Reason:   "Missing URL/Filename",
			})
			continue
		}
		if m.alreadyDownloaded(tc, link) {
			continue
		}
		m.dispatch(ctx, tc, engine, link, name, ordinal, fallbackName(name, ordinal))
	}
}

// runMedia sends every link to yt-dlp. Failures are named "YTDL Download".
func (m *Manager) runMedia(ctx context.Context, tc *taskctx.TaskContext, b Batch) {
	if len(b.Links) == 0 {
		tc.Errors.Fail("No YTDL links provided.")
		return
	}
	for i, link := range b.Links {
		if ctx.Err() != nil {
			return
		}
		if m.alreadyDownloaded(tc, link) {
			continue
		}
		ordinal := b.Offset + i + 1
		hint := ""
		if i < len(b.Filenames) {
			hint = b.Filenames[i]
		}
		m.dispatch(ctx, tc, m.engines.YTDL, link, hint, ordinal, ytdlFailureName)
	}
}

const ytdlFailureName = "YTDL Download"

func (m *Manager) runAuto(ctx context.Context, tc *taskctx.TaskContext, b Batch) {
	for i, link := range b.Links {
		if ctx.Err() != nil {
			return
		}
		if m.alreadyDownloaded(tc, link) {
			continue
		}
		ordinal := b.Offset + i + 1
		hint := ""
		if i < len(b.Filenames) {
			hint = strings.TrimSpace(b.Filenames[i])
		}
		fallback := fallbackName(hint, ordinal)

		kind := classifier.Classify(link)
		logutils.Log.WithFields(map[string]any{
			"ordinal": ordinal,
			"kind":    kind.String(),
		}).Info("Auto-detect: processing link")

		var engine downloader.Engine
		switch kind {
		case classifier.KindLocal:
			m.fail(tc, link, fallback, ordinal, "Local paths require dir-leech mode")
			continue
		case classifier.KindUnrecognized:
			m.fail(tc, link, "Unknown (Media Identify Fail)", ordinal, "Invalid TG link format: "+link)
			continue
		case classifier.KindGDrive:
			engine = m.engines.GDrive
		case classifier.KindTelegram:
			engine = m.engines.Telegram
		case classifier.KindMega:
			engine = m.engines.Mega
		case classifier.KindTerabox:
			engine = m.engines.Terabox
		case classifier.KindTorrent:
			engine = m.engines.Torrent
		case classifier.KindMedia:
			engine = m.engines.YTDL
			fallback = ytdlFailureName
		default:
			engine = m.engines.Aria2
			if hint == "" {
				hint = tc.Name()
			}
		}
		if engine == nil {
			engine = m.engines.Aria2
		}
		m.dispatch(ctx, tc, engine, link, hint, ordinal, fallback)
	}
}

// dispatch runs one engine call and performs the single ledger append for
// its outcome. Panics become failures.
func (m *Manager) dispatch(ctx context.Context, tc *taskctx.TaskContext, engine downloader.Engine, link, hint string, ordinal int, fallback string) {
	if engine == nil {
		m.fail(tc, link, fallback, ordinal, "Unsupported service type: "+tc.Task.Service.String())
		return
	}
	res := m.call(ctx, tc, engine, link, hint, ordinal, fallback)
	if res.OK() {
		tc.Transfer.RecordDownload(link, res.Filename, res.Bytes)
		logutils.Log.WithFields(map[string]any{
			"ordinal": ordinal,
			"engine":  engine.Name(),
			"file":    res.Filename,
			"bytes":   res.Bytes,
		}).Info("Download finished")
		return
	}

	name := res.Filename
	if name == "" || fallback == ytdlFailureName {
		name = fallback
	}
	m.fail(tc, link, name, ordinal, res.Reason)
}

func (m *Manager) call(ctx context.Context, tc *taskctx.TaskContext, engine downloader.Engine, link, hint string, ordinal int, fallback string) (res downloader.Result) {
	defer func() {
		if r := recover(); r != nil {
			logutils.Log.WithFields(map[string]any{
				"link":    link,
				"ordinal": ordinal,
				"engine":  engine.Name(),
				"stack":   string(debug.Stack()),
			}).Errorf("Auto-detect download error: %v", r)
			res = downloader.Failure(fallback, "Unhandled DL Error: "+truncate(fmt.Sprint(r), 100))
		}
	}()
	return engine.Download(ctx, downloader.Request{
		Link:         link,
		Ordinal:      ordinal,
		FilenameHint: hint,
		DestDir:      tc.Paths.Down,
		Password:     tc.Task.UnzipPassword,
		Progress:     tc,
	})
}

func (*Manager) fail(tc *taskctx.TaskContext, link, filename string, ordinal int, reason string) {
	logutils.Log.WithFields(map[string]any{
		"link":    link,
		"ordinal": ordinal,
		"reason":  reason,
	}).Error("Download failed")
	tc.Errors.AddFailure(ledger.Failure{
		Link:     link,
		Filename: filename,
		Index:    ledger.OrdinalIndex(ordinal),
		Reason:   reason,
	})
}

func (*Manager) alreadyDownloaded(tc *taskctx.TaskContext, link string) bool {
	for _, d := range tc.Transfer.Successful() {
		if d.URL == link {
			logutils.Log.WithField("link", link).Debug("Link already downloaded, skipping")
			return true
		}
	}
	return false
}

// CalculateSize sums the expected size of Google Drive and Telegram links.
// Lookups run concurrently; failed lookups count as zero.
func (m *Manager) CalculateSize(ctx context.Context, links []string) int64 {
	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeWorkers)

	for _, link := range links {
		var engine downloader.Engine
		switch classifier.Classify(link) {
		case classifier.KindGDrive:
			engine = m.engines.GDrive
		case classifier.KindTelegram:
			engine = m.engines.Telegram
		default:
			continue
		}
		sizer, ok := engine.(downloader.Sizer)
		if !ok {
			continue
		}
		g.Go(func() error {
			size, err := sizer.Size(gctx, link)
			if err != nil {
				logutils.Log.WithError(err).WithField("link", link).Warn("Error calculating size")
				return nil
			}
			total.Add(size)
			return nil
		})
	}
	_ = g.Wait()

	logutils.Log.WithField("size", utils.SizeUnit(float64(total.Load()))).Info("Total pre-calculated size")
	return total.Load()
}

// GuessName returns an initial display name for link: torrent metadata,
// media title or Drive name when the engine can resolve one, otherwise the
// last URL path segment. Unknown yields "".
func (m *Manager) GuessName(ctx context.Context, link string) string {
	var engine downloader.Engine
	switch classifier.Classify(link) {
	case classifier.KindTorrent:
		engine = m.engines.Torrent
	case classifier.KindMedia:
		engine = m.engines.YTDL
	case classifier.KindGDrive:
		engine = m.engines.GDrive
	case classifier.KindLocal, classifier.KindTelegram, classifier.KindUnrecognized:
		return ""
	}
	if namer, ok := engine.(downloader.Namer); ok {
		name, err := namer.DisplayName(ctx, link)
		if err == nil && name != "" {
			return utils.CleanFilename(name)
		}
		if err != nil {
			logutils.Log.WithError(err).WithField("link", link).Warn("Could not guess initial name")
		}
	}
	return direct.NameFromURL(link)
}

func fallbackName(hint string, ordinal int) string {
	if hint != "" {
		return hint
	}
	return fmt.Sprintf("Direct_Link_%d", ordinal)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
