// Package engine implements C8: the single typed command/event surface the
// GUI collaborator drives (spec §6). It wires every other component
// together the way cmd/nhentai/nhentai.go's cmdMain wires a Downloader, a
// proxy-configured client and the CLI flags into one run, generalized from
// a single-shot CLI invocation into a long-lived, command-dispatched
// engine value.
package engine

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/sirzenith/galleryvault/config"
	"github.com/sirzenith/galleryvault/download"
	"github.com/sirzenith/galleryvault/export"
	"github.com/sirzenith/galleryvault/gallery"
	"github.com/sirzenith/galleryvault/galleryevent"
	"github.com/sirzenith/galleryvault/galleryfs"
	"github.com/sirzenith/galleryvault/ggrouting"
	"github.com/sirzenith/galleryvault/httpclient"
	"github.com/sirzenith/galleryvault/search"
)

// Engine is the process-wide facade: one value per running instance, owning
// every long-lived dependency (spec §5 "single shared engine instance").
type Engine struct {
	appDataDir string

	configStore *config.Store
	bus         *galleryevent.Bus
	metrics     *metrics
	closeLog    func() error

	client   *httpclient.Client
	routes   *ggrouting.Engine
	resolver *gallery.Resolver
	search   *search.Engine
	orch     *download.Orchestrator
	exporter *export.Exporter
}

// New builds the engine, loading or creating config.json under appDataDir
// and starting every background watcher (spec §5 "Startup").
func New(appDataDir string) (*Engine, error) {
	bus := galleryevent.NewBus()

	e := &Engine{
		appDataDir: appDataDir,
		bus:        bus,
		metrics:    newMetrics(),
	}

	store, err := config.Open(appDataDir, e.onConfigChanged)
	if err != nil {
		return nil, err
	}
	e.configStore = store

	logger, closeLog, err := setupLogging(appDataDir, store.Get().EnableFileLogger, bus)
	if err != nil {
		return nil, err
	}
	log.SetDefault(logger)
	e.closeLog = closeLog

	cfg := store.Get()
	e.client = httpclient.New(httpclient.Options{
		ProxyMode: httpclient.ProxyMode(cfg.ProxyMode),
		ProxyHost: cfg.ProxyHost,
		ProxyPort: cfg.ProxyPort,
	})
	e.routes = ggrouting.New(e.client)
	e.resolver = gallery.NewResolver(e.client, e.routes)
	e.search = search.NewEngine(e.client, e.resolver)
	e.exporter = export.NewExporter(bus)
	e.orch = download.NewOrchestrator(e.client, e.routes, e.configStore.Get, bus)

	go e.watchMetrics()

	return e, nil
}

// Close releases the optional file log sink; every other resource is
// process-lifetime.
func (e *Engine) Close() error {
	return e.closeLog()
}

// Subscribe exposes the event bus to a GUI pane (spec §6).
func (e *Engine) Subscribe() <-chan galleryevent.Event {
	return e.bus.Subscribe()
}

func (e *Engine) onConfigChanged(cfg config.Config) {
	e.client.Rebuild(httpclient.Options{
		ProxyMode: httpclient.ProxyMode(cfg.ProxyMode),
		ProxyHost: cfg.ProxyHost,
		ProxyPort: cfg.ProxyPort,
	})
	e.bus.PublishConfigChanged()
}

// watchMetrics mirrors bus lifecycle events onto Prometheus counters,
// keeping the orchestrator itself free of a metrics dependency (spec's
// Design Notes separation between the download state machine and
// observability).
func (e *Engine) watchMetrics() {
	for evt := range e.bus.Subscribe() {
		switch {
		case evt.Progress != nil:
			p := evt.Progress
			switch p.Event {
			case galleryevent.KindCreate:
				e.metrics.tasksCreated.Inc()
				e.metrics.tasksActive.Inc()
			case galleryevent.KindUpdate:
				switch download.State(p.State) {
				case download.StateCompleted:
					e.metrics.tasksCompleted.Inc()
					e.metrics.tasksActive.Dec()
				case download.StateFailed:
					e.metrics.tasksFailed.Inc()
					e.metrics.tasksActive.Dec()
				case download.StateCancelled:
					e.metrics.tasksCancelled.Inc()
					e.metrics.tasksActive.Dec()
				}
			}
		case evt.Speed != nil:
			e.metrics.bytesDownloaded.Add(evt.Speed.BytesPerSec * speedTickSeconds)
		case evt.Export != nil:
			outcome := "ok"
			if evt.Export.Kind == galleryevent.KindError {
				outcome = "error"
			}
			if evt.Export.Kind == galleryevent.KindStart {
				continue
			}
			e.metrics.exportsTotal.WithLabelValues("unknown", outcome).Inc()
		}
	}
}

const speedTickSeconds = 0.5

// GetConfig returns the current configuration (spec §6 getConfig).
func (e *Engine) GetConfig() config.Config {
	return e.configStore.Get()
}

// SaveConfig validates and persists cfg (spec §6 saveConfig).
func (e *Engine) SaveConfig(cfg config.Config) error {
	return e.configStore.Save(cfg)
}

// Search resolves query and returns pageNum of results (spec §6 search).
func (e *Engine) Search(ctx context.Context, query string, pageNum int) (*search.SearchResult, error) {
	result, err := e.search.Search(ctx, query, pageNum)
	if err != nil {
		e.metrics.searchRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	e.metrics.searchRequests.WithLabelValues("ok").Inc()
	return result, nil
}

// GetPage resolves a previously-fetched ID slice to one page of comics
// (spec §6 getPage).
func (e *Engine) GetPage(ctx context.Context, ids []int, pageNum int) (*search.SearchResult, error) {
	return e.search.GetPage(ctx, ids, pageNum)
}

// GetComic fetches and normalizes a gallery descriptor, rendering its
// dirName and overlaying current download state (spec §6 getComic, §4.3).
func (e *Engine) GetComic(ctx context.Context, id int) (*gallery.Comic, error) {
	comic, err := e.resolver.GetComic(ctx, id)
	if err != nil {
		return nil, err
	}

	synced := e.syncComic(*comic)
	return &synced, nil
}

// GetSyncedComic fetches a descriptor and overlays fresh download state
// from the filesystem (spec §6 getSyncedComic).
func (e *Engine) GetSyncedComic(ctx context.Context, id int) (*gallery.Comic, error) {
	comic, err := e.resolver.GetComic(ctx, id)
	if err != nil {
		return nil, err
	}

	synced := e.syncComic(*comic)
	return &synced, nil
}

// syncComic renders comic's dirName from the current dirFmt and overlays
// isDownloaded/comicDownloadDir from the filesystem (spec §4.3 "getComic"
// enriches every returned descriptor with these three derived fields).
func (e *Engine) syncComic(comic gallery.Comic) gallery.Comic {
	cfg := e.configStore.Get()
	comic.DirName = gallery.RenderDirName(comic, cfg.DirFmt)

	downloaded, dir := galleryfs.IsDownloaded(cfg, comic)
	return gallery.SyncDownloadState(comic, downloaded, dir)
}

// GetCoverData fetches cover image bytes (spec §6 getCoverData).
func (e *Engine) GetCoverData(ctx context.Context, comic *gallery.Comic) ([]byte, error) {
	cfg := e.configStore.Get()
	return e.resolver.CoverBytes(ctx, comic, string(cfg.DownloadFormat))
}

// GetSearchSuggestions returns up to 10 ranked suggestions for prefix
// (spec §6 getSearchSuggestions).
func (e *Engine) GetSearchSuggestions(ctx context.Context, prefix string) ([]search.Suggestion, error) {
	return e.search.GetSearchSuggestions(ctx, prefix)
}

// CreateDownloadTask starts downloading comic (spec §6 createDownloadTask).
func (e *Engine) CreateDownloadTask(ctx context.Context, comic gallery.Comic) error {
	return e.orch.CreateDownloadTask(ctx, comic)
}

// PauseDownloadTask, ResumeDownloadTask and CancelDownloadTask drive the
// task state machine (spec §6).
func (e *Engine) PauseDownloadTask(comicID int) error  { return e.orch.Pause(comicID) }
func (e *Engine) ResumeDownloadTask(comicID int) error { return e.orch.Resume(comicID) }
func (e *Engine) CancelDownloadTask(comicID int) error { return e.orch.Cancel(comicID) }

// GetDownloadedComics lists every gallery with a completed download on
// disk (spec §6 getDownloadedComics).
func (e *Engine) GetDownloadedComics() ([]gallery.Comic, error) {
	return galleryfs.GetDownloadedComics(e.configStore.Get())
}

// ExportPdf and ExportCbz bundle a completed gallery's pages into a single
// file under the configured export directory (spec §6 exportPdf/exportCbz).
func (e *Engine) ExportPdf(comic gallery.Comic) (string, error) {
	cfg := e.configStore.Get()
	dir := galleryfs.ComicDir(cfg, comic)
	return e.exporter.ExportPdf(comic, dir, cfg.ExportDir, string(cfg.DownloadFormat))
}

func (e *Engine) ExportCbz(comic gallery.Comic) (string, error) {
	cfg := e.configStore.Get()
	dir := galleryfs.ComicDir(cfg, comic)
	return e.exporter.ExportCbz(comic, dir, cfg.ExportDir, string(cfg.DownloadFormat))
}

// GetLogsDirSize reports total bytes used by the log directory (spec §6
// getLogsDirSize).
func (e *Engine) GetLogsDirSize() (int64, error) {
	return logsDirSize(e.appDataDir)
}

// ShowPathInFileManager opens path in the host OS's file manager (spec §6
// showPathInFileManager).
func (e *Engine) ShowPathInFileManager(path string) error {
	return showPathInFileManager(path)
}
