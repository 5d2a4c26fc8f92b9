package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sirzenith/galleryvault/common"
	"github.com/sirzenith/galleryvault/config"
	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/galleryevent"
	"github.com/sirzenith/galleryvault/galleryfs"
	"github.com/sirzenith/galleryvault/gallery"
	"github.com/sirzenith/galleryvault/ggrouting"
	"github.com/sirzenith/galleryvault/httpclient"
)

// imgConcurrency is the global counted semaphore capacity (spec §4.5,
// IMG_CONCURRENCY).
const imgConcurrency = 5

// updateThrottle caps per-task Update events at <=10Hz (spec §4.5).
const updateThrottle = 100 * time.Millisecond

// Orchestrator owns every in-flight and terminal download task, the global
// image-level semaphore, and the speed meter. It is the single mutable
// "engine" value described in Design Notes, never a package-level static.
type Orchestrator struct {
	client    *httpclient.Client
	routes    *ggrouting.Engine
	configGet func() config.Config
	bus       *galleryevent.Bus

	globalSem chan struct{}

	mu    sync.Mutex
	tasks map[int]*Task

	bytesCounter int64 // accessed only via sync/atomic helpers in speed.go
}

func NewOrchestrator(client *httpclient.Client, routes *ggrouting.Engine, configGet func() config.Config, bus *galleryevent.Bus) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		routes:    routes,
		configGet: configGet,
		bus:       bus,
		globalSem: make(chan struct{}, imgConcurrency),
		tasks:     map[int]*Task{},
	}
	go o.runSpeedMeter(context.Background())
	return o
}

// CreateDownloadTask inserts a Pending task and schedules it. A call for a
// comicId that already has a non-terminal task is a no-op; a terminal
// record is replaced (spec §4.5 "Create").
func (o *Orchestrator) CreateDownloadTask(ctx context.Context, comic gallery.Comic) error {
	if err := gallery.ValidateFilesDownloadable(&comic); err != nil {
		return err
	}

	o.mu.Lock()
	existing, ok := o.tasks[comic.ID]
	if ok && !existing.State.IsTerminal() {
		o.mu.Unlock()
		return nil
	}

	task := newTask(context.Background(), comic)
	o.tasks[comic.ID] = task
	o.mu.Unlock()

	o.emitProgress(task, galleryevent.KindCreate)

	go o.schedule(task)

	return nil
}

// Task returns the current task for comicID, if any.
func (o *Orchestrator) Task(comicID int) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[comicID]
	return t, ok
}

// CompletedAndCancelled returns every task currently in a terminal state,
// for populating the "completed" list (spec §3 Lifetimes).
func (o *Orchestrator) CompletedAndCancelled() []*Task {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := []*Task{}
	for _, t := range o.tasks {
		if t.State.IsTerminal() {
			result = append(result, t)
		}
	}
	return result
}

// Pause parks task before its next permit acquisition (spec §4.5 "pause").
func (o *Orchestrator) Pause(comicID int) error {
	task, ok := o.Task(comicID)
	if !ok {
		return fmt.Errorf("no download task for gallery %d", comicID)
	}

	task.mu.Lock()
	state := task.State
	if state != StateDownloading && state != StatePending {
		task.mu.Unlock()
		return fmt.Errorf("cannot pause task in state %s", state)
	}
	task.State = StatePaused
	task.mu.Unlock()

	task.gate.pause()
	o.emitProgress(task, galleryevent.KindUpdate)
	return nil
}

// Resume wakes a paused task (spec §4.5 "resume").
func (o *Orchestrator) Resume(comicID int) error {
	task, ok := o.Task(comicID)
	if !ok {
		return fmt.Errorf("no download task for gallery %d", comicID)
	}

	task.mu.Lock()
	if task.State != StatePaused {
		state := task.State
		task.mu.Unlock()
		return fmt.Errorf("cannot resume task in state %s", state)
	}
	task.State = StatePending
	task.mu.Unlock()

	task.gate.resume()
	o.emitProgress(task, galleryevent.KindUpdate)
	return nil
}

// Cancel transitions a task to Cancelled from any non-terminal state. It
// cancels the task's context, which aborts an in-flight image request; the
// scheduler then removes that image's .part file (spec §4.5 "cancel").
func (o *Orchestrator) Cancel(comicID int) error {
	task, ok := o.Task(comicID)
	if !ok {
		return fmt.Errorf("no download task for gallery %d", comicID)
	}

	task.mu.Lock()
	if task.State.IsTerminal() {
		task.mu.Unlock()
		return nil
	}
	task.State = StateCancelled
	task.mu.Unlock()

	task.gate.resume() // unblock a paused task so it observes the cancellation
	task.cancelFunc()

	o.emitProgress(task, galleryevent.KindUpdate)
	return nil
}

// schedule runs the per-gallery state machine (spec §4.5 "Schedule").
func (o *Orchestrator) schedule(task *Task) {
	select {
	case task.runPermit <- struct{}{}:
	case <-task.ctx.Done():
		return
	}
	defer func() { <-task.runPermit }()

	task.setState(StateDownloading)
	common.LogBannerMsg([]string{
		fmt.Sprintf("downloading gallery %d", task.ComicID),
		task.Comic.Title,
	}, 2)

	cfg := o.configGet()
	dir := galleryfs.ComicDir(cfg, task.Comic)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		o.fail(task, galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to create download directory %s", dir), err))
		return
	}

	for i, file := range task.Comic.Files {
		ordinal := i + 1

		format, ok := file.PreferredFormat(string(cfg.DownloadFormat))
		if !ok {
			o.fail(task, galleryerr.New(galleryerr.KindParse, fmt.Sprintf("file %d advertises no usable format", ordinal), nil))
			return
		}

		basename := gallery.PageBasename(ordinal, format)
		finalPath := filepath.Join(dir, basename)

		if _, err := os.Stat(finalPath); err == nil {
			o.bumpDownloaded(task)
			continue
		}

		if err := task.gate.wait(task.ctx); err != nil {
			o.cancelCleanup(task, finalPath)
			return
		}

		select {
		case o.globalSem <- struct{}{}:
		case <-task.ctx.Done():
			o.cancelCleanup(task, finalPath)
			return
		}

		err := o.downloadOne(task.ctx, file.Hash, format, finalPath)
		<-o.globalSem

		if err != nil {
			if galleryerr.Is(err, galleryerr.KindCancelled) || task.ctx.Err() != nil {
				o.cancelCleanup(task, finalPath)
				return
			}
			o.fail(task, err)
			return
		}

		o.bumpDownloaded(task)
	}

	o.finish(task, dir)
}

// downloadOne fetches one page image and atomically materialises it
// (spec §4.5 steps 4-6).
func (o *Orchestrator) downloadOne(ctx context.Context, hash, format, finalPath string) error {
	url, err := o.routes.ImageURL(ctx, hash, format)
	if err != nil {
		return err
	}

	resp, err := o.client.Get(ctx, url)
	if err != nil {
		return galleryerr.New(galleryerr.KindNetwork, "image download failed", err)
	}

	if resp.StatusCode == 404 || resp.StatusCode == 403 {
		resp.Body.Close()

		if reloadErr := o.routes.ReloadRouting(ctx); reloadErr != nil {
			return galleryerr.New(galleryerr.KindNotFound, "image not found and routing reload failed", reloadErr)
		}

		retryURL, err := o.routes.ImageURL(ctx, hash, format)
		if err != nil {
			return err
		}

		resp, err = o.client.Get(ctx, retryURL)
		if err != nil {
			return galleryerr.New(galleryerr.KindNetwork, "image download failed after routing reload", err)
		}
		if resp.StatusCode == 404 || resp.StatusCode == 403 {
			resp.Body.Close()
			return galleryerr.New(galleryerr.KindNotFound, "image not found after routing reload and retry", nil)
		}
	}
	defer resp.Body.Close()

	partPath := finalPath + ".part"
	file, err := os.Create(partPath)
	if err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to create %s", partPath), err)
	}

	counted := &countingReader{r: resp.Body, onRead: o.addBytes}
	_, copyErr := io.Copy(file, counted)
	closeErr := file.Close()

	if copyErr != nil {
		os.Remove(partPath)
		return galleryerr.New(galleryerr.KindNetwork, "image body read failed", copyErr)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to close %s", partPath), closeErr)
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to rename %s into place", partPath), err)
	}

	return nil
}

func (o *Orchestrator) bumpDownloaded(task *Task) {
	task.mu.Lock()
	task.DownloadedImgCount++
	count := task.DownloadedImgCount
	task.mu.Unlock()

	shouldEmit := task.emitLimiter.Allow() || count == task.TotalImgCount
	if shouldEmit {
		o.emitProgress(task, galleryevent.KindUpdate)
	}
}

func (o *Orchestrator) finish(task *Task, dir string) {
	task.mu.Lock()
	ok := task.DownloadedImgCount == task.TotalImgCount
	task.mu.Unlock()

	if !ok {
		o.fail(task, fmt.Errorf("downloaded count does not match total for gallery %d", task.ComicID))
		return
	}

	if err := galleryfs.WriteMetadataSidecar(dir, task.Comic); err != nil {
		o.fail(task, err)
		return
	}

	task.setState(StateCompleted)
	o.emitProgress(task, galleryevent.KindUpdate)
}

func (o *Orchestrator) fail(task *Task, err error) {
	log.Warnf("gallery %d download failed: %s", task.ComicID, err)
	task.setState(StateFailed)
	o.emitProgress(task, galleryevent.KindUpdate)
}

// cancelCleanup removes a partially written .part file, if any, so no
// .part file survives a terminal state (spec §8 invariant).
func (o *Orchestrator) cancelCleanup(task *Task, finalPath string) {
	os.Remove(finalPath + ".part")
	task.setState(StateCancelled)
	o.emitProgress(task, galleryevent.KindUpdate)
}

func (o *Orchestrator) emitProgress(task *Task, kind galleryevent.EventKind) {
	state, downloaded, total := task.snapshot()
	o.bus.PublishProgress(galleryevent.ProgressSnapshot{
		Event:              kind,
		ComicID:            task.ComicID,
		State:              galleryevent.TaskState(state),
		Comic:              task.Comic,
		DownloadedImgCount: downloaded,
		TotalImgCount:      total,
	})
}

// countingReader wraps an io.Reader, invoking onRead with every chunk's
// byte count so the speed meter can aggregate bytes delivered across all
// in-flight image reads (spec §4.5 "Speed meter").
type countingReader struct {
	r      io.Reader
	onRead func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.onRead(int64(n))
	}
	return n, err
}
