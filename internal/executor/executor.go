// Package executor owns the per-job transfer state machine and the
// registry of in-flight jobs, per spec §4.3.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/essmehdi/flowd/internal/bus"
	"github.com/essmehdi/flowd/internal/config"
	"github.com/essmehdi/flowd/internal/store"
)

// progressPublishInterval is the minimum gap between Progress events for a
// single transfer, per spec §4.3 step 7.
const progressPublishInterval = 250 * time.Millisecond

// dataConfirmationPollInterval is the sleep between data_confirmed checks,
// per spec §4.3 step 8. A rewrite should prefer a per-id notification (see
// spec §9); this keeps the polling form the source describes.
const dataConfirmationPollInterval = time.Second

// ConfigSource returns the current configuration record. It is called on
// each tick and at the start of each transfer rather than cached, per
// spec §5 ("no shared mutable config object exists").
type ConfigSource func() (config.Config, error)

// Executor runs the control loop and the per-job transfer state machine.
type Executor struct {
	store     *store.Store
	statusBus *bus.Broadcaster[bus.StatusEvent]
	cfgSource ConfigSource
	log       *slog.Logger

	downloading    *idSet
	pauseRequests  *idSet
	cancelRequests *idSet

	wg sync.WaitGroup
}

func New(st *store.Store, b *bus.Bus, cfgSource ConfigSource, log *slog.Logger) *Executor {
	return &Executor{
		store:          st,
		statusBus:      b.Status,
		cfgSource:      cfgSource,
		log:            log,
		downloading:    newIDSet(),
		pauseRequests:  newIDSet(),
		cancelRequests: newIDSet(),
	}
}

func (e *Executor) publishUpdate(j store.Job) {
	if err := e.statusBus.Publish(bus.Update{Job: j}); err != nil {
		e.log.Warn("failed to publish update event", "id", j.ID, "error", err)
	}
}

// publishError reports message on the status bus; id 0 (never a store-assigned
// id) publishes an Error with a nil ID.
func (e *Executor) publishError(id int64, message string) {
	var jobID *int64
	if id != 0 {
		jobID = &id
	}
	if err := e.statusBus.Publish(bus.Error{ID: jobID, Message: message}); err != nil {
		e.log.Warn("failed to publish error event", "id", id, "error", err)
	}
}

// RunControlLoop consumes control events until controlEvents is closed.
// This is the executor's long-lived control-loop receiver from spec §4.2.
func (e *Executor) RunControlLoop(ctx context.Context, controlEvents <-chan bus.ControlEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-controlEvents:
			if !ok {
				return
			}
			e.handleControlEvent(event)
		}
	}
}

func (e *Executor) handleControlEvent(event bus.ControlEvent) {
	switch ev := event.(type) {
	case bus.NewDownload:
		e.handleNewDownload(ev.URL, ev.Confirmed)
	case bus.Pause:
		if e.downloading.contains(ev.ID) {
			e.pauseRequests.insert(ev.ID)
		}
	case bus.Resume:
		e.handleResume(ev.ID)
	case bus.Restart:
		e.handleRestart(ev.ID)
	case bus.Cancel:
		e.handleCancel(ev.ID)
	case bus.Delete:
		e.handleDelete(ev.ID)
	default:
		e.log.Warn("unrecognized control event", "type", fmt.Sprintf("%T", event))
	}
}

func (e *Executor) handleNewDownload(url string, confirmed bool) {
	cfg, err := e.cfgSource()
	if err != nil {
		e.log.Error("new download: failed to read configuration", "error", err)
		e.publishError(0, "failed to read configuration")
		return
	}

	tempFile, err := newTempFile(cfg.ScratchDirectory)
	if err != nil {
		e.log.Error("new download: failed to allocate scratch file", "url", url, "error", err)
		e.publishError(0, "failed to allocate scratch file")
		return
	}

	j := &store.Job{
		URL:           url,
		Status:        store.StatusPending,
		DataConfirmed: confirmed,
		TempFile:      tempFile,
		DateAdded:     time.Now().Unix(),
	}
	id, err := e.store.Insert(j)
	if err != nil {
		e.log.Error("new download: failed to persist job", "url", url, "error", err)
		e.publishError(0, "failed to persist job")
		return
	}
	j.ID = id
	e.publishUpdate(*j)
}

func (e *Executor) handleResume(id int64) {
	j, err := e.store.GetByID(id)
	if err != nil {
		e.log.Warn("resume: job lookup failed", "id", id, "error", err)
		return
	}
	if j.Status != store.StatusPaused {
		return
	}
	if err := e.store.UpdateStatus(id, store.StatusPending); err != nil {
		e.log.Warn("resume: failed to update status", "id", id, "error", err)
		return
	}
	j.Status = store.StatusPending
	e.publishUpdate(j)
}

func (e *Executor) handleRestart(id int64) {
	j, err := e.store.GetByID(id)
	if err != nil {
		e.log.Warn("restart: job lookup failed", "id", id, "error", err)
		return
	}
	if !j.Status.IsIdle() {
		return
	}
	if err := os.Truncate(j.TempFile, 0); err != nil && !os.IsNotExist(err) {
		e.log.Warn("restart: failed to empty scratch file", "id", id, "error", err)
	}
	if err := e.store.UpdateStatus(id, store.StatusPending); err != nil {
		e.log.Warn("restart: failed to update status", "id", id, "error", err)
		return
	}
	j.Status = store.StatusPending
	e.publishUpdate(j)
}

func (e *Executor) handleCancel(id int64) {
	if e.downloading.contains(id) {
		e.cancelRequests.insert(id)
		return
	}
	j, err := e.store.GetByID(id)
	if err != nil {
		e.log.Warn("cancel: job lookup failed", "id", id, "error", err)
		return
	}
	if err := e.store.UpdateStatus(id, store.StatusCanceled); err != nil {
		e.log.Warn("cancel: failed to update status", "id", id, "error", err)
		return
	}
	_ = truncateIfExists(j.TempFile)
	j.Status = store.StatusCanceled
	e.publishUpdate(j)
}

func (e *Executor) handleDelete(id int64) {
	j, err := e.store.GetByID(id)
	if err != nil {
		e.log.Warn("delete: job lookup failed", "id", id, "error", err)
		return
	}
	if !j.Status.IsIdle() && j.Status != store.StatusCompleted {
		return
	}
	if err := e.store.Delete(id); err != nil {
		e.log.Warn("delete: failed to remove job", "id", id, "error", err)
		return
	}
	if err := e.statusBus.Publish(bus.JobDeleted{ID: id}); err != nil {
		e.log.Warn("failed to publish delete event", "id", id, "error", err)
	}
}

// Dispatch starts the transfer state machine for id in a new goroutine.
// Fire-and-forget: callers (the admission controller) never block on it.
func (e *Executor) Dispatch(ctx context.Context, id int64) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.transfer(ctx, id)
	}()
}

// Shutdown requests every currently in-flight transfer pause (the scratch
// file is kept, so the daemon resumes cleanly on restart) and waits up to
// timeout for them to reach a terminal state.
func (e *Executor) Shutdown(timeout time.Duration) {
	for _, id := range e.downloading.snapshot() {
		e.pauseRequests.insert(id)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		e.log.Warn("shutdown: timed out waiting for in-flight transfers to pause")
	}
}

func truncateIfExists(path string) error {
	err := os.Truncate(path, 0)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// transfer runs the full per-job state machine of spec §4.3, steps 1-11.
func (e *Executor) transfer(ctx context.Context, id int64) {
	e.downloading.insert(id)
	defer e.downloading.remove(id)

	// traceID correlates this attempt's log lines; a job retried after a
	// pause gets a fresh one each time it re-enters the state machine.
	traceID := uuid.NewString()
	e.log.Info("transfer starting", "id", id, "trace_id", traceID)
	defer e.log.Info("transfer attempt finished", "id", id, "trace_id", traceID)

	// 1. Prepare.
	job, err := e.store.GetByID(id)
	if err != nil {
		e.log.Error("transfer: job lookup failed", "id", id, "trace_id", traceID, "error", err)
		return
	}
	if job.Status == store.StatusCompleted {
		return
	}

	cfg, err := e.cfgSource()
	if err != nil {
		e.failTransfer(&job, store.StatusUnknownError, fmt.Sprintf("failed to read configuration: %v", err))
		return
	}

	var startByte int64
	resume := false
	if info, statErr := os.Stat(job.TempFile); statErr == nil && info.Size() > 0 {
		if job.Resumable {
			startByte = info.Size()
			resume = true
		} else if err := os.Truncate(job.TempFile, 0); err != nil {
			e.log.Warn("transfer: failed to truncate stale scratch file", "id", id, "error", err)
		}
	}

	// 2. Starting.
	e.transitionStatus(&job, store.StatusStarting)

	// 3. Client build.
	client := newHTTPClient()
	req, err := newRequest(ctx, job.URL, cfg.UserAgent, startByte, resume)
	if err != nil {
		e.failTransfer(&job, store.StatusClientError, friendlyError(err))
		return
	}

	// 4. InProgress.
	e.transitionStatus(&job, store.StatusInProgress)

	// 5. Request.
	resp, err := client.Do(req)
	if err != nil {
		e.failTransfer(&job, store.StatusServerError, friendlyError(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.failTransfer(&job, store.StatusServerError, friendlyHTTPError(resp.StatusCode))
		return
	}

	// 6. Header metadata.
	effectiveURL := job.URL
	if resp.Request != nil && resp.Request.URL != nil {
		effectiveURL = resp.Request.URL.String()
	}
	info := DeriveFileInfo(resp.Header, effectiveURL)

	if job.DetectedOutputFile == nil {
		detected := OutputPath(cfg, info.FileName)
		job.DetectedOutputFile = &detected
	}
	if job.Size == nil && info.ContentLength != nil {
		job.Size = info.ContentLength
	}
	if info.Resumable {
		job.Resumable = true
	}
	if err := e.store.Update(&job); err != nil {
		e.log.Warn("transfer: failed to persist header metadata", "id", id, "error", err)
	}
	e.publishUpdate(job)

	if job.Size != nil {
		remaining := *job.Size - startByte
		if err := checkDiskSpace(job.TempFile, remaining); err != nil {
			e.failTransfer(&job, store.StatusClientError, err.Error())
			return
		}
	}

	// 7. Stream loop.
	if err := e.streamToScratch(ctx, &job, resp.Body); err != nil {
		if err == errPaused {
			return
		}
		if err == errCanceled {
			return
		}
		if ctx.Err() != nil {
			// Interrupted by shutdown: the scratch file is kept and the job
			// ends Paused, the same as an honored pause request.
			e.transitionStatus(&job, store.StatusPaused)
			return
		}
		e.failTransfer(&job, store.StatusUnknownError, friendlyError(err))
		return
	}

	// 8. Data confirmation wait.
	for {
		fresh, err := e.store.GetByID(job.ID)
		if err != nil {
			e.log.Error("transfer: job lookup failed during confirmation wait", "id", id, "error", err)
			return
		}
		job = fresh
		if job.DataConfirmed {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(dataConfirmationPollInterval):
		}
	}

	// 9. Resolve output.
	target := outputTarget(job, cfg, info)
	resolved, err := ConflictFreePath(target)
	if err != nil {
		e.failTransfer(&job, store.StatusClientError, fmt.Sprintf("failed to resolve output path: %v", err))
		return
	}

	// 10. Move.
	if _, err := os.Stat(filepath.Dir(resolved)); err != nil {
		e.failTransfer(&job, store.StatusClientError, fmt.Sprintf("output directory unavailable: %v", err))
		return
	}
	if err := os.Rename(job.TempFile, resolved); err != nil {
		e.failTransfer(&job, store.StatusClientError, fmt.Sprintf("failed to move file into place: %v", err))
		return
	}
	if job.OutputFile == nil || *job.OutputFile != resolved {
		job.OutputFile = &resolved
		if err := e.store.Update(&job); err != nil {
			e.log.Warn("transfer: failed to persist output path", "id", id, "error", err)
		}
		e.publishUpdate(job)
	}

	// 11. Completed.
	now := time.Now().Unix()
	job.DateCompleted = &now
	job.Status = store.StatusCompleted
	if err := e.store.Update(&job); err != nil {
		e.log.Warn("transfer: failed to persist completion", "id", id, "error", err)
	}
	e.publishUpdate(job)
}

func outputTarget(j store.Job, cfg config.Config, info FileInfo) string {
	if j.OutputFile != nil && *j.OutputFile != "" {
		return *j.OutputFile
	}
	if j.DetectedOutputFile != nil && *j.DetectedOutputFile != "" {
		return *j.DetectedOutputFile
	}
	return OutputPath(cfg, info.FileName)
}

func (e *Executor) transitionStatus(job *store.Job, status store.Status) {
	job.Status = status
	if err := e.store.UpdateStatus(job.ID, status); err != nil {
		e.log.Warn("transfer: failed to persist status transition", "id", job.ID, "status", status, "error", err)
	}
	e.publishUpdate(*job)
}

func (e *Executor) failTransfer(job *store.Job, status store.Status, message string) {
	job.Status = status
	if err := e.store.UpdateStatus(job.ID, status); err != nil {
		e.log.Warn("transfer: failed to persist failure status", "id", job.ID, "error", err)
	}
	e.publishUpdate(*job)
	e.publishError(job.ID, message)
	e.log.Error("transfer failed", "id", job.ID, "status", status, "reason", message)
}

var errPaused = fmt.Errorf("transfer paused")
var errCanceled = fmt.Errorf("transfer canceled")

// streamToScratch implements §4.3 step 7: open the scratch file for
// append, pull chunks, honor pause/cancel between writes, publish Progress
// at most once per progressPublishInterval (plus always on the first
// chunk).
func (e *Executor) streamToScratch(ctx context.Context, job *store.Job, body io.Reader) error {
	f, err := os.OpenFile(job.TempFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	initial, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	progress := initial

	var contentLength int64
	if job.Size != nil {
		contentLength = *job.Size
	}

	buf := make([]byte, 64*1024)
	lastPublish := time.Time{}
	first := true

	for {
		n, readErr := body.Read(buf)

		if e.pauseRequests.contains(job.ID) {
			e.pauseRequests.remove(job.ID)
			e.transitionStatus(job, store.StatusPaused)
			return errPaused
		}
		if e.cancelRequests.contains(job.ID) {
			e.cancelRequests.remove(job.ID)
			_ = truncateIfExists(job.TempFile)
			e.transitionStatus(job, store.StatusCanceled)
			return errCanceled
		}

		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return err
			}
			progress += int64(n)

			if first || time.Since(lastPublish) >= progressPublishInterval {
				if err := e.statusBus.Publish(bus.Progress{ID: job.ID, BytesDone: progress, ContentLength: contentLength}); err != nil {
					e.log.Warn("failed to publish progress event", "id", job.ID, "error", err)
				}
				lastPublish = time.Now()
				first = false
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
