// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rivershard/launcher/internal/applog"
	"github.com/rivershard/launcher/internal/config"
	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/provider"
)

// transportRetryDelay is the fixed backoff between unbounded download
// retries on transport failure - unlike the upload engine's bounded
// exponential backoff, per spec this one never gives up.
const transportRetryDelay = 2 * time.Second

// partWriteInterval bounds how often a worker rewrites a file's .part
// sidecar while streaming, mirroring the ~100ms cadence in the spec.
const partWriteInterval = 100 * time.Millisecond

// readChunkSize is the buffer size used when copying a blob stream to
// its destination file.
const readChunkSize = 256 * 1024

// fatalRecorder captures the first fatal error reported by any worker
// and cancels the run's context so every other worker stops at its next
// check, per spec §7 ("engines never swallow") and §4.E's failure
// semantics: a config write failure or a permanent per-file error must
// propagate to the caller, not vanish into a log line.
type fatalRecorder struct {
	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
}

func newFatalRecorder(cancel context.CancelFunc) *fatalRecorder {
	return &fatalRecorder{cancel: cancel}
}

// record stores err if it is the first one seen and cancels the run.
func (f *fatalRecorder) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
		f.cancel()
	}
}

func (f *fatalRecorder) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// downloadWorkers runs e.pullFilesSize workers draining tasks, updating
// vp and config as each file completes, and feeding unpackTasks. It
// returns true if the run ended because ctx was cancelled (paused)
// rather than because every file completed. A permanent per-file error
// (non-transport, non-local-write) or a config write failure is recorded
// on fatal, which also cancels ctx so the rest of the pool stops.
func (e *Engine) downloadWorkers(ctx context.Context, fatal *fatalRecorder, versionName string, vp *config.VersionProgress, tasks <-chan fileTask, unpackTasks chan<- unpackTask, total int) bool {
	var completed int64
	var wg sync.WaitGroup
	var pausedFlag int32

	byName := map[string]*config.FileProgress{}
	var mu sync.Mutex
	for _, f := range vp.Files {
		byName[f.Name] = f
	}

	for i := 0; i < e.pullFilesSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer applog.RecoverAndLog(ctx, e.log, "download.worker", nil)
			for task := range tasks {
				if ctx.Err() != nil {
					atomic.StoreInt32(&pausedFlag, 1)
					continue
				}
				paused, err := e.downloadOne(ctx, task)
				if paused {
					atomic.StoreInt32(&pausedFlag, 1)
					continue
				}
				if err != nil {
					e.log.Error("download: file failed permanently, aborting run", "version", versionName, "file", task.Name, "error", err)
					fatal.record(fmt.Errorf("download: %s: %w", task.Name, err))
					return
				}

				mu.Lock()
				fp := byName[task.Name]
				fp.IsDownloaded = true
				fp.Size = fp.TotalSize
				vp.Normalize()
				postIncrement := int(atomic.AddInt64(&completed, 1))
				mu.Unlock()

				if err := e.store.Mutate(func(cfg *config.AppConfig) error {
					cfg.Progress[versionName] = vp
					return nil
				}); err != nil {
					e.log.Error("download: config write failed, worker exiting", "version", versionName, "file", task.Name, "error", err)
					fatal.record(fmt.Errorf("download: persist progress for %s: %w", task.Name, err))
					return
				}
				e.bus.Publish(events.Event{Name: events.DownloadVersionFiles, Data: events.DownloadVersionFilesPayload{
					Version: versionName, File: task.Name, Size: fp.Size, Total: fp.TotalSize,
				}})

				unpackTasks <- unpackTask{
					Version:     versionName,
					Name:        task.Name,
					ArchivePath: downloadFileDestPath(task.DownloadPath, task.Name),
					InstallPath: vp.InstalledPath,
					IsLatest:    postIncrement == total,
				}
			}
		}()
	}
	wg.Wait()
	return atomic.LoadInt32(&pausedFlag) == 1
}

// downloadOne streams one file with byte-range resume. It returns
// (true, nil) if the context was cancelled mid-stream (paused, not an
// error) and retries forever on transport failure per spec.
func (e *Engine) downloadOne(ctx context.Context, task fileTask) (paused bool, err error) {
	destPath := downloadFileDestPath(task.DownloadPath, task.Name)
	for {
		if ctx.Err() != nil {
			return true, nil
		}
		seek := readPart(destPath)
		stream, err := e.adapter.GetBlobStream(ctx, task.Version, task.Name, seek)
		if err != nil {
			if isTransport(err) {
				if sleepOrDone(ctx, transportRetryDelay) {
					return true, nil
				}
				continue
			}
			return false, err
		}

		cancelled, streamErr := e.copyStream(ctx, stream, destPath, seek)
		stream.Close()
		if cancelled {
			return true, nil
		}
		if streamErr != nil {
			var writeErr *localWriteError
			if isTransport(streamErr) || errors.As(streamErr, &writeErr) {
				if sleepOrDone(ctx, transportRetryDelay) {
					return true, nil
				}
				continue
			}
			return false, streamErr
		}

		removePart(destPath)
		return false, nil
	}
}

// localWriteError wraps a failure writing to the local destination file
// (disk full, permission loss mid-stream, etc) so downloadOne can tell
// it apart from a permanent per-file error: per spec §4.E failure
// semantics, "per-chunk I/O failure → retry the whole file with
// resume," the same unbounded-retry treatment as a transport error,
// rather than giving up on the file.
type localWriteError struct{ err error }

func (e *localWriteError) Error() string { return "local write: " + e.err.Error() }
func (e *localWriteError) Unwrap() error { return e.err }

// copyStream writes src to destPath starting at offset seek, rewriting
// the .part sidecar at most once per partWriteInterval. It returns
// cancelled=true if ctx was done before the stream finished.
func (e *Engine) copyStream(ctx context.Context, src io.Reader, destPath string, seek int64) (cancelled bool, err error) {
	out, err := openForWrite(destPath, seek)
	if err != nil {
		return false, &localWriteError{err}
	}
	defer out.Close()

	buf := make([]byte, readChunkSize)
	written := seek
	lastPartWrite := time.Time{}

	for {
		if ctx.Err() != nil {
			_ = writePart(destPath, written)
			return true, nil
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = writePart(destPath, written)
				return false, &localWriteError{werr}
			}
			written += int64(n)
			if time.Since(lastPartWrite) >= partWriteInterval {
				_ = writePart(destPath, written)
				lastPartWrite = time.Now()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return false, nil
			}
			_ = writePart(destPath, written)
			return false, readErr
		}
	}
}

// unpackWorker is the single consumer for unpackTasks: it runs each
// file's extraction, marks it is_unpacked, persists config, and removes
// the staging archive + its .part. It exits when the channel closes, it
// processes a task with IsLatest set, or a config write fails (recorded
// on fatal per §4.E: "Config write failure → propagated to UI as a
// fatal error; worker exits").
func (e *Engine) unpackWorker(ctx context.Context, fatal *fatalRecorder, versionName string, vp *config.VersionProgress, tasks <-chan unpackTask) {
	byName := map[string]*config.FileProgress{}
	for _, f := range vp.Files {
		byName[f.Name] = f
	}

	// A file that finished downloading earns its unpack even if the
	// overall run is subsequently paused, so extraction runs detached
	// from the run's cancellation - only the per-call ctx passed to
	// Start/Resume ever bounds it, via the process exiting.
	extractCtx := context.WithoutCancel(ctx)

	for task := range tasks {
		if err := e.extractor.Extract(extractCtx, task.ArchivePath, task.InstallPath); err != nil {
			e.log.Error("download: extraction failed", "version", versionName, "file", task.Name, "error", err)
			continue
		}

		fp := byName[task.Name]
		fp.IsUnpacked = true
		if err := e.store.Mutate(func(cfg *config.AppConfig) error {
			cfg.Progress[versionName] = vp
			return nil
		}); err != nil {
			e.log.Error("download: config write failed, unpack worker exiting", "version", versionName, "file", task.Name, "error", err)
			fatal.record(fmt.Errorf("download: persist unpack of %s: %w", task.Name, err))
			return
		}
		removePart(task.ArchivePath)
		removeArchive(task.ArchivePath)

		e.bus.Publish(events.Event{Name: events.FileUnzipped, Data: events.FileUnzippedPayload{Version: versionName, File: task.Name}})

		if task.IsLatest {
			return
		}
	}
}

func isTransport(err error) bool {
	var te *provider.TransportError
	if errors.As(err, &te) {
		return true
	}
	var ae *provider.APIError
	if errors.As(err, &ae) {
		return ae.IsRetryable()
	}
	return false
}

// sleepOrDone waits d or until ctx is done, reporting which happened.
func sleepOrDone(ctx context.Context, d time.Duration) (done bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
