package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"os"

	"github.com/maverikod/docanalyzer/internal/chunking"
	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/dbview"
	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/facade"
	"github.com/maverikod/docanalyzer/internal/ipc"
	"github.com/maverikod/docanalyzer/internal/lockmanager"
	"github.com/maverikod/docanalyzer/internal/model"
	"github.com/maverikod/docanalyzer/internal/parser"
	"github.com/maverikod/docanalyzer/internal/scanner"
)

// State is the Worker's own pipeline state, distinct from the coarser
// model.WorkerState the Master's WorkerRecord table tracks.
type State string

const (
	StateSpawned    State = "Spawned"
	StateLocking    State = "Locking"
	StateScanning   State = "Scanning"
	StateDiffing    State = "Diffing"
	StateProcessing State = "Processing"
	StateFinalizing State = "Finalizing"
	StateExited     State = "Exited"
	StateLockDenied State = "LockDenied"
	StateFailed     State = "Failed"
	StateCancelled  State = "Cancelled"
)

// Exit codes returned to the process's caller, per spec.md §6.
const (
	ExitClean      = 0
	ExitLockDenied = 1
	ExitFailed     = 2
	ExitCancelled  = 3
)

// Worker processes exactly one target directory end-to-end.
type Worker struct {
	Directory string
	Config    *config.Config
	Facade    facade.Facade
	Locks     *lockmanager.Manager
	Progress  *ipc.Writer // optional; nil suppresses progress emission

	state State
	lock  *model.DirectoryLock

	filesSeen     int
	filesAccepted int
	filesOK       int
	filesFailed   int
}

// New constructs a Worker for one directory.
func New(dir string, cfg *config.Config, fac facade.Facade, locks *lockmanager.Manager, progress *ipc.Writer) *Worker {
	return &Worker{
		Directory: dir,
		Config:    cfg,
		Facade:    fac,
		Locks:     locks,
		Progress:  progress,
		state:     StateSpawned,
	}
}

// State returns the Worker's current pipeline state.
func (w *Worker) State() State { return w.state }

// Run drives the full state machine and returns the process exit code
// spec.md §6 defines. cancel, if non-nil, is polled before each file;
// a file already started runs to completion (the Chunking Manager
// compensates its own failed commits) before the Worker exits
// Cancelled.
func (w *Worker) Run(ctx context.Context, cancel <-chan struct{}) int {
	w.transition(StateLocking)

	lock, err := w.Locks.Acquire(w.Directory)
	if err != nil {
		var procErr *errors.ProcessingError
		if stderrors.As(err, &procErr) && procErr.Kind == errors.KindAlreadyLocked {
			w.transition(StateLockDenied)
			w.emitResult(ExitLockDenied)
			w.transition(StateExited)
			return ExitLockDenied
		}
		w.emitError(err)
		w.transition(StateFailed)
		w.emitResult(ExitFailed)
		w.transition(StateExited)
		return ExitFailed
	}
	w.lock = lock
	defer func() { _ = w.Locks.Release(w.lock) }()

	w.transition(StateScanning)
	files, err := w.scan(ctx)
	if err != nil {
		w.emitError(err)
		w.transition(StateFailed)
		w.emitResult(ExitFailed)
		w.transition(StateExited)
		return ExitFailed
	}

	w.transition(StateDiffing)
	toProcess, indexed, err := w.diff(ctx, files)
	if err != nil {
		w.emitError(err)
		w.transition(StateFailed)
		w.emitResult(ExitFailed)
		w.transition(StateExited)
		return ExitFailed
	}
	w.compensateDeleted(ctx, files, indexed)

	w.transition(StateProcessing)
	cancelled := w.process(ctx, toProcess, cancel)

	w.transition(StateFinalizing)
	exitCode := ExitClean
	if cancelled {
		w.transition(StateCancelled)
		exitCode = ExitCancelled
	}
	w.emitResult(exitCode)
	w.transition(StateExited)
	return exitCode
}

func (w *Worker) transition(s State) {
	w.state = s
	if w.Progress != nil {
		_ = w.Progress.Send(ipc.Heartbeat(w.Directory, os.Getpid(), string(s)))
	}
}

func (w *Worker) emitProgress(currentFile string) {
	if w.Progress == nil {
		return
	}
	_ = w.Progress.Send(ipc.Progress(w.Directory, w.Directory, w.filesSeen, w.filesAccepted, w.filesOK, w.filesFailed, currentFile))
}

func (w *Worker) emitResult(exitCode int) {
	if w.Progress == nil {
		return
	}
	_ = w.Progress.Send(ipc.Result(w.Directory, exitCode))
}

func (w *Worker) emitError(err error) {
	if w.Progress == nil {
		return
	}
	var procErr *errors.ProcessingError
	if !stderrors.As(err, &procErr) {
		procErr = errors.New(errors.KindFileIOError, "worker", w.Directory, "", 0, err)
	}
	_ = w.Progress.Send(ipc.ErrorMessage(w.Directory, procErr))
}

func (w *Worker) scan(ctx context.Context) ([]model.FileRecord, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, errors.New(errors.KindDirectoryUnavailable, "worker.scan", w.Directory, "", 0, err)
	}

	opts := scanner.Options{
		Recursive:   w.Config.Watch.Recursive,
		Extensions:  w.Config.Watch.SupportedFormats,
		MaxFileSize: w.Config.Watch.MaxFileSize,
	}
	results, err := s.Scan(ctx, w.Directory, opts)
	if err != nil {
		return nil, err
	}

	var files []model.FileRecord
	for r := range results {
		if r.Err != nil {
			w.emitError(r.Err)
			continue
		}
		w.filesSeen++
		hash, err := hashFile(r.File.Path)
		if err == nil {
			r.File.ContentHash = hash
		}
		files = append(files, *r.File)
		w.filesAccepted++
	}
	return files, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (w *Worker) diff(ctx context.Context, files []model.FileRecord) ([]model.FileRecord, []model.IndexedFileRecord, error) {
	indexed, err := w.Facade.ListFiles(ctx, w.Directory)
	if err != nil {
		return nil, nil, err
	}
	return dbview.Diff(files, indexed), indexed, nil
}

// compensateDeleted issues delete_by_source for every indexed record
// whose file has disappeared from disk since the last pass. A failure
// here is file-scoped: it is reported but never fails the run.
func (w *Worker) compensateDeleted(ctx context.Context, files []model.FileRecord, indexed []model.IndexedFileRecord) {
	stale := dbview.Stale(files, indexed)
	for _, rec := range stale {
		if rec.SourceID == "" {
			continue
		}
		if _, err := w.Facade.DeleteBySource(ctx, rec.SourceID); err != nil {
			w.emitError(errors.New(errors.KindUpstreamUnavailable, "worker.compensate", w.Directory, rec.Path, 0, err))
		}
	}
}

// process handles files one at a time, honoring cancel at each
// suspension point. It returns true if the run was cut short by a
// cancellation signal.
func (w *Worker) process(ctx context.Context, files []model.FileRecord, cancel <-chan struct{}) bool {
	mgr := chunking.New(w.Config.Chunking, w.Config.Watch.MaxFileSize, w.Facade)

	for _, f := range files {
		select {
		case <-cancel:
			return true
		case <-ctx.Done():
			return true
		default:
		}

		w.processOne(ctx, mgr, f)
		w.emitProgress(f.Path)
	}
	return false
}

func (w *Worker) processOne(ctx context.Context, mgr *chunking.Manager, f model.FileRecord) {
	p := parser.ForExtension(f.Extension)
	if p == nil {
		w.filesFailed++
		return
	}

	content, err := os.ReadFile(f.Path)
	if err != nil {
		w.emitError(errors.New(errors.KindFileIOError, "worker.process", w.Directory, f.Path, 0, err))
		w.filesFailed++
		return
	}

	blocks, err := p.Parse(f.Path, content)
	if err != nil {
		w.emitError(err)
		w.filesFailed++
		return
	}

	outcome, err := mgr.Prepare(ctx, f.Path, blocks, f.Size)
	if err != nil {
		w.emitError(err)
		w.filesFailed++
		return
	}

	outcome, err = mgr.Commit(ctx, outcome)
	if err != nil {
		w.emitError(err)
		w.filesFailed++
		return
	}

	w.filesOK++
	_ = outcome
}
