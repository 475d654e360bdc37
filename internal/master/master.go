// Package master implements the long-running parent process: it owns
// the configuration snapshot and WorkerRecord table, admits directories
// against the fleet cap, spawns and monitors Workers, sweeps orphaned
// locks, and drains gracefully on shutdown.
package master

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/ipc"
	"github.com/maverikod/docanalyzer/internal/lockmanager"
	"github.com/maverikod/docanalyzer/internal/model"
	"github.com/maverikod/docanalyzer/internal/watchtrigger"
)

// Handle is a running Worker's process handle, as owned exclusively by
// its WorkerRecord for the Worker's lifetime.
type Handle interface {
	PID() int
	// Stdout returns the Worker's stdout stream, carrying newline-
	// delimited ipc.ProcessMessage JSON. A nil return means the
	// Worker's messages are not observable (used by tests that drive
	// the WorkerRecord table directly).
	Stdout() io.Reader
	// Wait blocks until the Worker exits and returns its exit code.
	// Callers must have finished reading Stdout to EOF first.
	Wait() (int, error)
	// Stop asks the Worker to cancel cooperatively.
	Stop() error
	// Kill force-terminates the Worker, used when it has exceeded
	// heartbeat.timeout.
	Kill() error
}

// Spawner starts a new Worker process for dir. Production code spawns
// a re-exec of the docanalyzer binary (cmd/docanalyzer's `worker run`
// subcommand); tests inject a fake.
type Spawner interface {
	Spawn(ctx context.Context, dir string) (Handle, error)
}

// FleetStats accumulates per-directory processing counters across
// Worker restarts, surfaced via get_processing_stats — the original
// service's main_process_manager.py tracks these across the Master's
// whole lifetime, not just the current Worker's run.
type FleetStats struct {
	mu           sync.Mutex
	filesSeen    int
	filesOK      int
	filesFailed  int
	restarts     map[string]int
}

func newFleetStats() *FleetStats {
	return &FleetStats{restarts: map[string]int{}}
}

func (s *FleetStats) recordExit(dir string, rec model.WorkerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filesSeen += rec.FilesSeen
	s.filesOK += rec.FilesOK
	s.filesFailed += rec.FilesFailed
	s.restarts[dir]++
}

// Snapshot is a point-in-time copy of the fleet's aggregate counters.
type Snapshot struct {
	FilesSeen   int
	FilesOK     int
	FilesFailed int
	Restarts    map[string]int
}

func (s *FleetStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	restarts := make(map[string]int, len(s.restarts))
	for k, v := range s.restarts {
		restarts[k] = v
	}
	return Snapshot{FilesSeen: s.filesSeen, FilesOK: s.filesOK, FilesFailed: s.filesFailed, Restarts: restarts}
}

// Master coordinates the Worker fleet for one set of watched
// directories.
type Master struct {
	cfg     *config.Config
	locks   *lockmanager.Manager
	spawner Spawner
	stats   *FleetStats

	mu        sync.Mutex
	records   map[string]*model.WorkerRecord
	handles   map[string]Handle
	admitting bool

	trigger      *watchtrigger.Trigger
	watchCancel  context.CancelFunc
}

// New constructs a Master over cfg, using spawner to start Workers.
func New(cfg *config.Config, spawner Spawner) *Master {
	return &Master{
		cfg:       cfg,
		locks:     lockmanager.New(cfg.Lock.Timeout),
		spawner:   spawner,
		stats:     newFleetStats(),
		records:   map[string]*model.WorkerRecord{},
		handles:   map[string]Handle{},
		admitting: true,
	}
}

// Stats returns the Master's aggregate fleet statistics.
func (m *Master) Stats() Snapshot { return m.stats.Snapshot() }

// WorkerRecords returns a snapshot of the current WorkerRecord table.
func (m *Master) WorkerRecords() []model.WorkerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.WorkerRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out
}

// Admit requests that dir be processed by a new Worker. It enforces
// the fleet cap (fleet.max_processes) and the per-directory uniqueness
// invariant: a directory already owned by a live Worker is rejected.
func (m *Master) Admit(ctx context.Context, dir string) error {
	m.mu.Lock()
	if !m.admitting {
		m.mu.Unlock()
		return fmt.Errorf("master is draining, not admitting new directories")
	}
	if rec, ok := m.records[dir]; ok && isActive(rec.State) {
		m.mu.Unlock()
		return fmt.Errorf("directory %s already owned by a running worker (pid %d)", dir, rec.PID)
	}
	running := 0
	for _, rec := range m.records {
		if isActive(rec.State) {
			running++
		}
	}
	if running >= m.cfg.Fleet.MaxProcesses {
		m.mu.Unlock()
		return fmt.Errorf("fleet at capacity (%d/%d running workers)", running, m.cfg.Fleet.MaxProcesses)
	}

	rec := &model.WorkerRecord{Directory: dir, State: model.WorkerPending, StartedAt: time.Now()}
	m.records[dir] = rec
	m.mu.Unlock()

	handle, err := m.spawner.Spawn(ctx, dir)
	if err != nil {
		m.mu.Lock()
		rec.State = model.WorkerFailed
		rec.LastError = errors.New(errors.KindDirectoryUnavailable, "master.admit", dir, "", 0, err)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	rec.PID = handle.PID()
	rec.State = model.WorkerStarting
	rec.LastHeartbeat = time.Now()
	m.handles[dir] = handle
	m.mu.Unlock()

	go m.supervise(dir, handle)
	return nil
}

func isActive(s model.WorkerState) bool {
	switch s {
	case model.WorkerPending, model.WorkerStarting, model.WorkerRunning, model.WorkerDraining:
		return true
	default:
		return false
	}
}

// supervise drains handle's stdout, dispatching each ipc.ProcessMessage
// into the WorkerRecord table as it arrives, then blocks on
// handle.Wait and reconciles the record once the Worker exits.
// Draining to EOF before calling Wait matches os/exec's StdoutPipe
// contract: reads must complete before Wait is called.
func (m *Master) supervise(dir string, handle Handle) {
	if stdout := handle.Stdout(); stdout != nil {
		reader := ipc.NewReader(stdout)
		_ = reader.All(func(msg ipc.ProcessMessage) error {
			m.dispatch(dir, msg)
			return nil
		})
	}

	exitCode, err := handle.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[dir]
	if !ok {
		return
	}
	switch {
	case err != nil:
		rec.State = model.WorkerFailed
		rec.LastError = errors.New(errors.KindDirectoryUnavailable, "master.supervise", dir, "", 0, err)
	case exitCode == 0:
		rec.State = model.WorkerExited
	default:
		rec.State = model.WorkerFailed
	}
	rec.ExitCode = exitCode
	delete(m.handles, dir)
	m.stats.recordExit(dir, *rec)
}

// Heartbeat records a heartbeat received from the Worker owning dir,
// resetting its staleness clock. workerState is the Worker's own
// pipeline state string (e.g. "Scanning", "Processing"); any value
// other than the terminal states just confirms liveness and promotes
// a Starting record to Running.
func (m *Master) Heartbeat(dir string, workerState string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[dir]
	if !ok {
		return
	}
	rec.LastHeartbeat = time.Now()
	if rec.State == model.WorkerPending || rec.State == model.WorkerStarting {
		rec.State = model.WorkerRunning
	}
	if workerState == "LockDenied" || workerState == "Failed" || workerState == "Cancelled" {
		rec.State = model.WorkerDraining
	}
}

// ReportProgress updates a WorkerRecord's file counters from an
// in-flight progress message.
func (m *Master) ReportProgress(dir string, seen, ok, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.records[dir]
	if !exists {
		return
	}
	rec.FilesSeen = seen
	rec.FilesOK = ok
	rec.FilesFailed = failed
}

// recordError attaches the most recent classified error reported by a
// Worker to its WorkerRecord, ahead of the record's terminal state
// (set later by supervise once the process actually exits).
func (m *Master) recordError(dir string, procErr *errors.ProcessingError) {
	if procErr == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[dir]; ok {
		rec.LastError = procErr
	}
}

// dispatch routes one ipc.ProcessMessage read from a Worker's stdout
// into the WorkerRecord table. Result messages are informational only;
// supervise's own call to handle.Wait is authoritative for the exit
// code and terminal state.
func (m *Master) dispatch(dir string, msg ipc.ProcessMessage) {
	switch msg.Type {
	case ipc.MessageHeartbeat:
		m.Heartbeat(dir, msg.Payload.State)
	case ipc.MessageProgress:
		m.ReportProgress(dir, msg.Payload.FilesSeen, msg.Payload.FilesOK, msg.Payload.FilesFailed)
	case ipc.MessageError:
		m.recordError(dir, msg.Payload.Error)
	}
}

// StopDirectory asks the Worker owning dir to cancel cooperatively.
// It is the Master-side handler for the daemon's stop_watching
// operation, distinct from Drain (which stops every Worker).
func (m *Master) StopDirectory(dir string) error {
	m.mu.Lock()
	handle, ok := m.handles[dir]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("directory %s has no running worker", dir)
	}
	return handle.Stop()
}

// SweepHeartbeats terminates any Worker that has exceeded
// heartbeat.timeout without a message, then asks the Lock Manager to
// reclaim its lock.
func (m *Master) SweepHeartbeats() {
	timeout := m.cfg.Heartbeat.Timeout
	now := time.Now()

	m.mu.Lock()
	var stale []string
	for dir, rec := range m.records {
		if isActive(rec.State) && now.Sub(rec.LastHeartbeat) > timeout {
			stale = append(stale, dir)
		}
	}
	m.mu.Unlock()

	for _, dir := range stale {
		m.mu.Lock()
		handle, ok := m.handles[dir]
		rec := m.records[dir]
		m.mu.Unlock()
		if !ok {
			continue
		}

		_ = handle.Kill()

		m.mu.Lock()
		rec.State = model.WorkerFailed
		rec.LastError = errors.New(errors.KindHeartbeatTimeout, "master.sweep", dir, "", 0, nil)
		delete(m.handles, dir)
		m.mu.Unlock()

		_, _ = m.locks.Inspect(dir) // best-effort reclaim; a failed attempt retries next sweep
	}
}

// SweepOrphanLocks asks the Lock Manager to reclaim any lock in dirs
// whose owning pid is no longer alive, independent of this Master's
// own WorkerRecord table (a lock may have been left by a process from
// a previous Master run).
func (m *Master) SweepOrphanLocks(dirs []string) {
	for _, dir := range dirs {
		_, _ = m.locks.Inspect(dir)
	}
}

// Drain stops admitting new directories, signals every running Worker
// to cancel, waits up to grace for them to exit on their own, then
// force-terminates any survivors and reclaims their locks.
func (m *Master) Drain(ctx context.Context, grace time.Duration) {
	m.mu.Lock()
	m.admitting = false
	handles := make(map[string]Handle, len(m.handles))
	for dir, h := range m.handles {
		handles[dir] = h
	}
	m.mu.Unlock()

	for _, h := range handles {
		_ = h.Stop()
	}

	deadline := time.After(grace)
	waited := make(chan struct{})
	go func() {
		for dir := range handles {
			m.waitExit(dir)
		}
		close(waited)
	}()

	select {
	case <-waited:
	case <-deadline:
	case <-ctx.Done():
	}

	m.mu.Lock()
	survivors := make(map[string]Handle, len(m.handles))
	for dir, h := range m.handles {
		survivors[dir] = h
	}
	m.mu.Unlock()

	for dir, h := range survivors {
		_ = h.Kill()
		_, _ = m.locks.Inspect(dir)
	}
}

// StartWatching runs a background Trigger so immediate subdirectories
// created or removed under roots after it returns are admitted or
// retired without a restart. Subdirectories that already exist when it
// is called are not admitted by it. pollInterval configures the
// Trigger's fallback poller when fsnotify is unavailable.
func (m *Master) StartWatching(ctx context.Context, roots []string, pollInterval time.Duration) error {
	trigger, err := watchtrigger.New(roots, pollInterval)
	if err != nil {
		return fmt.Errorf("start directory watch: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.trigger = trigger
	m.watchCancel = cancel
	m.mu.Unlock()

	go func() {
		if err := trigger.Start(watchCtx); err != nil && err != context.Canceled {
			_ = err
		}
	}()
	go m.consumeWatchEvents(watchCtx, trigger)

	return nil
}

// StopWatching stops the background directory Trigger started by
// StartWatching. Safe to call when watching was never started.
func (m *Master) StopWatching() {
	m.mu.Lock()
	trigger := m.trigger
	cancel := m.watchCancel
	m.trigger = nil
	m.watchCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if trigger != nil {
		_ = trigger.Stop()
	}
}

func (m *Master) consumeWatchEvents(ctx context.Context, trigger *watchtrigger.Trigger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-trigger.Events():
			if !ok {
				return
			}
			switch ev.Op {
			case watchtrigger.Appeared:
				_ = m.Admit(ctx, ev.Path)
			case watchtrigger.Vanished:
				m.retire(ev.Path)
			}
		case _, ok := <-trigger.Errors():
			if !ok {
				return
			}
		}
	}
}

// retire force-stops the Worker owning dir, if any, when its directory
// has disappeared from disk.
func (m *Master) retire(dir string) {
	m.mu.Lock()
	handle, ok := m.handles[dir]
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = handle.Stop()
}

func (m *Master) waitExit(dir string) {
	for {
		m.mu.Lock()
		_, running := m.handles[dir]
		m.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
