// Package lockmanager implements cross-process directory locking so
// that at most one Worker processes a given directory at a time. Locks
// are advisory: a PID-stamped JSON file on disk plus an OS-level
// gofrs/flock guard around the check-then-create critical section.
package lockmanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/model"
)

// LockFileName is the name of the on-disk lock file within a watched
// directory.
const LockFileName = ".processing.lock"

// guardSuffix names the sidecar flock file used only to serialize the
// check-then-create critical section between processes; it carries no
// state of its own and is never inspected.
const guardSuffix = ".processing.lock.guard"

// Manager acquires, inspects, and releases directory locks.
type Manager struct {
	// Timeout is the advisory staleness threshold the Manager was
	// configured with. Inspect does not read it and reports no
	// staleness flag, and it never causes a lock to be reclaimed.
	// Liveness (is the owning PID still running) is the only thing that
	// does.
	Timeout time.Duration
}

// New returns a Manager using the given advisory staleness timeout.
func New(timeout time.Duration) *Manager {
	return &Manager{Timeout: timeout}
}

// Acquire creates a lock for directory, owned by the current process.
// If an existing lock is found and its owner is no longer alive, the
// orphaned lock is reclaimed once and acquisition proceeds. If the
// owner is alive, Acquire returns an AlreadyLocked ProcessingError.
func (m *Manager) Acquire(dir string) (*model.DirectoryLock, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.New(errors.KindDirectoryUnavailable, "lock.acquire", dir, "", 0, err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.KindDirectoryUnavailable, "lock.acquire", dir, "", 0, fmt.Errorf("not a directory: %s", dir))
	}

	lockPath := filepath.Join(dir, LockFileName)
	guard := flock.New(filepath.Join(dir, guardSuffix))
	if err := guard.Lock(); err != nil {
		return nil, errors.New(errors.KindLockIOError, "lock.acquire", dir, "", 0, err)
	}
	defer guard.Unlock()

	if existing, err := readLockFile(lockPath); err == nil {
		if IsProcessAlive(existing.ProcessID) {
			return nil, errors.New(errors.KindAlreadyLocked, "lock.acquire", dir, "", 0,
				fmt.Errorf("directory already locked by process %d", existing.ProcessID))
		}
		// Orphaned: the owning process is gone. Reclaim once.
		_ = os.Remove(lockPath)
	} else if err != errLockFileAbsent {
		// Corrupted lock file; treat like an orphan and reclaim.
		_ = os.Remove(lockPath)
	}

	lock := &model.DirectoryLock{
		ProcessID:    os.Getpid(),
		CreatedAt:    time.Now().UTC(),
		Directory:    dir,
		Status:       model.LockActive,
		LockFilePath: lockPath,
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.New(errors.KindAlreadyLocked, "lock.acquire", dir, "", 0, err)
		}
		return nil, errors.New(errors.KindLockIOError, "lock.acquire", dir, "", 0, err)
	}
	defer f.Close()

	data, err := encodeLock(lock)
	if err != nil {
		_ = os.Remove(lockPath)
		return nil, errors.New(errors.KindLockIOError, "lock.acquire", dir, "", 0, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = os.Remove(lockPath)
		return nil, errors.New(errors.KindLockIOError, "lock.acquire", dir, "", 0, err)
	}

	return lock, nil
}

// Release removes a lock previously returned by Acquire. Only the
// owning process may release it.
func (m *Manager) Release(lock *model.DirectoryLock) error {
	if lock.ProcessID != os.Getpid() {
		return errors.New(errors.KindNotOwner, "lock.release", lock.Directory, "", 0,
			fmt.Errorf("lock owned by process %d, not %d", lock.ProcessID, os.Getpid()))
	}
	if err := os.Remove(lock.LockFilePath); err != nil && !os.IsNotExist(err) {
		return errors.New(errors.KindLockIOError, "lock.release", lock.Directory, "", 0, err)
	}
	return nil
}

// Inspect reports the current lock state of directory, reclaiming an
// orphaned lock (owner no longer alive) as a side effect and returning
// nil in that case. It does not take the flock guard, since callers
// use it for status reporting, not admission control.
func (m *Manager) Inspect(dir string) (*model.DirectoryLock, error) {
	lockPath := filepath.Join(dir, LockFileName)

	lock, err := readLockFile(lockPath)
	if err == errLockFileAbsent {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.KindLockIOError, "lock.inspect", dir, "", 0, err)
	}

	if IsProcessAlive(lock.ProcessID) {
		return lock, nil
	}

	_ = os.Remove(lockPath)
	return nil, nil
}

var errLockFileAbsent = fmt.Errorf("lock file absent")

func readLockFile(path string) (*model.DirectoryLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errLockFileAbsent
		}
		return nil, err
	}
	return decodeLock(data)
}

// knownLockFields are the wire keys this version of the schema
// understands; anything else round-trips through DirectoryLock.Extra.
var knownLockFields = map[string]bool{
	"process_id": true, "created_at": true, "directory": true,
	"status": true, "lock_file_path": true,
}

func encodeLock(l *model.DirectoryLock) ([]byte, error) {
	out := map[string]any{
		"process_id":     l.ProcessID,
		"created_at":     l.CreatedAt.Format(time.RFC3339),
		"directory":      l.Directory,
		"status":         string(l.Status),
		"lock_file_path": l.LockFilePath,
	}
	for k, v := range l.Extra {
		out[k] = v
	}
	return json.MarshalIndent(out, "", "  ")
}

func decodeLock(data []byte) (*model.DirectoryLock, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("corrupted lock file: %w", err)
	}

	var processID int
	var createdAtStr, directory, status, lockFilePath string
	if v, ok := raw["process_id"]; ok {
		_ = json.Unmarshal(v, &processID)
	}
	if v, ok := raw["created_at"]; ok {
		_ = json.Unmarshal(v, &createdAtStr)
	}
	if v, ok := raw["directory"]; ok {
		_ = json.Unmarshal(v, &directory)
	}
	if v, ok := raw["status"]; ok {
		_ = json.Unmarshal(v, &status)
	}
	if v, ok := raw["lock_file_path"]; ok {
		_ = json.Unmarshal(v, &lockFilePath)
	}
	if processID == 0 || directory == "" || lockFilePath == "" {
		return nil, fmt.Errorf("lock file missing required fields")
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("lock file has invalid created_at: %w", err)
	}

	var extra map[string]any
	for k, v := range raw {
		if knownLockFields[k] {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		var val any
		_ = json.Unmarshal(v, &val)
		extra[k] = val
	}

	return &model.DirectoryLock{
		ProcessID:    processID,
		CreatedAt:    createdAt,
		Directory:    directory,
		Status:       model.LockStatus(status),
		LockFilePath: lockFilePath,
		Extra:        extra,
	}, nil
}
