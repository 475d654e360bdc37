package watchtrigger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp distinguishes a subdirectory appearing from one disappearing.
type EventOp int

const (
	Appeared EventOp = iota
	Vanished
)

// Event reports one immediate subdirectory of a watched root coming or
// going.
type Event struct {
	Path string
	Op   EventOp
}

// Trigger watches a fixed set of root directories for immediate
// subdirectories appearing or vanishing. It prefers fsnotify and falls
// back to polling when the platform's fsnotify backend is unavailable,
// mirroring the primary/fallback split of a hybrid filesystem watcher.
type Trigger struct {
	roots        []string
	pollInterval time.Duration

	fsWatcher   *fsnotify.Watcher
	useFsnotify bool

	events chan Event
	errors chan error
	stopCh chan struct{}

	mu      sync.Mutex
	known   map[string]map[string]bool // root -> set of child dir names
	stopped bool
}

// New constructs a Trigger over roots. pollInterval configures the
// fallback poller; it is ignored when fsnotify is available.
func New(roots []string, pollInterval time.Duration) (*Trigger, error) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	t := &Trigger{
		roots:        append([]string{}, roots...),
		pollInterval: pollInterval,
		events:       make(chan Event, 64),
		errors:       make(chan error, 8),
		stopCh:       make(chan struct{}),
		known:        make(map[string]map[string]bool),
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		t.fsWatcher = fsw
		t.useFsnotify = true
		// Register the watches now so a subdirectory created before
		// Start's goroutine runs still produces a Create event.
		for _, root := range t.roots {
			if err := fsw.Add(root); err != nil {
				t.emitError(err)
			}
		}
	}
	return t, nil
}

// Events returns the channel of subdirectory appear/vanish events.
func (t *Trigger) Events() <-chan Event { return t.events }

// Errors returns the channel of non-fatal watch errors.
func (t *Trigger) Errors() <-chan error { return t.errors }

// Start begins watching. It blocks until ctx is cancelled or Stop is
// called; run it in its own goroutine.
func (t *Trigger) Start(ctx context.Context) error {
	for _, root := range t.roots {
		names, err := listSubdirs(root)
		if err != nil {
			t.emitError(err)
			continue
		}
		t.known[root] = names
	}

	if t.useFsnotify {
		return t.runFsnotify(ctx)
	}
	return t.runPolling(ctx)
}

// Stop releases the Trigger's resources. Safe to call multiple times.
func (t *Trigger) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	close(t.stopCh)
	if t.fsWatcher != nil {
		return t.fsWatcher.Close()
	}
	return nil
}

func (t *Trigger) runFsnotify(ctx context.Context) error {
	for _, root := range t.roots {
		if err := t.fsWatcher.Add(root); err != nil {
			t.emitError(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return ctx.Err()
		case <-t.stopCh:
			return nil
		case ev, ok := <-t.fsWatcher.Events:
			if !ok {
				return nil
			}
			t.handleFsnotifyEvent(ev)
		case err, ok := <-t.fsWatcher.Errors:
			if !ok {
				return nil
			}
			t.emitError(err)
		}
	}
}

func (t *Trigger) handleFsnotifyEvent(ev fsnotify.Event) {
	root := filepath.Dir(ev.Name)
	if !t.isRoot(root) {
		return
	}
	name := filepath.Base(ev.Name)
	if t.known[root] == nil {
		t.known[root] = make(map[string]bool)
	}
	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir(ev.Name) {
			t.known[root][name] = true
			t.emit(Event{Path: ev.Name, Op: Appeared})
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if t.known[root][name] {
			delete(t.known[root], name)
			t.emit(Event{Path: ev.Name, Op: Vanished})
		}
	}
}

func (t *Trigger) isRoot(dir string) bool {
	for _, r := range t.roots {
		if filepath.Clean(r) == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

func (t *Trigger) runPolling(ctx context.Context) error {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return ctx.Err()
		case <-t.stopCh:
			return nil
		case <-ticker.C:
			t.pollOnce()
		}
	}
}

func (t *Trigger) pollOnce() {
	for _, root := range t.roots {
		current, err := listSubdirs(root)
		if err != nil {
			t.emitError(err)
			continue
		}
		previous := t.known[root]
		for name := range current {
			if !previous[name] {
				t.emit(Event{Path: filepath.Join(root, name), Op: Appeared})
			}
		}
		for name := range previous {
			if !current[name] {
				t.emit(Event{Path: filepath.Join(root, name), Op: Vanished})
			}
		}
		t.known[root] = current
	}
}

func (t *Trigger) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
	}
}

func (t *Trigger) emitError(err error) {
	select {
	case t.errors <- err:
	default:
	}
}

func listSubdirs(root string) (map[string]bool, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names[e.Name()] = true
		}
	}
	return names, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
