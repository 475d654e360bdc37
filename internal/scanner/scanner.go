// Package scanner walks a single directory tree and yields candidate
// FileRecords, filtered by extension, size, exclude pattern, and
// readability, in deterministic depth-first name order.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/model"
)

// patternCacheSize bounds the compiled-pattern cache so a Scanner used
// across many directories in a long-running Worker doesn't grow
// without limit.
const patternCacheSize = 256

// Options governs how Scan walks a directory.
type Options struct {
	Recursive        bool
	Extensions       []string // case-insensitive, default ".txt", ".md"
	MaxFileSize      int64
	FollowSymlinks   bool
	ExcludePatterns  []string
	// Progress, if non-nil, receives one event per file entry visited
	// (directories and skipped symlinks send none). Scan never blocks indefinitely on a full channel; sends
	// are best-effort so a caller who isn't draining it doesn't stall
	// the scan itself.
	Progress chan<- ProgressEvent
}

// ProgressEvent reports scan progress: cumulative files seen (visited,
// whether accepted or not) and accepted so far.
type ProgressEvent struct {
	FilesSeen     int
	FilesAccepted int
}

// Result is one item produced by Scan: either an accepted FileRecord
// or a non-fatal per-entry error.
type Result struct {
	File *model.FileRecord
	Err  error
}

// compiledPattern is the parsed form of one exclude glob: whether it
// contains a path separator decides if it must be matched against the
// full path or just the entry's base name.
type compiledPattern struct {
	pattern  string
	anchored bool
}

func compilePatterns(patterns []string) []compiledPattern {
	compiled := make([]compiledPattern, len(patterns))
	for i, p := range patterns {
		compiled[i] = compiledPattern{pattern: p, anchored: strings.ContainsRune(p, '/')}
	}
	return compiled
}

// Scanner walks directories and applies the exclude-pattern predicate,
// caching the compiled form of each distinct pattern set across calls.
type Scanner struct {
	patternCache *lru.Cache[string, []compiledPattern]
}

// New constructs a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, []compiledPattern](patternCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}
	return &Scanner{patternCache: cache}, nil
}

func defaultExtensions() []string { return []string{".txt", ".md"} }

// Scan walks dir and streams results on the returned channel, which is
// closed when the walk completes or ctx is cancelled. Failure to open
// the root directory returns a DirectoryUnavailable error synchronously
// instead of opening the channel.
func (s *Scanner) Scan(ctx context.Context, dir string, opts Options) (<-chan Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.New(errors.KindDirectoryUnavailable, "scanner.scan", dir, "", 0, err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.KindDirectoryUnavailable, "scanner.scan", dir, "", 0, fmt.Errorf("not a directory: %s", dir))
	}

	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = defaultExtensions()
	}

	out := make(chan Result, 64)
	go func() {
		defer close(out)
		s.walk(ctx, dir, extensions, opts, out)
	}()
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, root string, extensions []string, opts Options, out chan<- Result) {
	var filesSeen, filesAccepted int

	emitProgress := func() {
		if opts.Progress == nil {
			return
		}
		select {
		case opts.Progress <- ProgressEvent{FilesSeen: filesSeen, FilesAccepted: filesAccepted}:
		default:
		}
	}

	var visit func(dir string) error
	visit = func(dir string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			select {
			case out <- Result{Err: errors.New(errors.KindDirectoryUnavailable, "scanner.walk", dir, "", 0, err)}:
			case <-ctx.Done():
			}
			return nil
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			path := filepath.Join(dir, entry.Name())

			if entry.IsDir() {
				if !opts.Recursive {
					continue
				}
				if s.isExcluded(path, opts.ExcludePatterns) {
					continue
				}
				if err := visit(path); err != nil {
					return err
				}
				continue
			}

			if entry.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
				continue
			}

			filesSeen++

			info, err := entry.Info()
			if err != nil {
				select {
				case out <- Result{Err: errors.New(errors.KindFileIOError, "scanner.walk", root, path, 0, err)}:
				case <-ctx.Done():
					return ctx.Err()
				}
				emitProgress()
				continue
			}

			if !matchesExtension(path, extensions) {
				emitProgress()
				continue
			}
			if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
				emitProgress()
				continue
			}
			if s.isExcluded(path, opts.ExcludePatterns) {
				emitProgress()
				continue
			}
			if f, err := os.Open(path); err != nil {
				select {
				case out <- Result{Err: errors.New(errors.KindFileIOError, "scanner.walk", root, path, 0, err)}:
				case <-ctx.Done():
					return ctx.Err()
				}
				emitProgress()
				continue
			} else {
				_ = f.Close()
			}

			filesAccepted++
			record := &model.FileRecord{
				Path:      path,
				Size:      info.Size(),
				ModTime:   info.ModTime(),
				Extension: strings.ToLower(filepath.Ext(path)),
			}
			select {
			case out <- Result{File: record}:
			case <-ctx.Done():
				return ctx.Err()
			}
			emitProgress()
		}
		return nil
	}

	_ = visit(root)
}

func matchesExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// isExcluded reports whether path matches any exclude pattern. The
// pattern set is compiled once per distinct set of ExcludePatterns
// (patterns are split by whether they're anchored to a path, not just
// a base name) and the compiled form is cached, since the same Options
// is reused across every entry of a walk.
func (s *Scanner) isExcluded(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	key := strings.Join(patterns, "\x00")
	compiled, ok := s.patternCache.Get(key)
	if !ok {
		compiled = compilePatterns(patterns)
		s.patternCache.Add(key, compiled)
	}
	base := filepath.Base(path)
	for _, cp := range compiled {
		target := base
		if cp.anchored {
			target = path
		}
		if matched, err := filepath.Match(cp.pattern, target); err == nil && matched {
			return true
		}
	}
	return false
}
