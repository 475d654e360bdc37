// Package dbview computes which scanned files need (re)indexing against
// what the vector store already reports knowing, per spec.md §4.6's
// Diffing transition. It is a pure function over its inputs: it never
// calls the Facade itself, breaking the dependency cycle that would
// otherwise exist between the Worker's pipeline stages (spec.md §9).
package dbview

import (
	"github.com/maverikod/docanalyzer/internal/model"
)

// Diff returns the subset of scanned that must be (re)indexed against
// indexed, the Database View's read of what the vector store already
// has for this directory. A file needs reindexing when:
//   - it is missing from indexed entirely, or
//   - both sides carry a content hash and the hashes differ, or
//   - no hash comparison is possible and the on-disk mtime is strictly
//     newer than the indexed mtime.
//
// Hash comparison takes precedence over mtime whenever both sides have
// one; mtime is only the fallback. A file present on both sides that
// is unchanged by whichever comparison applies is omitted from the
// result; scanned order is preserved for the files that remain.
func Diff(scanned []model.FileRecord, indexed []model.IndexedFileRecord) []model.FileRecord {
	byPath := make(map[string]model.IndexedFileRecord, len(indexed))
	for _, rec := range indexed {
		byPath[rec.Path] = rec
	}

	var needsReindex []model.FileRecord
	for _, f := range scanned {
		existing, ok := byPath[f.Path]
		if !ok {
			needsReindex = append(needsReindex, f)
			continue
		}
		if f.ContentHash != "" && existing.ContentHash != "" {
			if f.ContentHash != existing.ContentHash {
				needsReindex = append(needsReindex, f)
			}
			continue
		}
		if f.ModTime.After(existing.LastModified) {
			needsReindex = append(needsReindex, f)
		}
	}
	return needsReindex
}

// Stale returns the indexed records whose path no longer appears among
// scanned — files the store still has entries for but that have since
// disappeared from disk. Callers use this to drive delete_by_source
// compensation for files removed since the last pass; dbview itself
// never issues that call.
func Stale(scanned []model.FileRecord, indexed []model.IndexedFileRecord) []model.IndexedFileRecord {
	onDisk := make(map[string]bool, len(scanned))
	for _, f := range scanned {
		onDisk[f.Path] = true
	}

	var stale []model.IndexedFileRecord
	for _, rec := range indexed {
		if !onDisk[rec.Path] {
			stale = append(stale, rec)
		}
	}
	return stale
}
