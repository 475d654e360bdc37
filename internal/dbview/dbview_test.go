package dbview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverikod/docanalyzer/internal/model"
)

func TestDiff_MissingFileNeedsReindex(t *testing.T) {
	scanned := []model.FileRecord{{Path: "a.txt", ModTime: time.Now()}}
	result := Diff(scanned, nil)
	require.Len(t, result, 1)
	assert.Equal(t, "a.txt", result[0].Path)
}

func TestDiff_NewerMtimeNeedsReindex(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	scanned := []model.FileRecord{{Path: "a.txt", ModTime: base.Add(time.Hour)}}
	indexed := []model.IndexedFileRecord{{Path: "a.txt", LastModified: base}}

	result := Diff(scanned, indexed)
	assert.Len(t, result, 1, "expected reindex due to newer mtime")
}

func TestDiff_ContentHashMismatchNeedsReindex(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	scanned := []model.FileRecord{{Path: "a.txt", ModTime: base, ContentHash: "hash-new"}}
	indexed := []model.IndexedFileRecord{{Path: "a.txt", LastModified: base, ContentHash: "hash-old"}}

	result := Diff(scanned, indexed)
	assert.Len(t, result, 1, "expected reindex due to hash mismatch")
}

func TestDiff_UnchangedFileIsOmitted(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	scanned := []model.FileRecord{{Path: "a.txt", ModTime: base, ContentHash: "same"}}
	indexed := []model.IndexedFileRecord{{Path: "a.txt", LastModified: base, ContentHash: "same"}}

	result := Diff(scanned, indexed)
	assert.Empty(t, result, "expected no reindexing for an unchanged file")
}

func TestDiff_OlderMtimeWithoutHashesIsUnchanged(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	scanned := []model.FileRecord{{Path: "a.txt", ModTime: base.Add(-time.Hour)}}
	indexed := []model.IndexedFileRecord{{Path: "a.txt", LastModified: base}}

	result := Diff(scanned, indexed)
	assert.Empty(t, result, "expected no reindexing for an older mtime with no hashes to compare")
}

func TestDiff_PreservesScanOrder(t *testing.T) {
	scanned := []model.FileRecord{{Path: "b.txt"}, {Path: "a.txt"}, {Path: "c.txt"}}
	result := Diff(scanned, nil)

	want := []string{"b.txt", "a.txt", "c.txt"}
	require.Len(t, result, len(want))
	for i, r := range result {
		assert.Equal(t, want[i], r.Path)
	}
}

func TestStale_ReportsFilesRemovedFromDisk(t *testing.T) {
	scanned := []model.FileRecord{{Path: "a.txt"}}
	indexed := []model.IndexedFileRecord{{Path: "a.txt"}, {Path: "gone.txt"}}

	stale := Stale(scanned, indexed)
	require.Len(t, stale, 1)
	assert.Equal(t, "gone.txt", stale[0].Path)
}

func TestStale_EmptyWhenNothingRemoved(t *testing.T) {
	scanned := []model.FileRecord{{Path: "a.txt"}}
	indexed := []model.IndexedFileRecord{{Path: "a.txt"}}

	assert.Empty(t, Stale(scanned, indexed))
}
