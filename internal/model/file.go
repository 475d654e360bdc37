// Package model defines the value types shared across the directory
// processing core: files on disk, indexed file records, parsed blocks,
// finalized chunks, directory locks, worker records, and processing
// errors.
package model

import "time"

// FileRecord identifies a file on disk the system may process.
// It is created by the Scanner; the Worker fills in ContentHash
// afterwards, and nothing else changes it.
type FileRecord struct {
	Path        string    // absolute path
	Size        int64     // bytes
	ModTime     time.Time // last-modified time
	Extension   string    // e.g. ".md", ".txt"
	ContentHash string    // SHA-256 hex, empty until computed
}

// IndexedFileRecord is what the vector store reports knowing about a
// file already. It is materialized on demand by the Database View.
type IndexedFileRecord struct {
	Path         string
	SourceID     string // UUIDv4 shared by every chunk of this file, used by delete_by_source compensation
	IndexedAt    time.Time
	LastModified time.Time // mtime recorded at index time
	ChunkCount   int
	Status       string
	ContentHash  string // may be empty if the upstream never recorded one
}
