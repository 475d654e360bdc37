package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ChunkStatus is the lifecycle status of a Chunk.
type ChunkStatus string

const (
	StatusNew             ChunkStatus = "NEW"
	StatusSkippedEmpty    ChunkStatus = "Skipped-Empty"
	StatusSkippedTooLarge ChunkStatus = "Skipped-TooLarge"
	StatusFailed          ChunkStatus = "Failed"
)

// Chunk is the final unit sent to the vector store. All chunks
// belonging to one file share SourceID and SourcePath.
type Chunk struct {
	SourcePath string
	SourceID   string // UUIDv4, identical across all chunks of one file
	Body       string
	Status     ChunkStatus
	Ordinal    int
	Metadata   map[string]string
}

// Validate checks the invariants required before a Chunk is dispatched:
// a syntactically valid UUIDv4 SourceID and a non-empty Body.
func (c *Chunk) Validate() error {
	if c.Body == "" {
		return fmt.Errorf("chunk body is empty (source=%s ordinal=%d)", c.SourcePath, c.Ordinal)
	}
	id, err := uuid.Parse(c.SourceID)
	if err != nil {
		return fmt.Errorf("chunk source_id %q is not a valid UUID: %w", c.SourceID, err)
	}
	if id.Version() != 4 {
		return fmt.Errorf("chunk source_id %q is not a UUIDv4 (version %d)", c.SourceID, id.Version())
	}
	return nil
}

// NewSourceID allocates a fresh UUIDv4 to identify a file's chunks.
func NewSourceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate source_id: %w", err)
	}
	return id.String(), nil
}
