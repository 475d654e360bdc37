package model

import (
	"time"

	"github.com/maverikod/docanalyzer/internal/errors"
)

// WorkerState is the Master-observed lifecycle state of a Worker
// process. It is distinct from the Worker's own internal pipeline
// state machine (see internal/worker.State) — this is the coarser view
// the Master's WorkerRecord table tracks.
type WorkerState string

const (
	WorkerPending  WorkerState = "Pending"
	WorkerStarting WorkerState = "Starting"
	WorkerRunning  WorkerState = "Running"
	WorkerDraining WorkerState = "Draining"
	WorkerFailed   WorkerState = "Failed"
	WorkerExited   WorkerState = "Exited"
)

// WorkerRecord is the Master's view of one child Worker process.
type WorkerRecord struct {
	PID           int
	Directory     string
	State         WorkerState
	StartedAt     time.Time
	LastHeartbeat time.Time
	FilesSeen     int
	FilesOK       int
	FilesFailed   int
	LastError     *errors.ProcessingError
	ExitCode      int
}
