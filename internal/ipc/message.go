package ipc

import (
	"time"

	"github.com/maverikod/docanalyzer/internal/errors"
)

// MessageType is the kind of a ProcessMessage, mirroring the original
// process_communication.py envelope's message_type field.
type MessageType string

const (
	MessageHeartbeat MessageType = "heartbeat"
	MessageProgress  MessageType = "progress"
	MessageResult    MessageType = "result"
	MessageError     MessageType = "error"
	MessageCommand   MessageType = "command"
)

// CommandName identifies a control-pipe command the Master sends to a
// Worker.
type CommandName string

const (
	CommandStop CommandName = "stop"
)

// ProcessMessage is the single envelope exchanged over a Worker's
// stdout pipe, one per newline-delimited JSON line.
type ProcessMessage struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"message_type"`
	Payload   Payload     `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Payload carries the fields relevant to Type; unused fields are
// omitted from the wire encoding.
type Payload struct {
	// Heartbeat
	PID   int    `json:"pid,omitempty"`
	State string `json:"state,omitempty"`

	// Progress
	Directory     string `json:"directory,omitempty"`
	FilesSeen     int    `json:"files_seen,omitempty"`
	FilesAccepted int    `json:"files_accepted,omitempty"`
	FilesOK       int    `json:"files_ok,omitempty"`
	FilesFailed   int    `json:"files_failed,omitempty"`
	CurrentFile   string `json:"current_file,omitempty"`

	// Result
	ExitCode int `json:"exit_code,omitempty"`

	// Error
	Error *errors.ProcessingError `json:"error,omitempty"`

	// Command
	Command CommandName `json:"command,omitempty"`
}

// Heartbeat builds a heartbeat ProcessMessage for pid in state.
func Heartbeat(id string, pid int, state string) ProcessMessage {
	return ProcessMessage{
		ID:        id,
		Type:      MessageHeartbeat,
		Payload:   Payload{PID: pid, State: state},
		Timestamp: time.Now().UTC(),
	}
}

// Progress builds a progress ProcessMessage reporting cumulative
// per-directory counters.
func Progress(id, directory string, seen, accepted, ok, failed int, currentFile string) ProcessMessage {
	return ProcessMessage{
		ID:   id,
		Type: MessageProgress,
		Payload: Payload{
			Directory:     directory,
			FilesSeen:     seen,
			FilesAccepted: accepted,
			FilesOK:       ok,
			FilesFailed:   failed,
			CurrentFile:   currentFile,
		},
		Timestamp: time.Now().UTC(),
	}
}

// Result builds a terminal result ProcessMessage carrying the Worker's
// exit code.
func Result(id string, exitCode int) ProcessMessage {
	return ProcessMessage{
		ID:        id,
		Type:      MessageResult,
		Payload:   Payload{ExitCode: exitCode},
		Timestamp: time.Now().UTC(),
	}
}

// ErrorMessage builds an error ProcessMessage carrying a classified
// ProcessingError.
func ErrorMessage(id string, procErr *errors.ProcessingError) ProcessMessage {
	return ProcessMessage{
		ID:        id,
		Type:      MessageError,
		Payload:   Payload{Error: procErr},
		Timestamp: time.Now().UTC(),
	}
}

// StopCommand builds the control-pipe command the Master sends to ask
// a Worker to abort at the next safe point.
func StopCommand(id string) ProcessMessage {
	return ProcessMessage{
		ID:        id,
		Type:      MessageCommand,
		Payload:   Payload{Command: CommandStop},
		Timestamp: time.Now().UTC(),
	}
}
