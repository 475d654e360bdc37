package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineSize bounds a single ProcessMessage line; progress payloads
// are small, so this is generous headroom rather than a tight budget.
const maxLineSize = 1 << 20

// Writer sends newline-delimited ProcessMessage JSON to an underlying
// io.Writer (a Worker's stdout pipe, from the Worker's side). Safe for
// concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w for framed ProcessMessage output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send encodes msg as one JSON line terminated by '\n'.
func (w *Writer) Send(msg ProcessMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: failed to encode message: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("ipc: failed to write message: %w", err)
	}
	return nil
}

// Reader reads newline-delimited ProcessMessage JSON from an
// underlying io.Reader (the Master's end of a Worker's stdout pipe).
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r for framed ProcessMessage input.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next reads and decodes the next ProcessMessage. It returns io.EOF
// when the underlying stream is exhausted.
func (r *Reader) Next() (ProcessMessage, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return ProcessMessage{}, fmt.Errorf("ipc: failed to read message: %w", err)
		}
		return ProcessMessage{}, io.EOF
	}

	var msg ProcessMessage
	if err := json.Unmarshal(r.scanner.Bytes(), &msg); err != nil {
		return ProcessMessage{}, fmt.Errorf("ipc: failed to decode message: %w", err)
	}
	return msg, nil
}

// All drains every remaining message from r, calling handle for each
// in arrival order, until EOF or handle returns an error.
func (r *Reader) All(handle func(ProcessMessage) error) error {
	for {
		msg, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}
