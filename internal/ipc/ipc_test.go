package ipc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverikod/docanalyzer/internal/errors"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	msgs := []ProcessMessage{
		Heartbeat("1", 1234, "Scanning"),
		Progress("2", "/dir", 10, 8, 7, 1, "a.txt"),
		Result("3", 0),
		ErrorMessage("4", errors.New(errors.KindFileIOError, "worker.process", "/dir", "a.txt", 1, nil)),
		StopCommand("5"),
	}
	for _, m := range msgs {
		require.NoError(t, w.Send(m))
	}

	r := NewReader(&buf)
	var got []ProcessMessage
	err := r.All(func(m ProcessMessage) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, len(msgs))
	for i, m := range got {
		assert.Equal(t, msgs[i].ID, m.ID)
		assert.Equal(t, msgs[i].Type, m.Type)
	}
}

func TestReader_EOFOnEmptyStream(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_DecodesHeartbeatFields(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Send(Heartbeat("hb-1", 999, "Processing")))

	r := NewReader(&buf)
	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, MessageHeartbeat, msg.Type)
	assert.Equal(t, 999, msg.Payload.PID)
	assert.Equal(t, "Processing", msg.Payload.State)
}

func TestReader_DecodesErrorPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	procErr := errors.New(errors.KindUpstreamUnavailable, "facade.commit_chunks", "/dir", "a.txt", 2, nil)
	require.NoError(t, w.Send(ErrorMessage("err-1", procErr)))

	r := NewReader(&buf)
	msg, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, msg.Payload.Error)
	assert.Equal(t, errors.KindUpstreamUnavailable, msg.Payload.Error.Kind)
}

func TestWriter_ConcurrentSendsDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(n int) {
			_ = w.Send(Heartbeat("c", n, "Running"))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	r := NewReader(&buf)
	count := 0
	err := r.All(func(ProcessMessage) error { count++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 20, count, "expected 20 well-formed lines despite concurrent writes")
}
