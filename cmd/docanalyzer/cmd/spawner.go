package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/maverikod/docanalyzer/internal/ipc"
	"github.com/maverikod/docanalyzer/internal/master"
)

// execSpawner spawns a Worker as a re-exec of the current binary's
// `worker run <dir>` subcommand, one child process per admitted
// directory.
type execSpawner struct {
	execPath   string
	configPath string
}

func newExecSpawner(configPath string) (*execSpawner, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable path: %w", err)
	}
	return &execSpawner{execPath: execPath, configPath: configPath}, nil
}

func (s *execSpawner) Spawn(ctx context.Context, dir string) (master.Handle, error) {
	args := []string{"worker", "run", dir}
	if s.configPath != "" {
		args = append(args, "--config", s.configPath)
	}

	c := exec.Command(s.execPath, args...)
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe for %s: %w", dir, err)
	}
	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe for %s: %w", dir, err)
	}
	c.Stderr = os.Stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker for %s: %w", dir, err)
	}
	return &execHandle{cmd: c, stdout: stdout, control: ipc.NewWriter(stdin), stdin: stdin}, nil
}

// execHandle adapts *exec.Cmd to master.Handle: the Worker's
// ipc.ProcessMessage stream flows to the Master over its stdout, and
// the control pipe (the same Worker's stdin) carries StopCommand back
// down for a cooperative Stop.
type execHandle struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stdin   io.WriteCloser
	control *ipc.Writer
}

func (h *execHandle) PID() int { return h.cmd.Process.Pid }

func (h *execHandle) Stdout() io.Reader { return h.stdout }

func (h *execHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Stop sends StopCommand down the control pipe so the Worker cancels
// at its next safe suspension point. SIGTERM still follows as a
// fallback for a Worker stuck before its command reader goroutine
// starts draining stdin.
func (h *execHandle) Stop() error {
	if h.cmd.Process == nil {
		return nil
	}
	_ = h.control.Send(ipc.StopCommand(h.cmd.Path))
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
