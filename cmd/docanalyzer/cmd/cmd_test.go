package cmd

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/daemon"
	"github.com/maverikod/docanalyzer/internal/worker"
)

func TestExitCodeError_UnwrapsAndFormats(t *testing.T) {
	base := errors.New("boom")
	err := &ExitCodeError{Code: worker.ExitFailed, Err: base}

	assert.Equal(t, "boom", err.Error())
	assert.True(t, errors.Is(err, base), "expected errors.Is to see through to the wrapped error")

	var target *ExitCodeError
	require.True(t, errors.As(error(err), &target), "expected errors.As to match *ExitCodeError")
	assert.Equal(t, worker.ExitFailed, target.Code)
}

func TestExitCodeError_NoWrappedError(t *testing.T) {
	err := &ExitCodeError{Code: worker.ExitLockDenied}
	assert.NotEmpty(t, err.Error(), "expected a non-empty message when Err is nil")
}

func TestStatus_WritesToProvidedWriter(t *testing.T) {
	var buf bytes.Buffer
	out := newStatus(&buf)

	out.line("hello")
	out.ok("done")
	out.fail("nope")
	out.linef("count=%d", 3)

	got := buf.String()
	for _, want := range []string{"hello\n", "ok: done\n", "error: nope\n", "count=3\n"} {
		assert.Containsf(t, got, want, "expected output to contain %q", want)
	}
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"master", "watch", "worker"} {
		assert.Truef(t, names[want], "expected root command to register %q, got %+v", want, names)
	}
}

func TestNewWorkerCmd_IsHidden(t *testing.T) {
	c := newWorkerCmd()
	assert.True(t, c.Hidden, "expected the worker command group to be hidden from help output")
	require.Len(t, c.Commands(), 1)
	assert.Equal(t, "run", c.Commands()[0].Name())
}

func TestAddConfiguredDirectory_AppendsAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	oldConfigPath := configPath
	configPath = path
	defer func() { configPath = oldConfigPath }()

	cfg := config.New()
	cfg.Watch.Directories = []string{"/existing"}
	require.NoError(t, cfg.Save(path))

	require.NoError(t, addConfiguredDirectory("/new/dir"))
	require.NoError(t, addConfiguredDirectory("/new/dir"))

	reloaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Watch.Directories, 2)
}

func TestRemoveConfiguredDirectory_DropsOnlyMatchingEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	oldConfigPath := configPath
	configPath = path
	defer func() { configPath = oldConfigPath }()

	cfg := config.New()
	cfg.Watch.Directories = []string{"/a", "/b", "/c"}
	require.NoError(t, cfg.Save(path))

	require.NoError(t, removeConfiguredDirectory("/b"))

	reloaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Watch.Directories, 2)
	assert.NotContains(t, reloaded.Watch.Directories, "/b")
}

func TestRunWatchList_FailsWhenMasterNotRunning(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := NewRootCmd()
	root.SetArgs([]string{"watch", "list"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)

	assert.Error(t, root.Execute(), "expected watch list to fail when no master is running")
}

func TestRunMasterStatus_ReportsNotRunning(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	cmd := newMasterStatusCmd()
	cmd.SetOut(&out)

	require.NoError(t, runMasterStatus(cmd.Context(), cmd))
	assert.Contains(t, out.String(), "not running")
}

func TestRunMasterStop_ReportsNotRunning(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	cmd := newMasterStopCmd()
	cmd.SetOut(&out)

	require.NoError(t, runMasterStop(cmd))
	assert.Contains(t, out.String(), "not running")
}

func TestExecSpawner_SpawnsAndReportsExitCode(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("no 'true' binary on PATH")
	}

	s := &execSpawner{execPath: mustLookPath(t, "true"), configPath: ""}
	handle, err := s.Spawn(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, handle.PID(), 0)

	code, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExecHandle_ReportsNonZeroExitCode(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("no 'false' binary on PATH")
	}

	s := &execSpawner{execPath: mustLookPath(t, "false"), configPath: ""}
	handle, err := s.Spawn(context.Background(), t.TempDir())
	require.NoError(t, err)

	code, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func mustLookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	require.NoErrorf(t, err, "LookPath(%q)", name)
	return path
}

func TestDaemonDefaultConfig_RespectsHOME(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := daemon.DefaultConfig()
	assert.Equal(t, filepath.Join(home, ".docanalyzer"), filepath.Dir(cfg.SocketPath))
}
