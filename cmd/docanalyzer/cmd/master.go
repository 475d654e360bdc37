package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/daemon"
	"github.com/maverikod/docanalyzer/internal/facade"
	"github.com/maverikod/docanalyzer/internal/logging"
	"github.com/maverikod/docanalyzer/internal/master"
)

func newMasterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Manage the docanalyzer master fleet process",
	}
	cmd.AddCommand(newMasterStartCmd())
	cmd.AddCommand(newMasterStopCmd())
	cmd.AddCommand(newMasterStatusCmd())
	return cmd
}

func newMasterStartCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the master fleet process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMasterStart(cmd.Context(), cmd, foreground)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground instead of daemonizing")
	return cmd
}

func newMasterStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running master fleet process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMasterStop(cmd)
		},
	}
}

func newMasterStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the master fleet's health and statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMasterStatus(cmd.Context(), cmd)
		},
	}
}

func runMasterStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := newStatus(cmd.OutOrStdout())
	daemonCfg := daemon.DefaultConfig()

	client := daemon.NewClient(daemonCfg)
	if client.IsRunning() {
		out.line("master is already running")
		return nil
	}

	if !foreground {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable path: %w", err)
		}
		args := []string{"master", "start", "--foreground"}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		bg := exec.Command(execPath, args...)
		bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		if err := bg.Start(); err != nil {
			return fmt.Errorf("start master: %w", err)
		}

		for i := 0; i < 50; i++ {
			time.Sleep(100 * time.Millisecond)
			if client.IsRunning() {
				out.ok(fmt.Sprintf("master started (pid %d)", bg.Process.Pid))
				return nil
			}
		}
		return fmt.Errorf("master failed to start within timeout")
	}

	return runMasterForeground(ctx, daemonCfg)
}

func runMasterForeground(ctx context.Context, daemonCfg daemon.Config) error {
	if err := daemonCfg.EnsureDir(); err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(logging.DefaultConfig())
	if err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)
	if err := pidFile.Write(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = pidFile.Remove() }()

	spawner, err := newExecSpawner(configPath)
	if err != nil {
		return err
	}

	fac := facade.New(cfg.Upstream, cfg.Retry)
	m := master.New(cfg, spawner)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	for _, dir := range cfg.Watch.Directories {
		if err := m.Admit(runCtx, dir); err != nil {
			slog.Warn("failed to admit configured directory", slog.String("directory", dir), slog.String("error", err.Error()))
		}
	}

	if err := m.StartWatching(runCtx, cfg.Watch.Directories, cfg.Watch.ScanInterval); err != nil {
		slog.Warn("failed to start directory watch", slog.String("error", err.Error()))
	}
	defer m.StopWatching()

	stopSweep := make(chan struct{})
	go runHeartbeatSweeper(m, cfg.Heartbeat.Interval, stopSweep)
	defer close(stopSweep)

	handler := daemon.NewMasterHandler(m, fac)
	srv := daemon.NewServer(daemonCfg.SocketPath, handler)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(runCtx) }()

	select {
	case <-runCtx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("master control server stopped", slog.String("error", err.Error()))
		}
	}

	m.Drain(context.Background(), daemonCfg.ShutdownGracePeriod)
	return nil
}

func runHeartbeatSweeper(m *master.Master, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.SweepHeartbeats()
		}
	}
}

func runMasterStop(cmd *cobra.Command) error {
	out := newStatus(cmd.OutOrStdout())
	daemonCfg := daemon.DefaultConfig()
	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)

	if !pidFile.IsRunning() {
		out.line("master is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("read pid file: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop master: %w", err)
	}

	for i := 0; i < 100; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.ok(fmt.Sprintf("master stopped (was pid %d)", pid))
			return nil
		}
	}

	out.line("master not responding, sending SIGKILL")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill master: %w", err)
	}
	out.ok("master killed")
	return nil
}

func runMasterStatus(ctx context.Context, cmd *cobra.Command) error {
	out := newStatus(cmd.OutOrStdout())
	daemonCfg := daemon.DefaultConfig()
	client := daemon.NewClient(daemonCfg)

	if !client.IsRunning() {
		out.line("master is not running")
		return nil
	}

	stats, err := client.SystemStats(ctx)
	if err != nil {
		return fmt.Errorf("get system stats: %w", err)
	}
	processing, err := client.ProcessingStats(ctx)
	if err != nil {
		return fmt.Errorf("get processing stats: %w", err)
	}

	out.linef("master is running (pid %d, uptime %s)", stats.PID, stats.Uptime)
	out.linef("  watched directories: %d", stats.WatchedDirectories)
	out.linef("  running workers:     %d", stats.RunningWorkers)
	out.linef("  files seen:          %v", processing["files_seen"])
	out.linef("  files ok:            %v", processing["files_ok"])
	out.linef("  files failed:        %v", processing["files_failed"])
	return nil
}
