package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/facade"
	"github.com/maverikod/docanalyzer/internal/ipc"
	"github.com/maverikod/docanalyzer/internal/lockmanager"
	"github.com/maverikod/docanalyzer/internal/logging"
	"github.com/maverikod/docanalyzer/internal/worker"
)

// newWorkerCmd builds the `worker` command group. `worker run` is not
// meant to be invoked by hand; the Master re-execs this binary with it
// to spawn one Worker per admitted directory.
func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Internal worker subcommands",
		Hidden: true,
	}
	cmd.AddCommand(newWorkerRunCmd())
	return cmd
}

func newWorkerRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <directory>",
		Short: "Process one directory end-to-end and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), args[0])
		},
	}
}

func runWorker(ctx context.Context, dir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &ExitCodeError{Code: worker.ExitFailed, Err: fmt.Errorf("load config: %w", err)}
	}

	logger, cleanup, err := logging.Setup(logging.WorkerConfig(os.Getpid()))
	if err == nil {
		defer cleanup()
		_ = logger
	}

	fac := facade.New(cfg.Upstream, cfg.Retry)
	locks := lockmanager.New(cfg.Lock.Timeout)
	progress := ipc.NewWriter(os.Stdout)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cancel := make(chan struct{})
	go watchControlPipe(os.Stdin, cancel)

	w := worker.New(dir, cfg, fac, locks, progress)
	exitCode := w.Run(sigCtx, cancel)

	if exitCode != worker.ExitClean {
		return &ExitCodeError{Code: exitCode, Err: fmt.Errorf("worker exited with code %d", exitCode)}
	}
	return nil
}

// watchControlPipe drains the Master's control messages from r,
// closing cancel the moment a StopCommand arrives so Worker.Run's
// per-file suspension points observe it. It returns when r is closed,
// which happens when the Master exits or calls Stop and the pipe is
// torn down.
func watchControlPipe(r io.Reader, cancel chan struct{}) {
	var once sync.Once
	reader := ipc.NewReader(r)
	_ = reader.All(func(msg ipc.ProcessMessage) error {
		if msg.Type == ipc.MessageCommand && msg.Payload.Command == ipc.CommandStop {
			once.Do(func() { close(cancel) })
		}
		return nil
	})
}
