// Package cmd provides the docanalyzer CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExitCodeError carries a specific process exit code out of a cobra
// RunE, for the handful of subcommands (currently `worker run`) whose
// exit code is part of the documented process contract rather than a
// plain success/failure signal.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exited with code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

var configPath string

// NewRootCmd builds the docanalyzer root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docanalyzer",
		Short: "Directory processing fleet for document indexing",
		Long: `docanalyzer watches configured directories, scans them for supported
document files, and indexes new or changed content through a remote
vector store, segmentation, and embedding pipeline.

Run 'docanalyzer master start' to bring up the fleet, then use
'docanalyzer watch add <dir>' to register directories to process.`,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default: built-in defaults)")

	cmd.AddCommand(newMasterCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newWorkerCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
