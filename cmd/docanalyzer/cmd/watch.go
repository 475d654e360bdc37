package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/daemon"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Register or inspect directories watched by the running master",
	}
	cmd.AddCommand(newWatchAddCmd())
	cmd.AddCommand(newWatchRemoveCmd())
	cmd.AddCommand(newWatchListCmd())
	return cmd
}

func newWatchAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <directory>",
		Short: "Start watching a directory, persisting it to the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchAdd(cmd.Context(), cmd, args[0])
		},
	}
}

func newWatchRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <directory>",
		Short: "Stop watching a directory and drop it from the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchRemove(cmd.Context(), cmd, args[0])
		},
	}
}

func newWatchListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List directories currently watched by the running master",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchList(cmd.Context(), cmd)
		},
	}
}

func runWatchAdd(ctx context.Context, cmd *cobra.Command, dir string) error {
	out := newStatus(cmd.OutOrStdout())
	daemonCfg := daemon.DefaultConfig()
	client := daemon.NewClient(daemonCfg)

	if client.IsRunning() {
		if err := client.StartWatching(ctx, dir); err != nil {
			return fmt.Errorf("start watching %s: %w", dir, err)
		}
	} else {
		out.line("master is not running; directory will be watched on next start")
	}

	if err := addConfiguredDirectory(dir); err != nil {
		return fmt.Errorf("persist directory: %w", err)
	}

	out.ok(fmt.Sprintf("watching %s", dir))
	return nil
}

func runWatchRemove(ctx context.Context, cmd *cobra.Command, dir string) error {
	out := newStatus(cmd.OutOrStdout())
	daemonCfg := daemon.DefaultConfig()
	client := daemon.NewClient(daemonCfg)

	if client.IsRunning() {
		if err := client.StopWatching(ctx, dir); err != nil {
			return fmt.Errorf("stop watching %s: %w", dir, err)
		}
	}

	if err := removeConfiguredDirectory(dir); err != nil {
		return fmt.Errorf("persist directory removal: %w", err)
	}

	out.ok(fmt.Sprintf("stopped watching %s", dir))
	return nil
}

func runWatchList(ctx context.Context, cmd *cobra.Command) error {
	out := newStatus(cmd.OutOrStdout())
	daemonCfg := daemon.DefaultConfig()
	client := daemon.NewClient(daemonCfg)

	if !client.IsRunning() {
		return fmt.Errorf("master is not running")
	}

	dirs, err := client.ListWatchedDirectories(ctx)
	if err != nil {
		return fmt.Errorf("list watched directories: %w", err)
	}

	if len(dirs) == 0 {
		out.line("no directories are currently watched")
		return nil
	}
	for _, d := range dirs {
		out.linef("%-8s %-40s pid=%d seen=%d ok=%d failed=%d", d.State, d.Directory, d.PID, d.FilesSeen, d.FilesOK, d.FilesFailed)
	}
	return nil
}

func addConfiguredDirectory(dir string) error {
	cfg, err := loadOrDefaultConfig()
	if err != nil {
		return err
	}
	for _, existing := range cfg.Watch.Directories {
		if existing == dir {
			return nil
		}
	}
	cfg.Watch.Directories = append(cfg.Watch.Directories, dir)
	return cfg.Save(configPath)
}

func removeConfiguredDirectory(dir string) error {
	cfg, err := loadOrDefaultConfig()
	if err != nil {
		return err
	}
	kept := cfg.Watch.Directories[:0]
	for _, existing := range cfg.Watch.Directories {
		if existing != dir {
			kept = append(kept, existing)
		}
	}
	cfg.Watch.Directories = kept
	return cfg.Save(configPath)
}

func loadOrDefaultConfig() (*config.Config, error) {
	if configPath == "" {
		return config.New(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.New(), nil
	}
	return cfg, nil
}
