package main

import (
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"rematrix/internal/daemon"
	"rematrix/internal/logging"
)

// newDaemonCommand runs the daemon in the foreground, equivalent to
// rematrixd but reachable from the single CLI binary. `daemon` and
// `daemon run` behave identically.
func newDaemonCommand(cctx *commandContext) *cobra.Command {
	run := runDaemon(cctx)
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the pipeline daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE:  run,
	})
	return cmd
}

func runDaemon(cctx *commandContext) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := cctx.ensureConfig()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}

		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			OutputPaths: []string{
				"stdout",
				filepath.Join(cfg.Paths.LogDir, "rematrixd.log"),
			},
		})
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		d, err := daemon.New(cfg, logger)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		logger.Info("daemon shutting down")
		d.Stop()
		return nil
	}
}
