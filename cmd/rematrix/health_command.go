package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon and language model availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cctx.client()
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context()); err != nil {
				if errors.Is(err, errDaemonUnreachable) {
					return fmt.Errorf("daemon is not running: %w", err)
				}
				return err
			}
			if cctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "ok"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon is healthy")
			return nil
		},
	}
}
