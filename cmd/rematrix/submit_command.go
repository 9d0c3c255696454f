package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newSubmitCommand(cctx *commandContext) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "submit <markdown-file>",
		Short: "Submit a markdown document for video generation",
		Long: "Submit reads a markdown file (or stdin when the argument is \"-\") and\n" +
			"starts a pipeline job for it. Re-submitting an existing job id resumes\n" +
			"that job instead of starting over.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := readMarkdown(cmd, args[0])
			if err != nil {
				return err
			}

			client, err := cctx.client()
			if err != nil {
				return err
			}
			job, err := client.Submit(cmd.Context(), jobID, markdown)
			if err != nil {
				if errors.Is(err, errDaemonUnreachable) {
					return fmt.Errorf("cannot submit: %w (start it with `rematrix daemon` or rematrixd)", err)
				}
				return err
			}

			if cctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s submitted (stage %s, status %s)\n",
				job.ID, job.CurrentStage, job.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "id", "", "Job identifier (generated when empty)")
	return cmd
}

func readMarkdown(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read markdown: %w", err)
	}
	return string(data), nil
}
