package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunCommand(cctx *commandContext) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "run <markdown-file>",
		Short: "Submit a markdown document and follow it to the next gate",
		Long: "Run submits like `rematrix submit` and then polls the daemon, printing\n" +
			"stage transitions. It returns when the job parks at an approval gate,\n" +
			"completes, or fails.",
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
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s submitted\n", job.ID)

			return followJob(cmd, cctx, client, job.ID)
		},
	}

	cmd.Flags().StringVar(&jobID, "id", "", "Job identifier (generated when empty)")
	return cmd
}

// followJob polls until the job needs a human or reaches a terminal state.
func followJob(cmd *cobra.Command, cctx *commandContext, client *apiClient, jobID string) error {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastStage string
	for {
		status, err := client.Status(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		job := status.Job

		if job.CurrentStage != lastStage {
			fmt.Fprintf(out, "Stage %s (%s)\n", job.StageLabel, job.Status)
			lastStage = job.CurrentStage
		}

		switch {
		case status.PendingGate != "":
			if cctx.jsonOutput() {
				return writeJSON(out, status)
			}
			fmt.Fprintf(out, "Waiting for %s review. Decide with:\n", status.PendingGate)
			fmt.Fprintf(out, "  rematrix approve %s %s\n", jobID, status.PendingGate)
			fmt.Fprintf(out, "  rematrix reject %s %s --reason \"...\"\n", jobID, status.PendingGate)
			return nil
		case job.Status == "COMPLETED":
			if cctx.jsonOutput() {
				return writeJSON(out, status)
			}
			fmt.Fprintf(out, "Job %s completed\n", jobID)
			return nil
		case job.Status == "FAILED":
			if cctx.jsonOutput() {
				if err := writeJSON(out, status); err != nil {
					return err
				}
			}
			return fmt.Errorf("job %s failed: %s", jobID, job.ErrorMessage)
		}

		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}
