package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rematrix/internal/api"
)

func newListCommand(cctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cctx.client()
			if err != nil {
				return err
			}

			jobs, err := client.List(cmd.Context(), statuses)
			if errors.Is(err, errDaemonUnreachable) {
				jobs, err = offlineList(cmd, cctx, statuses)
			}
			if err != nil {
				return err
			}

			if cctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), api.JobListResponse{Jobs: jobs})
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					job.Status,
					job.StageLabel,
					valueOrDash(job.ErrorMessage),
					job.UpdatedAt,
				})
			}
			renderTable(cmd, []string{"JOB", "STATUS", "STAGE", "ERROR", "UPDATED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&statuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func offlineList(cmd *cobra.Command, cctx *commandContext, statuses []string) ([]api.JobView, error) {
	st, err := cctx.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "daemon unreachable; reading the store directly")
	return api.NewJobService(st, nil).List(cmd.Context(), statuses...)
}
