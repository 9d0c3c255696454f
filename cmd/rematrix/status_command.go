package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rematrix/internal/api"
)

func newStatusCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's stage, status, and gate decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cctx.client()
			if err != nil {
				return err
			}

			status, err := client.Status(cmd.Context(), args[0])
			if errors.Is(err, errDaemonUnreachable) {
				status, err = offlineStatus(cmd, cctx, args[0])
			}
			if err != nil {
				return err
			}

			if cctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:     %s\n", status.Job.ID)
			fmt.Fprintf(out, "Status:  %s\n", status.Job.Status)
			fmt.Fprintf(out, "Stage:   %s\n", status.Job.StageLabel)
			if status.PendingGate != "" {
				fmt.Fprintf(out, "Waiting: approval for %s (rematrix approve %s %s)\n",
					status.PendingGate, status.Job.ID, status.PendingGate)
			}
			if status.Job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:   %s\n", status.Job.ErrorMessage)
			}

			if len(status.Approvals) > 0 {
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(status.Approvals))
				for _, approval := range status.Approvals {
					rows = append(rows, []string{
						approval.Stage,
						approval.Status,
						valueOrDash(approval.Comment),
						fmt.Sprintf("%d", approval.RejectionCount),
						approval.UpdatedAt,
					})
				}
				renderTable(cmd, []string{"STAGE", "DECISION", "COMMENT", "REJECTIONS", "UPDATED"}, rows)
			}
			return nil
		},
	}
}

func offlineStatus(cmd *cobra.Command, cctx *commandContext, jobID string) (api.StatusView, error) {
	st, err := cctx.openStore()
	if err != nil {
		return api.StatusView{}, err
	}
	defer st.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "daemon unreachable; reading the store directly")
	return api.NewJobService(st, nil).Status(cmd.Context(), jobID)
}
