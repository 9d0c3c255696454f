package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rematrix/internal/api"
)

func newShowCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's full detail including artifact versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cctx.client()
			if err != nil {
				return err
			}

			detail, err := client.Show(cmd.Context(), args[0])
			if errors.Is(err, errDaemonUnreachable) {
				detail, err = offlineShow(cmd, cctx, args[0])
			}
			if err != nil {
				return err
			}

			if cctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), detail)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:     %s\n", detail.Job.ID)
			fmt.Fprintf(out, "Status:  %s\n", detail.Job.Status)
			fmt.Fprintf(out, "Stage:   %s\n", detail.Job.StageLabel)
			fmt.Fprintf(out, "Created: %s\n", detail.Job.CreatedAt)
			if detail.Job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:   %s\n", detail.Job.ErrorMessage)
			}

			if len(detail.Approvals) > 0 {
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(detail.Approvals))
				for _, approval := range detail.Approvals {
					rows = append(rows, []string{
						approval.Stage,
						approval.Status,
						valueOrDash(approval.Comment),
						fmt.Sprintf("%d", approval.RejectionCount),
					})
				}
				renderTable(cmd, []string{"STAGE", "DECISION", "COMMENT", "REJECTIONS"}, rows)
			}

			if len(detail.Artifacts) > 0 {
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(detail.Artifacts))
				for _, artifact := range detail.Artifacts {
					rows = append(rows, []string{
						artifact.Stage,
						artifact.Type,
						fmt.Sprintf("v%d", artifact.Version),
						valueOrDash(artifact.Model),
						valueOrDash(artifact.QualityStatus),
						valueOrDash(artifact.BlobURL),
					})
				}
				renderTable(cmd, []string{"STAGE", "TYPE", "VERSION", "MODEL", "QUALITY", "BLOB"}, rows)
			}
			return nil
		},
	}
}

func offlineShow(cmd *cobra.Command, cctx *commandContext, jobID string) (api.JobDetail, error) {
	st, err := cctx.openStore()
	if err != nil {
		return api.JobDetail{}, err
	}
	defer st.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "daemon unreachable; reading the store directly")
	return api.NewJobService(st, nil).Describe(cmd.Context(), jobID)
}
