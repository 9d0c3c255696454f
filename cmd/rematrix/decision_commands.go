package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rematrix/internal/stage"
)

func newApproveCommand(cctx *commandContext) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "approve <job-id> <stage>",
		Short: "Approve a gated stage so the job continues",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, stg, err := decisionArgs(args)
			if err != nil {
				return err
			}

			client, err := cctx.client()
			if err != nil {
				return err
			}
			err = client.Approve(cmd.Context(), jobID, string(stg), comment)
			if errors.Is(err, errDaemonUnreachable) {
				if offlineErr := recordDecisionOffline(cmd.Context(), cctx, jobID, stg, true, comment); offlineErr != nil {
					return offlineErr
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Daemon unreachable; approval for %s/%s recorded in the store and applies on next resume\n",
					jobID, stg)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Approved %s for job %s\n", stg, jobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "Optional reviewer comment")
	return cmd
}

func newRejectCommand(cctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <job-id> <stage> --reason <text>",
		Short: "Reject a gated stage; it is regenerated with your feedback",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, stg, err := decisionArgs(args)
			if err != nil {
				return err
			}
			if strings.TrimSpace(reason) == "" {
				return errors.New("--reason is required: the feedback drives regeneration")
			}

			client, err := cctx.client()
			if err != nil {
				return err
			}
			err = client.Reject(cmd.Context(), jobID, string(stg), reason)
			if errors.Is(err, errDaemonUnreachable) {
				if offlineErr := recordDecisionOffline(cmd.Context(), cctx, jobID, stg, false, reason); offlineErr != nil {
					return offlineErr
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Daemon unreachable; rejection for %s/%s recorded in the store and applies on next resume\n",
					jobID, stg)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s for job %s; stage will regenerate\n", stg, jobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the output is unacceptable (required)")
	return cmd
}

func decisionArgs(args []string) (string, stage.Stage, error) {
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return "", "", errors.New("job id is required")
	}
	stg, ok := stage.Parse(args[1])
	if !ok {
		return "", "", fmt.Errorf("unknown stage %q", args[1])
	}
	def, ok := stage.DefinitionFor(stg)
	if !ok || !def.RequiresApproval {
		return "", "", fmt.Errorf("stage %s has no approval gate", stg)
	}
	return jobID, stg, nil
}

// recordDecisionOffline writes the gate decision straight into the store.
// Decisions are persisted before the daemon acts on them, so the next resume
// picks this up exactly as a live approval would.
func recordDecisionOffline(ctx context.Context, cctx *commandContext, jobID string, stg stage.Stage, approve bool, text string) error {
	st, err := cctx.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.CurrentStage != stg && job.CurrentStage.AtOrAfter(stg) {
		return fmt.Errorf("job %s has already advanced past %s", jobID, stg)
	}
	if approve {
		return st.RecordApproval(ctx, jobID, stg, text)
	}
	return st.RecordRejection(ctx, jobID, stg, text)
}
