package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rematrix/internal/stage"
)

// ApprovalStatus records the review state of a gated stage. PENDING means the
// stage finished generating and is waiting on a human.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Approval is the persisted review state for one (job, stage) gate. Rejections
// overwrite the row and bump the counter; an approval is terminal for the
// gate.
type Approval struct {
	JobID          string
	Stage          stage.Stage
	Status         ApprovalStatus
	Comment        string
	RejectionCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const approvalColumns = "job_id, stage, status, comment, rejection_count, created_at, updated_at"

func scanApproval(scanner interface{ Scan(dest ...any) error }) (*Approval, error) {
	var (
		jobID      string
		stageStr   string
		statusStr  string
		comment    sql.NullString
		rejections int
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&jobID, &stageStr, &statusStr, &comment, &rejections, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	approval := &Approval{
		JobID:          jobID,
		Stage:          stage.Stage(stageStr),
		Status:         ApprovalStatus(statusStr),
		Comment:        comment.String,
		RejectionCount: rejections,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		approval.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		approval.UpdatedAt = updated
	}
	return approval, nil
}

// RecordApproval persists a human approval for a gated stage.
func (s *Store) RecordApproval(ctx context.Context, jobID string, stg stage.Stage, comment string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO approvals (job_id, stage, status, comment, rejection_count, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)
         ON CONFLICT(job_id, stage) DO UPDATE SET
             status = excluded.status,
             comment = excluded.comment,
             updated_at = excluded.updated_at`,
		jobID, stg, ApprovalApproved, nullableString(comment), timestamp, timestamp,
	)
	if err != nil {
		return fmt.Errorf("record approval: %w", err)
	}
	return nil
}

// RecordRejection persists a rejection with its reason and bumps the
// rejection counter for the gate.
func (s *Store) RecordRejection(ctx context.Context, jobID string, stg stage.Stage, reason string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO approvals (job_id, stage, status, comment, rejection_count, created_at, updated_at)
         VALUES (?, ?, ?, ?, 1, ?, ?)
         ON CONFLICT(job_id, stage) DO UPDATE SET
             status = excluded.status,
             comment = excluded.comment,
             rejection_count = approvals.rejection_count + 1,
             updated_at = excluded.updated_at`,
		jobID, stg, ApprovalRejected, nullableString(reason), timestamp, timestamp,
	)
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

// MarkApprovalPending records that a gated stage finished generating and is
// waiting on a human. A decision always wins over this write: the insert
// yields to any existing row, and an existing row is only moved back to
// PENDING from a rejection the runner already consumed, identified by
// seenRejections. The comment and counter survive so rejection history is
// never lost.
func (s *Store) MarkApprovalPending(ctx context.Context, jobID string, stg stage.Stage, seenRejections int) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO approvals (job_id, stage, status, comment, rejection_count, created_at, updated_at)
         VALUES (?, ?, ?, NULL, 0, ?, ?)
         ON CONFLICT(job_id, stage) DO UPDATE SET
             status = excluded.status,
             updated_at = excluded.updated_at
         WHERE approvals.status = ? AND approvals.rejection_count = ?`,
		jobID, stg, ApprovalPending, timestamp, timestamp, ApprovalRejected, seenRejections,
	)
	if err != nil {
		return fmt.Errorf("mark approval pending: %w", err)
	}
	return nil
}

// GetApproval returns the review state for a gate, or ErrNotFound when the
// gate has not been reached and nothing was pre-recorded.
func (s *Store) GetApproval(ctx context.Context, jobID string, stg stage.Stage) (*Approval, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+approvalColumns+" FROM approvals WHERE job_id = ? AND stage = ?",
		jobID, stg,
	)
	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return approval, nil
}

// ListApprovals returns every gate decision recorded for a job.
func (s *Store) ListApprovals(ctx context.Context, jobID string) ([]*Approval, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+approvalColumns+" FROM approvals WHERE job_id = ? ORDER BY stage ASC",
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}
