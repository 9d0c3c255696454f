package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rematrix/internal/stage"
)

// Status captures the lifecycle state of a job.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusRunning         Status = "RUNNING"
	StatusWaitingApproval Status = "WAITING_APPROVAL"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Job is one markdown-to-video request moving through the pipeline.
type Job struct {
	ID            string
	Status        Status
	CurrentStage  stage.Stage
	Markdown      string
	ErrorMessage  string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const jobColumns = "id, status, current_stage, markdown, error_message, last_heartbeat, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		statusStr    string
		currentStage string
		markdown     string
		errorMessage sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &statusStr, &currentStage, &markdown, &errorMessage, &heartbeatRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Status:       Status(statusStr),
		CurrentStage: stage.Stage(currentStage),
		Markdown:     markdown,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

// EnsureJob inserts a job at the start of the pipeline. Submitting an ID that
// already exists is a no-op; the existing row is returned untouched so
// repeated submissions stay idempotent.
func (s *Store) EnsureJob(ctx context.Context, id, markdown string) (*Job, bool, error) {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, status, current_stage, stage_ord, markdown, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		id,
		StatusDraft,
		stage.Plan,
		stage.Plan.Index(),
		markdown,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, affected > 0, nil
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status, newest first. With no statuses it
// returns everything.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]byte, 0, len(statuses)*2)
		for i, status := range statuses {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, status)
		}
		query += " WHERE status IN (" + string(placeholders) + ")"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Advance moves a job's current stage forward. The stage ordinal guard makes
// the write monotonic: a late or duplicate advance to an earlier stage is
// silently absorbed, so the recorded stage never moves backward.
func (s *Store) Advance(ctx context.Context, id string, next stage.Stage) error {
	ord := next.Index()
	if ord == 0 {
		return fmt.Errorf("advance job %s: unknown stage %q", id, next)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET current_stage = ?, stage_ord = ?, updated_at = ?
         WHERE id = ? AND stage_ord <= ?`,
		next,
		ord,
		timestamp,
		id,
		ord,
	)
	if err != nil {
		return fmt.Errorf("advance job: %w", err)
	}
	return nil
}

// SetStatus updates a job's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		"UPDATE jobs SET status = ?, error_message = NULL, updated_at = ? WHERE id = ?",
		status, timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with its message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		"UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
		StatusFailed, nullableString(message), timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// MarkCompleted records pipeline completion and parks the stage at DONE.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, current_stage = ?, stage_ord = ?, error_message = NULL, updated_at = ?
         WHERE id = ?`,
		StatusCompleted, stage.Done, stage.Done.Index(), timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// UpdateHeartbeat stamps liveness for a job the daemon is actively working.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		"UPDATE jobs SET last_heartbeat = ? WHERE id = ?",
		timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ClearHeartbeat removes the liveness stamp once a job stops executing.
func (s *Store) ClearHeartbeat(ctx context.Context, id string) error {
	_, err := s.execWithRetry(ctx, "UPDATE jobs SET last_heartbeat = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clear heartbeat: %w", err)
	}
	return nil
}

// ResumableJobs returns jobs a restarted daemon should pick back up: anything
// in-flight or parked at an approval gate.
func (s *Store) ResumableJobs(ctx context.Context) ([]*Job, error) {
	return s.ListJobs(ctx, StatusDraft, StatusRunning, StatusWaitingApproval)
}

// StaleJobs returns running jobs whose heartbeat is older than the cutoff.
// These are casualties of a crashed or wedged worker and are safe to reclaim.
func (s *Store) StaleJobs(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?",
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
