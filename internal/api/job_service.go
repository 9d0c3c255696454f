package api

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"rematrix/internal/services"
	"rematrix/internal/stage"
	"rematrix/internal/store"
)

// Orchestrator is the slice of the workflow manager the API needs.
type Orchestrator interface {
	StartJob(ctx context.Context, id, markdown string) (*store.Job, error)
	Approve(ctx context.Context, jobID string, stg stage.Stage, comment string) error
	Reject(ctx context.Context, jobID string, stg stage.Stage, reason string) error
}

// JobReader abstracts job persistence reads for API queries.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*store.Job, error)
	ListJobs(ctx context.Context, statuses ...store.Status) ([]*store.Job, error)
	ListApprovals(ctx context.Context, jobID string) ([]*store.Approval, error)
	ListArtifacts(ctx context.Context, jobID string) ([]*store.Artifact, error)
}

// JobService exposes the pipeline operations as API DTOs.
type JobService struct {
	store        JobReader
	orchestrator Orchestrator
}

// NewJobService constructs a JobService.
func NewJobService(store JobReader, orchestrator Orchestrator) *JobService {
	return &JobService{store: store, orchestrator: orchestrator}
}

// Submit starts (or idempotently re-submits) a job. A blank id gets a
// generated one.
func (s *JobService) Submit(ctx context.Context, id, markdown string) (JobView, error) {
	if strings.TrimSpace(markdown) == "" {
		return JobView{}, services.Wrap(services.ErrValidation, "", "submit", "markdown is required", nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	job, err := s.orchestrator.StartJob(ctx, id, markdown)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// Approve records the approval for a gated stage and wakes the job.
func (s *JobService) Approve(ctx context.Context, jobID, stageName, comment string) error {
	stg, err := parseStage(stageName)
	if err != nil {
		return err
	}
	return s.orchestrator.Approve(ctx, jobID, stg, comment)
}

// Reject records a rejection with the reviewer's reason; the stage is
// regenerated with that reason as feedback.
func (s *JobService) Reject(ctx context.Context, jobID, stageName, reason string) error {
	stg, err := parseStage(stageName)
	if err != nil {
		return err
	}
	return s.orchestrator.Reject(ctx, jobID, stg, reason)
}

// Status reports job state plus every recorded gate decision.
func (s *JobService) Status(ctx context.Context, jobID string) (StatusView, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	approvals, err := s.store.ListApprovals(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}

	view := StatusView{Job: FromJob(job)}
	for _, approval := range approvals {
		view.Approvals = append(view.Approvals, FromApproval(approval))
	}
	if job.Status == store.StatusWaitingApproval {
		view.PendingGate = string(job.CurrentStage)
	}
	return view, nil
}

// List returns jobs filtered by status, newest first per store ordering.
func (s *JobService) List(ctx context.Context, statuses ...string) ([]JobView, error) {
	var parsed []store.Status
	for _, status := range statuses {
		trimmed := strings.ToUpper(strings.TrimSpace(status))
		if trimmed == "" {
			continue
		}
		parsed = append(parsed, store.Status(trimmed))
	}
	jobs, err := s.store.ListJobs(ctx, parsed...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe returns the full detail for one job: state, gate decisions, and
// artifact versions.
func (s *JobService) Describe(ctx context.Context, jobID string) (JobDetail, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return JobDetail{}, err
	}
	approvals, err := s.store.ListApprovals(ctx, jobID)
	if err != nil {
		return JobDetail{}, err
	}
	artifacts, err := s.store.ListArtifacts(ctx, jobID)
	if err != nil {
		return JobDetail{}, err
	}

	detail := JobDetail{Job: FromJob(job)}
	for _, approval := range approvals {
		detail.Approvals = append(detail.Approvals, FromApproval(approval))
	}
	for _, artifact := range artifacts {
		detail.Artifacts = append(detail.Artifacts, FromArtifact(artifact))
	}
	return detail, nil
}

func parseStage(value string) (stage.Stage, error) {
	stg, ok := stage.Parse(value)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "", "parse stage", "unknown stage "+value, nil)
	}
	return stg, nil
}

// IsNotFound reports whether an error means the referenced job is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, services.ErrNotFound)
}
