package api

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"rematrix/internal/stage"
	"rematrix/internal/store"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobView describes a job in a transport-friendly format.
type JobView struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CurrentStage string `json:"currentStage"`
	StageLabel   string `json:"stageLabel"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// ApprovalView is one gate decision, including the rejection history count.
type ApprovalView struct {
	Stage          string `json:"stage"`
	Status         string `json:"status"`
	Comment        string `json:"comment,omitempty"`
	RejectionCount int    `json:"rejectionCount"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// ArtifactView summarizes one artifact version without its content body.
type ArtifactView struct {
	Stage         string `json:"stage"`
	Type          string `json:"type"`
	Version       int    `json:"version"`
	BlobURL       string `json:"blobUrl,omitempty"`
	Model         string `json:"model,omitempty"`
	QualityStatus string `json:"qualityStatus,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// StatusView answers the status query: job state plus the decision recorded
// at every approval gate. PendingGate names the gate the job is parked at.
type StatusView struct {
	Job         JobView        `json:"job"`
	Approvals   []ApprovalView `json:"approvals"`
	PendingGate string         `json:"pendingGate,omitempty"`
}

// JobDetail is a full job description for the show operation.
type JobDetail struct {
	Job       JobView        `json:"job"`
	Approvals []ApprovalView `json:"approvals"`
	Artifacts []ArtifactView `json:"artifacts"`
}

// SubmitRequest is the submit payload: markdown plus an optional caller-chosen
// job id for idempotent resubmission.
type SubmitRequest struct {
	ID       string `json:"id,omitempty"`
	Markdown string `json:"markdown"`
}

// DecisionRequest carries an approve or reject call for a gated stage.
type DecisionRequest struct {
	Stage   string `json:"stage"`
	Comment string `json:"comment,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

var stageLabelCaser = cases.Title(language.English)

// StageLabel renders a stage constant as a human-facing label, e.g.
// STORYBOARD -> Storyboard. Acronym stages stay upper-case.
func StageLabel(s stage.Stage) string {
	if s == stage.TTS {
		return string(s)
	}
	return stageLabelCaser.String(strings.ToLower(string(s)))
}

// FromJob converts a stored job into its API view.
func FromJob(job *store.Job) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		ID:           job.ID,
		Status:       string(job.Status),
		CurrentStage: string(job.CurrentStage),
		StageLabel:   StageLabel(job.CurrentStage),
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}

// FromJobs converts a stored job list, preserving order.
func FromJobs(jobs []*store.Job) []JobView {
	if len(jobs) == 0 {
		return nil
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, FromJob(job))
	}
	return views
}

// FromApproval converts a stored approval row.
func FromApproval(approval *store.Approval) ApprovalView {
	if approval == nil {
		return ApprovalView{}
	}
	return ApprovalView{
		Stage:          string(approval.Stage),
		Status:         string(approval.Status),
		Comment:        approval.Comment,
		RejectionCount: approval.RejectionCount,
		UpdatedAt:      formatTime(approval.UpdatedAt),
	}
}

// FromArtifact converts a stored artifact row, dropping the content body.
func FromArtifact(artifact *store.Artifact) ArtifactView {
	if artifact == nil {
		return ArtifactView{}
	}
	return ArtifactView{
		Stage:         string(artifact.Stage),
		Type:          string(artifact.Type),
		Version:       artifact.Version,
		BlobURL:       artifact.BlobURL,
		Model:         artifact.Meta.Model,
		QualityStatus: artifact.Meta.QualityStatus,
		CreatedAt:     formatTime(artifact.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
