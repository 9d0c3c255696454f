package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rematrix/internal/stage"
)

// ArtifactMeta carries provenance recorded alongside every artifact version.
type ArtifactMeta struct {
	InputsHash     string         `json:"inputsHash,omitempty"`
	Model          string         `json:"model,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	SchemaVersion  int            `json:"schemaVersion,omitempty"`
	QualityStatus  string         `json:"qualityStatus,omitempty"`
	RepairAttempts int            `json:"repairAttempts,omitempty"`
	SourceVersions map[string]int `json:"sourceVersions,omitempty"`
	CreatedBy      string         `json:"createdBy,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Artifact is one immutable versioned stage output. New generations append
// rows with a higher version; existing rows are never updated.
type Artifact struct {
	ID        int64
	JobID     string
	Stage     stage.Stage
	Type      stage.ArtifactType
	Version   int
	Content   json.RawMessage
	BlobURL   string
	Meta      ArtifactMeta
	CreatedAt time.Time
}

const artifactColumns = "id, job_id, stage, type, version, content, blob_url, meta_json, created_at"

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*Artifact, error) {
	var (
		id         int64
		jobID      string
		stageStr   string
		typeStr    string
		version    int
		content    string
		blobURL    sql.NullString
		metaJSON   string
		createdRaw string
	)
	if err := scanner.Scan(&id, &jobID, &stageStr, &typeStr, &version, &content, &blobURL, &metaJSON, &createdRaw); err != nil {
		return nil, err
	}

	artifact := &Artifact{
		ID:      id,
		JobID:   jobID,
		Stage:   stage.Stage(stageStr),
		Type:    stage.ArtifactType(typeStr),
		Version: version,
		Content: json.RawMessage(content),
		BlobURL: blobURL.String,
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &artifact.Meta); err != nil {
			return nil, fmt.Errorf("decode artifact meta: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		artifact.CreatedAt = created
	}
	return artifact, nil
}

// CreateArtifact appends a new artifact version for the given job and stage.
// Version numbering is computed inside the insert so concurrent writers
// cannot collide.
func (s *Store) CreateArtifact(ctx context.Context, jobID string, stg stage.Stage, typ stage.ArtifactType, content json.RawMessage, blobURL string, meta ArtifactMeta) (*Artifact, error) {
	ctx = ensureContext(ctx)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact meta: %w", err)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	var lastID int64
	err = retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(
			ctx,
			`INSERT INTO artifacts (job_id, stage, type, version, content, blob_url, meta_json, created_at)
             VALUES (?, ?, ?,
                 (SELECT COALESCE(MAX(version), 0) + 1 FROM artifacts WHERE job_id = ? AND stage = ? AND type = ?),
                 ?, ?, ?, ?)`,
			jobID, stg, typ,
			jobID, stg, typ,
			string(content), nullableString(blobURL), string(metaJSON), timestamp,
		)
		if execErr != nil {
			return execErr
		}
		lastID, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+artifactColumns+" FROM artifacts WHERE id = ?", lastID)
	artifact, err := scanArtifact(row)
	if err != nil {
		return nil, fmt.Errorf("reload artifact: %w", err)
	}
	return artifact, nil
}

// LatestArtifact returns the highest version for a job, stage, and type, or
// ErrNotFound when the stage has produced nothing yet.
func (s *Store) LatestArtifact(ctx context.Context, jobID string, stg stage.Stage, typ stage.ArtifactType) (*Artifact, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+artifactColumns+" FROM artifacts WHERE job_id = ? AND stage = ? AND type = ? ORDER BY version DESC LIMIT 1",
		jobID, stg, typ,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest artifact: %w", err)
	}
	return artifact, nil
}

// ListArtifacts returns every artifact version for a job in stage then
// version order.
func (s *Store) ListArtifacts(ctx context.Context, jobID string) ([]*Artifact, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+artifactColumns+" FROM artifacts WHERE job_id = ? ORDER BY id ASC",
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}
