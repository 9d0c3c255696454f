package stageexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"rematrix/internal/logging"
	"rematrix/internal/services"
	"rematrix/internal/stage"
	"rematrix/internal/store"
)

// Quality statuses recorded in artifact metadata.
const (
	QualityGenerated = "generated"
	QualityPassed    = "passed"
	QualityRepaired  = "repaired"
)

// BlobUploader pushes binary payloads to external storage. Uploads are
// best-effort; a failed upload never fails the stage.
type BlobUploader interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

// Executor runs one stage for one job: it gathers upstream artifacts, applies
// the skip checks that make resume idempotent, drives the retry and quality
// loops, and persists the resulting artifact version.
type Executor struct {
	store      *store.Store
	generators map[stage.Stage]stage.Generator
	uploader   BlobUploader
	logger     *slog.Logger

	// sleep is swappable so retry tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs an Executor. The uploader may be nil when blob storage is
// disabled.
func New(st *store.Store, generators map[stage.Stage]stage.Generator, uploader BlobUploader, logger *slog.Logger) *Executor {
	return &Executor{
		store:      st,
		generators: generators,
		uploader:   uploader,
		logger:     logging.NewComponentLogger(logger, "stageexec"),
		sleep:      sleepContext,
	}
}

// Result describes one Run outcome.
type Result struct {
	Artifact *store.Artifact
	Skipped  bool
	// SkipReason explains a skip: "inputs-unchanged", "approved", or
	// "already-advanced".
	SkipReason string
}

// Options tunes a single Run call.
type Options struct {
	// Force regenerates even when the skip checks would keep the stored
	// artifact. Used after a human rejects a gated stage's output.
	Force bool
	// Feedback is forwarded to the generator on forced regeneration.
	Feedback string
}

// Run executes one stage of a job. It is safe to call for stages that already
// ran: the skip checks recognize completed work and return the stored
// artifact instead of regenerating it.
func (e *Executor) Run(ctx context.Context, job *store.Job, def stage.Definition, opts Options) (*Result, error) {
	generator, ok := e.generators[def.Stage]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, string(def.Stage), "run", "no generator registered", nil)
	}

	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, string(def.Stage))
	logger := logging.WithContext(ctx, e.logger)

	upstream, versions, err := e.gatherUpstream(ctx, job.ID, def)
	if err != nil {
		return nil, err
	}

	inputsHash, err := InputsHash(def, job.Markdown, upstream)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, string(def.Stage), "hash inputs", "", err)
	}

	latest, err := e.store.LatestArtifact(ctx, job.ID, def.Stage, def.Output)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, services.Wrap(services.ErrTransient, string(def.Stage), "load artifact", "", err)
	}

	if !opts.Force && latest != nil {
		if reason := e.skipReason(ctx, job, def, latest, inputsHash); reason != "" {
			logger.Info("stage skipped",
				logging.String(logging.FieldEventType, "stage_skip"),
				logging.String("reason", reason),
				logging.Int(logging.FieldVersion, latest.Version))
			return &Result{Artifact: latest, Skipped: true, SkipReason: reason}, nil
		}
	}

	nextVersion := 1
	if latest != nil {
		nextVersion = latest.Version + 1
	}

	input := stage.Input{
		JobID:            job.ID,
		Stage:            def.Stage,
		Markdown:         job.Markdown,
		Upstream:         upstream,
		UpstreamVersions: versions,
		Version:          nextVersion,
		Feedback:         opts.Feedback,
	}
	if !def.IncludeMarkdown {
		input.Markdown = ""
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int(logging.FieldVersion, nextVersion))
	started := time.Now()

	output, err := e.generate(ctx, generator, def, input, logger)
	if err != nil {
		return nil, err
	}

	qualityStatus, repairAttempts := e.runQualityLoop(ctx, generator, def, input, output, logger)

	blobURL := e.uploadPayload(ctx, job.ID, def, output, nextVersion, logger)

	meta := store.ArtifactMeta{
		InputsHash:     inputsHash,
		Model:          output.Provenance.Model,
		Temperature:    output.Provenance.Temperature,
		SchemaVersion:  output.Provenance.SchemaVersion,
		QualityStatus:  qualityStatus,
		RepairAttempts: repairAttempts,
		CreatedBy:      "rematrixd",
		Extra:          output.Meta,
	}
	if len(versions) > 0 {
		meta.SourceVersions = make(map[string]int, len(versions))
		for dep, version := range versions {
			meta.SourceVersions[string(dep)] = version
		}
	}

	artifact, err := e.store.CreateArtifact(ctx, job.ID, def.Stage, def.Output, output.Content, blobURL, meta)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, string(def.Stage), "persist artifact", "", err)
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int(logging.FieldVersion, artifact.Version),
		logging.String("quality_status", qualityStatus),
		logging.Duration("elapsed", time.Since(started)))

	return &Result{Artifact: artifact}, nil
}

// skipReason decides whether stored state already satisfies this stage.
func (e *Executor) skipReason(ctx context.Context, job *store.Job, def stage.Definition, latest *store.Artifact, inputsHash string) string {
	if latest.Meta.InputsHash != "" && latest.Meta.InputsHash == inputsHash {
		return "inputs-unchanged"
	}
	if def.RequiresApproval {
		approval, err := e.store.GetApproval(ctx, job.ID, def.Stage)
		if err == nil && approval.Status == store.ApprovalApproved {
			return "approved"
		}
	}
	if job.CurrentStage.AtOrAfter(def.Stage.Next()) {
		return "already-advanced"
	}
	return ""
}

func (e *Executor) gatherUpstream(ctx context.Context, jobID string, def stage.Definition) (map[stage.Stage]json.RawMessage, map[stage.Stage]int, error) {
	if len(def.DependsOn) == 0 {
		return nil, nil, nil
	}
	upstream := make(map[stage.Stage]json.RawMessage, len(def.DependsOn))
	versions := make(map[stage.Stage]int, len(def.DependsOn))
	for _, dep := range def.DependsOn {
		depDef, ok := stage.DefinitionFor(dep)
		if !ok {
			return nil, nil, services.Wrap(services.ErrConfiguration, string(def.Stage), "gather inputs", fmt.Sprintf("unknown dependency %s", dep), nil)
		}
		artifact, err := e.store.LatestArtifact(ctx, jobID, dep, depDef.Output)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, services.Wrap(services.ErrValidation, string(def.Stage), "gather inputs", fmt.Sprintf("missing %s artifact", dep), nil)
		}
		if err != nil {
			return nil, nil, services.Wrap(services.ErrTransient, string(def.Stage), "gather inputs", "", err)
		}
		upstream[dep] = artifact.Content
		versions[dep] = artifact.Version
	}
	return upstream, versions, nil
}

// generate drives the per-attempt timeout and transient retry loop.
func (e *Executor) generate(ctx context.Context, generator stage.Generator, def stage.Definition, input stage.Input, logger *slog.Logger) (*stage.Output, error) {
	attempts := def.Retry.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		output, err := e.attempt(ctx, generator, def, input)
		if err == nil {
			return output, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTransient, string(def.Stage), "generate", "interrupted", ctx.Err())
		}
		if !services.IsTransient(err) {
			logger.Error("stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.Int("attempt", attempt),
				logging.Error(err))
			return nil, err
		}
		if attempt == attempts {
			break
		}
		delay := def.Retry.Delay(attempt)
		logger.Warn("stage attempt failed, retrying",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err))
		if err := e.sleep(ctx, delay); err != nil {
			return nil, services.Wrap(services.ErrTransient, string(def.Stage), "generate", "interrupted", err)
		}
	}
	logger.Error("stage failed after retries",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.Int("attempts", attempts),
		logging.Error(lastErr))
	return nil, fmt.Errorf("%s: generate: exhausted %d attempts: %w", def.Stage, attempts, lastErr)
}

func (e *Executor) attempt(ctx context.Context, generator stage.Generator, def stage.Definition, input stage.Input) (*stage.Output, error) {
	attemptCtx := ctx
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}
	output, err := generator.Generate(attemptCtx, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, services.Wrap(services.ErrTimeout, string(def.Stage), "generate", fmt.Sprintf("exceeded %s", def.Timeout), err)
		}
		return nil, err
	}
	if output == nil {
		return nil, services.Wrap(services.ErrValidation, string(def.Stage), "generate", "generator returned no output", nil)
	}
	return output, nil
}

// runQualityLoop checks and optionally repairs the candidate output. Quality
// problems degrade to metadata; they never fail the stage.
func (e *Executor) runQualityLoop(ctx context.Context, generator stage.Generator, def stage.Definition, input stage.Input, output *stage.Output, logger *slog.Logger) (string, int) {
	if !def.Quality.Enabled {
		return QualityGenerated, 0
	}
	checker, ok := generator.(stage.QualityChecker)
	if !ok {
		return QualityGenerated, 0
	}
	repairer, canRepair := generator.(stage.Repairer)

	maxRounds := def.Quality.MaxAttempts
	if maxRounds <= 0 {
		maxRounds = 1
	}

	status := QualityGenerated
	repairs := 0
	for round := 1; round <= maxRounds; round++ {
		report, err := checker.Check(ctx, input, output.Content)
		if err != nil {
			logger.Warn("quality check unavailable",
				logging.String(logging.FieldEventType, "quality_check_error"),
				logging.Int("round", round),
				logging.Error(err))
			return status, repairs
		}
		if report.Pass {
			if repairs > 0 {
				return QualityRepaired, repairs
			}
			return QualityPassed, repairs
		}
		logger.Info("quality check flagged issues",
			logging.String(logging.FieldEventType, "quality_check_failed"),
			logging.Int("round", round),
			logging.Int("issues", len(report.Issues)),
			logging.String("summary", report.Summary))

		if !canRepair || round == maxRounds {
			return status, repairs
		}
		repaired, err := repairer.Repair(ctx, input, output.Content, report)
		if err != nil {
			logger.Warn("quality repair failed",
				logging.String(logging.FieldEventType, "quality_repair_error"),
				logging.Int("round", round),
				logging.Error(err))
			return status, repairs
		}
		output.Content = repaired
		repairs++
	}
	return status, repairs
}

// uploadPayload pushes the binary payload to blob storage when configured.
// Failures are logged and swallowed; the artifact row still records the
// local result.
func (e *Executor) uploadPayload(ctx context.Context, jobID string, def stage.Definition, output *stage.Output, version int, logger *slog.Logger) string {
	if e.uploader == nil || len(output.Payload) == 0 {
		return ""
	}
	ext := output.Ext
	if ext == "" {
		ext = ".bin"
	}
	objectPath := path.Join(jobID, string(def.Stage), fmt.Sprintf("v%d%s", version, ext))
	url, err := e.uploader.Upload(ctx, objectPath, output.ContentType, output.Payload)
	if err != nil {
		logger.Warn("blob upload failed",
			logging.String(logging.FieldEventType, "blob_upload_error"),
			logging.String("object_path", objectPath),
			logging.Error(err))
		return ""
	}
	logger.Info("blob uploaded",
		logging.String(logging.FieldEventType, "blob_uploaded"),
		logging.String("blob_url", url))
	return url
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
