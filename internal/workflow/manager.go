package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rematrix/internal/config"
	"rematrix/internal/logging"
	"rematrix/internal/notifications"
	"rematrix/internal/services"
	"rematrix/internal/stage"
	"rematrix/internal/stageexec"
	"rematrix/internal/store"
)

// Manager owns job execution: one goroutine per active job walks the stage
// registry in order, parks at approval gates, and persists every transition
// so a restart can pick up exactly where the previous process stopped.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	executor *stageexec.Executor
	logger   *slog.Logger
	gate     *approvalGate
	notifier notifications.Service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runners map[string]struct{}
	started bool
}

// NewManager wires a Manager. Call Start before submitting jobs.
func NewManager(cfg *config.Config, st *store.Store, executor *stageexec.Executor, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    st,
		executor: executor,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		gate:     newApprovalGate(),
		notifier: notifications.Noop(),
		runners:  make(map[string]struct{}),
	}
}

// SetNotifier replaces the event notifier. Call before Start.
func (m *Manager) SetNotifier(notifier notifications.Service) {
	if notifier != nil {
		m.notifier = notifier
	}
}

// Start prepares the manager for job execution and launches the stale-job
// reclaim loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("workflow manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.started = true

	m.wg.Add(1)
	go m.reclaimLoop()
	return nil
}

// Stop cancels all runners and waits for them to unwind.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.mu.Unlock()
	m.wg.Wait()

	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
}

// StartJob registers a job and begins (or resumes) executing it. Submitting
// an existing job ID again does not restart completed work; the stored job is
// simply picked up from its current stage.
func (m *Manager) StartJob(ctx context.Context, id, markdown string) (*store.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "", "start job", "job id required", nil)
	}

	job, created, err := m.store.EnsureJob(ctx, id, markdown)
	if err != nil {
		return nil, err
	}
	if !created && (job.Status == store.StatusCompleted || job.Status == store.StatusFailed) {
		return job, nil
	}
	m.launch(job.ID)
	return job, nil
}

// Resume scans the store for unfinished jobs and relaunches their runners.
// Called once at daemon boot.
func (m *Manager) Resume(ctx context.Context) error {
	jobs, err := m.store.ResumableJobs(ctx)
	if err != nil {
		return fmt.Errorf("scan resumable jobs: %w", err)
	}
	for _, job := range jobs {
		m.logger.Info("resuming job",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldStage, string(job.CurrentStage)),
			logging.String("status", string(job.Status)))
		m.launch(job.ID)
	}
	return nil
}

// Approve records a human approval for a gated stage and wakes the runner.
// The decision is persisted first, so an approval issued while the daemon is
// down still takes effect on the next restart.
func (m *Manager) Approve(ctx context.Context, jobID string, stg stage.Stage, comment string) error {
	if err := m.checkGate(ctx, jobID, stg); err != nil {
		return err
	}
	if err := m.store.RecordApproval(ctx, jobID, stg, comment); err != nil {
		return err
	}
	m.gate.Signal(jobID, stg)
	m.logger.Info("stage approved",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldStage, string(stg)))
	return nil
}

// Reject records a rejection with its reason and wakes the runner, which
// regenerates the stage output and parks at the gate again.
func (m *Manager) Reject(ctx context.Context, jobID string, stg stage.Stage, reason string) error {
	if err := m.checkGate(ctx, jobID, stg); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return services.Wrap(services.ErrValidation, string(stg), "reject", "rejection reason required", nil)
	}
	if err := m.store.RecordRejection(ctx, jobID, stg, reason); err != nil {
		return err
	}
	m.gate.Signal(jobID, stg)
	m.logger.Info("stage rejected",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldStage, string(stg)),
		logging.String("reason", reason))
	return nil
}

func (m *Manager) checkGate(ctx context.Context, jobID string, stg stage.Stage) error {
	def, ok := stage.DefinitionFor(stg)
	if !ok || !def.RequiresApproval {
		return services.Wrap(services.ErrValidation, string(stg), "gate", "stage is not an approval gate", nil)
	}
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return services.Wrap(services.ErrNotFound, string(stg), "gate", fmt.Sprintf("job %s not found", jobID), nil)
		}
		return err
	}
	// A gate the job has moved past will never be consulted again; rewriting
	// its row would falsify history. Deciding a future gate ahead of time is
	// allowed: the runner reads the persisted row when it arrives.
	if job.CurrentStage != stg && job.CurrentStage.AtOrAfter(stg) {
		return services.Wrap(services.ErrValidation, string(stg), "gate",
			fmt.Sprintf("job %s has already advanced past %s", jobID, stg), nil)
	}
	return nil
}

func (m *Manager) launch(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	if _, active := m.runners[jobID]; active {
		return
	}
	m.runners[jobID] = struct{}{}
	m.wg.Add(1)
	go m.runJob(jobID)
}

func (m *Manager) release(jobID string) {
	m.mu.Lock()
	delete(m.runners, jobID)
	m.mu.Unlock()
	m.gate.Forget(jobID)
}

// runJob walks the pipeline for one job from its persisted stage to DONE.
func (m *Manager) runJob(jobID string) {
	defer m.wg.Done()
	defer m.release(jobID)

	ctx := services.WithJobID(m.ctx, jobID)
	logger := logging.WithContext(ctx, m.logger)

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("load job failed", logging.Error(err))
		return
	}
	if job.Status == store.StatusCompleted || job.Status == store.StatusFailed {
		return
	}

	if err := m.store.SetStatus(ctx, jobID, store.StatusRunning); err != nil {
		logger.Error("mark running failed", logging.Error(err))
		return
	}

	stopHeartbeat := m.startHeartbeat(ctx, jobID, logger)
	defer stopHeartbeat()

	for _, def := range stage.Definitions() {
		job, err = m.store.GetJob(ctx, jobID)
		if err != nil {
			logger.Error("reload job failed", logging.Error(err))
			return
		}

		if _, err := m.executor.Run(ctx, job, def, stageexec.Options{}); err != nil {
			m.failJob(jobID, def.Stage, err, logger)
			return
		}

		if def.RequiresApproval {
			proceed, err := m.awaitApproval(ctx, job, def, logger)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("runner stopping at approval gate",
						logging.String(logging.FieldStage, string(def.Stage)))
					return
				}
				m.failJob(jobID, def.Stage, err, logger)
				return
			}
			if !proceed {
				return
			}
		}

		if err := m.store.Advance(ctx, jobID, def.Stage.Next()); err != nil {
			m.failJob(jobID, def.Stage, err, logger)
			return
		}
	}

	if err := m.store.MarkCompleted(ctx, jobID); err != nil {
		logger.Error("mark completed failed", logging.Error(err))
		return
	}
	logger.Info("job completed", logging.String(logging.FieldEventType, "job_complete"))
	if err := m.notifier.NotifyJobCompleted(ctx, jobID); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
}

// awaitApproval parks the runner until a human decides the gated stage.
// Rejections regenerate the output with the reviewer's feedback and park
// again; the loop ends on approval, on the rejection limit, or on shutdown.
// It returns false when the job was failed and the runner should stop.
func (m *Manager) awaitApproval(ctx context.Context, job *store.Job, def stage.Definition, logger *slog.Logger) (bool, error) {
	for {
		approval, err := m.store.GetApproval(ctx, job.ID, def.Stage)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, err
		}

		if approval != nil {
			switch approval.Status {
			case store.ApprovalApproved:
				return true, nil
			case store.ApprovalRejected:
				if limit := m.cfg.Workflow.MaxRejections; limit > 0 && approval.RejectionCount >= limit {
					m.failJob(job.ID, def.Stage,
						fmt.Errorf("rejected %d times, limit is %d", approval.RejectionCount, limit), logger)
					return false, nil
				}
				logger.Info("regenerating after rejection",
					logging.String(logging.FieldStage, string(def.Stage)),
					logging.Int("rejections", approval.RejectionCount))
				if _, err := m.executor.Run(ctx, job, def, stageexec.Options{
					Force:    true,
					Feedback: approval.Comment,
				}); err != nil {
					return false, err
				}
			}
		}

		// Surface the gate to reviewers before parking. Skipped when the
		// row is already PENDING after a restart; a decision racing in
		// between the read above and this write is preserved by the store.
		if approval == nil || approval.Status == store.ApprovalRejected {
			seen := 0
			if approval != nil {
				seen = approval.RejectionCount
			}
			if err := m.store.MarkApprovalPending(ctx, job.ID, def.Stage, seen); err != nil {
				return false, err
			}
		}

		if err := m.store.SetStatus(ctx, job.ID, store.StatusWaitingApproval); err != nil {
			return false, err
		}
		logger.Info("waiting for approval",
			logging.String(logging.FieldEventType, "awaiting_approval"),
			logging.String(logging.FieldStage, string(def.Stage)))
		if err := m.notifier.NotifyAwaitingApproval(ctx, job.ID, def.Stage); err != nil {
			logger.Warn("approval notification failed", logging.Error(err))
		}

		if err := m.gate.Wait(ctx, job.ID, def.Stage); err != nil {
			return false, err
		}

		if err := m.store.SetStatus(ctx, job.ID, store.StatusRunning); err != nil {
			return false, err
		}
	}
}

func (m *Manager) failJob(jobID string, stg stage.Stage, cause error, logger *slog.Logger) {
	logger.Error("job failed",
		logging.String(logging.FieldEventType, "job_failure"),
		logging.String(logging.FieldStage, string(stg)),
		logging.Error(cause))

	// Persist with a fresh context so shutdown does not lose the failure.
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.MarkFailed(persistCtx, jobID, cause.Error()); err != nil {
		logger.Error("persist failure state failed", logging.Error(err))
	}
	if err := m.notifier.NotifyJobFailed(persistCtx, jobID, cause); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}

// startHeartbeat stamps liveness while a runner works a job so a future
// process can tell abandoned jobs from active ones.
func (m *Manager) startHeartbeat(ctx context.Context, jobID string, logger *slog.Logger) func() {
	interval := time.Duration(m.cfg.Workflow.HeartbeatInterval) * time.Second
	hbCtx, cancel := context.WithCancel(ctx)

	if err := m.store.UpdateHeartbeat(ctx, jobID); err != nil {
		logger.Warn("heartbeat update failed", logging.Error(err))
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.store.UpdateHeartbeat(hbCtx, jobID); err != nil {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			case <-hbCtx.Done():
				clearCtx, clearCancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := m.store.ClearHeartbeat(clearCtx, jobID); err != nil {
					logger.Warn("heartbeat clear failed", logging.Error(err))
				}
				clearCancel()
				return
			}
		}
	}()
	return cancel
}

// reclaimLoop relaunches runners for jobs whose heartbeat went stale, which
// happens when a previous process died mid-stage.
func (m *Manager) reclaimLoop() {
	defer m.wg.Done()
	timeout := time.Duration(m.cfg.Workflow.HeartbeatTimeout) * time.Second
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-timeout)
			stale, err := m.store.StaleJobs(m.ctx, cutoff)
			if err != nil {
				m.logger.Warn("stale job scan failed", logging.Error(err))
				continue
			}
			for _, job := range stale {
				m.mu.Lock()
				_, active := m.runners[job.ID]
				m.mu.Unlock()
				if active {
					continue
				}
				m.logger.Info("reclaiming stale job",
					logging.String(logging.FieldJobID, job.ID),
					logging.String(logging.FieldStage, string(job.CurrentStage)))
				m.launch(job.ID)
			}
		case <-m.ctx.Done():
			return
		}
	}
}
