package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"rematrix/internal/api"
	"rematrix/internal/config"
	"rematrix/internal/generation"
	"rematrix/internal/logging"
	"rematrix/internal/notifications"
	"rematrix/internal/preflight"
	"rematrix/internal/services/blob"
	"rematrix/internal/services/llm"
	"rematrix/internal/stageexec"
	"rematrix/internal/store"
	"rematrix/internal/workflow"
)

// Daemon wires the pipeline together and enforces single-instance execution
// via a lock file. One daemon owns the store; CLI invocations talk to it over
// the HTTP API.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	manager *workflow.Manager
	jobs    *api.JobService
	llm     *llm.Client

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	server  *apiServer
}

// New opens the store and builds the full pipeline: LLM client, generators,
// executor, and workflow manager.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(cfg.LLM)
	generators := generation.Generators(cfg, client, nil, logger)

	var uploader stageexec.BlobUploader
	if blobClient := blob.NewClient(cfg.Blob); blobClient != nil {
		uploader = blobClient
	}

	executor := stageexec.New(st, generators, uploader, logger)
	manager := workflow.NewManager(cfg, st, executor, logger)
	manager.SetNotifier(notifications.NewService(cfg))

	lockPath := filepath.Join(cfg.Paths.LogDir, "rematrixd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		manager:  manager,
		jobs:     api.NewJobService(st, manager),
		llm:      client,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d.jobs, d, logger)
	return d, nil
}

// Start acquires the instance lock, starts the workflow manager, resumes
// jobs left in flight by the previous run, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rematrix daemon instance is already running")
	}

	if err := d.manager.Start(); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.manager.Resume(ctx); err != nil {
		d.logger.Warn("resume failed", logging.Error(err))
	}
	if err := d.server.start(ctx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()))

	// The LLM reachability check can take up to 30s; don't hold up startup.
	go d.logPreflight(ctx)
	return nil
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
}

// Stop halts the API server and the workflow manager, then releases the
// lock. In-flight stages finish their current attempt before runners exit.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.server.stop()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Jobs exposes the API facade for in-process callers.
func (d *Daemon) Jobs() *api.JobService {
	return d.jobs
}

// Addr reports the bound API address, empty before Start.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Healthy verifies the daemon's external dependencies respond.
func (d *Daemon) Healthy(ctx context.Context) error {
	return d.llm.HealthCheck(ctx)
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
