package workflow_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"rematrix/internal/config"
	"rematrix/internal/services"
	"rematrix/internal/stage"
	"rematrix/internal/stageexec"
	"rematrix/internal/store"
	"rematrix/internal/testsupport"
	"rematrix/internal/workflow"
)

// stubGenerator produces deterministic JSON and counts invocations per stage.
type stubGenerator struct {
	mu       sync.Mutex
	stage    stage.Stage
	calls    int
	feedback []string
	fail     func(call int) error
}

func (g *stubGenerator) Generate(ctx context.Context, in stage.Input) (*stage.Output, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	if in.Feedback != "" {
		g.feedback = append(g.feedback, in.Feedback)
	}
	fail := g.fail
	g.mu.Unlock()

	if fail != nil {
		if err := fail(call); err != nil {
			return nil, err
		}
	}
	content := json.RawMessage(fmt.Sprintf(`{"stage":%q,"version":%d}`, g.stage, in.Version))
	return &stage.Output{Content: content}, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type harness struct {
	cfg     *config.Config
	store   *store.Store
	manager *workflow.Manager
	gens    map[stage.Stage]*stubGenerator
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	return attachManager(t, cfg, st)
}

// attachManager builds a manager (and fresh generators) over an existing
// store, simulating a daemon process.
func attachManager(t *testing.T, cfg *config.Config, st *store.Store) *harness {
	t.Helper()
	gens := make(map[stage.Stage]*stubGenerator)
	registered := make(map[stage.Stage]stage.Generator)
	for _, s := range stage.Pipeline() {
		gen := &stubGenerator{stage: s}
		gens[s] = gen
		registered[s] = gen
	}
	executor := stageexec.New(st, registered, nil, nil)
	manager := workflow.NewManager(cfg, st, executor, nil)
	if err := manager.Start(); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	t.Cleanup(manager.Stop)
	return &harness{cfg: cfg, store: st, manager: manager, gens: gens}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitForStatus(t *testing.T, jobID string, status store.Status) *store.Job {
	t.Helper()
	var job *store.Job
	waitFor(t, fmt.Sprintf("job %s status %s", jobID, status), func() bool {
		loaded, err := h.store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = loaded
		return loaded.Status == status
	})
	return job
}

func (h *harness) waitForGate(t *testing.T, jobID string, stg stage.Stage) {
	t.Helper()
	waitFor(t, fmt.Sprintf("job %s parked at %s", jobID, stg), func() bool {
		job, err := h.store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		return job.Status == store.StatusWaitingApproval && job.CurrentStage == stg
	})
}

func TestPipelineRunsToCompletionWithApprovals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.manager.StartJob(ctx, "job-1", "# Intro to Raft"); err != nil {
		t.Fatalf("start job: %v", err)
	}

	h.waitForGate(t, "job-1", stage.Plan)
	if err := h.manager.Approve(ctx, "job-1", stage.Plan, ""); err != nil {
		t.Fatalf("approve plan: %v", err)
	}

	h.waitForGate(t, "job-1", stage.Pages)
	if err := h.manager.Approve(ctx, "job-1", stage.Pages, "ship it"); err != nil {
		t.Fatalf("approve pages: %v", err)
	}

	job := h.waitForStatus(t, "job-1", store.StatusCompleted)
	if job.CurrentStage != stage.Done {
		t.Fatalf("final stage = %s", job.CurrentStage)
	}

	for _, s := range stage.Pipeline() {
		def, _ := stage.DefinitionFor(s)
		artifact, err := h.store.LatestArtifact(ctx, "job-1", s, def.Output)
		if err != nil {
			t.Fatalf("missing %s artifact: %v", s, err)
		}
		if artifact.Version != 1 {
			t.Fatalf("%s version = %d", s, artifact.Version)
		}
	}
}

func TestRejectionRegeneratesWithFeedbackThenApproves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Plan)

	if err := h.manager.Reject(ctx, "job-1", stage.Plan, "needs a security section"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Runner regenerates and parks at the gate again with a new version.
	waitFor(t, "plan v2", func() bool {
		artifact, err := h.store.LatestArtifact(ctx, "job-1", stage.Plan, stage.ArtifactJSON)
		return err == nil && artifact.Version == 2
	})
	h.waitForGate(t, "job-1", stage.Plan)

	planGen := h.gens[stage.Plan]
	if got := planGen.callCount(); got != 2 {
		t.Fatalf("plan generator calls = %d", got)
	}
	planGen.mu.Lock()
	feedback := append([]string{}, planGen.feedback...)
	planGen.mu.Unlock()
	if len(feedback) != 1 || feedback[0] != "needs a security section" {
		t.Fatalf("feedback = %v", feedback)
	}

	if err := h.manager.Approve(ctx, "job-1", stage.Plan, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Pages)

	// Downstream stages consumed the approved v2 plan.
	outline, err := h.store.LatestArtifact(ctx, "job-1", stage.Outline, stage.ArtifactJSON)
	if err != nil {
		t.Fatal(err)
	}
	if outline.Meta.SourceVersions["PLAN"] != 2 {
		t.Fatalf("outline consumed plan v%d", outline.Meta.SourceVersions["PLAN"])
	}
}

func TestRejectionLimitFailsJob(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxRejections(1))
	ctx := context.Background()

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Plan)

	if err := h.manager.Reject(ctx, "job-1", stage.Plan, "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	job := h.waitForStatus(t, "job-1", store.StatusFailed)
	if job.ErrorMessage == "" {
		t.Fatal("expected failure message")
	}
}

func TestTransientExhaustionFailsJobWithoutArtifact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.gens[stage.Plan].fail = func(call int) error {
		return services.Wrap(services.ErrTransient, "PLAN", "generate", "llm unreachable", nil)
	}

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}

	job := h.waitForStatus(t, "job-1", store.StatusFailed)
	if job.ErrorMessage == "" {
		t.Fatal("expected failure message")
	}
	if got := h.gens[stage.Plan].callCount(); got != 3 {
		t.Fatalf("plan attempts = %d", got)
	}
	if _, err := h.store.LatestArtifact(ctx, "job-1", stage.Plan, stage.ArtifactJSON); err == nil {
		t.Fatal("failed stage must not persist an artifact")
	}
}

func TestTransientFailureRecoversWithinBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.gens[stage.Plan].fail = func(call int) error {
		if call == 1 {
			return services.Wrap(services.ErrTransient, "PLAN", "generate", "blip", nil)
		}
		return nil
	}

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Plan)
	if got := h.gens[stage.Plan].callCount(); got != 2 {
		t.Fatalf("plan attempts = %d", got)
	}
}

func TestRestartResumesWithoutRedoingWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	first := attachManager(t, cfg, st)
	ctx := context.Background()

	if _, err := first.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	first.waitForGate(t, "job-1", stage.Plan)
	if err := first.manager.Approve(ctx, "job-1", stage.Plan, ""); err != nil {
		t.Fatalf("approve plan: %v", err)
	}
	first.waitForGate(t, "job-1", stage.Pages)

	// Simulate a daemon restart: stop the first process, attach a second.
	first.manager.Stop()
	second := attachManager(t, cfg, st)
	if err := second.manager.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}

	second.waitForGate(t, "job-1", stage.Pages)
	if err := second.manager.Approve(ctx, "job-1", stage.Pages, ""); err != nil {
		t.Fatalf("approve pages: %v", err)
	}
	second.waitForStatus(t, "job-1", store.StatusCompleted)

	// Everything up to the gate was satisfied from stored artifacts.
	for _, s := range []stage.Stage{stage.Plan, stage.Outline, stage.Storyboard, stage.Narration, stage.Pages} {
		if got := second.gens[s].callCount(); got != 0 {
			t.Fatalf("%s regenerated %d times after restart", s, got)
		}
		def, _ := stage.DefinitionFor(s)
		artifact, err := st.LatestArtifact(ctx, "job-1", s, def.Output)
		if err != nil {
			t.Fatalf("missing %s artifact: %v", s, err)
		}
		if artifact.Version != 1 {
			t.Fatalf("%s version = %d after restart", s, artifact.Version)
		}
	}
}

func TestOfflineApprovalAppliesOnResume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	first := attachManager(t, cfg, st)
	ctx := context.Background()

	if _, err := first.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	first.waitForGate(t, "job-1", stage.Plan)
	first.manager.Stop()

	// Decision lands while no runner is alive.
	if err := st.RecordApproval(ctx, "job-1", stage.Plan, "approved offline"); err != nil {
		t.Fatalf("record approval: %v", err)
	}

	second := attachManager(t, cfg, st)
	if err := second.manager.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	second.waitForGate(t, "job-1", stage.Pages)
}

func TestResubmittingJobIDDoesNotRestartIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Plan)

	job, err := h.manager.StartJob(ctx, "job-1", "# Different markdown")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if job.Markdown != "# Topic" {
		t.Fatalf("markdown overwritten: %q", job.Markdown)
	}
	if got := h.gens[stage.Plan].callCount(); got != 1 {
		t.Fatalf("plan generator calls after resubmit = %d", got)
	}
}

func TestParkedGateExposesPendingApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Plan)

	approval, err := h.store.GetApproval(ctx, "job-1", stage.Plan)
	if err != nil {
		t.Fatalf("get approval while parked: %v", err)
	}
	if approval.Status != store.ApprovalPending {
		t.Fatalf("status while parked = %s", approval.Status)
	}

	// After a rejection regenerates the output the gate reads PENDING
	// again, keeping the rejection count.
	if err := h.manager.Reject(ctx, "job-1", stage.Plan, "more depth"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	waitFor(t, "plan v2", func() bool {
		artifact, err := h.store.LatestArtifact(ctx, "job-1", stage.Plan, stage.ArtifactJSON)
		return err == nil && artifact.Version == 2
	})
	h.waitForGate(t, "job-1", stage.Plan)

	approval, err = h.store.GetApproval(ctx, "job-1", stage.Plan)
	if err != nil {
		t.Fatalf("get approval after regeneration: %v", err)
	}
	if approval.Status != store.ApprovalPending || approval.RejectionCount != 1 {
		t.Fatalf("approval after regeneration = %s count %d", approval.Status, approval.RejectionCount)
	}
}

func TestDecisionRefusedAfterGatePassed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Plan)
	if err := h.manager.Approve(ctx, "job-1", stage.Plan, ""); err != nil {
		t.Fatalf("approve plan: %v", err)
	}
	h.waitForGate(t, "job-1", stage.Pages)

	if err := h.manager.Reject(ctx, "job-1", stage.Plan, "changed my mind"); err == nil {
		t.Fatal("expected error rejecting a gate the job moved past")
	}
	if err := h.manager.Approve(ctx, "job-1", stage.Plan, "again"); err == nil {
		t.Fatal("expected error approving a gate the job moved past")
	}

	approval, err := h.store.GetApproval(ctx, "job-1", stage.Plan)
	if err != nil {
		t.Fatalf("get approval: %v", err)
	}
	if approval.Status != store.ApprovalApproved {
		t.Fatalf("historical decision rewritten: %s", approval.Status)
	}
}

func TestApproveValidatesGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.manager.StartJob(ctx, "job-1", "# Topic"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	if err := h.manager.Approve(ctx, "job-1", stage.Outline, ""); err == nil {
		t.Fatal("expected error approving a non-gated stage")
	}
	if err := h.manager.Approve(ctx, "missing", stage.Plan, ""); err == nil {
		t.Fatal("expected error approving unknown job")
	}
	if err := h.manager.Reject(ctx, "job-1", stage.Plan, "  "); err == nil {
		t.Fatal("expected error rejecting without a reason")
	}
}
