package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"rematrix/internal/stage"
	"rematrix/internal/store"
	"rematrix/internal/testsupport"
)

func TestEnsureJobIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job, created, err := st.EnsureJob(ctx, "job-1", "# Title")
	if err != nil {
		t.Fatalf("ensure job: %v", err)
	}
	if !created {
		t.Fatal("expected first submission to create the job")
	}
	if job.Status != store.StatusDraft || job.CurrentStage != stage.Plan {
		t.Fatalf("unexpected initial state: %s/%s", job.Status, job.CurrentStage)
	}

	again, created, err := st.EnsureJob(ctx, "job-1", "# Different")
	if err != nil {
		t.Fatalf("ensure job again: %v", err)
	}
	if created {
		t.Fatal("expected duplicate submission to be a no-op")
	}
	if again.Markdown != "# Title" {
		t.Fatalf("duplicate submission overwrote markdown: %q", again.Markdown)
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")

	if err := st.Advance(ctx, "job-1", stage.Storyboard); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// A replayed advance to an earlier stage must be absorbed.
	if err := st.Advance(ctx, "job-1", stage.Outline); err != nil {
		t.Fatalf("advance backward: %v", err)
	}

	job, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.CurrentStage != stage.Storyboard {
		t.Fatalf("stage moved backward: %s", job.CurrentStage)
	}

	// Re-advancing to the same stage stays put.
	if err := st.Advance(ctx, "job-1", stage.Storyboard); err != nil {
		t.Fatalf("advance same: %v", err)
	}
	job, _ = st.GetJob(ctx, "job-1")
	if job.CurrentStage != stage.Storyboard {
		t.Fatalf("stage changed on duplicate advance: %s", job.CurrentStage)
	}
}

func TestAdvanceRejectsUnknownStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, st, "job-1", "# Title")

	if err := st.Advance(context.Background(), "job-1", stage.Stage("BOGUS")); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestArtifactVersionsAreAppendOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")

	first, err := st.CreateArtifact(ctx, "job-1", stage.Plan, stage.ArtifactJSON,
		json.RawMessage(`{"rev":1}`), "", store.ArtifactMeta{InputsHash: "aaa"})
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("first version = %d", first.Version)
	}

	second, err := st.CreateArtifact(ctx, "job-1", stage.Plan, stage.ArtifactJSON,
		json.RawMessage(`{"rev":2}`), "", store.ArtifactMeta{InputsHash: "bbb"})
	if err != nil {
		t.Fatalf("create artifact v2: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("second version = %d", second.Version)
	}

	latest, err := st.LatestArtifact(ctx, "job-1", stage.Plan, stage.ArtifactJSON)
	if err != nil {
		t.Fatalf("latest artifact: %v", err)
	}
	if latest.Version != 2 || latest.Meta.InputsHash != "bbb" {
		t.Fatalf("latest = v%d hash %q", latest.Version, latest.Meta.InputsHash)
	}

	all, err := st.ListArtifacts(ctx, "job-1")
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("artifact count = %d", len(all))
	}
	if string(all[0].Content) != `{"rev":1}` {
		t.Fatalf("v1 content mutated: %s", all[0].Content)
	}
}

func TestLatestArtifactNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, st, "job-1", "# Title")

	_, err := st.LatestArtifact(context.Background(), "job-1", stage.Merge, stage.ArtifactVideo)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprovalLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")

	if _, err := st.GetApproval(ctx, "job-1", stage.Plan); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before decision, got %v", err)
	}

	if err := st.RecordRejection(ctx, "job-1", stage.Plan, "too shallow"); err != nil {
		t.Fatalf("record rejection: %v", err)
	}
	if err := st.RecordRejection(ctx, "job-1", stage.Plan, "still too shallow"); err != nil {
		t.Fatalf("record second rejection: %v", err)
	}

	approval, err := st.GetApproval(ctx, "job-1", stage.Plan)
	if err != nil {
		t.Fatalf("get approval: %v", err)
	}
	if approval.Status != store.ApprovalRejected || approval.RejectionCount != 2 {
		t.Fatalf("approval = %s count %d", approval.Status, approval.RejectionCount)
	}
	if approval.Comment != "still too shallow" {
		t.Fatalf("comment = %q", approval.Comment)
	}

	if err := st.RecordApproval(ctx, "job-1", stage.Plan, "looks good"); err != nil {
		t.Fatalf("record approval: %v", err)
	}
	approval, err = st.GetApproval(ctx, "job-1", stage.Plan)
	if err != nil {
		t.Fatalf("get approval after approve: %v", err)
	}
	if approval.Status != store.ApprovalApproved {
		t.Fatalf("status = %s", approval.Status)
	}
	if approval.RejectionCount != 2 {
		t.Fatalf("rejection history lost: %d", approval.RejectionCount)
	}
}

func TestMarkApprovalPendingYieldsToDecisions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")

	if err := st.MarkApprovalPending(ctx, "job-1", stage.Plan, 0); err != nil {
		t.Fatalf("mark pending: %v", err)
	}
	approval, err := st.GetApproval(ctx, "job-1", stage.Plan)
	if err != nil {
		t.Fatalf("get approval: %v", err)
	}
	if approval.Status != store.ApprovalPending {
		t.Fatalf("status = %s", approval.Status)
	}

	// A decision that already landed stays put.
	if err := st.RecordApproval(ctx, "job-1", stage.Plan, "fine"); err != nil {
		t.Fatalf("record approval: %v", err)
	}
	if err := st.MarkApprovalPending(ctx, "job-1", stage.Plan, 0); err != nil {
		t.Fatalf("mark pending after approval: %v", err)
	}
	approval, _ = st.GetApproval(ctx, "job-1", stage.Plan)
	if approval.Status != store.ApprovalApproved {
		t.Fatalf("approval clobbered: %s", approval.Status)
	}

	// Regenerating from a rejection returns the row to PENDING with its
	// history intact.
	if err := st.RecordRejection(ctx, "job-1", stage.Pages, "wrong layout"); err != nil {
		t.Fatalf("record rejection: %v", err)
	}
	if err := st.MarkApprovalPending(ctx, "job-1", stage.Pages, 1); err != nil {
		t.Fatalf("mark pending after rejection: %v", err)
	}
	approval, _ = st.GetApproval(ctx, "job-1", stage.Pages)
	if approval.Status != store.ApprovalPending || approval.RejectionCount != 1 {
		t.Fatalf("approval = %s count %d", approval.Status, approval.RejectionCount)
	}
	if approval.Comment != "wrong layout" {
		t.Fatalf("comment = %q", approval.Comment)
	}

	// A rejection newer than the one the caller consumed wins.
	if err := st.RecordRejection(ctx, "job-1", stage.Pages, "still wrong"); err != nil {
		t.Fatalf("record second rejection: %v", err)
	}
	if err := st.MarkApprovalPending(ctx, "job-1", stage.Pages, 1); err != nil {
		t.Fatalf("mark pending with stale count: %v", err)
	}
	approval, _ = st.GetApproval(ctx, "job-1", stage.Pages)
	if approval.Status != store.ApprovalRejected || approval.RejectionCount != 2 {
		t.Fatalf("raced rejection lost: %s count %d", approval.Status, approval.RejectionCount)
	}
}

func TestMarkCompletedParksAtDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")

	if err := st.MarkCompleted(ctx, "job-1"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	job, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != store.StatusCompleted || job.CurrentStage != stage.Done {
		t.Fatalf("job = %s/%s", job.Status, job.CurrentStage)
	}
}

func TestMarkFailedRecordsMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")

	if err := st.MarkFailed(ctx, "job-1", "llm unreachable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	job, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != store.StatusFailed || job.ErrorMessage != "llm unreachable" {
		t.Fatalf("job = %s %q", job.Status, job.ErrorMessage)
	}
}

func TestStaleJobsHonorsCutoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")

	if err := st.SetStatus(ctx, "job-1", store.StatusRunning); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := st.UpdateHeartbeat(ctx, "job-1"); err != nil {
		t.Fatalf("update heartbeat: %v", err)
	}

	stale, err := st.StaleJobs(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("stale jobs: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh heartbeat reported stale: %d", len(stale))
	}

	stale, err = st.StaleJobs(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("stale jobs future cutoff: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "job-1" {
		t.Fatalf("expected job-1 stale, got %v", stale)
	}

	if err := st.ClearHeartbeat(ctx, "job-1"); err != nil {
		t.Fatalf("clear heartbeat: %v", err)
	}
	stale, err = st.StaleJobs(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("stale jobs after clear: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("cleared heartbeat still stale: %d", len(stale))
	}
}

func TestResumableJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, st, "pending", "# a")
	testsupport.NewJob(t, st, "running", "# b")
	testsupport.NewJob(t, st, "waiting", "# c")
	testsupport.NewJob(t, st, "done", "# d")
	testsupport.NewJob(t, st, "failed", "# e")

	if err := st.SetStatus(ctx, "running", store.StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := st.SetStatus(ctx, "waiting", store.StatusWaitingApproval); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkCompleted(ctx, "done"); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkFailed(ctx, "failed", "boom"); err != nil {
		t.Fatal(err)
	}

	resumable, err := st.ResumableJobs(ctx)
	if err != nil {
		t.Fatalf("resumable jobs: %v", err)
	}
	ids := map[string]bool{}
	for _, job := range resumable {
		ids[job.ID] = true
	}
	if len(ids) != 3 || !ids["pending"] || !ids["running"] || !ids["waiting"] {
		t.Fatalf("resumable = %v", ids)
	}
}

func TestReopenSeesPersistedState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewJob(t, st, "job-1", "# Title")
	if err := st.Advance(ctx, "job-1", stage.Narration); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := st.CreateArtifact(ctx, "job-1", stage.Outline, stage.ArtifactJSON,
		json.RawMessage(`{"sections":[]}`), "", store.ArtifactMeta{InputsHash: "h1"}); err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := store.OpenPath(st.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	job, err := reopened.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job after reopen: %v", err)
	}
	if job.CurrentStage != stage.Narration {
		t.Fatalf("stage after reopen = %s", job.CurrentStage)
	}
	artifact, err := reopened.LatestArtifact(ctx, "job-1", stage.Outline, stage.ArtifactJSON)
	if err != nil {
		t.Fatalf("latest after reopen: %v", err)
	}
	if artifact.Meta.InputsHash != "h1" {
		t.Fatalf("meta after reopen = %+v", artifact.Meta)
	}
}
