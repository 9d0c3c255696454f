package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rematrix/internal/api"
	"rematrix/internal/stage"
	"rematrix/internal/store"
)

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeTestConfig points all paths at temp directories and binds the API to a
// port nothing listens on, so commands exercise the offline store fallback.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
data_dir = %q
work_dir = %q
log_dir = %q
api_bind = "127.0.0.1:1"
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "work"),
		filepath.Join(base, "logs"))

	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func seedJob(t *testing.T, configPath, jobID string) {
	t.Helper()

	st := openTestStore(t, configPath)
	defer st.Close()
	if _, _, err := st.EnsureJob(context.Background(), jobID, "# Doc"); err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func openTestStore(t *testing.T, configPath string) *store.Store {
	t.Helper()

	cctx := newCommandContext(new(string), new(string), &configPath, new(bool))
	st, err := cctx.openStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func TestSubmitOverHTTP(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotToken = r.Header.Get("Authorization")

		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode submit request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.JobView{
			ID:           req.ID,
			Status:       "RUNNING",
			CurrentStage: "PLAN",
		})
	}))
	defer server.Close()

	markdownPath := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(markdownPath, []byte("# Hello"), 0o644); err != nil {
		t.Fatalf("write markdown: %v", err)
	}

	configPath := writeTestConfig(t)
	stdout, _, err := runCommand(t,
		"--config", configPath,
		"--server", server.URL,
		"--token", "secret",
		"--json",
		"submit", markdownPath, "--id", "job-42")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotToken != "Bearer secret" {
		t.Fatalf("authorization header = %q", gotToken)
	}

	var job api.JobView
	if err := json.Unmarshal([]byte(stdout), &job); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if job.ID != "job-42" || job.CurrentStage != "PLAN" {
		t.Fatalf("unexpected job view: %+v", job)
	}
}

func TestRunFollowsToGate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.JobView{ID: "job-3", Status: "RUNNING", CurrentStage: "PLAN"})
	})
	mux.HandleFunc("/api/jobs/job-3/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.StatusView{
			Job:         api.JobView{ID: "job-3", Status: "WAITING_APPROVAL", CurrentStage: "PLAN", StageLabel: "Plan"},
			PendingGate: "PLAN",
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	markdownPath := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(markdownPath, []byte("# Hello"), 0o644); err != nil {
		t.Fatalf("write markdown: %v", err)
	}

	configPath := writeTestConfig(t)
	stdout, _, err := runCommand(t,
		"--config", configPath,
		"--server", server.URL,
		"run", markdownPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "Waiting for PLAN review") {
		t.Fatalf("expected gate notice, got %q", stdout)
	}
	if !strings.Contains(stdout, "rematrix approve job-3 PLAN") {
		t.Fatalf("expected approve hint, got %q", stdout)
	}
}

func TestApproveFallsBackToStore(t *testing.T) {
	configPath := writeTestConfig(t)
	seedJob(t, configPath, "job-1")

	stdout, _, err := runCommand(t, "--config", configPath,
		"approve", "job-1", "PLAN", "--comment", "looks good")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !strings.Contains(stdout, "recorded in the store") {
		t.Fatalf("expected offline notice, got %q", stdout)
	}

	st := openTestStore(t, configPath)
	defer st.Close()
	approval, err := st.GetApproval(context.Background(), "job-1", stage.Plan)
	if err != nil {
		t.Fatalf("get approval: %v", err)
	}
	if approval.Status != store.ApprovalApproved || approval.Comment != "looks good" {
		t.Fatalf("unexpected approval: %+v", approval)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	configPath := writeTestConfig(t)

	_, _, err := runCommand(t, "--config", configPath, "reject", "job-1", "PLAN")
	if err == nil || !strings.Contains(err.Error(), "--reason") {
		t.Fatalf("expected reason error, got %v", err)
	}
}

func TestDecisionRejectsUngatedStage(t *testing.T) {
	configPath := writeTestConfig(t)

	_, _, err := runCommand(t, "--config", configPath, "approve", "job-1", "TTS")
	if err == nil || !strings.Contains(err.Error(), "no approval gate") {
		t.Fatalf("expected gate error, got %v", err)
	}

	_, _, err = runCommand(t, "--config", configPath, "approve", "job-1", "BOGUS")
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestStatusFallsBackToStore(t *testing.T) {
	configPath := writeTestConfig(t)
	seedJob(t, configPath, "job-7")

	stdout, stderr, err := runCommand(t, "--config", configPath, "--json", "status", "job-7")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(stderr, "daemon unreachable") {
		t.Fatalf("expected fallback notice on stderr, got %q", stderr)
	}

	var status api.StatusView
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, stdout)
	}
	if status.Job.ID != "job-7" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestListFallsBackToStore(t *testing.T) {
	configPath := writeTestConfig(t)
	seedJob(t, configPath, "job-a")
	seedJob(t, configPath, "job-b")

	stdout, _, err := runCommand(t, "--config", configPath, "--json", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var list api.JobListResponse
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("decode list: %v\n%s", err, stdout)
	}
	if len(list.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list.Jobs))
	}
}

func TestConfigValidateCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	stdout, _, err := runCommand(t, "config", "validate", "--path", configPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stdout, "is valid") {
		t.Fatalf("unexpected output: %q", stdout)
	}
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	if _, _, err := runCommand(t, "config", "init", "--path", target); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, _, err := runCommand(t, "config", "validate", "--path", target); err != nil {
		t.Fatalf("generated sample invalid: %v", err)
	}
}
