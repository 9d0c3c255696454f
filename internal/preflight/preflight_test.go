package preflight

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"rematrix/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := CheckDirectoryAccess("Work directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for %s, got %+v", dir, result)
	}

	missing := CheckDirectoryAccess("Work directory", filepath.Join(dir, "nope"))
	if missing.Passed {
		t.Fatalf("expected failure for missing directory")
	}
	if !strings.Contains(missing.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", missing.Detail)
	}
}

func TestRunAllReportsMissingAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("expected preflight results")
	}

	var llmResult *Result
	for i := range results {
		if results[i].Name == "LLM API" {
			llmResult = &results[i]
		}
	}
	if llmResult == nil {
		t.Fatal("missing LLM API result")
	}
	if llmResult.Passed || !strings.Contains(llmResult.Detail, "API key missing") {
		t.Fatalf("unexpected LLM result: %+v", llmResult)
	}
}

func TestRunAllChecksDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	for _, result := range results {
		switch result.Name {
		case "Data directory", "Work directory", "Log directory", "Workspace free space":
			if !result.Passed {
				t.Errorf("%s failed: %s", result.Name, result.Detail)
			}
		}
	}
}
