package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rematrix/internal/stage"
	"rematrix/internal/testsupport"
)

func TestNewServiceWithoutTopicIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	service := NewService(cfg)
	if _, ok := service.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", service)
	}
	if err := service.NotifyJobCompleted(context.Background(), "job-1"); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
}

func TestNotifyAwaitingApproval(t *testing.T) {
	var (
		gotTitle    string
		gotTags     string
		gotPriority string
		gotBody     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := NewService(cfg)
	if err := service.NotifyAwaitingApproval(context.Background(), "job-9", stage.Pages); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if gotTitle != "Rematrix - Approval Needed" {
		t.Errorf("title = %q", gotTitle)
	}
	if !strings.Contains(gotTags, "approval") {
		t.Errorf("tags = %q", gotTags)
	}
	if gotPriority != "high" {
		t.Errorf("priority = %q", gotPriority)
	}
	if !strings.Contains(gotBody, "job-9") || !strings.Contains(gotBody, "PAGES") {
		t.Errorf("body = %q", gotBody)
	}
}

func TestNotifyReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic blocked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := NewService(cfg)
	err := service.NotifyJobFailed(context.Background(), "job-9", context.DeadlineExceeded)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
