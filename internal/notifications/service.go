package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rematrix/internal/config"
	"rematrix/internal/stage"
)

const userAgent = "Rematrix/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyAwaitingApproval(ctx context.Context, jobID string, stg stage.Stage) error
	NotifyJobCompleted(ctx context.Context, jobID string) error
	NotifyJobFailed(ctx context.Context, jobID string, cause error) error
	TestNotification(ctx context.Context) error
}

// Noop returns a Service that discards every event.
func Noop() Service {
	return noopService{}
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyAwaitingApproval(ctx context.Context, jobID string, stg stage.Stage) error {
	data := payload{
		title:    "Rematrix - Approval Needed",
		message:  fmt.Sprintf("Job %s is waiting for %s review\nDecide with: rematrix approve %s %s", jobID, stg, jobID, stg),
		tags:     []string{"rematrix", "approval", "waiting"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID string) error {
	data := payload{
		title:   "Rematrix - Video Ready",
		message: fmt.Sprintf("Job %s finished; the merged video artifact is available", jobID),
		tags:    []string{"rematrix", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID string, cause error) error {
	message := fmt.Sprintf("Job %s failed", jobID)
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(cause.Error()))
	}
	data := payload{
		title:    "Rematrix - Job Failed",
		message:  message,
		tags:     []string{"rematrix", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Rematrix - Test",
		message:  "Notification system test",
		tags:     []string{"rematrix", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyAwaitingApproval(context.Context, string, stage.Stage) error { return nil }
func (noopService) NotifyJobCompleted(context.Context, string) error                  { return nil }
func (noopService) NotifyJobFailed(context.Context, string, error) error              { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
