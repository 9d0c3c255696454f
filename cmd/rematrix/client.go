package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rematrix/internal/api"
)

// errDaemonUnreachable marks connection-level failures so commands can fall
// back to operating on the store directly.
var errDaemonUnreachable = errors.New("daemon unreachable")

type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return err
		}
		return fmt.Errorf("%w: %v", errDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var payload struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Error != "" {
			return fmt.Errorf("daemon: %s", payload.Error)
		}
		return fmt.Errorf("daemon: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *apiClient) Submit(ctx context.Context, id, markdown string) (api.JobView, error) {
	var job api.JobView
	err := a.do(ctx, http.MethodPost, "/api/jobs", api.SubmitRequest{ID: id, Markdown: markdown}, &job)
	return job, err
}

func (a *apiClient) Approve(ctx context.Context, jobID, stage, comment string) error {
	return a.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/approve",
		api.DecisionRequest{Stage: stage, Comment: comment}, nil)
}

func (a *apiClient) Reject(ctx context.Context, jobID, stage, reason string) error {
	return a.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/reject",
		api.DecisionRequest{Stage: stage, Reason: reason}, nil)
}

func (a *apiClient) Status(ctx context.Context, jobID string) (api.StatusView, error) {
	var status api.StatusView
	err := a.do(ctx, http.MethodGet, "/api/jobs/"+jobID+"/status", nil, &status)
	return status, err
}

func (a *apiClient) List(ctx context.Context, statuses []string) ([]api.JobView, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, status := range statuses {
			query.Add("status", status)
		}
		path += "?" + query.Encode()
	}
	var list api.JobListResponse
	if err := a.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Jobs, nil
}

func (a *apiClient) Show(ctx context.Context, jobID string) (api.JobDetail, error) {
	var detail api.JobDetail
	err := a.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &detail)
	return detail, err
}

func (a *apiClient) Health(ctx context.Context) error {
	var payload struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/health", nil, &payload); err != nil {
		return err
	}
	if payload.Status != "ok" {
		return fmt.Errorf("daemon degraded: %s", payload.Error)
	}
	return nil
}
