package llm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rematrix/internal/config"
	"rematrix/internal/services"
	"rematrix/internal/services/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return llm.NewClient(config.LLM{
		APIKey:         "test-key",
		BaseURL:        server.URL,
		Model:          "test/model",
		Temperature:    0.5,
		TimeoutSeconds: 5,
	})
}

func TestCompleteJSONReturnsContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"Plan\"}"}}]}`))
	})

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if content != `{"title":"Plan"}` {
		t.Fatalf("content = %q", content)
	}
}

func TestCompleteJSONRequiresPrompts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be called")
	})
	if _, err := client.CompleteJSON(context.Background(), "", "user"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.CompleteJSON(context.Background(), "system", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompleteJSONClassifiesServerErrorsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestCompleteJSONClassifiesAuthErrorsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCompleteJSONEmptyContentIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`))
	})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), "finish_reason") {
		t.Fatalf("error missing finish reason: %v", err)
	}
}

func TestCompleteJSONToleratesDeltaSchema(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"delta":{"content":"{\"ok\":true}"}}]}`))
	})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("content = %q", content)
	}
}

func TestForStageOverrides(t *testing.T) {
	client := llm.NewClient(config.LLM{
		APIKey:      "test-key",
		BaseURL:     "http://localhost",
		Model:       "base/model",
		Temperature: 0.7,
	})

	temp := 0.2
	derived := client.ForStage("fancy/model", &temp)
	if derived.Model() != "fancy/model" || derived.Temperature() != 0.2 {
		t.Fatalf("derived = %s/%v", derived.Model(), derived.Temperature())
	}
	if client.Model() != "base/model" || client.Temperature() != 0.7 {
		t.Fatalf("base mutated: %s/%v", client.Model(), client.Temperature())
	}

	same := client.ForStage("", nil)
	if same.Model() != "base/model" || same.Temperature() != 0.7 {
		t.Fatalf("no-op override changed values: %s/%v", same.Model(), same.Temperature())
	}
}

func TestHealthCheck(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	type doc struct {
		Title string `json:"title"`
	}
	cases := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"plain", `{"title":"a"}`, "a", false},
		{"fenced", "```json\n{\"title\":\"b\"}\n```", "b", false},
		{"fenced no lang", "```\n{\"title\":\"c\"}\n```", "c", false},
		{"prose wrapped", `Here is the result: {"title":"d"} hope it helps`, "d", false},
		{"empty", "", "", true},
		{"not json", "sorry, I cannot", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var parsed doc
			err := llm.DecodeLLMJSON(tc.payload, &parsed)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if parsed.Title != tc.want {
				t.Fatalf("title = %q, want %q", parsed.Title, tc.want)
			}
		})
	}
}
