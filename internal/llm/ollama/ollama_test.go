package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/llm"
	"github.com/rpenyav/ia-backend/pkg/llm/llmtest"
)

// mockOllama serves /api/chat as newline-delimited JSON and /api/tags.
func mockOllama(t *testing.T, fragments ...string) (*httptest.Server, *[]api.ChatRequest) {
	t.Helper()
	var seen []api.ChatRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		seen = append(seen, req)
		if req.Model == "missing" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": `model "missing" not found, try pulling it first`}) //nolint:errcheck
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, f := range fragments {
			enc.Encode(api.ChatResponse{Model: req.Model, Message: api.Message{Role: "assistant", Content: f}}) //nolint:errcheck
		}
		enc.Encode(api.ChatResponse{ //nolint:errcheck
			Model: req.Model,
			Done:  true,
			Metrics: api.Metrics{
				PromptEvalCount: 9,
				EvalCount:       3,
				TotalDuration:   100 * time.Millisecond,
			},
		})
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ListResponse{Models: []api.ListModelResponse{ //nolint:errcheck
			{Name: "qwen2.5:7b", Model: "qwen2.5:7b"},
			{Name: "llama3:8b", Model: "llama3:8b"},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Timeout = 10 * time.Second
	p, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func chatRequest(model string) llm.Request {
	return llm.Request{
		Model:       model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		Temperature: 0.2,
		MaxTokens:   64,
	}
}

func TestContract(t *testing.T) {
	srv, _ := mockOllama(t, "Hola", "!")
	llmtest.TestProviderContract(t, func() llm.Provider { return newTestProvider(t, srv.URL) })
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(DefaultConfig(), zap.NewNop()); !llm.IsConfigurationError(err) {
		t.Fatalf("New() error = %v, want configuration error", err)
	}
	if _, err := New(Config{URL: "://bad"}, zap.NewNop()); err == nil {
		t.Fatal("New() expected error for invalid URL")
	}
}

func TestChatStream_FragmentsThenUsage(t *testing.T) {
	srv, seen := mockOllama(t, "Hel", "lo!")
	p := newTestProvider(t, srv.URL)

	var text strings.Builder
	var usage *llm.Usage
	for chunk, err := range p.ChatStream(context.Background(), chatRequest("qwen2.5:7b")) {
		if err != nil {
			t.Fatalf("ChatStream() error = %v", err)
		}
		text.WriteString(chunk.Text)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	if text.String() != "Hello!" {
		t.Errorf("text = %q, want %q", text.String(), "Hello!")
	}
	if usage == nil || usage.PromptTokens != 9 || usage.CompletionTokens != 3 || usage.TotalTokens != 12 {
		t.Errorf("usage = %+v, want 9/3/12", usage)
	}
	if got := (*seen)[0].Options["num_predict"]; got != float64(64) {
		t.Errorf("num_predict = %v, want 64", got)
	}
}

func TestChatStream_ModelNotFound(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	var gotErr error
	for _, err := range p.ChatStream(context.Background(), chatRequest("missing")) {
		gotErr = err
	}
	if !llm.IsModelNotFoundError(gotErr) {
		t.Fatalf("error = %v, want model_not_found", gotErr)
	}
}

func TestListModels(t *testing.T) {
	srv, _ := mockOllama(t)
	models, err := newTestProvider(t, srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0] != "qwen2.5:7b" {
		t.Errorf("ListModels() = %v", models)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"canceled", context.Canceled, llm.ErrCodeTimeout},
		{"unauthorized", api.StatusError{StatusCode: 401, ErrorMessage: "unauthorized"}, llm.ErrCodeAuthentication},
		{"server", api.StatusError{StatusCode: 500, ErrorMessage: "boom"}, llm.ErrCodeServerError},
		{"refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), llm.ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe, ok := llm.AsProviderError(mapError(tt.err))
			if !ok || pe.Code != tt.want {
				t.Errorf("mapError(%v) = %v, want code %s", tt.err, pe, tt.want)
			}
		})
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}
