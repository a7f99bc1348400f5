package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

// mockPluginSource satisfies PluginSource for testing.
type mockPluginSource struct {
	plugins []plugin.Plugin
	routes  map[string][]plugin.Route
}

func (m *mockPluginSource) AllRoutes() map[string][]plugin.Route {
	if m.routes != nil {
		return m.routes
	}
	return map[string][]plugin.Route{}
}

func (m *mockPluginSource) All() []plugin.Plugin {
	return m.plugins
}

// stubModule satisfies plugin.Plugin and plugin.HealthChecker.
type stubModule struct {
	info   plugin.PluginInfo
	health string
}

func (s *stubModule) Info() plugin.PluginInfo                         { return s.info }
func (s *stubModule) Init(context.Context, plugin.Dependencies) error { return nil }
func (s *stubModule) Start(context.Context) error                     { return nil }
func (s *stubModule) Stop(context.Context) error                      { return nil }
func (s *stubModule) Health(context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{Status: s.health}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.RateLimit = RateLimitConfig{RPS: 1000, Burst: 1000}
	return cfg
}

func newTestServer(ready ReadinessChecker, modules ...plugin.Plugin) *Server {
	if modules == nil {
		modules = []plugin.Plugin{&stubModule{
			info:   plugin.PluginInfo{Name: "llm", Version: "1.0.0", Description: "Provider adapters"},
			health: "healthy",
		}}
	}
	return New(testConfig(), &mockPluginSource{plugins: modules}, zap.NewNop(), ready, nil)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestHandleHealthz(t *testing.T) {
	w := get(newTestServer(nil).mux, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "alive" {
		t.Errorf("status = %q, want alive", body["status"])
	}
}

func TestHandleReadyz(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"nil checker", nil, http.StatusOK, "ready"},
		{"healthy", func(context.Context) error { return nil }, http.StatusOK, "ready"},
		{"unhealthy", func(context.Context) error { return errors.New("database unreachable") }, http.StatusServiceUnavailable, "not ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(newTestServer(tt.ready).mux, "/readyz")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			decode(t, w, &body)
			if body["status"] != tt.wantBody {
				t.Errorf("status = %q, want %q", body["status"], tt.wantBody)
			}
			if tt.wantStatus != http.StatusOK && !strings.Contains(body["error"], "database unreachable") {
				t.Errorf("error = %q", body["error"])
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(nil,
		&stubModule{info: plugin.PluginInfo{Name: "llm", Version: "1.0.0"}, health: "healthy"},
		&stubModule{info: plugin.PluginInfo{Name: "conversation", Version: "1.0.0"}, health: "unhealthy"},
	)

	var body HealthResponse
	decode(t, get(srv.mux, "/api/v1/health"), &body)
	if body.Service != "ia-backend" || body.Version == "" {
		t.Errorf("body = %+v", body)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Modules["llm"].Status != "healthy" || body.Modules["conversation"].Status != "unhealthy" {
		t.Errorf("modules = %+v", body.Modules)
	}
}

func TestHandleModules(t *testing.T) {
	var modules []ModuleResponse
	decode(t, get(newTestServer(nil).mux, "/api/v1/modules"), &modules)
	if len(modules) != 1 || modules[0].Name != "llm" || modules[0].Version != "1.0.0" {
		t.Errorf("modules = %+v", modules)
	}
}

func TestHandleMetrics(t *testing.T) {
	w := get(newTestServer(nil).mux, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in /metrics output")
	}
}

func TestMiddlewareChain_Integration(t *testing.T) {
	w := get(newTestServer(nil).Handler(), "/healthz")

	if v := w.Header().Get("X-IA-Version"); v == "" {
		t.Error("expected X-IA-Version header")
	}
	if v := w.Header().Get("X-Request-ID"); v == "" {
		t.Error("expected X-Request-ID header")
	}
	if v := w.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", v)
	}
}

func TestPluginRoutes_MountedAndGuarded(t *testing.T) {
	plugins := &mockPluginSource{
		routes: map[string][]plugin.Route{
			"usage": {{Method: http.MethodGet, Path: "/", Handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			}}},
		},
	}
	deny := Middleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	srv := New(testConfig(), plugins, zap.NewNop(), nil, deny)

	if w := get(srv.Handler(), "/api/v1/usage/"); w.Code != http.StatusUnauthorized {
		t.Errorf("unguarded status = %d, want 401", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/", http.NoBody)
	req.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ia-backend.yaml")
	yaml := "server:\n  port: 9090\nllm:\n  provider: deepseek\nchat:\n  catalog_limit: 8\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IA_LLM_OPENAI_API_KEY", "sk-env")
	t.Setenv("GEMINI_API_KEY", "gm-legacy")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.test/, https://admin.test")

	v, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	tests := []struct {
		key  string
		want any
	}{
		{"llm.provider", "deepseek"},
		{"chat.catalog_limit", 8},
		{"chat.max_doc_chars", 6000},
		{"llm.openai.api_key", "sk-env"},
		{"llm.gemini.api_key", "gm-legacy"},
		{"conversation.backend", "sqlite"},
	}
	for _, tt := range tests {
		switch want := tt.want.(type) {
		case string:
			if got := v.Sub(strings.SplitN(tt.key, ".", 2)[0]).GetString(strings.SplitN(tt.key, ".", 2)[1]); got != want {
				t.Errorf("%s via Sub = %q, want %q", tt.key, got, want)
			}
		case int:
			if got := v.GetInt(tt.key); got != want {
				t.Errorf("%s = %d, want %d", tt.key, got, want)
			}
		}
	}

	cfg, err := ServerConfig(v)
	if err != nil {
		t.Fatalf("ServerConfig() error = %v", err)
	}
	if cfg.Port != 9090 || cfg.WriteTimeout != 0 {
		t.Errorf("server config = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://shop.test" || cfg.AllowedOrigins[1] != "https://admin.test" {
		t.Errorf("AllowedOrigins = %q", cfg.AllowedOrigins)
	}
}
