package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generates", ""},
		{"propagates", "my-trace-id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if got == "" || got != ctxID {
				t.Errorf("header %q, context %q", got, ctxID)
			}
			if tt.incoming != "" && got != tt.incoming {
				t.Errorf("X-Request-ID = %q, want %q", got, tt.incoming)
			}
		})
	}
}

func TestLoggingMiddleware_RecordsRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/usage/users/{id}", okHandler(http.StatusCreated))
	handler := Chain(recordPattern(mux), LoggingMiddleware(zap.NewNop(), nil))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/v1/usage/users/{id}", "201"))
	for _, id := range []string{"u1", "u2"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage/users/"+id, http.NoBody))
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", w.Code)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/v1/usage/users/{id}", "201"))
	if after-before != 2 {
		t.Errorf("counter grew by %v, want 2", after-before)
	}
}

func TestLoggingMiddleware_KeepsFlusher(t *testing.T) {
	var flushErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data: {}\n\n"))
		flushErr = http.NewResponseController(w).Flush()
	})

	w := httptest.NewRecorder()
	LoggingMiddleware(zap.NewNop(), nil)(inner).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", http.NoBody))

	if flushErr != nil {
		t.Fatalf("Flush() through statusWriter = %v", flushErr)
	}
	if !w.Flushed {
		t.Error("recorder was not flushed")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeadersMiddleware(okHandler(http.StatusOK)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	tests := []struct {
		header string
		want   string
	}{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Referrer-Policy", "no-referrer"},
	}
	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestVersionHeaderMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	VersionHeaderMiddleware(okHandler(http.StatusOK)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	if v := w.Header().Get("X-IA-Version"); v == "" {
		t.Error("expected X-IA-Version header to be set")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("test panic") })

	w := httptest.NewRecorder()
	RecoveryMiddleware(zap.NewNop())(panicky).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content-type = %q, want application/problem+json", ct)
	}

	w = httptest.NewRecorder()
	RecoveryMiddleware(zap.NewNop())(okHandler(http.StatusOK)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
	if w.Code != http.StatusOK {
		t.Errorf("status without panic = %d, want 200", w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"no origin", []string{"https://shop.test"}, "", false, http.StatusOK, ""},
		{"any origin when unrestricted", nil, "https://anywhere.test", false, http.StatusOK, "https://anywhere.test"},
		{"listed origin", []string{"https://shop.test"}, "https://shop.test", false, http.StatusOK, "https://shop.test"},
		{"trailing slash ignored", []string{"https://shop.test"}, "https://shop.test/", false, http.StatusOK, "https://shop.test/"},
		{"unlisted origin", []string{"https://shop.test"}, "https://evil.test", false, http.StatusForbidden, ""},
		{"preflight", []string{"https://shop.test"}, "https://shop.test", true, http.StatusNoContent, "https://shop.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/api/v1/chat/stream", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
				req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
			}
			w := httptest.NewRecorder()
			CORSMiddleware(tt.allowed)(okHandler(http.StatusOK)).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.preflight && !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "authorization") {
				t.Error("preflight did not echo requested headers")
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	// 1 request per second, burst of 1.
	handler := RateLimitMiddleware(1, 1, []string{"/healthz"})(okHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", http.NoBody)
	req.RemoteAddr = "10.0.0.1:9999"

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w1.Code)
	}
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w2.Code)
	}

	probe := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	probe.RemoteAddr = "10.0.0.1:9999"
	for i := range 5 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, probe)
		if w.Code != http.StatusOK {
			t.Fatalf("probe %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-before")
				next.ServeHTTP(w, r)
				order = append(order, name+"-after")
			})
		}
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	})

	Chain(inner, tag("mw1"), tag("mw2")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	want := "mw1-before mw2-before handler mw2-after mw1-after"
	if got := strings.Join(order, " "); got != want {
		t.Errorf("order = %q, want %q", got, want)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		xff    string
		want   string
	}{
		{"192.168.1.100:12345", "", "192.168.1.100"},
		{"127.0.0.1:12345", "203.0.113.50, 70.41.3.18", "203.0.113.50"},
		{"not-a-hostport", "", "not-a-hostport"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if ip := clientIP(req); ip != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.xff, ip, tt.want)
		}
	}
}

func TestNewRequestID(t *testing.T) {
	id1, id2 := newRequestID(), newRequestID()
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("uuid.Parse(%q) error = %v", id1, err)
	}
	if id1 == id2 {
		t.Error("two request ids should differ")
	}
}

func TestStatusWriter_FirstWriteHeaderWins(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusNotFound)
	if sw.status != http.StatusCreated {
		t.Errorf("status = %d, want 201", sw.status)
	}
}
