package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpenyav/ia-backend/internal/auth"
	"github.com/rpenyav/ia-backend/internal/testutil"
)

const hygieneSecret = "hygiene-secret-key-32bytes-long!"

// testEnvWithObservedLogs serves the auth routes behind the API guard with
// every log entry captured.
func testEnvWithObservedLogs(t *testing.T) (http.Handler, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	userStore, err := auth.NewUserStore(context.Background(), testutil.NewStore(t))
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}
	tokens := auth.NewTokenService([]byte(hygieneSecret), "ia-backend-test", 15*time.Minute)
	handler := auth.NewHandler(auth.NewService(userStore, tokens, logger), logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return Chain(mux, LoggingMiddleware(logger, nil), Middleware(auth.APIMiddleware(tokens))), logs
}

func post(h http.Handler, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// containsSecret reports whether any log message or field mentions secret.
func containsSecret(logs *observer.ObservedLogs, secret string) bool {
	for _, e := range logs.All() {
		if strings.Contains(e.Message, secret) {
			return true
		}
		for _, f := range e.Context {
			if strings.Contains(f.String, secret) {
				return true
			}
			if err, ok := f.Interface.(error); ok && strings.Contains(err.Error(), secret) {
				return true
			}
		}
	}
	return false
}

func setupAdmin(t *testing.T, h http.Handler, password string) *httptest.ResponseRecorder {
	t.Helper()
	w := post(h, "/api/v1/auth/setup", map[string]string{
		"email":    "admin@example.com",
		"name":     "Admin",
		"password": password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("setup failed: status=%d body=%s", w.Code, w.Body.String())
	}
	return w
}

func TestPasswordsNotInLogs(t *testing.T) {
	h, logs := testEnvWithObservedLogs(t)
	setupAdmin(t, h, "my-super-secret-admin-password")

	for _, password := range []string{"super-secret-password-123", "correct-horse-battery-staple"} {
		post(h, "/api/v1/auth/login", map[string]string{"email": "admin@example.com", "password": password})
		if containsSecret(logs, password) {
			t.Errorf("password %q found in log output", password)
		}
	}
	if containsSecret(logs, "my-super-secret-admin-password") {
		t.Error("setup password found in log output")
	}
}

func TestPasswordHashNotInResponses(t *testing.T) {
	h, _ := testEnvWithObservedLogs(t)
	w := setupAdmin(t, h, "securepassword123")

	body := w.Body.String()
	if strings.Contains(body, "$2a$") || strings.Contains(body, "$2b$") {
		t.Error("response contains a bcrypt hash")
	}
	if strings.Contains(strings.ToLower(body), "password") {
		t.Errorf("response mentions a password field: %s", body)
	}
}

func TestTokensNotLoggedInFull(t *testing.T) {
	h, logs := testEnvWithObservedLogs(t)
	setupAdmin(t, h, "securepassword123")

	w := post(h, "/api/v1/auth/login", map[string]string{"email": "admin@example.com", "password": "securepassword123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d", w.Code)
	}
	var res auth.LoginResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if containsSecret(logs, res.AccessToken) {
		t.Error("access token found in log output")
	}
}

func TestJWTSecretNotExposed(t *testing.T) {
	h, logs := testEnvWithObservedLogs(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if strings.Contains(w.Body.String(), hygieneSecret) {
		t.Error("response contains the signing secret")
	}
	if containsSecret(logs, hygieneSecret) {
		t.Error("signing secret found in log output")
	}
}

func TestUserEnumerationPrevention(t *testing.T) {
	h, _ := testEnvWithObservedLogs(t)
	setupAdmin(t, h, "securepassword123")

	wrongPassword := post(h, "/api/v1/auth/login", map[string]string{"email": "admin@example.com", "password": "wrongpassword"})
	unknownUser := post(h, "/api/v1/auth/login", map[string]string{"email": "nobody@example.com", "password": "anypassword"})

	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d / %d, want 401 for both", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Errorf("bodies differ:\n%s\n%s", wrongPassword.Body.String(), unknownUser.Body.String())
	}
}

func TestMalformedJSON(t *testing.T) {
	h, _ := testEnvWithObservedLogs(t)

	for _, body := range []string{"", "{", `{"email": 42}`, "null"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("body %q: Content-Type = %q", body, ct)
		}
	}
}
