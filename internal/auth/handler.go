package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

const maxAuthBody = 16 << 10

// Handler serves the local-account endpoints under /api/v1/auth.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the auth endpoints. Login, setup and setup status
// stay reachable without a token.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/setup", h.handleSetup)
	mux.HandleFunc("GET /api/v1/auth/setup/status", h.handleSetupStatus)
	mux.HandleFunc("GET /api/v1/auth/me", h.handleMe)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SetupRequest is the body of POST /auth/setup.
type SetupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SetupStatus is the body of GET /auth/setup/status.
type SetupStatus struct {
	SetupRequired bool `json:"setupRequired"`
}

func (r *LoginRequest) credentials() (string, string) { return r.Email, r.Password }
func (r *SetupRequest) credentials() (string, string) { return r.Email, r.Password }

// decodeCredentials reads a JSON body and requires email and password.
// It writes the 400 itself and returns false on failure.
func decodeCredentials(w http.ResponseWriter, r *http.Request, dst interface{ credentials() (string, string) }) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(dst); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if email, password := dst.credentials(); email == "" || password == "" {
		writeAuthError(w, http.StatusBadRequest, "email and password are required")
		return false
	}
	return true
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeCredentials(w, r, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserDisabled):
		// One message for both so callers cannot probe accounts.
		writeAuthError(w, http.StatusUnauthorized, "Credenciales inválidas")
	case err != nil:
		h.logger.Error("login failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "authentication failed")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if !decodeCredentials(w, r, &req) {
		return
	}

	user, err := h.service.Setup(r.Context(), req.Email, req.Name, req.Password)
	switch {
	case errors.Is(err, ErrSetupComplete):
		writeAuthError(w, http.StatusConflict, "setup already completed")
	case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrInvalidEmail):
		writeAuthError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("setup failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not create account")
	default:
		writeJSON(w, http.StatusCreated, user)
	}
}

func (h *Handler) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	needs, err := h.service.NeedsSetup(r.Context())
	if err != nil {
		h.logger.Error("setup status failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to check setup status")
		return
	}
	writeJSON(w, http.StatusOK, SetupStatus{SetupRequired: needs})
}

// handleMe echoes the identity behind a bearer token. Chat clients use it
// to check a stored token before opening a stream.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearerToken(r)
	if !ok {
		writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
		return
	}
	claims, err := h.service.Tokens().ValidateAccessToken(raw)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "invalid or expired access token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"userId": claims.CallerID(),
		"email":  claims.Email,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
