package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Mode selects how chat callers are identified.
type Mode string

const (
	// ModeNone serves every caller anonymously.
	ModeNone Mode = "none"
	// ModeLocal requires a bearer token issued by this service's login.
	ModeLocal Mode = "local"
	// ModeExternal requires a bearer token issued by an external identity
	// provider sharing the signing secret.
	ModeExternal Mode = "external"
)

// ParseMode maps a configuration value to a Mode. Empty means none;
// "oauth2" is accepted as an alias of external.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "local":
		return ModeLocal, nil
	case "external", "oauth2":
		return ModeExternal, nil
	default:
		return "", fmt.Errorf("unknown chat auth mode %q", s)
	}
}

// RequiresToken reports whether callers must present a bearer token.
func (m Mode) RequiresToken() bool {
	return m == ModeLocal || m == ModeExternal
}

// authUserKey is a context key for the authenticated user.
type authUserKey struct{}

// UserFromContext returns the authenticated user from the request context.
// Returns nil if the request is not authenticated.
func UserFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(authUserKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// WithUser returns a context carrying the given claims.
func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, authUserKey{}, c)
}

// ChatMiddleware enforces the chat auth mode. In ModeNone requests pass
// through without a user; otherwise a valid bearer token is required and
// its claims are placed in the request context.
func ChatMiddleware(mode Mode, tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !mode.RequiresToken() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Token requerido para el chat")
				return
			}
			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Token requerido para el chat")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

// publicPaths never require a token. Chat routes enforce their own mode.
var publicPaths = map[string]bool{
	"/api/v1/health":            true,
	"/api/v1/auth/login":        true,
	"/api/v1/auth/setup":        true,
	"/api/v1/auth/setup/status": true,
}

// APIMiddleware protects the management API whatever the chat mode:
// every /api/v1/ route outside publicPaths and /api/v1/chat/ needs a bearer
// token signed by tokens. Chat routes follow the chat mode instead.
func APIMiddleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") || publicPaths[path] || strings.HasPrefix(path, "/api/v1/chat/") {
				next.ServeHTTP(w, r)
				return
			}
			tokenString, ok := bearerToken(r)
			if !ok || tokens == nil {
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired access token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
		})
	}
}
