// Package settings stores tenant-scoped settings and resolves the chat
// system prompt from them.
package settings

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// KeySystemPrompt holds a tenant's system prompt override.
const KeySystemPrompt = "prompt.system"

// GlobalTenant is the fallback scope shared by all tenants.
const GlobalTenant = "global"

//go:embed default_prompt.txt
var defaultSystemPrompt string

// DefaultSystemPrompt is used when no tenant or global override exists.
func DefaultSystemPrompt() string {
	return strings.TrimSpace(defaultSystemPrompt)
}

// PromptResolver picks the system prompt for a tenant.
type PromptResolver struct {
	repo   Repository
	tenant string
	logger *zap.Logger
}

// NewPromptResolver creates a resolver for the configured tenant. An empty
// tenant resolves against the global scope only.
func NewPromptResolver(repo Repository, tenant string, logger *zap.Logger) *PromptResolver {
	if tenant == "" {
		tenant = GlobalTenant
	}
	return &PromptResolver{repo: repo, tenant: tenant, logger: logger}
}

// Tenant returns the tenant the resolver serves.
func (p *PromptResolver) Tenant() string { return p.tenant }

// SystemPrompt returns the first non-blank of: the tenant override, the
// global override, the built-in default. Lookup failures fall through.
func (p *PromptResolver) SystemPrompt(ctx context.Context) string {
	scopes := []string{p.tenant}
	if p.tenant != GlobalTenant {
		scopes = append(scopes, GlobalTenant)
	}
	for _, scope := range scopes {
		s, err := p.repo.Get(ctx, scope, KeySystemPrompt)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				p.logger.Warn("system prompt lookup failed", zap.String("tenant", scope), zap.Error(err))
			}
			continue
		}
		if strings.TrimSpace(s.Value) != "" {
			return s.Value
		}
	}
	return DefaultSystemPrompt()
}
