// Package llm defines the provider-neutral streaming contract shared by the
// upstream adapters in internal/llm/{provider} and the orchestrator.
package llm

import (
	"context"
	"iter"
	"strings"
)

// Provider is one upstream LLM service. ChatStream returns a lazy sequence:
// each step carries either a text fragment, a trailing usage summary, or a
// terminal error. Nothing is sent upstream until the sequence is ranged
// over, and breaking out of the loop aborts the underlying request.
type Provider interface {
	Name() string
	ChatStream(ctx context.Context, req Request) iter.Seq2[Chunk, error]
}

// HealthReporter is optionally implemented by providers that can list the
// models available to the configured credential. Detected via type assertion.
type HealthReporter interface {
	ListModels(ctx context.Context) ([]string, error)
}

// UsageSink receives exactly one record per generation attempt. It must be
// safe for concurrent use.
type UsageSink interface {
	Record(ctx context.Context, rec UsageRecord) error
}

// Request is the fully resolved input handed to a provider adapter.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	ImageURLs   []string
}

// Chunk is one step of a provider stream. Text is empty for usage-only steps.
type Chunk struct {
	Text  string
	Usage *Usage
}

// CallOption configures a single orchestrator call.
type CallOption func(*CallConfig)

// CallConfig holds per-call overrides. Zero values mean "not set"; the
// orchestrator falls back to provider and global defaults.
type CallConfig struct {
	Provider       string
	Model          string
	Temperature    *float64
	MaxTokens      int
	ImageURLs      []string
	UserID         string
	ConversationID string
}

// WithProvider selects a provider for this call instead of the configured default.
func WithProvider(name string) CallOption {
	return func(c *CallConfig) { c.Provider = name }
}

// WithModel overrides the model.
func WithModel(model string) CallOption {
	return func(c *CallConfig) { c.Model = model }
}

// WithTemperature overrides the sampling temperature. Zero is a valid
// explicit value.
func WithTemperature(temp float64) CallOption {
	return func(c *CallConfig) { c.Temperature = &temp }
}

// WithMaxTokens caps generated tokens.
func WithMaxTokens(max int) CallOption {
	return func(c *CallConfig) { c.MaxTokens = max }
}

// WithImageURLs attaches image references to the most recent user message.
func WithImageURLs(urls ...string) CallOption {
	return func(c *CallConfig) { c.ImageURLs = append(c.ImageURLs, urls...) }
}

// WithUser attributes usage to a user.
func WithUser(id string) CallOption {
	return func(c *CallConfig) { c.UserID = id }
}

// WithConversation attributes usage to a conversation.
func WithConversation(id string) CallOption {
	return func(c *CallConfig) { c.ConversationID = id }
}

// ApplyOptions folds opts into a CallConfig.
func ApplyOptions(opts ...CallOption) CallConfig {
	var cfg CallConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Collect drains a fragment sequence into one string. The text gathered
// before an error is returned alongside it.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}
