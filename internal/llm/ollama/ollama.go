// Package ollama adapts a local Ollama daemon to llm.Provider through the
// official api client. Ollama reports real prompt and completion counts on
// its final chunk.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// errStop aborts the client's callback loop when the consumer stops ranging.
var errStop = errors.New("ollama: consumer stopped")

// Provider streams /api/chat responses.
type Provider struct {
	client *api.Client
	cfg    Config
	logger *zap.Logger
}

// New creates an Ollama provider. It does not verify connectivity.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.URL == "" {
		return nil, llm.ConfigError("ollama: url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" {
		return nil, llm.ConfigError(fmt.Sprintf("ollama: invalid url %q", cfg.URL))
	}
	return &Provider{
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (p *Provider) Name() string { return "ollama" }

// Config returns the provider configuration.
func (p *Provider) Config() Config { return p.cfg }

// ChatStream yields message deltas, then the usage carried by the final chunk.
func (p *Provider) ChatStream(ctx context.Context, req llm.Request) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		if len(req.ImageURLs) > 0 {
			yield(llm.Chunk{}, llm.NewProviderError(llm.ErrCodeInvalidRequest,
				"ollama: image references are not supported by this provider", nil))
			return
		}
		if len(req.Messages) == 0 {
			yield(llm.Chunk{}, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil))
			return
		}

		messages := make([]api.Message, len(req.Messages))
		for i, m := range req.Messages {
			messages[i] = api.Message{Role: m.Role, Content: m.Content}
		}
		options := map[string]any{"temperature": req.Temperature}
		if req.MaxTokens > 0 {
			options["num_predict"] = req.MaxTokens
		}
		creq := &api.ChatRequest{Model: req.Model, Messages: messages, Options: options}

		stopped := false
		err := p.client.Chat(ctx, creq, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" && !yield(llm.Chunk{Text: resp.Message.Content}, nil) {
				stopped = true
				return errStop
			}
			if resp.Done {
				u := &llm.Usage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				}
				if !yield(llm.Chunk{Usage: u}, nil) {
					stopped = true
					return errStop
				}
			}
			return nil
		})
		if stopped || errors.Is(err, errStop) {
			return
		}
		if err != nil {
			yield(llm.Chunk{}, mapError(err))
		}
	}
}

// ListModels returns the names of locally available models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	names := make([]string, len(resp.Models))
	for i := range resp.Models {
		names[i] = resp.Models[i].Name
	}
	return names, nil
}
