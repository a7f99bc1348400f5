// Package openai adapts OpenAI-compatible chat-completions APIs (OpenAI,
// DeepSeek, xAI Grok) to llm.Provider using the go-openai SDK.
package openai

import (
	"context"
	"errors"
	"io"
	"iter"
	"math"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider streams chat completions from one OpenAI-compatible endpoint.
type Provider struct {
	client *goopenai.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a provider. A missing API key is a configuration error so the
// orchestrator can refuse the provider before any network call.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIKey == "" {
		return nil, llm.ConfigError(cfg.Name + ": api key is required")
	}

	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Provider{
		client: goopenai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name returns the configured provider id ("openai", "deepseek", "grok").
func (p *Provider) Name() string { return p.cfg.Name }

// Config returns the provider configuration.
func (p *Provider) Config() Config { return p.cfg }

// ChatStream opens one streaming completion. Text deltas are yielded as they
// arrive; when IncludeUsage is set the trailing usage chunk is yielded as a
// usage-only Chunk.
func (p *Provider) ChatStream(ctx context.Context, req llm.Request) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		if len(req.ImageURLs) > 0 && !p.cfg.Vision {
			yield(llm.Chunk{}, llm.NewProviderError(llm.ErrCodeInvalidRequest,
				p.cfg.Name+": image references are not supported by this provider", nil))
			return
		}
		messages, err := chatMessages(req.Messages, req.ImageURLs)
		if err != nil {
			yield(llm.Chunk{}, err)
			return
		}

		creq := goopenai.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: temperature(req.Temperature),
			Stream:      true,
		}
		if p.cfg.IncludeUsage {
			creq.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
		}

		// Cancelling on return aborts the HTTP read when the consumer breaks early.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := p.client.CreateChatCompletionStream(ctx, creq)
		if err != nil {
			yield(llm.Chunk{}, mapError(p.cfg.Name, err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(llm.Chunk{}, mapError(p.cfg.Name, err))
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !yield(llm.Chunk{Text: choice.Delta.Content}, nil) {
					return
				}
			}
			if resp.Usage != nil {
				u := &llm.Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
				if !yield(llm.Chunk{Usage: u}, nil) {
					return
				}
			}
		}
	}
}

// ListModels returns the model ids visible to the configured key.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, mapError(p.cfg.Name, err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// chatMessages converts the transcript, attaching image references to the
// most recent user message as multi-part content.
func chatMessages(messages []llm.Message, images []string) ([]goopenai.ChatCompletionMessage, error) {
	if len(messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}
	out := make([]goopenai.ChatCompletionMessage, len(messages))
	lastUser := -1
	for i, m := range messages {
		out[i] = goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		if m.Role == llm.RoleUser {
			lastUser = i
		}
	}
	if len(images) == 0 {
		return out, nil
	}
	if lastUser < 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "image references require a user message", nil)
	}

	parts := make([]goopenai.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, goopenai.ChatMessagePart{
		Type: goopenai.ChatMessagePartTypeText,
		Text: out[lastUser].Content,
	})
	for _, url := range images {
		parts = append(parts, goopenai.ChatMessagePart{
			Type:     goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{URL: url},
		})
	}
	out[lastUser].Content = ""
	out[lastUser].MultiContent = parts
	return out, nil
}

// temperature converts to the SDK's float32. The SDK omits a zero value from
// the request body, so an explicit 0 is sent as the smallest positive float.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
