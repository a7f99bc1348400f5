// Package gemini adapts the Google Generative Language streaming API to
// llm.Provider over plain HTTP.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

const readChunkSize = 4096

var _ llm.Provider = (*Provider)(nil)

// Provider streams generateContent responses. Gemini reports no usage on
// this path that we trust, so the orchestrator estimates token counts.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates a Gemini provider. A missing API key is a configuration error.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, llm.ConfigError("gemini: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, llm.ConfigError(fmt.Sprintf("gemini: invalid base url %q: %v", cfg.BaseURL, err))
	}
	return &Provider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Config returns the provider configuration.
func (p *Provider) Config() Config { return p.cfg }

// ChatStream posts the transcript and yields candidate texts as lines arrive.
func (p *Provider) ChatStream(ctx context.Context, req llm.Request) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		if len(req.ImageURLs) > 0 {
			yield(llm.Chunk{}, llm.NewProviderError(llm.ErrCodeInvalidRequest,
				"gemini: image references are not supported by this provider", nil))
			return
		}
		body, err := json.Marshal(buildRequest(req))
		if err != nil {
			yield(llm.Chunk{}, fmt.Errorf("marshal gemini request: %w", err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		path := "/models/" + url.PathEscape(req.Model) + ":streamGenerateContent?alt=sse"
		respBody, err := p.doPost(ctx, path, body)
		if err != nil {
			yield(llm.Chunk{}, mapError(err))
			return
		}
		defer respBody.Close()

		var lb lineBuffer
		buf := make([]byte, readChunkSize)
		for {
			n, rerr := respBody.Read(buf)
			if n > 0 {
				for _, text := range lb.Write(buf[:n]) {
					if !yield(llm.Chunk{Text: text}, nil) {
						return
					}
				}
			}
			if errors.Is(rerr, io.EOF) {
				break
			}
			if rerr != nil {
				yield(llm.Chunk{}, mapError(rerr))
				return
			}
		}
		for _, text := range lb.Flush() {
			if !yield(llm.Chunk{Text: text}, nil) {
				return
			}
		}
	}
}

// doPost sends a POST request and returns the response body. The caller
// must close it.
func (p *Provider) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		se := parseStatusError(resp)
		p.logger.Debug("gemini request failed",
			zap.Int("status", se.StatusCode),
			zap.String("body", se.Body),
		)
		return nil, se
	}
	return resp.Body, nil
}

// buildRequest maps the transcript onto Gemini's shape: there is no system
// role, so system messages become one systemInstruction, and assistant
// turns use the "model" role.
func buildRequest(req llm.Request) generateRequest {
	var system []string
	out := generateRequest{
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &content{Role: "user", Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}
	return out
}

// --- Gemini REST API types (internal) ---

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type streamResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}
