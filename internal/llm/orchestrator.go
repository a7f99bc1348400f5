package llm

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgllm "github.com/rpenyav/ia-backend/pkg/llm"
)

// Defaults are a provider's fallbacks for values a call leaves unset.
type Defaults struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// GlobalDefaults apply when neither the call nor the provider sets a value.
type GlobalDefaults struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

type registered struct {
	provider pkgllm.Provider
	defaults Defaults
}

// Orchestrator dispatches generations to registered providers and meters
// every attempt through the usage sink.
type Orchestrator struct {
	mu        sync.RWMutex
	providers map[string]registered
	global    GlobalDefaults
	sink      pkgllm.UsageSink
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator with no providers.
func NewOrchestrator(global GlobalDefaults, sink pkgllm.UsageSink, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		providers: make(map[string]registered),
		global:    global,
		sink:      sink,
		logger:    logger,
	}
}

// Register adds or replaces the provider under p.Name().
func (o *Orchestrator) Register(p pkgllm.Provider, d Defaults) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.providers[p.Name()] = registered{provider: p, defaults: d}
}

// SetDefaultProvider changes the provider used when a call names none.
func (o *Orchestrator) SetDefaultProvider(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.global.Provider = name
}

// DefaultProvider returns the provider used when a call names none.
func (o *Orchestrator) DefaultProvider() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.global.Provider
}

// Provider looks up a registered provider.
func (o *Orchestrator) Provider(name string) (pkgllm.Provider, Defaults, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.providers[name]
	return r.provider, r.defaults, ok
}

// Names returns the registered provider ids, sorted.
func (o *Orchestrator) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.providers))
	for n := range o.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Generate streams one completion. Fragments are yielded as soon as the
// provider produces them; a failure is yielded once as ("", err) and ends
// the sequence. Exactly one usage record is written per call, whether the
// stream completes, fails, or the consumer stops early.
func (o *Orchestrator) Generate(ctx context.Context, messages []pkgllm.Message, opts ...pkgllm.CallOption) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		call := pkgllm.ApplyOptions(opts...)
		started := time.Now()

		o.mu.RLock()
		name := cmp.Or(call.Provider, o.global.Provider)
		entry, ok := o.providers[name]
		req := o.resolve(entry.defaults, call, messages)
		o.mu.RUnlock()

		var (
			full     strings.Builder
			reported *pkgllm.Usage
			genErr   error
			status   = "ok"
		)
		defer func() {
			if genErr != nil {
				status = "error"
			}
			o.finalize(ctx, name, req, call, full.String(), reported, ok, status, time.Since(started))
		}()

		if !ok {
			genErr = pkgllm.ConfigError("provider " + name + " is not configured")
			yield("", genErr)
			return
		}

		for chunk, err := range entry.provider.ChatStream(ctx, req) {
			if err != nil {
				genErr = err
				yield("", err)
				return
			}
			if chunk.Usage != nil {
				reported = chunk.Usage
			}
			if chunk.Text == "" {
				continue
			}
			full.WriteString(chunk.Text)
			fragmentsTotal.WithLabelValues(name).Inc()
			if !yield(chunk.Text, nil) {
				status = "canceled"
				return
			}
		}
	}
}

// resolve applies call > provider > global precedence. Caller holds o.mu.
func (o *Orchestrator) resolve(d Defaults, call pkgllm.CallConfig, messages []pkgllm.Message) pkgllm.Request {
	temp := o.global.Temperature
	switch {
	case call.Temperature != nil:
		temp = *call.Temperature
	case d.Temperature != nil:
		temp = *d.Temperature
	}
	return pkgllm.Request{
		Model:       cmp.Or(call.Model, d.Model, o.global.Model),
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   cmp.Or(call.MaxTokens, d.MaxTokens, o.global.MaxTokens),
		ImageURLs:   call.ImageURLs,
	}
}

// finalize computes token counts and writes the usage record. Provider
// counts win; otherwise both sides are estimated from text length. A call
// that never reached a provider records unknown counts.
func (o *Orchestrator) finalize(ctx context.Context, provider string, req pkgllm.Request, call pkgllm.CallConfig,
	text string, reported *pkgllm.Usage, dispatched bool, status string, elapsed time.Duration) {
	var in, out *int
	switch {
	case reported != nil:
		in, out = &reported.PromptTokens, &reported.CompletionTokens
	case dispatched:
		ei, eo := pkgllm.EstimateTokens(pkgllm.PromptText(req.Messages)), pkgllm.EstimateTokens(text)
		in, out = &ei, &eo
	}

	rec := pkgllm.NewUsageRecord(provider, req.Model, call.UserID, call.ConversationID, in, out)
	rec.CreatedAt = time.Now().UTC()

	generationsTotal.WithLabelValues(provider, status).Inc()
	generationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if in != nil {
		tokensTotal.WithLabelValues(provider, "input").Add(float64(*in))
	}
	if out != nil {
		tokensTotal.WithLabelValues(provider, "output").Add(float64(*out))
	}

	o.logger.Info("generation finished",
		zap.String("provider", provider),
		zap.String("model", req.Model),
		zap.String("status", status),
		zap.Bool("reported_usage", reported != nil),
		zap.Int("total_tokens", rec.TotalTokens),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", elapsed),
	)

	if o.sink == nil {
		return
	}
	// The caller may already be gone; the record must still land.
	if err := o.sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("failed to record usage",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}
}
