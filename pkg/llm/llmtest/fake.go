package llmtest

import (
	"context"
	"iter"
	"sync"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

// Reply scripts one ChatStream call.
type Reply struct {
	Fragments []string
	Usage     *llm.Usage
	Err       error // yielded after Fragments
}

// FakeProvider replays scripted replies in order, repeating the last one
// once the script is exhausted, and records every request it receives.
type FakeProvider struct {
	ProviderName string
	Replies      []Reply

	mu       sync.Mutex
	requests []llm.Request
}

var _ llm.Provider = (*FakeProvider)(nil)

// NewFake returns a provider that answers every call with fragments.
func NewFake(name string, fragments ...string) *FakeProvider {
	return &FakeProvider{ProviderName: name, Replies: []Reply{{Fragments: fragments}}}
}

func (f *FakeProvider) Name() string { return f.ProviderName }

func (f *FakeProvider) ChatStream(ctx context.Context, req llm.Request) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		f.mu.Lock()
		n := len(f.requests)
		f.requests = append(f.requests, req)
		var r Reply
		if len(f.Replies) > 0 {
			r = f.Replies[min(n, len(f.Replies)-1)]
		}
		f.mu.Unlock()

		if err := ctx.Err(); err != nil {
			yield(llm.Chunk{}, err)
			return
		}
		for _, frag := range r.Fragments {
			if !yield(llm.Chunk{Text: frag}, nil) {
				return
			}
		}
		if r.Err != nil {
			yield(llm.Chunk{}, r.Err)
			return
		}
		if r.Usage != nil {
			yield(llm.Chunk{Usage: r.Usage}, nil)
		}
	}
}

// Calls returns how many streams were opened.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the received requests.
func (f *FakeProvider) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// MemorySink is an llm.UsageSink that keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []llm.UsageRecord
	Err     error
}

func (s *MemorySink) Record(_ context.Context, rec llm.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.Err
}

// Records returns a copy of everything recorded so far.
func (s *MemorySink) Records() []llm.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.UsageRecord(nil), s.records...)
}
