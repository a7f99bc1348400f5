// Package llmtest provides a scripted fake provider and shared contract
// tests for llm.Provider implementations. Adapter tests point the provider
// at an httptest server that streams a fixed reply, then call
// TestProviderContract.
package llmtest

import (
	"context"
	"strings"
	"testing"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

// TestProviderContract checks streaming behavior every adapter must share.
// factory must return a provider whose upstream replies with non-empty text
// for any request.
//
//	func TestContract(t *testing.T) {
//	    llmtest.TestProviderContract(t, func() llm.Provider { return newTestProvider(t, srv.URL) })
//	}
func TestProviderContract(t *testing.T, factory func() llm.Provider) {
	t.Helper()

	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a helpful assistant."},
			{Role: llm.RoleUser, Content: "Hi"},
		},
		Temperature: 0.2,
		MaxTokens:   64,
	}

	t.Run("Name_is_set", func(t *testing.T) {
		if factory().Name() == "" {
			t.Error("Name() must not be empty")
		}
	})

	t.Run("Stream_yields_text", func(t *testing.T) {
		var b strings.Builder
		for chunk, err := range factory().ChatStream(context.Background(), req) {
			if err != nil {
				t.Fatalf("ChatStream() error = %v", err)
			}
			b.WriteString(chunk.Text)
		}
		if b.Len() == 0 {
			t.Error("ChatStream() produced no text")
		}
	})

	t.Run("Early_break_is_safe", func(t *testing.T) {
		for _, err := range factory().ChatStream(context.Background(), req) {
			if err != nil {
				t.Fatalf("ChatStream() error = %v", err)
			}
			break
		}
	})

	t.Run("Canceled_context_fails", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var gotErr error
		for _, err := range factory().ChatStream(ctx, req) {
			if err != nil {
				gotErr = err
			}
		}
		if gotErr == nil {
			t.Error("ChatStream() with canceled context: expected error")
		}
	})
}
