package testutil

import (
	"time"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

// NewUsageRecord returns a complete record for provider "openai".
// Override individual fields with options.
func NewUsageRecord(opts ...func(*llm.UsageRecord)) llm.UsageRecord {
	in, out := 10, 5
	rec := llm.NewUsageRecord("openai", "gpt-4o-mini", "", "", &in, &out)
	rec.CreatedAt = time.Now().UTC()
	for _, opt := range opts {
		opt(&rec)
	}
	return rec
}

// WithUser attributes the record to userID.
func WithUser(userID string) func(*llm.UsageRecord) {
	return func(r *llm.UsageRecord) { r.UserID = &userID }
}

// WithConversation attributes the record to conversationID.
func WithConversation(conversationID string) func(*llm.UsageRecord) {
	return func(r *llm.UsageRecord) { r.ConversationID = &conversationID }
}

// At sets the record timestamp.
func At(ts time.Time) func(*llm.UsageRecord) {
	return func(r *llm.UsageRecord) { r.CreatedAt = ts }
}
