package llm

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Message is one entry of a chat transcript. Order is significant: system
// first, then history, then the current user turn.
type Message struct {
	Role    string `json:"role"` // One of RoleSystem, RoleUser, RoleAssistant.
	Content string `json:"content"`
}

// Role constants for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage is a provider-reported token count.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord is the append-only accounting entry for one generation attempt.
type UsageRecord struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	UserID         *string   `json:"userId"`
	ConversationID *string   `json:"conversationId"`
	InputTokens    *int      `json:"inputTokens"`
	OutputTokens   *int      `json:"outputTokens"`
	TotalTokens    int       `json:"totalTokens"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewUsageRecord builds a record, treating empty ids as unknown and
// deriving TotalTokens with unknown counts taken as zero.
func NewUsageRecord(provider, model, userID, conversationID string, in, out *int) UsageRecord {
	rec := UsageRecord{
		Provider:       provider,
		Model:          model,
		UserID:         optional(userID),
		ConversationID: optional(conversationID),
		InputTokens:    in,
		OutputTokens:   out,
	}
	if in != nil {
		rec.TotalTokens += *in
	}
	if out != nil {
		rec.TotalTokens += *out
	}
	return rec
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// EstimateTokens approximates a token count at four characters per token,
// rounding up, so any non-empty text counts at least one token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// PromptText is the text used to estimate input tokens for messages.
func PromptText(messages []Message) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
