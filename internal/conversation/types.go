package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist or belongs to
// another owner.
var ErrNotFound = errors.New("conversation not found")

// AttachmentType is the variant of an attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
	AttachmentLink  AttachmentType = "link"
	AttachmentOther AttachmentType = "other"
)

// Attachment is file metadata carried by a message. The file itself lives
// in external storage.
type Attachment struct {
	Type     AttachmentType `json:"type,omitempty"`
	URL      string         `json:"url,omitempty"`
	Filename string         `json:"filename,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Size     int64          `json:"size,omitempty"`
}

// Meta describes a new conversation.
type Meta struct {
	Title   string `json:"title"`
	Channel string `json:"channel"`
}

// Conversation is a thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one persisted turn.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Store persists conversations. One backend is selected at startup.
type Store interface {
	Create(ctx context.Context, ownerID string, meta Meta) (string, error)
	// Find returns ErrNotFound unless id exists and belongs to ownerID.
	Find(ctx context.Context, id, ownerID string) (*Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, role, content string, attachments []Attachment) (*Message, error)
	// Messages returns the thread oldest first.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}
