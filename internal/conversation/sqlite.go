package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

// SQLiteStore keeps conversations in the shared database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store over db. Run migrations() first.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, ownerID string, meta Meta) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, channel, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, ownerID, meta.Title, meta.Channel, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Find(ctx context.Context, id, ownerID string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, channel, created_at
		FROM conversations WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.Channel, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, role, content string, attachments []Attachment) (*Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if attachments == nil {
		attachments = []Attachment{}
	}
	attJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("marshal attachments: %w", err)
	}
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, string(attJSON), msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, attachments, created_at
		FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var (
			m   Message
			att string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &att, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(att), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create conversations and conversation_messages tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE conversations (
						id         TEXT PRIMARY KEY,
						owner_id   TEXT NOT NULL,
						title      TEXT NOT NULL DEFAULT '',
						channel    TEXT NOT NULL DEFAULT '',
						created_at DATETIME NOT NULL
					)`,
					`CREATE INDEX idx_conversations_owner ON conversations(owner_id)`,
					`CREATE TABLE conversation_messages (
						id              TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						role            TEXT NOT NULL,
						content         TEXT NOT NULL,
						attachments     TEXT NOT NULL DEFAULT '[]',
						created_at      DATETIME NOT NULL
					)`,
					`CREATE INDEX idx_conversation_messages_conv ON conversation_messages(conversation_id, created_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
