package usage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 1000

// Store persists usage records. Appends must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, rec llm.UsageRecord) error
	List(ctx context.Context, limit int) ([]llm.UsageRecord, error)
	ByUser(ctx context.Context, userID string) ([]llm.UsageRecord, error)
	ByConversation(ctx context.Context, conversationID string) ([]llm.UsageRecord, error)
}

// SQLiteStore keeps usage records in the shared database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store over db. Run migrations() first.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Append(ctx context.Context, rec llm.UsageRecord) error {
	rec = withDefaults(rec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (
			id, provider, model, user_id, conversation_id,
			input_tokens, output_tokens, total_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Provider, rec.Model, nullString(rec.UserID), nullString(rec.ConversationID),
		nullInt(rec.InputTokens), nullInt(rec.OutputTokens), rec.TotalTokens, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// List returns the newest records first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]llm.UsageRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.query(ctx, `ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) ByUser(ctx context.Context, userID string) ([]llm.UsageRecord, error) {
	return s.query(ctx, `WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
}

func (s *SQLiteStore) ByConversation(ctx context.Context, conversationID string) ([]llm.UsageRecord, error) {
	return s.query(ctx, `WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC`, conversationID)
}

func (s *SQLiteStore) query(ctx context.Context, tail string, args ...any) ([]llm.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, model, user_id, conversation_id,
		       input_tokens, output_tokens, total_tokens, created_at
		FROM usage_records `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	records := []llm.UsageRecord{}
	for rows.Next() {
		var (
			rec          llm.UsageRecord
			userID, conv sql.NullString
			in, out      sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Provider, &rec.Model, &userID, &conv,
			&in, &out, &rec.TotalTokens, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		if userID.Valid {
			rec.UserID = &userID.String
		}
		if conv.Valid {
			rec.ConversationID = &conv.String
		}
		if in.Valid {
			v := int(in.Int64)
			rec.InputTokens = &v
		}
		if out.Valid {
			v := int(out.Int64)
			rec.OutputTokens = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MemoryStore is a process-local Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records []llm.UsageRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec llm.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, withDefaults(rec))
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]llm.UsageRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out := s.newestFirst(func(llm.UsageRecord) bool { return true })
	return out[:min(limit, len(out))], nil
}

func (s *MemoryStore) ByUser(_ context.Context, userID string) ([]llm.UsageRecord, error) {
	return s.newestFirst(func(r llm.UsageRecord) bool {
		return r.UserID != nil && *r.UserID == userID
	}), nil
}

func (s *MemoryStore) ByConversation(_ context.Context, conversationID string) ([]llm.UsageRecord, error) {
	return s.newestFirst(func(r llm.UsageRecord) bool {
		return r.ConversationID != nil && *r.ConversationID == conversationID
	}), nil
}

func (s *MemoryStore) newestFirst(keep func(llm.UsageRecord) bool) []llm.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []llm.UsageRecord{}
	for _, r := range slices.Backward(s.records) {
		if keep(r) {
			out = append(out, r)
		}
	}
	// Appends are not guaranteed to arrive in timestamp order.
	slices.SortStableFunc(out, func(a, b llm.UsageRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func withDefaults(rec llm.UsageRecord) llm.UsageRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
