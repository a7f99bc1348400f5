package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Key layout:
//
//	c:<conversation id>              -> Conversation
//	m:<conversation id>:<seq %020d>  -> Message
const (
	convPrefix = "c:"
	msgPrefix  = "m:"
	seqKey     = "seq:messages"
)

// BadgerConfig configures the embedded key-value backend.
type BadgerConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

// BadgerStore keeps conversations in an embedded Badger database.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the database described by cfg.
func OpenBadger(cfg BadgerConfig, logger *zap.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("conversation.badger.dir is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(badgerLogger{logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(seqKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("release sequence: %w", err)
	}
	return s.db.Close()
}

func (s *BadgerStore) Create(_ context.Context, ownerID string, meta Meta) (string, error) {
	c := Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     meta.Title,
		Channel:   meta.Channel,
		CreatedAt: time.Now().UTC(),
	}
	val, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal conversation: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(convPrefix+c.ID), val)
	})
	if err != nil {
		return "", fmt.Errorf("store conversation: %w", err)
	}
	return c.ID, nil
}

func (s *BadgerStore) Find(_ context.Context, id, ownerID string) (*Conversation, error) {
	var c Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, convPrefix+id, &c)
	})
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *BadgerStore) AppendMessage(_ context.Context, conversationID, role, content string, attachments []Attachment) (*Message, error) {
	if attachments == nil {
		attachments = []Attachment{}
	}
	n, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("next message sequence: %w", err)
	}
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	}
	val, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(convPrefix + conversationID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Set(messageKey(conversationID, n), val)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BadgerStore) Messages(_ context.Context, conversationID string) ([]Message, error) {
	msgs := []Message{}
	prefix := []byte(msgPrefix + conversationID + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 50, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var m Message
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func messageKey(conversationID string, n uint64) []byte {
	return fmt.Appendf(nil, "%s%s:%020d", msgPrefix, conversationID, n)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

// badgerLogger routes badger's internal logs to zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.s.Debugf(format, args...) }
