package chat

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/auth"
	"github.com/rpenyav/ia-backend/internal/conversation"
	"github.com/rpenyav/ia-backend/internal/ingest"
	"github.com/rpenyav/ia-backend/pkg/catalog"
	"github.com/rpenyav/ia-backend/pkg/llm"
)

// Defaults for a new conversation.
const (
	DefaultConversationTitle   = "Nueva conversación"
	DefaultConversationChannel = "widget-web"
)

// Generator streams one completion and meters it. The llm module
// implements it.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) iter.Seq2[string, error]
}

// Searcher queries the vehicle catalog.
type Searcher interface {
	Search(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
}

// PromptSource supplies the base system prompt for a turn.
type PromptSource interface {
	SystemPrompt(ctx context.Context) string
}

// DocumentExtractor turns an attachment into prompt text. *ingest.Extractor
// implements it.
type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, kind ingest.Kind, name, url string, opts ingest.Options) (ingest.Document, bool)
}

// Config tunes the controller.
type Config struct {
	AuthMode            auth.Mode
	MaxDocChars         int
	MaxDocLines         int
	CatalogLimit        int
	DebugClassification bool
}

// Deps are the collaborators of a Controller. Conversations and Documents
// are only used by authenticated turns.
type Deps struct {
	Generator     Generator
	Catalog       Searcher
	Conversations conversation.Store
	Prompts       PromptSource
	Documents     DocumentExtractor
	Logger        *zap.Logger
}

// TurnInput is one chat turn as received from the caller. UserID is empty
// for unauthenticated callers.
type TurnInput struct {
	UserID         string
	ConversationID string
	Message        string
	Attachments    []AttachmentInput
}

// Event is one step of a turn stream. Exactly one event per stream has
// Done set or Err non-nil, and it is always the last.
type Event struct {
	Delta          string
	Done           bool
	ConversationID string
	Err            *TurnError
}

// Controller sequences a chat turn: prompt resolution, persistence,
// document ingestion, catalog branching and generation.
type Controller struct {
	cfg  Config
	deps Deps
}

// NewController creates a Controller.
func NewController(cfg Config, deps Deps) *Controller {
	cfg.CatalogLimit = cmp.Or(cfg.CatalogLimit, catalog.DefaultSearchLimit)
	cfg.MaxDocChars = cmp.Or(cfg.MaxDocChars, ingest.DefaultMaxChars)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, deps: deps}
}

// StreamTurn runs one turn. Fragments are delivered as Delta events as soon
// as the model produces them, followed by a single terminal event. Stopping
// the iteration cancels generation.
func (c *Controller) StreamTurn(ctx context.Context, in TurnInput) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		started := time.Now()
		convID, branch, err := c.run(ctx, in, func(delta string) bool {
			return yield(Event{Delta: delta})
		})
		outcome := "ok"
		defer func() {
			turnsTotal.WithLabelValues(branch, outcome).Inc()
			turnDuration.WithLabelValues(branch).Observe(time.Since(started).Seconds())
		}()

		switch {
		case errors.Is(err, errStopped):
			outcome = "canceled"
		case err != nil:
			outcome = "error"
			if errors.Is(err, context.Canceled) {
				outcome = "canceled"
			}
			te := newTurnError(err)
			c.deps.Logger.Warn("chat turn failed",
				zap.String("conversation_id", convID),
				zap.Int("status", te.Status),
				zap.String("provider_error", te.ProviderError),
				zap.Error(err),
			)
			yield(Event{Err: te, ConversationID: convID})
		default:
			yield(Event{Done: true, ConversationID: convID})
		}
	}
}

// run executes the turn and returns the conversation used (empty when
// anonymous) and the branch taken.
func (c *Controller) run(ctx context.Context, in TurnInput, emit func(string) bool) (string, string, error) {
	if strings.TrimSpace(in.Message) == "" {
		return "", branchNone, ErrEmptyMessage
	}
	system := c.systemPrompt(ctx)

	if c.cfg.AuthMode == auth.ModeNone || in.UserID == "" {
		if len(in.Attachments) > 0 {
			return "", branchNone, ErrAttachmentsNotAllowed
		}
		branch, err := c.generate(ctx, turn{system: system, message: in.Message}, emit)
		return "", branch, err
	}

	if c.deps.Conversations == nil {
		return "", branchNone, fmt.Errorf("conversation store not configured")
	}
	convID, err := c.resolveConversation(ctx, in.UserID, in.ConversationID)
	if err != nil {
		return "", branchNone, err
	}

	atts := NormalizeAttachments(in.Attachments)
	if _, err := c.deps.Conversations.AppendMessage(ctx, convID, llm.RoleUser, in.Message, atts); err != nil {
		return convID, branchNone, fmt.Errorf("persist user message: %w", err)
	}

	t := turn{
		system:  EnrichWithDocuments(system, c.extractDocuments(ctx, atts)),
		message: in.Message,
		userID:  in.UserID,
		convID:  convID,
		images:  ImageURLs(atts),
	}

	var full strings.Builder
	branch, genErr := c.generate(ctx, t, func(delta string) bool {
		full.WriteString(delta)
		return emit(delta)
	})

	// A provider failure leaves the thread without a reply. A caller that
	// went away keeps whatever was produced.
	gone := errors.Is(genErr, errStopped) || errors.Is(genErr, context.Canceled)
	if genErr == nil || (gone && full.Len() > 0) {
		persistCtx := context.WithoutCancel(ctx)
		if _, err := c.deps.Conversations.AppendMessage(persistCtx, convID, llm.RoleAssistant, full.String(), []conversation.Attachment{}); err != nil {
			if genErr == nil {
				return convID, branch, fmt.Errorf("persist assistant message: %w", err)
			}
			c.deps.Logger.Error("persist partial assistant message", zap.String("conversation_id", convID), zap.Error(err))
		}
	}
	return convID, branch, genErr
}

func (c *Controller) systemPrompt(ctx context.Context) string {
	if c.deps.Prompts == nil {
		return ""
	}
	return c.deps.Prompts.SystemPrompt(ctx)
}

// resolveConversation reuses the caller's conversation when it exists and
// belongs to them, and otherwise starts a new one.
func (c *Controller) resolveConversation(ctx context.Context, userID, convID string) (string, error) {
	if convID != "" {
		conv, err := c.deps.Conversations.Find(ctx, convID, userID)
		switch {
		case err == nil:
			return conv.ID, nil
		case !errors.Is(err, conversation.ErrNotFound):
			return "", fmt.Errorf("find conversation: %w", err)
		}
		c.deps.Logger.Debug("conversation not found, starting a new one",
			zap.String("conversation_id", convID),
			zap.String("user_id", userID),
		)
	}
	id, err := c.deps.Conversations.Create(ctx, userID, conversation.Meta{
		Title:   DefaultConversationTitle,
		Channel: DefaultConversationChannel,
	})
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

func (c *Controller) extractDocuments(ctx context.Context, atts []conversation.Attachment) []ingest.Document {
	refs := documents(atts)
	if len(refs) == 0 || c.deps.Documents == nil {
		return nil
	}
	opts := ingest.Options{MaxChars: c.cfg.MaxDocChars, MaxLines: c.cfg.MaxDocLines}
	var docs []ingest.Document
	for _, ref := range refs {
		doc, ok := c.deps.Documents.ExtractDocument(ctx, ref.kind, ref.name, ref.url, opts)
		if !ok {
			documentsTotal.WithLabelValues(string(ref.kind), "skipped").Inc()
			continue
		}
		documentsTotal.WithLabelValues(string(ref.kind), "extracted").Inc()
		docs = append(docs, doc)
	}
	return docs
}

// Branches a turn can take.
const (
	branchNone    = "none"
	branchPlain   = "plain"
	branchCatalog = "catalog"
)

// turn is the resolved input of the generation step.
type turn struct {
	system  string
	message string
	userID  string
	convID  string
	images  []string
}

// generate classifies the turn, builds the branch prompt and streams the
// answer through emit.
func (c *Controller) generate(ctx context.Context, t turn, emit func(string) bool) (string, error) {
	cls, classified := c.classify(ctx, t)
	heuristic := LooksLikeCarQuery(t.message)
	wantsCars := heuristic
	if classified {
		wantsCars = cls.WantsCars
	}

	var (
		messages []llm.Message
		branch   = branchPlain
	)
	if wantsCars {
		var clsPtr *Classification
		if classified {
			clsPtr = &cls
		}
		filter := MergeFilters(clsPtr, HeuristicFilter(t.message), c.cfg.CatalogLimit)
		products, err := c.search(ctx, filter)
		if err == nil {
			branch = branchCatalog
			messages = BuildCatalogPrompt(t.system, t.message, products)
		} else {
			c.deps.Logger.Warn("catalog search failed, answering without catalog", zap.Error(err))
		}
	}
	if messages == nil {
		messages = BuildPlainPrompt(t.system, t.message, c.debugNote(cls, classified, heuristic, wantsCars))
	}

	opts := []llm.CallOption{llm.WithUser(t.userID), llm.WithConversation(t.convID)}
	if len(t.images) > 0 {
		opts = append(opts, llm.WithImageURLs(t.images...))
	}
	for frag, err := range c.deps.Generator.Generate(ctx, messages, opts...) {
		if err != nil {
			return branch, err
		}
		if !emit(frag) {
			return branch, errStopped
		}
	}
	return branch, nil
}

func (c *Controller) search(ctx context.Context, f catalog.Filter) ([]catalog.Product, error) {
	if c.deps.Catalog == nil {
		return nil, fmt.Errorf("catalog not configured")
	}
	return c.deps.Catalog.Search(ctx, f)
}

// classify asks the model whether the turn is a catalog query. ok is false
// when the call failed or its output held no usable JSON object; the
// caller then falls back to keyword heuristics.
func (c *Controller) classify(ctx context.Context, t turn) (Classification, bool) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: classifierPrompt},
		{Role: llm.RoleUser, Content: t.message},
	}
	raw, err := llm.Collect(c.deps.Generator.Generate(ctx, messages,
		llm.WithTemperature(classifierTemperature),
		llm.WithMaxTokens(classifierMaxTokens),
		llm.WithUser(t.userID),
		llm.WithConversation(t.convID),
	))
	if err != nil {
		c.deps.Logger.Warn("classifier call failed", zap.Error(err))
		return Classification{}, false
	}
	cls, ok := ParseClassification(raw)
	if !ok && hasSpan(raw) {
		c.deps.Logger.Warn("classifier returned unparsable JSON", zap.String("raw", raw))
	}
	return cls, ok
}

func (c *Controller) debugNote(cls Classification, classified, heuristic, wantsCars bool) string {
	if !c.cfg.DebugClassification {
		return ""
	}
	note := struct {
		Analysis           *Classification `json:"analysis"`
		HeuristicWantsCars bool            `json:"heuristicWantsCars"`
		WantsCars          bool            `json:"wantsCars"`
	}{HeuristicWantsCars: heuristic, WantsCars: wantsCars}
	if classified {
		note.Analysis = &cls
	}
	b, _ := json.MarshalIndent(note, "", "  ")
	return string(b)
}
