package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/auth"
	"github.com/rpenyav/ia-backend/internal/conversation"
	"github.com/rpenyav/ia-backend/internal/ingest"
	illm "github.com/rpenyav/ia-backend/internal/llm"
	"github.com/rpenyav/ia-backend/pkg/catalog"
	"github.com/rpenyav/ia-backend/pkg/llm"
	"github.com/rpenyav/ia-backend/pkg/llm/llmtest"
)

const testSystem = "Eres el asistente de pruebas."

// fakeCatalog records every filter it is asked for.
type fakeCatalog struct {
	mu       sync.Mutex
	products []catalog.Product
	err      error
	filters  []catalog.Filter
}

func (f *fakeCatalog) Search(_ context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.products, f.err
}

// fakeDocs returns canned text for every attachment.
type fakeDocs struct {
	text  string
	calls []string
}

func (f *fakeDocs) ExtractDocument(_ context.Context, kind ingest.Kind, name, url string, _ ingest.Options) (ingest.Document, bool) {
	f.calls = append(f.calls, url)
	if f.text == "" {
		return ingest.Document{}, false
	}
	return ingest.Document{SourceURL: url, Name: name, Kind: kind, Text: f.text}, true
}

type testEnv struct {
	ctrl     *Controller
	provider *llmtest.FakeProvider
	sink     *llmtest.MemorySink
	catalog  *fakeCatalog
	convs    *conversation.BadgerStore
	docs     *fakeDocs
}

// newTestEnv wires a controller to a scripted provider through the real
// orchestrator. The first reply answers the classifier, the second the turn.
func newTestEnv(t *testing.T, mode auth.Mode, replies ...llmtest.Reply) *testEnv {
	t.Helper()
	provider := &llmtest.FakeProvider{ProviderName: "fake", Replies: replies}
	sink := &llmtest.MemorySink{}
	orch := illm.NewOrchestrator(illm.GlobalDefaults{
		Provider:    "fake",
		Model:       "fake-model",
		Temperature: 0.2,
		MaxTokens:   2048,
	}, sink, zap.NewNop())
	orch.Register(provider, illm.Defaults{})

	convs, err := conversation.OpenBadger(conversation.BadgerConfig{InMemory: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { convs.Close() })

	env := &testEnv{
		provider: provider,
		sink:     sink,
		catalog:  &fakeCatalog{},
		convs:    convs,
		docs:     &fakeDocs{},
	}
	env.ctrl = NewController(Config{AuthMode: mode}, Deps{
		Generator:     orch,
		Catalog:       env.catalog,
		Conversations: convs,
		Prompts:       staticPrompt(testSystem),
		Documents:     env.docs,
		Logger:        zap.NewNop(),
	})
	return env
}

func reply(fragments ...string) llmtest.Reply {
	return llmtest.Reply{Fragments: fragments}
}

// collect drains a turn and splits deltas from the terminal event.
func collect(t *testing.T, seq func(func(Event) bool)) ([]string, Event) {
	t.Helper()
	var (
		deltas   []string
		terminal Event
		n        int
	)
	for ev := range seq {
		if ev.Done || ev.Err != nil {
			n++
			terminal = ev
			continue
		}
		if n > 0 {
			t.Errorf("delta %q after terminal event", ev.Delta)
		}
		deltas = append(deltas, ev.Delta)
	}
	if n != 1 {
		t.Fatalf("got %d terminal events, want 1", n)
	}
	return deltas, terminal
}

func TestStreamTurn_AnonymousRejectsAttachments(t *testing.T) {
	env := newTestEnv(t, auth.ModeNone, reply("never"))

	deltas, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{
		UserID:      "u1",
		Message:     "mira este pdf",
		Attachments: []AttachmentInput{{URL: "https://files.test/a.pdf", Filename: "a.pdf"}},
	}))

	if len(deltas) != 0 {
		t.Errorf("deltas = %v, want none", deltas)
	}
	if term.Err == nil {
		t.Fatal("expected error event")
	}
	if term.Err.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", term.Err.Status)
	}
	if term.Err.Message != msgAttachmentsNotAllowed {
		t.Errorf("Message = %q, want %q", term.Err.Message, msgAttachmentsNotAllowed)
	}
	if !errors.Is(term.Err, ErrAttachmentsNotAllowed) {
		t.Errorf("error chain = %v, want ErrAttachmentsNotAllowed", term.Err)
	}
	if got := env.provider.Calls(); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
	if got := len(env.sink.Records()); got != 0 {
		t.Errorf("usage records = %d, want 0", got)
	}
}

func TestStreamTurn_AnonymousPlain(t *testing.T) {
	env := newTestEnv(t, auth.ModeNone,
		reply(`{"wantsCars": false}`),
		llmtest.Reply{Fragments: []string{"Hel", "lo!"}, Usage: &llm.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}},
	)

	deltas, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{Message: "¿Qué es un CRM?"}))

	if got := strings.Join(deltas, "|"); got != "Hel|lo!" {
		t.Errorf("deltas = %q, want %q", got, "Hel|lo!")
	}
	if !term.Done || term.ConversationID != "" {
		t.Errorf("terminal = %+v, want done without conversation", term)
	}

	reqs := env.provider.Requests()
	if len(reqs) != 2 {
		t.Fatalf("provider calls = %d, want 2 (classifier + answer)", len(reqs))
	}
	if reqs[0].Temperature != 0 || reqs[0].MaxTokens != classifierMaxTokens {
		t.Errorf("classifier temperature/max = %v/%d, want 0/%d", reqs[0].Temperature, reqs[0].MaxTokens, classifierMaxTokens)
	}
	if reqs[1].Messages[0].Content != testSystem {
		t.Errorf("system prompt = %q, want %q", reqs[1].Messages[0].Content, testSystem)
	}
	if len(env.catalog.filters) != 0 {
		t.Errorf("catalog searched %d times, want 0", len(env.catalog.filters))
	}

	recs := env.sink.Records()
	if len(recs) != 2 {
		t.Fatalf("usage records = %d, want 2", len(recs))
	}
	last := recs[1]
	if last.UserID != nil || last.ConversationID != nil {
		t.Errorf("anonymous record attributed to %v/%v", last.UserID, last.ConversationID)
	}
	if last.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", last.TotalTokens)
	}
}

func TestStreamTurn_CatalogEmptyResult(t *testing.T) {
	env := newTestEnv(t, auth.ModeNone,
		reply("Claro, aquí va: ", `{"wantsCars": true, "maxPrice": 20000}`, " espero que sirva"),
		reply("No tenemos nada así."),
	)

	_, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{Message: "Quiero un coche por menos de 20000"}))
	if !term.Done {
		t.Fatalf("terminal = %+v, want done", term)
	}

	if len(env.catalog.filters) != 1 {
		t.Fatalf("catalog searched %d times, want 1", len(env.catalog.filters))
	}
	f := env.catalog.filters[0]
	if f.MaxPrice == nil || *f.MaxPrice != 20000 {
		t.Errorf("MaxPrice = %v, want 20000", f.MaxPrice)
	}
	if f.Limit != catalog.DefaultSearchLimit {
		t.Errorf("Limit = %d, want %d", f.Limit, catalog.DefaultSearchLimit)
	}

	answer := env.provider.Requests()[1]
	user := answer.Messages[1].Content
	for _, want := range []string{CardFence, `"status":"no_match"`, NoMatchMessage, "La lista está vacía"} {
		if !strings.Contains(user, want) {
			t.Errorf("catalog prompt missing %q", want)
		}
	}
	if got := len(env.sink.Records()); got != 2 {
		t.Errorf("usage records = %d, want 2", got)
	}
}

func TestStreamTurn_ClassifierGarbageFallsBackToHeuristic(t *testing.T) {
	env := newTestEnv(t, auth.ModeNone, reply("no lo sé"), reply("Mira estos SUV"))
	env.catalog.products = []catalog.Product{{ID: "1", Name: "Toyota C-HR", Brand: "Toyota", Price: 24500}}

	_, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{Message: "Busco un SUV familiar"}))
	if !term.Done {
		t.Fatalf("terminal = %+v, want done", term)
	}
	if len(env.catalog.filters) != 1 || env.catalog.filters[0].CategorySlug != "suv" {
		t.Fatalf("filters = %+v, want one search with category suv", env.catalog.filters)
	}
	system := env.provider.Requests()[1].Messages[0].Content
	if !strings.Contains(system, "INSTRUCCIONES ESPECÍFICAS PARA CONSULTAS DE COCHES") {
		t.Error("catalog instructions missing from system prompt")
	}
}

func TestStreamTurn_CatalogFailureAnswersPlain(t *testing.T) {
	env := newTestEnv(t, auth.ModeNone, reply(`{"wantsCars": true}`), reply("ok"))
	env.catalog.err = errors.New("db down")

	_, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{Message: "un coche"}))
	if !term.Done {
		t.Fatalf("terminal = %+v, want done", term)
	}
	if got := env.provider.Requests()[1].Messages[0].Content; got != testSystem {
		t.Errorf("system prompt = %q, want plain %q", got, testSystem)
	}
}

func TestStreamTurn_Authenticated(t *testing.T) {
	env := newTestEnv(t, auth.ModeLocal, reply(`{"wantsCars": false}`), reply("Res", "umen"))
	env.docs.text = "Ventas Q1: 10 unidades"
	ctx := context.Background()

	_, term := collect(t, env.ctrl.StreamTurn(ctx, TurnInput{
		UserID:  "u1",
		Message: "Resume el informe",
		Attachments: []AttachmentInput{
			{URL: "https://files.test/foto.PNG", Filename: "foto.PNG"},
			{URL: "https://files.test/informe.pdf", MimeType: "application/pdf", Filename: "informe.pdf"},
		},
	}))
	if !term.Done || term.ConversationID == "" {
		t.Fatalf("terminal = %+v, want done with conversation", term)
	}

	conv, err := env.convs.Find(ctx, term.ConversationID, "u1")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if conv.Title != DefaultConversationTitle || conv.Channel != DefaultConversationChannel {
		t.Errorf("conversation meta = %q/%q", conv.Title, conv.Channel)
	}

	msgs, err := env.convs.Messages(ctx, term.ConversationID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != llm.RoleUser || len(msgs[0].Attachments) != 2 {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[0].Attachments[0].Type != conversation.AttachmentImage || msgs[0].Attachments[1].Type != conversation.AttachmentFile {
		t.Errorf("attachment types = %q, %q", msgs[0].Attachments[0].Type, msgs[0].Attachments[1].Type)
	}
	if msgs[1].Role != llm.RoleAssistant || msgs[1].Content != "Resumen" || len(msgs[1].Attachments) != 0 {
		t.Errorf("assistant message = %+v", msgs[1])
	}

	if len(env.docs.calls) != 1 || env.docs.calls[0] != "https://files.test/informe.pdf" {
		t.Errorf("extracted = %v, want only the pdf", env.docs.calls)
	}

	answer := env.provider.Requests()[1]
	if len(answer.ImageURLs) != 1 || answer.ImageURLs[0] != "https://files.test/foto.PNG" {
		t.Errorf("ImageURLs = %v, want the png only", answer.ImageURLs)
	}
	if !strings.Contains(answer.Messages[0].Content, "=== Contenido del PDF: informe.pdf ===\nVentas Q1: 10 unidades") {
		t.Errorf("system prompt missing document section:\n%s", answer.Messages[0].Content)
	}

	for _, rec := range env.sink.Records() {
		if rec.UserID == nil || *rec.UserID != "u1" || rec.ConversationID == nil || *rec.ConversationID != term.ConversationID {
			t.Errorf("record not attributed to u1/%s: %+v", term.ConversationID, rec)
		}
	}
}

func TestStreamTurn_ResolvesConversation(t *testing.T) {
	env := newTestEnv(t, auth.ModeLocal, reply(`{"wantsCars": false}`), reply("ok"))
	ctx := context.Background()

	existing, err := env.convs.Create(ctx, "u1", conversation.Meta{Title: "Mía"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name    string
		user    string
		convID  string
		wantNew bool
	}{
		{"owned conversation is reused", "u1", existing, false},
		{"unknown id starts a new one", "u1", "does-not-exist", true},
		{"foreign conversation starts a new one", "u2", existing, true},
		{"no id starts a new one", "u1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, term := collect(t, env.ctrl.StreamTurn(ctx, TurnInput{UserID: tt.user, ConversationID: tt.convID, Message: "hola"}))
			if !term.Done {
				t.Fatalf("terminal = %+v, want done", term)
			}
			if gotNew := term.ConversationID != existing; gotNew != tt.wantNew {
				t.Errorf("conversation = %q, new = %v, want new = %v", term.ConversationID, gotNew, tt.wantNew)
			}
		})
	}
}

func TestStreamTurn_ProviderErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "insufficient balance",
			err:         &llm.ProviderError{Code: llm.ErrCodeInsufficientBalance, Message: "balance", StatusCode: 402, Body: `{"error":"Insufficient Balance"}`},
			wantStatus:  http.StatusPaymentRequired,
			wantMessage: msgInsufficientBalance,
		},
		{
			name:        "rate limited",
			err:         &llm.ProviderError{Code: llm.ErrCodeRateLimit, Message: "slow down", StatusCode: 429, Body: `{"error":"rate"}`},
			wantStatus:  http.StatusTooManyRequests,
			wantMessage: msgRateLimited,
		},
		{
			name:        "upstream failure",
			err:         &llm.ProviderError{Code: llm.ErrCodeServerError, Message: "boom", StatusCode: 500, Body: "stack trace"},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: msgGeneric,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, auth.ModeLocal,
				reply(`{"wantsCars": false}`),
				llmtest.Reply{Fragments: []string{"parcial"}, Err: tt.err},
			)
			deltas, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{UserID: "u1", Message: "hola"}))

			if len(deltas) != 1 || deltas[0] != "parcial" {
				t.Errorf("deltas = %v, want [parcial]", deltas)
			}
			if term.Err == nil {
				t.Fatal("expected error event")
			}
			if term.Err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", term.Err.Status, tt.wantStatus)
			}
			if term.Err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", term.Err.Message, tt.wantMessage)
			}
			pe := tt.err.(*llm.ProviderError)
			if term.Err.ProviderError != pe.Body {
				t.Errorf("ProviderError = %q, want %q", term.Err.ProviderError, pe.Body)
			}
			if strings.Contains(term.Err.Message, pe.Body) {
				t.Error("user message leaks the raw provider body")
			}

			msgs, err := env.convs.Messages(context.Background(), term.ConversationID)
			if err != nil {
				t.Fatalf("Messages() error = %v", err)
			}
			if len(msgs) != 1 {
				t.Errorf("messages = %d, want only the user message", len(msgs))
			}
			if got := len(env.sink.Records()); got != 2 {
				t.Errorf("usage records = %d, want 2", got)
			}
		})
	}
}

func TestStreamTurn_ConsumerStopsEarly(t *testing.T) {
	env := newTestEnv(t, auth.ModeLocal, reply(`{"wantsCars": false}`), reply("uno ", "dos ", "tres"))
	ctx := context.Background()

	for ev := range env.ctrl.StreamTurn(ctx, TurnInput{UserID: "u1", Message: "cuenta"}) {
		if ev.Delta == "uno " {
			break
		}
	}

	recs := env.sink.Records()
	if len(recs) != 2 {
		t.Fatalf("usage records = %d, want 2", len(recs))
	}
	convID := *recs[1].ConversationID
	msgs, err := env.convs.Messages(ctx, convID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "uno " {
		t.Errorf("messages = %+v, want partial assistant reply %q", msgs, "uno ")
	}
}

func TestStreamTurn_UnconfiguredProvider(t *testing.T) {
	env := newTestEnv(t, auth.ModeNone)
	env.ctrl.deps.Generator = illm.NewOrchestrator(illm.GlobalDefaults{Provider: "missing"}, env.sink, zap.NewNop())

	_, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{Message: "hola"}))
	if term.Err == nil {
		t.Fatal("expected error event")
	}
	if term.Err.Status != http.StatusServiceUnavailable || term.Err.Message != msgNotConfigured {
		t.Errorf("terminal = %d %q, want 503 %q", term.Err.Status, term.Err.Message, msgNotConfigured)
	}
	for _, rec := range env.sink.Records() {
		if rec.InputTokens != nil || rec.OutputTokens != nil || rec.TotalTokens != 0 {
			t.Errorf("undispatched call metered tokens: %+v", rec)
		}
	}
}

func TestStreamTurn_EmptyMessage(t *testing.T) {
	env := newTestEnv(t, auth.ModeNone, reply("x"))
	_, term := collect(t, env.ctrl.StreamTurn(context.Background(), TurnInput{Message: "   "}))
	if term.Err == nil || term.Err.Status != http.StatusBadRequest {
		t.Fatalf("terminal = %+v, want 400 error", term)
	}
	if env.provider.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", env.provider.Calls())
	}
}
