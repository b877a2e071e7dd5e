package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"gembot/internal/domain"
)

// fakeConnector records sends and typing signals.
type fakeConnector struct {
	mu          sync.Mutex
	sent        []string
	typing      int
	typingStops int
	failAfter   int // fail sends once this many have succeeded (-1 = never)
	failErr     error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{failAfter: -1}
}

func (f *fakeConnector) Name() string { return "fake" }
func (f *fakeConnector) Self() domain.Self {
	return domain.Self{ID: "bot", MentionTokens: []string{"<@!bot>", "<@bot>"}}
}
func (f *fakeConnector) Start(ctx context.Context, bus domain.EventBus) error { return nil }

func (f *fakeConnector) Send(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.sent) >= f.failAfter {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("send refused")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConnector) Typing(chatID string) func() {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.typingStops++
		f.mu.Unlock()
	}
}

func (f *fakeConnector) Mention(userID string) string { return "<@" + userID + ">" }
func (f *fakeConnector) SetPresence(activity string) error { return nil }

// fakeGenerator returns a canned result or error and counts calls.
type fakeGenerator struct {
	res   *domain.GenerationResult
	err   error
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (*domain.GenerationResult, error) {
	f.calls++
	return f.res, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testEvent() domain.InboundEvent {
	return domain.InboundEvent{Channel: "fake", ChatID: "c1", AuthorID: "u1", Content: "hi"}
}

func TestDispatch_EmptyPromptSendsHelpWithoutBackendCall(t *testing.T) {
	conn := newFakeConnector()
	gen := &fakeGenerator{}
	d := New(Config{Generator: gen, Logger: testLogger()})

	d.Dispatch(context.Background(), conn, testEvent(), "")

	if gen.calls != 0 {
		t.Fatalf("backend must not be called for an empty prompt, got %d calls", gen.calls)
	}
	if conn.typing != 0 {
		t.Fatal("help path must not signal typing")
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one help message, got %d", len(conn.sent))
	}
	if !strings.Contains(conn.sent[0], "<@u1>") {
		t.Fatalf("help message must address the author: %q", conn.sent[0])
	}
}

func TestDispatch_SuccessShortText(t *testing.T) {
	conn := newFakeConnector()
	gen := &fakeGenerator{res: &domain.GenerationResult{Text: "the answer"}}
	d := New(Config{Generator: gen, Logger: testLogger()})

	d.Dispatch(context.Background(), conn, testEvent(), "question")

	if gen.calls != 1 {
		t.Fatalf("expected exactly one generation call, got %d", gen.calls)
	}
	if conn.typing != 1 {
		t.Fatalf("expected one typing signal, got %d", conn.typing)
	}
	if len(conn.sent) != 1 || conn.sent[0] != "the answer" {
		t.Fatalf("expected the generated text as one message, got %v", conn.sent)
	}
}

func TestDispatch_SuccessLongTextChunked(t *testing.T) {
	text := strings.Repeat("y", 4500)
	conn := newFakeConnector()
	gen := &fakeGenerator{res: &domain.GenerationResult{Text: text}}
	d := New(Config{Generator: gen, Logger: testLogger()})

	d.Dispatch(context.Background(), conn, testEvent(), "question")

	if len(conn.sent) != 3 {
		t.Fatalf("expected 3 sends for 4500 bytes, got %d", len(conn.sent))
	}
	if strings.Join(conn.sent, "") != text {
		t.Fatal("sends must concatenate back to the original text")
	}
}

func TestDispatch_SendFailureAbortsRemainingChunks(t *testing.T) {
	text := strings.Repeat("z", 4500)
	conn := newFakeConnector()
	conn.failAfter = 1
	conn.failErr = fmt.Errorf("posting here: %w", domain.ErrSendPermission)
	gen := &fakeGenerator{res: &domain.GenerationResult{Text: text}}
	d := New(Config{Generator: gen, Logger: testLogger()})

	d.Dispatch(context.Background(), conn, testEvent(), "question")

	if len(conn.sent) != 1 {
		t.Fatalf("after a send failure no further chunks may be attempted, got %d sends", len(conn.sent))
	}
}

func TestDispatch_SendFailureLogsIncompleteDelivery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	conn := newFakeConnector()
	conn.failAfter = 1
	gen := &fakeGenerator{res: &domain.GenerationResult{Text: strings.Repeat("w", 4500)}}
	d := New(Config{Generator: gen, Logger: logger})

	d.Dispatch(context.Background(), conn, testEvent(), "question")

	logs := buf.String()
	if strings.Contains(logs, "reply delivered") {
		t.Fatal("a failed delivery must not be logged as delivered")
	}
	if !strings.Contains(logs, "reply delivery incomplete") {
		t.Fatalf("expected an incomplete-delivery log entry, got:\n%s", logs)
	}
}

// panickyGenerator stands in for a backend whose client code panics.
type panickyGenerator struct{}

func (panickyGenerator) Generate(ctx context.Context, prompt string) (*domain.GenerationResult, error) {
	panic("generator exploded")
}

func TestDispatch_TypingStoppedWhenGeneratorPanics(t *testing.T) {
	conn := newFakeConnector()
	d := New(Config{Generator: panickyGenerator{}, Logger: testLogger()})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the generator panic to propagate")
			}
		}()
		d.Dispatch(context.Background(), conn, testEvent(), "question")
	}()

	if conn.typing != 1 {
		t.Fatalf("expected one typing signal, got %d", conn.typing)
	}
	if conn.typingStops != 1 {
		t.Fatalf("typing must be released exactly once despite the panic, got %d stops", conn.typingStops)
	}
}

func TestDispatch_BlockedSendsReasonMessage(t *testing.T) {
	conn := newFakeConnector()
	gen := &fakeGenerator{res: &domain.GenerationResult{
		Feedback: &domain.SafetyFeedback{BlockReason: "HATE_SPEECH"},
	}}
	d := New(Config{Generator: gen, Logger: testLogger()})

	d.Dispatch(context.Background(), conn, testEvent(), "question")

	if len(conn.sent) != 1 {
		t.Fatalf("expected a single blocked message, got %d", len(conn.sent))
	}
	if !strings.Contains(conn.sent[0], "HATE_SPEECH") {
		t.Fatalf("blocked message must carry the classification code: %q", conn.sent[0])
	}
}

func TestDispatch_EmptyWithoutFeedbackSendsGenericMessage(t *testing.T) {
	conn := newFakeConnector()
	gen := &fakeGenerator{res: &domain.GenerationResult{}}
	d := New(Config{Generator: gen, Logger: testLogger()})

	d.Dispatch(context.Background(), conn, testEvent(), "question")

	if len(conn.sent) != 1 {
		t.Fatalf("expected a single generic message, got %d", len(conn.sent))
	}
	if conn.sent[0] != d.templates.Empty {
		t.Fatalf("expected the generic empty-result text, got %q", conn.sent[0])
	}
}

func TestDispatch_BackendErrorSendsApology(t *testing.T) {
	conn := newFakeConnector()
	gen := &fakeGenerator{err: errors.New("connection reset by peer")}
	d := New(Config{Generator: gen, Logger: testLogger()})

	d.Dispatch(context.Background(), conn, testEvent(), "question")

	if len(conn.sent) != 1 {
		t.Fatalf("expected a single apology, got %d messages", len(conn.sent))
	}
	if strings.Contains(conn.sent[0], "connection reset") {
		t.Fatalf("backend error must not leak to the user: %q", conn.sent[0])
	}
}

func TestClassify_SuccessWinsOverFeedback(t *testing.T) {
	out := Classify(&domain.GenerationResult{
		Text:     "fine",
		Feedback: &domain.SafetyFeedback{BlockReason: "irrelevant"},
	}, nil)
	if out.Kind != domain.OutcomeSuccess || out.Text != "fine" {
		t.Fatalf("non-empty text is always a success, got %+v", out)
	}
}

func TestClassify_FeedbackWithoutCodeFallsBackToUnknown(t *testing.T) {
	out := Classify(&domain.GenerationResult{Feedback: &domain.SafetyFeedback{}}, nil)
	if out.Kind != domain.OutcomeBlocked {
		t.Fatalf("expected blocked, got %v", out.Kind)
	}
	if out.Reason != "unknown" {
		t.Fatalf("expected reason fallback 'unknown', got %q", out.Reason)
	}
}

func TestClassify_NilResultWithoutError(t *testing.T) {
	out := Classify(nil, nil)
	if out.Kind != domain.OutcomeEmpty {
		t.Fatalf("expected empty outcome for nil result, got %v", out.Kind)
	}
}

func TestClassify_Error(t *testing.T) {
	err := errors.New("quota exceeded")
	out := Classify(nil, err)
	if out.Kind != domain.OutcomeFailure || !errors.Is(out.Err, err) {
		t.Fatalf("expected failure carrying the error, got %+v", out)
	}
}
