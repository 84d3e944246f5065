package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"patient-llm/internal/domain"
	"patient-llm/internal/llm"
	"patient-llm/internal/retrieval"
	"patient-llm/internal/safety"
)

type mockRetriever struct {
	chunks []domain.RetrievedChunk
	err    error
	calls  int
}

func (m *mockRetriever) Retrieve(context.Context, string, int) ([]domain.RetrievedChunk, error) {
	m.calls++
	return m.chunks, m.err
}

type mockPatientLookup struct {
	ctx *domain.PatientContext
	err error
}

func (m *mockPatientLookup) Lookup(context.Context, string) (*domain.PatientContext, error) {
	return m.ctx, m.err
}

func newTestChatService(client llm.LLMClient, retriever retrieval.Retriever, lookup PatientContextLookup) (*ChatService, *mockMessageRepo) {
	messages := &mockMessageRepo{}
	memory := NewMemoryService(newMockSessionRepo(), messages, zap.NewNop())
	svc := NewChatService(
		client,
		retriever,
		safety.NewDetector(nil),
		NewPromptBuilder(12000, 6000, 10),
		memory,
		lookup,
		GenerationPolicy{MaxRetries: 2, CallTimeout: time.Second, BackoffBase: time.Millisecond},
		4,
		zap.NewNop(),
	)
	svc.sleep = func(time.Duration) {}
	return svc, messages
}

func TestHandleTurnHappyPath(t *testing.T) {
	client := &llm.MockClient{Response: "Fiber and fluids usually help."}
	retriever := &mockRetriever{chunks: []domain.RetrievedChunk{{SourceID: "doc", Content: "fiber info"}}}
	svc, messages := newTestChatService(client, retriever, nil)

	result, err := svc.HandleTurn(context.Background(), "s1", "p1", "What helps constipation?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer.Content != "Fiber and fluids usually help." {
		t.Fatalf("unexpected answer: %q", result.Answer.Content)
	}
	if result.RedFlag || result.Degraded || result.Fallback {
		t.Fatalf("unexpected flags in result: %+v", result)
	}
	if len(messages.created) != 2 {
		t.Fatalf("expected user + assistant persisted, got %d", len(messages.created))
	}
	if messages.created[0].Role != domain.RoleUser || messages.created[1].Role != domain.RoleAssistant {
		t.Fatalf("messages persisted out of order: %s then %s", messages.created[0].Role, messages.created[1].Role)
	}
	if !strings.Contains(client.Prompts[0], "fiber info") {
		t.Fatalf("expected retrieved chunk in prompt")
	}
}

func TestHandleTurnRetrievalFailureDegrades(t *testing.T) {
	client := &llm.MockClient{Response: "General advice."}
	retriever := &mockRetriever{err: retrieval.ErrUnavailable}
	svc, _ := newTestChatService(client, retriever, nil)

	result, err := svc.HandleTurn(context.Background(), "s1", "p1", "What helps constipation?")
	if err != nil {
		t.Fatalf("retrieval failure must not fail the turn: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded mode to be reported")
	}
	if result.Answer.Content == "" {
		t.Fatalf("expected an answer in degraded mode")
	}
}

func TestHandleTurnRedFlagOnUserMessage(t *testing.T) {
	client := &llm.MockClient{Response: "You may have irritation."}
	svc, messages := newTestChatService(client, &mockRetriever{}, nil)

	result, err := svc.HandleTurn(context.Background(), "s1", "p1",
		"I've had rectal bleeding for 3 weeks and feel dizzy when standing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RedFlag {
		t.Fatalf("expected red flag from pre-check")
	}
	if !strings.Contains(result.Answer.Content, "seek medical attention today") {
		t.Fatalf("expected escalation text appended, got %q", result.Answer.Content)
	}
	if !strings.HasPrefix(result.Answer.Content, "You may have irritation.") {
		t.Fatalf("escalation must append, not replace model content")
	}
	if !messages.created[0].RedFlag || messages.created[0].RedFlagSeverity != 3 {
		t.Fatalf("expected severity recorded on user message: %+v", messages.created[0])
	}
}

func TestHandleTurnRedFlagOnDraftAnswer(t *testing.T) {
	// El mensaje del paciente es benigno; el borrador menciona sintomas
	// de urgencia y el post-chequeo debe escalar.
	client := &llm.MockClient{Response: "If you ever notice black tarry stool, that changes things."}
	svc, _ := newTestChatService(client, &mockRetriever{}, nil)

	result, err := svc.HandleTurn(context.Background(), "s1", "p1", "Is my diet okay?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RedFlag {
		t.Fatalf("expected red flag from post-check")
	}
	if !strings.Contains(result.Answer.Content, "seek medical attention today") {
		t.Fatalf("expected escalation appended after post-check")
	}
}

func TestHandleTurnGenerationExhaustionFallback(t *testing.T) {
	client := &llm.MockClient{Err: errors.New("provider down")}
	svc, messages := newTestChatService(client, &mockRetriever{}, nil)

	result, err := svc.HandleTurn(context.Background(), "s1", "p1", "What helps?")
	if err != nil {
		t.Fatalf("exhaustion must not fail the turn: %v", err)
	}
	if !result.Fallback {
		t.Fatalf("expected fallback to be reported")
	}
	if result.Answer.Content == "" {
		t.Fatalf("never an empty answer")
	}
	if !strings.Contains(result.Answer.Content, "seek in-person care") {
		t.Fatalf("fallback must carry seek-care guidance, got %q", result.Answer.Content)
	}
	// MaxRetries=2 -> 3 intentos en total.
	if client.Calls != 3 {
		t.Fatalf("expected 3 generation attempts, got %d", client.Calls)
	}
	if len(messages.created) != 2 {
		t.Fatalf("fallback answer must still be persisted")
	}
}

func TestHandleTurnRetrySucceedsSecondAttempt(t *testing.T) {
	client := &llm.MockClient{
		Errs:      []error{errors.New("timeout"), nil},
		Responses: []string{"", "Here is your answer."},
	}
	svc, _ := newTestChatService(client, &mockRetriever{}, nil)

	result, err := svc.HandleTurn(context.Background(), "s1", "p1", "What helps?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Fallback {
		t.Fatalf("retry succeeded, fallback should not trigger")
	}
	if result.Answer.Content != "Here is your answer." {
		t.Fatalf("unexpected answer: %q", result.Answer.Content)
	}
	if client.Calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", client.Calls)
	}
}

func TestHandleTurnInvalidInput(t *testing.T) {
	svc, _ := newTestChatService(&llm.MockClient{Response: "x"}, &mockRetriever{}, nil)

	if _, err := svc.HandleTurn(context.Background(), "s1", "p1", "   "); !errors.Is(err, ErrChatInvalidInput) {
		t.Fatalf("expected ErrChatInvalidInput, got %v", err)
	}
	if _, err := svc.HandleTurn(context.Background(), "s1", "", "hello"); !errors.Is(err, ErrChatInvalidInput) {
		t.Fatalf("expected ErrChatInvalidInput for missing patient, got %v", err)
	}
}

func TestHandleTurnPatientContextInPrompt(t *testing.T) {
	client := &llm.MockClient{Response: "ok"}
	lookup := &mockPatientLookup{ctx: &domain.PatientContext{PatientID: "p1", Pregnant: true}}
	svc, _ := newTestChatService(client, &mockRetriever{}, lookup)

	if _, err := svc.HandleTurn(context.Background(), "s1", "p1", "what is safe for me?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(client.Prompts[0], "pregnancy-safe") {
		t.Fatalf("expected pregnancy guidance in prompt")
	}
}

func TestHandleTurnPatientLookupFailureIgnored(t *testing.T) {
	client := &llm.MockClient{Response: "ok"}
	lookup := &mockPatientLookup{err: errors.New("service down")}
	svc, _ := newTestChatService(client, &mockRetriever{}, lookup)

	result, err := svc.HandleTurn(context.Background(), "s1", "p1", "hello there")
	if err != nil {
		t.Fatalf("lookup failure must not block the turn: %v", err)
	}
	if result.Answer.Content != "ok" {
		t.Fatalf("unexpected answer: %q", result.Answer.Content)
	}
}
