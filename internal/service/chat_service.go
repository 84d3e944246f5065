package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"patient-llm/internal/domain"
	"patient-llm/internal/llm"
	"patient-llm/internal/retrieval"
	"patient-llm/internal/safety"
)

// ErrGeneration marca el agotamiento de reintentos contra el proveedor.
// El paciente igual recibe respuesta (el texto de contingencia); este
// error es para los logs y las metricas, no para el usuario.
var ErrGeneration = errors.New("generation failed after retries")

// ErrChatInvalidInput marca un turno sin mensaje o sin paciente.
var ErrChatInvalidInput = errors.New("chat invalid input")

// FallbackAnswer se entrega cuando el proveedor no respondio tras todos
// los reintentos. Nunca se entrega una respuesta vacia.
const FallbackAnswer = "I'm sorry - I'm having trouble generating a response right now. " +
	"Please try again in a moment. If your symptoms feel serious or you are worried, " +
	"please don't wait for me: contact your doctor or seek in-person care."

// Estados del turno, usados solo para logging estructurado.
const (
	turnStateReceived     = "RECEIVED"
	turnStateRetrieving   = "RETRIEVING"
	turnStateComposing    = "COMPOSING"
	turnStateRedFlagCheck = "RED_FLAG_CHECK"
	turnStateGenerating   = "GENERATING"
	turnStateFinalized    = "FINALIZED"
)

// PatientContextLookup resuelve el perfil opcional del paciente desde un
// servicio externo. Puede ser nil; su falla nunca bloquea el turno.
type PatientContextLookup interface {
	Lookup(ctx context.Context, patientID string) (*domain.PatientContext, error)
}

// GenerationPolicy acota los reintentos de la llamada al LLM.
type GenerationPolicy struct {
	MaxRetries  int
	CallTimeout time.Duration
	BackoffBase time.Duration
	Temperature float64
	MaxTokens   int
	Model       string
}

// TurnResult es el resultado de un turno completo del pipeline.
type TurnResult struct {
	SessionID   string
	UserMessage domain.Message
	Answer      domain.Message
	RedFlag     bool
	Degraded    bool
	Fallback    bool
}

// ChatService orquesta el pipeline por turno: recuperacion, composicion,
// chequeos de banderas rojas, generacion y memoria.
type ChatService struct {
	llmClient     llm.LLMClient
	retriever     retrieval.Retriever
	detector      *safety.Detector
	promptBuilder *PromptBuilder
	memory        *MemoryService
	patientLookup PatientContextLookup
	policy        GenerationPolicy
	topK          int
	logger        *zap.Logger

	sleep func(time.Duration) // inyectable en tests
}

func NewChatService(
	llmClient llm.LLMClient,
	retriever retrieval.Retriever,
	detector *safety.Detector,
	promptBuilder *PromptBuilder,
	memory *MemoryService,
	patientLookup PatientContextLookup,
	policy GenerationPolicy,
	topK int,
	logger *zap.Logger,
) *ChatService {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}
	if policy.CallTimeout <= 0 {
		policy.CallTimeout = 60 * time.Second
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = 500 * time.Millisecond
	}
	if topK <= 0 {
		topK = 4
	}
	return &ChatService{
		llmClient:     llmClient,
		retriever:     retriever,
		detector:      detector,
		promptBuilder: promptBuilder,
		memory:        memory,
		patientLookup: patientLookup,
		policy:        policy,
		topK:          topK,
		logger:        logger,
		sleep:         time.Sleep,
	}
}

// HandleTurn ejecuta el turno completo. Falla solo por input invalido o
// contexto cancelado: toda degradacion interna (indice caido, proveedor
// caido, store caido) resuelve en una respuesta segura igual.
func (s *ChatService) HandleTurn(ctx context.Context, sessionID, patientID, userMessage string) (TurnResult, error) {
	userMessage = strings.TrimSpace(userMessage)
	patientID = strings.TrimSpace(patientID)
	if userMessage == "" || patientID == "" {
		return TurnResult{}, ErrChatInvalidInput
	}
	s.logState(sessionID, turnStateReceived)

	patientCtx := s.lookupPatient(ctx, patientID)
	session, err := s.memory.GetSession(ctx, sessionID, patientID, patientCtx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("get session: %w", err)
	}
	if session.PatientContext == nil {
		session.PatientContext = patientCtx
	}

	result := TurnResult{SessionID: session.ID}

	// RETRIEVING: una falla del indice degrada a cero chunks, no es
	// falla de turno.
	s.logState(session.ID, turnStateRetrieving)
	var chunks []domain.RetrievedChunk
	if s.retriever != nil {
		chunks, err = s.retriever.Retrieve(ctx, userMessage, s.topK)
		if err != nil {
			if ctx.Err() != nil {
				return TurnResult{}, ctx.Err()
			}
			if s.logger != nil {
				s.logger.Warn("retrieval degraded, answering without reference material",
					zap.String("session_id", session.ID), zap.Error(err))
			}
			chunks = nil
			result.Degraded = true
		}
	}

	// RED_FLAG_CHECK previo, sobre el mensaje del paciente.
	s.logState(session.ID, turnStateRedFlagCheck)
	preMatch, preFlagged := s.detector.Detect(userMessage)

	s.logState(session.ID, turnStateComposing)
	history := s.memory.HistoryWindow(ctx, session.ID, s.promptBuilder.HistoryWindow)
	payload := s.promptBuilder.Compose(session.PatientContext, chunks, history, userMessage)

	s.logState(session.ID, turnStateGenerating)
	answerText, genErr := s.generateWithRetries(ctx, payload.Text)
	if genErr != nil {
		if ctx.Err() != nil {
			return TurnResult{}, ctx.Err()
		}
		if s.logger != nil {
			s.logger.Error("generation exhausted, serving fallback",
				zap.String("session_id", session.ID), zap.Error(genErr))
		}
		answerText = FallbackAnswer
		result.Fallback = true
	}

	// RED_FLAG_CHECK posterior, sobre el borrador de respuesta. La
	// escalacion es monotona: basta una bandera en cualquiera de los
	// dos chequeos para que el texto final la lleve.
	s.logState(session.ID, turnStateRedFlagCheck)
	postMatch, postFlagged := s.detector.Detect(answerText)

	match, flagged := reconcileMatches(preMatch, preFlagged, postMatch, postFlagged)
	if flagged && !strings.Contains(answerText, match.Escalation) {
		answerText += match.Escalation
	}
	result.RedFlag = flagged

	// FINALIZED: persistir usuario y luego asistente. Una falla de
	// escritura se loguea y la respuesta se entrega igual.
	s.logState(session.ID, turnStateFinalized)
	userMsg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   userMessage,
	}
	if preFlagged {
		userMsg.RedFlag = true
		userMsg.RedFlagSeverity = preMatch.Severity
	}
	assistantMsg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Content:   answerText,
	}
	if flagged {
		assistantMsg.RedFlag = true
		assistantMsg.RedFlagSeverity = match.Severity
		assistantMsg.EscalationText = match.Escalation
	}

	if saved, err := s.memory.Append(ctx, userMsg); err != nil {
		s.logPersistence(session.ID, err)
	} else {
		userMsg = saved
	}
	if saved, err := s.memory.Append(ctx, assistantMsg); err != nil {
		s.logPersistence(session.ID, err)
	} else {
		assistantMsg = saved
	}

	result.UserMessage = userMsg
	result.Answer = assistantMsg
	return result, nil
}

func (s *ChatService) generateWithRetries(ctx context.Context, prompt string) (string, error) {
	opts := llm.Options{
		Model:       s.policy.Model,
		Temperature: s.policy.Temperature,
		MaxTokens:   s.policy.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= s.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			// backoff exponencial: base, 2x, 4x...
			s.sleep(s.policy.BackoffBase << (attempt - 1))
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		callCtx, cancel := context.WithTimeout(ctx, s.policy.CallTimeout)
		text, err := s.llmClient.Generate(callCtx, prompt, opts)
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = fmt.Errorf("empty completion")
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrGeneration, lastErr)
}

func (s *ChatService) lookupPatient(ctx context.Context, patientID string) *domain.PatientContext {
	if s.patientLookup == nil {
		return nil
	}
	pc, err := s.patientLookup.Lookup(ctx, patientID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("patient context lookup failed, continuing without profile",
				zap.String("patient_id", patientID), zap.Error(err))
		}
		return nil
	}
	return pc
}

// reconcileMatches elige la bandera de mayor severidad entre los dos
// chequeos; en empate gana la del chequeo previo (el sintoma relatado
// por el paciente).
func reconcileMatches(pre safety.Match, preOK bool, post safety.Match, postOK bool) (safety.Match, bool) {
	switch {
	case preOK && postOK:
		if post.Severity > pre.Severity {
			return post, true
		}
		return pre, true
	case preOK:
		return pre, true
	case postOK:
		return post, true
	default:
		return safety.Match{}, false
	}
}

func (s *ChatService) logState(sessionID, state string) {
	if s.logger != nil {
		s.logger.Debug("turn state", zap.String("session_id", sessionID), zap.String("state", state))
	}
}

func (s *ChatService) logPersistence(sessionID string, err error) {
	if s.logger != nil {
		s.logger.Error("message persistence failed, answer stands",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}
