package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"patient-llm/internal/domain"
	"patient-llm/internal/repository"
)

// ErrPersistence marca una falla de escritura del historial. El turno ya
// tiene respuesta cuando esto ocurre; se loguea y la respuesta se entrega
// igual.
var ErrPersistence = errors.New("memory persistence failed")

// ErrMemoryInvalidInput marca mensajes incompletos que no se persisten.
var ErrMemoryInvalidInput = errors.New("memory invalid input")

const (
	memoryStripes = 64

	// tope de sesiones con timestamp rastreado; al llegar se desaloja
	// una arbitraria, que reinicia desde el reloj
	maxTrackedSessions = 4096
)

// MemoryService es el historial durable de conversacion. Serializa los
// appends por sesion con mutexes rayados: el orden del historial es orden
// de llegada, no orden de timestamp.
type MemoryService struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	logger   *zap.Logger

	stripes [memoryStripes]sync.Mutex
	// ultimo timestamp asignado por sesion, para mantener monotonia
	// aunque el reloj retroceda
	lastMu sync.Mutex
	last   map[string]time.Time
}

func NewMemoryService(sessions repository.SessionRepository, messages repository.MessageRepository, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		sessions: sessions,
		messages: messages,
		logger:   logger,
		last:     make(map[string]time.Time),
	}
}

// GetSession devuelve la sesion, creandola si no existe. Un error de
// lectura degrada a sesion vacia en memoria: el turno no se pierde por un
// problema del store.
func (s *MemoryService) GetSession(ctx context.Context, sessionID, patientID string, patientCtx *domain.PatientContext) (domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	switch {
	case err == nil:
		msgs, listErr := s.messages.ListBySessionID(ctx, sessionID)
		if listErr != nil {
			if s.logger != nil {
				s.logger.Warn("history read failed, serving empty session",
					zap.String("session_id", sessionID), zap.Error(listErr))
			}
			session.Messages = nil
			return session, nil
		}
		session.Messages = msgs
		return session, nil

	case errors.Is(err, pgx.ErrNoRows):
		session = domain.Session{
			ID:             sessionID,
			PatientID:      patientID,
			PatientContext: patientCtx,
			CreatedAt:      time.Now().UTC(),
		}
		if createErr := s.sessions.Create(ctx, session); createErr != nil {
			if s.logger != nil {
				s.logger.Warn("session create failed, continuing in-memory",
					zap.String("session_id", sessionID), zap.Error(createErr))
			}
		}
		return session, nil

	default:
		if s.logger != nil {
			s.logger.Warn("session read failed, serving fresh session",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return domain.Session{
			ID:        sessionID,
			PatientID: patientID,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
}

// Append agrega un mensaje al final del historial de su sesion. Los
// appends concurrentes a la misma sesion se serializan; el timestamp
// asignado nunca retrocede dentro de la sesion.
func (s *MemoryService) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.SessionID = strings.TrimSpace(msg.SessionID)
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.SessionID == "" || msg.Role == "" || msg.Content == "" {
		return domain.Message{}, ErrMemoryInvalidInput
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	lock := &s.stripes[stripeFor(msg.SessionID)]
	lock.Lock()
	defer lock.Unlock()

	msg.CreatedAt = s.nextTimestamp(msg.SessionID)

	if err := s.messages.Create(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msg, nil
}

// HistoryWindow devuelve los n mensajes mas recientes en orden de
// llegada. Sesion desconocida o error de lectura devuelven vacio.
func (s *MemoryService) HistoryWindow(ctx context.Context, sessionID string, n int) []domain.Message {
	if strings.TrimSpace(sessionID) == "" || n <= 0 {
		return []domain.Message{}
	}
	msgs, err := s.messages.ListBySessionID(ctx, sessionID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("history window read failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return []domain.Message{}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// Summary calcula el resumen de sesion para el endpoint de consulta.
func (s *MemoryService) Summary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("get session: %w", err)
	}
	msgs, err := s.messages.ListBySessionID(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("list messages: %w", err)
	}

	summary := domain.SessionSummary{
		SessionID:    session.ID,
		PatientID:    session.PatientID,
		MessageCount: len(msgs),
	}
	for _, m := range msgs {
		if m.RedFlag {
			summary.RedFlagCount++
		}
	}
	if len(msgs) > 0 {
		first := msgs[0].CreatedAt
		last := msgs[len(msgs)-1].CreatedAt
		summary.FirstMessage = &first
		summary.LastMessage = &last
	}
	return summary, nil
}

func (s *MemoryService) nextTimestamp(sessionID string) time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	now := time.Now().UTC()
	prev, ok := s.last[sessionID]
	if ok && !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	if !ok && len(s.last) >= maxTrackedSessions {
		for k := range s.last {
			delete(s.last, k)
			break
		}
	}
	s.last[sessionID] = now
	return now
}

func stripeFor(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % memoryStripes)
}
