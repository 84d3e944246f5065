package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"patient-llm/internal/domain"
	"patient-llm/internal/repository"
	"patient-llm/internal/service"
)

// ChatHandler mantiene dependencias para los endpoints de chat de pacientes.
type ChatHandler struct {
	logger   *zap.Logger
	sessions repository.SessionRepository
	memory   *service.MemoryService
	chatServ *service.ChatService
	limiter  service.ChatRateLimiter
}

func NewChatHandler(
	logger *zap.Logger,
	sessions repository.SessionRepository,
	memory *service.MemoryService,
	chatServ *service.ChatService,
	limiter service.ChatRateLimiter,
) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		sessions: sessions,
		memory:   memory,
		chatServ: chatServ,
		limiter:  limiter,
	}
}

// CreateSession maneja POST /session.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req struct {
		PatientID string `json:"patient_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		PatientID: req.PatientID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.sessions.Create(c.Request.Context(), session); err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// PostTurn maneja POST /chat: un turno completo del pipeline.
func (h *ChatHandler) PostTurn(c *gin.Context) {
	var req struct {
		PatientID string `json:"patient_id" binding:"required"`
		SessionID string `json:"session_id"`
		Message   string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.PatientID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, please wait a moment"})
		return
	}

	result, err := h.chatServ.HandleTurn(c.Request.Context(), req.SessionID, req.PatientID, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrChatInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		h.logger.Error("turn failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": result.SessionID,
		"answer":     result.Answer,
		"red_flag":   result.RedFlag,
	})
}

// GetSessionSummary maneja GET /session/:id/summary.
func (h *ChatHandler) GetSessionSummary(c *gin.Context) {
	summary, err := h.memory.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
