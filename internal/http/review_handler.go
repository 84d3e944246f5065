package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"patient-llm/internal/domain"
	"patient-llm/internal/eval"
	"patient-llm/internal/repository"
	"patient-llm/internal/service"
)

// ReviewHandler expone login de revisores y la API de revision de runs.
type ReviewHandler struct {
	logger       *zap.Logger
	reviewerServ *service.ReviewerService
	jwtServ      *service.JWTService
	reviewServ   *eval.ReviewService
	runs         repository.RunRepository
	cases        []domain.EvaluationCase
}

func NewReviewHandler(
	logger *zap.Logger,
	reviewerServ *service.ReviewerService,
	jwtServ *service.JWTService,
	reviewServ *eval.ReviewService,
	runs repository.RunRepository,
	cases []domain.EvaluationCase,
) *ReviewHandler {
	return &ReviewHandler{
		logger:       logger,
		reviewerServ: reviewerServ,
		jwtServ:      jwtServ,
		reviewServ:   reviewServ,
		runs:         runs,
		cases:        cases,
	}
}

// Login maneja POST /auth/login.
func (h *ReviewHandler) Login(c *gin.Context) {
	var req struct {
		ReviewerID string `json:"reviewer_id" binding:"required"`
		AccessCode string `json:"access_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reviewer, err := h.reviewerServ.Authenticate(c.Request.Context(), req.ReviewerID, req.AccessCode)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.jwtServ.GenerateAccessToken(reviewer)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "reviewer": reviewer})
}

// GetRun maneja GET /runs/:id.
func (h *ReviewHandler) GetRun(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// GetRunReport maneja GET /runs/:id/report.
func (h *ReviewHandler) GetRunReport(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id": run.ID,
		"report": eval.RenderReport(run, h.cases),
	})
}

// SubmitReview maneja POST /runs/:id/reviews. El reviewer sale del token,
// no del body.
func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	var req struct {
		CaseID     string                 `json:"case_id" binding:"required"`
		ConfigID   string                 `json:"config_id" binding:"required"`
		Dimensions domain.DimensionScores `json:"dimensions"`
		Overall    float64                `json:"overall"`
		Verdict    string                 `json:"verdict" binding:"required"`
		Notes      string                 `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	score := domain.HumanScore{
		CaseID:     req.CaseID,
		ConfigID:   req.ConfigID,
		ReviewerID: claims.ReviewerID,
		Dimensions: req.Dimensions,
		Overall:    req.Overall,
		Verdict:    req.Verdict,
		Notes:      req.Notes,
	}

	run, err := h.reviewServ.Submit(c.Request.Context(), c.Param("id"), score)
	if err != nil {
		if errors.Is(err, eval.ErrReviewInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("submit review failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit review"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"reconciled_verdict": eval.ReconciledVerdict(run, req.CaseID, req.ConfigID),
	})
}
