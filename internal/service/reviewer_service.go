package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"patient-llm/internal/domain"
	"patient-llm/internal/repository"
)

var (
	ErrReviewerInvalidInput = errors.New("reviewer invalid input")
	ErrReviewerAuthFailed   = errors.New("reviewer auth failed")
)

// ReviewerService registra revisores y valida sus codigos de acceso.
type ReviewerService struct {
	repo repository.ReviewerRepository
}

func NewReviewerService(repo repository.ReviewerRepository) *ReviewerService {
	return &ReviewerService{repo: repo}
}

// Register crea un revisor con su codigo de acceso hasheado.
func (s *ReviewerService) Register(ctx context.Context, name, accessCode string) (domain.Reviewer, error) {
	name = strings.TrimSpace(name)
	accessCode = strings.TrimSpace(accessCode)
	if name == "" || len(accessCode) < 8 {
		return domain.Reviewer{}, ErrReviewerInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(accessCode), bcrypt.DefaultCost)
	if err != nil {
		return domain.Reviewer{}, err
	}

	reviewer := domain.Reviewer{
		ID:             uuid.NewString(),
		Name:           name,
		AccessCodeHash: string(hash),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, reviewer); err != nil {
		return domain.Reviewer{}, err
	}
	return reviewer, nil
}

// Authenticate valida id + codigo de acceso. Devuelve el mismo error
// tanto para id desconocido como para codigo incorrecto.
func (s *ReviewerService) Authenticate(ctx context.Context, reviewerID, accessCode string) (domain.Reviewer, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	accessCode = strings.TrimSpace(accessCode)
	if reviewerID == "" || accessCode == "" {
		return domain.Reviewer{}, ErrReviewerAuthFailed
	}

	reviewer, err := s.repo.GetByID(ctx, reviewerID)
	if err != nil {
		return domain.Reviewer{}, ErrReviewerAuthFailed
	}
	if bcrypt.CompareHashAndPassword([]byte(reviewer.AccessCodeHash), []byte(accessCode)) != nil {
		return domain.Reviewer{}, ErrReviewerAuthFailed
	}
	return reviewer, nil
}
