package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"patient-llm/internal/domain"
)

type mockReviewerRepo struct {
	reviewers map[string]domain.Reviewer
	createErr error
}

func newMockReviewerRepo() *mockReviewerRepo {
	return &mockReviewerRepo{reviewers: make(map[string]domain.Reviewer)}
}

func (m *mockReviewerRepo) Create(_ context.Context, r domain.Reviewer) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.reviewers[r.ID] = r
	return nil
}

func (m *mockReviewerRepo) GetByID(_ context.Context, id string) (domain.Reviewer, error) {
	r, ok := m.reviewers[id]
	if !ok {
		return domain.Reviewer{}, pgx.ErrNoRows
	}
	return r, nil
}

func TestReviewerRegisterAndAuthenticate(t *testing.T) {
	repo := newMockReviewerRepo()
	svc := NewReviewerService(repo)
	ctx := context.Background()

	reviewer, err := svc.Register(ctx, "Alex", "super-secret-code")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reviewer.AccessCodeHash == "super-secret-code" {
		t.Fatalf("access code must be hashed")
	}

	got, err := svc.Authenticate(ctx, reviewer.ID, "super-secret-code")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != reviewer.ID {
		t.Fatalf("unexpected reviewer: %+v", got)
	}
}

func TestReviewerAuthenticateWrongCode(t *testing.T) {
	repo := newMockReviewerRepo()
	svc := NewReviewerService(repo)
	ctx := context.Background()

	reviewer, err := svc.Register(ctx, "Alex", "super-secret-code")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, reviewer.ID, "wrong-code"); !errors.Is(err, ErrReviewerAuthFailed) {
		t.Fatalf("expected ErrReviewerAuthFailed, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost", "super-secret-code"); !errors.Is(err, ErrReviewerAuthFailed) {
		t.Fatalf("expected same error for unknown id, got %v", err)
	}
}

func TestReviewerRegisterValidation(t *testing.T) {
	svc := NewReviewerService(newMockReviewerRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "super-secret-code"); !errors.Is(err, ErrReviewerInvalidInput) {
		t.Fatalf("expected ErrReviewerInvalidInput for empty name, got %v", err)
	}
	if _, err := svc.Register(ctx, "Alex", "short"); !errors.Is(err, ErrReviewerInvalidInput) {
		t.Fatalf("expected ErrReviewerInvalidInput for short code, got %v", err)
	}
}
