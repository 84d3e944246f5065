package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"patient-llm/internal/domain"
)

type ReviewerRepository interface {
	Create(ctx context.Context, reviewer domain.Reviewer) error
	GetByID(ctx context.Context, id string) (domain.Reviewer, error)
}

type PgReviewerRepository struct {
	pool *pgxpool.Pool
}

func NewPgReviewerRepository(pool *pgxpool.Pool) *PgReviewerRepository {
	return &PgReviewerRepository{pool: pool}
}

func (r *PgReviewerRepository) Create(ctx context.Context, reviewer domain.Reviewer) error {
	const query = `
		INSERT INTO reviewers (id, name, access_code_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		reviewer.ID,
		reviewer.Name,
		reviewer.AccessCodeHash,
		reviewer.CreatedAt,
	)
	return err
}

func (r *PgReviewerRepository) GetByID(ctx context.Context, id string) (domain.Reviewer, error) {
	const query = `
		SELECT id, name, access_code_hash, created_at
		FROM reviewers
		WHERE id = $1
	`
	var reviewer domain.Reviewer
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&reviewer.ID,
		&reviewer.Name,
		&reviewer.AccessCodeHash,
		&reviewer.CreatedAt,
	)
	return reviewer, err
}
