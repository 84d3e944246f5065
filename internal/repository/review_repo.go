package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"patient-llm/internal/domain"
)

// ReviewRepository guarda revisiones humanas. Todas las revisiones se
// retienen para auditoria; la reconciliacion decide cual manda.
type ReviewRepository interface {
	Create(ctx context.Context, runID string, score domain.HumanScore) error
	ListByRun(ctx context.Context, runID string) ([]domain.HumanScore, error)
	ListByPair(ctx context.Context, runID, caseID, configID string) ([]domain.HumanScore, error)
}

type PgReviewRepository struct {
	pool *pgxpool.Pool
}

func NewPgReviewRepository(pool *pgxpool.Pool) *PgReviewRepository {
	return &PgReviewRepository{pool: pool}
}

func (r *PgReviewRepository) Create(ctx context.Context, runID string, score domain.HumanScore) error {
	dims, err := json.Marshal(score.Dimensions)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO human_scores (run_id, case_id, config_id, reviewer_id, dimensions, overall, verdict, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		runID,
		score.CaseID,
		score.ConfigID,
		score.ReviewerID,
		dims,
		score.Overall,
		score.Verdict,
		score.Notes,
		score.CreatedAt,
	)
	return err
}

func (r *PgReviewRepository) ListByRun(ctx context.Context, runID string) ([]domain.HumanScore, error) {
	const query = `
		SELECT case_id, config_id, reviewer_id, dimensions, overall, verdict, notes, created_at
		FROM human_scores
		WHERE run_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, runID)
}

func (r *PgReviewRepository) ListByPair(ctx context.Context, runID, caseID, configID string) ([]domain.HumanScore, error) {
	const query = `
		SELECT case_id, config_id, reviewer_id, dimensions, overall, verdict, notes, created_at
		FROM human_scores
		WHERE run_id = $1 AND case_id = $2 AND config_id = $3
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, runID, caseID, configID)
}

func (r *PgReviewRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.HumanScore, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []domain.HumanScore
	for rows.Next() {
		var (
			s    domain.HumanScore
			dims []byte
		)
		if err := rows.Scan(
			&s.CaseID,
			&s.ConfigID,
			&s.ReviewerID,
			&dims,
			&s.Overall,
			&s.Verdict,
			&s.Notes,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(dims) > 0 {
			_ = json.Unmarshal(dims, &s.Dimensions)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}
