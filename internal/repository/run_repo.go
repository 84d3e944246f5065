package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"patient-llm/internal/domain"
)

// RunRepository persiste TestRuns completos como documento. El run es
// dueno exclusivo de sus respuestas y calificaciones; no hay sharing
// entre runs, asi que un jsonb por run alcanza y el round-trip es exacto.
type RunRepository interface {
	Save(ctx context.Context, run domain.TestRun) error
	GetByID(ctx context.Context, id string) (domain.TestRun, error)
}

type PgRunRepository struct {
	pool *pgxpool.Pool
}

func NewPgRunRepository(pool *pgxpool.Pool) *PgRunRepository {
	return &PgRunRepository{pool: pool}
}

func (r *PgRunRepository) Save(ctx context.Context, run domain.TestRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO test_runs (id, created_at, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload
	`
	_, err = r.pool.Exec(ctx, query, run.ID, run.CreatedAt, payload)
	return err
}

func (r *PgRunRepository) GetByID(ctx context.Context, id string) (domain.TestRun, error) {
	const query = `
		SELECT payload
		FROM test_runs
		WHERE id = $1
	`
	var payload []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(&payload); err != nil {
		return domain.TestRun{}, err
	}
	var run domain.TestRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return domain.TestRun{}, err
	}
	return run, nil
}
