package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"patient-llm/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (domain.Session, error)
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) error {
	const query = `
		INSERT INTO sessions (id, patient_id, patient_context, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`

	var patientCtx interface{}
	if session.PatientContext != nil {
		data, err := json.Marshal(session.PatientContext)
		if err != nil {
			return err
		}
		patientCtx = data
	}

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.PatientID,
		patientCtx,
		session.CreatedAt,
	)
	return err
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT id, patient_id, patient_context, created_at
		FROM sessions
		WHERE id = $1
	`
	var (
		session domain.Session
		rawCtx  []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.PatientID,
		&rawCtx,
		&session.CreatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if len(rawCtx) > 0 {
		var pc domain.PatientContext
		if err := json.Unmarshal(rawCtx, &pc); err == nil {
			session.PatientContext = &pc
		}
	}
	return session, nil
}
