package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"patient-llm/internal/domain"
)

// ChunkRepository busca fragmentos de documentos curados por similitud
// coseno. La ingesta/chunking es de otro proceso; aca solo leemos.
type ChunkRepository interface {
	Search(ctx context.Context, queryEmbedding pgvector.Vector, k int) ([]domain.RetrievedChunk, error)
}

type PgChunkRepository struct {
	pool *pgxpool.Pool
}

func NewPgChunkRepository(pool *pgxpool.Pool) *PgChunkRepository {
	return &PgChunkRepository{pool: pool}
}

func (r *PgChunkRepository) Search(ctx context.Context, queryEmbedding pgvector.Vector, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = 4
	}
	const query = `
		SELECT source_id, content, 1 - (embedding <=> $1) AS score
		FROM document_chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, queryEmbedding, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.RetrievedChunk
	for rows.Next() {
		var c domain.RetrievedChunk
		if err := rows.Scan(&c.SourceID, &c.Content, &c.Score); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}
