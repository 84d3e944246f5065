package retrieval

import (
	"context"
	"errors"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"patient-llm/internal/domain"
	"patient-llm/internal/llm"
	"patient-llm/internal/repository"
)

// ErrUnavailable indica que la busqueda no pudo completarse (embedding o
// indice caidos). El pipeline lo trata como modo degradado, nunca aborta
// el turno por esto.
var ErrUnavailable = errors.New("retrieval unavailable")

// Retriever busca los fragmentos curados mas relevantes para una consulta.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error)
}

// PgRetriever embebe la consulta y busca por similitud coseno en Postgres.
type PgRetriever struct {
	embedder llm.EmbeddingClient
	chunks   repository.ChunkRepository
	logger   *zap.Logger
}

func NewPgRetriever(embedder llm.EmbeddingClient, chunks repository.ChunkRepository, logger *zap.Logger) *PgRetriever {
	return &PgRetriever{embedder: embedder, chunks: chunks, logger: logger}
}

func (r *PgRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	embedding, err := r.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("embedding failed, retrieval degraded", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}

	chunks, err := r.chunks.Search(ctx, pgvector.NewVector(embedding), k)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("chunk search failed, retrieval degraded", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	return chunks, nil
}
