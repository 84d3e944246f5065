package domain

// RetrievedChunk es un fragmento de documento curado recuperado por
// similitud. Score es similitud coseno en [0,1], mayor es mas cercano.
type RetrievedChunk struct {
	SourceID string  `json:"source_id"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// PromptPayload es el prompt compuesto mas metadatos de armado, utiles
// para logging y para verificar presupuestos en tests.
type PromptPayload struct {
	Text         string
	PolicyChars  int
	ChunkCount   int
	HistoryCount int
	Truncated    bool
}
