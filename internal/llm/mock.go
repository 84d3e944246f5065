package llm

import "context"

// MockClient permite tests sin llamar a un LLM real. Si Responses tiene
// elementos, se devuelven en orden; agotados, repite el ultimo.
type MockClient struct {
	Response  string
	Responses []string
	Err       error
	Errs      []error
	Calls     int
	Prompts   []string
}

func (m *MockClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	idx := m.Calls
	m.Calls++
	m.Prompts = append(m.Prompts, prompt)

	if len(m.Errs) > 0 {
		i := idx
		if i >= len(m.Errs) {
			i = len(m.Errs) - 1
		}
		if m.Errs[i] != nil {
			return "", m.Errs[i]
		}
	} else if m.Err != nil {
		return "", m.Err
	}

	if len(m.Responses) > 0 {
		i := idx
		if i >= len(m.Responses) {
			i = len(m.Responses) - 1
		}
		return m.Responses[i], nil
	}
	return m.Response, nil
}

// MockEmbedder devuelve siempre el mismo vector.
type MockEmbedder struct {
	Vector []float32
	Err    error
}

func (m *MockEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}
