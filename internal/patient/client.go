package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"patient-llm/internal/domain"
)

// Client consulta el servicio externo de contexto de paciente. Es un
// colaborador opcional: cualquier falla degrada a perfil nulo en el
// caller, nunca bloquea un turno.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Lookup trae el perfil del paciente. 404 significa paciente sin perfil,
// no error.
func (c *Client) Lookup(ctx context.Context, patientID string) (*domain.PatientContext, error) {
	if c == nil {
		return nil, nil
	}
	endpoint := c.baseURL + "/patients/" + url.PathEscape(patientID) + "/context"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patient context request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("patient context status %d", resp.StatusCode)
	}

	var pc domain.PatientContext
	if err := json.NewDecoder(resp.Body).Decode(&pc); err != nil {
		return nil, fmt.Errorf("decode patient context: %w", err)
	}
	if pc.PatientID == "" {
		pc.PatientID = patientID
	}
	return &pc, nil
}
