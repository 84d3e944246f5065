package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para el envio del reporte de un run a los
// operadores.
type Sender interface {
	SendRunReport(ctx context.Context, toEmail, runID, report string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendRunReport(_ context.Context, _ string, _ string, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
