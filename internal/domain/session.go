package domain

import "time"

// Session es el historial durable de conversacion de un paciente.
// Los mensajes son append-only y quedan ordenados por llegada.
type Session struct {
	ID             string          `json:"id"`
	PatientID      string          `json:"patient_id"`
	PatientContext *PatientContext `json:"patient_context,omitempty"`
	Messages       []Message       `json:"messages,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SessionSummary resume una sesion para el endpoint de consulta.
type SessionSummary struct {
	SessionID    string     `json:"session_id"`
	PatientID    string     `json:"patient_id"`
	MessageCount int        `json:"message_count"`
	RedFlagCount int        `json:"red_flag_count"`
	FirstMessage *time.Time `json:"first_message,omitempty"`
	LastMessage  *time.Time `json:"last_message,omitempty"`
}
