package domain

import "time"

// Roles validos para un mensaje dentro de una sesion.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleSystemNote = "system-note"
)

// Message es inmutable una vez agregado a la sesion.
type Message struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	RedFlag         bool      `json:"red_flag,omitempty"`
	RedFlagSeverity int       `json:"red_flag_severity,omitempty"`
	EscalationText  string    `json:"escalation_text,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
