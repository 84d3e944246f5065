package domain

import "time"

// Reviewer es un evaluador humano registrado. El codigo de acceso se
// guarda hasheado, nunca en claro.
type Reviewer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AccessCodeHash string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
