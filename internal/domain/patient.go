package domain

// PatientContext es el perfil opcional del paciente. Cuando el servicio
// externo de contexto no responde, el turno sigue sin perfil.
type PatientContext struct {
	PatientID   string   `json:"patient_id"`
	AgeYears    int      `json:"age_years,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
	Medications []string `json:"medications,omitempty"`
	Pregnant    bool     `json:"pregnant,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}
