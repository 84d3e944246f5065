package domain

import "time"

// Categorias del set de casos de evaluacion.
const (
	CategoryCommon           = "common"
	CategoryRedFlag          = "red-flag"
	CategoryEdgeCase         = "edge-case"
	CategoryEmotionalSupport = "emotional-support"
	CategoryFollowUp         = "follow-up"
	CategoryMyth             = "myth"
	CategoryPregnancySafety  = "pregnancy-safety"
)

// Veredictos de evaluacion.
const (
	VerdictPass     = "PASS"
	VerdictRevise   = "REVISE"
	VerdictFail     = "FAIL"
	VerdictUnscored = "UNSCORED"
)

// EvaluationCase es una pregunta fija del set de replay.
type EvaluationCase struct {
	ID              string   `json:"id"`
	Category        string   `json:"category"`
	Question        string   `json:"question"`
	FollowUps       []string `json:"follow_ups,omitempty"`
	ReferenceNotes  string   `json:"reference_notes,omitempty"`
	ExpectedRedFlag bool     `json:"expected_red_flag,omitempty"`
}

// ModelConfig identifica una configuracion candidata de modelo.
type ModelConfig struct {
	ID          string  `json:"id"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// ModelResponse captura el resultado de un par (caso, configuracion).
// Failed marca errores no reintentables; el run nunca se aborta por uno.
type ModelResponse struct {
	CaseID    string           `json:"case_id"`
	ConfigID  string           `json:"config_id"`
	Text      string           `json:"text"`
	Chunks    []RetrievedChunk `json:"chunks,omitempty"`
	LatencyMS int64            `json:"latency_ms"`
	RedFlag   bool             `json:"red_flag"`
	Failed    bool             `json:"failed,omitempty"`
	FailError string           `json:"fail_error,omitempty"`
}

// DimensionScores son los cinco ejes de la rubrica, cada uno en [0,100].
type DimensionScores struct {
	MedicalAccuracy     int `json:"medical_accuracy"`
	Safety              int `json:"safety"`
	PatientFriendliness int `json:"patient_friendliness"`
	Actionability       int `json:"actionability"`
	Scope               int `json:"scope"`
}

// JudgeScore es la calificacion automatica de una respuesta.
type JudgeScore struct {
	CaseID     string          `json:"case_id"`
	ConfigID   string          `json:"config_id"`
	Dimensions DimensionScores `json:"dimensions"`
	Overall    float64         `json:"overall"`
	Verdict    string          `json:"verdict"`
	Rationale  string          `json:"rationale,omitempty"`
}

// HumanScore es una revision manual. Cuando existe junto a un JudgeScore
// para el mismo (caso, config), la humana es la fuente de verdad.
type HumanScore struct {
	CaseID     string          `json:"case_id"`
	ConfigID   string          `json:"config_id"`
	ReviewerID string          `json:"reviewer_id"`
	Dimensions DimensionScores `json:"dimensions"`
	Overall    float64         `json:"overall"`
	Verdict    string          `json:"verdict"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TestRun es dueno exclusivo de sus respuestas y calificaciones.
type TestRun struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Responses   []ModelResponse `json:"responses"`
	JudgeScores []JudgeScore    `json:"judge_scores"`
	HumanScores []HumanScore    `json:"human_scores,omitempty"`
	Stats       RunStats        `json:"stats"`
}

// RunStats agrega resultados del run. RedFlagsMissed es metrica de
// primera clase: casos red-flag cuya respuesta no quedo marcada.
type RunStats struct {
	TotalPairs         int                `json:"total_pairs"`
	Scored             int                `json:"scored"`
	Passes             int                `json:"passes"`
	Revisions          int                `json:"revisions"`
	Failures           int                `json:"failures"`
	Unscored           []string           `json:"unscored,omitempty"`
	FailedPairs        []string           `json:"failed_pairs,omitempty"`
	AverageScore       float64            `json:"average_score"`
	PassRateByCategory map[string]float64 `json:"pass_rate_by_category"`
	PassRateByConfig   map[string]float64 `json:"pass_rate_by_config"`
	RedFlagsMissed     []string           `json:"red_flags_missed"`
}
