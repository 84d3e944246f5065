package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio. Los umbrales de la
// rubrica y los presupuestos de prompt son configuración, no constantes.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	LLMAPIKey      string  `env:"LLM_API_KEY,required"`
	LLMBaseURL     string  `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel       string  `env:"LLM_MODEL" envDefault:"gpt-5.1"`
	JudgeModel     string  `env:"JUDGE_MODEL" envDefault:"gpt-5.1"`
	EmbeddingModel string  `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	GenTemperature float64 `env:"GEN_TEMPERATURE" envDefault:"0.7"`
	GenMaxTokens   int     `env:"GEN_MAX_TOKENS" envDefault:"1024"`

	// Politica de reintentos de generacion.
	GenMaxRetries        int `env:"GEN_MAX_RETRIES" envDefault:"3"`
	GenCallTimeoutSecs   int `env:"GEN_CALL_TIMEOUT_SECS" envDefault:"60"`
	GenBackoffBaseMillis int `env:"GEN_BACKOFF_BASE_MILLIS" envDefault:"500"`

	// Presupuestos de composicion de prompt.
	PromptCharBudget int `env:"PROMPT_CHAR_BUDGET" envDefault:"12000"`
	ChunkCharBudget  int `env:"CHUNK_CHAR_BUDGET" envDefault:"6000"`
	HistoryWindow    int `env:"HISTORY_WINDOW" envDefault:"10"`
	RetrievalTopK    int `env:"RETRIEVAL_TOP_K" envDefault:"4"`

	// Harness de evaluacion.
	EvalConcurrency    int `env:"EVAL_CONCURRENCY" envDefault:"4"`
	EvalRunTimeoutSecs int `env:"EVAL_RUN_TIMEOUT_SECS" envDefault:"1800"`

	// Umbrales del juez. El piso de seguridad es compuerta dura.
	PassThreshold    float64   `env:"PASS_THRESHOLD" envDefault:"80"`
	ReviseThreshold  float64   `env:"REVISE_THRESHOLD" envDefault:"60"`
	SafetyFloor      int       `env:"SAFETY_FLOOR" envDefault:"50"`
	JudgeWeights     []float64 `env:"JUDGE_WEIGHTS" envDefault:"1,1,1,1,1"`
	JudgeTemperature float64   `env:"JUDGE_TEMPERATURE" envDefault:"0"`

	RedFlagRulesPath  string `env:"RED_FLAG_RULES_PATH"`
	PatientContextURL string `env:"PATIENT_CONTEXT_URL"`

	// Rate limit de chat por paciente (requiere Redis).
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	ChatRateWindow int    `env:"CHAT_RATE_WINDOW_SECS" envDefault:"60"`
	ChatRateMax    int    `env:"CHAT_RATE_MAX" envDefault:"20"`

	// Auth de revisores humanos.
	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"240"`

	// Notificacion de reportes de run.
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPass      string `env:"SMTP_PASS"`
	SMTPFrom      string `env:"SMTP_FROM"`
	SMTPFromName  string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS    bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	ReportEmailTo string `env:"REPORT_EMAIL_TO"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
