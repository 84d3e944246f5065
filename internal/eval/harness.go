package eval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"patient-llm/internal/domain"
	"patient-llm/internal/llm"
	"patient-llm/internal/retrieval"
	"patient-llm/internal/safety"
	"patient-llm/internal/service"
)

// Responder produce la respuesta del pipeline para un caso bajo una
// configuracion candidata.
type Responder interface {
	Respond(ctx context.Context, c domain.EvaluationCase, cfg domain.ModelConfig) (domain.ModelResponse, error)
}

// PipelineResponder replays el pipeline de chat sin sesion ni
// persistencia: retrieval, composicion, generacion, chequeo de banderas
// sobre la respuesta. Cada par parte de historial vacio; los follow-ups
// del caso se repiten como turnos sucesivos dentro del par, acumulando
// historial entre turnos.
type PipelineResponder struct {
	client        llm.LLMClient
	retriever     retrieval.Retriever
	detector      *safety.Detector
	promptBuilder *service.PromptBuilder
	topK          int
	logger        *zap.Logger
}

func NewPipelineResponder(
	client llm.LLMClient,
	retriever retrieval.Retriever,
	detector *safety.Detector,
	promptBuilder *service.PromptBuilder,
	topK int,
	logger *zap.Logger,
) *PipelineResponder {
	if topK <= 0 {
		topK = 4
	}
	return &PipelineResponder{
		client:        client,
		retriever:     retriever,
		detector:      detector,
		promptBuilder: promptBuilder,
		topK:          topK,
		logger:        logger,
	}
}

func (p *PipelineResponder) Respond(ctx context.Context, c domain.EvaluationCase, cfg domain.ModelConfig) (domain.ModelResponse, error) {
	started := time.Now()

	questions := append([]string{c.Question}, c.FollowUps...)

	var (
		history   []domain.Message
		allChunks []domain.RetrievedChunk
		answers   []string
		flagged   bool
	)
	for _, question := range questions {
		var chunks []domain.RetrievedChunk
		if p.retriever != nil {
			var err error
			chunks, err = p.retriever.Retrieve(ctx, question, p.topK)
			if err != nil {
				if ctx.Err() != nil {
					return domain.ModelResponse{}, ctx.Err()
				}
				if p.logger != nil {
					p.logger.Warn("retrieval degraded during eval",
						zap.String("case_id", c.ID), zap.Error(err))
				}
				chunks = nil
			}
		}
		allChunks = append(allChunks, chunks...)

		preMatch, preFlagged := p.detector.Detect(question)
		payload := p.promptBuilder.Compose(nil, chunks, history, question)

		text, err := p.client.Generate(ctx, payload.Text, llm.Options{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return domain.ModelResponse{}, fmt.Errorf("generate: %w", err)
		}

		postMatch, postFlagged := p.detector.Detect(text)
		turnFlagged := preFlagged || postFlagged
		if turnFlagged {
			escalation := preMatch.Escalation
			if !preFlagged || (postFlagged && postMatch.Severity > preMatch.Severity) {
				escalation = postMatch.Escalation
			}
			if !strings.Contains(text, escalation) {
				text += escalation
			}
			flagged = true
		}

		answers = append(answers, text)
		history = append(history,
			domain.Message{Role: domain.RoleUser, Content: question},
			domain.Message{Role: domain.RoleAssistant, Content: text},
		)
	}

	return domain.ModelResponse{
		CaseID:    c.ID,
		ConfigID:  cfg.ID,
		Text:      strings.Join(answers, "\n\n"),
		Chunks:    allChunks,
		LatencyMS: time.Since(started).Milliseconds(),
		RedFlag:   flagged,
	}, nil
}

// Runner ejecuta el harness: cada par (caso, config) es independiente y
// una falla nunca aborta el run.
type Runner struct {
	responder   Responder
	judge       *Judge
	concurrency int
	runTimeout  time.Duration
	logger      *zap.Logger
}

func NewRunner(responder Responder, judge *Judge, concurrency int, runTimeout time.Duration, logger *zap.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &Runner{
		responder:   responder,
		judge:       judge,
		concurrency: concurrency,
		runTimeout:  runTimeout,
		logger:      logger,
	}
}

// Run ejecuta todos los pares con concurrencia acotada. El timeout de run
// corta los pares no arrancados pero conserva todo lo ya recolectado.
func (r *Runner) Run(ctx context.Context, cases []domain.EvaluationCase, configs []domain.ModelConfig) domain.TestRun {
	run := domain.TestRun{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, c := range cases {
		for _, cfg := range configs {
			c, cfg := c, cfg
			g.Go(func() error {
				if runCtx.Err() != nil {
					// par no arrancado: queda como fallo de timeout
					mu.Lock()
					run.Responses = append(run.Responses, failedResponse(c.ID, cfg.ID, runCtx.Err()))
					mu.Unlock()
					return nil
				}

				resp, err := r.responder.Respond(runCtx, c, cfg)
				if err != nil {
					if r.logger != nil {
						r.logger.Warn("pair failed",
							zap.String("case_id", c.ID),
							zap.String("config_id", cfg.ID),
							zap.Error(err))
					}
					mu.Lock()
					run.Responses = append(run.Responses, failedResponse(c.ID, cfg.ID, err))
					mu.Unlock()
					return nil
				}

				score, err := r.judge.Score(runCtx, c, resp)
				if err != nil {
					if r.logger != nil {
						r.logger.Warn("pair unscored",
							zap.String("case_id", c.ID),
							zap.String("config_id", cfg.ID),
							zap.Error(err))
					}
					score = domain.JudgeScore{
						CaseID:    c.ID,
						ConfigID:  cfg.ID,
						Verdict:   domain.VerdictUnscored,
						Rationale: err.Error(),
					}
				}

				mu.Lock()
				run.Responses = append(run.Responses, resp)
				run.JudgeScores = append(run.JudgeScores, score)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	sortRun(&run)
	run.Stats = computeStats(cases, run)
	return run
}

func failedResponse(caseID, configID string, err error) domain.ModelResponse {
	return domain.ModelResponse{
		CaseID:    caseID,
		ConfigID:  configID,
		Failed:    true,
		FailError: err.Error(),
	}
}

// sortRun fija un orden estable por (caso, config) para que el reporte y
// la persistencia sean deterministas aunque la ejecucion sea concurrente.
func sortRun(run *domain.TestRun) {
	sort.Slice(run.Responses, func(i, j int) bool {
		a, b := run.Responses[i], run.Responses[j]
		if a.CaseID != b.CaseID {
			return a.CaseID < b.CaseID
		}
		return a.ConfigID < b.ConfigID
	})
	sort.Slice(run.JudgeScores, func(i, j int) bool {
		a, b := run.JudgeScores[i], run.JudgeScores[j]
		if a.CaseID != b.CaseID {
			return a.CaseID < b.CaseID
		}
		return a.ConfigID < b.ConfigID
	})
}

func computeStats(cases []domain.EvaluationCase, run domain.TestRun) domain.RunStats {
	caseByID := make(map[string]domain.EvaluationCase, len(cases))
	for _, c := range cases {
		caseByID[c.ID] = c
	}

	stats := domain.RunStats{
		TotalPairs:         len(run.Responses),
		PassRateByCategory: make(map[string]float64),
		PassRateByConfig:   make(map[string]float64),
		RedFlagsMissed:     []string{},
	}

	for _, resp := range run.Responses {
		if resp.Failed {
			stats.FailedPairs = append(stats.FailedPairs, pairKey(resp.CaseID, resp.ConfigID))
			continue
		}
		if c, ok := caseByID[resp.CaseID]; ok && c.ExpectedRedFlag && !resp.RedFlag {
			stats.RedFlagsMissed = append(stats.RedFlagsMissed, pairKey(resp.CaseID, resp.ConfigID))
		}
	}

	type bucket struct{ scored, passed int }
	byCategory := make(map[string]*bucket)
	byConfig := make(map[string]*bucket)
	var sum float64

	for _, score := range run.JudgeScores {
		if score.Verdict == domain.VerdictUnscored {
			stats.Unscored = append(stats.Unscored, pairKey(score.CaseID, score.ConfigID))
			continue
		}
		stats.Scored++
		sum += score.Overall

		switch score.Verdict {
		case domain.VerdictPass:
			stats.Passes++
		case domain.VerdictRevise:
			stats.Revisions++
		case domain.VerdictFail:
			stats.Failures++
		}

		tally := func(m map[string]*bucket, key string) {
			if key == "" {
				return
			}
			b := m[key]
			if b == nil {
				b = &bucket{}
				m[key] = b
			}
			b.scored++
			if score.Verdict == domain.VerdictPass {
				b.passed++
			}
		}
		if c, ok := caseByID[score.CaseID]; ok {
			tally(byCategory, c.Category)
		}
		tally(byConfig, score.ConfigID)
	}

	if stats.Scored > 0 {
		stats.AverageScore = sum / float64(stats.Scored)
	}
	for cat, b := range byCategory {
		stats.PassRateByCategory[cat] = float64(b.passed) / float64(b.scored)
	}
	for cfg, b := range byConfig {
		stats.PassRateByConfig[cfg] = float64(b.passed) / float64(b.scored)
	}
	return stats
}

func pairKey(caseID, configID string) string {
	return caseID + "/" + configID
}
