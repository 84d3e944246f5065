package eval

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"patient-llm/internal/domain"
	"patient-llm/internal/repository"
)

var ErrReviewInvalidInput = errors.New("review invalid input")

// Discrepancy registra un desacuerdo juez-humano sobre un par. Direction
// conserva el sentido del error del juez para la tendencia "el juez
// sobreestima".
type Discrepancy struct {
	CaseID       string  `json:"case_id"`
	ConfigID     string  `json:"config_id"`
	JudgeVerdict string  `json:"judge_verdict"`
	HumanVerdict string  `json:"human_verdict"`
	ScoreDelta   float64 `json:"score_delta"` // juez menos humano
}

const reviewStripes = 16

// ReviewService registra revisiones humanas y las reconcilia con los
// scores del juez. Todas las revisiones se retienen; para el veredicto
// reconciliado manda la mas reciente. Los submits al mismo run se
// serializan con mutexes rayados y el documento del run se rearma desde
// la tabla de revisiones, asi submits concurrentes no se pisan.
type ReviewService struct {
	runs    repository.RunRepository
	reviews repository.ReviewRepository
	logger  *zap.Logger

	stripes [reviewStripes]sync.Mutex
}

func NewReviewService(runs repository.RunRepository, reviews repository.ReviewRepository, logger *zap.Logger) *ReviewService {
	return &ReviewService{runs: runs, reviews: reviews, logger: logger}
}

// Submit registra una revision humana sobre un par del run y la adjunta
// al documento del run.
func (s *ReviewService) Submit(ctx context.Context, runID string, score domain.HumanScore) (domain.TestRun, error) {
	if err := validateHumanScore(score); err != nil {
		return domain.TestRun{}, err
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now().UTC()
	}

	lock := &s.stripes[runStripe(runID)]
	lock.Lock()
	defer lock.Unlock()

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return domain.TestRun{}, fmt.Errorf("get run: %w", err)
	}
	if !runHasPair(run, score.CaseID, score.ConfigID) {
		return domain.TestRun{}, fmt.Errorf("%w: pair %s not in run %s", ErrReviewInvalidInput, pairKey(score.CaseID, score.ConfigID), runID)
	}

	if err := s.reviews.Create(ctx, runID, score); err != nil {
		return domain.TestRun{}, fmt.Errorf("persist review: %w", err)
	}

	// La tabla de revisiones es la fuente de verdad: el documento se
	// rearma desde ella, asi una escritura de otro proceso entre lectura
	// y guardado tampoco se pierde.
	if all, listErr := s.reviews.ListByRun(ctx, runID); listErr == nil {
		run.HumanScores = all
	} else {
		if s.logger != nil {
			s.logger.Warn("review list failed, appending locally",
				zap.String("run_id", runID), zap.Error(listErr))
		}
		run.HumanScores = append(run.HumanScores, score)
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return domain.TestRun{}, fmt.Errorf("save run: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("human review recorded",
			zap.String("run_id", runID),
			zap.String("case_id", score.CaseID),
			zap.String("config_id", score.ConfigID),
			zap.String("verdict", score.Verdict))
	}
	return run, nil
}

// ReconciledVerdict devuelve el veredicto final de un par: la revision
// humana mas reciente si existe, si no el veredicto del juez.
func ReconciledVerdict(run domain.TestRun, caseID, configID string) string {
	if human, ok := latestHumanScore(run, caseID, configID); ok {
		return human.Verdict
	}
	for _, js := range run.JudgeScores {
		if js.CaseID == caseID && js.ConfigID == configID {
			return js.Verdict
		}
	}
	return domain.VerdictUnscored
}

// Discrepancies lista los pares donde juez y revision humana vigente
// difieren en veredicto.
func Discrepancies(run domain.TestRun) []Discrepancy {
	var out []Discrepancy
	for _, js := range run.JudgeScores {
		human, ok := latestHumanScore(run, js.CaseID, js.ConfigID)
		if !ok || human.Verdict == js.Verdict {
			continue
		}
		out = append(out, Discrepancy{
			CaseID:       js.CaseID,
			ConfigID:     js.ConfigID,
			JudgeVerdict: js.Verdict,
			HumanVerdict: human.Verdict,
			ScoreDelta:   js.Overall - human.Overall,
		})
	}
	return out
}

func latestHumanScore(run domain.TestRun, caseID, configID string) (domain.HumanScore, bool) {
	var (
		best  domain.HumanScore
		found bool
	)
	for _, hs := range run.HumanScores {
		if hs.CaseID != caseID || hs.ConfigID != configID {
			continue
		}
		if !found || hs.CreatedAt.After(best.CreatedAt) {
			best = hs
			found = true
		}
	}
	return best, found
}

func runStripe(runID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(runID))
	return int(h.Sum32() % reviewStripes)
}

func runHasPair(run domain.TestRun, caseID, configID string) bool {
	for _, resp := range run.Responses {
		if resp.CaseID == caseID && resp.ConfigID == configID {
			return true
		}
	}
	return false
}

func validateHumanScore(score domain.HumanScore) error {
	if score.CaseID == "" || score.ConfigID == "" || score.ReviewerID == "" {
		return fmt.Errorf("%w: missing identifiers", ErrReviewInvalidInput)
	}
	switch score.Verdict {
	case domain.VerdictPass, domain.VerdictRevise, domain.VerdictFail:
	default:
		return fmt.Errorf("%w: verdict %q", ErrReviewInvalidInput, score.Verdict)
	}
	dims := []int{
		score.Dimensions.MedicalAccuracy,
		score.Dimensions.Safety,
		score.Dimensions.PatientFriendliness,
		score.Dimensions.Actionability,
		score.Dimensions.Scope,
	}
	for _, d := range dims {
		if d < 0 || d > 100 {
			return fmt.Errorf("%w: dimension out of range: %d", ErrReviewInvalidInput, d)
		}
	}
	if score.Overall < 0 || score.Overall > 100 {
		return fmt.Errorf("%w: overall out of range: %.1f", ErrReviewInvalidInput, score.Overall)
	}
	return nil
}
