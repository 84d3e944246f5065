package eval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"patient-llm/internal/domain"
)

type mockRunRepo struct {
	mu      sync.Mutex
	runs    map[string]domain.TestRun
	saveErr error
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[string]domain.TestRun)}
}

func (m *mockRunRepo) Save(_ context.Context, run domain.TestRun) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *mockRunRepo) GetByID(_ context.Context, id string) (domain.TestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return domain.TestRun{}, pgx.ErrNoRows
	}
	return run, nil
}

func (m *mockRunRepo) get(id string) domain.TestRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

func (m *mockRunRepo) put(run domain.TestRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
}

type mockReviewRepo struct {
	mu        sync.Mutex
	created   []domain.HumanScore
	createErr error
	listErr   error
}

func (m *mockReviewRepo) Create(_ context.Context, _ string, score domain.HumanScore) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, score)
	return nil
}

func (m *mockReviewRepo) ListByRun(_ context.Context, _ string) ([]domain.HumanScore, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.HumanScore, len(m.created))
	copy(out, m.created)
	return out, nil
}

func (m *mockReviewRepo) ListByPair(_ context.Context, _, caseID, configID string) ([]domain.HumanScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.HumanScore
	for _, s := range m.created {
		if s.CaseID == caseID && s.ConfigID == configID {
			out = append(out, s)
		}
	}
	return out, nil
}

func reviewedRun() domain.TestRun {
	return domain.TestRun{
		ID:        "run-1",
		CreatedAt: time.Now().UTC(),
		Responses: []domain.ModelResponse{
			{CaseID: "a", ConfigID: "cfg1", Text: "answer"},
		},
		JudgeScores: []domain.JudgeScore{
			{CaseID: "a", ConfigID: "cfg1", Overall: 85, Verdict: domain.VerdictPass},
		},
	}
}

func validHumanScore() domain.HumanScore {
	return domain.HumanScore{
		CaseID:     "a",
		ConfigID:   "cfg1",
		ReviewerID: "r1",
		Dimensions: domain.DimensionScores{MedicalAccuracy: 60, Safety: 60, PatientFriendliness: 60, Actionability: 60, Scope: 60},
		Overall:    60,
		Verdict:    domain.VerdictRevise,
	}
}

func TestReviewSubmitAttachesToRun(t *testing.T) {
	runs := newMockRunRepo()
	runs.put(reviewedRun())
	reviews := &mockReviewRepo{}
	svc := NewReviewService(runs, reviews, zap.NewNop())

	updated, err := svc.Submit(context.Background(), "run-1", validHumanScore())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(updated.HumanScores) != 1 {
		t.Fatalf("expected review attached to run, got %d", len(updated.HumanScores))
	}
	if updated.HumanScores[0].CreatedAt.IsZero() {
		t.Fatalf("expected CreatedAt assigned")
	}
	if len(reviews.created) != 1 {
		t.Fatalf("expected review persisted to its own table")
	}
	if got := runs.get("run-1"); len(got.HumanScores) != 1 {
		t.Fatalf("expected run re-saved with review, got %+v", got.HumanScores)
	}
}

func TestReviewSubmitValidation(t *testing.T) {
	runs := newMockRunRepo()
	runs.put(reviewedRun())
	svc := NewReviewService(runs, &mockReviewRepo{}, zap.NewNop())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.HumanScore)
	}{
		{"missing reviewer", func(s *domain.HumanScore) { s.ReviewerID = "" }},
		{"bad verdict", func(s *domain.HumanScore) { s.Verdict = "MAYBE" }},
		{"unscored not allowed", func(s *domain.HumanScore) { s.Verdict = domain.VerdictUnscored }},
		{"dimension over 100", func(s *domain.HumanScore) { s.Dimensions.Safety = 120 }},
		{"overall negative", func(s *domain.HumanScore) { s.Overall = -1 }},
		{"pair not in run", func(s *domain.HumanScore) { s.CaseID = "ghost" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := validHumanScore()
			tc.mutate(&score)
			if _, err := svc.Submit(ctx, "run-1", score); !errors.Is(err, ErrReviewInvalidInput) {
				t.Fatalf("expected ErrReviewInvalidInput, got %v", err)
			}
		})
	}
}

func TestReviewSubmitConcurrentDistinctPairs(t *testing.T) {
	const pairs = 8

	run := domain.TestRun{ID: "run-1", CreatedAt: time.Now().UTC()}
	for i := 0; i < pairs; i++ {
		caseID := fmt.Sprintf("c%d", i)
		run.Responses = append(run.Responses, domain.ModelResponse{CaseID: caseID, ConfigID: "cfg1", Text: "answer"})
		run.JudgeScores = append(run.JudgeScores, domain.JudgeScore{CaseID: caseID, ConfigID: "cfg1", Overall: 85, Verdict: domain.VerdictPass})
	}
	runs := newMockRunRepo()
	runs.put(run)
	svc := NewReviewService(runs, &mockReviewRepo{}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			score := validHumanScore()
			score.CaseID = fmt.Sprintf("c%d", i)
			score.ReviewerID = fmt.Sprintf("r%d", i)
			if _, err := svc.Submit(context.Background(), "run-1", score); err != nil {
				t.Errorf("submit c%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// Ninguna revision se pierde: el documento del run retiene las 8.
	saved := runs.get("run-1")
	if len(saved.HumanScores) != pairs {
		t.Fatalf("expected %d reviews retained, got %d", pairs, len(saved.HumanScores))
	}
	for i := 0; i < pairs; i++ {
		caseID := fmt.Sprintf("c%d", i)
		if got := ReconciledVerdict(saved, caseID, "cfg1"); got != domain.VerdictRevise {
			t.Fatalf("pair %s: expected human verdict after reconciliation, got %s", caseID, got)
		}
	}
}

func TestReviewSubmitListFailureStillRetainsReview(t *testing.T) {
	runs := newMockRunRepo()
	runs.put(reviewedRun())
	reviews := &mockReviewRepo{listErr: errors.New("reviews table down")}
	svc := NewReviewService(runs, reviews, zap.NewNop())

	updated, err := svc.Submit(context.Background(), "run-1", validHumanScore())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(updated.HumanScores) != 1 {
		t.Fatalf("expected local append fallback, got %d reviews", len(updated.HumanScores))
	}
}

func TestReviewSubmitUnknownRun(t *testing.T) {
	svc := NewReviewService(newMockRunRepo(), &mockReviewRepo{}, zap.NewNop())

	if _, err := svc.Submit(context.Background(), "ghost-run", validHumanScore()); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestReconciledVerdictMostRecentHumanWins(t *testing.T) {
	run := reviewedRun()
	base := time.Now().UTC()
	run.HumanScores = []domain.HumanScore{
		{CaseID: "a", ConfigID: "cfg1", ReviewerID: "r1", Verdict: domain.VerdictFail, Overall: 30, CreatedAt: base},
		{CaseID: "a", ConfigID: "cfg1", ReviewerID: "r2", Verdict: domain.VerdictRevise, Overall: 65, CreatedAt: base.Add(time.Hour)},
	}

	if got := ReconciledVerdict(run, "a", "cfg1"); got != domain.VerdictRevise {
		t.Fatalf("most recent review must win, got %s", got)
	}
	// La revision anterior no se pierde.
	if len(run.HumanScores) != 2 {
		t.Fatalf("all reviews must be retained")
	}
}

func TestReconciledVerdictFallsBackToJudge(t *testing.T) {
	run := reviewedRun()

	if got := ReconciledVerdict(run, "a", "cfg1"); got != domain.VerdictPass {
		t.Fatalf("expected judge verdict without reviews, got %s", got)
	}
	if got := ReconciledVerdict(run, "ghost", "cfg1"); got != domain.VerdictUnscored {
		t.Fatalf("expected UNSCORED for unknown pair, got %s", got)
	}
}

func TestDiscrepanciesDirection(t *testing.T) {
	run := reviewedRun()
	run.HumanScores = []domain.HumanScore{
		{CaseID: "a", ConfigID: "cfg1", ReviewerID: "r1", Verdict: domain.VerdictFail, Overall: 40, CreatedAt: time.Now().UTC()},
	}

	disc := Discrepancies(run)
	if len(disc) != 1 {
		t.Fatalf("expected one discrepancy, got %d", len(disc))
	}
	d := disc[0]
	if d.JudgeVerdict != domain.VerdictPass || d.HumanVerdict != domain.VerdictFail {
		t.Fatalf("unexpected verdicts: %+v", d)
	}
	// 85 del juez contra 40 humano: el juez sobreestimo por 45.
	if d.ScoreDelta != 45 {
		t.Fatalf("expected score delta 45, got %v", d.ScoreDelta)
	}
}

func TestDiscrepanciesAgreementIsQuiet(t *testing.T) {
	run := reviewedRun()
	run.HumanScores = []domain.HumanScore{
		{CaseID: "a", ConfigID: "cfg1", ReviewerID: "r1", Verdict: domain.VerdictPass, Overall: 88, CreatedAt: time.Now().UTC()},
	}

	if disc := Discrepancies(run); len(disc) != 0 {
		t.Fatalf("agreement must not report a discrepancy, got %+v", disc)
	}
}
