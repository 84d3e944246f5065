package eval

import (
	"fmt"
	"sort"
	"strings"

	"patient-llm/internal/domain"
)

// RenderReport arma el reporte de texto de un run terminado: totales,
// pass rates, pares fallidos y sin calificar, banderas rojas perdidas,
// analisis de patrones de falla y discrepancias juez-humano.
func RenderReport(run domain.TestRun, cases []domain.EvaluationCase) string {
	var sb strings.Builder
	stats := run.Stats

	sb.WriteString("=== EVALUATION RUN REPORT ===\n")
	sb.WriteString(fmt.Sprintf("Run:       %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Started:   %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Pairs:     %d total, %d scored, %d failed, %d unscored\n",
		stats.TotalPairs, stats.Scored, len(stats.FailedPairs), len(stats.Unscored)))
	sb.WriteString(fmt.Sprintf("Verdicts:  %d PASS / %d REVISE / %d FAIL\n",
		stats.Passes, stats.Revisions, stats.Failures))
	sb.WriteString(fmt.Sprintf("Average:   %.1f\n\n", stats.AverageScore))

	writeRateSection(&sb, "PASS RATE BY CONFIG", stats.PassRateByConfig)
	writeRateSection(&sb, "PASS RATE BY CATEGORY", stats.PassRateByCategory)

	sb.WriteString("--- RED FLAGS MISSED ---\n")
	if len(stats.RedFlagsMissed) == 0 {
		sb.WriteString("none\n\n")
	} else {
		for _, pair := range stats.RedFlagsMissed {
			sb.WriteString(fmt.Sprintf("  %s\n", pair))
		}
		sb.WriteString("\n")
	}

	if len(stats.FailedPairs) > 0 {
		sb.WriteString("--- FAILED PAIRS ---\n")
		for _, pair := range stats.FailedPairs {
			sb.WriteString(fmt.Sprintf("  %s\n", pair))
		}
		sb.WriteString("\n")
	}
	if len(stats.Unscored) > 0 {
		sb.WriteString("--- UNSCORED (judge output unusable) ---\n")
		for _, pair := range stats.Unscored {
			sb.WriteString(fmt.Sprintf("  %s\n", pair))
		}
		sb.WriteString("\n")
	}

	writeFailurePatterns(&sb, run, cases)
	writeDiscrepancies(&sb, run)

	return sb.String()
}

func writeRateSection(sb *strings.Builder, title string, rates map[string]float64) {
	sb.WriteString("--- " + title + " ---\n")
	if len(rates) == 0 {
		sb.WriteString("no scored pairs\n\n")
		return
	}
	keys := make([]string, 0, len(rates))
	for k := range rates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-24s %5.1f%%\n", k, rates[k]*100))
	}
	sb.WriteString("\n")
}

// writeFailurePatterns agrupa los pares no-PASS: que dimension fue la mas
// debil en cada uno y en que categorias se concentran las fallas.
func writeFailurePatterns(sb *strings.Builder, run domain.TestRun, cases []domain.EvaluationCase) {
	caseByID := make(map[string]domain.EvaluationCase, len(cases))
	for _, c := range cases {
		caseByID[c.ID] = c
	}

	weakDims := make(map[string]int)
	failsByCategory := make(map[string][]string)
	total := 0

	for _, js := range run.JudgeScores {
		if js.Verdict == domain.VerdictPass || js.Verdict == domain.VerdictUnscored {
			continue
		}
		total++
		weakDims[weakestDimension(js.Dimensions)]++
		category := "unknown"
		if c, ok := caseByID[js.CaseID]; ok {
			category = c.Category
		}
		failsByCategory[category] = append(failsByCategory[category], pairKey(js.CaseID, js.ConfigID))
	}

	sb.WriteString("--- FAILURE PATTERNS ---\n")
	if total == 0 {
		sb.WriteString("no REVISE/FAIL pairs\n\n")
		return
	}

	sb.WriteString("weakest dimension across REVISE/FAIL pairs:\n")
	dims := make([]string, 0, len(weakDims))
	for d := range weakDims {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool {
		if weakDims[dims[i]] != weakDims[dims[j]] {
			return weakDims[dims[i]] > weakDims[dims[j]]
		}
		return dims[i] < dims[j]
	})
	for _, d := range dims {
		sb.WriteString(fmt.Sprintf("  %-24s %d\n", d, weakDims[d]))
	}

	sb.WriteString("failures by category:\n")
	categories := make([]string, 0, len(failsByCategory))
	for c := range failsByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		sb.WriteString(fmt.Sprintf("  %-24s %s\n", c, strings.Join(failsByCategory[c], ", ")))
	}
	sb.WriteString("\n")
}

func writeDiscrepancies(sb *strings.Builder, run domain.TestRun) {
	discrepancies := Discrepancies(run)
	if len(discrepancies) == 0 {
		return
	}
	sb.WriteString("--- JUDGE VS HUMAN DISCREPANCIES ---\n")
	overestimates := 0
	for _, d := range discrepancies {
		sb.WriteString(fmt.Sprintf("  %s: judge=%s human=%s (delta %+.1f)\n",
			pairKey(d.CaseID, d.ConfigID), d.JudgeVerdict, d.HumanVerdict, d.ScoreDelta))
		if d.ScoreDelta > 0 {
			overestimates++
		}
	}
	sb.WriteString(fmt.Sprintf("judge overestimated in %d of %d disagreements\n\n",
		overestimates, len(discrepancies)))
}

func weakestDimension(dims domain.DimensionScores) string {
	type dim struct {
		name  string
		value int
	}
	ordered := []dim{
		{"medical_accuracy", dims.MedicalAccuracy},
		{"safety", dims.Safety},
		{"patient_friendliness", dims.PatientFriendliness},
		{"actionability", dims.Actionability},
		{"scope", dims.Scope},
	}
	weakest := ordered[0]
	for _, d := range ordered[1:] {
		if d.value < weakest.value {
			weakest = d
		}
	}
	return weakest.name
}
