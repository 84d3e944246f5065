package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"patient-llm/internal/domain"
)

// SafetyPolicy es la cabecera fija de seguridad de cada prompt. Nunca se
// recorta: si hay que achicar, caen chunks primero e historial despues.
const SafetyPolicy = `You are a patient-education assistant for hemorrhoids and constipation ONLY.

=== SAFETY POLICY (ALWAYS IN EFFECT) ===
1. You are NOT a doctor and you never diagnose. Say so when asked for a diagnosis.
2. Answer ONLY questions about hemorrhoids and constipation. For anything else, politely decline and suggest seeing a healthcare provider.
3. Ground your answer in the REFERENCE MATERIAL section when present. Do not invent medical facts.
4. If the patient describes emergency symptoms (heavy bleeding, black tarry stools, severe pain, dizziness with bleeding, fever), tell them to seek in-person care now.
5. Use plain, warm language a worried patient can follow. Short sentences. No jargon without explanation.
6. Give concrete self-care steps when appropriate (fiber, fluids, sitz baths, stool softeners) and always say when to see a doctor instead.
7. Never recommend prescription medication changes. Never discourage someone from seeking care.`

// PromptBuilder compone el prompt del turno bajo presupuestos de
// caracteres configurables.
type PromptBuilder struct {
	PromptCharBudget int
	ChunkCharBudget  int
	HistoryWindow    int
}

func NewPromptBuilder(promptBudget, chunkBudget, historyWindow int) *PromptBuilder {
	if promptBudget <= 0 {
		promptBudget = 12000
	}
	if chunkBudget <= 0 {
		chunkBudget = 6000
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &PromptBuilder{
		PromptCharBudget: promptBudget,
		ChunkCharBudget:  chunkBudget,
		HistoryWindow:    historyWindow,
	}
}

// Compose arma el prompt en orden fijo: politica, contexto del paciente,
// material de referencia, historial reciente, mensaje del usuario. Si el
// total excede el presupuesto recorta chunks primero (del menos relevante
// hacia arriba), despues historial viejo y por ultimo la cola del mensaje
// del usuario. La politica entra siempre y entera.
func (b *PromptBuilder) Compose(
	patient *domain.PatientContext,
	chunks []domain.RetrievedChunk,
	history []domain.Message,
	userMessage string,
) domain.PromptPayload {
	policySection := SafetyPolicy + "\n\n"
	patientSection := buildPatientSection(patient)
	chunkSections := buildChunkSections(chunks, b.ChunkCharBudget)
	historyLines := buildHistoryLines(history, b.HistoryWindow)
	userSection := buildUserSection(userMessage)

	truncated := len(chunkSections) < countNonEmptyChunks(chunks)

	total := func() int {
		n := len(policySection) + len(patientSection) + len(userSection)
		for _, c := range chunkSections {
			n += len(c)
		}
		for _, h := range historyLines {
			n += len(h)
		}
		if len(chunkSections) > 0 {
			n += len(chunkHeader)
		}
		if len(historyLines) > 0 {
			n += len(historyHeader)
		}
		return n
	}

	for total() > b.PromptCharBudget && len(chunkSections) > 0 {
		chunkSections = chunkSections[:len(chunkSections)-1]
		truncated = true
	}
	for total() > b.PromptCharBudget && len(historyLines) > 0 {
		historyLines = historyLines[1:]
		truncated = true
	}
	// Un mensaje mas grande que el presupuesto se recorta por la cola;
	// el techo vale para cualquier input.
	for total() > b.PromptCharBudget && len(userMessage) > 0 {
		cut := len(userMessage) - (total() - b.PromptCharBudget)
		if cut < 0 {
			cut = 0
		}
		userMessage = trimPartialRune(userMessage[:cut])
		userSection = buildUserSection(userMessage)
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString(policySection)
	sb.WriteString(patientSection)
	if len(chunkSections) > 0 {
		sb.WriteString(chunkHeader)
		for _, c := range chunkSections {
			sb.WriteString(c)
		}
		sb.WriteString("\n")
	}
	if len(historyLines) > 0 {
		sb.WriteString(historyHeader)
		for _, h := range historyLines {
			sb.WriteString(h)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(userSection)

	return domain.PromptPayload{
		Text:         sb.String(),
		PolicyChars:  len(policySection),
		ChunkCount:   len(chunkSections),
		HistoryCount: len(historyLines),
		Truncated:    truncated,
	}
}

const (
	chunkHeader   = "=== REFERENCE MATERIAL (ranked, most relevant first) ===\n"
	historyHeader = "=== RECENT CONVERSATION ===\n"
)

func buildUserSection(userMessage string) string {
	return fmt.Sprintf("=== PATIENT MESSAGE ===\n%q\n\nAnswer the patient directly. Stay within scope.\n", userMessage)
}

// trimPartialRune descarta una secuencia UTF-8 cortada al final.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

func buildPatientSection(patient *domain.PatientContext) string {
	if patient == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== PATIENT CONTEXT ===\n")
	if patient.AgeYears > 0 {
		sb.WriteString(fmt.Sprintf("- Age: %d\n", patient.AgeYears))
	}
	if len(patient.Conditions) > 0 {
		sb.WriteString(fmt.Sprintf("- Known conditions: %s\n", strings.Join(patient.Conditions, ", ")))
	}
	if len(patient.Medications) > 0 {
		sb.WriteString(fmt.Sprintf("- Medications: %s\n", strings.Join(patient.Medications, ", ")))
	}
	if patient.Pregnant {
		sb.WriteString("- Currently pregnant: only recommend pregnancy-safe options.\n")
	}
	if strings.TrimSpace(patient.Notes) != "" {
		sb.WriteString(fmt.Sprintf("- Notes: %s\n", strings.TrimSpace(patient.Notes)))
	}
	sb.WriteString("\n")
	return sb.String()
}

// buildChunkSections deduplica por (fuente, contenido) y corta al
// presupuesto de chunks respetando el ranking.
func buildChunkSections(chunks []domain.RetrievedChunk, budget int) []string {
	seen := make(map[string]bool, len(chunks))
	var sections []string
	used := 0
	for i, c := range chunks {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		key := c.SourceID + "\x00" + content
		if seen[key] {
			continue
		}
		seen[key] = true
		section := fmt.Sprintf("[%d] (%s)\n%s\n\n", i+1, c.SourceID, content)
		if used+len(section) > budget {
			break
		}
		sections = append(sections, section)
		used += len(section)
	}
	return sections
}

func countNonEmptyChunks(chunks []domain.RetrievedChunk) int {
	seen := make(map[string]bool, len(chunks))
	n := 0
	for _, c := range chunks {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		key := c.SourceID + "\x00" + content
		if seen[key] {
			continue
		}
		seen[key] = true
		n++
	}
	return n
}

func buildHistoryLines(history []domain.Message, window int) []string {
	if len(history) > window {
		history = history[len(history)-window:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		role := "Patient"
		if m.Role == domain.RoleAssistant {
			role = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s\n", role, m.Content))
	}
	return lines
}
