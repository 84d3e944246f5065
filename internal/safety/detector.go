package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Rule describe un patron de sintomas de urgencia. Terms es un OR de
// grupos AND: la regla matchea si todos los terminos de algun grupo
// aparecen en el texto normalizado.
type Rule struct {
	ID         string     `json:"id"`
	Severity   int        `json:"severity"`
	Terms      [][]string `json:"terms"`
	Escalation string     `json:"escalation"`
}

// Match es el resultado de la deteccion: la regla de mayor severidad.
type Match struct {
	RuleID     string
	Severity   int
	Escalation string
}

// Detector evalua un set ordenado e inmutable de reglas. Es una funcion
// pura del texto: mismo input, misma clasificacion, siempre.
type Detector struct {
	rules []Rule
}

func NewDetector(rules []Rule) *Detector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Detector{rules: rules}
}

// Detect devuelve el match de mayor severidad, o false si no hay.
// Empates de severidad se resuelven por orden de declaracion (gana la
// primera).
func (d *Detector) Detect(text string) (Match, bool) {
	norm := normalizeText(text)
	if norm == "" {
		return Match{}, false
	}

	var best Match
	found := false
	for _, r := range d.rules {
		if !ruleMatches(r, norm) {
			continue
		}
		if !found || r.Severity > best.Severity {
			best = Match{RuleID: r.ID, Severity: r.Severity, Escalation: r.Escalation}
			found = true
		}
	}
	return best, found
}

// Rules expone una copia del set para diagnostico.
func (d *Detector) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	copy(out, d.rules)
	return out
}

func ruleMatches(r Rule, norm string) bool {
	for _, group := range r.Terms {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, term := range group {
			if !strings.Contains(norm, normalizeText(term)) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func normalizeText(s string) string {
	replacer := strings.NewReplacer(
		"á", "a", "à", "a", "ä", "a", "â", "a",
		"é", "e", "è", "e", "ë", "e", "ê", "e",
		"í", "i", "ì", "i", "ï", "i", "î", "i",
		"ó", "o", "ò", "o", "ö", "o", "ô", "o",
		"ú", "u", "ù", "u", "ü", "u", "û", "u",
		"ñ", "n",
		"’", "'",
	)
	return replacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// LoadRules lee reglas desde un archivo JSON. Se cargan una sola vez al
// arranque; un archivo invalido es error de configuracion, no de turno.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for i, r := range rules {
		if r.ID == "" || r.Severity <= 0 || len(r.Terms) == 0 || r.Escalation == "" {
			return nil, fmt.Errorf("rule %d incomplete: id=%q", i, r.ID)
		}
	}
	return rules, nil
}
