package safety

// Textos de escalamiento por nivel de urgencia.
const (
	escalationEmergency = "\n\n**IMPORTANT - PLEASE READ:** Based on what you describe, you should seek medical attention today. Go to urgent care or the emergency room - these symptoms need prompt in-person evaluation. Please don't wait."
	escalationUrgent    = "\n\n**Please note:** the symptoms you describe should be evaluated by a healthcare provider soon. Contact your doctor within the next day or two rather than continuing home management alone."
	escalationWatch     = "\n\nSince this has been going on for a while, it's worth bringing up with your doctor at your next opportunity so they can rule anything out."
)

// DefaultRules es el set estatico de banderas rojas para hemorroides y
// constipacion. El orden importa: los empates de severidad los gana la
// regla declarada primero.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "heavy-rectal-bleeding",
			Severity: 3,
			Terms: [][]string{
				{"bleeding heavily"},
				{"heavy bleeding"},
				{"heavy", "rectal bleed"},
				{"filling the toilet", "blood"},
				{"blood clots"},
			},
			Escalation: escalationEmergency,
		},
		{
			ID:       "bleeding-with-systemic-symptoms",
			Severity: 3,
			Terms: [][]string{
				{"bleed", "dizzy"},
				{"bleed", "dizziness"},
				{"blood", "faint"},
				{"bleed", "lightheaded"},
			},
			Escalation: escalationEmergency,
		},
		{
			ID:       "black-tarry-stool",
			Severity: 3,
			Terms: [][]string{
				{"black", "stool"},
				{"tarry"},
				{"melena"},
			},
			Escalation: escalationEmergency,
		},
		{
			ID:       "vomiting-blood",
			Severity: 3,
			Terms: [][]string{
				{"vomit", "blood"},
				{"throwing up blood"},
			},
			Escalation: escalationEmergency,
		},
		{
			ID:       "severe-unrelenting-pain",
			Severity: 2,
			Terms: [][]string{
				{"severe pain"},
				{"unbearable pain"},
				{"worst pain"},
				{"severe", "abdominal pain"},
			},
			Escalation: escalationUrgent,
		},
		{
			ID:       "high-fever",
			Severity: 2,
			Terms: [][]string{
				{"fever"},
				{"high temperature"},
				{"chills", "pain"},
			},
			Escalation: escalationUrgent,
		},
		{
			ID:       "prolonged-obstipation",
			Severity: 2,
			Terms: [][]string{
				{"bowel movement", "days"},
				{"pass stool", "days"},
				{"constipat", "vomit"},
				{"can't pass gas"},
			},
			Escalation: escalationUrgent,
		},
		{
			ID:       "unintended-weight-loss",
			Severity: 2,
			Terms: [][]string{
				{"losing weight without"},
				{"unexplained weight loss"},
				{"weight loss", "blood"},
			},
			Escalation: escalationUrgent,
		},
		{
			ID:       "persistent-bleeding",
			Severity: 1,
			Terms: [][]string{
				{"bleed", "weeks"},
				{"blood in", "stool"},
				{"blood", "every bowel movement"},
			},
			Escalation: escalationWatch,
		},
		{
			ID:       "worsening-symptoms",
			Severity: 1,
			Terms: [][]string{
				{"getting worse"},
				{"keeps getting worse"},
				{"worse despite"},
			},
			Escalation: escalationWatch,
		},
	}
}
