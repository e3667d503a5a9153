// Package prompt renders generation requests from session snapshots. Rendering
// is deterministic: the same snapshot always yields the same prompt text.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	_ "embed"

	"github.com/prepstand/interviewd/internal/ai"
)

//go:embed question.md
var questionTemplate string

//go:embed assessment.md
var assessmentTemplate string

//go:embed summary.md
var summaryTemplate string

const (
	// SystemInterviewer frames question-generation requests.
	SystemInterviewer = "You are a professional interviewer conducting technical and behavioral interviews."
	// SystemReviewer frames answer-scoring requests.
	SystemReviewer = "You are a professional interviewer providing constructive feedback on interview answers."
	// SystemSummarizer frames final-summary requests.
	SystemSummarizer = "You are a professional interviewer providing comprehensive interview summaries."

	generalFocus = "General"
)

// personas describe the interviewer stance per sector and difficulty.
// Unknown sectors fall back to a generic persona.
var personas = map[string]map[string]string{
	"engineering": {
		"easy":   "You are interviewing an entry-level candidate for a software engineering position.",
		"medium": "You are interviewing a candidate with 3-5 years of engineering experience.",
		"hard":   "You are interviewing a senior engineer with 5+ years of experience.",
	},
	"business": {
		"easy":   "You are interviewing an entry-level candidate for a business analyst or consultant position.",
		"medium": "You are interviewing a business professional with 3-5 years of experience.",
		"hard":   "You are interviewing a senior business professional with 5+ years of experience.",
	},
	"health": {
		"easy":   "You are interviewing an entry-level candidate for a healthcare position.",
		"medium": "You are interviewing a healthcare professional with 3-5 years of experience.",
		"hard":   "You are interviewing a senior healthcare professional with 5+ years of experience.",
	},
}

var genericPersona = map[string]string{
	"easy":   "You are interviewing an entry-level candidate.",
	"medium": "You are interviewing a candidate with a few years of professional experience.",
	"hard":   "You are interviewing a senior candidate with extensive experience.",
}

// NextQuestion renders the prompt asking for the session's next question.
func NextQuestion(session *ai.SessionContext) (system, user string) {
	prior := "No questions have been asked yet."
	if len(session.History) > 0 {
		var sb strings.Builder
		sb.WriteString("Previous questions asked:\n")
		for i, ex := range session.History {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, ex.Question)
		}
		prior = strings.TrimRight(sb.String(), "\n")
	}

	user = render(questionTemplate, map[string]string{
		"PERSONA":         persona(session),
		"ROLE":            session.Role,
		"FOCUS_AREA":      focusArea(session),
		"PRIOR_QUESTIONS": prior,
	})

	return SystemInterviewer, user
}

// EvaluateAnswer renders the prompt asking for an assessment of the active
// turn's answer.
func EvaluateAnswer(session *ai.SessionContext) (system, user string) {
	user = render(assessmentTemplate, map[string]string{
		"PERSONA":  persona(session),
		"ROLE":     session.Role,
		"QUESTION": session.Question,
		"ANSWER":   session.Answer,
	})

	return SystemReviewer, user
}

// FinalSummary renders the prompt asking for the closing narrative over all
// scored exchanges.
func FinalSummary(session *ai.SessionContext) (system, user string) {
	var sb strings.Builder
	for i, ex := range session.History {
		fmt.Fprintf(&sb, "Q%d: %s\nA%d: %s\nScore: %.0f\n\n", i+1, ex.Question, i+1, ex.Answer, ex.Score)
	}
	exchanges := strings.TrimRight(sb.String(), "\n")
	if exchanges == "" {
		exchanges = "No exchanges were completed."
	}

	user = render(summaryTemplate, map[string]string{
		"PERSONA":   persona(session),
		"ROLE":      session.Role,
		"EXCHANGES": exchanges,
	})

	return SystemSummarizer, user
}

func persona(session *ai.SessionContext) string {
	difficulty := strings.ToLower(strings.TrimSpace(session.Difficulty))
	sector := strings.ToLower(strings.TrimSpace(session.Sector))

	byDifficulty, ok := personas[sector]
	if !ok {
		byDifficulty = genericPersona
	}

	if p, ok := byDifficulty[difficulty]; ok {
		return p
	}
	return byDifficulty["medium"]
}

func focusArea(session *ai.SessionContext) string {
	if focus := strings.TrimSpace(session.FocusArea); focus != "" {
		return focus
	}
	return generalFocus
}

// render substitutes every {{KEY}} token in a single pass. Substituted text is
// never rescanned, so placeholder-shaped strings inside values stay literal.
func render(template string, values map[string]string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(values)*2)
	for _, key := range keys {
		pairs = append(pairs, "{{"+key+"}}", values[key])
	}

	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}
