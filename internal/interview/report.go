package interview

import "strings"

// emptySummary is reported when a session finishes without scored turns.
const emptySummary = "No turns were completed, so there is nothing to evaluate."

// BuildReport aggregates the scored turns into the final evaluation. It is a
// pure function: calling it twice over the same turns and narrative yields
// identical reports, and it never fails on partial sessions.
func BuildReport(turns []*Turn, summary string) *Report {
	report := &Report{
		Competencies: make(map[string]float64),
		Summary:      strings.TrimSpace(summary),
	}

	var total float64
	perCompetency := make(map[string][]float64)

	for _, turn := range turns {
		if !turn.Scored() {
			continue
		}

		report.ScoredTurns++
		total += turn.Assessment.Score

		tag := strings.ToLower(strings.TrimSpace(turn.Assessment.Competency))
		if tag == "" {
			continue
		}
		perCompetency[tag] = append(perCompetency[tag], turn.Assessment.Score)
	}

	if report.ScoredTurns == 0 {
		if report.Summary == "" {
			report.Summary = emptySummary
		}
		return report
	}

	report.OverallScore = clampScore(total / float64(report.ScoredTurns))

	for tag, scores := range perCompetency {
		var sum float64
		for _, score := range scores {
			sum += score
		}
		report.Competencies[tag] = clampScore(sum / float64(len(scores)))
	}

	return report
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
