package ai

import (
	"context"
)

// SessionContext is an immutable snapshot of an interview session, carrying
// everything a provider needs to produce the next artifact. It is built by the
// orchestrator and never retained by implementations.
type SessionContext struct {
	SessionID  string
	Role       string
	Sector     string
	Difficulty string
	FocusArea  string
	MaxTurns   int
	// TurnIndex is the zero-based index of the turn being worked on.
	TurnIndex int
	// History holds the fully scored exchanges, oldest first.
	History []Exchange
	// Question and Answer describe the active turn for scoring requests.
	Question string
	Answer   string
}

// Exchange is one completed question/answer cycle with its score.
type Exchange struct {
	Question   string
	Answer     string
	Score      float64
	Competency string
}

// Question is a generated interview question.
type Question struct {
	Text string
	Raw  string
}

// Assessment is the provider's verdict on a single answer.
type Assessment struct {
	Score        float64
	Competency   string
	Strengths    []string
	Improvements []string
	Feedback     string
	Raw          string
}

// Interviewer produces questions, answer assessments, and final summaries for
// an interview session. Implementations own provider transport concerns
// (timeouts, retries); callers only see a result or a typed *Error.
type Interviewer interface {
	NextQuestion(ctx context.Context, session *SessionContext) (*Question, error)
	ScoreAnswer(ctx context.Context, session *SessionContext) (*Assessment, error)
	Summarize(ctx context.Context, session *SessionContext) (string, error)
}
