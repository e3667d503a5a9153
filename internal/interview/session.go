package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prepstand/interviewd/internal/ai"
)

// State is the lifecycle position of a session.
type State string

const (
	StateAwaitingQuestion State = "awaiting_question"
	// StateQuestionIssued marks a question that exists but has not reached the
	// caller. Questions are delivered synchronously, so sessions pass through
	// it atomically and snapshots never report it.
	StateQuestionIssued State = "question_issued"
	StateAwaitingAnswer State = "awaiting_answer"
	StateEvaluating       State = "evaluating"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateExpired          State = "expired"
)

// Terminal reports whether no further transitions are accepted.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateExpired:
		return true
	default:
		return false
	}
}

// Difficulty levels accepted on session creation.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// ValidDifficulty reports whether d names a known difficulty.
func ValidDifficulty(d string) bool {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Cancellation causes observed by in-flight provider calls.
var (
	errCauseExpired    = errors.New("session expired")
	errCauseTerminated = errors.New("session terminated")
)

// Turn is one question/answer/assessment cycle. Once scored it is never
// mutated again.
type Turn struct {
	Index      int
	Question   string
	Answer     string
	Assessment *ai.Assessment
	AskedAt    time.Time
	AnsweredAt time.Time
}

// Scored reports whether the turn carries an assessment.
func (t *Turn) Scored() bool {
	return t != nil && t.Assessment != nil
}

// Report is the final evaluation of a completed session.
type Report struct {
	OverallScore float64            `json:"overallScore"`
	Competencies map[string]float64 `json:"competencies"`
	Summary      string             `json:"summary"`
	ScoredTurns  int                `json:"scoredTurns"`
}

// Params describe a new session.
type Params struct {
	Role       string
	Sector     string
	Difficulty string
	FocusArea  string
	MaxTurns   int
}

// Session owns the state of one mock interview. Transitions are serialized by
// opMu; mu guards the fields and is never held across provider calls, so
// snapshots and the registry sweep stay responsive while a generation call is
// in flight.
type Session struct {
	id         string
	role       string
	sector     string
	difficulty string
	focusArea  string
	maxTurns   int

	ctx    context.Context
	cancel context.CancelCauseFunc

	opMu sync.Mutex

	mu           sync.Mutex
	state        State
	turns        []*Turn
	report       *Report
	failureCause string
	createdAt    time.Time
	lastActivity time.Time
}

func newSession(id string, params Params, now time.Time) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())

	return &Session{
		id:           id,
		role:         strings.TrimSpace(params.Role),
		sector:       strings.ToLower(strings.TrimSpace(params.Sector)),
		difficulty:   strings.ToLower(strings.TrimSpace(params.Difficulty)),
		focusArea:    strings.TrimSpace(params.FocusArea),
		maxTurns:     params.MaxTurns,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateAwaitingQuestion,
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot is a read-only view of a session for callers outside the state
// machine.
type Snapshot struct {
	ID              string    `json:"sessionId"`
	Role            string    `json:"role"`
	Sector          string    `json:"sector,omitempty"`
	Difficulty      string    `json:"difficulty"`
	FocusArea       string    `json:"focusArea,omitempty"`
	State           State     `json:"state"`
	Turns           int       `json:"turns"`
	MaxTurns        int       `json:"maxTurns"`
	CurrentQuestion string    `json:"currentQuestion,omitempty"`
	FailureCause    string    `json:"failureCause,omitempty"`
	Report          *Report   `json:"report,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastActivity    time.Time `json:"lastActivity"`
}

// Snapshot returns the current observable state without blocking on in-flight
// transitions.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		Role:         s.role,
		Sector:       s.sector,
		Difficulty:   s.difficulty,
		FocusArea:    s.focusArea,
		State:        s.state,
		Turns:        len(s.turns),
		MaxTurns:     s.maxTurns,
		FailureCause: s.failureCause,
		Report:       s.report,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}

	if current := s.activeTurnLocked(); current != nil {
		snap.CurrentQuestion = current.Question
	}

	return snap
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Report returns the final evaluation, or nil before completion.
func (s *Session) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// activeTurnLocked returns the unscored turn, if any. Callers hold mu.
func (s *Session) activeTurnLocked() *Turn {
	if len(s.turns) == 0 {
		return nil
	}
	last := s.turns[len(s.turns)-1]
	if last.Scored() {
		return nil
	}
	return last
}

// touchLocked records activity. Callers hold mu.
func (s *Session) touchLocked(now time.Time) {
	s.lastActivity = now
}

// aiContextLocked builds the provider snapshot for the current state. Callers
// hold mu.
func (s *Session) aiContextLocked() *ai.SessionContext {
	sc := &ai.SessionContext{
		SessionID:  s.id,
		Role:       s.role,
		Sector:     s.sector,
		Difficulty: s.difficulty,
		FocusArea:  s.focusArea,
		MaxTurns:   s.maxTurns,
		TurnIndex:  len(s.turns),
	}

	for _, turn := range s.turns {
		if !turn.Scored() {
			sc.TurnIndex = turn.Index
			sc.Question = turn.Question
			sc.Answer = turn.Answer
			continue
		}
		sc.History = append(sc.History, ai.Exchange{
			Question:   turn.Question,
			Answer:     turn.Answer,
			Score:      turn.Assessment.Score,
			Competency: turn.Assessment.Competency,
		})
	}

	return sc
}

// expire moves a non-terminal session to Expired and cancels any in-flight
// provider call. It is a no-op on terminal sessions.
func (s *Session) expire(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}

	s.state = StateExpired
	s.touchLocked(now)
	s.cancel(errCauseExpired)

	return true
}

// terminate cancels the session explicitly. In-flight callers observe the
// cancellation as soon as their provider call returns.
func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Terminal() {
		s.state = StateFailed
		s.failureCause = "session terminated"
	}
	s.cancel(errCauseTerminated)
}

// idleSince returns the last-activity timestamp.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
