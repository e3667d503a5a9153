package interview

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/ai"
	"github.com/prepstand/interviewd/internal/logger"
)

// DefaultMaxAnswerBytes bounds submitted answers.
const DefaultMaxAnswerBytes = 8 << 10

// Orchestrator drives session state transitions. All provider interaction
// happens through the Interviewer; the orchestrator itself never blocks on
// anything else.
type Orchestrator struct {
	interviewer    ai.Interviewer
	log            *zap.Logger
	maxAnswerBytes int
}

// NewOrchestrator builds an orchestrator around the given interviewer.
func NewOrchestrator(interviewer ai.Interviewer, log *zap.Logger, maxAnswerBytes int) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if maxAnswerBytes <= 0 {
		maxAnswerBytes = DefaultMaxAnswerBytes
	}

	return &Orchestrator{
		interviewer:    interviewer,
		log:            log,
		maxAnswerBytes: maxAnswerBytes,
	}
}

// AnswerOutcome is what a submitted answer produced: its assessment, and
// either the next question or the final report.
type AnswerOutcome struct {
	Assessment   *ai.Assessment
	NextQuestion string
	Report       *Report
	Completed    bool
}

// Begin issues the session's first question. The session must be freshly
// created and still awaiting its first question.
func (o *Orchestrator) Begin(s *Session) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	return o.issueQuestion(s)
}

// SubmitAnswer records the candidate's answer on the active turn, has it
// scored, and advances the session: either a next question is issued or the
// final report is assembled. Validation failures leave the session untouched.
func (o *Orchestrator) SubmitAnswer(s *Session, text string) (*AnswerOutcome, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := time.Now()

	s.mu.Lock()
	if s.state != StateAwaitingAnswer {
		s.mu.Unlock()
		return nil, NewValidationError("no answer expected in state %q", s.state)
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		s.mu.Unlock()
		return nil, NewValidationError("answer must not be empty")
	}
	if len(answer) > o.maxAnswerBytes {
		s.mu.Unlock()
		return nil, NewValidationError("answer exceeds %d bytes", o.maxAnswerBytes)
	}

	active := s.activeTurnLocked()
	if active == nil {
		err := &InvariantError{Reason: "awaiting answer without an active turn"}
		o.failLocked(s, err)
		s.mu.Unlock()
		return nil, err
	}

	active.Answer = answer
	active.AnsweredAt = now
	s.state = StateEvaluating
	s.touchLocked(now)
	sc := s.aiContextLocked()
	s.mu.Unlock()

	assessment, err := o.interviewer.ScoreAnswer(s.ctx, sc)

	s.mu.Lock()
	if ierr := s.interruptedLocked(); ierr != nil {
		s.mu.Unlock()
		return nil, ierr
	}
	if err != nil {
		o.failLocked(s, err)
		s.mu.Unlock()
		return nil, err
	}

	active.Assessment = assessment
	s.touchLocked(time.Now())

	o.log.Debug("turn scored",
		zap.String(logger.FieldSession, s.id),
		zap.Int("turn", active.Index),
		zap.Float64("score", assessment.Score),
		zap.String("competency", assessment.Competency),
	)

	completed := len(s.turns) >= s.maxTurns
	outcome := &AnswerOutcome{Assessment: assessment, Completed: completed}

	if !completed {
		s.state = StateAwaitingQuestion
		s.mu.Unlock()

		question, err := o.issueQuestion(s)
		if err != nil {
			return nil, err
		}
		outcome.NextQuestion = question
		return outcome, nil
	}

	sc = s.aiContextLocked()
	s.mu.Unlock()

	summary, err := o.interviewer.Summarize(s.ctx, sc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ierr := s.interruptedLocked(); ierr != nil {
		return nil, ierr
	}
	if err != nil {
		o.failLocked(s, err)
		return nil, err
	}

	report := BuildReport(s.turns, summary)
	s.state = StateCompleted
	s.report = report
	s.touchLocked(time.Now())

	o.log.Info("interview completed",
		zap.String(logger.FieldSession, s.id),
		zap.Float64("overall_score", report.OverallScore),
		zap.Int("turns", report.ScoredTurns),
	)

	outcome.Report = report
	return outcome, nil
}

// issueQuestion generates and installs the next turn. Callers hold opMu.
func (o *Orchestrator) issueQuestion(s *Session) (string, error) {
	s.mu.Lock()
	if s.state != StateAwaitingQuestion {
		s.mu.Unlock()
		return "", NewValidationError("no question can be issued in state %q", s.state)
	}

	if active := s.activeTurnLocked(); active != nil {
		err := &InvariantError{Reason: "a turn is already awaiting its answer"}
		o.failLocked(s, err)
		s.mu.Unlock()
		return "", err
	}

	index := len(s.turns)
	sc := s.aiContextLocked()
	s.mu.Unlock()

	question, err := o.interviewer.NextQuestion(s.ctx, sc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ierr := s.interruptedLocked(); ierr != nil {
		return "", ierr
	}
	if err != nil {
		o.failLocked(s, err)
		return "", err
	}

	if index != len(s.turns) {
		ierr := &InvariantError{Reason: "turn indices are no longer contiguous"}
		o.failLocked(s, ierr)
		return "", ierr
	}

	now := time.Now()
	s.turns = append(s.turns, &Turn{
		Index:    index,
		Question: question.Text,
		AskedAt:  now,
	})

	o.log.Debug("question issued",
		zap.String(logger.FieldSession, s.id),
		zap.Int("turn", index),
	)

	// The question is returned to the caller synchronously, so issuance and
	// delivery collapse into one step under mu.
	s.state = StateAwaitingAnswer
	s.touchLocked(now)

	return question.Text, nil
}

// interruptedLocked translates a session-level cancellation observed after a
// provider call into the error the caller sees. The terminal state itself was
// already applied by expire or terminate. Callers hold mu.
func (s *Session) interruptedLocked() error {
	switch context.Cause(s.ctx) {
	case errCauseExpired:
		return NewValidationError("session expired")
	case errCauseTerminated:
		return NewValidationError("session terminated")
	default:
		return nil
	}
}

// failLocked drives the session to Failed with a human-readable cause.
// Callers hold mu.
func (o *Orchestrator) failLocked(s *Session, err error) {
	if s.state.Terminal() {
		return
	}

	s.state = StateFailed
	s.failureCause = err.Error()
	s.report = nil

	o.log.Error("session failed",
		zap.String(logger.FieldSession, s.id),
		zap.Error(err),
	)
}
