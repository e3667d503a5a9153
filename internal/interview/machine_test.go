package interview

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/ai"
)

// fakeInterviewer scripts provider behavior for state machine tests.
type fakeInterviewer struct {
	mu          sync.Mutex
	questionN   int
	scoreN      int
	questionErr error
	scoreErr    error
	summaryErr  error
	summary     string
	score       float64
	competency  string
	// scoreGate, when set, blocks ScoreAnswer until released.
	scoreGate chan struct{}
}

func (f *fakeInterviewer) NextQuestion(_ context.Context, _ *ai.SessionContext) (*ai.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.questionErr != nil {
		return nil, f.questionErr
	}
	f.questionN++
	return &ai.Question{Text: fmt.Sprintf("question %d", f.questionN)}, nil
}

func (f *fakeInterviewer) ScoreAnswer(_ context.Context, _ *ai.SessionContext) (*ai.Assessment, error) {
	f.mu.Lock()
	gate := f.scoreGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	f.scoreN++
	score := f.score
	if score == 0 {
		score = 75
	}
	competency := f.competency
	if competency == "" {
		competency = "problem-solving"
	}
	return &ai.Assessment{
		Score:      score,
		Competency: competency,
		Feedback:   "good",
	}, nil
}

func (f *fakeInterviewer) Summarize(_ context.Context, _ *ai.SessionContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	if f.summary != "" {
		return f.summary, nil
	}
	return "a reasonable performance overall", nil
}

func newTestSession(maxTurns int) *Session {
	return newSession("test-session", Params{
		Role:       "Backend Engineer",
		Sector:     "engineering",
		Difficulty: DifficultyMedium,
		MaxTurns:   maxTurns,
	}, time.Now())
}

func TestBeginDeliversQuestionAtomically(t *testing.T) {
	fake := &fakeInterviewer{}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(3)

	question, err := orch.Begin(session)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	snap := session.Snapshot()
	if snap.State != StateAwaitingAnswer {
		t.Fatalf("issued questions are delivered in the same step, got state %q", snap.State)
	}
	if snap.CurrentQuestion != question {
		t.Fatalf("snapshot question %q does not match delivered %q", snap.CurrentQuestion, question)
	}
}

func TestFullInterviewFlow(t *testing.T) {
	fake := &fakeInterviewer{}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(2)

	question, err := orch.Begin(session)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if question != "question 1" {
		t.Fatalf("unexpected first question: %q", question)
	}
	if got := session.State(); got != StateAwaitingAnswer {
		t.Fatalf("expected awaiting answer, got %q", got)
	}

	outcome, err := orch.SubmitAnswer(session, "I'd use a queue to decouple services.")
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if outcome.Completed {
		t.Fatal("interview must not complete after the first of two turns")
	}
	if outcome.NextQuestion != "question 2" {
		t.Fatalf("unexpected next question: %q", outcome.NextQuestion)
	}
	if outcome.Assessment == nil || outcome.Assessment.Score != 75 {
		t.Fatalf("unexpected assessment: %+v", outcome.Assessment)
	}

	outcome, err = orch.SubmitAnswer(session, "Add retries and idempotency keys.")
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if !outcome.Completed {
		t.Fatal("interview should be complete after the final turn")
	}
	if outcome.Report == nil {
		t.Fatal("final turn must produce a report")
	}
	if outcome.Report.OverallScore < 0 || outcome.Report.OverallScore > 100 {
		t.Fatalf("overall score out of range: %v", outcome.Report.OverallScore)
	}
	if outcome.Report.Summary == "" {
		t.Fatal("report summary must not be empty")
	}
	if got := session.State(); got != StateCompleted {
		t.Fatalf("expected completed, got %q", got)
	}
}

func TestTurnIndicesAreContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 25; run++ {
		maxTurns := 1 + rng.Intn(5)
		fake := &fakeInterviewer{}
		orch := NewOrchestrator(fake, zap.NewNop(), 0)
		session := newTestSession(maxTurns)

		if _, err := orch.Begin(session); err != nil {
			t.Fatalf("run %d begin: %v", run, err)
		}

		for turn := 0; turn < maxTurns; turn++ {
			checkTurnInvariants(t, session)
			if _, err := orch.SubmitAnswer(session, fmt.Sprintf("answer %d", turn)); err != nil {
				t.Fatalf("run %d turn %d: %v", run, turn, err)
			}
		}

		checkTurnInvariants(t, session)

		if len(session.turns) != maxTurns {
			t.Fatalf("run %d: expected %d turns, got %d", run, maxTurns, len(session.turns))
		}
	}
}

func checkTurnInvariants(t *testing.T, session *Session) {
	t.Helper()

	session.mu.Lock()
	defer session.mu.Unlock()

	unscored := 0
	for i, turn := range session.turns {
		if turn.Index != i {
			t.Fatalf("turn %d carries index %d", i, turn.Index)
		}
		if !turn.Scored() {
			unscored++
		}
	}
	if unscored > 1 {
		t.Fatalf("%d unscored turns observed", unscored)
	}
}

func TestSubmitAnswerRejectedOutsideAwaitingAnswer(t *testing.T) {
	fake := &fakeInterviewer{}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(1)

	// Before any question was issued.
	if _, err := orch.SubmitAnswer(session, "early"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := session.State(); got != StateAwaitingQuestion {
		t.Fatalf("state changed on rejected submit: %q", got)
	}

	if _, err := orch.Begin(session); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := orch.SubmitAnswer(session, "final answer"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// After completion.
	if _, err := orch.SubmitAnswer(session, "too late"); !IsValidation(err) {
		t.Fatalf("expected validation error after completion, got %v", err)
	}
	if got := session.State(); got != StateCompleted {
		t.Fatalf("state changed on rejected submit: %q", got)
	}
}

func TestSubmitAnswerValidatesInput(t *testing.T) {
	fake := &fakeInterviewer{}
	orch := NewOrchestrator(fake, zap.NewNop(), 16)
	session := newTestSession(1)

	if _, err := orch.Begin(session); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if _, err := orch.SubmitAnswer(session, "   "); !IsValidation(err) {
		t.Fatalf("expected validation error for empty answer, got %v", err)
	}
	if _, err := orch.SubmitAnswer(session, "this answer is far longer than sixteen bytes"); !IsValidation(err) {
		t.Fatalf("expected validation error for oversized answer, got %v", err)
	}

	if got := session.State(); got != StateAwaitingAnswer {
		t.Fatalf("rejected input must not change state, got %q", got)
	}
	if scored := session.Snapshot().Turns; scored != 1 {
		t.Fatalf("turn count changed on rejected input: %d", scored)
	}
}

func TestProviderFailureDrivesSessionToFailed(t *testing.T) {
	fake := &fakeInterviewer{scoreErr: ai.NewError(ai.KindProviderFault, fmt.Errorf("boom"))}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(1)

	if _, err := orch.Begin(session); err != nil {
		t.Fatalf("begin: %v", err)
	}

	_, err := orch.SubmitAnswer(session, "answer")
	if kind, ok := ai.KindOf(err); !ok || kind != ai.KindProviderFault {
		t.Fatalf("expected provider fault, got %v", err)
	}

	if got := session.State(); got != StateFailed {
		t.Fatalf("expected failed, got %q", got)
	}
	if session.Report() != nil {
		t.Fatal("failed sessions must not carry a report")
	}
}

func TestQuestionFailureDrivesSessionToFailed(t *testing.T) {
	fake := &fakeInterviewer{questionErr: ai.NewError(ai.KindTimeout, context.DeadlineExceeded)}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(2)

	if _, err := orch.Begin(session); err == nil {
		t.Fatal("expected begin to fail")
	}

	if got := session.State(); got != StateFailed {
		t.Fatalf("expected failed, got %q", got)
	}
}

func TestSummaryFailureYieldsNoPartialReport(t *testing.T) {
	fake := &fakeInterviewer{summaryErr: ai.NewError(ai.KindProviderFault, fmt.Errorf("summary down"))}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(1)

	if _, err := orch.Begin(session); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if _, err := orch.SubmitAnswer(session, "answer"); err == nil {
		t.Fatal("expected failure from summary call")
	}

	if got := session.State(); got != StateFailed {
		t.Fatalf("expected failed, got %q", got)
	}
	if session.Report() != nil {
		t.Fatal("no partial report may exist after a failed summary")
	}
}

func TestExpiryDiscardsInFlightResult(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeInterviewer{scoreGate: gate}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(1)

	if _, err := orch.Begin(session); err != nil {
		t.Fatalf("begin: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := orch.SubmitAnswer(session, "slow answer")
		errCh <- err
	}()

	// Let the submission reach the provider, then expire the session.
	waitForState(t, session, StateEvaluating)
	if !session.expire(time.Now()) {
		t.Fatal("expire should succeed on a non-terminal session")
	}
	close(gate)

	err := <-errCh
	if !IsValidation(err) {
		t.Fatalf("expected the stale result to be rejected, got %v", err)
	}

	if got := session.State(); got != StateExpired {
		t.Fatalf("expected expired, got %q", got)
	}

	session.mu.Lock()
	scored := session.turns[0].Scored()
	session.mu.Unlock()
	if scored {
		t.Fatal("stale assessment must not be applied")
	}
}

func TestConcurrentSubmissionsSerialize(t *testing.T) {
	fake := &fakeInterviewer{}
	orch := NewOrchestrator(fake, zap.NewNop(), 0)
	session := newTestSession(1)

	if _, err := orch.Begin(session); err != nil {
		t.Fatalf("begin: %v", err)
	}

	const workers = 4
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := orch.SubmitAnswer(session, fmt.Sprintf("concurrent answer %d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	success, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case IsValidation(err):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if success != 1 || rejected != workers-1 {
		t.Fatalf("expected exactly one accepted submission, got %d accepted / %d rejected", success, rejected)
	}

	checkTurnInvariants(t, session)
}

func waitForState(t *testing.T, session *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if session.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached state %q", want)
}
