package gemini

import "time"

// Policy is a bounded exponential backoff schedule. It is pure state
// arithmetic so retry behavior can be tested without network I/O.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// State tracks progress through a Policy.
type State struct {
	// Attempt counts calls already made.
	Attempt int
	// NextDelay is how long to wait before the next call.
	NextDelay time.Duration
}

// DefaultPolicy matches the adapter's built-in schedule: 3 attempts,
// 500ms initial delay, doubling up to 8s.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// Start returns the state before the first attempt.
func (p Policy) Start() State {
	return State{Attempt: 0, NextDelay: p.BaseDelay}
}

// Next records a failed attempt and reports whether another one is allowed.
// The returned state carries the delay to apply before that attempt.
func (p Policy) Next(s State) (State, bool) {
	s.Attempt++
	if s.Attempt >= p.MaxAttempts {
		return s, false
	}

	delay := p.BaseDelay << (s.Attempt - 1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	s.NextDelay = delay

	return s, true
}
