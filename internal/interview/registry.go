package interview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/logger"
)

const (
	// DefaultTTL is the inactivity window before a session expires.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Minute
)

// Registry maps session ids to live sessions. Lookup and removal are safe for
// concurrent use independent of per-session locks. Idle sessions are expired
// in place first and only deleted after a retention window, so callers observe
// the Expired state rather than a vanished session.
type Registry struct {
	ttl       time.Duration
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds a registry with the given inactivity TTL. Expired
// sessions stay visible for one further TTL before the sweep deletes them.
func NewRegistry(ttl, sweepInterval time.Duration, log *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Registry{
		ttl:       ttl,
		retention: ttl,
		interval:  sweepInterval,
		log:       log,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Create mints a session with a fresh opaque id and registers it.
func (r *Registry) Create(params Params) *Session {
	session := newSession(uuid.NewString(), params, r.now())

	r.mu.Lock()
	r.sessions[session.id] = session
	r.mu.Unlock()

	r.log.Debug("session created",
		zap.String(logger.FieldSession, session.id),
		zap.String("role", session.role),
		zap.String("difficulty", session.difficulty),
	)

	return session
}

// Get resolves a session id. Unknown ids yield a NotFoundError; expired
// sessions are still returned until the sweep deletes them.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	return session, nil
}

// Remove terminates the session and deletes it from the index. In-flight
// callers observe the cancellation once their provider call returns.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		session.terminate()
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run sweeps idle sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep expires sessions idle past the TTL and deletes those that have been
// terminal past the retention window.
func (r *Registry) sweep() {
	now := r.now()
	expireBefore := now.Add(-r.ttl)
	deleteBefore := now.Add(-r.retention)

	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		candidates = append(candidates, session)
	}
	r.mu.RUnlock()

	var remove []string
	for _, session := range candidates {
		idle := session.idleSince()

		if session.State().Terminal() {
			if idle.Before(deleteBefore) {
				remove = append(remove, session.id)
			}
			continue
		}

		if idle.Before(expireBefore) {
			if session.expire(now) {
				r.log.Info("session expired",
					zap.String(logger.FieldSession, session.id),
					zap.Time("last_activity", idle),
				)
			}
		}
	}

	if len(remove) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range remove {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	r.log.Debug("swept terminal sessions", zap.Int("count", len(remove)))
}
