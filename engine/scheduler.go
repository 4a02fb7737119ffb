package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentrt/core/com"
)

// RunStatus is a scheduled session's lifecycle state.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
	RunStatusFailed    RunStatus = "failed"
)

// Engine starts and tracks sessions. The core ships one implementation,
// Scheduler, an in-process, single-goroutine-per-session scheduler with
// no durability guarantees; it is not replay-safe and is intended for a
// single process's lifetime, not for long-running workflows that must
// survive a restart mid-execution.
type Engine interface {
	StartSession(ctx context.Context, id string, c *com.COM, cfg Config) (*Session, error)
	Status(id string) (RunStatus, bool)
}

// Scheduler is the in-process Engine implementation: each session's tick
// loop runs on its own goroutine, with no shared mutable state between
// sessions beyond the status table itself.
type Scheduler struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	statuses map[string]RunStatus
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		sessions: make(map[string]*Session),
		statuses: make(map[string]RunStatus),
	}
}

// StartSession constructs a Session for id and runs it to completion on a
// new goroutine. The returned Session is already registered for
// Subscribe calls by the time StartSession returns; callers race with the
// background goroutine only on the tick loop itself, not on
// registration.
func (s *Scheduler) StartSession(ctx context.Context, id string, c *com.COM, cfg Config) (*Session, error) {
	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("engine: session %q already started", id)
	}
	session := NewSession(id, c, cfg)
	s.sessions[id] = session
	s.statuses[id] = RunStatusRunning
	s.mu.Unlock()

	go func() {
		err := session.Run(ctx)
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case err != nil:
			s.statuses[id] = RunStatusFailed
		case session.isAborted():
			s.statuses[id] = RunStatusAborted
		default:
			s.statuses[id] = RunStatusCompleted
		}
	}()

	return session, nil
}

// Status reports a started session's current run status.
func (s *Scheduler) Status(id string) (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[id]
	return status, ok
}

// Abort signals the named session to stop, if it has been started.
func (s *Scheduler) Abort(id string) error {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return errors.New("engine: unknown session")
	}
	session.Abort()
	return nil
}
