package services

import (
	"context"
	"sync"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
	"collabgate/pkg/circuitbreaker"
	"collabgate/pkg/retry"

	"go.uber.org/zap"
)

const defaultQueueSize = 1024

type sessionEventKind int

const (
	sessionJoin sessionEventKind = iota
	sessionActivity
	sessionLeave
)

type sessionEvent struct {
	kind    sessionEventKind
	session *domain.CollaborationSession
	id      domain.SessionID
}

// SessionService is a write-behind recorder of room participation.
// Events are queued and drained by a background worker so a slow or
// failing audit store never stalls operation broadcast. Store
// failures are retried briefly behind a circuit breaker, then logged
// and dropped.
type SessionService struct {
	repo    ports.SessionRepository
	logger  *zap.SugaredLogger
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config

	events chan sessionEvent
	done   chan struct{}

	mu      sync.Mutex
	pending map[domain.SessionID]int64 // uncommitted operation counts
	closed  map[domain.SessionID]bool  // sessions already closed, close happens once
	once    sync.Once
}

func NewSessionService(repo ports.SessionRepository, logger *zap.SugaredLogger) *SessionService {
	s := &SessionService{
		repo:    repo,
		logger:  logger,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry: retry.Config{
			Enabled:      true,
			MaxAttempts:  2,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
		},
		events:  make(chan sessionEvent, defaultQueueSize),
		done:    make(chan struct{}),
		pending: make(map[domain.SessionID]int64),
		closed:  make(map[domain.SessionID]bool),
	}
	go s.run()
	return s
}

// RecordJoin enqueues a new session row. Never blocks: if the queue
// is full the event is dropped and logged.
func (s *SessionService) RecordJoin(session *domain.CollaborationSession) {
	s.enqueue(sessionEvent{kind: sessionJoin, session: session})
}

// RecordOperation accumulates an operation count for the session.
// Counts are coalesced before hitting the store.
func (s *SessionService) RecordOperation(id domain.SessionID) {
	s.mu.Lock()
	s.pending[id]++
	first := s.pending[id] == 1
	s.mu.Unlock()

	if first {
		s.enqueue(sessionEvent{kind: sessionActivity, id: id})
	}
}

// RecordLeave marks the session inactive and stamps its leave time.
func (s *SessionService) RecordLeave(id domain.SessionID) {
	s.enqueue(sessionEvent{kind: sessionLeave, id: id})
}

// Close stops the worker after draining queued events.
func (s *SessionService) Close() {
	s.once.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *SessionService) enqueue(ev sessionEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warnw("session event queue full, dropping audit event", "kind", ev.kind)
	}
}

func (s *SessionService) run() {
	defer close(s.done)
	for ev := range s.events {
		s.process(ev)
	}
}

func (s *SessionService) process(ev sessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch ev.kind {
	case sessionJoin:
		err = s.write(ctx, func() error {
			return s.repo.Create(ctx, ev.session)
		})

	case sessionActivity:
		s.mu.Lock()
		count := s.pending[ev.id]
		delete(s.pending, ev.id)
		s.mu.Unlock()
		if count == 0 {
			return
		}
		err = s.write(ctx, func() error {
			return s.repo.RecordActivity(ctx, ev.id, count)
		})

	case sessionLeave:
		s.mu.Lock()
		if s.closed[ev.id] {
			s.mu.Unlock()
			return
		}
		s.closed[ev.id] = true
		s.mu.Unlock()
		err = s.write(ctx, func() error {
			return s.repo.Close(ctx, ev.id)
		})
	}

	// Persistence failures are swallowed: audit records are
	// best-effort and must never surface into the editing session.
	if err != nil {
		s.logger.Errorw("session audit write failed", "kind", ev.kind, "session_id", ev.id, "error", err)
	}
}

func (s *SessionService) write(ctx context.Context, fn func() error) error {
	return s.breaker.Execute(ctx, func() error {
		return retry.Retry(ctx, s.retry, fn)
	})
}
