package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
)

// MemorySessionRepository keeps collaboration sessions in memory.
// Used in development and as the fallback when the database is not
// configured.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.CollaborationSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.CollaborationSession),
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *domain.CollaborationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.CollaborationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *MemorySessionRepository) RecordActivity(ctx context.Context, id domain.SessionID, operations int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return domain.ErrSessionNotFound
	}
	session.OperationsCount += operations
	session.LastActivity = time.Now()
	return nil
}

func (r *MemorySessionRepository) Close(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return domain.ErrSessionNotFound
	}
	if !session.IsActive {
		return nil
	}
	now := time.Now()
	session.IsActive = false
	session.LeftAt = &now
	return nil
}

func (r *MemorySessionRepository) ListActive(ctx context.Context) ([]*domain.CollaborationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*domain.CollaborationSession, 0)
	for _, session := range r.sessions {
		if session.IsActive {
			copied := *session
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].JoinedAt.Before(active[j].JoinedAt)
	})
	return active, nil
}

var _ ports.SessionRepository = (*MemorySessionRepository)(nil)
