package services

import (
	"context"
	"sync"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"

	"go.uber.org/zap"
)

// PolicyService owns the global collaboration switch. Mutations come
// only from administrators; the gateway subscribes to be told about
// changes so it can evict rooms and broadcast notices.
type PolicyService struct {
	repo   ports.PolicyRepository
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	listeners []ports.PolicyListener
}

func NewPolicyService(repo ports.PolicyRepository, logger *zap.SugaredLogger) *PolicyService {
	return &PolicyService{
		repo:   repo,
		logger: logger,
	}
}

func (s *PolicyService) Subscribe(l ports.PolicyListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *PolicyService) IsEnabled(ctx context.Context) (bool, error) {
	policy, err := s.repo.Get(ctx)
	if err != nil {
		return false, err
	}
	return policy.Enabled(time.Now()), nil
}

func (s *PolicyService) Status(ctx context.Context) (*domain.CollaborationPolicy, error) {
	return s.repo.Get(ctx)
}

// Disable turns collaboration off, optionally until a scheduled
// re-enable time. until == nil disables permanently.
func (s *PolicyService) Disable(ctx context.Context, reason string, until *time.Time) error {
	policy := &domain.CollaborationPolicy{
		IsGloballyEnabled: false,
		DisabledUntil:     until,
		DisabledReason:    reason,
		UpdatedAt:         time.Now(),
	}
	if err := s.repo.Set(ctx, policy); err != nil {
		return err
	}

	s.logger.Infow("collaboration disabled", "reason", reason, "until", until)
	s.notify(policy)
	return nil
}

func (s *PolicyService) Enable(ctx context.Context) error {
	policy := &domain.CollaborationPolicy{
		IsGloballyEnabled: true,
		UpdatedAt:         time.Now(),
	}
	if err := s.repo.Set(ctx, policy); err != nil {
		return err
	}

	s.logger.Infow("collaboration enabled")
	s.notify(policy)
	return nil
}

func (s *PolicyService) notify(policy *domain.CollaborationPolicy) {
	s.mu.RLock()
	listeners := make([]ports.PolicyListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l.PolicyChanged(policy)
	}
}
