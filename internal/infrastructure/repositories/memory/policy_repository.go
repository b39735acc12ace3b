package memory

import (
	"context"
	"sync"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
)

// MemoryPolicyRepository holds the collaboration policy in process
// memory. The policy defaults to enabled.
type MemoryPolicyRepository struct {
	mu     sync.RWMutex
	policy domain.CollaborationPolicy
}

func NewMemoryPolicyRepository() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{
		policy: domain.CollaborationPolicy{
			IsGloballyEnabled: true,
			UpdatedAt:         time.Now(),
		},
	}
}

func (r *MemoryPolicyRepository) Get(ctx context.Context) (*domain.CollaborationPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := r.policy
	return &p, nil
}

func (r *MemoryPolicyRepository) Set(ctx context.Context, policy *domain.CollaborationPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policy = *policy
	return nil
}

var _ ports.PolicyRepository = (*MemoryPolicyRepository)(nil)
