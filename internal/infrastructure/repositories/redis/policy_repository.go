package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisPolicyRepository stores the collaboration policy as a single
// JSON value. Sharing a Redis instance lets several gateway processes
// read the same policy, though change notifications stay in-process.
type RedisPolicyRepository struct {
	client *redis.Client
	key    string
}

func NewRedisPolicyRepository(client *redis.Client) ports.PolicyRepository {
	return &RedisPolicyRepository{
		client: client,
		key:    "collabgate:policy:collaboration",
	}
}

func (r *RedisPolicyRepository) Get(ctx context.Context) (*domain.CollaborationPolicy, error) {
	data, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		// Never written: collaboration is enabled by default.
		return &domain.CollaborationPolicy{
			IsGloballyEnabled: true,
			UpdatedAt:         time.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy from Redis: %w", err)
	}

	var policy domain.CollaborationPolicy
	if err := json.Unmarshal([]byte(data), &policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	return &policy, nil
}

func (r *RedisPolicyRepository) Set(ctx context.Context, policy *domain.CollaborationPolicy) error {
	data, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set policy in Redis: %w", err)
	}
	return nil
}
