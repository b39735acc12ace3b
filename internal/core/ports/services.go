package ports

import (
	"context"
	"time"

	"collabgate/internal/core/domain"
)

// PermissionGate resolves the capability a user holds on a document,
// in priority order: ownership, collaborator grant, accepted
// invitation. Pure read; returns CapabilityNone rather than an error
// when no grant matches.
type PermissionGate interface {
	Capability(ctx context.Context, userID domain.UserID, docID domain.DocumentID) (domain.Capability, error)
}

// PolicyService owns the global collaboration enable/disable switch.
type PolicyService interface {
	IsEnabled(ctx context.Context) (bool, error)
	Status(ctx context.Context) (*domain.CollaborationPolicy, error)
	Disable(ctx context.Context, reason string, until *time.Time) error
	Enable(ctx context.Context) error
	Subscribe(l PolicyListener)
}

// PolicyListener is notified after the policy changes. The gateway
// registers one to evict rooms and broadcast the change.
type PolicyListener interface {
	PolicyChanged(policy *domain.CollaborationPolicy)
}

// SessionRecorder records room participation for audit. All methods
// are non-blocking: writes are dispatched to a background worker and
// failures never reach the editing path.
type SessionRecorder interface {
	RecordJoin(session *domain.CollaborationSession)
	RecordOperation(id domain.SessionID)
	RecordLeave(id domain.SessionID)
	Close()
}

// TokenVerifier resolves a user identity from a bearer credential.
// The identity service itself is an external collaborator.
type TokenVerifier interface {
	Verify(token string) (*domain.User, domain.UserRole, error)
}
