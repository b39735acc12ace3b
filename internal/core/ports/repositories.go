package ports

import (
	"context"

	"collabgate/internal/core/domain"
)

// PermissionRepository exposes the external permission/invitation
// store: document ownership, collaborator grants, and invitations.
type PermissionRepository interface {
	GetDocument(ctx context.Context, id domain.DocumentID) (*domain.Document, error)
	GetCollaborator(ctx context.Context, docID domain.DocumentID, userID domain.UserID) (*domain.Collaborator, error)
	GetInvitation(ctx context.Context, docID domain.DocumentID, userID domain.UserID) (*domain.Invitation, error)
}

// DocumentStore is the external persistent document store. Only the
// operations the gateway needs are exposed: content read at join and
// snapshot write on an explicit save.
type DocumentStore interface {
	GetContent(ctx context.Context, id domain.DocumentID) (content string, version int64, err error)
	SaveSnapshot(ctx context.Context, id domain.DocumentID, content string, savedBy domain.UserID) error
}

// PolicyRepository holds the singleton collaboration policy.
type PolicyRepository interface {
	Get(ctx context.Context) (*domain.CollaborationPolicy, error)
	Set(ctx context.Context, policy *domain.CollaborationPolicy) error
}

// SessionRepository persists collaboration sessions for audit.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.CollaborationSession) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.CollaborationSession, error)
	RecordActivity(ctx context.Context, id domain.SessionID, operations int64) error
	Close(ctx context.Context, id domain.SessionID) error
	ListActive(ctx context.Context) ([]*domain.CollaborationSession, error)
}
