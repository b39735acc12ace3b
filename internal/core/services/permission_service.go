package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
	"collabgate/pkg/cache"
)

// PermissionService resolves a user's capability on a document from
// three sources in priority order: document ownership, an explicit
// collaborator grant, an accepted invitation. Pure read: a user with
// no match resolves to CapabilityNone, never an error.
type PermissionService struct {
	repo  ports.PermissionRepository
	cache *cache.Cache
}

// NewPermissionService creates a permission gate. cacheTTL <= 0
// disables caching; the gate is consulted on every join attempt, so a
// short TTL keeps repeated joins cheap without holding grants stale
// for long.
func NewPermissionService(repo ports.PermissionRepository, cacheTTL time.Duration) *PermissionService {
	s := &PermissionService{repo: repo}
	if cacheTTL > 0 {
		s.cache = cache.NewCache(cacheTTL)
	}
	return s
}

func (s *PermissionService) Capability(ctx context.Context, userID domain.UserID, docID domain.DocumentID) (domain.Capability, error) {
	cacheKey := fmt.Sprintf("%s:%s", userID, docID)
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			return v.(domain.Capability), nil
		}
	}

	capability, err := s.resolve(ctx, userID, docID)
	if err != nil {
		return domain.CapabilityNone, err
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, capability)
	}
	return capability, nil
}

func (s *PermissionService) resolve(ctx context.Context, userID domain.UserID, docID domain.DocumentID) (domain.Capability, error) {
	doc, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.CapabilityNone, nil
		}
		return domain.CapabilityNone, err
	}
	if doc.OwnerID == userID {
		return domain.CapabilityEdit, nil
	}

	collab, err := s.repo.GetCollaborator(ctx, docID, userID)
	if err != nil {
		return domain.CapabilityNone, err
	}
	if collab != nil {
		return collab.Level, nil
	}

	inv, err := s.repo.GetInvitation(ctx, docID, userID)
	if err != nil {
		return domain.CapabilityNone, err
	}
	if inv != nil && inv.Status == domain.InvitationAccepted {
		return inv.Level, nil
	}

	return domain.CapabilityNone, nil
}
