package memory

import (
	"context"
	"fmt"
	"sync"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
)

// MemoryPermissionRepository is an in-memory stand-in for the
// external permission/invitation store. It doubles as the document
// store since both live in the same external system.
type MemoryPermissionRepository struct {
	mu            sync.RWMutex
	documents     map[domain.DocumentID]*domain.Document
	collaborators map[string]*domain.Collaborator
	invitations   map[string]*domain.Invitation
}

func NewMemoryPermissionRepository() *MemoryPermissionRepository {
	return &MemoryPermissionRepository{
		documents:     make(map[domain.DocumentID]*domain.Document),
		collaborators: make(map[string]*domain.Collaborator),
		invitations:   make(map[string]*domain.Invitation),
	}
}

func grantKey(docID domain.DocumentID, userID domain.UserID) string {
	return fmt.Sprintf("%s:%s", docID, userID)
}

// PutDocument seeds or replaces a document.
func (r *MemoryPermissionRepository) PutDocument(doc *domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[doc.ID] = doc
}

// PutCollaborator grants a collaborator permission level.
func (r *MemoryPermissionRepository) PutCollaborator(c *domain.Collaborator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collaborators[grantKey(c.DocumentID, c.UserID)] = c
}

// PutInvitation stores an invitation in any status.
func (r *MemoryPermissionRepository) PutInvitation(inv *domain.Invitation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invitations[grantKey(inv.DocumentID, inv.UserID)] = inv
}

func (r *MemoryPermissionRepository) GetDocument(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (r *MemoryPermissionRepository) GetCollaborator(ctx context.Context, docID domain.DocumentID, userID domain.UserID) (*domain.Collaborator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collaborators[grantKey(docID, userID)], nil
}

func (r *MemoryPermissionRepository) GetInvitation(ctx context.Context, docID domain.DocumentID, userID domain.UserID) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invitations[grantKey(docID, userID)], nil
}

// GetContent implements ports.DocumentStore.
func (r *MemoryPermissionRepository) GetContent(ctx context.Context, id domain.DocumentID) (string, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return "", 0, domain.ErrDocumentNotFound
	}
	return doc.Content, doc.Version, nil
}

// SaveSnapshot implements ports.DocumentStore.
func (r *MemoryPermissionRepository) SaveSnapshot(ctx context.Context, id domain.DocumentID, content string, savedBy domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.documents[id]
	if !exists {
		return domain.ErrDocumentNotFound
	}
	doc.Content = content
	doc.Version++
	return nil
}

var (
	_ ports.PermissionRepository = (*MemoryPermissionRepository)(nil)
	_ ports.DocumentStore        = (*MemoryPermissionRepository)(nil)
)
