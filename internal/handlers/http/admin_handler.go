package http

import (
	"context"
	"net/http"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
	"collabgate/internal/infrastructure/gateway"

	"github.com/gin-gonic/gin"
)

// SessionDisconnector forwards an admin disconnect to peer gateway
// instances when the session is not connected locally.
type SessionDisconnector interface {
	PublishSessionDisconnect(ctx context.Context, sessionID domain.SessionID) error
}

// AdminHandler exposes the operator API: the collaboration kill
// switch, the session audit log, and forced disconnects. All routes
// require the admin role.
type AdminHandler struct {
	policy   ports.PolicyService
	sessions ports.SessionRepository
	registry *gateway.Registry
	peers    SessionDisconnector // nil when no event bus is configured
}

func NewAdminHandler(
	policy ports.PolicyService,
	sessions ports.SessionRepository,
	registry *gateway.Registry,
	peers SessionDisconnector,
) *AdminHandler {
	return &AdminHandler{
		policy:   policy,
		sessions: sessions,
		registry: registry,
		peers:    peers,
	}
}

func (h *AdminHandler) SetupRoutes(api *gin.RouterGroup) {
	admin := api.Group("/admin")
	{
		admin.GET("/collaboration/status", h.GetCollaborationStatus)
		admin.POST("/collaboration/disable", h.DisableCollaboration)
		admin.POST("/collaboration/enable", h.EnableCollaboration)
		admin.GET("/sessions", h.ListActiveSessions)
		admin.POST("/sessions/:id/disconnect", h.DisconnectSession)
		admin.GET("/rooms/:documentId/roster", h.GetRoster)
	}
}

type sessionResponse struct {
	ID              domain.SessionID    `json:"id"`
	DocumentID      domain.DocumentID   `json:"documentId"`
	UserID          domain.UserID       `json:"userId"`
	ConnectionID    domain.ConnectionID `json:"connectionId"`
	JoinedAt        time.Time           `json:"joinedAt"`
	LastActivity    time.Time           `json:"lastActivity"`
	IsActive        bool                `json:"isActive"`
	OperationsCount int64               `json:"operationsCount"`
	LeftAt          *time.Time          `json:"leftAt,omitempty"`
}

func toSessionResponse(s *domain.CollaborationSession) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		DocumentID:      s.DocumentID,
		UserID:          s.UserID,
		ConnectionID:    s.ConnectionID,
		JoinedAt:        s.JoinedAt,
		LastActivity:    s.LastActivity,
		IsActive:        s.IsActive,
		OperationsCount: s.OperationsCount,
		LeftAt:          s.LeftAt,
	}
}

func (h *AdminHandler) GetCollaborationStatus(c *gin.Context) {
	policy, err := h.policy.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":    policy.Enabled(time.Now()),
		"reason":     policy.DisabledReason,
		"until":      policy.DisabledUntil,
		"updated_at": policy.UpdatedAt,
	})
}

type DisableCollaborationRequest struct {
	Reason string     `json:"reason" binding:"max=500"`
	Until  *time.Time `json:"until"`
}

func (h *AdminHandler) DisableCollaboration(c *gin.Context) {
	var req DisableCollaborationRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.policy.Disable(c.Request.Context(), req.Reason, req.Until); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

func (h *AdminHandler) EnableCollaboration(c *gin.Context) {
	if err := h.policy.Enable(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (h *AdminHandler) ListActiveSessions(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": out,
		"count":    len(out),
	})
}

func (h *AdminHandler) DisconnectSession(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id required"})
		return
	}

	if h.registry.DisconnectSession(sessionID) {
		c.JSON(http.StatusOK, gin.H{"disconnected": true})
		return
	}

	// Not on this instance. With a shared Redis the session may live
	// on a peer gateway, so hand the disconnect to the bus.
	if h.peers == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not connected to this gateway"})
		return
	}
	if err := h.peers.PublishSessionDisconnect(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"disconnected": false, "forwarded": true})
}

func (h *AdminHandler) GetRoster(c *gin.Context) {
	docID := domain.DocumentID(c.Param("documentId"))
	roster := h.registry.Roster(docID)

	c.JSON(http.StatusOK, gin.H{
		"documentId": docID,
		"users":      roster,
		"count":      len(roster),
	})
}
