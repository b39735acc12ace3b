package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
	"collabgate/pkg/config"
	"collabgate/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server terminates websocket connections, authenticates them, and
// routes wire events to the registry. Identity is resolved from the
// bearer credential before any room operation is accepted.
type Server struct {
	registry *Registry
	verifier ports.TokenVerifier
	policy   ports.PolicyService
	logger   *zap.SugaredLogger

	upgrader websocket.Upgrader

	pingInterval    time.Duration
	pongTimeout     time.Duration
	writeTimeout    time.Duration
	maxMessageBytes int64
	sendQueueSize   int

	msgRate  rate.Limit
	msgBurst int
}

func NewServer(registry *Registry, verifier ports.TokenVerifier, policy ports.PolicyService, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	s := &Server{
		registry: registry,
		verifier: verifier,
		policy:   policy,
		logger:   logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      originChecker(cfg.Auth.AllowedOrigins),
		},
		pingInterval:    cfg.Gateway.PingInterval,
		pongTimeout:     cfg.Gateway.PongTimeout,
		writeTimeout:    cfg.Gateway.WriteTimeout,
		maxMessageBytes: cfg.Gateway.MaxMessageBytes,
		sendQueueSize:   cfg.Gateway.SendQueueSize,
	}
	if cfg.RateLimiting.Enabled {
		s.msgRate = rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond)
		s.msgBurst = cfg.RateLimiting.WebSocket.Burst
	}
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// connection is one live websocket client. It implements Conn.
type connection struct {
	id   domain.ConnectionID
	user *domain.User
	role domain.UserRole

	ws   *websocket.Conn
	send chan Envelope

	closeOnce sync.Once
	kicked    chan string
}

func (c *connection) ID() domain.ConnectionID { return c.id }
func (c *connection) User() *domain.User      { return c.user }
func (c *connection) Role() domain.UserRole   { return c.role }

// Send enqueues without blocking; a slow consumer loses messages
// rather than stalling the broadcast path. Roster replaces make the
// membership view self-healing after drops.
func (c *connection) Send(env Envelope) {
	select {
	case c.send <- env:
	default:
	}
}

// Kick asks the writer to close the connection with a close frame so
// the client recognizes an intentional server-side disconnect.
func (c *connection) Kick(reason string) {
	c.closeOnce.Do(func() {
		c.kicked <- reason
	})
}

// HandleWebSocket authenticates the bearer credential, upgrades the
// connection, and runs its read loop until disconnect. A bad or
// missing credential is rejected at handshake with no room state
// created.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	user, role, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Warnw("credential rejected",
			"token", utils.MaskSensitive(token, 8),
			"error", err,
		)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	// Display names come from the token and go straight into rosters.
	user.DisplayName = utils.TruncateString(utils.SanitizeString(user.DisplayName), 100)
	if utils.IsEmpty(user.DisplayName) {
		user.DisplayName = user.Username
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		id:     domain.ConnectionID(utils.GenerateConnectionID()),
		user:   user,
		role:   role,
		ws:     ws,
		send:   make(chan Envelope, s.sendQueueSize),
		kicked: make(chan string, 1),
	}

	s.registry.Register(conn)
	s.logger.Infow("client connected",
		"connection_id", conn.id,
		"user_id", user.ID,
		"role", role,
	)

	go s.writeLoop(conn)
	s.readLoop(conn)

	s.registry.Unregister(conn.id)
	ws.Close()
	s.logger.Infow("client disconnected", "connection_id", conn.id, "user_id", user.ID)
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

func (s *Server) readLoop(c *connection) {
	if s.maxMessageBytes > 0 {
		c.ws.SetReadLimit(s.maxMessageBytes)
	}
	c.ws.SetReadDeadline(time.Now().Add(s.pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.msgRate > 0 {
		limiter = rate.NewLimiter(s.msgRate, s.msgBurst)
	}

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("read error", "connection_id", c.id, "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(s.pongTimeout))

		if limiter != nil && !limiter.Allow() {
			s.sendRoomError(c, "message rate limit exceeded")
			continue
		}

		if err := s.handleMessage(context.Background(), c, env); err != nil {
			s.sendRoomError(c, err.Error())
		}
	}
}

func (s *Server) writeLoop(c *connection) {
	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}

		case <-pingTicker.C:
			c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case reason := <-c.kicked:
			c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			c.ws.WriteMessage(websocket.CloseMessage, msg)
			c.ws.Close()
			return
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, c *connection, env Envelope) error {
	switch env.Event {
	case EventRoomJoin:
		var p RoomJoinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload", EventRoomJoin)
		}
		if p.DocumentID == "" {
			return fmt.Errorf("documentId is required")
		}
		return s.registry.Join(ctx, c, p.DocumentID)

	case EventRoomLeave:
		s.registry.Leave(c.id)
		return nil

	case EventDocumentOperation:
		var op domain.Operation
		if err := json.Unmarshal(env.Payload, &op); err != nil {
			return fmt.Errorf("invalid %s payload", EventDocumentOperation)
		}
		if op.Kind != domain.OperationInsert && op.Kind != domain.OperationDelete {
			return fmt.Errorf("unknown operation kind: %s", op.Kind)
		}
		return s.registry.Broadcast(c, op)

	case EventDocumentCursor:
		var p CursorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload", EventDocumentCursor)
		}
		out, err := NewEnvelope(EventUserCursor, UserCursorPayload{
			UserID: c.user.ID,
			Cursor: p.Cursor,
		})
		if err != nil {
			return err
		}
		return s.registry.RelayToPeers(c, out)

	case EventUserTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload", EventUserTyping)
		}
		out, err := NewEnvelope(EventUserTyping, UserTypingPayload{
			UserID:   c.user.ID,
			IsTyping: p.IsTyping,
		})
		if err != nil {
			return err
		}
		return s.registry.RelayToPeers(c, out)

	case EventDocumentSave:
		var p DocumentSavePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload", EventDocumentSave)
		}
		return s.registry.Save(ctx, c, p.DocumentID, p.Content)

	case EventAdminDisconnect:
		if c.role != domain.RoleAdmin {
			return fmt.Errorf("admin privileges required")
		}
		var p AdminDisconnectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload", EventAdminDisconnect)
		}
		if !s.registry.DisconnectSession(p.SessionID) {
			return fmt.Errorf("session %s not found", p.SessionID)
		}
		return nil

	case EventAdminCollabStatus:
		if c.role != domain.RoleAdmin {
			return fmt.Errorf("admin privileges required")
		}
		var p AdminCollabStatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload", EventAdminCollabStatus)
		}
		if p.Enabled {
			return s.policy.Enable(ctx)
		}
		return s.policy.Disable(ctx, p.Reason, p.Until)

	default:
		return fmt.Errorf("unknown event: %s", env.Event)
	}
}

// sendRoomError reports any join-time or message failure through the
// single room:error event with a human-readable reason.
func (s *Server) sendRoomError(c *connection, message string) {
	env, err := NewEnvelope(EventRoomError, RoomErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.Send(env)
}

// HealthCheck reports liveness plus connection and room counts.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.registry.mu.Lock()
	connections := len(s.registry.conns)
	rooms := len(s.registry.rooms)
	s.registry.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connections,
		"rooms":       rooms,
	})
}
