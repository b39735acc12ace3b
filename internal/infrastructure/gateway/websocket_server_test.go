package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/services"
	"collabgate/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serverFixture struct {
	*registryFixture
	auth   services.AuthService
	server *Server
	ts     *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	rf := newRegistryFixture(t)
	auth := services.NewAuthService("test-secret", time.Hour)

	cfg := config.DefaultConfig()
	cfg.Gateway.PingInterval = 50 * time.Millisecond
	cfg.Gateway.PongTimeout = 5 * time.Second

	server := NewServer(rf.registry, auth, rf.policy, cfg, zap.NewNop().Sugar())
	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(ts.Close)

	return &serverFixture{
		registryFixture: rf,
		auth:            auth,
		server:          server,
		ts:              ts,
	}
}

func (f *serverFixture) wsURL() string {
	return "ws" + f.ts.URL[len("http"):]
}

func (f *serverFixture) token(t *testing.T, userID string, role domain.UserRole) string {
	t.Helper()
	token, err := f.auth.GenerateToken(domain.UserID(userID), userID, role)
	require.NoError(t, err)
	return token
}

func (f *serverFixture) dial(t *testing.T, userID string, role domain.UserRole) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(f.wsURL()+"?token="+f.token(t, userID, role), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendEnvelope(t *testing.T, ws *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	env, err := NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

// readUntil skips envelopes until one with the wanted event arrives.
func readUntil(t *testing.T, ws *websocket.Conn, event string) Envelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env Envelope
		require.NoError(t, ws.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func TestHandleWebSocket_RejectsMissingToken(t *testing.T) {
	f := newServerFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_RejectsBadToken(t *testing.T) {
	f := newServerFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL()+"?token=not-a-jwt", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_JoinDeliversRosterAndSync(t *testing.T) {
	f := newServerFixture(t)
	ws := f.dial(t, "owner", domain.RoleUser)

	sendEnvelope(t, ws, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})

	rosterEnv := readUntil(t, ws, EventRoomUsers)
	var roster []domain.RosterEntry
	require.NoError(t, json.Unmarshal(rosterEnv.Payload, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, domain.UserID("owner"), roster[0].UserID)

	syncEnv := readUntil(t, ws, EventDocumentSync)
	var sync DocumentSyncPayload
	require.NoError(t, json.Unmarshal(syncEnv.Payload, &sync))
	assert.Equal(t, "hello world", sync.Content)
}

func TestHandleWebSocket_PermissionDeniedReportsRoomError(t *testing.T) {
	f := newServerFixture(t)
	ws := f.dial(t, "stranger", domain.RoleUser)

	sendEnvelope(t, ws, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})

	errEnv := readUntil(t, ws, EventRoomError)
	var p RoomErrorPayload
	require.NoError(t, json.Unmarshal(errEnv.Payload, &p))
	assert.Contains(t, p.Message, "permission")
}

func TestHandleWebSocket_OperationRelayedBetweenClients(t *testing.T) {
	f := newServerFixture(t)
	sender := f.dial(t, "owner", domain.RoleUser)
	receiver := f.dial(t, "editor", domain.RoleUser)

	sendEnvelope(t, sender, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, sender, EventDocumentSync)

	sendEnvelope(t, receiver, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, receiver, EventDocumentSync)

	sendEnvelope(t, sender, EventDocumentOperation, domain.Operation{
		Kind:     domain.OperationInsert,
		Position: 11,
		Content:  "!",
	})

	opEnv := readUntil(t, receiver, EventDocumentOperation)
	var op domain.Operation
	require.NoError(t, json.Unmarshal(opEnv.Payload, &op))
	assert.Equal(t, domain.OperationInsert, op.Kind)
	assert.Equal(t, 11, op.Position)
	assert.Equal(t, domain.UserID("owner"), op.UserID)
}

func TestHandleWebSocket_CursorRelayCarriesSenderIdentity(t *testing.T) {
	f := newServerFixture(t)
	sender := f.dial(t, "owner", domain.RoleUser)
	receiver := f.dial(t, "editor", domain.RoleUser)

	sendEnvelope(t, sender, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, sender, EventDocumentSync)
	sendEnvelope(t, receiver, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, receiver, EventDocumentSync)

	sendEnvelope(t, sender, EventDocumentCursor, CursorPayload{
		DocumentID: "doc-1",
		Cursor:     domain.Cursor{Position: 7},
	})

	env := readUntil(t, receiver, EventUserCursor)
	var p UserCursorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, domain.UserID("owner"), p.UserID)
	assert.Equal(t, 7, p.Cursor.Position)
}

func TestHandleWebSocket_UnknownEventReportsRoomError(t *testing.T) {
	f := newServerFixture(t)
	ws := f.dial(t, "owner", domain.RoleUser)

	sendEnvelope(t, ws, "bogus:event", nil)

	errEnv := readUntil(t, ws, EventRoomError)
	var p RoomErrorPayload
	require.NoError(t, json.Unmarshal(errEnv.Payload, &p))
	assert.Contains(t, p.Message, "unknown event")
}

func TestHandleWebSocket_AdminRequiredForAdminEvents(t *testing.T) {
	f := newServerFixture(t)
	ws := f.dial(t, "owner", domain.RoleUser)

	sendEnvelope(t, ws, EventAdminCollabStatus, AdminCollabStatusPayload{Enabled: false})

	errEnv := readUntil(t, ws, EventRoomError)
	var p RoomErrorPayload
	require.NoError(t, json.Unmarshal(errEnv.Payload, &p))
	assert.Contains(t, p.Message, "admin")
}

func TestHandleWebSocket_AdminDisableEvictsMembers(t *testing.T) {
	f := newServerFixture(t)
	member := f.dial(t, "owner", domain.RoleUser)
	admin := f.dial(t, "admin-user", domain.RoleAdmin)

	sendEnvelope(t, member, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, member, EventDocumentSync)

	sendEnvelope(t, admin, EventAdminCollabStatus, AdminCollabStatusPayload{
		Enabled: false,
		Reason:  "maintenance window",
	})

	env := readUntil(t, member, EventCollabDisabled)
	var p CollabDisabledPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "maintenance window", p.Reason)
}

func TestHandleWebSocket_AdminDisconnectClosesTarget(t *testing.T) {
	f := newServerFixture(t)
	victim := f.dial(t, "owner", domain.RoleUser)
	admin := f.dial(t, "admin-user", domain.RoleAdmin)

	sendEnvelope(t, victim, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, victim, EventDocumentSync)

	require.Eventually(t, func() bool {
		return f.recorder.joinCount() == 1
	}, time.Second, 10*time.Millisecond)
	sessionID := f.recorder.joins[0].ID

	sendEnvelope(t, admin, EventAdminDisconnect, AdminDisconnectPayload{SessionID: sessionID})

	// The victim's next read ends with a normal close frame: the
	// client treats this as intentional and does not reconnect.
	victim.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env Envelope
		err := victim.ReadJSON(&env)
		if err == nil {
			continue
		}
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
			"expected normal close, got %v", err)
		break
	}
}

func TestHandleWebSocket_SaveBroadcastsToRoom(t *testing.T) {
	f := newServerFixture(t)
	saver := f.dial(t, "owner", domain.RoleUser)
	peer := f.dial(t, "editor", domain.RoleUser)

	sendEnvelope(t, saver, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, saver, EventDocumentSync)
	sendEnvelope(t, peer, EventRoomJoin, RoomJoinPayload{DocumentID: "doc-1"})
	readUntil(t, peer, EventDocumentSync)

	sendEnvelope(t, saver, EventDocumentSave, DocumentSavePayload{
		DocumentID: "doc-1",
		Content:    "hello world, saved",
	})

	env := readUntil(t, peer, EventDocumentSaved)
	var p DocumentSavedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, domain.DocumentID("doc-1"), p.DocumentID)
	assert.NotEmpty(t, p.SavedAt)
}

func TestHealthCheck_ReportsCounts(t *testing.T) {
	f := newServerFixture(t)
	healthTS := httptest.NewServer(http.HandlerFunc(f.server.HealthCheck))
	defer healthTS.Close()

	f.dial(t, "owner", domain.RoleUser)

	require.Eventually(t, func() bool {
		resp, err := http.Get(healthTS.URL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return body.Status == "healthy" && body.Connections == 1
	}, 2*time.Second, 20*time.Millisecond)
}
