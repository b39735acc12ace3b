package client

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/infrastructure/gateway"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGateway is a minimal websocket endpoint that hands accepted
// connections to the test and counts dials.
type testGateway struct {
	ts        *httptest.Server
	conns     chan *websocket.Conn
	dials     atomic.Int32
	rejectAll atomic.Bool
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	g := &testGateway{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	g.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.dials.Add(1)
		if g.rejectAll.Load() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Keep the read side alive so client writes are consumed.
		go func() {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()
		g.conns <- ws
	}))
	t.Cleanup(g.ts.Close)
	return g
}

func (g *testGateway) url() string {
	return "ws" + g.ts.URL[len("http"):]
}

func (g *testGateway) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-g.conns:
		return ws
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func fastOptions() Options {
	return Options{
		HandshakeTimeout:  time.Second,
		ReconnectBase:     10 * time.Millisecond,
		ReconnectAttempts: 3,
		EventBuffer:       64,
	}
}

func waitForStatus(t *testing.T, c *Client, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status() == want
	}, 3*time.Second, 5*time.Millisecond, "waiting for status %s, have %s", want, c.Status())
}

func TestConnect_Succeeds(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())

	require.NoError(t, c.Connect())
	defer c.Disconnect()

	assert.Equal(t, StatusConnected, c.Status())
	g.accept(t)
	assert.Equal(t, int32(1), g.dials.Load())
}

func TestConnect_HandshakeFailureIsTerminal(t *testing.T) {
	g := newTestGateway(t)
	g.rejectAll.Store(true)

	c := New(g.url(), "token", fastOptions())
	err := c.Connect()
	require.Error(t, err)
	assert.Equal(t, StatusError, c.Status())

	// A failed initial connect never enters the backoff path.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), g.dials.Load())
}

func TestReconnect_OnTransportDrop(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())

	require.NoError(t, c.Connect())
	defer c.Disconnect()
	serverSide := g.accept(t)

	// Drop the TCP connection without a close frame: a transport
	// failure, so the client backs off and redials.
	serverSide.UnderlyingConn().Close()

	require.Eventually(t, func() bool {
		return g.dials.Load() >= 2 && c.Status() == StatusConnected
	}, 3*time.Second, 5*time.Millisecond, "client should redial after a transport drop")
	g.accept(t)
}

func TestNoReconnect_OnServerCloseFrame(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())

	require.NoError(t, c.Connect())
	serverSide := g.accept(t)

	// An explicit close frame is an intentional server disconnect
	// (for example an admin kick): the client must not redial.
	serverSide.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "kicked"),
		time.Now().Add(time.Second))

	waitForStatus(t, c, StatusDisconnected)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), g.dials.Load())
}

func TestReconnect_ExhaustionReportsError(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())

	require.NoError(t, c.Connect())
	serverSide := g.accept(t)

	// Every redial is refused from now on.
	g.rejectAll.Store(true)
	serverSide.UnderlyingConn().Close()

	waitForStatus(t, c, StatusError)
	// Initial dial plus each failed reconnect attempt.
	assert.Equal(t, int32(1+3), g.dials.Load())
}

func TestDisconnect_SuppressesReconnect(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())

	require.NoError(t, c.Connect())
	g.accept(t)

	c.Disconnect()
	waitForStatus(t, c, StatusDisconnected)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), g.dials.Load())
}

func TestSend_RequiresConnection(t *testing.T) {
	c := New("ws://localhost:1/ws", "token", fastOptions())
	assert.ErrorIs(t, c.JoinRoom("doc-1"), ErrNotConnected)
	assert.ErrorIs(t, c.SendOperation(domain.Operation{}), ErrNotConnected)
}

func TestSave_RequiresRoom(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())
	require.NoError(t, c.Connect())
	defer c.Disconnect()
	g.accept(t)

	assert.ErrorIs(t, c.Save("content"), domain.ErrNotRoomMember)
}

func sendServerEnvelope(t *testing.T, ws *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	env, err := gateway.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

// collectEvents drains the event channel until the predicate matches
// or a timeout elapses, returning everything seen.
func collectEvents(t *testing.T, c *Client, done func(Event) bool) []Event {
	t.Helper()
	var seen []Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			seen = append(seen, ev)
			if done(ev) {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event; saw %d events", len(seen))
		}
	}
}

func TestRosterDiff_DerivesJoinAndLeaveEvents(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())
	require.NoError(t, c.Connect())
	defer c.Disconnect()
	serverSide := g.accept(t)

	alice := domain.RosterEntry{UserID: "alice", DisplayName: "Alice", ConnectionID: "c1"}
	bob := domain.RosterEntry{UserID: "bob", DisplayName: "Bob", ConnectionID: "c2"}

	sendServerEnvelope(t, serverSide, gateway.EventRoomUsers, []domain.RosterEntry{alice})
	events := collectEvents(t, c, func(ev Event) bool {
		_, ok := ev.(RosterReplacedEvent)
		return ok
	})
	var joined []domain.UserID
	for _, ev := range events {
		if e, ok := ev.(UserJoinedEvent); ok {
			joined = append(joined, e.User.UserID)
		}
	}
	assert.Equal(t, []domain.UserID{"alice"}, joined)

	sendServerEnvelope(t, serverSide, gateway.EventRoomUsers, []domain.RosterEntry{alice, bob})
	events = collectEvents(t, c, func(ev Event) bool {
		_, ok := ev.(RosterReplacedEvent)
		return ok
	})
	joined = nil
	for _, ev := range events {
		if e, ok := ev.(UserJoinedEvent); ok {
			joined = append(joined, e.User.UserID)
		}
	}
	assert.Equal(t, []domain.UserID{"bob"}, joined)

	sendServerEnvelope(t, serverSide, gateway.EventRoomUsers, []domain.RosterEntry{bob})
	events = collectEvents(t, c, func(ev Event) bool {
		_, ok := ev.(RosterReplacedEvent)
		return ok
	})
	var left []domain.UserID
	for _, ev := range events {
		if e, ok := ev.(UserLeftEvent); ok {
			left = append(left, e.User.UserID)
		}
	}
	assert.Equal(t, []domain.UserID{"alice"}, left)
}

func TestDispatch_RemoteOperationAndSync(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())
	require.NoError(t, c.Connect())
	defer c.Disconnect()
	serverSide := g.accept(t)

	sendServerEnvelope(t, serverSide, gateway.EventDocumentSync, gateway.DocumentSyncPayload{
		DocumentID: "doc-1",
		Content:    "hello",
		Version:    2,
	})
	events := collectEvents(t, c, func(ev Event) bool {
		_, ok := ev.(DocumentSyncEvent)
		return ok
	})
	sync := events[len(events)-1].(DocumentSyncEvent)
	assert.Equal(t, "hello", sync.Content)
	assert.Equal(t, int64(2), sync.Version)

	sendServerEnvelope(t, serverSide, gateway.EventDocumentOperation, domain.Operation{
		Kind:     domain.OperationInsert,
		Position: 5,
		Content:  "!",
		UserID:   "bob",
	})
	events = collectEvents(t, c, func(ev Event) bool {
		_, ok := ev.(RemoteOperationEvent)
		return ok
	})
	op := events[len(events)-1].(RemoteOperationEvent).Operation
	assert.Equal(t, domain.OperationInsert, op.Kind)
	assert.Equal(t, domain.UserID("bob"), op.UserID)
}

func TestPolicyDisabled_ClearsRoomState(t *testing.T) {
	g := newTestGateway(t)
	c := New(g.url(), "token", fastOptions())
	require.NoError(t, c.Connect())
	defer c.Disconnect()
	serverSide := g.accept(t)

	require.NoError(t, c.JoinRoom("doc-1"))

	sendServerEnvelope(t, serverSide, gateway.EventCollabDisabled, gateway.CollabDisabledPayload{
		Reason: "maintenance",
	})
	events := collectEvents(t, c, func(ev Event) bool {
		_, ok := ev.(PolicyChangedEvent)
		return ok
	})
	policy := events[len(events)-1].(PolicyChangedEvent)
	assert.False(t, policy.Enabled)
	assert.Equal(t, "maintenance", policy.Reason)

	// Room membership is gone: a save now fails locally.
	assert.ErrorIs(t, c.Save("content"), domain.ErrNotRoomMember)
}
