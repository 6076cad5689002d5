package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/roomchat/internal/model"
	sqliteRepo "github.com/sakif/roomchat/internal/repository/sqlite"
	"github.com/sakif/roomchat/internal/service"
)

// chatHarness runs a hub and a relay behind an httptest server whose only
// route upgrades to a chat client. ?chat= picks the room and ?user= attaches
// a session identity.
type chatHarness struct {
	hub   *Hub
	relay *Relay
	wsURL string
}

func newChatHarness(t *testing.T, scope Scope, store MessageLog, bindSender bool) *chatHarness {
	t.Helper()
	logger := discardLogger()

	hub := NewHub(scope, logger)
	relay := NewRelay(store, hub, RelayConfig{Workers: 1, QueueSize: 64, BindSender: bindSender}, logger)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		opts := ClientOptions{
			Room:            r.URL.Query().Get("chat"),
			MaxMessageBytes: 4096,
			RateBurst:       100,
			RateInterval:    time.Second,
		}
		if name := r.URL.Query().Get("user"); name != "" {
			opts.Identity = &model.SessionUser{ID: 1, Name: name}
		}
		if err := hub.Register(NewClient(conn, hub, relay, opts, logger)); err != nil {
			conn.Close()
		}
	}))

	hubCtx, stopHub := context.WithCancel(context.Background())
	relayCtx, stopRelay := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	relayDone := make(chan struct{})
	go func() { defer close(hubDone); _ = hub.Run(hubCtx) }()
	go func() { defer close(relayDone); _ = relay.Run(relayCtx) }()

	t.Cleanup(func() {
		srv.Close()
		stopRelay()
		<-relayDone
		stopHub()
		<-hubDone
	})

	return &chatHarness{
		hub:   hub,
		relay: relay,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

// dial connects a client viewing room and waits until the hub has
// registered it.
func (h *chatHarness) dial(t *testing.T, room string, query ...string) *websocket.Conn {
	t.Helper()
	before := h.hub.Count()

	url := h.wsURL + "/ws?chat=" + room
	for _, q := range query {
		url += "&" + q
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return h.hub.Count() > before })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sendChat(t *testing.T, conn *websocket.Conn, chatName, sender, message string) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{
		"event": EventSendMessage,
		"data":  map[string]string{"chat": chatName, "sender": sender, "message": message},
	})
	require.NoError(t, err)
}

func readReceive(t *testing.T, conn *websocket.Conn) Outgoing {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, EventReceiveMessage, env.Event)

	var out Outgoing
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHub_SendPersistsOnceAndReachesEveryRoom(t *testing.T) {
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	history := service.NewHistoryService(db, nil, discardLogger())

	h := newChatHarness(t, ScopeAll, history, false)
	alice := h.dial(t, "general")
	bob := h.dial(t, "general")
	carol := h.dial(t, "random")

	sendChat(t, alice, "general", "Alice", "hi")

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob, "carol": carol} {
		out := readReceive(t, conn)
		assert.Equal(t, "Alice", out.Sender, name)
		assert.Equal(t, "hi", out.Message, name)
		assert.Equal(t, "general", out.Chat, name)
		assert.NotEmpty(t, out.Timestamp, name)
	}

	rows, err := history.History(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0].Content)
}

func TestHub_RoomScopeOnlyReachesThatRoom(t *testing.T) {
	h := newChatHarness(t, ScopeRoom, &fakeLog{}, false)
	alice := h.dial(t, "general")
	bob := h.dial(t, "random")

	sendChat(t, alice, "general", "Alice", "for general")
	assert.Equal(t, "for general", readReceive(t, alice).Message)

	// Bob's first frame must be the one addressed to his own room.
	sendChat(t, bob, "random", "Bob", "for random")
	assert.Equal(t, "for random", readReceive(t, bob).Message)
}

func TestHub_MissingChatFallsBackToViewedRoom(t *testing.T) {
	store := &fakeLog{}
	h := newChatHarness(t, ScopeAll, store, false)
	conn := h.dial(t, "books")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": EventSendMessage,
		"data":  map[string]string{"sender": "Dan", "message": "hello"},
	}))

	assert.Equal(t, "books", readReceive(t, conn).Chat)
}

func TestHub_BindSenderUsesSession(t *testing.T) {
	store := &fakeLog{}
	h := newChatHarness(t, ScopeAll, store, true)
	conn := h.dial(t, "general", "user=Alice")

	sendChat(t, conn, "general", "Mallory", "hi")

	assert.Equal(t, "Alice", readReceive(t, conn).Sender)
	assert.Equal(t, "Alice", store.all()[0].sender)
}

func TestHub_IgnoresGarbageAndKeepsConnection(t *testing.T) {
	h := newChatHarness(t, ScopeAll, &fakeLog{}, false)
	conn := h.dial(t, "general")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{}}`)))
	sendChat(t, conn, "general", "Eve", "still here")

	assert.Equal(t, "still here", readReceive(t, conn).Message)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := newChatHarness(t, ScopeAll, &fakeLog{}, false)
	conn := h.dial(t, "general")
	require.Equal(t, 1, h.hub.Count())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	waitFor(t, func() bool { return h.hub.Count() == 0 })
}

func TestHub_FanOutDropsFullClient(t *testing.T) {
	hub := NewHub(ScopeAll, discardLogger())
	slow := &Client{id: "slow", send: make(chan []byte, 1), logger: discardLogger()}
	fast := &Client{id: "fast", send: make(chan []byte, 4), logger: discardLogger()}
	hub.clients[slow] = struct{}{}
	hub.clients[fast] = struct{}{}

	slow.send <- []byte("backlog")
	hub.fanOut(broadcast{room: "general", payload: []byte("new")})

	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, []byte("new"), <-fast.send)

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "dropped client's send channel must be closed")
}

func TestHub_ClosedHubRejectsWork(t *testing.T) {
	hub := NewHub(ScopeAll, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hub.Run(ctx))

	assert.ErrorIs(t, hub.Broadcast("general", []byte("x")), ErrHubClosed)
	assert.ErrorIs(t, hub.Register(&Client{}), ErrHubClosed)
}

func TestNewHub_KeepsScope(t *testing.T) {
	assert.Equal(t, ScopeRoom, NewHub(ScopeRoom, discardLogger()).Scope())
	assert.Equal(t, ScopeAll, NewHub(ScopeAll, discardLogger()).Scope())
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("room")
	require.NoError(t, err)
	assert.Equal(t, ScopeRoom, s)

	_, err = ParseScope("everyone")
	assert.Error(t, err)
}
