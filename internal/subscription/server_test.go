package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chat/internal/eventbus"
	"sudooom.im.chat/internal/model"
	appErrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/snowflake"
)

type stubAuth struct {
	mu     sync.Mutex
	tokens map[string]*model.User
	calls  int
}

func (s *stubAuth) ResolveUser(_ context.Context, token string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	user, ok := s.tokens[token]
	if !ok {
		return nil, appErrors.ErrStaleSession
	}
	return user, nil
}

func (s *stubAuth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubAuth) revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

const testOrigin = "https://app.example.com"

type testServer struct {
	srv  *Server
	bus  *eventbus.LocalBus
	auth *stubAuth
	url  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	auth := &stubAuth{tokens: map[string]*model.User{
		"token-a": {ID: 1},
		"token-b": {ID: 2},
	}}
	groups := &stubGroups{groups: map[int64][]*model.Group{
		1: {{ID: 7}},
		2: {{ID: 7}},
	}}
	bus := eventbus.NewLocalBus(8)
	srv := NewServer(auth, groups, bus, node, time.Hour, []string{testOrigin})

	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		hs.Close()
	})

	return &testServer{
		srv:  srv,
		bus:  bus,
		auth: auth,
		url:  "ws" + strings.TrimPrefix(hs.URL, "http"),
	}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	ws, _, err := dialer.Dial(ts.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, id, typ string, payload any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(newMessage(id, typ, payload)))
}

func read(t *testing.T, ws *websocket.Conn) OperationMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg OperationMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type != TypeKeepAlive {
			return msg
		}
	}
}

func initConn(t *testing.T, ws *websocket.Conn, token string) {
	t.Helper()
	send(t, ws, "", TypeConnectionInit, InitPayload{AuthToken: token})
	assert.Equal(t, TypeConnectionAck, read(t, ws).Type)
}

func startStream(t *testing.T, ts *testServer, ws *websocket.Conn, id, operation string, variables any) {
	t.Helper()
	vars, err := json.Marshal(variables)
	require.NoError(t, err)
	send(t, ws, id, TypeStart, StartPayload{OperationName: operation, Variables: vars})
}

func waitSubscribers(t *testing.T, bus *eventbus.LocalBus, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.Len() == n }, time.Second, 5*time.Millisecond)
}

func TestServer_RejectsInvalidToken(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)

	send(t, ws, "", TypeConnectionInit, InitPayload{AuthToken: "bogus"})
	msg := read(t, ws)
	require.Equal(t, TypeConnectionError, msg.Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, appErrors.CodeStaleSession, payload.Code)
}

func TestServer_StartBeforeInit(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)

	startStream(t, ts, ws, "1", OperationMessageAdded, map[string]any{})
	assert.Equal(t, TypeConnectionError, read(t, ws).Type)
}

func TestServer_MessageAdded(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)
	initConn(t, ws, "token-b")

	startStream(t, ts, ws, "1", OperationMessageAdded, map[string]any{"groupIds": []int64{7}})
	waitSubscribers(t, ts.bus, 1)

	ctx := context.Background()
	// 自己发的消息不推送
	require.NoError(t, ts.bus.Publish(ctx, eventbus.MessageCreated(&model.Message{ID: 10, GroupID: 7, SenderID: 2, Text: "mine"})))
	require.NoError(t, ts.bus.Publish(ctx, eventbus.MessageCreated(&model.Message{ID: 11, GroupID: 7, SenderID: 1, Text: "hello"})))

	msg := read(t, ws)
	require.Equal(t, TypeData, msg.Type)
	assert.Equal(t, "1", msg.ID)

	var payload struct {
		Data struct {
			MessageAdded model.Message `json:"messageAdded"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, int64(11), payload.Data.MessageAdded.ID)
	assert.Equal(t, "hello", payload.Data.MessageAdded.Text)
}

func TestServer_GroupAddedTrip(t *testing.T) {
	ts := newTestServer(t)

	wsA := ts.dial(t)
	initConn(t, wsA, "token-a")
	startStream(t, ts, wsA, "a", OperationGroupAdded, map[string]any{})

	wsB := ts.dial(t)
	initConn(t, wsB, "token-b")
	startStream(t, ts, wsB, "b", OperationGroupAdded, map[string]any{"userId": 2})
	waitSubscribers(t, ts.bus, 2)

	trip := &model.Group{ID: 20, Name: "Trip", Members: []*model.User{{ID: 1}, {ID: 2}}}
	require.NoError(t, ts.bus.Publish(context.Background(), eventbus.GroupCreated(trip)))

	msg := read(t, wsB)
	require.Equal(t, TypeData, msg.Type)
	assert.Contains(t, string(msg.Payload), `"groupAdded"`)
	assert.Contains(t, string(msg.Payload), `"Trip"`)

	// A 是创建者，收不到；用 stop 的 complete 作为栅栏
	send(t, wsA, "a", TypeStop, nil)
	assert.Equal(t, TypeComplete, read(t, wsA).Type)
}

func TestServer_ForbiddenArgs(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)
	initConn(t, ws, "token-b")

	startStream(t, ts, ws, "1", OperationGroupAdded, map[string]any{"userId": 1})
	msg := read(t, ws)
	require.Equal(t, TypeError, msg.Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, appErrors.CodeForbidden, payload.Code)
	assert.Equal(t, TypeComplete, read(t, ws).Type)

	startStream(t, ts, ws, "2", OperationMessageAdded, map[string]any{"groupIds": []int64{99}})
	assert.Equal(t, TypeError, read(t, ws).Type)
	assert.Equal(t, TypeComplete, read(t, ws).Type)
}

func TestServer_StaleSessionClosesOnlyStream(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)
	initConn(t, ws, "token-b")

	startStream(t, ts, ws, "1", OperationMessageAdded, map[string]any{"groupIds": []int64{7}})
	waitSubscribers(t, ts.bus, 1)

	ts.auth.revoke("token-b")
	require.NoError(t, ts.bus.Publish(context.Background(), eventbus.MessageCreated(&model.Message{ID: 1, GroupID: 7, SenderID: 1})))

	msg := read(t, ws)
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "1", msg.ID)
	assert.Equal(t, TypeComplete, read(t, ws).Type)
	waitSubscribers(t, ts.bus, 0)

	// 连接本身仍然可用
	startStream(t, ts, ws, "2", "unknownOperation", map[string]any{})
	assert.Equal(t, TypeError, read(t, ws).Type)
}

func TestServer_DisconnectReleasesSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)
	initConn(t, ws, "token-a")

	startStream(t, ts, ws, "1", OperationMessageAdded, nil)
	startStream(t, ts, ws, "2", OperationGroupAdded, nil)
	waitSubscribers(t, ts.bus, 2)
	assert.Len(t, ts.srv.Manager().GetByUserID(1), 1)

	send(t, ws, "", TypeConnectionTerminate, nil)
	waitSubscribers(t, ts.bus, 0)
	require.Eventually(t, func() bool { return ts.srv.Manager().Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_SkipsSessionCheckForFilteredEvents(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)
	initConn(t, ws, "token-b")

	startStream(t, ts, ws, "1", OperationMessageAdded, map[string]any{"groupIds": []int64{7}})
	waitSubscribers(t, ts.bus, 1)
	base := ts.auth.callCount()

	ctx := context.Background()
	// 自己发的和其他群的消息都不投递，也不触发会话校验
	require.NoError(t, ts.bus.Publish(ctx, eventbus.MessageCreated(&model.Message{ID: 1, GroupID: 7, SenderID: 2})))
	require.NoError(t, ts.bus.Publish(ctx, eventbus.MessageCreated(&model.Message{ID: 2, GroupID: 8, SenderID: 1})))
	require.NoError(t, ts.bus.Publish(ctx, eventbus.MessageCreated(&model.Message{ID: 3, GroupID: 7, SenderID: 1})))

	msg := read(t, ws)
	require.Equal(t, TypeData, msg.Type)
	assert.Equal(t, base+1, ts.auth.callCount())

	// 会话失效后，被过滤的事件不会结束订阅流
	ts.auth.revoke("token-b")
	require.NoError(t, ts.bus.Publish(ctx, eventbus.MessageCreated(&model.Message{ID: 4, GroupID: 8, SenderID: 1})))
	require.NoError(t, ts.bus.Publish(ctx, eventbus.MessageCreated(&model.Message{ID: 5, GroupID: 7, SenderID: 1})))

	msg = read(t, ws)
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "1", msg.ID)
	assert.Equal(t, TypeComplete, read(t, ws).Type)
	assert.Equal(t, base+2, ts.auth.callCount())
}

func TestServer_RejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	ws, resp, err := dialer.Dial(ts.url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Nil(t, ws)

	header.Set("Origin", testOrigin)
	ws, _, err = dialer.Dial(ts.url, header)
	require.NoError(t, err)
	ws.Close()
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{name: "no origin header", allowed: nil, origin: "", host: "chat.example.com", want: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example.com", host: "chat.example.com", want: true},
		{name: "listed", allowed: []string{testOrigin}, origin: testOrigin, host: "chat.example.com", want: true},
		{name: "same host", allowed: nil, origin: "https://chat.example.com", host: "chat.example.com", want: true},
		{name: "foreign", allowed: []string{testOrigin}, origin: "https://evil.example.com", host: "chat.example.com", want: false},
		{name: "malformed", allowed: nil, origin: "://", host: "chat.example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(tt.allowed)(r))
		})
	}
}
