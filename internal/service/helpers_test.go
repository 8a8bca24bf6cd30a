package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sudooom.im.chat/internal/auth"
	"sudooom.im.chat/internal/eventbus"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/push"
	"sudooom.im.chat/internal/repository/sqlite"
	"sudooom.im.chat/internal/workerpool"
	"sudooom.im.chat/pkg/jwt"
)

type memoryReadState struct {
	mu    sync.Mutex
	state map[int64]map[int64]int64
}

func newMemoryReadState() *memoryReadState {
	return &memoryReadState{state: make(map[int64]map[int64]int64)}
}

func (m *memoryReadState) Advance(_ context.Context, groupID, userID, messageID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state[groupID] == nil {
		m.state[groupID] = make(map[int64]int64)
	}
	if messageID > m.state[groupID][userID] {
		m.state[groupID][userID] = messageID
	}
	return m.state[groupID][userID], nil
}

func (m *memoryReadState) Get(_ context.Context, groupID, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[groupID][userID], nil
}

func (m *memoryReadState) Remove(_ context.Context, groupID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state[groupID], userID)
	return nil
}

func (m *memoryReadState) DeleteGroup(_ context.Context, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, groupID)
	return nil
}

type recordingPusher struct {
	mu   sync.Mutex
	sent []push.Notification
}

func (r *recordingPusher) Dispatch(n push.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingPusher) all() []push.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]push.Notification(nil), r.sent...)
}

type recordingSessions struct {
	revoked   []int
	evicted   []int64
	revokeErr error
}

func (r *recordingSessions) Revoke(_ context.Context, user *model.User) error {
	if r.revokeErr != nil {
		return r.revokeErr
	}
	r.revoked = append(r.revoked, user.PasswordVersion)
	return nil
}

func (r *recordingSessions) Evict(_ context.Context, userID int64) {
	r.evicted = append(r.evicted, userID)
}

type testEnv struct {
	users     *sqlite.UserRepository
	groups    *sqlite.GroupRepository
	messages  *sqlite.MessageRepository
	bus       *eventbus.LocalBus
	readState *memoryReadState
	pusher    *recordingPusher
	sessions  *recordingSessions
	jwt       *jwt.Service
	auth      *AuthService
	chat      *ChatService
	query     *QueryService
	paginator *Paginator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })

	pool := workerpool.New(2, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(pool.Shutdown)

	env := &testEnv{
		users:     sqlite.NewUserRepository(db),
		groups:    sqlite.NewGroupRepository(db),
		messages:  sqlite.NewMessageRepository(db),
		bus:       eventbus.NewLocalBus(16),
		readState: newMemoryReadState(),
		pusher:    &recordingPusher{},
		sessions:  &recordingSessions{},
		jwt:       jwt.NewService("test-secret", time.Hour),
	}

	env.auth = NewAuthService(env.users, env.jwt, pool, env.sessions)
	env.auth.hashCost = bcrypt.MinCost
	env.chat = NewChatService(env.users, env.groups, env.messages, env.readState, env.bus, env.pusher)
	env.paginator = NewPaginator(env.messages, 100)
	env.query = NewQueryService(env.users, env.groups, env.paginator, env.readState)
	return env
}

// signup 注册用户并返回带身份的 context
func (e *testEnv) signup(t *testing.T, email string) (*model.User, context.Context) {
	t.Helper()
	resp, err := e.auth.Signup(context.Background(), &SignupRequest{Email: email, Password: "password"})
	require.NoError(t, err)
	return resp.User, auth.WithUser(context.Background(), resp.User)
}

func (e *testEnv) befriend(t *testing.T, a, b *model.User) {
	t.Helper()
	require.NoError(t, e.users.AddFriend(context.Background(), a.ID, b.ID))
}

// seedMessages 在群内按顺序写入 n 条消息，返回 ID（递增）
func (e *testEnv) seedMessages(t *testing.T, groupID, senderID int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		msg := &model.Message{GroupID: groupID, SenderID: senderID, Text: "m"}
		require.NoError(t, e.messages.Create(context.Background(), msg))
		ids = append(ids, msg.ID)
	}
	return ids
}

func intPtr(n int) *int { return &n }

func int64Ptr(n int64) *int64 { return &n }

func strPtr(s string) *string { return &s }

func memberIDs(members []*model.User) []int64 {
	return (&model.Group{Members: members}).MemberIDs()
}
