package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/repository"
	appErrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/jwt"
)

type stubUsers struct {
	users map[int64]*model.User
	calls int
	err   error
	// onGet 在读到用户之后、返回之前执行，用于模拟并发改密
	onGet func()
}

func (s *stubUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	if s.onGet != nil {
		s.onGet()
	}
	return &copied, nil
}

type memoryCache struct {
	users     map[int64]*model.User
	getErr    error
	deleteErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{users: make(map[int64]*model.User)}
}

func (c *memoryCache) Get(_ context.Context, id int64) (*model.User, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.users[id], nil
}

func (c *memoryCache) Set(_ context.Context, u *model.User) error {
	if cur, ok := c.users[u.ID]; ok && cur.PasswordVersion > u.PasswordVersion {
		return nil
	}
	copied := *u
	c.users[u.ID] = &copied
	return nil
}

func (c *memoryCache) Delete(_ context.Context, id int64) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	delete(c.users, id)
	return nil
}

func newTestGate(users *stubUsers, cache SessionCache) (*Gate, *jwt.Service) {
	tokens := jwt.NewService("test-secret", time.Hour)
	return NewGate(tokens, users, cache), tokens
}

func TestGate_ResolveUser(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{
		1: {ID: 1, Email: "a@example.com", PasswordVersion: 1},
	}}
	gate, tokens := newTestGate(users, nil)

	token, err := tokens.GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)

	user, err := gate.ResolveUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
}

func TestGate_StaleSession(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{
		1: {ID: 1, Email: "a@example.com", PasswordVersion: 2},
	}}
	gate, tokens := newTestGate(users, nil)

	token, err := tokens.GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)

	_, err = gate.ResolveUser(context.Background(), token)
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleSession))
	assert.True(t, appErrors.IsUnauthenticated(err))
}

func TestGate_InvalidToken(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{}}
	gate, tokens := newTestGate(users, nil)

	_, err := gate.ResolveUser(context.Background(), "not-a-token")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))

	// 签名正确但用户不存在
	token, err := tokens.GenerateToken(42, "ghost@example.com", 1)
	require.NoError(t, err)
	_, err = gate.ResolveUser(context.Background(), token)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))

	// 其他密钥签发
	foreign, err := jwt.NewService("other-secret", time.Hour).GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)
	_, err = gate.ResolveUser(context.Background(), foreign)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))
}

func TestGate_StorageFailure(t *testing.T) {
	users := &stubUsers{err: errors.New("connection refused")}
	gate, tokens := newTestGate(users, nil)

	token, err := tokens.GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)

	_, err = gate.ResolveUser(context.Background(), token)
	assert.True(t, appErrors.Is(err, appErrors.ErrStorage))
	assert.False(t, appErrors.IsUnauthenticated(err))
}

func TestGate_UsesCache(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{
		1: {ID: 1, Email: "a@example.com", PasswordVersion: 1},
	}}
	cache := newMemoryCache()
	gate, tokens := newTestGate(users, cache)

	token, err := tokens.GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := gate.ResolveUser(context.Background(), token)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, users.calls)

	// 改密推进缓存版本，旧 Token 失效且无需回源
	users.users[1].PasswordVersion = 2
	require.NoError(t, gate.Revoke(context.Background(), &model.User{ID: 1, Email: "a@example.com", PasswordVersion: 2}))

	_, err = gate.ResolveUser(context.Background(), token)
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleSession))
	assert.Equal(t, 1, users.calls)
}

func TestGate_RevokeDoesNotDependOnDelete(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{
		1: {ID: 1, Email: "a@example.com", PasswordVersion: 1},
	}}
	cache := newMemoryCache()
	cache.deleteErr = errors.New("redis down")
	gate, tokens := newTestGate(users, cache)
	ctx := context.Background()

	oldToken, err := tokens.GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)
	_, err = gate.ResolveUser(ctx, oldToken)
	require.NoError(t, err)

	// 缓存无法删除时 Evict 只记录日志，快照仍是 v1
	gate.Evict(ctx, 1)
	require.NoError(t, gate.Revoke(ctx, &model.User{ID: 1, Email: "a@example.com", PasswordVersion: 2}))
	users.users[1].PasswordVersion = 2

	_, err = gate.ResolveUser(ctx, oldToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleSession))

	newToken, err := tokens.GenerateToken(1, "a@example.com", 2)
	require.NoError(t, err)
	_, err = gate.ResolveUser(ctx, newToken)
	require.NoError(t, err)
}

func TestGate_InFlightLoadCannotRestoreOldVersion(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{
		1: {ID: 1, Email: "a@example.com", PasswordVersion: 1},
	}}
	cache := newMemoryCache()
	gate, tokens := newTestGate(users, cache)
	ctx := context.Background()

	oldToken, err := tokens.GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)

	// 回源读到 v1 后、写缓存前，密码被改为 v2
	users.onGet = func() {
		users.onGet = nil
		require.NoError(t, gate.Revoke(ctx, &model.User{ID: 1, Email: "a@example.com", PasswordVersion: 2}))
		users.users[1].PasswordVersion = 2
	}
	_, err = gate.ResolveUser(ctx, oldToken)
	require.NoError(t, err)

	cached, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 2, cached.PasswordVersion)

	_, err = gate.ResolveUser(ctx, oldToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleSession))
}

func TestGate_RevokeFailure(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{}}
	gate, _ := newTestGate(users, failingCache{})

	err := gate.Revoke(context.Background(), &model.User{ID: 1, PasswordVersion: 2})
	assert.True(t, appErrors.Is(err, appErrors.ErrStorage))

	nocache, _ := newTestGate(users, nil)
	assert.NoError(t, nocache.Revoke(context.Background(), &model.User{ID: 1, PasswordVersion: 2}))
}

type failingCache struct{}

func (failingCache) Get(context.Context, int64) (*model.User, error) {
	return nil, errors.New("redis down")
}

func (failingCache) Set(context.Context, *model.User) error {
	return errors.New("redis down")
}

func (failingCache) Delete(context.Context, int64) error {
	return errors.New("redis down")
}

func TestGate_CacheErrorFallsBackToStore(t *testing.T) {
	users := &stubUsers{users: map[int64]*model.User{
		1: {ID: 1, Email: "a@example.com", PasswordVersion: 1},
	}}
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	gate, tokens := newTestGate(users, cache)

	token, err := tokens.GenerateToken(1, "a@example.com", 1)
	require.NoError(t, err)

	user, err := gate.ResolveUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	_, ok := UserFromContext(ctx)
	assert.False(t, ok)

	_, err := GetAuthenticatedUser(ctx)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthenticated))

	ctx = WithUser(ctx, &model.User{ID: 7})
	user, err := GetAuthenticatedUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearer("bearer abc"))
	assert.Equal(t, "", ExtractBearer("Basic abc"))
	assert.Equal(t, "", ExtractBearer("abc"))
	assert.Equal(t, "", ExtractBearer(""))
}
