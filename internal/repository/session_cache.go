package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.im.chat/internal/model"
)

// sessionRecord 缓存在 Redis 中的用户快照，不含密码哈希
type sessionRecord struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// setSessionScript 缓存中已有更高密码版本时拒绝写入，旧快照不会覆盖新版本
// KEYS[1] = 会话 Key, ARGV[1] = 快照 JSON, ARGV[2] = 密码版本, ARGV[3] = TTL 毫秒
var setSessionScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, rec = pcall(cjson.decode, current)
	if ok and type(rec) == 'table' and tonumber(rec.version) and tonumber(rec.version) > tonumber(ARGV[2]) then
		return 0
	end
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// SessionCache 会话校验用的用户缓存
type SessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionCache 创建会话缓存
func NewSessionCache(rdb *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, ttl: ttl}
}

// Get 读取缓存的用户，未命中返回 nil, nil
func (c *SessionCache) Get(ctx context.Context, userID int64) (*model.User, error) {
	data, err := c.rdb.Get(ctx, BuildSessionKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}

	return &model.User{
		ID:              rec.ID,
		Email:           rec.Email,
		Username:        rec.Username,
		PasswordVersion: rec.Version,
		CreatedAt:       rec.CreatedAt,
	}, nil
}

// Set 写入用户缓存，缓存中密码版本更高时保持不变
func (c *SessionCache) Set(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(sessionRecord{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Version:   user.PasswordVersion,
		CreatedAt: user.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	return setSessionScript.Run(ctx, c.rdb,
		[]string{BuildSessionKey(user.ID)},
		data,
		strconv.Itoa(user.PasswordVersion),
		strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Err()
}

// Delete 淘汰用户缓存
func (c *SessionCache) Delete(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, BuildSessionKey(userID)).Err()
}
