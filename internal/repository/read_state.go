package repository

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// advanceReadScript 只在新值更大时写入，保证已读指针单调递增
// KEYS[1] = 群已读 Key, ARGV[1] = userId, ARGV[2] = messageId
var advanceReadScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local incoming = tonumber(ARGV[2])
if incoming > current then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	return incoming
end
return current
`)

// ReadStateStore 群成员已读指针存储
type ReadStateStore struct {
	rdb *redis.Client
}

// NewReadStateStore 创建已读指针存储
func NewReadStateStore(rdb *redis.Client) *ReadStateStore {
	return &ReadStateStore{rdb: rdb}
}

// Advance 推进已读指针，返回推进后的值
func (s *ReadStateStore) Advance(ctx context.Context, groupID, userID, messageID int64) (int64, error) {
	return advanceReadScript.Run(ctx, s.rdb,
		[]string{BuildReadStateKey(groupID)},
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(messageID, 10),
	).Int64()
}

// Get 读取已读指针，不存在返回 0
func (s *ReadStateStore) Get(ctx context.Context, groupID, userID int64) (int64, error) {
	v, err := s.rdb.HGet(ctx, BuildReadStateKey(groupID), strconv.FormatInt(userID, 10)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// Remove 删除单个成员的已读指针（退群时调用）
func (s *ReadStateStore) Remove(ctx context.Context, groupID, userID int64) error {
	return s.rdb.HDel(ctx, BuildReadStateKey(groupID), strconv.FormatInt(userID, 10)).Err()
}

// DeleteGroup 删除整个群的已读指针
func (s *ReadStateStore) DeleteGroup(ctx context.Context, groupID int64) error {
	return s.rdb.Del(ctx, BuildReadStateKey(groupID)).Err()
}
