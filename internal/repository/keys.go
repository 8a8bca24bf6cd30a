package repository

import "fmt"

const (
	// sessionKeyPrefix 会话用户缓存: im:chat:session:{userId} -> sessionRecord JSON
	sessionKeyPrefix = "im:chat:session:"
	// readStateKeyPrefix 群已读指针: im:chat:group:{groupId}:read -> hash{userId: messageId}
	readStateKeyPrefix = "im:chat:group:"
)

// BuildSessionKey 构建会话缓存 Key
func BuildSessionKey(userID int64) string {
	return fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
}

// BuildReadStateKey 构建群已读指针 Key
func BuildReadStateKey(groupID int64) string {
	return fmt.Sprintf("%s%d:read", readStateKeyPrefix, groupID)
}
