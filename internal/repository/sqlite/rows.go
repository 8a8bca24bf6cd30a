package sqlite

import (
	"time"

	"sudooom.im.chat/internal/model"
)

type userRow struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	Email           string    `gorm:"not null;uniqueIndex"`
	Username        string    `gorm:"not null"`
	PasswordHash    string    `gorm:"not null"`
	PasswordVersion int       `gorm:"not null;default:1"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func (r *userRow) toModel() *model.User {
	return &model.User{
		ID:              r.ID,
		Email:           r.Email,
		Username:        r.Username,
		PasswordHash:    r.PasswordHash,
		PasswordVersion: r.PasswordVersion,
		CreatedAt:       r.CreatedAt,
	}
}

type friendshipRow struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	FriendID  int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

func (friendshipRow) TableName() string { return "friendships" }

type groupRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null"`
	Icon      string `gorm:"not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (groupRow) TableName() string { return "groups" }

func (r *groupRow) toModel() *model.Group {
	return &model.Group{
		ID:        r.ID,
		Name:      r.Name,
		Icon:      r.Icon,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// groupMemberRow 自增 ID 记录入群顺序
type groupMemberRow struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	GroupID   int64 `gorm:"not null;uniqueIndex:idx_group_member"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_group_member;index"`
	CreatedAt time.Time
}

func (groupMemberRow) TableName() string { return "group_members" }

type messageRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	GroupID   int64  `gorm:"not null;index"`
	SenderID  int64  `gorm:"not null"`
	Text      string `gorm:"not null"`
	CreatedAt time.Time
}

func (messageRow) TableName() string { return "messages" }

func (r *messageRow) toModel() *model.Message {
	return &model.Message{
		ID:        r.ID,
		GroupID:   r.GroupID,
		SenderID:  r.SenderID,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
	}
}
