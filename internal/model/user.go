package model

import "time"

// User 用户
type User struct {
	ID              int64     `json:"id" db:"id"`
	Email           string    `json:"email" db:"email"`
	Username        string    `json:"username" db:"username"`
	PasswordHash    string    `json:"-" db:"password_hash"`
	PasswordVersion int       `json:"-" db:"password_version"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// UserProfile user 查询的返回结构，包含好友与群组
type UserProfile struct {
	*User
	Friends []*User  `json:"friends"`
	Groups  []*Group `json:"groups"`
}
