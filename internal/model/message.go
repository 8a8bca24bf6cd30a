package model

import "time"

// Message 消息，创建后不可修改
type Message struct {
	ID        int64     `json:"id" db:"id"`
	GroupID   int64     `json:"groupId" db:"group_id"`
	SenderID  int64     `json:"userId" db:"sender_id"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// MessageEdge 分页中的一条记录
type MessageEdge struct {
	Cursor string   `json:"cursor"`
	Node   *Message `json:"node"`
}

// PageInfo 分页状态
type PageInfo struct {
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// MessageConnection 游标分页结果
type MessageConnection struct {
	Edges    []*MessageEdge `json:"edges"`
	PageInfo PageInfo       `json:"pageInfo"`
}
