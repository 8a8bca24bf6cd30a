package model

import "time"

// Group 群组
// Members 按入群顺序排列，第一个成员为创建者
type Group struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Icon      string    `json:"icon,omitempty" db:"icon"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
	Members   []*User   `json:"users,omitempty" db:"-"`
}

// MemberIDs 成员 ID 列表，保持入群顺序
func (g *Group) MemberIDs() []int64 {
	ids := make([]int64, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// CreatorID 创建者 ID，即第一个成员；无成员时返回 0
func (g *Group) CreatorID() int64 {
	if len(g.Members) == 0 {
		return 0
	}
	return g.Members[0].ID
}

// GroupUpdate 群组的部分更新，nil 字段保持不变
type GroupUpdate struct {
	Name *string `json:"name"`
	Icon *string `json:"icon"`
}

// GroupDetail group 查询的返回结构
type GroupDetail struct {
	*Group
	Messages *MessageConnection `json:"messages"`
	LastRead *int64             `json:"lastRead"`
}
