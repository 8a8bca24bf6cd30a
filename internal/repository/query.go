package repository

import (
	"fmt"
	"strings"
)

// MessageQuery 单个群组的消息查询条件
// GreaterThan/LessThan 为开区间边界，0 表示不限制（消息 ID 从 1 开始）
type MessageQuery struct {
	GroupID     int64
	GreaterThan int64
	LessThan    int64
	Limit       int
	Ascending   bool
}

// where 生成 WHERE 子句与参数，占位符从 $1 开始
func (q MessageQuery) where() (string, []any) {
	conds := []string{"group_id = $1"}
	args := []any{q.GroupID}

	if q.GreaterThan > 0 {
		args = append(args, q.GreaterThan)
		conds = append(conds, fmt.Sprintf("id > $%d", len(args)))
	}
	if q.LessThan > 0 {
		args = append(args, q.LessThan)
		conds = append(conds, fmt.Sprintf("id < $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

// OrderBy 排序方向
func (q MessageQuery) OrderBy() string {
	if q.Ascending {
		return "id ASC"
	}
	return "id DESC"
}
