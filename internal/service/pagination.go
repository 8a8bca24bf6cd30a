package service

import (
	"context"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/repository"
	appErrors "sudooom.im.chat/pkg/errors"
)

// PageArgs 分页参数
// 结果按 ID 倒序（新消息在前），因此 Before 表示比游标更新（id > cursor），After 表示更旧（id < cursor）
type PageArgs struct {
	First  *int
	After  string
	Last   *int
	Before string
}

// Paginator 群消息游标分页
type Paginator struct {
	messages    MessageStore
	maxPageSize int
}

// NewPaginator 创建分页器，maxPageSize <= 0 表示不限制
func NewPaginator(messages MessageStore, maxPageSize int) *Paginator {
	return &Paginator{messages: messages, maxPageSize: maxPageSize}
}

// Messages 查询群消息的一页
func (p *Paginator) Messages(ctx context.Context, groupID int64, args PageArgs) (*model.MessageConnection, error) {
	limit, err := p.limit(args)
	if err != nil {
		return nil, err
	}

	var after, before int64
	if args.After != "" {
		if after, err = DecodeCursor(args.After); err != nil {
			return nil, err
		}
	}
	if args.Before != "" {
		if before, err = DecodeCursor(args.Before); err != nil {
			return nil, err
		}
	}

	// 无论给出哪个游标都按倒序取，只有 before 时返回比游标新的消息中最新的 limit 条
	query := repository.MessageQuery{
		GroupID:     groupID,
		GreaterThan: before,
		LessThan:    after,
		Limit:       limit,
	}
	rows, err := p.messages.List(ctx, query)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	conn := &model.MessageConnection{Edges: make([]*model.MessageEdge, 0, len(rows))}
	for _, msg := range rows {
		conn.Edges = append(conn.Edges, &model.MessageEdge{Cursor: EncodeCursor(msg.ID), Node: msg})
	}

	if conn.PageInfo.HasNextPage, err = p.hasNextPage(ctx, query, rows); err != nil {
		return nil, err
	}
	if conn.PageInfo.HasPreviousPage, err = p.hasPreviousPage(ctx, groupID, after, before); err != nil {
		return nil, err
	}
	return conn, nil
}

// limit first 优先于 last；都未给出时不限制
func (p *Paginator) limit(args PageArgs) (int, error) {
	n := args.First
	if n == nil {
		n = args.Last
	}
	if n == nil {
		return 0, nil
	}
	if *n <= 0 {
		return 0, appErrors.ErrInvalidParams.WithMessage("分页大小必须为正数")
	}
	if p.maxPageSize > 0 && *n > p.maxPageSize {
		return p.maxPageSize, nil
	}
	return *n, nil
}

// hasNextPage 本页取满时探测最旧一条之后、before 边界之内是否还有消息
func (p *Paginator) hasNextPage(ctx context.Context, query repository.MessageQuery, rows []*model.Message) (bool, error) {
	if query.Limit == 0 || len(rows) < query.Limit {
		return false, nil
	}
	return p.exists(ctx, repository.MessageQuery{
		GroupID:     query.GroupID,
		GreaterThan: query.GreaterThan,
		LessThan:    rows[len(rows)-1].ID,
	})
}

// hasPreviousPage 探测原始边界另一侧是否有消息：after 对应 id >= after，before 对应 id <= before
func (p *Paginator) hasPreviousPage(ctx context.Context, groupID, after, before int64) (bool, error) {
	if after > 0 {
		ok, err := p.exists(ctx, repository.MessageQuery{GroupID: groupID, GreaterThan: after - 1})
		if err != nil || ok {
			return ok, err
		}
	}
	if before > 0 {
		return p.exists(ctx, repository.MessageQuery{GroupID: groupID, LessThan: before + 1})
	}
	return false, nil
}

func (p *Paginator) exists(ctx context.Context, q repository.MessageQuery) (bool, error) {
	ok, err := p.messages.Exists(ctx, q)
	if err != nil {
		return false, translateStoreErr(err)
	}
	return ok, nil
}
