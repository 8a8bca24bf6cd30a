package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

// MessageRepository 消息仓库
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建消息，ID 与时间由数据库生成
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (group_id, sender_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.db.QueryRow(ctx, query, msg.GroupID, msg.SenderID, msg.Text).Scan(&msg.ID, &msg.CreatedAt)
}

// List 按条件查询消息
func (r *MessageRepository) List(ctx context.Context, q MessageQuery) ([]*model.Message, error) {
	where, args := q.where()
	query := fmt.Sprintf(
		`SELECT id, group_id, sender_id, text, created_at FROM messages WHERE %s ORDER BY %s`,
		where, q.OrderBy(),
	)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Exists 是否存在满足条件的消息，只做存在性判断
func (r *MessageRepository) Exists(ctx context.Context, q MessageQuery) (bool, error) {
	where, args := q.where()
	var exists bool
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM messages WHERE %s)`, where), args...).Scan(&exists)
	return exists, err
}
