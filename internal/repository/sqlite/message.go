package sqlite

import (
	"context"

	"gorm.io/gorm"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/repository"
)

// MessageRepository 消息（SQLite）
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建消息，回填 ID 与创建时间
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	row := &messageRow{GroupID: msg.GroupID, SenderID: msg.SenderID, Text: msg.Text}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	msg.ID = row.ID
	msg.CreatedAt = row.CreatedAt
	return nil
}

// List 按条件查询消息
func (r *MessageRepository) List(ctx context.Context, q repository.MessageQuery) ([]*model.Message, error) {
	tx := scope(r.db.WithContext(ctx), q).Order(q.OrderBy())
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []messageRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	messages := make([]*model.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].toModel())
	}
	return messages, nil
}

// Exists 是否存在满足条件的消息
func (r *MessageRepository) Exists(ctx context.Context, q repository.MessageQuery) (bool, error) {
	var ids []int64
	if err := scope(r.db.WithContext(ctx), q).Limit(1).Pluck("id", &ids).Error; err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func scope(db *gorm.DB, q repository.MessageQuery) *gorm.DB {
	tx := db.Model(&messageRow{}).Where("group_id = ?", q.GroupID)
	if q.GreaterThan > 0 {
		tx = tx.Where("id > ?", q.GreaterThan)
	}
	if q.LessThan > 0 {
		tx = tx.Where("id < ?", q.LessThan)
	}
	return tx
}
