package sqlite

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/repository"
)

// GroupRepository 群组与成员（SQLite）
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository 创建群组仓库
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create 在一个事务内创建群组并按顺序写入成员
func (r *GroupRepository) Create(ctx context.Context, group *model.Group, memberIDs []int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &groupRow{Name: group.Name, Icon: group.Icon}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		seen := make(map[int64]struct{}, len(memberIDs))
		for _, userID := range memberIDs {
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}
			if err := tx.Create(&groupMemberRow{GroupID: row.ID, UserID: userID}).Error; err != nil {
				return err
			}
		}

		group.ID = row.ID
		group.CreatedAt = row.CreatedAt
		group.UpdatedAt = row.UpdatedAt
		return nil
	})
}

// GetByID 通过 ID 获取群组（不含成员）
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*model.Group, error) {
	var row groupRow
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, translateGroupErr(err)
	}
	return row.toModel(), nil
}

// Update 部分更新群组信息
func (r *GroupRepository) Update(ctx context.Context, id int64, update model.GroupUpdate) (*model.Group, error) {
	var row groupRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, id).Error; err != nil {
			return translateGroupErr(err)
		}

		changes := map[string]any{}
		if update.Name != nil {
			changes["name"] = *update.Name
		}
		if update.Icon != nil {
			changes["icon"] = *update.Icon
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&row).Updates(changes).Error; err != nil {
			return err
		}
		return tx.First(&row, id).Error
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// IsMember 检查是否为群成员
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&groupMemberRow{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetMembers 获取群成员，按入群顺序排列
func (r *GroupRepository) GetMembers(ctx context.Context, groupID int64) ([]*model.User, error) {
	var rows []userRow
	err := r.db.WithContext(ctx).
		Joins("JOIN group_members gm ON gm.user_id = users.id").
		Where("gm.group_id = ?", groupID).
		Order("gm.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	members := make([]*model.User, 0, len(rows))
	for i := range rows {
		members = append(members, rows[i].toModel())
	}
	return members, nil
}

// GetUserGroups 获取用户加入的群组
func (r *GroupRepository) GetUserGroups(ctx context.Context, userID int64) ([]*model.Group, error) {
	var rows []groupRow
	err := r.db.WithContext(ctx).
		Joins(`JOIN group_members gm ON gm.group_id = "groups".id`).
		Where("gm.user_id = ?", userID).
		Order(`"groups".id ASC`).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	groups := make([]*model.Group, 0, len(rows))
	for i := range rows {
		groups = append(groups, rows[i].toModel())
	}
	return groups, nil
}

// RemoveMember 移除成员；最后一个成员离开时在同一事务内删除群组及其消息
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID int64) (groupDeleted bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group groupRow
		if err := tx.First(&group, groupID).Error; err != nil {
			return translateGroupErr(err)
		}

		result := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&groupMemberRow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrGroupMemberNotFound
		}

		var remaining int64
		if err := tx.Model(&groupMemberRow{}).Where("group_id = ?", groupID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		groupDeleted = true
		return deleteGroupTx(tx, groupID)
	})
	if err != nil {
		return false, err
	}
	return groupDeleted, nil
}

// Delete 在一个事务内删除成员、消息和群组
func (r *GroupRepository) Delete(ctx context.Context, groupID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteGroupTx(tx, groupID)
	})
}

func deleteGroupTx(tx *gorm.DB, groupID int64) error {
	if err := tx.Where("group_id = ?", groupID).Delete(&groupMemberRow{}).Error; err != nil {
		return err
	}
	if err := tx.Where("group_id = ?", groupID).Delete(&messageRow{}).Error; err != nil {
		return err
	}
	result := tx.Delete(&groupRow{}, groupID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repository.ErrGroupNotFound
	}
	return nil
}

func translateGroupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrGroupNotFound
	}
	return err
}
