package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

// GroupRepository 群组与成员数据访问
type GroupRepository struct {
	db *pgxpool.Pool
}

// NewGroupRepository 创建群组仓库
func NewGroupRepository(db *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create 在一个事务内创建群组并按顺序写入成员
func (r *GroupRepository) Create(ctx context.Context, group *model.Group, memberIDs []int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO groups (name, icon) VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`
	if err := tx.QueryRow(ctx, query, group.Name, group.Icon).Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt); err != nil {
		return err
	}

	// 逐条插入以保留入群顺序（group_members.id 递增）
	for _, userID := range memberIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			group.ID, userID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetByID 通过 ID 获取群组（不含成员）
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*model.Group, error) {
	query := `SELECT id, name, icon, created_at, updated_at FROM groups WHERE id = $1`
	return scanGroup(r.db.QueryRow(ctx, query, id))
}

// Update 部分更新群组信息
func (r *GroupRepository) Update(ctx context.Context, id int64, update model.GroupUpdate) (*model.Group, error) {
	query := `
		UPDATE groups SET
			name = COALESCE($2, name),
			icon = COALESCE($3, icon),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, icon, created_at, updated_at
	`
	return scanGroup(r.db.QueryRow(ctx, query, id, update.Name, update.Icon))
}

// IsMember 检查是否为群成员
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&exists)
	return exists, err
}

// GetMembers 获取群成员，按入群顺序排列
func (r *GroupRepository) GetMembers(ctx context.Context, groupID int64) ([]*model.User, error) {
	query := `
		SELECT u.id, u.email, u.username, u.password_hash, u.password_version, u.created_at
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.id ASC
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, user)
	}
	return members, rows.Err()
}

// GetUserGroups 获取用户加入的群组
func (r *GroupRepository) GetUserGroups(ctx context.Context, userID int64) ([]*model.Group, error) {
	query := `
		SELECT g.id, g.name, g.icon, g.created_at, g.updated_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// RemoveMember 移除成员；最后一个成员离开时在同一事务内删除群组及其消息
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID int64) (groupDeleted bool, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// 锁住群组行，避免并发退群时漏删
	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrGroupNotFound
		}
		return false, err
	}

	result, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, ErrGroupMemberNotFound
	}

	var remaining int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&remaining); err != nil {
		return false, err
	}

	if remaining == 0 {
		if err := deleteGroupTx(ctx, tx, groupID); err != nil {
			return false, err
		}
		groupDeleted = true
	}

	return groupDeleted, tx.Commit(ctx)
}

// Delete 在一个事务内删除成员、消息和群组
func (r *GroupRepository) Delete(ctx context.Context, groupID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := deleteGroupTx(ctx, tx, groupID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func deleteGroupTx(ctx context.Context, tx pgx.Tx, groupID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	result, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func scanGroup(row pgx.Row) (*model.Group, error) {
	group := &model.Group{}
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Icon,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return group, nil
}
