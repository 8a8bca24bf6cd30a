package sqlite

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/repository"
)

// UserRepository 用户与好友关系（SQLite）
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户，邮箱重复返回 repository.ErrEmailExists
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	row := &userRow{
		Email:           user.Email,
		Username:        user.Username,
		PasswordHash:    user.PasswordHash,
		PasswordVersion: user.PasswordVersion,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrEmailExists
		}
		return err
	}
	user.ID = row.ID
	user.CreatedAt = row.CreatedAt
	return nil
}

// GetByID 通过 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, translateUserErr(err)
	}
	return row.toModel(), nil
}

// GetByEmail 通过邮箱获取用户
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		return nil, translateUserErr(err)
	}
	return row.toModel(), nil
}

// UpdatePassword 更新密码并递增版本，返回新版本号
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) (int, error) {
	var version int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&userRow{}).Where("id = ?", id).Updates(map[string]any{
			"password_hash":    passwordHash,
			"password_version": gorm.Expr("password_version + 1"),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrUserNotFound
		}
		var row userRow
		if err := tx.Select("password_version").First(&row, id).Error; err != nil {
			return err
		}
		version = row.PasswordVersion
		return nil
	})
	return version, err
}

// GetFriends 获取好友列表
func (r *UserRepository) GetFriends(ctx context.Context, userID int64) ([]*model.User, error) {
	var rows []userRow
	err := r.db.WithContext(ctx).
		Joins("JOIN friendships f ON f.friend_id = users.id").
		Where("f.user_id = ?", userID).
		Order("users.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	users := make([]*model.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toModel())
	}
	return users, nil
}

// GetFriendIDs 获取好友 ID 列表
func (r *UserRepository) GetFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&friendshipRow{}).
		Where("user_id = ?", userID).
		Order("friend_id ASC").
		Pluck("friend_id", &ids).Error
	return ids, err
}

// AddFriend 建立双向好友关系
func (r *UserRepository) AddFriend(ctx context.Context, userID, friendID int64) error {
	if userID == friendID {
		return repository.ErrInvalidFriend
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRow{}).Where("id = ?", friendID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repository.ErrUserNotFound
		}

		rows := []friendshipRow{
			{UserID: userID, FriendID: friendID},
			{UserID: friendID, FriendID: userID},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}

func translateUserErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrUserNotFound
	}
	return err
}
