package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"sudooom.im.chat/internal/auth"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/repository"
	appErrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/jwt"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignupRequest 注册请求，username 缺省为邮箱 @ 前的部分
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Username string `json:"username" binding:"max=50"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=72"`
}

// AuthResponse 登录/注册响应
type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"jwt"`
}

// AuthService 认证服务
type AuthService struct {
	users      UserStore
	jwtService *jwt.Service
	runner     TaskRunner
	sessions   SessionRevoker
	hashCost   int
	logger     *slog.Logger
}

// NewAuthService 创建认证服务，sessions 可为 nil
func NewAuthService(users UserStore, jwtService *jwt.Service, runner TaskRunner, sessions SessionRevoker) *AuthService {
	return &AuthService{
		users:      users,
		jwtService: jwtService,
		runner:     runner,
		sessions:   sessions,
		hashCost:   bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
}

// Login 邮箱密码登录
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, translateStoreErr(err)
	}

	if err := s.comparePassword(ctx, user.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	return s.issue(user)
}

// Signup 注册并签发 Token
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	hash, err := s.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	username := req.Username
	if username == "" {
		username, _, _ = strings.Cut(req.Email, "@")
	}

	user := &model.User{
		Email:           req.Email,
		Username:        username,
		PasswordHash:    hash,
		PasswordVersion: 1,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, translateStoreErr(err)
	}

	s.logger.Info("User signed up", "user_id", user.ID)
	return s.issue(user)
}

// ChangePassword 修改密码，密码版本递增使所有旧 Token 失效，返回新 Token
func (s *AuthService) ChangePassword(ctx context.Context, req *ChangePasswordRequest) (*AuthResponse, error) {
	current, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	// 上下文中的用户可能来自缓存，不含密码哈希
	user, err := s.users.GetByID(ctx, current.ID)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	if err := s.comparePassword(ctx, user.PasswordHash, req.OldPassword); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(ctx, req.NewPassword)
	if err != nil {
		return nil, err
	}

	// 先推进缓存中的版本，缓存不可写时不改密码
	next := *user
	next.PasswordHash = ""
	next.PasswordVersion = user.PasswordVersion + 1
	if err := s.revoke(ctx, &next); err != nil {
		return nil, err
	}

	version, err := s.users.UpdatePassword(ctx, user.ID, hash)
	if err != nil {
		// 缓存已领先于存储，淘汰后回到存储中的版本
		if s.sessions != nil {
			s.sessions.Evict(ctx, user.ID)
		}
		return nil, translateStoreErr(err)
	}
	if version != next.PasswordVersion {
		// 并发改密，以存储返回的版本为准
		next.PasswordVersion = version
		if err := s.revoke(ctx, &next); err != nil {
			return nil, err
		}
	}
	user.PasswordHash = hash
	user.PasswordVersion = version

	s.logger.Info("Password changed", "user_id", user.ID, "version", version)
	return s.issue(user)
}

// AddFriend 与指定用户建立双向好友关系
func (s *AuthService) AddFriend(ctx context.Context, friendID int64) (*model.User, error) {
	user, err := auth.GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	if friendID == user.ID {
		return nil, appErrors.ErrInvalidParams.WithMessage("不能添加自己为好友")
	}

	if err := s.users.AddFriend(ctx, user.ID, friendID); err != nil {
		return nil, translateStoreErr(err)
	}

	friend, err := s.users.GetByID(ctx, friendID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return friend, nil
}

func (s *AuthService) revoke(ctx context.Context, user *model.User) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, user); err != nil {
		s.logger.Error("Failed to advance session version", "user_id", user.ID, "version", user.PasswordVersion, "error", err)
		return appErrors.ErrStorage.Wrap(err)
	}
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResponse, error) {
	token, err := s.jwtService.GenerateToken(user.ID, user.Email, user.PasswordVersion)
	if err != nil {
		return nil, appErrors.ErrServerError.Wrap(err)
	}
	return &AuthResponse{User: user, Token: token}, nil
}

// hashPassword bcrypt 在 worker pool 上执行
func (s *AuthService) hashPassword(ctx context.Context, password string) (string, error) {
	var hash []byte
	err := s.runner.Run(ctx, func() error {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
		return err
	})
	if err != nil {
		return "", appErrors.ErrServerError.Wrap(err)
	}
	return string(hash), nil
}

// comparePassword 常量时间比较，不匹配返回 ErrInvalidCredentials
func (s *AuthService) comparePassword(ctx context.Context, hash, password string) error {
	err := s.runner.Run(ctx, func() error {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return appErrors.ErrInvalidCredentials
	}
	return appErrors.ErrServerError.Wrap(err)
}
