package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/auth"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/store"
)

// handlePattern 是注册和登录共用的用户名规则。
var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

func ValidHandle(name string) bool { return handlePattern.MatchString(name) }

// UserService 封装注册、登录和令牌签发，REST 接口和 websocket 认证共用。
type UserService struct {
	store      *store.Store
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewUserService(s *store.Store, jwtSecret string, accessTTL, refreshTTL time.Duration) *UserService {
	return &UserService{store: s, secret: jwtSecret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Register 创建新用户。用户名不合法返回 ErrInvalidUsername，已存在返回 ErrUsernameTaken。
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if !ValidHandle(username) {
		return nil, ErrInvalidUsername
	}
	if password == "" {
		return nil, ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.store.CreateUser(ctx, username, hash)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrUsernameTaken
	}
	return user, err
}

// Login 校验用户名密码。用户不存在与密码错误返回同一个错误。
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, error) {
	if !ValidHandle(username) {
		return nil, ErrInvalidUsername
	}
	user, err := s.store.UserByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Authenticate 按 action（register 或 login）分派，供 websocket 握手使用。
func (s *UserService) Authenticate(ctx context.Context, action, username, password string) (*models.User, error) {
	switch action {
	case "register":
		return s.Register(ctx, username, password)
	case "login":
		return s.Login(ctx, username, password)
	}
	return nil, fmt.Errorf("unknown auth action %q", action)
}

func (s *UserService) AccessToken(u *models.User) (string, error) {
	return auth.GenerateAccessToken(u, s.secret, s.accessTTL)
}

func (s *UserService) User(ctx context.Context, id uint) (*models.User, error) {
	return s.store.UserByID(ctx, id)
}

// TokenPair 是 REST 登录和刷新返回的令牌对。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IssueTokens 签发访问令牌并保存新的 refresh token。
func (s *UserService) IssueTokens(ctx context.Context, u *models.User) (*TokenPair, error) {
	at, err := s.AccessToken(u)
	if err != nil {
		return nil, err
	}
	rt, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRefreshToken(ctx, u.ID, rt, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: at, RefreshToken: rt}, nil
}

// RefreshTokens 吊销旧 refresh token 并签发新令牌对（旋转刷新）。
func (s *UserService) RefreshTokens(ctx context.Context, oldRT string) (*TokenPair, error) {
	newRT, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	userID, err := s.store.RotateRefreshToken(ctx, oldRT, newRT, time.Now().Add(s.refreshTTL))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	at, err := s.AccessToken(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: at, RefreshToken: newRT}, nil
}
