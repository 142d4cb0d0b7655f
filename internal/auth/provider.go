package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRefreshTokenInvalid 刷新令牌本身无效或已过期，只有这种刷新失败会登出用户
	ErrRefreshTokenInvalid = errors.New("refresh token invalid or expired")
	// ErrNotAuthenticated 当前没有登录
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Provider 外部身份提供方客户端
type Provider interface {
	// Init 恢复已有登录（check-sso），返回是否已登录
	Init(ctx context.Context) (bool, error)
	// Login 发起交互式登录，完成后返回
	Login(ctx context.Context, redirect string) error
	// Register 发起交互式注册，完成后返回
	Register(ctx context.Context, redirect string) error
	// Logout 注销并丢弃令牌
	Logout(ctx context.Context, redirect string) error
	// UpdateToken 在令牌剩余有效期小于 minValidity 时刷新，minValidity 为负数时强制刷新；
	// 返回是否签发了新令牌
	UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error)
	Token() (string, bool)
	TokenExpiration() (time.Time, bool)
	HasRealmRole(role string) bool
	Subject() string
	// Username 展示用的用户名，没有时返回邮箱
	Username() string
}
