package oidc

import (
	"errors"

	"tempmail/client/internal/storage"
)

// ErrNoCachedToken 没有已保存的刷新令牌
var ErrNoCachedToken = errors.New("no cached refresh token")

// TokenCache 保存刷新令牌，用于重启后恢复登录
type TokenCache interface {
	Load() (string, error)
	Save(refreshToken string) error
	Clear() error
}

// KVTokenCache 把刷新令牌保存在持久键值存储中
type KVTokenCache struct {
	kv storage.KV
}

// NewKVTokenCache 创建基于键值存储的令牌缓存
func NewKVTokenCache(kv storage.KV) *KVTokenCache {
	return &KVTokenCache{kv: kv}
}

// Load 读取刷新令牌
func (c *KVTokenCache) Load() (string, error) {
	value, err := c.kv.Get(storage.KeyOIDCRefresh)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && value == "") {
		return "", ErrNoCachedToken
	}
	return value, err
}

// Save 保存刷新令牌
func (c *KVTokenCache) Save(refreshToken string) error {
	return c.kv.Set(storage.KeyOIDCRefresh, refreshToken)
}

// Clear 删除刷新令牌
func (c *KVTokenCache) Clear() error {
	return c.kv.Delete(storage.KeyOIDCRefresh)
}
