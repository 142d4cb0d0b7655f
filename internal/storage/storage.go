package storage

import (
	"errors"
)

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable 存储后端不可用（未配置、无法连接或不可写）
	ErrUnavailable = errors.New("storage unavailable")
)

// 客户端状态使用的固定键。
//
// 会话作用域的键随进程结束而消失，持久作用域的键在重启后保留。
const (
	KeySessionID       = "tempmail.session_id"       // 会话作用域
	KeyAlias           = "tempmail.alias"            // 会话作用域
	KeyPreferredDomain = "tempmail.preferred_domain" // 持久作用域
	KeyTheme           = "tempmail.theme"            // 持久作用域，核心逻辑不使用
	KeyOIDCRefresh     = "tempmail.oidc.refresh"     // 持久作用域，身份提供方客户端使用
)

// KV 定义键值存储操作。
//
// 每次写入都是整体替换，不提供跨键事务。
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Health() error
}

// Degraded 判断错误是否只表示存储不可用。
//
// 调用方据此退化为非持久的内存行为，而不是把错误抛给用户。
func Degraded(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
