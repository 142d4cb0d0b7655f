package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 支持的存储驱动
const (
	StorageDriverFile   = "file"
	StorageDriverRedis  = "redis"
	StorageDriverMemory = "memory"
)

// APIConfig 定义远端邮箱 API 的访问参数
type APIConfig struct {
	BaseURL       string        // API 根地址，例如 http://localhost:8080/api
	Timeout       time.Duration // 单次请求超时
	RateLimit     float64       // 每秒最多发出的请求数，<=0 表示不限速
	RateBurst     int           // 令牌桶容量
	MailboxHeader string        // 携带邮箱密码（会话标识）的请求头
}

// AuthConfig 定义 OIDC 身份提供方与令牌刷新参数
type AuthConfig struct {
	Enabled         bool          // 是否启用账号登录
	Issuer          string        // realm 地址，例如 http://localhost:8081/realms/tempmail
	ClientID        string        // 公共客户端 ID
	RedirectURL     string        // 授权回调地址（本地服务器）
	Scopes          []string      // 请求的 scope
	RefreshInterval time.Duration // 后台检查间隔，默认 30 秒
	MinValidity     time.Duration // 剩余有效期低于该值时刷新，默认 60 秒
}

// InboxConfig 定义收件箱轮询参数
type InboxConfig struct {
	PollInterval   time.Duration // 轮询间隔，默认 5 秒
	FallbackDomain string        // 无偏好或偏好无效时使用的域名
}

// StorageConfig 定义客户端状态的持久化方式
type StorageConfig struct {
	Driver        string // file / redis / memory
	Path          string // file 驱动的 JSON 文件路径
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // redis 键前缀
}

// ServerConfig 定义本地 HTTP 服务（回调、收件箱视图、事件流）
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// NotifyConfig 定义通知输出
type NotifyConfig struct {
	Desktop bool // 是否通过 dbus 弹出桌面通知
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // 开发模式：控制台编码、错误堆栈
	File        string // 日志文件，留空只输出到 stderr
	MaxSize     int    // MB
	MaxBackups  int
	MaxAge      int // days
	Compress    bool
}

// Config 客户端配置根结构
type Config struct {
	API     APIConfig
	Auth    AuthConfig
	Inbox   InboxConfig
	Storage StorageConfig
	Server  ServerConfig
	Notify  NotifyConfig
	Log     LogConfig
}

// Addr 返回本地服务监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load 从环境变量和 .env 文件加载配置
//
// 优先级（从高到低）：系统环境变量、.env 文件、默认值。
// 环境变量前缀 TEMPMAIL_，例如 TEMPMAIL_API_BASE_URL、TEMPMAIL_AUTH_ISSUER。
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("tempmail")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080/api")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.rate_limit", 10)
	v.SetDefault("api.rate_burst", 20)
	v.SetDefault("api.mailbox_header", "X-Mailbox-Password")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.client_id", "tempmail-web")
	v.SetDefault("auth.redirect_url", "http://127.0.0.1:8765/auth/callback")
	v.SetDefault("auth.scopes", "openid,profile,email")
	v.SetDefault("auth.refresh_interval", "30s")
	v.SetDefault("auth.min_validity", "60s")

	v.SetDefault("inbox.poll_interval", "5s")
	v.SetDefault("inbox.fallback_domain", "temp.mail")

	v.SetDefault("storage.driver", StorageDriverFile)
	v.SetDefault("storage.path", "./data/client-state.json")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "tempmail:client:")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.allowed_origins", "*")

	v.SetDefault("notify.desktop", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", true)
}

func fromViper(v *viper.Viper) (*Config, error) {
	apiTimeout, err := time.ParseDuration(v.GetString("api.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid api.timeout: %w", err)
	}
	refreshInterval, err := time.ParseDuration(v.GetString("auth.refresh_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.refresh_interval: %w", err)
	}
	minValidity, err := time.ParseDuration(v.GetString("auth.min_validity"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.min_validity: %w", err)
	}
	pollInterval, err := time.ParseDuration(v.GetString("inbox.poll_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid inbox.poll_interval: %w", err)
	}

	origins := parseList(v.GetString("server.allowed_origins"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:       strings.TrimRight(strings.TrimSpace(v.GetString("api.base_url")), "/"),
			Timeout:       apiTimeout,
			RateLimit:     v.GetFloat64("api.rate_limit"),
			RateBurst:     v.GetInt("api.rate_burst"),
			MailboxHeader: v.GetString("api.mailbox_header"),
		},
		Auth: AuthConfig{
			Enabled:         v.GetBool("auth.enabled"),
			Issuer:          strings.TrimRight(v.GetString("auth.issuer"), "/"),
			ClientID:        v.GetString("auth.client_id"),
			RedirectURL:     v.GetString("auth.redirect_url"),
			Scopes:          parseList(v.GetString("auth.scopes")),
			RefreshInterval: refreshInterval,
			MinValidity:     minValidity,
		},
		Inbox: InboxConfig{
			PollInterval:   pollInterval,
			FallbackDomain: strings.ToLower(strings.TrimSpace(v.GetString("inbox.fallback_domain"))),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(v.GetString("storage.driver")),
			Path:          v.GetString("storage.path"),
			RedisAddr:     v.GetString("storage.redis_addr"),
			RedisPassword: v.GetString("storage.redis_password"),
			RedisDB:       v.GetInt("storage.redis_db"),
			RedisPrefix:   v.GetString("storage.redis_prefix"),
		},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			AllowedOrigins: origins,
		},
		Notify: NotifyConfig{
			Desktop: v.GetBool("notify.desktop"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSize:     v.GetInt("log.max_size"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAge:      v.GetInt("log.max_age"),
			Compress:    v.GetBool("log.compress"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置组合是否可用
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Inbox.PollInterval <= 0 {
		return fmt.Errorf("inbox.poll_interval must be positive")
	}
	if c.Inbox.FallbackDomain == "" {
		return fmt.Errorf("inbox.fallback_domain must not be empty")
	}
	if c.Auth.RefreshInterval <= 0 {
		return fmt.Errorf("auth.refresh_interval must be positive")
	}
	if c.Auth.MinValidity < 0 {
		return fmt.Errorf("auth.min_validity must not be negative")
	}
	if c.Auth.Enabled && (c.Auth.Issuer == "" || c.Auth.ClientID == "") {
		return fmt.Errorf("auth.issuer and auth.client_id are required when auth is enabled")
	}
	switch c.Storage.Driver {
	case StorageDriverFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file driver")
		}
	case StorageDriverRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis driver")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}

// parseList 将逗号分隔的字符串解析为去空白的切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载当前目录或父目录的 .env，文件不存在时静默忽略
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
