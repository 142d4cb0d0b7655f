package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
		assert.Equal(t, 15*time.Second, cfg.API.Timeout)
		assert.Equal(t, "X-Mailbox-Password", cfg.API.MailboxHeader)
		assert.False(t, cfg.Auth.Enabled)
		assert.Equal(t, 30*time.Second, cfg.Auth.RefreshInterval)
		assert.Equal(t, 60*time.Second, cfg.Auth.MinValidity)
		assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Auth.Scopes)
		assert.Equal(t, 5*time.Second, cfg.Inbox.PollInterval)
		assert.Equal(t, "temp.mail", cfg.Inbox.FallbackDomain)
		assert.Equal(t, StorageDriverFile, cfg.Storage.Driver)
		assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr())
		assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		t.Setenv("TEMPMAIL_API_BASE_URL", "https://mail.example.com/api/")
		t.Setenv("TEMPMAIL_AUTH_ENABLED", "true")
		t.Setenv("TEMPMAIL_AUTH_ISSUER", "https://id.example.com/realms/tempmail/")
		t.Setenv("TEMPMAIL_INBOX_POLL_INTERVAL", "2s")
		t.Setenv("TEMPMAIL_INBOX_FALLBACK_DOMAIN", "Example.COM")
		t.Setenv("TEMPMAIL_STORAGE_DRIVER", "redis")
		t.Setenv("TEMPMAIL_SERVER_ALLOWED_ORIGINS", "http://a.test, http://b.test")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "https://mail.example.com/api", cfg.API.BaseURL)
		assert.True(t, cfg.Auth.Enabled)
		assert.Equal(t, "https://id.example.com/realms/tempmail", cfg.Auth.Issuer)
		assert.Equal(t, 2*time.Second, cfg.Inbox.PollInterval)
		assert.Equal(t, "example.com", cfg.Inbox.FallbackDomain)
		assert.Equal(t, StorageDriverRedis, cfg.Storage.Driver)
		assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	})

	t.Run("无效的轮询间隔", func(t *testing.T) {
		t.Setenv("TEMPMAIL_INBOX_POLL_INTERVAL", "soon")

		_, err := Load()

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "inbox.poll_interval")
	})

	t.Run("启用登录但缺少 issuer", func(t *testing.T) {
		t.Setenv("TEMPMAIL_AUTH_ENABLED", "true")
		t.Setenv("TEMPMAIL_AUTH_ISSUER", "")

		_, err := Load()

		assert.Error(t, err)
	})

	t.Run("未知存储驱动", func(t *testing.T) {
		t.Setenv("TEMPMAIL_STORAGE_DRIVER", "floppy")

		_, err := Load()

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "floppy")
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a, ,b ,"))
	assert.Empty(t, parseList(""))
}
