package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/client/internal/alias"
	"tempmail/client/internal/api"
	"tempmail/client/internal/api/apitest"
	"tempmail/client/internal/auth"
	"tempmail/client/internal/domain"
	"tempmail/client/internal/health"
	"tempmail/client/internal/inbox"
	"tempmail/client/internal/monitoring"
	"tempmail/client/internal/notify"
	"tempmail/client/internal/preference"
	"tempmail/client/internal/service"
	"tempmail/client/internal/session"
	"tempmail/client/internal/storage/memory"
)

type fakeAuth struct {
	mu            sync.Mutex
	authenticated bool
	roles         []string
	logins        int
	release       chan struct{}
}

func newFakeAuth(authenticated bool, roles ...string) *fakeAuth {
	return &fakeAuth{authenticated: authenticated, roles: roles, release: make(chan struct{})}
}

func (f *fakeAuth) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *fakeAuth) HasRole(role string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (f *fakeAuth) Status() auth.Status {
	if f.IsAuthenticated() {
		return auth.StatusAuthenticated
	}
	return auth.StatusUnauthenticated
}

func (f *fakeAuth) Subject() string { return "user-1" }

func (f *fakeAuth) Username() string { return "alice" }

func (f *fakeAuth) TokenExpiration() (time.Time, bool) {
	return time.Now().Add(time.Hour), f.IsAuthenticated()
}

func (f *fakeAuth) Token() (string, bool) {
	return "valid-token", f.IsAuthenticated()
}

func (f *fakeAuth) RefreshToken(context.Context) (bool, error) { return false, nil }

func (f *fakeAuth) Login(ctx context.Context, _ string) error {
	f.mu.Lock()
	f.logins++
	f.mu.Unlock()
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAuth) Register(ctx context.Context, redirect string) error {
	return f.Login(ctx, redirect)
}

func (f *fakeAuth) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authenticated = false
	return errors.New("idp unreachable")
}

func (f *fakeAuth) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

type fakeCallback struct {
	redirect string
	err      error
	got      []string
}

func (f *fakeCallback) HandleCallback(_ context.Context, state, code, errParam string) (string, error) {
	f.got = []string{state, code, errParam}
	return f.redirect, f.err
}

type testEnv struct {
	router  *gin.Engine
	server  *apitest.Server
	mailbox *service.MailboxService
	history *notify.History
}

func newTestEnv(t *testing.T, configure func(*RouterDependencies)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	server := apitest.NewServer()
	t.Cleanup(server.Close)

	kv := memory.NewStore()
	history := notify.NewHistory(10)
	client := api.New(api.WithBaseURL(server.URL), api.WithCredentials(session.NewIdentity(kv, nil)))
	mailbox := service.NewMailboxService(
		client,
		alias.NewRegistry(kv, client, "temp.mail", nil),
		preference.NewStore(memory.NewStore(), "temp.mail", nil),
		inbox.New(client, inbox.Options{Interval: time.Hour, Sink: history}),
		history,
		nil,
	)
	t.Cleanup(mailbox.Stop)

	deps := RouterDependencies{
		Mailbox:       mailbox,
		Notifications: history,
		Metrics:       monitoring.NewMetrics(),
		Health:        health.NewHealthChecker(kv, client, nil),
	}
	if configure != nil {
		configure(&deps)
	}
	return &testEnv{router: NewRouter(deps), server: server, mailbox: mailbox, history: history}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestStatus(t *testing.T) {
	t.Run("未配置登录", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(http.MethodGet, "/api/status", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var status statusResponse
		decode(t, rec, &status)
		assert.Equal(t, "disabled", status.Auth)
		assert.Nil(t, status.Alias)
		assert.False(t, status.Polling)
		assert.Equal(t, "OK", status.Health["storage"])
	})

	t.Run("已登录并有别名", func(t *testing.T) {
		fake := newFakeAuth(true, auth.RoleMember)
		env := newTestEnv(t, func(d *RouterDependencies) { d.Auth = fake })
		_, err := env.mailbox.Generate(context.Background(), "")
		require.NoError(t, err)

		rec := env.do(http.MethodGet, "/api/status", "")

		var status statusResponse
		decode(t, rec, &status)
		assert.Equal(t, "authenticated", status.Auth)
		assert.Equal(t, "user-1", status.Subject)
		assert.Equal(t, "alice", status.Username)
		assert.NotNil(t, status.TokenExpiresAt)
		require.NotNil(t, status.Alias)
		assert.Equal(t, "box1@example.com", status.Alias.Alias)
		assert.True(t, status.Polling)
	})
}

func TestAliasAndInbox(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("没有别名时刷新返回冲突", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/inbox/refresh", "")

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, MsgNoAlias, decode(t, rec, nil).Msg)
	})

	t.Run("无效域名", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/alias", `{"domain":"bad domain"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var info service.AliasInfo
	t.Run("生成别名", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/alias", `{"domain":"temp.mail"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		decode(t, rec, &info)
		assert.Equal(t, "box1@temp.mail", info.Alias)
		assert.NotNil(t, info.ExpiresAt)
	})

	t.Run("刷新后返回新邮件", func(t *testing.T) {
		env.server.Deliver(info.Alias, domain.MailSummary{ID: "m1", Subject: "welcome"})

		rec := env.do(http.MethodPost, "/api/inbox/refresh", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var view inboxResponse
		decode(t, rec, &view)
		assert.Equal(t, info.Alias, view.Alias)
		require.Equal(t, 1, view.Count)
		assert.Equal(t, "welcome", view.Mails[0].Subject)
	})

	t.Run("删除邮件", func(t *testing.T) {
		rec := env.do(http.MethodDelete, "/api/inbox/mail/m1", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "mail deleted", decode(t, rec, nil).Msg)

		var view inboxResponse
		decode(t, env.do(http.MethodGet, "/api/inbox", ""), &view)
		assert.Empty(t, view.Mails)
		assert.NotNil(t, view.Mails)
	})

	t.Run("删除不存在的邮件", func(t *testing.T) {
		rec := env.do(http.MethodDelete, "/api/inbox/mail/m1", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("丢弃别名", func(t *testing.T) {
		rec := env.do(http.MethodDelete, "/api/alias", "")

		require.Equal(t, http.StatusOK, rec.Code)
		_, ok := env.mailbox.Current()
		assert.False(t, ok)
		assert.Equal(t, http.StatusConflict, env.do(http.MethodDelete, "/api/inbox/mail/m1", "").Code)
	})

	t.Run("通知历史", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/notifications", "")

		var items []notify.Notification
		decode(t, rec, &items)
		require.NotEmpty(t, items)
		assert.Equal(t, notify.KindSuccess, items[0].Kind)
	})
}

func TestDownloadAttachment(t *testing.T) {
	env := newTestEnv(t, nil)
	info, err := env.mailbox.Generate(context.Background(), "")
	require.NoError(t, err)
	env.server.Deliver(info.Alias, domain.MailSummary{ID: "m1", Attachments: []string{"notes.txt", "setup.exe"}})
	env.server.AddAttachment(info.Alias, "m1", "notes.txt", "text/plain", []byte("hello"))
	env.server.AddAttachment(info.Alias, "m1", "setup.exe", "application/x-msdownload", []byte("MZ\x90\x00"))

	t.Run("文本附件内联展示", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/inbox/mail/m1/attachments/notes.txt", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
		assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
		assert.Equal(t, `inline; filename="notes.txt"`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("可执行文件只能下载", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/inbox/mail/m1/attachments/setup.exe", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="setup.exe"`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("附件不存在", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/inbox/mail/m1/attachments/missing.pdf", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, MsgAttachmentNotFound, decode(t, rec, nil).Msg)
	})
}

func TestDomainPreference(t *testing.T) {
	env := newTestEnv(t, nil)
	preferred := func(rec *httptest.ResponseRecorder) string {
		var out struct {
			Domain string `json:"domain"`
		}
		decode(t, rec, &out)
		return out.Domain
	}

	t.Run("默认使用服务端第一个域名", func(t *testing.T) {
		assert.Equal(t, "example.com", preferred(env.do(http.MethodGet, "/api/preferences/domain", "")))
	})

	t.Run("保存偏好域名", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/api/preferences/domain", `{"domain":"temp.mail"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "temp.mail", preferred(rec))
	})

	t.Run("参数错误", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/preferences/domain", `{}`).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/preferences/domain", `{"domain":"not valid"}`).Code)
	})

	t.Run("域名列表", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/domains", "")

		var out struct {
			Domains   []string `json:"domains"`
			Preferred string   `json:"preferred"`
		}
		decode(t, rec, &out)
		assert.Equal(t, []string{"example.com", "temp.mail"}, out.Domains)
		assert.Equal(t, "temp.mail", out.Preferred)
	})

	t.Run("清除偏好域名", func(t *testing.T) {
		rec := env.do(http.MethodDelete, "/api/preferences/domain", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "example.com", preferred(rec))
	})
}

func TestInteractiveAuth(t *testing.T) {
	t.Run("未配置登录", func(t *testing.T) {
		env := newTestEnv(t, nil)

		assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodPost, "/api/auth/login", "").Code)
		assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/auth/callback?state=s&code=c", "").Code)
	})

	t.Run("与 API 客户端的登录跳转共用守卫", func(t *testing.T) {
		fake := newFakeAuth(false)
		shared := auth.NewInteractive(context.Background(), time.Minute, nil)
		release := make(chan struct{})
		require.True(t, shared.Start("login", func(context.Context) error {
			<-release
			return nil
		}))
		env := newTestEnv(t, func(d *RouterDependencies) {
			d.Auth = fake
			d.Interactive = shared
		})

		assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/auth/login", "").Code)
		assert.Equal(t, 0, fake.Logins())

		close(release)
		assert.Eventually(t, func() bool {
			return env.do(http.MethodPost, "/api/auth/login", "").Code == http.StatusAccepted
		}, time.Second, 5*time.Millisecond)
		close(fake.release)
	})

	t.Run("后台登录且同时只有一个", func(t *testing.T) {
		fake := newFakeAuth(false)
		env := newTestEnv(t, func(d *RouterDependencies) { d.Auth = fake })

		rec := env.do(http.MethodPost, "/api/auth/login", `{"redirect":"/api/status"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Eventually(t, func() bool { return fake.Logins() == 1 }, time.Second, 5*time.Millisecond)

		assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/auth/register", "").Code)

		close(fake.release)
		assert.Eventually(t, func() bool {
			return env.do(http.MethodPost, "/api/auth/register", "").Code == http.StatusAccepted
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("注销时身份提供方出错仍然返回成功", func(t *testing.T) {
		fake := newFakeAuth(true)
		env := newTestEnv(t, func(d *RouterDependencies) { d.Auth = fake })

		rec := env.do(http.MethodPost, "/api/auth/logout", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, fake.IsAuthenticated())
	})
}

func TestAuthCallback(t *testing.T) {
	t.Run("成功后跳转到站内地址", func(t *testing.T) {
		cb := &fakeCallback{redirect: "/api/status"}
		env := newTestEnv(t, func(d *RouterDependencies) { d.Callback = cb })

		rec := env.do(http.MethodGet, "/auth/callback?state=s1&code=c1", "")

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/api/status", rec.Header().Get("Location"))
		assert.Equal(t, []string{"s1", "c1", ""}, cb.got)
	})

	t.Run("不跳转到外部地址", func(t *testing.T) {
		cb := &fakeCallback{redirect: "//evil.example"}
		env := newTestEnv(t, func(d *RouterDependencies) { d.Callback = cb })

		rec := env.do(http.MethodGet, "/auth/callback?state=s1&code=c1", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("授权被拒绝", func(t *testing.T) {
		cb := &fakeCallback{err: errors.New("authorization denied")}
		env := newTestEnv(t, func(d *RouterDependencies) { d.Callback = cb })

		rec := env.do(http.MethodGet, "/auth/callback?state=s1&error=access_denied&error_description=nope", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "access_denied: nope", cb.got[2])
	})
}

func TestAccountRoutes(t *testing.T) {
	newEnv := func(t *testing.T, fake *fakeAuth) *testEnv {
		t.Helper()
		env := newTestEnv(t, nil)
		client := api.New(api.WithBaseURL(env.server.URL), api.WithAuthenticator(fake))
		env.router = NewRouter(RouterDependencies{Mailbox: env.mailbox, Auth: fake, Account: client})
		return env
	}

	t.Run("未登录时触发登录", func(t *testing.T) {
		fake := newFakeAuth(false)
		env := newEnv(t, fake)

		rec := env.do(http.MethodGet, "/api/account/domains", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Eventually(t, func() bool { return fake.Logins() == 1 }, time.Second, 5*time.Millisecond)
		close(fake.release)
	})

	t.Run("member 可以查看域名", func(t *testing.T) {
		env := newEnv(t, newFakeAuth(true, auth.RoleMember))

		rec := env.do(http.MethodGet, "/api/account/domains", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Items []domain.UserDomain `json:"items"`
			Count int                 `json:"count"`
		}
		decode(t, rec, &out)
		assert.Equal(t, 1, out.Count)
		assert.Equal(t, "mine.example", out.Items[0].Domain)
	})

	t.Run("团队接口需要 owner", func(t *testing.T) {
		env := newEnv(t, newFakeAuth(true, auth.RoleMember))

		assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/account/team/members", "").Code)
	})

	t.Run("owner 可以查看团队", func(t *testing.T) {
		env := newEnv(t, newFakeAuth(true, auth.RoleOwner))

		assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/account/team/members", "").Code)
		assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/account/subscription", "").Code)
	})

	t.Run("添加验证并删除自定义域名", func(t *testing.T) {
		env := newEnv(t, newFakeAuth(true, auth.RoleMember))

		rec := env.do(http.MethodPost, "/api/account/domains", `{"domain":" New.Example ","mode":"exclusive"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var added domain.UserDomain
		decode(t, rec, &added)
		assert.Equal(t, "new.example", added.Domain)
		assert.Equal(t, domain.DomainModeExclusive, added.Mode)
		assert.Equal(t, domain.DomainStatusPending, added.Status)
		assert.NotEmpty(t, added.VerifyToken)

		rec = env.do(http.MethodPost, "/api/account/domains/"+added.ID+"/verify", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var verified domain.UserDomain
		decode(t, rec, &verified)
		assert.True(t, verified.IsVerified())

		rec = env.do(http.MethodDelete, "/api/account/domains/"+added.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "domain deleted", decode(t, rec, nil).Msg)

		var list struct {
			Count int `json:"count"`
		}
		decode(t, env.do(http.MethodGet, "/api/account/domains", ""), &list)
		assert.Equal(t, 1, list.Count)

		assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/account/domains/"+added.ID, "").Code)
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/account/domains/missing/verify", "").Code)
	})

	t.Run("添加域名时校验参数", func(t *testing.T) {
		env := newEnv(t, newFakeAuth(true, auth.RoleMember))

		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/account/domains", `{}`).Code)
		rec := env.do(http.MethodPost, "/api/account/domains", `{"domain":"bad domain"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid domain format", decode(t, rec, nil).Msg)
		rec = env.do(http.MethodPost, "/api/account/domains", `{"domain":"ok.example","mode":"private"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MsgInvalidDomainMode, decode(t, rec, nil).Msg)
		assert.Equal(t, 0, env.server.Requests("POST /user/domains"))
	})

	t.Run("创建和删除 API Key", func(t *testing.T) {
		env := newEnv(t, newFakeAuth(true, auth.RoleMember))

		rec := env.do(http.MethodPost, "/api/account/api-keys", `{"name":"deploy"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var key domain.APIKey
		decode(t, rec, &key)
		assert.Equal(t, "deploy", key.Name)
		assert.NotEmpty(t, key.Key)

		var list struct {
			Items []domain.APIKey `json:"items"`
		}
		decode(t, env.do(http.MethodGet, "/api/account/api-keys", ""), &list)
		require.Len(t, list.Items, 2)
		assert.Empty(t, list.Items[1].Key)

		rec = env.do(http.MethodDelete, "/api/account/api-keys/"+key.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "api key deleted", decode(t, rec, nil).Msg)

		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/account/api-keys", `{"name":"  "}`).Code)
		past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
		rec = env.do(http.MethodPost, "/api/account/api-keys", `{"name":"old","expiresAt":"`+past+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MsgExpiryInPast, decode(t, rec, nil).Msg)
	})

	t.Run("邀请和移除成员需要 owner", func(t *testing.T) {
		member := newEnv(t, newFakeAuth(true, auth.RoleMember))
		assert.Equal(t, http.StatusForbidden, member.do(http.MethodPost, "/api/account/team/members", `{"email":"a@example.com"}`).Code)
		assert.Equal(t, http.StatusForbidden, member.do(http.MethodDelete, "/api/account/team/members/u1", "").Code)

		env := newEnv(t, newFakeAuth(true, auth.RoleOwner))

		rec := env.do(http.MethodPost, "/api/account/team/members", `{"email":"New@Example.com"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var invited domain.TeamMember
		decode(t, rec, &invited)
		assert.Equal(t, "new@example.com", invited.Email)
		assert.Equal(t, domain.TeamRoleMember, invited.Role)
		assert.True(t, invited.Pending)

		rec = env.do(http.MethodDelete, "/api/account/team/members/"+invited.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "member removed", decode(t, rec, nil).Msg)
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/account/team/members/"+invited.ID, "").Code)
	})

	t.Run("邀请时校验邮箱和角色", func(t *testing.T) {
		env := newEnv(t, newFakeAuth(true, auth.RoleOwner))

		rec := env.do(http.MethodPost, "/api/account/team/members", `{"email":"not-an-email"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid email format", decode(t, rec, nil).Msg)
		rec = env.do(http.MethodPost, "/api/account/team/members", `{"email":"a@example.com","role":"admin"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MsgInvalidTeamRole, decode(t, rec, nil).Msg)
		assert.Equal(t, 0, env.server.Requests("POST /team/members"))
	})

	t.Run("未登录时不能修改", func(t *testing.T) {
		fake := newFakeAuth(false)
		env := newEnv(t, fake)

		assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/account/api-keys", `{"name":"x"}`).Code)
		assert.Equal(t, 0, env.server.Requests("POST /api-keys"))
		assert.Eventually(t, func() bool { return fake.Logins() == 1 }, time.Second, 5*time.Millisecond)
		close(fake.release)
	})
}

func TestOperationalRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", "").Code)

	env.do(http.MethodGet, "/api/status", "")
	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tempmail_client_")

	rec = env.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decode(t, rec, nil).Msg)
}
