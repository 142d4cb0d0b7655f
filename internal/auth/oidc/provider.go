package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"tempmail/client/internal/auth"
)

// ErrUnknownState 回调的 state 不属于任何进行中的登录
var ErrUnknownState = errors.New("unknown or expired login state")

// Config 身份提供方参数
type Config struct {
	Issuer      string // realm 地址
	ClientID    string
	RedirectURL string
	Scopes      []string
}

// Browser 打开授权地址
type Browser func(authURL string) error

// Option 配置 Provider
type Option func(*Provider)

// WithBrowser 设置打开授权地址的方式
func WithBrowser(b Browser) Option {
	return func(p *Provider) {
		if b != nil {
			p.browser = b
		}
	}
}

// WithHTTPClient 设置访问令牌端点的 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		if hc != nil {
			p.httpClient = hc
		}
	}
}

// WithTokenCache 设置刷新令牌缓存
func WithTokenCache(cache TokenCache) Option {
	return func(p *Provider) {
		p.cache = cache
	}
}

// WithLogger 设置日志记录器
func WithLogger(log *zap.Logger) Option {
	return func(p *Provider) {
		if log != nil {
			p.log = log
		}
	}
}

type callbackResult struct {
	err error
}

type pendingLogin struct {
	verifier string
	redirect string
	done     chan callbackResult
}

// Provider Keycloak 兼容的 OIDC 客户端：授权码 + PKCE 登录，刷新令牌续期
type Provider struct {
	oauth       *oauth2.Config
	registerURL string
	logoutURL   string
	clientID    string
	browser     Browser
	cache       TokenCache
	httpClient  *http.Client
	log         *zap.Logger
	now         func() time.Time

	mu      sync.RWMutex
	token   *oauth2.Token
	claims  *Claims
	pending map[string]*pendingLogin
}

// NewProvider 创建 OIDC 客户端
func NewProvider(cfg Config, opts ...Option) *Provider {
	base := strings.TrimRight(cfg.Issuer, "/") + "/protocol/openid-connect"

	p := &Provider{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/auth",
				TokenURL:  base + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		registerURL: base + "/registrations",
		logoutURL:   base + "/logout",
		clientID:    cfg.ClientID,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		log:         zap.NewNop(),
		now:         time.Now,
		pending:     make(map[string]*pendingLogin),
	}
	p.browser = p.logBrowser

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) logBrowser(authURL string) error {
	p.log.Info("open this address in a browser to continue", zap.String("url", authURL))
	return nil
}

func (p *Provider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Init 从缓存恢复刷新令牌并立即续期
func (p *Provider) Init(ctx context.Context) (bool, error) {
	if p.cache == nil {
		return false, nil
	}
	refresh, err := p.cache.Load()
	if errors.Is(err, ErrNoCachedToken) {
		return false, nil
	}
	if err != nil {
		p.log.Debug("token cache unavailable", zap.Error(err))
		return false, nil
	}

	p.mu.Lock()
	p.token = &oauth2.Token{RefreshToken: refresh}
	p.mu.Unlock()

	if _, err := p.UpdateToken(ctx, -1); err != nil {
		if errors.Is(err, auth.ErrRefreshTokenInvalid) {
			return false, nil
		}
		// 缓存保留，下次 Init 重试
		p.mu.Lock()
		p.token = nil
		p.claims = nil
		p.mu.Unlock()
		return false, err
	}
	return true, nil
}

// Login 打开登录页并等待回调
func (p *Provider) Login(ctx context.Context, redirect string) error {
	return p.authorize(ctx, p.oauth.Endpoint.AuthURL, redirect)
}

// Register 打开注册页并等待回调
func (p *Provider) Register(ctx context.Context, redirect string) error {
	return p.authorize(ctx, p.registerURL, redirect)
}

func (p *Provider) authorize(ctx context.Context, endpoint, redirect string) error {
	state := uuid.NewString()
	pending := &pendingLogin{
		verifier: oauth2.GenerateVerifier(),
		redirect: redirect,
		done:     make(chan callbackResult, 1),
	}

	p.mu.Lock()
	p.pending[state] = pending
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, state)
		p.mu.Unlock()
	}()

	cfg := *p.oauth
	cfg.Endpoint.AuthURL = endpoint
	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(pending.verifier))

	if err := p.browser(authURL); err != nil {
		return fmt.Errorf("failed to open authorization page: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-pending.done:
		return res.err
	}
}

// HandleCallback 处理授权回调，返回登录前请求的跳转地址
func (p *Provider) HandleCallback(ctx context.Context, state, code, errParam string) (string, error) {
	p.mu.Lock()
	pending, ok := p.pending[state]
	if ok {
		delete(p.pending, state)
	}
	p.mu.Unlock()
	if !ok {
		return "", ErrUnknownState
	}

	if errParam != "" {
		err := fmt.Errorf("authorization denied: %s", errParam)
		pending.done <- callbackResult{err: err}
		return pending.redirect, err
	}

	tok, err := p.oauth.Exchange(p.oauthContext(ctx), code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		err = fmt.Errorf("failed to exchange authorization code: %w", err)
		pending.done <- callbackResult{err: err}
		return pending.redirect, err
	}

	if err := p.setToken(tok); err != nil {
		pending.done <- callbackResult{err: err}
		return pending.redirect, err
	}
	pending.done <- callbackResult{}
	return pending.redirect, nil
}

// Logout 通知身份提供方结束会话（尽力而为）并丢弃本地令牌
func (p *Provider) Logout(ctx context.Context, _ string) error {
	p.mu.RLock()
	var refresh string
	if p.token != nil {
		refresh = p.token.RefreshToken
	}
	p.mu.RUnlock()

	p.clear()

	if refresh == "" {
		return nil
	}
	form := url.Values{
		"client_id":     {p.clientID},
		"refresh_token": {refresh},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.logoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout rejected with status %d", resp.StatusCode)
	}
	return nil
}

// UpdateToken 剩余有效期低于 minValidity 时用刷新令牌续期，minValidity 为负数时强制续期
func (p *Provider) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	p.mu.RLock()
	current := p.token
	claims := p.claims
	p.mu.RUnlock()

	if current == nil || current.RefreshToken == "" {
		return false, auth.ErrRefreshTokenInvalid
	}
	if minValidity >= 0 {
		if exp, ok := expiryOf(current, claims); ok && exp.Sub(p.now()) >= minValidity {
			return false, nil
		}
	}

	src := p.oauth.TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			p.clear()
			return false, fmt.Errorf("%w: %s", auth.ErrRefreshTokenInvalid, retrieveErr.ErrorDescription)
		}
		return false, fmt.Errorf("token refresh failed: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = current.RefreshToken
	}

	if err := p.setToken(tok); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) setToken(tok *oauth2.Token) error {
	claims, err := ParseClaims(tok.AccessToken)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.token = tok
	p.claims = claims
	p.mu.Unlock()

	if p.cache != nil && tok.RefreshToken != "" {
		if err := p.cache.Save(tok.RefreshToken); err != nil {
			p.log.Debug("refresh token not cached", zap.Error(err))
		}
	}
	return nil
}

func (p *Provider) clear() {
	p.mu.Lock()
	p.token = nil
	p.claims = nil
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.Clear(); err != nil {
			p.log.Debug("failed to clear token cache", zap.Error(err))
		}
	}
}

func expiryOf(tok *oauth2.Token, claims *Claims) (time.Time, bool) {
	if exp, ok := claims.Expiry(); ok {
		return exp, true
	}
	if tok != nil && !tok.Expiry.IsZero() {
		return tok.Expiry, true
	}
	return time.Time{}, false
}

// Token 返回访问令牌
func (p *Provider) Token() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil || p.token.AccessToken == "" {
		return "", false
	}
	return p.token.AccessToken, true
}

// TokenExpiration 返回访问令牌过期时间
func (p *Provider) TokenExpiration() (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil {
		return time.Time{}, false
	}
	return expiryOf(p.token, p.claims)
}

// HasRealmRole 检查 realm 角色
func (p *Provider) HasRealmRole(role string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.claims.HasRole(role)
}

// Subject 返回用户标识
func (p *Provider) Subject() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.claims == nil {
		return ""
	}
	return p.claims.Subject
}

// Username 返回用户名，没有时返回邮箱
func (p *Provider) Username() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.claims == nil {
		return ""
	}
	if p.claims.PreferredUsername != "" {
		return p.claims.PreferredUsername
	}
	return p.claims.Email
}
