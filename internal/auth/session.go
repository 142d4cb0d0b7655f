package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tempmail/client/internal/monitoring"
)

const (
	defaultRefreshInterval = 30 * time.Second
	defaultMinValidity     = 60 * time.Second
	refreshTimeout         = 30 * time.Second
)

// Status 认证状态
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusAuthenticating
	StatusAuthenticated
	StatusRefreshing
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshing:
		return "refreshing"
	}
	return "unknown"
}

// MarshalText 以字符串形式输出到 JSON
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options 认证会话参数
type Options struct {
	RefreshInterval time.Duration // 后台检查间隔
	MinValidity     time.Duration // 剩余有效期低于该值时刷新
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
	Now             func() time.Time
}

// Session 认证会话：维护登录状态并在令牌过期前主动刷新
type Session struct {
	provider Provider
	interval time.Duration
	minValid time.Duration
	log      *zap.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time

	mu        sync.RWMutex
	status    Status
	watchers  map[int]func(Status)
	nextWatch int

	refreshes singleflight.Group
	restore   atomic.Bool // Init 因临时错误失败，等待重试

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSession 创建认证会话
func NewSession(provider Provider, opts Options) *Session {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.MinValidity <= 0 {
		opts.MinValidity = defaultMinValidity
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		provider: provider,
		interval: opts.RefreshInterval,
		minValid: opts.MinValidity,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		status:   StatusUnauthenticated,
		watchers: make(map[int]func(Status)),
		closed:   make(chan struct{}),
	}
}

// Status 返回当前状态
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Watch 订阅状态变化，订阅时立即收到当前状态；返回取消订阅函数
func (s *Session) Watch(fn func(Status)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	current := s.status
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Session) setStatus(status Status) {
	s.transition(nil, status)
}

// transition 只有当前状态为 from（nil 表示任意）时才切换
func (s *Session) transition(from *Status, status Status) {
	s.mu.Lock()
	if s.status == status || (from != nil && s.status != *from) {
		s.mu.Unlock()
		return
	}
	previous := s.status
	s.status = status
	watchers := make([]func(Status), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	s.metrics.UpdateAuthStatus(int(status))
	s.log.Debug("auth status changed",
		zap.Stringer("from", previous),
		zap.Stringer("to", status),
	)
	for _, fn := range watchers {
		fn(status)
	}
}

// Init 恢复已有登录
func (s *Session) Init(ctx context.Context) error {
	s.setStatus(StatusAuthenticating)
	ok, err := s.provider.Init(ctx)
	s.restore.Store(err != nil)
	if err != nil || !ok {
		s.setStatus(StatusUnauthenticated)
		return err
	}
	s.setStatus(StatusAuthenticated)
	s.log.Info("restored previous login", zap.String("subject", s.provider.Subject()))
	return nil
}

// Login 交互式登录
func (s *Session) Login(ctx context.Context, redirect string) error {
	return s.interactive(ctx, func() error { return s.provider.Login(ctx, redirect) })
}

// Register 交互式注册
func (s *Session) Register(ctx context.Context, redirect string) error {
	return s.interactive(ctx, func() error { return s.provider.Register(ctx, redirect) })
}

func (s *Session) interactive(ctx context.Context, flow func() error) error {
	previous := s.Status()
	s.setStatus(StatusAuthenticating)
	if err := flow(); err != nil {
		if previous == StatusAuthenticated || previous == StatusRefreshing {
			s.setStatus(StatusAuthenticated)
		} else {
			s.setStatus(StatusUnauthenticated)
		}
		return err
	}
	if _, ok := s.provider.Token(); !ok {
		s.setStatus(StatusUnauthenticated)
		return ErrNotAuthenticated
	}
	s.setStatus(StatusAuthenticated)
	s.log.Info("signed in", zap.String("subject", s.provider.Subject()))
	return nil
}

// Logout 注销，身份提供方出错时本地状态仍然变为未登录
func (s *Session) Logout(ctx context.Context, redirect string) error {
	err := s.provider.Logout(ctx, redirect)
	s.restore.Store(false)
	s.setStatus(StatusUnauthenticated)
	if err != nil {
		s.log.Warn("identity provider logout failed", zap.Error(err))
	}
	return err
}

// IsAuthenticated 刷新中仍视为已登录
func (s *Session) IsAuthenticated() bool {
	status := s.Status()
	return status == StatusAuthenticated || status == StatusRefreshing
}

// Token 返回当前访问令牌
func (s *Session) Token() (string, bool) {
	if !s.IsAuthenticated() {
		return "", false
	}
	return s.provider.Token()
}

// TokenExpiration 返回当前令牌过期时间
func (s *Session) TokenExpiration() (time.Time, bool) {
	if !s.IsAuthenticated() {
		return time.Time{}, false
	}
	return s.provider.TokenExpiration()
}

// HasRole 检查当前令牌的 realm 角色
func (s *Session) HasRole(role string) bool {
	return s.IsAuthenticated() && s.provider.HasRealmRole(role)
}

// Subject 返回当前用户标识
func (s *Session) Subject() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.provider.Subject()
}

// Username 返回当前用户名，未登录时为空
func (s *Session) Username() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.provider.Username()
}

// RefreshToken 忽略阈值强制刷新，返回是否签发了新令牌
func (s *Session) RefreshToken(ctx context.Context) (bool, error) {
	return s.refresh(ctx, -1)
}

type refreshResult struct {
	refreshed bool
}

// refresh 同一用户的并发刷新合并为一次调用，所有调用方得到相同结果
func (s *Session) refresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	if !s.IsAuthenticated() {
		return false, ErrNotAuthenticated
	}

	ch := s.refreshes.DoChan(s.provider.Subject(), func() (any, error) {
		// 共享调用不受单个调用方取消的影响
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.doRefresh(callCtx, minValidity)
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(refreshResult).refreshed, nil
	}
}

func (s *Session) doRefresh(ctx context.Context, minValidity time.Duration) (refreshResult, error) {
	authenticated, refreshing := StatusAuthenticated, StatusRefreshing
	s.transition(&authenticated, StatusRefreshing)

	refreshed, err := s.provider.UpdateToken(ctx, minValidity)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenInvalid) {
			s.metrics.RecordTokenRefresh("invalid")
			s.log.Warn("refresh token rejected, signing out", zap.Error(err))
			s.setStatus(StatusUnauthenticated)
			return refreshResult{}, err
		}
		s.metrics.RecordTokenRefresh("error")
		s.transition(&refreshing, StatusAuthenticated)
		return refreshResult{}, err
	}

	if refreshed {
		s.metrics.RecordTokenRefresh("refreshed")
	} else {
		s.metrics.RecordTokenRefresh("unchanged")
	}
	s.transition(&refreshing, StatusAuthenticated)
	return refreshResult{refreshed: refreshed}, nil
}

// Check 执行一次后台检查：令牌剩余有效期低于阈值时刷新
//
// 普通的刷新失败只记录日志并跳过本轮。启动时恢复登录遇到临时错误的，在这里重试恢复。
func (s *Session) Check(ctx context.Context) {
	if !s.IsAuthenticated() {
		if s.restore.Load() && s.Status() == StatusUnauthenticated {
			if err := s.Init(ctx); err != nil {
				s.log.Warn("restoring previous login failed, will retry next cycle", zap.Error(err))
			}
		}
		return
	}
	exp, ok := s.provider.TokenExpiration()
	if !ok {
		return
	}

	until := exp.Sub(s.now())
	if until >= s.minValid {
		return
	}

	refreshed, err := s.refresh(ctx, s.minValid)
	switch {
	case err == nil:
		s.log.Debug("token checked", zap.Bool("refreshed", refreshed), zap.Duration("until_expiry", until))
	case errors.Is(err, ErrRefreshTokenInvalid), errors.Is(err, context.Canceled):
	default:
		s.log.Warn("token refresh failed, will retry next cycle", zap.Error(err))
	}
}

// Run 后台刷新循环，直到 ctx 取消或 Close
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("token refresh loop started",
		zap.Duration("interval", s.interval),
		zap.Duration("min_validity", s.minValid),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Close 停止后台刷新循环
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
