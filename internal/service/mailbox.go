package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/client/internal/alias"
	"tempmail/client/internal/api"
	"tempmail/client/internal/cache"
	"tempmail/client/internal/domain"
	"tempmail/client/internal/inbox"
	"tempmail/client/internal/notify"
	"tempmail/client/internal/preference"
)

const (
	domainsCacheKey = "domains"
	domainsCacheTTL = 5 * time.Minute
)

// ErrNoAlias 当前没有可用的别名
var ErrNoAlias = errors.New("no active alias")

// MailAPI 邮箱服务依赖的远端接口
type MailAPI interface {
	ListDomains(ctx context.Context) ([]string, error)
	DeleteMail(ctx context.Context, alias string, id domain.MailID) (string, error)
	DownloadAttachment(ctx context.Context, alias string, id domain.MailID, filename string, w io.Writer) (*domain.Attachment, error)
}

// AliasInfo 当前别名及其过期时间
type AliasInfo struct {
	Alias     string     `json:"alias"`
	LocalPart string     `json:"localPart"`
	Domain    string     `json:"domain"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired"`
}

// StartOptions 启动时的别名选择
type StartOptions struct {
	Domain   string // 覆盖偏好域名
	ForceNew bool   // 忽略已保存的别名
}

// MailboxService 协调别名、域名偏好与收件箱轮询
type MailboxService struct {
	api      MailAPI
	registry *alias.Registry
	prefs    *preference.Store
	inbox    *inbox.Synchronizer
	domains  *cache.LocalCache
	sink     notify.Sink
	log      *zap.Logger

	mu     sync.Mutex // 串行化别名切换
	runCtx context.Context
}

// NewMailboxService 创建邮箱业务服务
func NewMailboxService(mailAPI MailAPI, registry *alias.Registry, prefs *preference.Store, synchronizer *inbox.Synchronizer, sink notify.Sink, log *zap.Logger) *MailboxService {
	if sink == nil {
		sink = notify.SinkFunc(func(notify.Notification) {})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MailboxService{
		api:      mailAPI,
		registry: registry,
		prefs:    prefs,
		inbox:    synchronizer,
		domains:  cache.NewLocalCache(8, domainsCacheTTL),
		sink:     sink,
		log:      log,
		runCtx:   context.Background(),
	}
}

// Inbox 返回收件箱同步器
func (s *MailboxService) Inbox() *inbox.Synchronizer {
	return s.inbox
}

// Start 恢复已保存的别名，没有时按偏好域名生成新别名，然后开始轮询
//
// ctx 决定轮询的生命周期。
func (s *MailboxService) Start(ctx context.Context, opts StartOptions) (*AliasInfo, error) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	if !opts.ForceNew {
		if current, ok := s.registry.Current(); ok {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.inbox.Start(s.runCtx, current)
			s.log.Info("restored alias", zap.String("alias", current))
			return s.infoFor(current, nil), nil
		}
	}
	return s.Generate(ctx, opts.Domain)
}

// Stop 停止轮询
func (s *MailboxService) Stop() {
	s.inbox.Stop()
}

// ListDomains 返回服务端可用域名，结果缓存一段时间
func (s *MailboxService) ListDomains(ctx context.Context) ([]string, error) {
	if v, ok := s.domains.Get(domainsCacheKey); ok {
		return v.([]string), nil
	}
	domains, err := s.api.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	s.domains.Set(domainsCacheKey, domains, 0)
	return domains, nil
}

// RunJanitor 定期清理过期的域名缓存，直到 ctx 取消
func (s *MailboxService) RunJanitor(ctx context.Context) {
	s.domains.Run(ctx, domainsCacheTTL)
}

// PreferredDomain 返回生成别名时使用的域名
func (s *MailboxService) PreferredDomain(ctx context.Context) string {
	return s.prefs.Resolve(ctx, s)
}

// SetPreferredDomain 保存偏好域名，空字符串表示清除
func (s *MailboxService) SetPreferredDomain(mailDomain string) error {
	mailDomain = domain.NormalizeAddress(mailDomain)
	if mailDomain == "" {
		return s.prefs.Clear()
	}
	if err := domain.ValidateDomain(mailDomain); err != nil {
		return err
	}
	return s.prefs.Set(mailDomain)
}

// ClearPreferredDomain 清除偏好域名
func (s *MailboxService) ClearPreferredDomain() error {
	return s.prefs.Clear()
}

// Generate 生成新别名并切换轮询，override 为空时使用偏好域名
func (s *MailboxService) Generate(ctx context.Context, override string) (*AliasInfo, error) {
	mailDomain := domain.NormalizeAddress(override)
	if mailDomain != "" {
		if err := domain.ValidateDomain(mailDomain); err != nil {
			return nil, err
		}
	} else {
		mailDomain = s.PreferredDomain(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	address, expiresAt, err := s.registry.GenerateAndRegister(ctx, mailDomain)
	if err != nil {
		s.log.Warn("failed to generate alias", zap.String("domain", mailDomain), zap.Error(err))
		s.sink.Notify(notify.Error(api.UserMessage(err)))
		return nil, err
	}

	s.inbox.Start(s.runCtx, address)
	s.sink.Notify(notify.Success("new address %s", address))

	var exp *time.Time
	if !expiresAt.IsZero() {
		exp = &expiresAt
	}
	return s.infoFor(address, exp), nil
}

// Current 返回当前别名信息
func (s *MailboxService) Current() (*AliasInfo, bool) {
	current, ok := s.registry.Current()
	if !ok {
		return nil, false
	}
	return s.infoFor(current, nil), true
}

func (s *MailboxService) infoFor(address string, fallbackExpiry *time.Time) *AliasInfo {
	info := &AliasInfo{
		Alias:     address,
		LocalPart: s.registry.LocalPart(address),
		Domain:    s.registry.DomainOf(address),
		ExpiresAt: fallbackExpiry,
	}
	if s.inbox.Alias() == address {
		if exp, ok := s.inbox.ExpiresAt(); ok {
			info.ExpiresAt = &exp
		}
		if s.inbox.Expired() {
			info.Expired = true
			info.ExpiresAt = nil
		}
	}
	return info
}

// Discard 停止轮询并丢弃当前别名
func (s *MailboxService) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inbox.Stop()
	return s.registry.Clear()
}

// Refresh 立即刷新收件箱
func (s *MailboxService) Refresh(ctx context.Context) error {
	return s.inbox.RefreshNow(ctx)
}

// DeleteMail 删除当前别名下的一封邮件并刷新收件箱
func (s *MailboxService) DeleteMail(ctx context.Context, id domain.MailID) (string, error) {
	current, ok := s.registry.Current()
	if !ok {
		return "", ErrNoAlias
	}
	msg, err := s.api.DeleteMail(ctx, current, id)
	if err != nil {
		return "", err
	}
	if err := s.inbox.RefreshNow(ctx); err != nil && !errors.Is(err, inbox.ErrNotRunning) {
		s.log.Debug("refresh after delete failed", zap.Error(err))
	}
	return msg, nil
}

// DownloadAttachment 把当前别名下邮件的附件写入 w
func (s *MailboxService) DownloadAttachment(ctx context.Context, id domain.MailID, filename string, w io.Writer) (*domain.Attachment, error) {
	current, ok := s.registry.Current()
	if !ok {
		return nil, ErrNoAlias
	}
	att, err := s.api.DownloadAttachment(ctx, current, id, filename, w)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", filename, err)
	}
	return att, nil
}
