package alias

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tempmail/client/internal/domain"
	"tempmail/client/internal/storage"
)

// MailboxCreator 在服务端注册邮箱
type MailboxCreator interface {
	CreateMailbox(ctx context.Context, mailDomain string) (*domain.Mailbox, error)
}

// Registry 管理当前会话唯一的活动别名
type Registry struct {
	kv       storage.KV
	creator  MailboxCreator
	fallback string
	log      *zap.Logger
}

// NewRegistry 创建别名管理器，kv 为会话作用域存储，不可用时别名只保留在内存中
func NewRegistry(kv storage.KV, creator MailboxCreator, fallbackDomain string, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{kv: storage.WithMemoryFallback(kv), creator: creator, fallback: fallbackDomain, log: log}
}

// GenerateAndRegister 在 mailDomain 下创建邮箱并替换当前别名
//
// 服务端失败时返回错误且不修改已保存的别名。
func (r *Registry) GenerateAndRegister(ctx context.Context, mailDomain string) (string, time.Time, error) {
	mailbox, err := r.creator.CreateMailbox(ctx, mailDomain)
	if err != nil {
		return "", time.Time{}, err
	}

	address := domain.NormalizeAddress(mailbox.Email)
	if err := domain.ValidateAddress(address); err != nil {
		return "", time.Time{}, fmt.Errorf("server returned invalid address %q: %w", mailbox.Email, err)
	}

	r.persist(address)
	r.log.Info("alias registered",
		zap.String("alias", address),
		zap.Time("expire_at", mailbox.ExpireAt),
	)
	return address, mailbox.ExpireAt, nil
}

// Current 返回当前别名
func (r *Registry) Current() (string, bool) {
	if r.kv == nil {
		return "", false
	}
	value, err := r.kv.Get(storage.KeyAlias)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Debug("alias storage unavailable", zap.Error(err))
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}

// SetCurrent 直接设置当前别名（例如已知地址时）
func (r *Registry) SetCurrent(address string) error {
	address = domain.NormalizeAddress(address)
	if err := domain.ValidateAddress(address); err != nil {
		return err
	}
	r.persist(address)
	return nil
}

// Clear 删除当前别名
func (r *Registry) Clear() error {
	if r.kv == nil {
		return nil
	}
	if err := r.kv.Delete(storage.KeyAlias); err != nil && !storage.Degraded(err) {
		return err
	}
	return nil
}

// LocalPart 返回地址的本地部分
func (r *Registry) LocalPart(address string) string {
	return domain.LocalPart(address)
}

// DomainOf 返回地址的域名部分，缺失时返回兜底域名
func (r *Registry) DomainOf(address string) string {
	return domain.DomainOf(address, r.fallback)
}

func (r *Registry) persist(address string) {
	if r.kv == nil {
		return
	}
	if err := r.kv.Set(storage.KeyAlias, address); err != nil {
		r.log.Debug("alias kept in memory only", zap.Error(err))
	}
}
