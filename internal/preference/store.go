package preference

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"tempmail/client/internal/storage"
)

// DomainLister 获取服务端可用域名列表
type DomainLister interface {
	ListDomains(ctx context.Context) ([]string, error)
}

// Store 持久保存用户偏好的邮箱域名
type Store struct {
	kv       storage.KV
	fallback string
	log      *zap.Logger
}

// NewStore 创建域名偏好存储，kv 为 nil 时所有读写退化为无操作
//
// kv 不可用时偏好只保留在本进程内存中。
func NewStore(kv storage.KV, fallback string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: storage.WithMemoryFallback(kv), fallback: fallback, log: log}
}

// Get 返回偏好域名，不存在或存储不可用时返回兜底域名
func (s *Store) Get() string {
	if domain, ok := s.stored(); ok {
		return domain
	}
	return s.fallback
}

// Set 保存偏好域名
func (s *Store) Set(domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return s.Clear()
	}
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Set(storage.KeyPreferredDomain, domain); err != nil {
		if storage.Degraded(err) {
			s.log.Debug("preference kept in memory only", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// Clear 删除偏好域名
func (s *Store) Clear() error {
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Delete(storage.KeyPreferredDomain); err != nil && !storage.Degraded(err) {
		return err
	}
	return nil
}

// ValidPreferredOrFallback 在可用域名中选择：偏好域名、列表第一个、兜底域名
func (s *Store) ValidPreferredOrFallback(available []string) string {
	if preferred, ok := s.stored(); ok {
		for _, domain := range available {
			if strings.EqualFold(domain, preferred) {
				return domain
			}
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return s.fallback
}

// Resolve 拉取服务端域名列表后选择域名，拉取失败时返回 Get 的结果
func (s *Store) Resolve(ctx context.Context, lister DomainLister) string {
	if lister == nil {
		return s.Get()
	}
	domains, err := lister.ListDomains(ctx)
	if err != nil {
		s.log.Warn("failed to list domains, using stored preference", zap.Error(err))
		return s.Get()
	}
	return s.ValidPreferredOrFallback(domains)
}

func (s *Store) stored() (string, bool) {
	if s.kv == nil {
		return "", false
	}
	value, err := s.kv.Get(storage.KeyPreferredDomain)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("preference storage unavailable", zap.Error(err))
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}
