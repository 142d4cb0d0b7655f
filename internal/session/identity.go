package session

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/client/internal/storage"
)

// Identity 管理会话标识（匿名访问邮箱时使用的邮箱密码）
//
// 标识在会话作用域内创建一次后保持不变，直到显式 Clear。
type Identity struct {
	mu    sync.Mutex
	store storage.KV
	log   *zap.Logger
	now   func() time.Time
}

// NewIdentity 创建会话标识管理器，store 为 nil 时每次调用都返回新的未持久化标识
func NewIdentity(store storage.KV, log *zap.Logger) *Identity {
	if log == nil {
		log = zap.NewNop()
	}
	return &Identity{store: store, log: log, now: time.Now}
}

// GetOrCreate 返回现有标识，不存在时生成并保存
func (i *Identity) GetOrCreate() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.store == nil {
		return NewIdentifier(i.now())
	}

	value, err := i.store.Get(storage.KeySessionID)
	if err == nil && value != "" {
		return value
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		i.log.Debug("session storage unavailable, identifier not persisted", zap.Error(err))
		return NewIdentifier(i.now())
	}

	value = NewIdentifier(i.now())
	if err := i.store.Set(storage.KeySessionID, value); err != nil {
		i.log.Debug("failed to persist session identifier", zap.Error(err))
	}
	return value
}

// Clear 删除已保存的标识
func (i *Identity) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.store == nil {
		return
	}
	if err := i.store.Delete(storage.KeySessionID); err != nil {
		i.log.Debug("failed to clear session identifier", zap.Error(err))
	}
}

// NewIdentifier 生成形如 base36(毫秒时间戳)-base36(随机)-base36(随机) 的标识
func NewIdentifier(now time.Time) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	for n := 0; n < 2; n++ {
		b.WriteByte('-')
		b.WriteString(strconv.FormatUint(randomSegment(), 36))
	}
	return b.String()
}

func randomSegment() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 不可用时退化为时间纳秒
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(buf[:])
}
