package notify

import (
	"fmt"
	"sync"
	"time"

	"tempmail/client/internal/monitoring"
)

// Kind 通知类别
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Notification 发给用户的一条通知
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Sink 接收通知
type Sink interface {
	Notify(n Notification)
}

// SinkFunc 把函数适配为 Sink
type SinkFunc func(Notification)

// Notify 调用函数本身
func (f SinkFunc) Notify(n Notification) { f(n) }

// New 创建通知
func New(kind Kind, format string, args ...any) Notification {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return Notification{Kind: kind, Message: msg, Time: time.Now()}
}

// Success 创建成功通知
func Success(format string, args ...any) Notification { return New(KindSuccess, format, args...) }

// Error 创建错误通知
func Error(format string, args ...any) Notification { return New(KindError, format, args...) }

// Warning 创建警告通知
func Warning(format string, args ...any) Notification { return New(KindWarning, format, args...) }

// Info 创建普通通知
func Info(format string, args ...any) Notification { return New(KindInfo, format, args...) }

// Fanout 把通知分发给所有下游，是全局唯一的通知入口
type Fanout struct {
	mu      sync.RWMutex
	sinks   []Sink
	metrics *monitoring.Metrics
}

// NewFanout 创建通知分发器
func NewFanout(metrics *monitoring.Metrics, sinks ...Sink) *Fanout {
	f := &Fanout{metrics: metrics}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add 添加下游
func (f *Fanout) Add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Notify 分发通知
func (f *Fanout) Notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	f.metrics.RecordNotification(string(n.Kind))

	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		s.Notify(n)
	}
}

// History 保留最近的通知，供本地界面查询
type History struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

// NewHistory 创建通知历史，limit <= 0 时默认 50 条
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{limit: limit}
}

// Notify 记录通知
func (h *History) Notify(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, n)
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append([]Notification(nil), h.items[over:]...)
	}
}

// Recent 返回最近的通知，从旧到新
func (h *History) Recent() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.items))
	copy(out, h.items)
	return out
}
