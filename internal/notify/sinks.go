package notify

import (
	desktop "github.com/TheCreeper/go-notify"
	"go.uber.org/zap"
)

// LogSink 把通知写入日志
type LogSink struct {
	log *zap.Logger
}

// NewLogSink 创建日志通知
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

// Notify 按类别选择日志级别
func (s *LogSink) Notify(n Notification) {
	fields := []zap.Field{zap.String("kind", string(n.Kind))}
	switch n.Kind {
	case KindError:
		s.log.Error(n.Message, fields...)
	case KindWarning:
		s.log.Warn(n.Message, fields...)
	default:
		s.log.Info(n.Message, fields...)
	}
}

const appName = "tempmail"

// DesktopSink 通过 freedesktop 通知服务（dbus）弹出桌面通知
type DesktopSink struct {
	show func(desktop.Notification) error
	log  *zap.Logger
}

// NewDesktopSink 创建桌面通知
func NewDesktopSink(log *zap.Logger) *DesktopSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &DesktopSink{show: showDesktop, log: log}
}

func showDesktop(ntf desktop.Notification) error {
	_, err := ntf.Show()
	return err
}

// Notify 弹出通知，失败只记录日志
func (s *DesktopSink) Notify(n Notification) {
	ntf := desktop.NewNotification(summaryFor(n.Kind), n.Message)
	ntf.AppName = appName
	ntf.AppIcon = iconFor(n.Kind)
	ntf.Hints = make(map[string]interface{})
	if n.Kind == KindError {
		ntf.Timeout = desktop.ExpiresNever
	} else {
		ntf.Timeout = 5000
	}

	if err := s.show(ntf); err != nil {
		s.log.Debug("desktop notification failed", zap.Error(err))
	}
}

func summaryFor(kind Kind) string {
	switch kind {
	case KindSuccess:
		return "Done"
	case KindError:
		return "Temp mail error"
	case KindWarning:
		return "Temp mail warning"
	default:
		return "Temp mail"
	}
}

func iconFor(kind Kind) string {
	switch kind {
	case KindError:
		return "dialog-error"
	case KindWarning:
		return "dialog-warning"
	case KindInfo:
		return "mail-unread"
	default:
		return "dialog-information"
	}
}

// Submitter 异步执行任务，队列满时返回 false
type Submitter interface {
	TrySubmit(task func()) bool
}

// AsyncSink 把通知交给协程池转发，调用方不会被慢的下游阻塞
type AsyncSink struct {
	next Sink
	pool Submitter
	log  *zap.Logger
}

// NewAsyncSink 创建异步通知
func NewAsyncSink(next Sink, pool Submitter, log *zap.Logger) *AsyncSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &AsyncSink{next: next, pool: pool, log: log}
}

// Notify 提交通知，队列已满时丢弃
func (s *AsyncSink) Notify(n Notification) {
	if !s.pool.TrySubmit(func() { s.next.Notify(n) }) {
		s.log.Debug("notification dropped, queue full", zap.String("kind", string(n.Kind)))
	}
}
