package inbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/client/internal/api"
	"tempmail/client/internal/domain"
	"tempmail/client/internal/monitoring"
	"tempmail/client/internal/notify"
)

const defaultInterval = 5 * time.Second

// ErrNotRunning 同步器未启动
var ErrNotRunning = errors.New("inbox synchronizer is not running")

// Fetcher 拉取别名的邮件列表
type Fetcher interface {
	GetMailbox(ctx context.Context, alias string) (*domain.MailList, error)
}

// Update 一次拉取的结果
type Update struct {
	Alias       string               `json:"alias"`
	Snapshot    domain.MailSnapshot  `json:"snapshot"`
	NewMessages []domain.MailSummary `json:"newMessages,omitempty"`
	ExpiresAt   *time.Time           `json:"expiresAt,omitempty"`
	Expired     bool                 `json:"expired"`
	Err         error                `json:"-"`
}

// Options 同步器参数
type Options struct {
	Interval time.Duration
	Sink     notify.Sink
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	Now      func() time.Time
}

// HasNewMessages next 中存在 prev 没有的邮件 ID 时返回 true，只删除邮件不算新邮件
func HasNewMessages(prev, next domain.MailSnapshot) bool {
	return len(next.NewSince(prev)) > 0
}

// Synchronizer 定时拉取当前别名的收件箱并与上一份快照比较
//
// 每次拉取分配递增序号，只应用比已应用结果更新的响应；Stop 之后完成的响应全部丢弃。
type Synchronizer struct {
	fetcher  Fetcher
	interval time.Duration
	sink     notify.Sink
	log      *zap.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time

	lifecycle sync.Mutex // 串行化 Start / Stop
	wg        sync.WaitGroup

	mu           sync.Mutex
	runCtx       context.Context
	cancel       context.CancelFunc
	generation   uint64
	alias        string
	issued       uint64
	applied      uint64
	snapshot     domain.MailSnapshot
	expiresAt    time.Time
	hasExpiry    bool
	expired      bool
	expiryWarned bool
	lastErr      error
	listeners    []func(Update)
}

// New 创建收件箱同步器
func New(fetcher Fetcher, opts Options) *Synchronizer {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Sink == nil {
		opts.Sink = notify.SinkFunc(func(notify.Notification) {})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synchronizer{
		fetcher:  fetcher,
		interval: opts.Interval,
		sink:     opts.Sink,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// OnUpdate 注册更新回调，回调在锁外调用
func (s *Synchronizer) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start 开始轮询 alias：立即拉取一次，之后按固定间隔拉取；已在运行时先停止旧的轮询
func (s *Synchronizer) Start(ctx context.Context, alias string) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stopLocked()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel
	s.alias = alias
	s.snapshot = nil
	s.hasExpiry = false
	s.expired = false
	s.expiryWarned = false
	s.lastErr = nil
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("inbox polling started", zap.String("alias", alias), zap.Duration("interval", s.interval))
	go s.loop(runCtx, gen)
}

// Stop 停止轮询并等待进行中的拉取返回，返回后不会再发起拉取或修改状态
func (s *Synchronizer) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

func (s *Synchronizer) stopLocked() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.cancel()
	s.cancel = nil
	s.runCtx = nil
	alias := s.alias
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("inbox polling stopped", zap.String("alias", alias))
}

// Running 是否正在轮询
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// RefreshNow 立即拉取一次，不影响定时轮询的节奏
func (s *Synchronizer) RefreshNow(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	gen := s.generation
	runCtx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	return s.fetchOnce(fetchCtx, gen)
}

func (s *Synchronizer) loop(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	s.launch(ctx, gen)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.launch(ctx, gen)
		}
	}
}

// launch 在独立 goroutine 中拉取，慢请求不会推迟下一次定时拉取
func (s *Synchronizer) launch(ctx context.Context, gen uint64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.fetchOnce(ctx, gen)
	}()
}

func (s *Synchronizer) fetchOnce(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	s.issued++
	seq := s.issued
	alias := s.alias
	s.mu.Unlock()

	list, err := s.fetcher.GetMailbox(ctx, alias)

	s.mu.Lock()
	if gen != s.generation || seq <= s.applied {
		s.mu.Unlock()
		s.metrics.RecordInboxPoll("stale")
		s.log.Debug("dropped stale inbox response", zap.Uint64("seq", seq))
		return nil
	}

	if err != nil {
		if ctx.Err() != nil {
			s.mu.Unlock()
			return ctx.Err()
		}
		return s.applyFailure(alias, err)
	}
	return s.applySuccess(alias, seq, list)
}

// applyFailure 保留现有快照，只在连续失败的第一次发出通知；调用时持有 s.mu
func (s *Synchronizer) applyFailure(alias string, err error) error {
	firstFailure := s.lastErr == nil
	s.lastErr = err
	update := s.updateLocked(alias, nil)
	update.Err = err
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.metrics.RecordInboxPoll("error")
	s.log.Warn("inbox fetch failed",
		zap.String("alias", alias),
		zap.String("kind", string(api.KindOf(err))),
		zap.Error(err),
	)
	if firstFailure {
		s.sink.Notify(notify.Error(api.UserMessage(err)))
	}
	for _, fn := range listeners {
		fn(update)
	}
	return err
}

// applySuccess 替换快照并计算新邮件；调用时持有 s.mu
func (s *Synchronizer) applySuccess(alias string, seq uint64, list *domain.MailList) error {
	next := domain.MailSnapshot(list.Mails)
	fresh := next.NewSince(s.snapshot)

	warnExpired := false
	if list.ExpiresAt != nil {
		if list.ExpiresAt.After(s.now()) {
			s.expiresAt = *list.ExpiresAt
			s.hasExpiry = true
			s.expired = false
			s.expiryWarned = false
		} else {
			s.hasExpiry = false
			s.expired = true
			warnExpired = !s.expiryWarned
			s.expiryWarned = true
		}
	}

	s.snapshot = next
	s.applied = seq
	s.lastErr = nil
	update := s.updateLocked(alias, fresh)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.metrics.RecordInboxPoll("ok")
	s.metrics.UpdateSnapshotSize(len(next))
	if len(fresh) > 0 {
		s.metrics.RecordNewMail()
		s.log.Info("new mail", zap.String("alias", alias), zap.Int("count", len(fresh)))
		s.sink.Notify(notify.Info("%d new message(s)", len(fresh)))
	}
	if warnExpired {
		s.log.Warn("mailbox expired", zap.String("alias", alias))
		s.sink.Notify(notify.Warning("mailbox %s has expired", alias))
	}
	for _, fn := range listeners {
		fn(update)
	}
	return nil
}

func (s *Synchronizer) updateLocked(alias string, fresh []domain.MailSummary) Update {
	update := Update{
		Alias:       alias,
		Snapshot:    append(domain.MailSnapshot(nil), s.snapshot...),
		NewMessages: fresh,
		Expired:     s.expired,
	}
	if s.hasExpiry {
		exp := s.expiresAt
		update.ExpiresAt = &exp
	}
	return update
}

func (s *Synchronizer) listenersLocked() []func(Update) {
	out := make([]func(Update), len(s.listeners))
	copy(out, s.listeners)
	return out
}

// Alias 返回正在轮询的别名
func (s *Synchronizer) Alias() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alias
}

// Snapshot 返回当前快照的副本
func (s *Synchronizer) Snapshot() domain.MailSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(domain.MailSnapshot(nil), s.snapshot...)
}

// ExpiresAt 返回最近一次响应中的过期时间，已过期或未知时返回 false
func (s *Synchronizer) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt, s.hasExpiry
}

// Expired 最近一次响应是否表示邮箱已过期
func (s *Synchronizer) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// LastError 返回最近一次拉取的错误，成功后清空
func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
