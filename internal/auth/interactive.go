package auth

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInteractiveTimeout 单次交互式登录的最长等待时间
const DefaultInteractiveTimeout = 5 * time.Minute

// Interactive 在后台运行交互式登录或注册，同一时间只允许一个流程
//
// 本地接口和 API 客户端的登录跳转共用同一个实例。
type Interactive struct {
	running atomic.Bool
	baseCtx context.Context
	timeout time.Duration
	log     *zap.Logger
}

// NewInteractive 创建交互式流程守卫，baseCtx 取消时进行中的流程随之取消
func NewInteractive(baseCtx context.Context, timeout time.Duration, log *zap.Logger) *Interactive {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultInteractiveTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Interactive{baseCtx: baseCtx, timeout: timeout, log: log}
}

// Start 在后台运行 run，已有流程进行中时返回 false
func (i *Interactive) Start(flow string, run func(ctx context.Context) error) bool {
	if !i.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer i.running.Store(false)

		ctx, cancel := context.WithTimeout(i.baseCtx, i.timeout)
		defer cancel()
		if err := run(ctx); err != nil {
			i.log.Warn("interactive auth flow failed", zap.String("flow", flow), zap.Error(err))
		}
	}()
	return true
}

// Running 是否有进行中的流程
func (i *Interactive) Running() bool {
	return i.running.Load()
}
