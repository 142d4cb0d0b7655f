package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"tempmail/client/internal/storage"
)

const (
	apiCheckTimeout    = 5 * time.Second
	goroutineThreshold = 10000
)

// Pinger 探测远端 API 是否可达
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.KV
	api    Pinger
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，api 为 nil 时不注册就绪检查
func NewHealthChecker(store storage.KV, api Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		api:    api,
		logger: logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	if hc.store != nil {
		hc.health.AddLivenessCheck("storage", hc.store.Health)
	}
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(goroutineThreshold))

	if hc.api != nil {
		hc.health.AddReadinessCheck("api", healthcheck.Timeout(hc.pingAPI, apiCheckTimeout))
	}
}

func (hc *HealthChecker) pingAPI() error {
	ctx, cancel := context.WithTimeout(context.Background(), apiCheckTimeout)
	defer cancel()

	if err := hc.api.Ping(ctx); err != nil {
		hc.logger.Debug("api readiness check failed", zap.Error(err))
		return err
	}
	return nil
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查，包含存活检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行健康检查并返回各项状态
func (hc *HealthChecker) CheckHealth(ctx context.Context) map[string]string {
	results := make(map[string]string)

	if hc.store != nil {
		if err := hc.store.Health(); err != nil {
			results["storage"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["storage"] = "OK"
		}
	} else {
		results["storage"] = "NOT_AVAILABLE"
	}

	if hc.api != nil {
		ctx, cancel := context.WithTimeout(ctx, apiCheckTimeout)
		defer cancel()
		if err := hc.api.Ping(ctx); err != nil {
			results["api"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["api"] = "OK"
		}
	} else {
		results["api"] = "NOT_AVAILABLE"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
