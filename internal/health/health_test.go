package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"tempmail/client/internal/storage"
	"tempmail/client/internal/storage/memory"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type brokenKV struct{ storage.KV }

func (brokenKV) Health() error { return storage.ErrUnavailable }

func serve(h func(http.ResponseWriter, *http.Request)) int {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Code
}

func TestHealthChecker(t *testing.T) {
	up := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("全部正常", func(t *testing.T) {
		hc := NewHealthChecker(memory.NewStore(), up, nil)

		assert.Equal(t, http.StatusOK, serve(hc.LiveEndpoint))
		assert.Equal(t, http.StatusOK, serve(hc.ReadyEndpoint))
	})

	t.Run("API 不可达只影响就绪", func(t *testing.T) {
		hc := NewHealthChecker(memory.NewStore(), down, nil)

		assert.Equal(t, http.StatusOK, serve(hc.LiveEndpoint))
		assert.Equal(t, http.StatusServiceUnavailable, serve(hc.ReadyEndpoint))
	})

	t.Run("存储不可用", func(t *testing.T) {
		hc := NewHealthChecker(brokenKV{}, up, nil)

		assert.Equal(t, http.StatusServiceUnavailable, serve(hc.LiveEndpoint))
	})

	t.Run("汇总状态", func(t *testing.T) {
		hc := NewHealthChecker(memory.NewStore(), down, nil)

		results := hc.CheckHealth(context.Background())

		assert.Equal(t, "OK", results["storage"])
		assert.Contains(t, results["api"], "connection refused")
		assert.NotEmpty(t, results["timestamp"])
	})

	t.Run("未配置时的状态", func(t *testing.T) {
		hc := NewHealthChecker(nil, nil, nil)

		results := hc.CheckHealth(context.Background())

		assert.Equal(t, "NOT_AVAILABLE", results["storage"])
		assert.Equal(t, "NOT_AVAILABLE", results["api"])
		assert.Equal(t, http.StatusOK, serve(hc.ReadyEndpoint))
	})
}
