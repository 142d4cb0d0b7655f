package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("记录并导出指标", func(t *testing.T) {
		m := NewMetrics()

		m.RecordAPIRequest("get_mailbox", "200", 20*time.Millisecond)
		m.RecordInboxPoll("ok")
		m.RecordInboxPoll("stale")
		m.RecordTokenRefresh("refreshed")

		rec := httptest.NewRecorder()
		m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "tempmail_client_inbox_polls_total")
		assert.Contains(t, rec.Body.String(), `tempmail_client_api_requests_total{operation="get_mailbox",status_code="200"} 1`)
		assert.Contains(t, rec.Body.String(), "tempmail_client_stale_responses_total 1")
		assert.Contains(t, rec.Body.String(), `tempmail_client_token_refreshes_total{outcome="refreshed"} 1`)
	})

	t.Run("两个实例互不冲突", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewMetrics()
			NewMetrics()
		})
	})

	t.Run("nil 接收者安全", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.RecordAPIRequest("x", "500", time.Second)
			m.RecordNewMail()
			m.UpdateAuthStatus(2)
		})
	})
}
