package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 客户端监控指标
//
// 所有指标注册在私有注册表上，方法对 nil 接收者安全，未启用监控的组件可以直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// API 请求指标
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIRetries         prometheus.Counter
	RateLimitWaits     prometheus.Counter

	// 认证指标
	TokenRefreshes *prometheus.CounterVec
	AuthStatus     prometheus.Gauge

	// 收件箱指标
	InboxPolls          *prometheus.CounterVec
	NewMailEvents       prometheus.Counter
	StaleResponses      prometheus.Counter
	MessagesInSnapshot  prometheus.Gauge
	MailboxesCreated    prometheus.Counter
	NotificationsTotal  *prometheus.CounterVec
	WebsocketClients    prometheus.Gauge
	LocalRequestsTotal  *prometheus.CounterVec
	LocalRequestLatency *prometheus.HistogramVec
	PanicsTotal         prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_client_api_requests_total",
				Help: "Total number of requests sent to the mailbox API",
			},
			[]string{"operation", "status_code"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempmail_client_api_request_duration_seconds",
				Help:    "Mailbox API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		APIRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_client_api_retries_total",
				Help: "Requests replayed after a forced token refresh",
			},
		),

		RateLimitWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_client_rate_limit_waits_total",
				Help: "Requests delayed by the outbound rate limiter",
			},
		),

		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_client_token_refreshes_total",
				Help: "Token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),

		AuthStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempmail_client_auth_status",
				Help: "Current authentication status (0 unauthenticated, 1 authenticating, 2 authenticated, 3 refreshing)",
			},
		),

		InboxPolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_client_inbox_polls_total",
				Help: "Inbox fetches by outcome",
			},
			[]string{"outcome"},
		),

		NewMailEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_client_new_mail_events_total",
				Help: "Inbox updates that contained new messages",
			},
		),

		StaleResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_client_stale_responses_total",
				Help: "Inbox responses dropped because a newer one was already applied",
			},
		),

		MessagesInSnapshot: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempmail_client_inbox_messages",
				Help: "Number of messages in the current inbox snapshot",
			},
		),

		MailboxesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_client_mailboxes_created_total",
				Help: "Aliases generated by this client",
			},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_client_notifications_total",
				Help: "Notifications emitted by kind",
			},
			[]string{"kind"},
		),

		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempmail_client_websocket_clients",
				Help: "Connected event stream clients",
			},
		),

		LocalRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_client_local_http_requests_total",
				Help: "Requests served by the local HTTP surface",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		LocalRequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempmail_client_local_http_request_duration_seconds",
				Help:    "Local HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_client_panics_total",
				Help: "Recovered panics in the local HTTP surface",
			},
		),
	}
}

// Registry 返回私有注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAPIRequest 记录 API 请求
func (m *Metrics) RecordAPIRequest(operation, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(operation, statusCode).Inc()
	m.APIRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRetry 记录刷新令牌后的重放
func (m *Metrics) RecordAPIRetry() {
	if m == nil {
		return
	}
	m.APIRetries.Inc()
}

// RecordRateLimitWait 记录被限速器延迟的请求
func (m *Metrics) RecordRateLimitWait() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}

// RecordTokenRefresh 记录令牌刷新结果：refreshed / unchanged / invalid / error
func (m *Metrics) RecordTokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// UpdateAuthStatus 更新认证状态
func (m *Metrics) UpdateAuthStatus(status int) {
	if m == nil {
		return
	}
	m.AuthStatus.Set(float64(status))
}

// RecordInboxPoll 记录收件箱拉取结果：ok / error / stale
func (m *Metrics) RecordInboxPoll(outcome string) {
	if m == nil {
		return
	}
	m.InboxPolls.WithLabelValues(outcome).Inc()
	if outcome == "stale" {
		m.StaleResponses.Inc()
	}
}

// RecordNewMail 记录新邮件事件
func (m *Metrics) RecordNewMail() {
	if m == nil {
		return
	}
	m.NewMailEvents.Inc()
}

// UpdateSnapshotSize 更新当前快照中的邮件数
func (m *Metrics) UpdateSnapshotSize(count int) {
	if m == nil {
		return
	}
	m.MessagesInSnapshot.Set(float64(count))
}

// RecordMailboxCreated 记录别名生成
func (m *Metrics) RecordMailboxCreated() {
	if m == nil {
		return
	}
	m.MailboxesCreated.Inc()
}

// RecordNotification 记录通知
func (m *Metrics) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

// UpdateWebsocketClients 更新事件流连接数
func (m *Metrics) UpdateWebsocketClients(count int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Set(float64(count))
}

// RecordLocalRequest 记录本地 HTTP 请求
func (m *Metrics) RecordLocalRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LocalRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.LocalRequestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
