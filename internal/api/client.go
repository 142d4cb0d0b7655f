package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempmail/client/internal/monitoring"
)

const (
	defaultBaseURL       = "http://localhost:8080/api"
	defaultTimeout       = 15 * time.Second
	defaultMailboxHeader = "X-Mailbox-Password"
	requestIDHeader      = "X-Request-ID"
	maxErrorBody         = 64 << 10
)

// Credentials 提供匿名访问邮箱的邮箱密码（会话标识）
type Credentials interface {
	GetOrCreate() string
}

// Authenticator 提供登录用户的令牌并支持强制刷新
type Authenticator interface {
	IsAuthenticated() bool
	Token() (string, bool)
	RefreshToken(ctx context.Context) (bool, error)
}

// Client 邮箱服务 HTTP API 客户端
type Client struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	mailboxHeader string
	credentials   Credentials
	auth          Authenticator
	loginRedirect func()
	metrics       *monitoring.Metrics
	log           *zap.Logger
}

// Option 配置 API 客户端
type Option func(*Client)

// WithBaseURL 设置 API 根地址
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout 设置单次请求超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient 使用自定义 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit 设置出站请求速率，perSecond <= 0 表示不限速
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMailboxHeader 设置携带邮箱密码的请求头名称
func WithMailboxHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.mailboxHeader = name
		}
	}
}

// WithCredentials 设置邮箱密码来源
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.credentials = creds
	}
}

// WithAuthenticator 设置登录会话
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) {
		c.auth = auth
	}
}

// WithLoginRedirect 设置刷新后仍然 401 时触发的交互式登录
func WithLoginRedirect(fn func()) Option {
	return func(c *Client) {
		c.loginRedirect = fn
	}
}

// WithLogger 设置日志记录器
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics 设置监控指标
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New 创建 API 客户端
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		mailboxHeader: defaultMailboxHeader,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAuthenticator 在构造后注入登录会话（登录会话本身也依赖客户端时使用）
func (c *Client) SetAuthenticator(auth Authenticator) {
	c.auth = auth
}

// SetLoginRedirect 在构造后注入登录跳转
func (c *Client) SetLoginRedirect(fn func()) {
	c.loginRedirect = fn
}

// request 描述一次逻辑请求，body 以字节保存以便重放
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    []byte
	mailbox bool // 附带邮箱密码
}

func newRequest(op, method, path string, payload any) (*request, error) {
	r := &request{op: op, method: method, path: path}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		r.body = data
	}
	return r, nil
}

// do 执行请求并把响应解码到 out
func (c *Client) do(ctx context.Context, r *request, out any) (string, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindConnectivity, Op: r.op, Err: err}
	}
	return decodeBody(data, out)
}

// send 请求管线：请求头、限速、发送、错误归一化、401 时刷新并重放一次
//
// 成功时返回的响应体由调用方关闭。
func (c *Client) send(ctx context.Context, r *request) (*http.Response, error) {
	resp, err := c.attempt(ctx, r)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, ErrUnauthorized) || c.auth == nil || !c.auth.IsAuthenticated() {
		return nil, err
	}

	original := err
	if _, refreshErr := c.auth.RefreshToken(ctx); refreshErr != nil {
		c.log.Warn("token refresh after 401 failed",
			zap.String("operation", r.op),
			zap.Error(refreshErr),
		)
		c.triggerLogin()
		return nil, original
	}

	c.metrics.RecordAPIRetry()
	resp, err = c.attempt(ctx, r)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, ErrUnauthorized) {
		c.triggerLogin()
		return nil, original
	}
	return nil, err
}

func (c *Client) attempt(ctx context.Context, r *request) (*http.Response, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.mailbox && c.credentials != nil {
		req.Header.Set(c.mailboxHeader, c.credentials.GetOrCreate())
	}
	if c.auth != nil && c.auth.IsAuthenticated() {
		if token, ok := c.auth.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if c.limiter != nil {
		if c.limiter.Tokens() < 1 {
			c.metrics.RecordRateLimitWait()
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(r.op, "0", time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.log.Debug("api request failed",
			zap.String("operation", r.op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, &Error{Kind: KindConnectivity, Op: r.op, RequestID: requestID, Err: err}
	}
	c.metrics.RecordAPIRequest(r.op, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		apiErr := parseErrorResponse(resp, r.op)
		if apiErr.RequestID == "" {
			apiErr.RequestID = requestID
		}
		c.log.Debug("api request rejected",
			zap.String("operation", r.op),
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", apiErr.RequestID),
		)
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) triggerLogin() {
	if c.loginRedirect != nil {
		c.loginRedirect()
	}
}

// envelope 服务端统一响应格式 {code, msg, data}
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// decodeBody 解码响应体，兼容统一响应格式和裸 JSON，返回服务端提示
func decodeBody(data []byte, out any) (string, error) {
	payload := data
	message := ""

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 && json.Unmarshal(data, &env) == nil && env.Code != nil {
		payload = env.Data
		message = env.Msg
	} else {
		var plain struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &plain) == nil {
			message = plain.Message
		}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 || string(payload) == "null" {
		return message, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return message, fmt.Errorf("failed to decode response: %w", err)
	}
	return message, nil
}

func parseErrorResponse(resp *http.Response, op string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &Error{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Op:         op,
		RequestID:  resp.Header.Get(requestIDHeader),
	}

	var errResp struct {
		Msg       string `json:"msg"`
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Msg != "":
			apiErr.Message = errResp.Msg
		case errResp.Error != "":
			apiErr.Message = errResp.Error
		default:
			apiErr.Message = errResp.Message
		}
		if errResp.RequestID != "" {
			apiErr.RequestID = errResp.RequestID
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
