package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind string

const (
	KindConnectivity Kind = "connectivity" // 无响应（网络错误、超时）
	KindUnauthorized Kind = "unauthorized" // 401
	KindForbidden    Kind = "forbidden"    // 403
	KindNotFound     Kind = "not_found"    // 404 / 410，邮箱不存在或已过期
	KindRateLimited  Kind = "rate_limited" // 429
	KindServer       Kind = "server"       // 5xx
	KindBadRequest   Kind = "bad_request"  // 其他 4xx
)

// 可以通过 errors.Is 判断的错误
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("mailbox not found or expired")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrConnectivity = errors.New("mail service unreachable")
	ErrServer       = errors.New("mail service error")
)

// Error 归一化后的 API 错误
type Error struct {
	Kind       Kind
	StatusCode int    // 连接错误时为 0
	Message    string // 服务端返回的提示
	RequestID  string
	Op         string // 发起请求的操作名
	Err        error  // 底层传输错误
}

func (e *Error) Error() string {
	prefix := "api"
	if e.Op != "" {
		prefix = "api " + e.Op
	}
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: network error: %v", prefix, e.Err)
		}
		return fmt.Sprintf("%s: network error", prefix)
	}
	msg := fmt.Sprintf("%s: status %d", prefix, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request_id: " + e.RequestID + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 实现 errors.Is 的哨兵错误匹配
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrConnectivity:
		return e.Kind == KindConnectivity
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// Retryable 连接错误、限流和服务端错误属于暂时性错误
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnectivity, KindRateLimited, KindServer:
		return true
	}
	return false
}

// KindOf 返回错误类别，非 API 错误返回空字符串
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}

// UserMessage 生成展示给用户的单条提示
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "the mail service did not respond in time"
		}
		return err.Error()
	}

	switch apiErr.Kind {
	case KindConnectivity:
		return "unable to reach the mail service, retrying"
	case KindUnauthorized:
		return "your session has expired, please sign in again"
	case KindForbidden:
		return "you do not have permission to do that"
	case KindNotFound:
		return "mailbox not found or expired"
	case KindRateLimited:
		return "too many requests, please wait a moment"
	case KindServer:
		return "the mail service is having trouble, please try again later"
	default:
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "the request was rejected"
	}
}
