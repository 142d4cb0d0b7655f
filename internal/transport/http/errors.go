package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tempmail/client/internal/api"
	"tempmail/client/internal/auth"
	"tempmail/client/internal/auth/oidc"
	"tempmail/client/internal/domain"
	"tempmail/client/internal/inbox"
	"tempmail/client/internal/security"
	"tempmail/client/internal/service"
)

// 错误消息映射表（本地错误 -> 提示）
var errorMessages = map[error]string{
	service.ErrNoAlias:             MsgNoAlias,
	inbox.ErrNotRunning:            MsgNoAlias,
	domain.ErrInvalidDomain:        "invalid domain format",
	domain.ErrDomainTooLong:        "domain too long",
	domain.ErrInvalidEmail:         "invalid email format",
	domain.ErrEmailTooLong:         "email address too long",
	domain.ErrInvalidLocalPart:     "invalid email format",
	domain.ErrLocalPartTooLong:     "email address too long",
	auth.ErrNotAuthenticated:       "not signed in",
	auth.ErrRefreshTokenInvalid:    "your session has expired, please sign in again",
	oidc.ErrUnknownState:           "unknown or expired login attempt",
	security.ErrAttachmentTooLarge: "attachment too large",
}

// GetErrorMessage 获取错误的提示，远端 API 错误使用 api.UserMessage
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return api.UserMessage(err)
}

// statusFor 把错误映射为本地接口的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoAlias), errors.Is(err, inbox.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidDomain), errors.Is(err, domain.ErrDomainTooLong),
		errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrEmailTooLong),
		errors.Is(err, domain.ErrInvalidLocalPart), errors.Is(err, domain.ErrLocalPartTooLong):
		return http.StatusBadRequest
	case errors.Is(err, security.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	}

	switch api.KindOf(err) {
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindBadRequest:
		return http.StatusBadRequest
	case api.KindUnauthorized:
		return http.StatusUnauthorized
	case api.KindForbidden:
		return http.StatusForbidden
	case api.KindRateLimited:
		return http.StatusTooManyRequests
	case api.KindConnectivity, api.KindServer:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail 按错误类型写出统一错误响应
func fail(c *gin.Context, err error) {
	Error(c, statusFor(err), GetErrorMessage(err))
}

// 通用错误消息
const (
	MsgInvalidRequest     = "invalid request"
	MsgNoAlias            = "no active address, generate one first"
	MsgAuthDisabled       = "authentication is not configured"
	MsgLoginStarted       = "login started, finish it in the browser"
	MsgRegisterStarted    = "registration started, finish it in the browser"
	MsgLoginFailed        = "login failed"
	MsgAttachmentNotFound = "attachment not found"
	MsgInternalError      = "internal error, please try again later"
	MsgInvalidDomainMode  = "invalid domain mode"
	MsgInvalidTeamRole    = "role must be owner or member"
	MsgExpiryInPast       = "expiry must be in the future"
)
