package httptransport

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type interactiveRequest struct {
	Redirect string `json:"redirect"`
}

// authCallback 身份提供方的重定向目标，完成授权码交换
func (h *Handler) authCallback(c *gin.Context) {
	if h.callback == nil {
		ServiceUnavailable(c, MsgAuthDisabled)
		return
	}

	errParam := c.Query("error")
	if desc := c.Query("error_description"); errParam != "" && desc != "" {
		errParam += ": " + desc
	}
	redirect, err := h.callback.HandleCallback(c.Request.Context(), c.Query("state"), c.Query("code"), errParam)
	if err != nil {
		h.log.Warn("login callback failed", zap.Error(err))
		Error(c, http.StatusBadRequest, GetErrorMessage(err))
		return
	}

	if isLocalPath(redirect) {
		c.Redirect(http.StatusFound, redirect)
		return
	}
	SuccessWithMsg(c, "signed in, you can close this window", nil)
}

// login 在后台开始交互式登录，结果通过事件流的 auth 主题送达
func (h *Handler) login(c *gin.Context) {
	h.startInteractive(c, "login", MsgLoginStarted, func(a AuthSession) func(context.Context, string) error {
		return a.Login
	})
}

// register 在后台开始交互式注册
func (h *Handler) register(c *gin.Context) {
	h.startInteractive(c, "register", MsgRegisterStarted, func(a AuthSession) func(context.Context, string) error {
		return a.Register
	})
}

func (h *Handler) startInteractive(c *gin.Context, flow, msg string, pick func(AuthSession) func(context.Context, string) error) {
	if h.auth == nil {
		ServiceUnavailable(c, MsgAuthDisabled)
		return
	}
	var req interactiveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}
	if !isLocalPath(req.Redirect) {
		req.Redirect = ""
	}

	if !h.runInteractive(flow, req.Redirect, pick(h.auth)) {
		Conflict(c, "a login is already in progress")
		return
	}
	Accepted(c, msg, gin.H{"status": h.auth.Status().String()})
}

// runInteractive 交给共享守卫，已有流程进行中时返回 false
func (h *Handler) runInteractive(flow, redirect string, run func(context.Context, string) error) bool {
	return h.interactive.Start(flow, func(ctx context.Context) error {
		return run(ctx, redirect)
	})
}

// triggerLogin 访问受保护接口但未登录时调用
func (h *Handler) triggerLogin() {
	if h.auth == nil {
		return
	}
	h.runInteractive("login", "", h.auth.Login)
}

// logout 注销，身份提供方出错时本地状态仍然是未登录
func (h *Handler) logout(c *gin.Context) {
	if h.auth == nil {
		ServiceUnavailable(c, MsgAuthDisabled)
		return
	}
	if err := h.auth.Logout(c.Request.Context(), ""); err != nil {
		h.log.Warn("logout reported an error", zap.Error(err))
	}
	SuccessWithMsg(c, "signed out", gin.H{"status": h.auth.Status().String()})
}

// isLocalPath 只接受站内路径，避免开放重定向
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, "\\")
}
