package httptransport

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/client/internal/api"
	"tempmail/client/internal/domain"
	"tempmail/client/internal/service"
	"tempmail/client/internal/storage/filesystem"
)

type statusResponse struct {
	Auth           string             `json:"auth"`
	Subject        string             `json:"subject,omitempty"`
	Username       string             `json:"username,omitempty"`
	TokenExpiresAt *time.Time         `json:"tokenExpiresAt,omitempty"`
	Alias          *service.AliasInfo `json:"alias,omitempty"`
	Polling        bool               `json:"polling"`
	LastError      string             `json:"lastError,omitempty"`
	Health         map[string]string  `json:"health,omitempty"`
}

type inboxResponse struct {
	Alias     string               `json:"alias"`
	Mails     []domain.MailSummary `json:"mails"`
	Count     int                  `json:"count"`
	ExpiresAt *time.Time           `json:"expiresAt,omitempty"`
	Expired   bool                 `json:"expired"`
	LastError string               `json:"lastError,omitempty"`
}

type generateAliasRequest struct {
	Domain string `json:"domain"`
}

type domainPreferenceRequest struct {
	Domain string `json:"domain" binding:"required"`
}

// status 返回登录状态、当前别名与健康状况
func (h *Handler) status(c *gin.Context) {
	resp := statusResponse{Auth: "disabled"}
	if h.auth != nil {
		resp.Auth = h.auth.Status().String()
		if h.auth.IsAuthenticated() {
			resp.Subject = h.auth.Subject()
			resp.Username = h.auth.Username()
			if exp, ok := h.auth.TokenExpiration(); ok {
				resp.TokenExpiresAt = &exp
			}
		}
	}
	if info, ok := h.mailbox.Current(); ok {
		resp.Alias = info
	}
	synchronizer := h.mailbox.Inbox()
	resp.Polling = synchronizer.Running()
	if err := synchronizer.LastError(); err != nil {
		resp.LastError = api.UserMessage(err)
	}
	if h.health != nil {
		resp.Health = h.health.CheckHealth(c.Request.Context())
	}
	Success(c, resp)
}

func (h *Handler) inboxView() inboxResponse {
	synchronizer := h.mailbox.Inbox()
	mails := synchronizer.Snapshot()
	resp := inboxResponse{
		Alias:   synchronizer.Alias(),
		Mails:   make([]domain.MailSummary, 0, len(mails)),
		Expired: synchronizer.Expired(),
	}
	resp.Mails = append(resp.Mails, mails...)
	resp.Count = len(resp.Mails)
	if exp, ok := synchronizer.ExpiresAt(); ok {
		resp.ExpiresAt = &exp
	}
	if err := synchronizer.LastError(); err != nil {
		resp.LastError = api.UserMessage(err)
	}
	return resp
}

// getInbox 返回最近一次拉取的收件箱快照
func (h *Handler) getInbox(c *gin.Context) {
	Success(c, h.inboxView())
}

// refreshInbox 立即拉取一次收件箱
func (h *Handler) refreshInbox(c *gin.Context) {
	if err := h.mailbox.Refresh(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	Success(c, h.inboxView())
}

// deleteMail 删除当前别名下的一封邮件
func (h *Handler) deleteMail(c *gin.Context) {
	msg, err := h.mailbox.DeleteMail(c.Request.Context(), domain.MailID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if msg == "" {
		msg = "mail deleted"
	}
	SuccessWithMsg(c, msg, nil)
}

// downloadAttachment 转发附件，危险文件只允许下载保存
func (h *Handler) downloadAttachment(c *gin.Context) {
	id := domain.MailID(c.Param("id"))
	filename := c.Param("filename")

	var buf bytes.Buffer
	att, err := h.mailbox.DownloadAttachment(c.Request.Context(), id, filename, h.attachments.LimitWriter(&buf))
	if err != nil {
		if api.KindOf(err) == api.KindNotFound {
			NotFound(c, MsgAttachmentNotFound)
			return
		}
		fail(c, err)
		return
	}

	verdict := h.attachments.Inspect(att.Filename, att.ContentType, buf.Bytes())
	if verdict.Dangerous {
		h.log.Warn("serving dangerous attachment as download",
			zap.String("mail_id", string(id)),
			zap.String("filename", att.Filename),
			zap.String("reason", verdict.Reason),
		)
	}

	disposition := "attachment"
	if verdict.Inline {
		disposition = "inline"
	}
	name := filesystem.SanitizeFilename(att.Filename, "attachment")

	// 附件下载不使用统一响应格式，直接返回二进制流
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))
	c.Data(http.StatusOK, verdict.ContentType, buf.Bytes())
}

// generateAlias 生成新别名并切换轮询，domain 为空时使用偏好域名
func (h *Handler) generateAlias(c *gin.Context) {
	var req generateAliasRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	info, err := h.mailbox.Generate(c.Request.Context(), req.Domain)
	if err != nil {
		fail(c, err)
		return
	}
	Created(c, info)
}

// discardAlias 丢弃当前别名并停止轮询
func (h *Handler) discardAlias(c *gin.Context) {
	if err := h.mailbox.Discard(); err != nil {
		InternalError(c, MsgInternalError)
		return
	}
	SuccessWithMsg(c, "address discarded", nil)
}

// listDomains 返回服务端域名列表与当前使用的域名
func (h *Handler) listDomains(c *gin.Context) {
	domains, err := h.mailbox.ListDomains(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{
		"domains":   domains,
		"preferred": h.mailbox.PreferredDomain(c.Request.Context()),
	})
}

func (h *Handler) getPreferredDomain(c *gin.Context) {
	Success(c, gin.H{"domain": h.mailbox.PreferredDomain(c.Request.Context())})
}

func (h *Handler) setPreferredDomain(c *gin.Context) {
	var req domainPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := h.mailbox.SetPreferredDomain(req.Domain); err != nil {
		if errors.Is(err, domain.ErrInvalidDomain) || errors.Is(err, domain.ErrDomainTooLong) {
			fail(c, err)
			return
		}
		h.log.Error("failed to save preferred domain", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{"domain": h.mailbox.PreferredDomain(c.Request.Context())})
}

func (h *Handler) clearPreferredDomain(c *gin.Context) {
	if err := h.mailbox.ClearPreferredDomain(); err != nil {
		h.log.Error("failed to clear preferred domain", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{"domain": h.mailbox.PreferredDomain(c.Request.Context())})
}

// listNotifications 返回最近的通知
func (h *Handler) listNotifications(c *gin.Context) {
	if h.notifications == nil {
		Success(c, []struct{}{})
		return
	}
	Success(c, h.notifications.Recent())
}
