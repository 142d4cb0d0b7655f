package httptransport

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/client/internal/domain"
)

type addUserDomainRequest struct {
	Domain string            `json:"domain" binding:"required"`
	Mode   domain.DomainMode `json:"mode"`
}

type createAPIKeyRequest struct {
	Name      string     `json:"name" binding:"required,max=64"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type inviteRequest struct {
	Email string          `json:"email" binding:"required"`
	Role  domain.TeamRole `json:"role"`
}

// ========== 自定义域名 ==========

func (h *Handler) listUserDomains(c *gin.Context) {
	domains, err := h.account.ListUserDomains(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": domains, "count": len(domains)})
}

func (h *Handler) addUserDomain(c *gin.Context) {
	var req addUserDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Domain))
	if err := domain.ValidateDomain(name); err != nil {
		fail(c, err)
		return
	}
	switch req.Mode {
	case "", domain.DomainModeShared, domain.DomainModeExclusive, domain.DomainModeCatchAll:
	default:
		BadRequest(c, MsgInvalidDomainMode)
		return
	}

	added, err := h.account.AddUserDomain(c.Request.Context(), domain.AddUserDomainRequest{Domain: name, Mode: req.Mode})
	if err != nil {
		fail(c, err)
		return
	}
	h.log.Info("custom domain added", zap.String("domain", added.Domain))
	Created(c, added)
}

func (h *Handler) verifyUserDomain(c *gin.Context) {
	verified, err := h.account.VerifyUserDomain(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, verified)
}

func (h *Handler) deleteUserDomain(c *gin.Context) {
	if err := h.account.DeleteUserDomain(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	SuccessWithMsg(c, "domain deleted", nil)
}

// ========== API Key ==========

func (h *Handler) listAPIKeys(c *gin.Context) {
	keys, err := h.account.ListAPIKeys(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": keys, "count": len(keys)})
}

// createAPIKey 明文密钥只出现在这一次响应中
func (h *Handler) createAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		BadRequest(c, MsgExpiryInPast)
		return
	}

	key, err := h.account.CreateAPIKey(c.Request.Context(), domain.CreateAPIKeyRequest{
		Name:      strings.TrimSpace(req.Name),
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Created(c, key)
}

func (h *Handler) deleteAPIKey(c *gin.Context) {
	if err := h.account.DeleteAPIKey(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	SuccessWithMsg(c, "api key deleted", nil)
}

// ========== 团队 ==========

func (h *Handler) listTeamMembers(c *gin.Context) {
	members, err := h.account.ListTeamMembers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": members, "count": len(members)})
}

func (h *Handler) inviteTeamMember(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	email := domain.NormalizeAddress(req.Email)
	if err := domain.ValidateAddress(email); err != nil {
		fail(c, err)
		return
	}
	switch req.Role {
	case "":
		req.Role = domain.TeamRoleMember
	case domain.TeamRoleMember, domain.TeamRoleOwner:
	default:
		BadRequest(c, MsgInvalidTeamRole)
		return
	}

	member, err := h.account.InviteTeamMember(c.Request.Context(), domain.InviteRequest{Email: email, Role: req.Role})
	if err != nil {
		fail(c, err)
		return
	}
	Created(c, member)
}

func (h *Handler) removeTeamMember(c *gin.Context) {
	if err := h.account.RemoveTeamMember(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	SuccessWithMsg(c, "member removed", nil)
}

// ========== 订阅 ==========

func (h *Handler) getSubscription(c *gin.Context) {
	sub, err := h.account.GetSubscription(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, sub)
}

func (h *Handler) listPlans(c *gin.Context) {
	plans, err := h.account.ListPlans(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": plans, "count": len(plans)})
}
