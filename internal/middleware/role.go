package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/client/internal/auth"
)

// RoleAuth 基于 realm 角色的路由守卫
type RoleAuth struct {
	principal auth.Principal
	onLogin   func()
	log       *zap.Logger
}

// NewRoleAuth 创建角色守卫，onLogin 在未登录访问受保护路由时触发交互式登录，可为 nil
func NewRoleAuth(principal auth.Principal, onLogin func(), log *zap.Logger) *RoleAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleAuth{
		principal: principal,
		onLogin:   onLogin,
		log:       log,
	}
}

// RequireRole 要求当前用户已登录且拥有 role
func (a *RoleAuth) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch auth.Guard(a.principal, role) {
		case auth.DecisionLogin:
			if a.onLogin != nil {
				a.onLogin()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "login required",
				"data": gin.H{"login": "/api/auth/login"},
			})
			return

		case auth.DecisionForbidden:
			a.log.Info("route denied: missing role",
				zap.String("path", c.FullPath()),
				zap.String("role", role),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": http.StatusForbidden,
				"msg":  role + " role required",
				"data": gin.H{"redirect": "/"},
			})
			return
		}

		c.Set("role", role)
		c.Next()
	}
}
