package httptransport

import (
	"context"
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/client/internal/auth"
	"tempmail/client/internal/config"
	"tempmail/client/internal/domain"
	"tempmail/client/internal/health"
	"tempmail/client/internal/middleware"
	"tempmail/client/internal/monitoring"
	"tempmail/client/internal/notify"
	"tempmail/client/internal/security"
	"tempmail/client/internal/service"
	"tempmail/client/internal/websocket"
)

// 交互式登录等待浏览器回调的最长时间
// AuthSession 本地接口需要的登录会话能力
type AuthSession interface {
	auth.Principal
	Status() auth.Status
	Subject() string
	Username() string
	TokenExpiration() (time.Time, bool)
	Login(ctx context.Context, redirect string) error
	Register(ctx context.Context, redirect string) error
	Logout(ctx context.Context, redirect string) error
}

// CallbackHandler 处理身份提供方的授权回调
type CallbackHandler interface {
	HandleCallback(ctx context.Context, state, code, errParam string) (string, error)
}

// AccountAPI 账号相关的远端接口
type AccountAPI interface {
	ListUserDomains(ctx context.Context) ([]domain.UserDomain, error)
	AddUserDomain(ctx context.Context, req domain.AddUserDomainRequest) (*domain.UserDomain, error)
	VerifyUserDomain(ctx context.Context, id string) (*domain.UserDomain, error)
	DeleteUserDomain(ctx context.Context, id string) error
	ListAPIKeys(ctx context.Context) ([]domain.APIKey, error)
	CreateAPIKey(ctx context.Context, req domain.CreateAPIKeyRequest) (*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	ListTeamMembers(ctx context.Context) ([]domain.TeamMember, error)
	InviteTeamMember(ctx context.Context, req domain.InviteRequest) (*domain.TeamMember, error)
	RemoveTeamMember(ctx context.Context, id string) error
	GetSubscription(ctx context.Context) (*domain.Subscription, error)
	ListPlans(ctx context.Context) ([]domain.Plan, error)
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	Mailbox       *service.MailboxService
	Auth          AuthSession     // 未配置登录时为 nil
	Callback      CallbackHandler // 未配置登录时为 nil
	Account       AccountAPI
	Attachments   *security.AttachmentSecurity
	Notifications *notify.History
	WebSocketHub  *websocket.Hub
	Health        *health.HealthChecker
	Metrics       *monitoring.Metrics
	Logger        *zap.Logger
	Interactive   *auth.Interactive // 与 API 客户端的登录跳转共用，nil 时新建
	BaseContext   context.Context   // Interactive 为 nil 时新建守卫所用的生命周期，默认 Background
}

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailbox       *service.MailboxService
	auth          AuthSession
	callback      CallbackHandler
	account       AccountAPI
	attachments   *security.AttachmentSecurity
	notifications *notify.History
	health        *health.HealthChecker
	log           *zap.Logger
	interactive   *auth.Interactive
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interactive := deps.Interactive
	if interactive == nil {
		interactive = auth.NewInteractive(deps.BaseContext, auth.DefaultInteractiveTimeout, log)
	}
	attachments := deps.Attachments
	if attachments == nil {
		attachments = security.NewAttachmentSecurity(0)
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))

	var origins []string
	if deps.Config != nil {
		origins = deps.Config.Server.AllowedOrigins
	}
	if len(origins) > 0 {
		corsConfig := gincors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		// 如果允许所有来源，则需清空凭证支持。
		for _, origin := range corsConfig.AllowOrigins {
			if origin == "*" {
				corsConfig.AllowCredentials = false
				break
			}
		}
		router.Use(gincors.New(corsConfig))
	}

	h := &Handler{
		mailbox:       deps.Mailbox,
		auth:          deps.Auth,
		callback:      deps.Callback,
		account:       deps.Account,
		attachments:   attachments,
		notifications: deps.Notifications,
		health:        deps.Health,
		log:           log,
		interactive:   interactive,
	}

	// 接口 nil 值要显式传 nil，Guard 才能识别未登录
	var principal auth.Principal
	if deps.Auth != nil {
		principal = deps.Auth
	}
	roleAuth := middleware.NewRoleAuth(principal, h.triggerLogin, log)

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}
	if deps.WebSocketHub != nil {
		router.GET("/ws", deps.WebSocketHub.Handler())
	}

	router.GET("/auth/callback", h.authCallback)

	apiRoutes := router.Group("/api")
	{
		apiRoutes.GET("/status", h.status)
		apiRoutes.GET("/notifications", h.listNotifications)

		// ========== Inbox ==========
		apiRoutes.GET("/inbox", h.getInbox)
		apiRoutes.POST("/inbox/refresh", h.refreshInbox)
		apiRoutes.DELETE("/inbox/mail/:id", h.deleteMail)
		apiRoutes.GET("/inbox/mail/:id/attachments/:filename", h.downloadAttachment)

		// ========== Alias ==========
		apiRoutes.POST("/alias", h.generateAlias)
		apiRoutes.DELETE("/alias", h.discardAlias)

		// ========== Domains ==========
		apiRoutes.GET("/domains", h.listDomains)
		apiRoutes.GET("/preferences/domain", h.getPreferredDomain)
		apiRoutes.PUT("/preferences/domain", h.setPreferredDomain)
		apiRoutes.DELETE("/preferences/domain", h.clearPreferredDomain)

		// ========== Auth ==========
		authRoutes := apiRoutes.Group("/auth")
		{
			authRoutes.POST("/login", h.login)
			authRoutes.POST("/register", h.register)
			authRoutes.POST("/logout", h.logout)
		}

		// ========== Account（需要登录） ==========
		if deps.Account != nil {
			accountRoutes := apiRoutes.Group("/account")
			{
				member := roleAuth.RequireRole(auth.RoleMember)
				accountRoutes.GET("/domains", member, h.listUserDomains)
				accountRoutes.POST("/domains", member, h.addUserDomain)
				accountRoutes.POST("/domains/:id/verify", member, h.verifyUserDomain)
				accountRoutes.DELETE("/domains/:id", member, h.deleteUserDomain)
				accountRoutes.GET("/api-keys", member, h.listAPIKeys)
				accountRoutes.POST("/api-keys", member, h.createAPIKey)
				accountRoutes.DELETE("/api-keys/:id", member, h.deleteAPIKey)
				accountRoutes.GET("/subscription", member, h.getSubscription)
				accountRoutes.GET("/plans", member, h.listPlans)

				owner := roleAuth.RequireRole(auth.RoleOwner)
				accountRoutes.GET("/team/members", owner, h.listTeamMembers)
				accountRoutes.POST("/team/members", owner, h.inviteTeamMember)
				accountRoutes.DELETE("/team/members/:id", owner, h.removeTeamMember)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, "route not found")
	})

	return router
}

// NewServer 创建本地 http.Server，由调用方决定生命周期
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
