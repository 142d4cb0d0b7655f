package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempmail/client/internal/alias"
	"tempmail/client/internal/api"
	"tempmail/client/internal/auth"
	"tempmail/client/internal/auth/oidc"
	"tempmail/client/internal/config"
	"tempmail/client/internal/health"
	"tempmail/client/internal/inbox"
	"tempmail/client/internal/logger"
	"tempmail/client/internal/monitoring"
	"tempmail/client/internal/notify"
	"tempmail/client/internal/pool"
	"tempmail/client/internal/preference"
	"tempmail/client/internal/security"
	"tempmail/client/internal/service"
	"tempmail/client/internal/session"
	"tempmail/client/internal/storage"
	"tempmail/client/internal/storage/filesystem"
	"tempmail/client/internal/storage/memory"
	"tempmail/client/internal/storage/redis"
	httptransport "tempmail/client/internal/transport/http"
	"tempmail/client/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// main 启动临时邮箱客户端：恢复或生成别名、轮询收件箱、提供本地接口
func main() {
	domainFlag := flag.String("domain", "", "generate the address on this domain instead of the preferred one")
	forceNew := flag.Bool("new", false, "discard the saved address and generate a new one")
	loginFlag := flag.Bool("login", false, "start an interactive login at startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting tempmail client",
		zap.String("api", cfg.API.BaseURL),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("auth", cfg.Auth.Enabled),
		zap.String("listen", cfg.Server.Addr()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 存储：会话作用域只在进程内，持久作用域按配置选择
	sessionStore := memory.NewStore()
	durableStore, closeStore := initializeDurableStorage(cfg, log)
	defer closeStore()

	metrics := monitoring.NewMetrics()

	// 通知：日志、历史、事件流，可选桌面通知
	wsHub := websocket.NewHub(cfg.Server.AllowedOrigins, logger.Named(log, "websocket"), metrics)
	history := notify.NewHistory(50)
	sink := notify.NewFanout(metrics, notify.NewLogSink(logger.Named(log, "notify")), history, wsHub)

	var desktopPool *pool.WorkerPool
	if cfg.Notify.Desktop {
		desktopPool = pool.NewWorkerPool(1, 16, logger.Named(log, "desktop"))
		sink.Add(notify.NewAsyncSink(notify.NewDesktopSink(log), desktopPool, log))
	}

	// 远端 API
	identity := session.NewIdentity(sessionStore, log)
	client := api.New(
		api.WithBaseURL(cfg.API.BaseURL),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		api.WithMailboxHeader(cfg.API.MailboxHeader),
		api.WithCredentials(identity),
		api.WithLogger(logger.Named(log, "api")),
		api.WithMetrics(metrics),
	)

	// 账号登录（可选）
	var (
		authSession *auth.Session
		provider    *oidc.Provider
		startLogin  = func() {}
	)
	// 本地接口与 API 客户端共用，同一时间只有一个交互式登录
	interactive := auth.NewInteractive(ctx, auth.DefaultInteractiveTimeout, logger.Named(log, "auth"))
	if cfg.Auth.Enabled {
		provider = oidc.NewProvider(oidc.Config{
			Issuer:      cfg.Auth.Issuer,
			ClientID:    cfg.Auth.ClientID,
			RedirectURL: cfg.Auth.RedirectURL,
			Scopes:      cfg.Auth.Scopes,
		},
			oidc.WithTokenCache(oidc.NewKVTokenCache(durableStore)),
			oidc.WithLogger(logger.Named(log, "oidc")),
		)
		authSession = auth.NewSession(provider, auth.Options{
			RefreshInterval: cfg.Auth.RefreshInterval,
			MinValidity:     cfg.Auth.MinValidity,
			Logger:          logger.Named(log, "auth"),
			Metrics:         metrics,
		})
		authSession.Watch(wsHub.PublishAuthStatus)

		startLogin = func() {
			interactive.Start("login", func(loginCtx context.Context) error {
				return authSession.Login(loginCtx, "")
			})
		}

		client.SetAuthenticator(authSession)
		client.SetLoginRedirect(startLogin)

		if err := authSession.Init(ctx); err != nil {
			log.Warn("failed to restore previous login", zap.Error(err))
		}
	}

	// 别名、偏好与收件箱
	registry := alias.NewRegistry(sessionStore, client, cfg.Inbox.FallbackDomain, logger.Named(log, "alias"))
	prefs := preference.NewStore(durableStore, cfg.Inbox.FallbackDomain, logger.Named(log, "preference"))
	synchronizer := inbox.New(client, inbox.Options{
		Interval: cfg.Inbox.PollInterval,
		Sink:     sink,
		Logger:   logger.Named(log, "inbox"),
		Metrics:  metrics,
	})
	synchronizer.OnUpdate(wsHub.PublishInbox)

	mailboxService := service.NewMailboxService(client, registry, prefs, synchronizer, sink, logger.Named(log, "mailbox"))
	healthChecker := health.NewHealthChecker(durableStore, client, log)

	deps := httptransport.RouterDependencies{
		Config:        cfg,
		Mailbox:       mailboxService,
		Account:       client,
		Attachments:   security.NewAttachmentSecurity(security.DefaultMaxAttachmentSize),
		Notifications: history,
		WebSocketHub:  wsHub,
		Health:        healthChecker,
		Metrics:       metrics,
		Logger:        logger.Named(log, "http"),
		Interactive:   interactive,
	}
	if authSession != nil {
		deps.Auth = authSession
		deps.Callback = provider
	}
	httpServer := httptransport.NewServer(cfg.Server.Addr(), httptransport.NewRouter(deps))

	group, groupCtx := errgroup.WithContext(ctx)

	// WebSocket Hub goroutine
	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	// HTTP 服务器 goroutine，授权回调依赖它，需在登录前启动
	group.Go(func() error {
		log.Info("starting local HTTP server", zap.String("address", cfg.Server.Addr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	if desktopPool != nil {
		desktopPool.Start(groupCtx)
	}

	// 令牌刷新 goroutine
	if authSession != nil {
		group.Go(func() error {
			return authSession.Run(groupCtx)
		})
		if *loginFlag && !authSession.IsAuthenticated() {
			startLogin()
		}
	} else if *loginFlag {
		log.Warn("-login ignored: authentication is not configured")
	}

	// 域名缓存清理 goroutine
	group.Go(func() error {
		mailboxService.RunJanitor(groupCtx)
		return nil
	})

	info, err := mailboxService.Start(groupCtx, service.StartOptions{Domain: *domainFlag, ForceNew: *forceNew})
	if err != nil {
		log.Error("failed to prepare an address, use POST /api/alias to retry", zap.Error(err))
	} else {
		log.Info("address ready", zap.String("alias", info.Alias), zap.String("domain", info.Domain))
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		mailboxService.Stop()
		if authSession != nil {
			authSession.Close()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if desktopPool != nil {
			desktopPool.Stop()
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("client error", zap.Error(err))
	}
	log.Info("client exited cleanly")
}

// initializeDurableStorage 按配置创建持久存储，失败时退化为内存存储
func initializeDurableStorage(cfg *config.Config, log *zap.Logger) (storage.KV, func()) {
	noop := func() {}

	switch cfg.Storage.Driver {
	case config.StorageDriverRedis:
		store, err := redis.New(cfg.Storage, logger.Named(log, "redis"))
		if err != nil {
			log.Warn("redis storage unavailable, preferences will not persist", zap.Error(err))
			return memory.NewStore(), noop
		}
		log.Info("using redis storage", zap.String("address", cfg.Storage.RedisAddr))
		return store, func() { _ = store.Close() }

	case config.StorageDriverFile:
		store, err := filesystem.NewStore(cfg.Storage.Path, logger.Named(log, "storage"))
		if err != nil {
			log.Warn("file storage unavailable, preferences will not persist", zap.Error(err))
			return memory.NewStore(), noop
		}
		log.Info("using file storage", zap.String("path", store.Path()))
		return store, noop

	default:
		log.Info("using memory storage")
		return memory.NewStore(), noop
	}
}
