// cmd/smppd/main.go  SMPP服务端入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"smppd/api"
	"smppd/api/routes"
	"smppd/internal/auth"
	"smppd/internal/config"
	"smppd/internal/database"
	"smppd/internal/dispatcher"
	"smppd/internal/message"
	"smppd/internal/performance"
	"smppd/internal/server"
	"smppd/pkg/logger"
)

func main() {
	configFile := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("加载配置文件失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitWithConfig("smppd", cfg.LoggerConfig()); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.GetLogger().Close()

	if err := run(cfg); err != nil {
		logger.Fatal(fmt.Sprintf("服务异常退出: %v", err))
	}
	logger.Info("SMPP服务已关闭")
}

func run(cfg *config.Config) error {
	logger.Info("SMPP服务启动中...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 数据库
	var dbManager *database.Manager
	if cfg.Database.Enabled {
		dbManager = database.NewManager(cfg.Database)
		if err := dbManager.Connect(ctx); err != nil {
			return fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbManager.Close()

		if err := database.Migrate(ctx, dbManager.DB(), dbManager.Driver()); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	// 认证与限流
	var authenticator *auth.Authenticator
	if dbManager != nil {
		authenticator = auth.NewAuthenticator(dbManager.DB())
	} else {
		authenticator = auth.NewAuthenticator(nil)
	}
	for _, account := range cfg.Auth.Accounts {
		authenticator.RegisterStaticAccount(account)
	}

	limiter := performance.NewRateLimiter(cfg.Performance.DefaultTPS)
	applyAccountLimits(authenticator, limiter)

	var accountManager *auth.AccountManager
	if dbManager != nil {
		accountManager = auth.NewAccountManager(authenticator, cfg.Auth.ReloadInterval)
		accountManager.OnReload(func(a *auth.Authenticator) { applyAccountLimits(a, limiter) })
		if err := accountManager.Start(ctx); err != nil {
			logger.Error(fmt.Sprintf("从数据库加载账户失败: %v", err))
		}
		defer accountManager.Stop()
	}
	logger.Info(fmt.Sprintf("已加载 %d 个ESME账户", authenticator.Count()))

	// 短信存储
	var store message.Store
	switch cfg.Message.Store {
	case config.MessageStoreSQL:
		store = message.NewSQLStore(dbManager.DB())
	default:
		store = message.NewMemoryStore(cfg.Message.Capacity)
	}

	metrics := performance.GetMetrics()

	disp := dispatcher.NewDispatcher(dispatcher.Config{
		SystemID:   cfg.SMPP.SystemID,
		LogContent: cfg.Dispatcher.LogContent,
	}, authenticator, store, limiter, metrics)

	opts := []server.Option{server.WithMetrics(metrics)}
	if len(cfg.Auth.IPWhitelist) > 0 {
		whitelist, err := auth.NewIPWhitelistFromList(cfg.Auth.IPWhitelist)
		if err != nil {
			return fmt.Errorf("解析IP白名单失败: %w", err)
		}
		opts = append(opts, server.WithAddrFilter(whitelist))
	}

	smppServer := server.NewServer(cfg.SMPP, disp, opts...)
	if err := smppServer.Start(ctx); err != nil {
		return fmt.Errorf("启动SMPP服务器失败: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	metrics.StartMetricsReporter(gctx, cfg.Performance.MetricsInterval)

	if cfg.Web.Enabled {
		webServer := api.NewServer(&api.ServerConfig{
			ListenAddr: cfg.Web.ListenAddr,
			Username:   cfg.Web.Username,
			Password:   cfg.Web.Password,
			JWTSecret:  cfg.Web.JWTSecret,
			TokenTTL:   cfg.Web.TokenTTL,
			Debug:      cfg.Web.Debug,
		}, routes.Dependencies{
			Server:        smppServer,
			Dispatcher:    disp,
			Authenticator: authenticator,
			Store:         store,
			Limits:        limiter,
		})

		g.Go(webServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return webServer.Stop(shutdownCtx)
		})
		logger.Info(fmt.Sprintf("Web管理接口地址: %s", cfg.Web.ListenAddr))
	}

	logger.Info(fmt.Sprintf("SMPP服务已启动，版本: %s，system_id: %s，监听地址: %s",
		cfg.Version, cfg.SMPP.SystemID, cfg.SMPP.ListenAddress))

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("开始优雅关闭...")
		smppServer.Stop()
		return nil
	})

	return g.Wait()
}

// applyAccountLimits 按账户的max_tps设置限流
func applyAccountLimits(authenticator *auth.Authenticator, limiter *performance.RateLimiter) {
	authenticator.Range(func(systemID string, account *auth.Account) bool {
		if account.MaxTPS > 0 {
			limiter.SetClientLimit(systemID, account.MaxTPS)
		}
		return true
	})
}
