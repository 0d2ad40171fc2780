package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/langchou/carwatch/internal/api/handlers"
	"github.com/langchou/carwatch/internal/api/smartcar"
	"github.com/langchou/carwatch/internal/cache"
	"github.com/langchou/carwatch/internal/config"
	"github.com/langchou/carwatch/internal/metrics"
	"github.com/langchou/carwatch/internal/models"
	"github.com/langchou/carwatch/internal/repository"
	"github.com/langchou/carwatch/internal/service"
	"github.com/langchou/carwatch/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting carwatch",
		zap.String("port", cfg.ServerPort),
		zap.Strings("brands", cfg.Brands),
		zap.String("mode", cfg.SmartcarMode))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 令牌存储：配置了数据库用 Postgres，否则用本地文件
	var tokenStore service.TokenStore
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")
		tokenStore = repository.NewPostgresTokenStore(db, logger)
	} else {
		logger.Info("Using file token store", zap.String("path", cfg.TokenFile))
		tokenStore = repository.NewFileTokenStore(cfg.TokenFile, logger)
	}
	noteStore := repository.NewNoteStore(cfg.NotesDir)

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	// 创建 Smartcar 客户端
	authClient := smartcar.NewAuthClient(smartcar.AuthConfig{
		ClientID:     cfg.SmartcarClientID,
		ClientSecret: cfg.SmartcarClientSecret,
		RedirectURI:  cfg.SmartcarRedirectURI,
		AuthURL:      cfg.SmartcarAuthURL,
		TokenURL:     cfg.SmartcarTokenURL,
		Mode:         cfg.SmartcarMode,
		Timeout:      cfg.HTTPTimeout,
	})
	limiter := rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst)
	apiClient := smartcar.NewClient(cfg.SmartcarAPIHost, cfg.HTTPTimeout, limiter)

	// 快照缓存
	snapshotCache := cache.New(cfg.CacheTTL, cfg.CacheSweepInterval)
	snapshotCache.Start()
	defer snapshotCache.Stop()

	// 创建服务
	refresher := service.NewTokenRefresher(tokenStore, authClient, logger, recorder)
	fetcher := service.NewVehicleFetcher(apiClient, logger, recorder, service.FetcherConfig{
		BrandTimeout: cfg.BrandFetchTimeout,
		Concurrency:  cfg.FetchConcurrency,
	})
	vehicleService := service.NewVehicleService(tokenStore, refresher, fetcher, snapshotCache, noteStore, logger, recorder)
	scheduler := service.NewScheduler(tokenStore, refresher, fetcher, snapshotCache, logger, recorder, cfg.RefreshInterval)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() *ws.InitData {
		return &ws.InitData{
			Vehicles: vehicleService.CachedVehicles(),
			State:    scheduler.State(),
		}
	})
	go wsHub.Run(ctx)

	// 缓存刷新后广播到 WebSocket
	scheduler.OnUpdate(func(vehicles []models.VehicleSnapshot) {
		wsHub.BroadcastVehicles(vehicles)
	})

	// 首次刷新失败（令牌存储不可读）时不启动服务
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start refresh scheduler", zap.Error(err))
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		authClient,
		tokenStore,
		vehicleService,
		noteStore,
		scheduler,
		wsHub,
		handlers.Options{
			Brands:     cfg.Brands,
			MapsAPIKey: cfg.GoogleMapsAPIKey,
			Metrics:    metrics.Handler(registry),
		},
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestLogger(logger))
	router.Use(handlers.CORSMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止定时刷新
	scheduler.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}
