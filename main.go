package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/handler"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/middleware"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/service"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

// healthChecker 外部推理服务的健康检查
type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg := config.New(*configPath)

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting leaf severity server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	ctx := context.Background()

	// 初始化Redis
	var cache service.Cache
	if cfg.Redis.Enabled {
		redisService := service.NewRedisService(&cfg.Redis)
		if err := redisService.Ping(ctx); err != nil {
			utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		} else {
			utils.Logger.Info("redis connected successfully")
			cache = redisService
		}
		defer redisService.Close()
	}

	// 分割模型加载失败直接退出
	segmenter, err := inference.NewSegmentationModel(&cfg.Models)
	if err != nil {
		utils.Logger.Fatal("failed to load segmentation model", zap.Error(err))
	}
	if c, ok := segmenter.(inference.Closer); ok {
		defer c.Close()
	}
	checkHealth(ctx, "segmentation", segmenter)

	// 检测模型加载失败时保持 nil，接口返回 503
	var detector inference.DetectionModel
	if det, err := inference.NewDetectionModel(&cfg.Models); err != nil {
		utils.Logger.Error("failed to load detection model, detection disabled", zap.Error(err))
	} else if det != nil {
		detector = det
		if c, ok := det.(inference.Closer); ok {
			defer c.Close()
		}
		checkHealth(ctx, "detection", det)
	}

	remover, err := service.NewRemover(&cfg.Remover)
	if err != nil {
		utils.Logger.Fatal("failed to create background remover", zap.Error(err))
	}

	pipeline := service.NewPipeline(&cfg.Pipeline, segmenter, remover, cache)
	diseaseDetector := service.NewDiseaseDetector(detector, &cfg.Pipeline)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxSize
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":          "ok",
			"version":         Version,
			"detection_ready": diseaseDetector.Ready(),
			"cache_enabled":   cache != nil,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	handler.RegisterRoutes(r,
		handler.NewSeverityHandler(cfg, pipeline),
		handler.NewDetectHandler(cfg, diseaseDetector))

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, utils.Logger, nil, nil); err != nil {
		utils.Logger.Fatal("server error", zap.Error(err))
	}
	utils.Logger.Info("server stopped")
}

func checkHealth(ctx context.Context, name string, m any) {
	hc, ok := m.(healthChecker)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := hc.CheckHealth(ctx); err != nil {
		utils.Logger.Warn("inference service health check failed",
			zap.String("model", name), zap.Error(err))
	}
}

// serveHTTPServer 运行服务直到出错或收到退出信号，收到信号后在 shutdownTimeout 内优雅关闭
func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig := <-signalCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
