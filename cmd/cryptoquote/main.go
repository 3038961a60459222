// CryptoQuoteService 主程序
// 功能：接收、存储并分发加密货币行情
// 架构：DDD 分层，HTTP(Gin) + gRPC + Kafka 消费 + WebSocket 推送
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
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/application"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/infrastructure/messaging"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/infrastructure/persistence/mysql"
	quotecache "github.com/wyfcoding/cryptoquote/internal/cryptoquote/infrastructure/persistence/redis"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/interfaces/consumer"
	grpchandler "github.com/wyfcoding/cryptoquote/internal/cryptoquote/interfaces/grpc"
	httphandler "github.com/wyfcoding/cryptoquote/internal/cryptoquote/interfaces/http"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/interfaces/ws"
	"github.com/wyfcoding/cryptoquote/pkg/cache"
	"github.com/wyfcoding/cryptoquote/pkg/config"
	"github.com/wyfcoding/cryptoquote/pkg/db"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"github.com/wyfcoding/cryptoquote/pkg/metrics"
	"github.com/wyfcoding/cryptoquote/pkg/middleware"
	"github.com/wyfcoding/cryptoquote/pkg/mq"
	"github.com/wyfcoding/cryptoquote/pkg/ratelimit"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "configs/cryptoquote/config.toml", "配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "cryptoquote: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. 加载配置
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Starting CryptoQuoteService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. 初始化数据库
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		return err
	}
	defer database.Close()

	quoteRepo := mysql.NewCryptoQuoteRepository(database)
	if err := quoteRepo.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate crypto_quotes: %w", err)
	}

	// 4. 初始化 Redis
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return err
	}
	defer redisCache.Close()

	// 5. 指标与推送
	m := metrics.New(cfg.ServiceName)
	hub := ws.NewHub(m)
	defer hub.Close()

	publishers := []domain.CryptoQuotePublisher{hub}

	// 6. Kafka（可选）
	var (
		producer    *mq.KafkaProducer
		inbound     *mq.KafkaConsumer
		deadLetters *mq.DeadLetterQueue
	)
	if cfg.Kafka.Enabled() {
		kafkaCfg := mq.KafkaConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.Kafka.GroupID,
			SessionTimeout: cfg.Kafka.SessionTimeout,
			MaxRetries:     cfg.Kafka.MaxRetries,
			RetryBackoff:   cfg.Kafka.RetryBackoff,
		}
		producer = mq.NewProducer(kafkaCfg)
		defer producer.Close()
		publishers = append(publishers, messaging.NewKafkaQuotePublisher(producer, cfg.Kafka.OutboundTopic))
		deadLetters = mq.NewDeadLetterQueue(producer, cfg.Kafka.DeadLetterTopic)
		inbound = mq.NewConsumer(kafkaCfg, cfg.Kafka.InboundTopic)
		defer inbound.Close()
	}

	// 7. 应用服务
	quoteService := application.NewCryptoQuoteApplicationService(quoteRepo,
		application.WithCache(quotecache.NewCryptoQuoteCache(redisCache, cfg.Quote.CacheTTLDuration())),
		application.WithPublishers(publishers...),
		application.WithMetrics(m),
	)

	// 8. HTTP 与 gRPC 服务器
	limiter := ratelimit.NewRedisLimiter(redisCache.GetClient(), cfg.ServiceName+":ratelimit", ratelimit.QuotasFromConfig(cfg.RateLimit))
	httpServer := createHTTPServer(cfg, quoteService, hub, limiter, m)
	grpcServer := createGRPCServer(cfg, quoteService, m)

	errCh := make(chan error, 3)

	go func() {
		logger.Info(ctx, "Starting HTTP server", "addr", cfg.HTTP.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	listener, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	go func() {
		logger.Info(ctx, "Starting gRPC server", "addr", cfg.GRPC.Addr())
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// 后台任务在关停时先于依赖资源退出
	workers := newWorkerGroup(ctx)
	defer workers.Stop()

	// 9. 上游行情消费
	if inbound != nil {
		handler := consumer.NewCryptoQuoteHandler(quoteService, deadLetters, m,
			cfg.Kafka.MaxRetries, time.Duration(cfg.Kafka.RetryBackoff)*time.Millisecond)
		workers.Go(func(ctx context.Context) {
			if err := handler.Run(ctx, inbound); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		})
	}

	// 10. 过期行情清理
	workers.Go(func(ctx context.Context) {
		purgeLoop(ctx, quoteService, cfg.Quote)
	})

	// 11. 优雅关停
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error(ctx, "Component failed, shutting down", "error", err)
	}

	logger.Info(context.Background(), "Shutting down CryptoQuoteService")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP server shutdown error", "error", err)
	}
	grpcServer.GracefulStop()

	// 等待消费与清理退出后再关闭 Kafka、Redis 与数据库
	workers.Stop()

	logger.Info(shutdownCtx, "CryptoQuoteService stopped")
	return nil
}

// workerGroup 共享同一个可取消 ctx 的后台任务
type workerGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorkerGroup(parent context.Context) *workerGroup {
	ctx, cancel := context.WithCancel(parent)
	return &workerGroup{ctx: ctx, cancel: cancel}
}

// Go 启动后台任务
func (g *workerGroup) Go(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.ctx)
	}()
}

// Stop 取消并等待全部任务返回，可重复调用
func (g *workerGroup) Stop() {
	g.cancel()
	g.wg.Wait()
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, quoteService *application.CryptoQuoteApplicationService, hub *ws.Hub, limiter ratelimit.Limiter, m *metrics.Metrics) *http.Server {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))
	skip := []string{"/health"}
	if cfg.Metrics.Enabled {
		skip = append(skip, cfg.Metrics.Path)
	}
	router.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit.Enabled,
		middleware.WithRateLimitSkipPaths(skip...),
		middleware.WithRateLimitRejector(httphandler.RateLimited),
	))

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	httphandler.NewHandler(quoteService, hub.HandleStream).RegisterRoutes(router)

	// WebSocket 连接是长连接，不设置写超时
	return &http.Server{
		Addr:        cfg.HTTP.Addr(),
		Handler:     router,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
	}
}

// createGRPCServer 创建 gRPC 服务器
func createGRPCServer(cfg *config.Config, quoteService *application.CryptoQuoteApplicationService, m *metrics.Metrics) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			middleware.GRPCRecoveryInterceptor(),
			middleware.GRPCLoggingInterceptor(),
			middleware.GRPCMetricsInterceptor(m),
		),
	}
	if cfg.GRPC.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)))
	}

	server := grpc.NewServer(opts...)
	grpchandler.RegisterCryptoQuoteServiceServer(server, grpchandler.NewCryptoQuoteHandler(quoteService))
	return server
}

// purgeLoop 定期删除超过保留时长的行情
func purgeLoop(ctx context.Context, quoteService *application.CryptoQuoteApplicationService, cfg config.QuoteConfig) {
	if cfg.Retention() <= 0 || cfg.PurgeEvery() <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.PurgeEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := quoteService.PurgeExpired(ctx, cfg.Retention()); err != nil {
				logger.Error(ctx, "Failed to purge expired crypto quotes", "error", err)
			}
		}
	}
}
