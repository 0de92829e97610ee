package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/ks-vishal/stot-ub/internal/cache"
	"github.com/ks-vishal/stot-ub/internal/config"
	"github.com/ks-vishal/stot-ub/internal/evaluator"
	"github.com/ks-vishal/stot-ub/internal/fanout"
	httpapi "github.com/ks-vishal/stot-ub/internal/http"
	"github.com/ks-vishal/stot-ub/internal/ledger"
	"github.com/ks-vishal/stot-ub/internal/pipeline"
	"github.com/ks-vishal/stot-ub/internal/repository"
	"github.com/ks-vishal/stot-ub/internal/service"
	"github.com/ks-vishal/stot-ub/internal/transport"
	"github.com/ks-vishal/stot-ub/pkg/database"
	"github.com/ks-vishal/stot-ub/pkg/mqtt"
	pkgredis "github.com/ks-vishal/stot-ub/pkg/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Server 运输追踪服务（整合各层）
type Server struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	hub          *fanout.Hub
	mirror       *fanout.StreamMirror
	pipeline     *pipeline.Pipeline
	mqttConsumer *pipeline.MQTTConsumer
	httpServer   *http.Server
}

// NewServer 创建服务并完成全部装配
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := pkgredis.NewRedisClient(&cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pkgredis.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	// 4. Repository 层
	cargoRepo := repository.NewCargoRepository(db, logger)
	courierRepo := repository.NewCourierRepository(db, logger)
	shipmentRepo := repository.NewShipmentRepository(db, logger)
	telemetryRepo := repository.NewTelemetryRepository(db, logger)
	alertRepo := repository.NewAlertRepository(db, logger)
	ledgerRepo := repository.NewLedgerRepository(db, logger)

	// 5. 账本客户端（未配置网关时自动降级）
	recorder := ledger.NewGatewayRecorder(&cfg.Ledger, logger)
	reporter := ledger.NewReporter(recorder, ledgerRepo, logger)

	// 6. 缓存与实时推送
	latestCache := cache.NewLatestCache(
		redisClient,
		cfg.Telemetry.CachePrefix,
		time.Duration(cfg.Telemetry.CacheTTLSec)*time.Second,
		logger,
	)
	hub := fanout.NewHub(cfg.Fanout.QueueSize, logger)
	var mirror *fanout.StreamMirror
	if cfg.Fanout.Stream != "" {
		mirror = fanout.NewStreamMirror(redisClient, cfg.Fanout.Stream, logger)
		hub.SetMirror(mirror)
	}

	// 7. 业务服务
	planner := transport.NewDurationPlanner(cfg.Planner.SpeedKmh, cfg.Planner.PriorityFactors)
	transportSvc := transport.NewService(shipmentRepo, cargoRepo, courierRepo,
		ledgerRepo, reporter, latestCache, planner, logger)
	cargoSvc := service.NewCargoService(cargoRepo, ledgerRepo, reporter, logger)
	courierSvc := service.NewCourierService(courierRepo, logger)
	alertSvc := service.NewAlertService(alertRepo, ledgerRepo, reporter, logger)
	telemetrySvc := service.NewTelemetryService(telemetryRepo, latestCache, logger)

	// 8. 摄入管道
	pipe := pipeline.NewPipeline(shipmentRepo, telemetryRepo, courierRepo, cargoRepo,
		alertRepo, latestCache, hub, evaluator.DefaultLimits(), logger)
	consumer := pipeline.NewMQTTConsumer(mqttClient, pipe, cfg.Telemetry.MQTTQoS, logger)

	// 9. HTTP 路由
	router := httpapi.NewRouter(logger)
	router.RegisterShipmentRoutes(
		httpapi.NewShipmentHandler(transportSvc, logger),
		httpapi.NewTelemetryHandler(telemetrySvc, logger),
		httpapi.NewStatusHandler(transportSvc, telemetrySvc, alertSvc, logger),
	)
	router.RegisterCargoRoutes(httpapi.NewCargoHandler(cargoSvc, logger))
	router.RegisterCourierRoutes(httpapi.NewCourierHandler(courierSvc, logger))
	router.RegisterAlertRoutes(httpapi.NewAlertHandler(alertSvc, logger))
	router.RegisterLedgerRoutes(httpapi.NewLedgerHandler(ledgerRepo, logger))
	router.RegisterWSRoutes(fanout.NewWSHandler(hub, logger))
	router.RegisterHealthRoutes(func() error {
		if err := db.Ping(); err != nil {
			return fmt.Errorf("database unavailable: %w", err)
		}
		return nil
	})

	return &Server{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		mqttClient:   mqttClient,
		logger:       logger,
		hub:          hub,
		mirror:       mirror,
		pipeline:     pipe,
		mqttConsumer: consumer,
		httpServer: &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: router,
		},
	}, nil
}

// Start 启动MQTT消费与HTTP服务（阻塞直到ctx取消或HTTP出错）
func (s *Server) Start(ctx context.Context) error {
	if err := s.mqttConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mqtt consumer: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTP.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("http server error: %w", err)
	}
}

// Stop 优雅关闭
func (s *Server) Stop() {
	s.logger.Info("Stopping server")

	s.mqttConsumer.Stop()
	s.mqttClient.Disconnect()
	if s.mirror != nil {
		s.mirror.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown http server", zap.Error(err))
	}

	if err := pkgredis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
}
