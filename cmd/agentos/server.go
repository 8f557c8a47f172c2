package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentos/studio/api/handlers"
	"github.com/agentos/studio/config"
	"github.com/agentos/studio/internal/database"
	"github.com/agentos/studio/internal/metrics"
	"github.com/agentos/studio/internal/server"
	"github.com/agentos/studio/internal/telemetry"
	"github.com/agentos/studio/internal/tokenizer"
	"github.com/agentos/studio/workflow"
	"github.com/agentos/studio/workflow/persistence"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentOS Studio 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 领域组件
	orchestrator *workflow.Orchestrator
	rawStore     workflow.RecordStore
	eventHub     *handlers.EventHub

	// Handlers
	healthHandler   *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler

	// 指标与遥测
	registry         *prometheus.Registry
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	poolStatsInterval time.Duration
}

// poolStatser 由 SQL 存储实现，用于上报连接池指标
type poolStatser interface {
	PoolStats() database.PoolStats
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:               cfg,
		logger:            logger,
		registry:          prometheus.NewRegistry(),
		poolStatsInterval: 15 * time.Second,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Run 初始化所有组件并阻塞运行，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		s.close(context.WithoutCancel(ctx))
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	s.httpManager = server.NewManager(s.apiHandler(ctx), server.APIConfig(s.cfg.Server), s.logger)
	s.metricsManager = server.NewManager(s.metricsHandler(), server.MetricsConfig(s.cfg.Server), s.logger)

	s.logger.Info("All servers starting",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store", s.cfg.Store.Type),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	g.Go(func() error { return s.metricsManager.Run(gctx) })
	g.Go(func() error {
		s.reportPoolStats(gctx)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// init 按依赖顺序创建遥测、指标、存储、执行器与 handlers
func (s *Server) init(ctx context.Context) error {
	// 1. 遥测
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	s.telemetry = providers

	// 2. 指标收集器
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollectorWithRegistry("agentos", s.registry, s.logger)

	// 3. 执行记录存储
	store, err := persistence.NewRecordStore(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init record store: %w", err)
	}
	s.rawStore = store
	records := metrics.InstrumentStore(store, storeBackend(s.cfg.Store.Type), s.metricsCollector)

	// 4. 事件推送与执行器
	s.eventHub = handlers.NewEventHub(s.logger, handlers.WithOriginPatterns(originHosts(s.cfg.Server.CORSAllowedOrigins)...))

	counter := tokenizer.New(s.cfg.Executor.TokenEncoding, s.logger)
	exec, err := newExecutor(s.cfg.Executor, s.logger, counter,
		workflow.WithTelemetry(providers.TracerProvider(), providers.MeterProvider()),
		workflow.WithObserver(workflow.MultiObserver{s.metricsCollector, s.eventHub}),
	)
	if err != nil {
		return fmt.Errorf("failed to init executor: %w", err)
	}
	s.orchestrator = workflow.NewOrchestrator(workflow.NewStore(s.logger), exec, records, s.logger)

	// 5. Handlers
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewRecordStoreCheck("record_store", records))
	s.workflowHandler = handlers.NewWorkflowHandler(s.orchestrator, s.logger)

	s.logger.Info("Server components initialized",
		zap.String("store", storeBackend(s.cfg.Store.Type)),
		zap.String("failure_policy", s.cfg.Executor.FailurePolicy),
		zap.String("tokenizer", counter.Name()),
		zap.Bool("telemetry_enabled", providers.Enabled()),
	)
	return nil
}

func storeBackend(t string) string {
	if t == "" {
		return string(persistence.StoreTypeMemory)
	}
	return t
}

// originHosts 将 CORS 来源转换为 websocket 的 host 匹配模式
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		} else if o != "" {
			hosts = append(hosts, o)
		}
	}
	return hosts
}

// =============================================================================
// 🌐 HTTP 路由与中间件
// =============================================================================

// apiHandler 挂载全部路由并构建中间件链，ctx 控制限流器清理协程的生命周期
func (s *Server) apiHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	s.healthHandler.Register(mux, Version, BuildTime, GitCommit)
	s.workflowHandler.Register(mux)
	mux.HandleFunc("GET /api/v1/events", s.eventHub.HandleEvents)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	sc := s.cfg.Server

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
	}
	if s.telemetry.Enabled() {
		chain = append(chain, OTelTracing())
	}
	chain = append(chain,
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(sc.CORSAllowedOrigins),
		MaxBody(sc.MaxRequestBodyBytes),
	)

	auth := s.cfg.Auth
	if len(auth.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(auth.APIKeys, skipAuthPaths, auth.AllowQueryAPIKey, s.logger))
	}
	if auth.JWTSecret != "" {
		// JWT 携带租户时按租户限流
		chain = append(chain,
			JWTAuth(auth, skipAuthPaths, s.logger),
			TenantRateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger),
		)
	} else if sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
	}

	return Chain(mux, chain...)
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return mux
}

// reportPoolStats 定期上报 SQL 连接池使用情况，非 SQL 存储直接返回
func (s *Server) reportPoolStats(ctx context.Context) {
	ps, ok := s.rawStore.(poolStatser)
	if !ok {
		return
	}
	ticker := time.NewTicker(s.poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := ps.PoolStats()
			s.metricsCollector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
		}
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// close 释放 HTTP 服务器之外的资源（服务器由 Manager.Run 自行关闭）
func (s *Server) close(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 1. 断开事件订阅者
	if s.eventHub != nil {
		s.eventHub.Close()
	}

	// 2. 关闭执行记录存储
	if s.rawStore != nil {
		if err := s.rawStore.Close(); err != nil {
			s.logger.Error("Record store close error", zap.Error(err))
		}
	}

	// 3. 刷新遥测数据
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
