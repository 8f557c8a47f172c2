// =============================================================================
// AgentOS Studio 主入口
// =============================================================================
// 完整服务入口点，包含 HTTP API、执行事件推送、健康检查、Prometheus 指标
//
// 使用方法:
//
//	agentos serve                              # 启动服务
//	agentos serve --config config.yaml         # 指定配置文件
//	agentos run --file flow.yaml --input '{}'  # 本地执行一个工作流定义
//	agentos validate --file flow.yaml          # 校验工作流定义
//	agentos version                            # 显示版本信息
//	agentos health                             # 健康检查
// =============================================================================

// @title AgentOS Studio API
// @version 1.0.0
// @description AgentOS Studio builds visual agent workflows and executes them in dependency order.
// @description
// @description ## Features
// @description - Workflow graph editing (nodes, edges, connection rules)
// @description - Deterministic execution with per-node results and metrics
// @description - Next-node suggestions and connection assistance
// @description - Live execution events over WebSocket

// @contact.name AgentOS Studio Team

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentos/studio/config"
	"github.com/agentos/studio/internal/tokenizer"
	"github.com/agentos/studio/workflow"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.Command {
	// 每个子命令持有独立的 flag 实例
	configFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to config file",
			Sources: cli.EnvVars("AGENTOS_CONFIG"),
		}
	}
	fileFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    "Workflow definition file (.json or .yaml)",
			Required: true,
		}
	}

	return &cli.Command{
		Name:    "agentos",
		Usage:   "AgentOS Studio workflow orchestrator",
		Version: Version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API server",
				Flags:  []cli.Flag{configFlag()},
				Action: runServe,
			},
			{
				Name:  "run",
				Usage: "Execute a workflow definition once and print the execution record",
				Flags: []cli.Flag{
					configFlag(),
					fileFlag(),
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Initial input (JSON, or a plain string)",
					},
				},
				Action: runWorkflow,
			},
			{
				Name:   "validate",
				Usage:  "Validate a workflow definition",
				Flags:  []cli.Flag{fileFlag()},
				Action: runValidate,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(_ context.Context, _ *cli.Command) error {
					printVersion()
					return nil
				},
			},
			{
				Name:  "health",
				Usage: "Check the health of a running server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Server address",
						Value: "http://localhost:8080",
					},
				},
				Action: runHealthCheck,
			},
		},
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting AgentOS Studio",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := NewServer(cfg, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	return nil
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runWorkflow(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	def, err := workflow.LoadDefinitionFile(cmd.String("file"))
	if err != nil {
		return err
	}
	g, err := def.BuildGraph()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, err := newExecutor(cfg.Executor, logger, tokenizer.New(cfg.Executor.TokenEncoding, logger))
	if err != nil {
		return err
	}
	rec, runErr := exec.Execute(ctx, g, parseInput(cmd.String("input")))
	if rec != nil {
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("encode execution record: %w", err)
		}
		fmt.Println(string(out))
	}
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("workflow %q failed: %v", g.Name(), runErr), 2)
	}
	return nil
}

// parseInput 优先按 JSON 解析，失败时作为普通字符串
func parseInput(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func runValidate(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	def, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return err
	}
	g, err := def.BuildGraph()
	if err != nil {
		return err
	}

	entries := g.EntryNodes()
	if len(entries) == 0 {
		return &workflow.StructuralError{WorkflowID: g.ID(), Reason: "no entry point"}
	}
	ids := make([]string, 0, len(entries))
	for _, n := range entries {
		ids = append(ids, n.ID)
	}
	fmt.Printf("%s: OK (%d nodes, %d edges, entry: %s)\n",
		path, g.Len(), len(g.Edges()), strings.Join(ids, ", "))
	return nil
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

func runHealthCheck(ctx context.Context, cmd *cli.Command) error {
	addr := strings.TrimSuffix(cmd.String("addr"), "/")

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Println("OK")
	return nil
}

// =============================================================================
// 📋 version 命令
// =============================================================================

func printVersion() {
	fmt.Printf("AgentOS Studio %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: true,
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

// newExecutor 按执行器配置组装工作流执行器
func newExecutor(cfg config.ExecutorConfig, logger *zap.Logger, counter workflow.TokenCounter, extra ...workflow.ExecutorOption) (*workflow.Executor, error) {
	policy, err := workflow.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}
	opts := []workflow.ExecutorOption{
		workflow.WithLogger(logger),
		workflow.WithStrategies(workflow.DefaultStrategies(counter)),
		workflow.WithFailurePolicy(policy),
		workflow.WithRunTimeout(cfg.RunTimeout),
	}
	if cfg.DecisionBranching {
		opts = append(opts, workflow.WithDecisionBranching())
	}
	return workflow.NewExecutor(append(opts, extra...)...), nil
}

// exitCode 取 cli.Exit 指定的退出码，其他错误为 1
func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	if err != nil {
		return 1
	}
	return 0
}
