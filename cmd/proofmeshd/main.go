package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ProofMesh/internal/api"
	"ProofMesh/internal/config"
	"ProofMesh/internal/observability/metrics"
	"ProofMesh/internal/task"
	"ProofMesh/pkg/logger"
)

// main 是 ProofMesh 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Error("proofmeshd 运行失败", slog.Any("error", err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(config.PathFromEnv())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(true)
	}

	signer, err := newSigner(cfg.Signer)
	if err != nil {
		return err
	}

	chains, err := openChains(ctx, cfg)
	if err != nil {
		return err
	}
	if chains != nil {
		defer chains.Close()
	}

	issuer, err := newIssuer(cfg, signer, chains, m, cfg.Anchor.Fallback)
	if err != nil {
		return err
	}

	receipts, err := openReceiptRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer receipts.Close()

	jobStore, err := openJobStore(ctx, cfg)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		_ = jobStore.Close()
		return err
	}

	jobs := task.NewService(jobStore, queue, cfg.Storage.Jobs.Retries)
	defer func() {
		if err := jobs.Close(); err != nil {
			logger.L().Warn("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	// 链上锚定失败时由队列重试，重试耗尽后再用模拟锚定补签。
	worker, err := newIssuer(cfg, signer, chains, m, false)
	if err != nil {
		return err
	}
	procOpts := []task.ProcessorOption{
		task.WithWorkerCount(cfg.Queue.Workers),
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithAlertDispatcher(newAlerting(cfg.Alerting)),
	}
	if cfg.Anchor.Provider == "chain" && cfg.Anchor.Fallback {
		fallback, err := newIssuer(cfg, signer, nil, m, false)
		if err != nil {
			return err
		}
		procOpts = append(procOpts, task.WithRecoveryHandler(&task.ReissueRecovery{Executor: fallback}))
	}
	if m != nil {
		procOpts = append(procOpts, task.WithJobObserver(m))
	}
	processor := task.NewProcessor(worker, jobStore, receipts, queue, queue, procOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	serverOpts := []api.Option{
		api.WithReceiptRepository(receipts),
		api.WithJobService(jobs),
	}
	if chains != nil {
		serverOpts = append(serverOpts, api.WithChainInspector(chains))
	}
	if m != nil {
		serverOpts = append(serverOpts, api.WithMetrics(m))
	}
	server := api.NewServer(api.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MetricsPath:  cfg.Metrics.Path,
	}, issuer, serverOpts...)

	logger.Audit().Info("proofmeshd started",
		slog.String("addr", cfg.Server.Address),
		slog.String("signer", signer.Algorithm()),
		slog.String("anchor", cfg.Anchor.Provider),
		slog.String("receipts", cfg.Storage.Receipts.Driver),
		slog.String("queue", cfg.Queue.Driver),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig 读取配置文件；默认路径下不存在配置文件时使用内置默认值。
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultPath {
		logger.L().Warn("未找到配置文件，使用默认配置", slog.String("path", path))
		cfg = config.Default(filepath.Dir(path))
		return cfg, cfg.Validate()
	}
	return nil, err
}
