package main

import (
	"context"
	"fmt"
	"time"

	"ProofMesh/internal/anchor"
	"ProofMesh/internal/config"
	"ProofMesh/internal/observability/alerting"
	"ProofMesh/internal/observability/metrics"
	"ProofMesh/internal/proofs"
	mysqlstore "ProofMesh/internal/storage/mysql"
	"ProofMesh/internal/task"
	"ProofMesh/internal/web3/provider"
)

func newSigner(cfg config.SignerConfig) (proofs.Signer, error) {
	signer, err := proofs.NewSigner(cfg.Algorithm, cfg.ResolveKey())
	if err != nil {
		return nil, fmt.Errorf("初始化签名器失败: %w", err)
	}
	return signer, nil
}

// openChains 仅在需要链上锚定或配置了链定义时连接区块链节点。
func openChains(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	if cfg.Anchor.Provider != "chain" && cfg.Web3.ChainConfig == "" {
		return nil, nil
	}
	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return nil, fmt.Errorf("初始化链客户端失败: %w", err)
	}
	return registry, nil
}

// newIssuer 构造签发器。chains 为 nil 或锚定方式为 simulated 时使用模拟锚定；
// fallback 为 true 时链上锚定失败会在同一次请求内退回模拟锚定。
func newIssuer(cfg *config.Config, signer proofs.Signer, chains *provider.Registry, m *metrics.Metrics, fallback bool) (*proofs.Builder, error) {
	opts := []proofs.Option{proofs.WithSigner(signer)}
	if m != nil {
		opts = append(opts, proofs.WithMetrics(m))
	}
	if cfg.Anchor.Provider != "chain" || chains == nil {
		return proofs.NewBuilder(opts...), nil
	}

	client, err := chains.DefaultClient()
	if err != nil {
		return nil, err
	}
	providers := []anchor.Named{{Name: client.Name(), Provider: anchor.NewChainProvider(client)}}
	if fallback {
		providers = append(providers, anchor.Named{Name: "simulated", Provider: proofs.NewSimulatedAnchorProvider()})
	}
	failoverOpts := []anchor.FailoverOption{anchor.WithTimeout(cfg.Anchor.Timeout())}
	if m != nil {
		failoverOpts = append(failoverOpts, anchor.WithAttemptObserver(m.AnchorAttempt))
	}
	failover, err := anchor.NewFailoverProvider(providers, failoverOpts...)
	if err != nil {
		return nil, err
	}
	return proofs.NewBuilder(append(opts, proofs.WithAnchorProvider(failover))...), nil
}

func databaseConfig(db config.DatabaseConfig, dsn string) mysqlstore.Config {
	return mysqlstore.Config{
		DSN:             dsn,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime(),
		ConnMaxIdleTime: db.ConnMaxIdleTime(),
	}
}

func openReceiptRepository(ctx context.Context, cfg *config.Config) (mysqlstore.ReceiptRepository, error) {
	switch cfg.Storage.Receipts.Driver {
	case "mysql":
		return mysqlstore.NewSQLReceiptRepository(ctx, databaseConfig(cfg.Storage.Receipts, cfg.Storage.Receipts.DSN))
	default:
		return mysqlstore.NewMemoryReceiptRepository(cfg.Runtime.DataDir)
	}
}

func openJobStore(ctx context.Context, cfg *config.Config) (task.Store, error) {
	switch cfg.Storage.Jobs.Driver {
	case "mysql":
		return task.NewMySQLStore(ctx, databaseConfig(cfg.Storage.Receipts, cfg.Storage.Jobs.DSN))
	default:
		return task.NewMemoryStore(), nil
	}
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return task.NewMemoryQueue(cfg.Buffer), nil
	}
}

func newAlerting(cfg config.AlertingConfig) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Log {
		notifiers = append(notifiers, &alerting.LogNotifier{})
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.WebhookURL, time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}
