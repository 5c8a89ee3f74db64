package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"IntentWallet/internal/app"
	"IntentWallet/internal/config"
	"IntentWallet/internal/events"
	"IntentWallet/internal/observability/alerting"
	"IntentWallet/internal/observability/metrics"
	"IntentWallet/pkg/logger"
)

// main 是钱包守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("walletd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("WALLETD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "walletd.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	queue, err := events.Open(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Error("关闭事件队列失败", slog.Any("error", err))
		}
	}()

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}

	processor := events.NewProcessor(a.Provisioner, queue, queue,
		events.WithWorkerCount(cfg.Queue.Worker),
		events.WithMaxAttempts(cfg.Queue.MaxAttempts),
		events.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)

	go func() {
		if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil {
			logger.L().Error("指标服务异常退出", slog.Any("error", err))
		}
	}()

	logger.L().Info("walletd 已启动",
		slog.String("queue", cfg.Queue.Driver),
		slog.String("store", cfg.Storage.WalletStore.Driver),
		slog.String("default_network", a.Chains.DefaultNetwork()))

	if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
