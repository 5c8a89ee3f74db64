package events

import (
	"context"
	"log/slog"
	"time"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/observability/alerting"
	"IntentWallet/internal/observability/metrics"
	"IntentWallet/internal/safe"
	"IntentWallet/internal/units"
	"IntentWallet/internal/wallet"
	"IntentWallet/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Provisioner 定义了处理器所需的钱包能力。
type Provisioner interface {
	Provision(ctx context.Context, agent wallet.AgentConfig, previousKind wallet.ProviderKind, previousLimit *units.Amount) (*wallet.Record, error)
	SetTokenLimit(ctx context.Context, agentID string, token common.Address, amount units.Amount) (*safe.LimitResult, error)
}

// Processor 从队列消费事件并交给 Provisioner。
type Processor struct {
	provisioner Provisioner
	consumer    Consumer
	producer    Producer
	workerCount int
	maxAttempts int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithMaxAttempts 设置可重试错误的最大尝试次数。
func WithMaxAttempts(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(provisioner Provisioner, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		provisioner: provisioner,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		maxAttempts: 5,
		logger:      logger.Named("events"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动事件处理循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.provisioner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "事件处理器未初始化")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理单条消息。返回 nil 表示消息已被消费（成功、已重投或已告警）。
func (p *Processor) Handle(ctx context.Context, payload []byte) error {
	event, err := Decode(payload)
	if err != nil {
		metrics.ObserveEvent("invalid")
		p.logger.Warn("丢弃无效事件", slog.Any("error", err))
		return nil
	}
	event.Attempts++

	if err := p.dispatch(ctx, event); err != nil {
		return p.handleFailure(ctx, event, err)
	}
	metrics.ObserveEvent("processed")
	p.logger.Debug("事件处理完成",
		slog.String("event_id", event.ID),
		slog.String("agent_id", event.Agent.ID),
		slog.String("type", string(event.Type)))
	return nil
}

func (p *Processor) dispatch(ctx context.Context, event Event) error {
	switch event.Type {
	case TypeTokenLimit:
		_, err := p.provisioner.SetTokenLimit(ctx, event.Agent.ID, *event.Token, *event.Amount)
		return err
	default:
		_, err := p.provisioner.Provision(ctx, event.Agent, event.PreviousKind, event.PreviousLimit)
		return err
	}
}

func (p *Processor) handleFailure(ctx context.Context, event Event, cause error) error {
	retryable := xerrors.RetryableError(cause)
	terminal := !retryable || event.Attempts >= p.maxAttempts

	logger.Audit().Warn("事件处理失败",
		slog.String("event_id", event.ID),
		slog.String("agent_id", event.Agent.ID),
		slog.String("type", string(event.Type)),
		slog.Bool("terminal", terminal),
		slog.String("error_code", string(xerrors.CodeOf(cause))),
		slog.Int("attempts", event.Attempts),
		slog.Int("max_attempts", p.maxAttempts),
		slog.Any("error", cause))

	if !terminal && p.producer != nil {
		body, err := event.Encode()
		if err == nil {
			err = p.producer.Publish(ctx, body)
		}
		if err == nil {
			metrics.ObserveEvent("retried")
			return nil
		}
		cause = xerrors.Wrap(CodeEventPublish, err, "事件重投失败", xerrors.WithMetadata("event_id", event.ID))
	}

	metrics.ObserveEvent("failed")
	stage := "terminal"
	switch {
	case !retryable:
		stage = "non_retryable"
	case event.Attempts < p.maxAttempts:
		stage = "republish"
	}
	p.emitAlert(ctx, event, cause, stage)
	return cause
}

func (p *Processor) emitAlert(ctx context.Context, event Event, cause error, stage string) {
	if p.alerter == nil {
		return
	}
	alert := alerting.FromError(cause, event.Agent.ID, stage)
	alert.EventID = event.ID
	alert.Attempts = event.Attempts
	alert.MaxAttempts = p.maxAttempts
	alert.OccurredAt = time.Now()
	if err := p.alerter.Notify(ctx, alert); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("event_id", event.ID),
			slog.String("stage", stage))
	}
}
