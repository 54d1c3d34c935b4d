package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/observability/alerting"
	"ProofMesh/internal/proofs"
	"ProofMesh/pkg/logger"
)

// Job outcomes reported to a JobObserver.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRecovered = "recovered"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

// Executor 定义了处理器所需的签发能力，*proofs.Builder 即满足该接口。
type Executor interface {
	Generate(ctx context.Context, in proofs.ProvenanceInput) (*proofs.ProofReceipt, error)
}

// ReceiptSaver 保存签发成功的回执。
type ReceiptSaver interface {
	Save(ctx context.Context, receipt *proofs.ProofReceipt) error
}

// JobObserver 接收任务处理结果，用于指标统计。
type JobObserver interface {
	JobFinished(outcome string)
}

// Processor 负责从队列消费任务，签发回执并写入回执仓库。
type Processor struct {
	executor    Executor
	store       Store
	receipts    ReceiptSaver
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	observer    JobObserver

	// unmarked 记录已保存但未能标记成功的回执，重投时直接复用，避免同一任务签发两份回执。
	mu       sync.Mutex
	unmarked map[string]*proofs.ProofReceipt
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定调试日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
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

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithJobObserver 配置任务结果观察者。
func WithJobObserver(observer JobObserver) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

// NewProcessor 构造 Processor。receipts 为 nil 时回执只记录 ID 不落库。
func NewProcessor(executor Executor, store Store, receipts ReceiptSaver, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		receipts:    receipts,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		unmarked:    make(map[string]*proofs.ProofReceipt),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) || stdErrors.Is(err, ErrJobConflict) {
			if !stdErrors.Is(err, ErrJobConflict) {
				p.takeUnmarked(jobID)
			}
			p.logDebug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, CodeJobProcessing, err, "claim")
		return err
	}

	if receipt := p.takeUnmarked(job.ID); receipt != nil {
		p.logDebug("复用已保存的回执", slog.String("job_id", job.ID), slog.String("proof_id", receipt.ProofID))
		return p.complete(ctx, job, receipt, OutcomeSucceeded)
	}

	receipt, execErr := p.executor.Generate(ctx, job.Input)
	if execErr == nil {
		execErr = p.saveReceipt(ctx, receipt)
	}
	if execErr != nil {
		return p.handleExecutionFailure(ctx, job, execErr)
	}
	return p.complete(ctx, job, receipt, OutcomeSucceeded)
}

func (p *Processor) rememberUnmarked(jobID string, receipt *proofs.ProofReceipt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unmarked[jobID] = receipt
}

func (p *Processor) takeUnmarked(jobID string) *proofs.ProofReceipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	receipt, ok := p.unmarked[jobID]
	if ok {
		delete(p.unmarked, jobID)
	}
	return receipt
}

func (p *Processor) saveReceipt(ctx context.Context, receipt *proofs.ProofReceipt) error {
	if p.receipts == nil || receipt == nil {
		return nil
	}
	return p.receipts.Save(ctx, receipt)
}

func (p *Processor) complete(ctx context.Context, job *Job, receipt *proofs.ProofReceipt, outcome string) error {
	if err := p.store.MarkSucceeded(ctx, job.ID, receipt.ProofID); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		p.rememberUnmarked(job.ID, receipt)
		if storeErr := p.store.MarkFailed(ctx, job.ID, CodeJobProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 在标记成功失败后重投失败", job.ID))
		}
		p.observe(OutcomeRetry)
		return nil
	}
	logger.Audit().Info("proof issued",
		slog.String("job_id", job.ID),
		slog.String("proof_id", receipt.ProofID),
		slog.String("input_hash", receipt.InputHash),
		slog.String("generator", receipt.Metadata.Generator),
		slog.String("file_id", receipt.Anchor.FileID),
		slog.String("outcome", outcome),
	)
	p.observe(outcome)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	exhausted := job.Attempts >= job.MaxRetries
	terminal := exhausted || !retryable

	if terminal && p.recovery != nil {
		fallback, recErr := p.recovery.Recover(ctx, job, execErr)
		if recErr == nil && fallback != nil {
			recErr = p.saveReceipt(ctx, fallback)
		}
		switch {
		case recErr != nil:
			wrapped := xerrors.Wrap(CodeJobCompensate, recErr, "任务补偿失败")
			logger.L().Error("执行补偿逻辑失败", slog.Any("error", wrapped), slog.String("job_id", job.ID))
			p.emitAlert(ctx, job, CodeJobCompensate, wrapped, "compensate")
		case fallback != nil:
			logger.Audit().Warn("任务降级完成",
				slog.String("job_id", job.ID),
				slog.String("proof_id", fallback.ProofID),
				slog.String("cause", execErr.Error()),
			)
			p.emitAlert(ctx, job, code, execErr, "degraded")
			return p.complete(ctx, job, fallback, OutcomeRecovered)
		}
	}

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
		return storeErr
	}
	logger.Audit().Warn("job failed",
		slog.String("job_id", job.ID),
		slog.String("generator", job.Input.Generator),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	if !terminal {
		p.observe(OutcomeRetry)
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", job.ID))
		}
		p.logDebug("任务已重新排队", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
		return nil
	}

	p.observe(OutcomeFailed)
	if exhausted {
		p.emitAlert(ctx, job, CodeJobExhausted, execErr, "exhausted")
	} else if xerrors.ShouldAlert(execErr) {
		p.emitAlert(ctx, job, code, execErr, "non_retryable")
	}
	return nil
}

func (p *Processor) observe(outcome string) {
	if p.observer != nil {
		p.observer.JobFinished(outcome)
	}
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.Lookup(code)
	message := attrs.Message
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		message = cause.Error()
		metadata["cause"] = cause.Error()
	}
	if job.Input.Generator != "" {
		metadata["generator"] = job.Input.Generator
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		JobID:      job.ID,
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
