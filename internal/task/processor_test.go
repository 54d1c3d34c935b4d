package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/observability/alerting"
	"ProofMesh/internal/proofs"
	mysqlstore "ProofMesh/internal/storage/mysql"
)

type countingExecutor struct {
	inner     Executor
	processed atomic.Int32
	latency   time.Duration
}

func (c *countingExecutor) Generate(ctx context.Context, in proofs.ProvenanceInput) (*proofs.ProofReceipt, error) {
	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	receipt, err := c.inner.Generate(ctx, in)
	c.processed.Add(1)
	return receipt, err
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) snapshot() []alerting.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerting.Event(nil), r.events...)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) JobFinished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func failingAnchorBuilder() *proofs.Builder {
	return proofs.NewBuilder(proofs.WithAnchorProvider(proofs.AnchorFunc(func(context.Context, string) (proofs.AnchorRecord, error) {
		return proofs.AnchorRecord{}, errors.New("mirror node unreachable")
	})))
}

type processorFixture struct {
	store    *MemoryStore
	queue    *MemoryQueue
	receipts *mysqlstore.MemoryReceiptRepository
	alerts   *recordingDispatcher
	observer *recordingObserver
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	receipts, err := mysqlstore.NewMemoryReceiptRepository("")
	require.NoError(t, err)
	return &processorFixture{
		store:    NewMemoryStore(),
		queue:    NewMemoryQueue(16),
		receipts: receipts,
		alerts:   &recordingDispatcher{},
		observer: &recordingObserver{},
	}
}

func (f *processorFixture) processor(executor Executor, opts ...ProcessorOption) *Processor {
	opts = append([]ProcessorOption{WithAlertDispatcher(f.alerts), WithJobObserver(f.observer)}, opts...)
	return NewProcessor(executor, f.store, f.receipts, f.queue, f.queue, opts...)
}

func (f *processorFixture) createJob(t *testing.T, id string, in proofs.ProvenanceInput, maxRetries int) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), &Job{ID: id, Input: in, Status: StatusPending, MaxRetries: maxRetries}))
}

func TestProcessorIssuesAndSavesReceipt(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.createJob(t, "job-1", sampleInput("Human"), 3)

	require.NoError(t, f.processor(proofs.NewBuilder()).handle(ctx, "job-1"))

	job, err := f.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, job.Status)
	require.NotEmpty(t, job.ProofID)

	receipt, err := f.receipts.Get(ctx, job.ProofID)
	require.NoError(t, err)
	assert.Equal(t, "Human", receipt.Metadata.Generator)
	assert.Equal(t, []string{OutcomeSucceeded}, f.observer.snapshot())
	assert.Empty(t, f.alerts.snapshot())
}

// flakyMarkStore fails the first MarkSucceeded calls.
type flakyMarkStore struct {
	*MemoryStore
	failures atomic.Int32
}

func (s *flakyMarkStore) MarkSucceeded(ctx context.Context, id, proofID string) error {
	if s.failures.Add(-1) >= 0 {
		return xerrors.New(xerrors.CodeStorageFailure, "write timeout")
	}
	return s.MemoryStore.MarkSucceeded(ctx, id, proofID)
}

func TestProcessorReusesSavedReceiptWhenMarkingFails(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.createJob(t, "job-1", sampleInput("Human"), 3)
	store := &flakyMarkStore{MemoryStore: f.store}
	store.failures.Store(1)
	executor := &countingExecutor{inner: proofs.NewBuilder()}
	processor := NewProcessor(executor, store, f.receipts, f.queue, f.queue, WithJobObserver(f.observer))

	require.NoError(t, processor.handle(ctx, "job-1"))
	require.Equal(t, 1, f.queue.Len())
	job, err := f.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)

	require.NoError(t, processor.handle(ctx, "job-1"))

	job, err = f.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, job.Status)
	assert.Equal(t, int32(1), executor.processed.Load())

	saved, err := f.receipts.List(ctx, mysqlstore.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, saved[0].ProofID, job.ProofID)
	assert.Equal(t, []string{OutcomeRetry, OutcomeSucceeded}, f.observer.snapshot())
}

func TestProcessorRequeuesRetryableAnchorFailure(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.createJob(t, "job-1", sampleInput("Human"), 3)

	require.NoError(t, f.processor(failingAnchorBuilder()).handle(ctx, "job-1"))

	job, err := f.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, string(proofs.CodeAnchorFailed), job.ErrorCode)
	assert.False(t, job.Terminal())
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, []string{OutcomeRetry}, f.observer.snapshot())
}

func TestProcessorAlertsWhenRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.createJob(t, "job-1", sampleInput("Human"), 2)
	processor := f.processor(failingAnchorBuilder())

	require.NoError(t, processor.handle(ctx, "job-1"))
	require.NoError(t, processor.handle(ctx, "job-1"))
	require.NoError(t, processor.handle(ctx, "job-1"))

	job, err := f.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, job.Terminal())
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, []string{OutcomeRetry, OutcomeFailed}, f.observer.snapshot())

	alerts := f.alerts.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, CodeJobExhausted, alerts[0].Code)
	assert.Equal(t, "job-1", alerts[0].JobID)
	assert.Equal(t, "exhausted", alerts[0].Metadata["stage"])
}

func TestProcessorValidationFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.createJob(t, "job-1", proofs.ProvenanceInput{ContentHash: "sha256:abc"}, 3)

	require.NoError(t, f.processor(proofs.NewBuilder()).handle(ctx, "job-1"))

	job, err := f.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, string(proofs.CodeValidationFailed), job.ErrorCode)
	assert.True(t, job.Terminal())
	assert.Zero(t, f.queue.Len())
	assert.Empty(t, f.alerts.snapshot())
}

func TestProcessorRecoversWithSimulatedAnchor(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.createJob(t, "job-1", sampleInput("DALL-E 3"), 1)

	recovery := &ReissueRecovery{Executor: proofs.NewBuilder()}
	require.NoError(t, f.processor(failingAnchorBuilder(), WithRecoveryHandler(recovery)).handle(ctx, "job-1"))

	job, err := f.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, job.Status)
	require.NotEmpty(t, job.ProofID)

	_, err = f.receipts.Get(ctx, job.ProofID)
	require.NoError(t, err)
	assert.Equal(t, []string{OutcomeRecovered}, f.observer.snapshot())

	alerts := f.alerts.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, proofs.CodeAnchorFailed, alerts[0].Code)
	assert.Equal(t, "degraded", alerts[0].Metadata["stage"])
}

func TestReissueRecoveryIgnoresOtherCodes(t *testing.T) {
	recovery := &ReissueRecovery{Executor: proofs.NewBuilder()}
	job := &Job{ID: "job-1", Input: sampleInput("Human")}

	receipt, err := recovery.Recover(context.Background(), job, xerrors.New(xerrors.CodeStorageFailure, "disk full"))
	assert.NoError(t, err)
	assert.Nil(t, receipt)

	receipt, err = recovery.Recover(context.Background(), job, xerrors.New(xerrors.CodeAnchorFailure, ""))
	require.NoError(t, err)
	require.NotNil(t, receipt)
}

func TestProcessorSkipsCompletedJobs(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.createJob(t, "job-1", sampleInput("Human"), 3)
	executor := &countingExecutor{inner: proofs.NewBuilder()}
	processor := f.processor(executor)

	require.NoError(t, processor.handle(ctx, "job-1"))
	require.NoError(t, processor.handle(ctx, "job-1"))
	require.NoError(t, processor.handle(ctx, "unknown"))
	assert.Equal(t, int32(1), executor.processed.Load())
}

func TestProcessorStartRequiresConsumer(t *testing.T) {
	processor := NewProcessor(proofs.NewBuilder(), NewMemoryStore(), nil, nil, nil)
	err := processor.Start(context.Background())
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f := newProcessorFixture(t)
	queue := NewMemoryQueue(1024)
	executor := &countingExecutor{inner: proofs.NewBuilder(), latency: 5 * time.Millisecond}

	service := NewService(f.store, queue, 3)
	processor := NewProcessor(executor, f.store, f.receipts, queue, queue, WithWorkerCount(8))

	done := make(chan error, 1)
	go func() { done <- processor.Start(ctx) }()

	total := 200
	for i := 0; i < total; i++ {
		in := proofs.ProvenanceInput{ContentHash: fmt.Sprintf("sha256:%04d", i), Generator: "Human"}
		_, err := service.Submit(ctx, SubmitRequest{Input: in})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		stats, err := f.store.Stats(ctx, ListOptions{})
		return err == nil && stats.Succeeded == total
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	err := <-done
	assert.True(t, err == nil || errors.Is(err, context.Canceled), "processor exited: %v", err)
	assert.Equal(t, int32(total), executor.processed.Load())

	receipts, err := f.receipts.List(context.Background(), mysqlstore.ListOptions{Limit: 200})
	require.NoError(t, err)
	assert.Len(t, receipts, total)
}
