package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker offline") }
func (failingProducer) Close() error                          { return nil }

func TestServiceSubmitQueuesJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue, 0)

	job, err := service.Submit(ctx, SubmitRequest{Input: sampleInput("Human")})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, 1, queue.Len())

	stored, err := service.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Human", stored.Input.Generator)
}

func TestServiceSubmitIsIdempotentForExplicitID(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue(4)
	service := NewService(NewMemoryStore(), queue, 2)

	first, err := service.Submit(ctx, SubmitRequest{ID: "job-fixed", Input: sampleInput("Human")})
	require.NoError(t, err)
	second, err := service.Submit(ctx, SubmitRequest{ID: "job-fixed", Input: sampleInput("DALL-E 3")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Human", second.Input.Generator)
	assert.Equal(t, 1, queue.Len())
}

func TestServiceSubmitRejectsOversizedID(t *testing.T) {
	queue := NewMemoryQueue(4)
	service := NewService(NewMemoryStore(), queue, 3)

	_, err := service.Submit(context.Background(), SubmitRequest{ID: strings.Repeat("j", MaxJobIDLength+1), Input: sampleInput("Human")})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	assert.Equal(t, 0, queue.Len())

	job, err := service.Submit(context.Background(), SubmitRequest{ID: strings.Repeat("j", MaxJobIDLength), Input: sampleInput("Human")})
	require.NoError(t, err)
	assert.Len(t, job.ID, MaxJobIDLength)
}

func TestServiceSubmitRejectsBlankInput(t *testing.T) {
	queue := NewMemoryQueue(4)
	service := NewService(NewMemoryStore(), queue, 3)

	_, err := service.Submit(context.Background(), SubmitRequest{Input: proofs.ProvenanceInput{Generator: "Human"}})
	require.Error(t, err)
	assert.True(t, proofs.IsValidationError(err))
	assert.Equal(t, proofs.CodeValidationFailed, xerrors.CodeOf(err))
	assert.Zero(t, queue.Len())
}

func TestServiceSubmitPublishFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	service := NewService(store, failingProducer{}, 3)

	_, err := service.Submit(ctx, SubmitRequest{ID: "job-1", Input: sampleInput("Human")})
	require.Error(t, err)
	assert.Equal(t, CodeJobPublish, xerrors.CodeOf(err))

	job, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, string(CodeJobPublish), job.ErrorCode)
	assert.True(t, job.Terminal())
}

func TestServiceWaitUntilCompletedTimesOut(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)
	job, err := service.Submit(context.Background(), SubmitRequest{Input: sampleInput("Human")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = service.WaitUntilCompleted(ctx, job.ID, 5*time.Millisecond)
	assert.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))
}

func TestServiceUninitialised(t *testing.T) {
	service := NewService(nil, nil, 3)
	_, err := service.Submit(context.Background(), SubmitRequest{Input: sampleInput("Human")})
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
	_, err = service.Get(context.Background(), "x")
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
	assert.NoError(t, service.Close())
}
