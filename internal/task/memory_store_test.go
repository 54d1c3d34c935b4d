package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
)

func sampleInput(generator string) proofs.ProvenanceInput {
	return proofs.ProvenanceInput{
		ContentHash: "sha256:" + generator,
		Generator:   generator,
		Prompt:      "a lighthouse at dusk",
	}
}

func newTestMemoryStore(start time.Time) (*MemoryStore, *time.Time) {
	store := NewMemoryStore()
	clock := start
	store.now = func() time.Time { return clock }
	return store, &clock
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Unix(1700000000, 0))

	require.NoError(t, store.Create(ctx, &Job{ID: "job-1", Input: sampleInput("Human"), Status: StatusPending, MaxRetries: 3}))
	assert.ErrorIs(t, store.Create(ctx, &Job{ID: "job-1", MaxRetries: 3}), ErrJobConflict)

	job, err := store.Claim(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)

	_, err = store.Claim(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobConflict)

	require.NoError(t, store.MarkFailed(ctx, "job-1", proofs.CodeAnchorFailed, "ledger unavailable", false))
	job, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, string(proofs.CodeAnchorFailed), job.ErrorCode)
	assert.False(t, job.Terminal())

	job, err = store.Claim(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)
	assert.Empty(t, job.LastError)

	require.NoError(t, store.MarkSucceeded(ctx, "job-1", "proof-1"))
	job, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, job.Terminal())
	assert.Equal(t, "proof-1", job.ProofID)

	_, err = store.Claim(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobCompleted)

	_, err = store.Claim(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.MarkSucceeded(ctx, "missing", "p"), ErrJobNotFound)
}

func TestMemoryStoreExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Unix(1700000000, 0))
	require.NoError(t, store.Create(ctx, &Job{ID: "job-1", Input: sampleInput("Human"), Status: StatusPending, MaxRetries: 2}))

	for i := 0; i < 2; i++ {
		_, err := store.Claim(ctx, "job-1")
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(ctx, "job-1", proofs.CodeAnchorFailed, "timeout", false))
	}

	job, err := store.Claim(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobExhausted)
	require.NotNil(t, job)
	assert.True(t, job.Terminal())
}

func TestMemoryStoreTerminalFailureStopsRetries(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Unix(1700000000, 0))
	require.NoError(t, store.Create(ctx, &Job{ID: "job-1", Input: sampleInput("Human"), Status: StatusPending, MaxRetries: 5}))

	_, err := store.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, "job-1", proofs.CodeValidationFailed, "blank generator", true))

	job, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.MaxRetries)
	assert.True(t, job.Terminal())

	_, err = store.Claim(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobExhausted)
}

func TestMemoryStoreListAndStats(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Unix(1700000000, 0))

	generators := []string{"Human", "DALL-E 3", "Human", "Midjourney"}
	for i, gen := range generators {
		*clock = time.Unix(1700000000+int64(i)*10, 0)
		id := []string{"a", "b", "c", "d"}[i]
		require.NoError(t, store.Create(ctx, &Job{ID: id, Input: sampleInput(gen), Status: StatusPending, MaxRetries: 3}))
	}
	*clock = time.Unix(1700000100, 0)
	_, err := store.Claim(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, store.MarkSucceeded(ctx, "a", "proof-a"))

	jobs, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "d", jobs[1].ID)

	jobs, err = store.List(ctx, buildListOptions([]ListOption{WithGenerator("Human"), WithSortOrder(SortByUpdatedAsc)}))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "a", jobs[1].ID)

	jobs, err = store.List(ctx, buildListOptions([]ListOption{WithProofPresence(true)}))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "proof-a", jobs[0].ProofID)

	jobs, err = store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusPending), WithLimit(1), WithOffset(1)}))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "c", jobs[0].ID)

	jobs, err = store.List(ctx, buildListOptions([]ListOption{WithQuery("Midjourney")}))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "d", jobs[0].ID)

	jobs, err = store.List(ctx, ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	stats, err := store.Stats(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, JobStats{
		Total:           4,
		Pending:         3,
		Succeeded:       1,
		OldestUpdatedAt: 1700000010,
		NewestUpdatedAt: 1700000100,
	}, stats)
}

func TestMemoryStoreRejectsInvalidJobs(t *testing.T) {
	store := NewMemoryStore()
	err := store.Create(context.Background(), nil)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	err = store.Create(context.Background(), &Job{ID: "  "})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}
