package task

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
)

var jobColumnNames = []string{
	"id", "content_hash", "generator", "prompt", "parent_proof_id", "status", "attempts", "max_retries",
	"proof_id", "last_error", "error_code", "created_at", "updated_at",
}

const fixedUnix = int64(1704164645)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewMySQLStoreWithDB(db)
	store.now = func() time.Time { return time.Unix(fixedUnix, 0) }
	return store, mock
}

func jobRow(id string, status Status, attempts, maxRetries int, proofID string) *sqlmock.Rows {
	return sqlmock.NewRows(jobColumnNames).AddRow(
		id, "sha256:abc", "Human", "prompt", "", string(status), attempts, maxRetries,
		proofID, "", "", fixedUnix, fixedUnix,
	)
}

func TestMySQLStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	job := &Job{ID: "job-1", Input: proofs.ProvenanceInput{ContentHash: "sha256:abc", Generator: "Human", ParentProofID: "p-0"}, Status: StatusPending, MaxRetries: 3}

	mock.ExpectExec("INSERT INTO proof_jobs").
		WithArgs("job-1", "sha256:abc", "Human", proofs.Digest("Human"), "", "p-0", "pending", 0, 3, fixedUnix, fixedUnix).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), job))
	assert.Equal(t, fixedUnix, job.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreCreateKeepsLongProvenanceText(t *testing.T) {
	store, mock := newMockStore(t)
	generator := strings.Repeat("model-", 200)
	parent := strings.Repeat("parent/", 150)
	job := &Job{ID: "job-long", Input: proofs.ProvenanceInput{ContentHash: "abc", Generator: generator, ParentProofID: parent}, Status: StatusPending, MaxRetries: 3}

	mock.ExpectExec("INSERT INTO proof_jobs").
		WithArgs("job-long", "abc", generator, proofs.Digest(generator), "", parent, "pending", 0, 3, fixedUnix, fixedUnix).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreCreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO proof_jobs").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	err := store.Create(context.Background(), &Job{ID: "job-1", Status: StatusPending, MaxRetries: 3})
	assert.ErrorIs(t, err, ErrJobConflict)

	mock.ExpectExec("INSERT INTO proof_jobs").WillReturnError(errors.New("connection reset"))
	err = store.Create(context.Background(), &Job{ID: "job-2", Status: StatusPending, MaxRetries: 3})
	assert.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM proof_jobs WHERE id = \\?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobColumnNames))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreClaim(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE proof_jobs SET status = ?, attempts = attempts + 1")).
		WithArgs("running", fixedUnix, "job-1", "pending", "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM proof_jobs WHERE id = \\?").
		WithArgs("job-1").
		WillReturnRows(jobRow("job-1", StatusRunning, 1, 3, ""))

	job, err := store.Claim(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "Human", job.Input.Generator)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreClaimRejections(t *testing.T) {
	cases := []struct {
		name     string
		row      *sqlmock.Rows
		expected error
	}{
		{"completed", jobRow("job-1", StatusSucceeded, 1, 3, "proof-1"), ErrJobCompleted},
		{"running", jobRow("job-1", StatusRunning, 1, 3, ""), ErrJobConflict},
		{"exhausted", jobRow("job-1", StatusFailed, 3, 3, ""), ErrJobExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec("UPDATE proof_jobs SET status").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT .* FROM proof_jobs").WillReturnRows(tc.row)

			_, err := store.Claim(context.Background(), "job-1")
			assert.ErrorIs(t, err, tc.expected)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMySQLStoreMarkFailedTerminal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("max_retries = attempts WHERE id = ?")).
		WithArgs("failed", "blank generator", string(proofs.CodeValidationFailed), fixedUnix, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.MarkFailed(context.Background(), "job-1", proofs.CodeValidationFailed, "blank generator", true))

	mock.ExpectExec(regexp.QuoteMeta("updated_at = ? WHERE id = ?")).
		WithArgs("failed", "timeout", string(proofs.CodeAnchorFailed), fixedUnix, "job-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.MarkFailed(context.Background(), "job-2", proofs.CodeAnchorFailed, "timeout", false)
	assert.ErrorIs(t, err, ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreMarkSucceeded(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE proof_jobs SET status = ?, proof_id = ?")).
		WithArgs("succeeded", "proof-1", fixedUnix, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkSucceeded(context.Background(), "job-1", "proof-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreListFilters(t *testing.T) {
	store, mock := newMockStore(t)
	opts := buildListOptions([]ListOption{
		WithStatuses(StatusFailed, StatusPending),
		WithGenerator("Human"),
		WithProofPresence(false),
		WithLimit(5),
		WithOffset(10),
		WithSortOrder(SortByUpdatedAsc),
	})

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN (?,?) AND proof_id = '' AND generator_hash = ? AND generator = ? ORDER BY updated_at ASC, created_at ASC, id ASC LIMIT ? OFFSET ?")).
		WithArgs("failed", "pending", proofs.Digest("Human"), "Human", 5, 10).
		WillReturnRows(jobRow("job-1", StatusFailed, 1, 3, ""))

	jobs, err := store.List(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusFailed, jobs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT\\s+COUNT\\(\\*\\) AS total").
		WithArgs("pending", "running", "succeeded", "failed", "%job%", "%job%", "%job%", "%job%", "%job%").
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "running", "succeeded", "failed", "oldest", "newest"}).
			AddRow(5, 1, 1, 2, 1, fixedUnix-60, fixedUnix))

	stats, err := store.Stats(context.Background(), ListOptions{Query: "job"})
	require.NoError(t, err)
	assert.Equal(t, JobStats{Total: 5, Pending: 1, Running: 1, Succeeded: 2, Failed: 1, OldestUpdatedAt: fixedUnix - 60, NewestUpdatedAt: fixedUnix}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
