package mysql

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationFilesOrdersAndSplits(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte("CREATE TABLE b (id INT);\nCREATE INDEX idx_b ON b (id);")},
		"0001_first.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
		"0003_empty.sql":  {Data: []byte("  ;\n ")},
		"README.md":       {Data: []byte("ignored")},
	}

	files, err := loadMigrationFiles(fsys)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "0001", files[0].version)
	assert.Equal(t, "0002", files[1].version)
	assert.Equal(t, []string{"CREATE TABLE b (id INT)", "CREATE INDEX idx_b ON b (id)"}, files[1].statements)
}

func TestEmbeddedMigrationsCoverReceiptsAndJobs(t *testing.T) {
	files, err := loadMigrationFiles(embeddedMigrations)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Contains(t, files[0].statements[0], "proof_receipts")
	assert.Contains(t, files[1].statements[0], "proof_jobs")

	// generator and parentProofId are unbounded; generator filters use a hash index.
	widened := files[2]
	assert.Equal(t, "0003", widened.version)
	require.Len(t, widened.statements, 4)
	for _, stmt := range []string{widened.statements[0], widened.statements[2]} {
		assert.Contains(t, stmt, "MODIFY generator TEXT NOT NULL")
		assert.Contains(t, stmt, "MODIFY parent_proof_id TEXT NOT NULL")
		assert.Contains(t, stmt, "generator_hash CHAR(64)")
	}
	assert.Contains(t, widened.statements[1], "SHA2(generator, 256)")
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS proof_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("0002", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE proof_receipts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE proof_receipts SET generator_hash").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE proof_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE proof_jobs SET generator_hash").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("0003", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS proof_receipts").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_proof_receipts.sql")
	require.NoError(t, mock.ExpectationsWereMet())
}
