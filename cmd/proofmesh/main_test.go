package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProofMesh/internal/api"
	"ProofMesh/internal/proofs"
	mysqlstore "ProofMesh/internal/storage/mysql"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGenerateExampleWithProgress(t *testing.T) {
	stdout, stderr, err := execute(t, "", "generate", "--example", "--progress")
	require.NoError(t, err)

	require.NoError(t, proofs.ValidateReceiptJSON([]byte(stdout)))
	assert.Contains(t, stdout, "\n  \"proofId\"")
	for _, stage := range progressStages {
		assert.Contains(t, stderr, stage)
	}
	assert.Len(t, strings.Split(strings.TrimSpace(stderr), "\n"), 6)
}

func TestGenerateRejectsBlankGenerator(t *testing.T) {
	_, _, err := execute(t, "", "generate", "--content-hash", "abc")
	require.Error(t, err)
	assert.True(t, proofs.IsValidationError(err))
}

func TestVerifyRoundTrip(t *testing.T) {
	receipt, _, err := execute(t, "", "generate", "--content-hash", "abc", "--generator", "Human", "--prompt", "sketch")
	require.NoError(t, err)

	stdout, _, err := execute(t, receipt, "verify", "--content-hash", "abc", "--generator", "Human", "--prompt", "sketch")
	require.NoError(t, err)
	var result proofs.VerificationResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.True(t, result.Verified)

	_, _, err = execute(t, receipt, "verify", "--content-hash", "abd", "--generator", "Human", "--prompt", "sketch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), proofs.ReasonInputHashMismatch)
}

func TestVerifyRejectsMalformedReceipt(t *testing.T) {
	_, _, err := execute(t, `{"status":"success"}`, "verify", "--content-hash", "abc", "--generator", "Human")
	require.Error(t, err)
}

func TestRemoteGenerateAndList(t *testing.T) {
	repo, err := mysqlstore.NewMemoryReceiptRepository("")
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewServer(api.Config{}, proofs.NewBuilder(), api.WithReceiptRepository(repo)).Handler())
	t.Cleanup(srv.Close)

	receipt, _, err := execute(t, "", "generate", "--server", srv.URL, "--content-hash", "abc", "--generator", "Midjourney")
	require.NoError(t, err)
	var issued proofs.ProofReceipt
	require.NoError(t, json.Unmarshal([]byte(receipt), &issued))

	table, _, err := execute(t, "", "list", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, table, issued.ProofID)
	assert.Contains(t, table, "Midjourney")

	lineage, _, err := execute(t, "", "lineage", "--server", srv.URL, issued.ProofID)
	require.NoError(t, err)
	assert.Contains(t, lineage, issued.ProofID)
}

func TestListRequiresServer(t *testing.T) {
	_, _, err := execute(t, "", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--server")
}
