package proofs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	in := ProvenanceInput{ContentHash: "abc", Generator: "Human", Prompt: "p", ParentProofID: "parent"}
	issue := func(t *testing.T) *ProofReceipt {
		r, err := newTestBuilder(1).Generate(context.Background(), in)
		require.NoError(t, err)
		return r
	}

	cases := []struct {
		name   string
		mutate func(r *ProofReceipt, in *ProvenanceInput)
		reason string
	}{
		{"untouched", func(*ProofReceipt, *ProvenanceInput) {}, ReasonOK},
		{"fail status", func(r *ProofReceipt, _ *ProvenanceInput) { r.Status = StatusFail }, ReasonUnsupportedStatus},
		{"proof type", func(r *ProofReceipt, _ *ProvenanceInput) { r.Proof.Type = "Other" }, ReasonUnsupportedProof},
		{"different input", func(_ *ProofReceipt, in *ProvenanceInput) { in.Prompt = "q" }, ReasonInputHashMismatch},
		{"dropped prompt", func(_ *ProofReceipt, in *ProvenanceInput) { in.Prompt = "" }, ReasonInputHashMismatch},
		{"root", func(r *ProofReceipt, _ *ProvenanceInput) { r.Proof.Root = Digest("x") }, ReasonRootMismatch},
		{"leaf", func(r *ProofReceipt, _ *ProvenanceInput) { r.Proof.Leaves[1] = Digest("x") }, ReasonLeafMismatch},
		{"metadata", func(r *ProofReceipt, _ *ProvenanceInput) { r.Metadata.Generator = "Bot" }, ReasonMetadataMismatch},
		{"agent", func(r *ProofReceipt, _ *ProvenanceInput) { r.Metadata.AgentID = "other" }, ReasonMetadataMismatch},
		{"anchor", func(r *ProofReceipt, _ *ProvenanceInput) { r.Anchor.HcsTxID = "0.0.1@1" }, ReasonAnchorInconsistent},
		{"signature", func(r *ProofReceipt, _ *ProvenanceInput) { r.Proof.Signature = Digest("forged") }, ReasonSignatureInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := issue(t)
			input := in
			tc.mutate(r, &input)
			result, err := Verify(r, input, MockSigner{})
			require.NoError(t, err)
			assert.Equal(t, tc.reason, result.Reason)
			assert.Equal(t, tc.reason == ReasonOK, result.Verified)
		})
	}
}

func TestVerifyRejectsInvalidInput(t *testing.T) {
	r, err := newTestBuilder(1).Generate(context.Background(), ExampleInput())
	require.NoError(t, err)

	_, err = Verify(r, ProvenanceInput{ContentHash: "x"}, nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = Verify(nil, ExampleInput(), nil)
	assert.Error(t, err)
}

func TestVerifyWrongSigner(t *testing.T) {
	r, err := newTestBuilder(1).Generate(context.Background(), ExampleInput())
	require.NoError(t, err)
	secp, err := NewSecp256k1SignerFromHex(testSecpKey)
	require.NoError(t, err)

	result, err := Verify(r, ExampleInput(), secp)
	require.NoError(t, err)
	assert.Equal(t, ReasonSignatureInvalid, result.Reason)
}
