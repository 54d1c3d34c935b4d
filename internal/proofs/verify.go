package proofs

import (
	"fmt"
	"strings"
)

// Verify recomputes the digest chain of in and compares it with receipt.
// The first failing check decides the reason. Anchor contents are only
// checked for internal consistency, never against a ledger. An invalid in
// is returned as a ValidationError.
func Verify(receipt *ProofReceipt, in ProvenanceInput, signer Signer) (VerificationResult, error) {
	if receipt == nil {
		return VerificationResult{}, fmt.Errorf("verify: nil receipt")
	}
	if signer == nil {
		signer = MockSigner{}
	}
	canonical, err := Canonicalize(in)
	if err != nil {
		return VerificationResult{}, err
	}

	fail := func(reason string) (VerificationResult, error) {
		return VerificationResult{Verified: false, Reason: reason}, nil
	}

	if receipt.Status != StatusSuccess {
		return fail(ReasonUnsupportedStatus)
	}
	if receipt.Proof.Type != ProofType {
		return fail(ReasonUnsupportedProof)
	}
	inputHash := Digest(canonical)
	if receipt.InputHash != inputHash {
		return fail(ReasonInputHashMismatch)
	}
	if receipt.Proof.Root != receipt.InputHash {
		return fail(ReasonRootMismatch)
	}
	if receipt.Proof.Leaves != leavesFor(in) {
		return fail(ReasonLeafMismatch)
	}
	if receipt.Metadata != metadataFor(in) {
		return fail(ReasonMetadataMismatch)
	}
	if a := receipt.Anchor; a.FileID == "" || !strings.HasPrefix(a.HcsTxID, a.FileID+"@") {
		return fail(ReasonAnchorInconsistent)
	}
	ok, err := signer.Verify([]byte(inputHash), receipt.Proof.Signature, signer.PublicKey())
	if err != nil {
		return VerificationResult{}, fmt.Errorf("verify signature: %w", err)
	}
	if !ok {
		return fail(ReasonSignatureInvalid)
	}
	return VerificationResult{Verified: true, Reason: ReasonOK}, nil
}
