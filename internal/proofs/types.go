package proofs

// Receipt statuses. StatusFail is reserved for error receipts; the builder
// only ever issues StatusSuccess.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Constants stamped into every receipt. Changing a salt or the signature
// marker changes the digest chain and must come with a new HashingSchema or
// ProofMeshVersion.
const (
	ProofType        = "ProofStamp-Provenance"
	AgentID          = "proof-layer-agent-v1.1.0"
	ProofMeshVersion = "1.0.0-alpha"
	HashingSchema    = "SHA-256"

	ContentLeafSalt   = "leaf-1-salt:"
	GeneratorLeafSalt = "leaf-2-salt:"
	MockSignatureMark = "agent-private-key-signed:"
)

// Verification reasons.
const (
	ReasonOK                 = "ok"
	ReasonInputHashMismatch  = "input_hash_mismatch"
	ReasonRootMismatch       = "root_mismatch"
	ReasonLeafMismatch       = "leaf_mismatch"
	ReasonMetadataMismatch   = "metadata_mismatch"
	ReasonSignatureInvalid   = "signature_invalid"
	ReasonUnsupportedStatus  = "unsupported_status"
	ReasonUnsupportedProof   = "unsupported_proof_type"
	ReasonAnchorInconsistent = "anchor_inconsistent"
)

// ProvenanceInput is the caller-supplied claim about a piece of content.
// ContentHash and Generator are required; Prompt and ParentProofID are
// optional and only take part in the digest chain when non-empty.
//
// ParentProofID is an opaque reference to an earlier receipt's ProofID.
// Nothing in this package checks that the referenced receipt exists.
type ProvenanceInput struct {
	ContentHash   string `json:"contentHash"`
	Generator     string `json:"generator"`
	Prompt        string `json:"prompt,omitempty"`
	ParentProofID string `json:"parentProofId,omitempty"`
}

// ProofStructure is the digest chain over the canonical input.
type ProofStructure struct {
	Type      string    `json:"type"`
	Root      string    `json:"root"`
	Leaves    [2]string `json:"leaves"`
	Signature string    `json:"signature"`
}

// AnchorRecord is what an AnchorProvider returns for a submitted digest.
// ContractAnchorTxID is only set by chain-backed providers.
type AnchorRecord struct {
	FileID             string `json:"fileId"`
	HcsTxID            string `json:"hcsTxId"`
	ConsensusTimestamp string `json:"consensusTimestamp"`
	ContractAnchorTxID string `json:"contractAnchorTxId,omitempty"`
}

// VerificationResult reports whether a receipt checks out.
type VerificationResult struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

// ReceiptMetadata echoes the generator context and the versions used.
type ReceiptMetadata struct {
	AgentID          string `json:"agentId"`
	ProofMeshVersion string `json:"proofMeshVersion"`
	HashingSchema    string `json:"hashingSchema"`
	Generator        string `json:"generator"`
	Prompt           string `json:"prompt,omitempty"`
	ParentProofID    string `json:"parentProofId,omitempty"`
}

// ProofReceipt is the complete evidence object returned to the caller.
// Proof.Root always equals InputHash.
type ProofReceipt struct {
	Status       string             `json:"status"`
	ProofID      string             `json:"proofId"`
	InputHash    string             `json:"inputHash"`
	Proof        ProofStructure     `json:"proof"`
	Anchor       AnchorRecord       `json:"anchor"`
	Verification VerificationResult `json:"verification"`
	Metadata     ReceiptMetadata    `json:"metadata"`
}

// ExampleInput mirrors the sample claim offered by the web form.
func ExampleInput() ProvenanceInput {
	return ProvenanceInput{
		ContentHash: "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2",
		Generator:   "DALL-E 3",
		Prompt:      "A vibrant oil painting of a futuristic city skyline at dusk",
	}
}
