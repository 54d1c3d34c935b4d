package proofs

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/pkg/logger"
)

// Observer receives builder events. The metrics package provides the
// Prometheus implementation.
type Observer interface {
	ProofIssued(generator string)
	ValidationFailed()
	AnchorCompleted(d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ProofIssued(string)                   {}
func (noopObserver) ValidationFailed()                    {}
func (noopObserver) AnchorCompleted(time.Duration, error) {}

// Builder issues ProofReceipts. A Builder holds no mutable state and is safe
// for concurrent use as long as its random source is.
type Builder struct {
	signer   Signer
	anchor   AnchorProvider
	random   io.Reader
	now      func() time.Time
	log      *slog.Logger
	observer Observer
}

// Option configures a Builder.
type Option func(*Builder)

// WithSigner replaces the default MockSigner.
func WithSigner(s Signer) Option {
	return func(b *Builder) {
		if s != nil {
			b.signer = s
		}
	}
}

// WithAnchorProvider replaces the simulated anchor.
func WithAnchorProvider(p AnchorProvider) Option {
	return func(b *Builder) {
		if p != nil {
			b.anchor = p
		}
	}
}

// WithRandomSource sets the source for proof ids and, when no anchor provider
// is configured, for simulated entity ids.
func WithRandomSource(r io.Reader) Option {
	return func(b *Builder) {
		if r != nil {
			b.random = r
		}
	}
}

// WithClock sets the clock used by the simulated anchor.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics attaches an Observer.
func WithMetrics(o Observer) Option {
	return func(b *Builder) {
		if o != nil {
			b.observer = o
		}
	}
}

// NewBuilder returns a Builder with the mock signer, the simulated anchor,
// crypto/rand and the wall clock unless overridden.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		signer:   MockSigner{},
		random:   rand.Reader,
		now:      time.Now,
		observer: noopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.anchor == nil {
		b.anchor = &SimulatedAnchorProvider{Random: b.random, Now: b.now}
	}
	if b.log == nil {
		b.log = logger.Named("proofs")
	}
	return b
}

// Signer returns the configured signer.
func (b *Builder) Signer() Signer { return b.signer }

// Generate validates in, computes the digest chain, anchors the input hash
// and returns the receipt. Nothing is returned on error.
func (b *Builder) Generate(ctx context.Context, in ProvenanceInput) (*ProofReceipt, error) {
	canonical, err := Canonicalize(in)
	if err != nil {
		if IsValidationError(err) {
			b.observer.ValidationFailed()
		}
		return nil, err
	}

	proof, err := b.assemble(canonical, in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	record, err := b.anchor.Submit(ctx, proof.Root)
	b.observer.AnchorCompleted(time.Since(start), err)
	if err != nil {
		return nil, xerrors.Wrap(CodeAnchorFailed, err, "")
	}

	proofID, err := newProofID(b.random)
	if err != nil {
		return nil, xerrors.Wrap(CodeGenerationFailed, err, "generate proof id")
	}

	receipt := &ProofReceipt{
		Status:       StatusSuccess,
		ProofID:      proofID,
		InputHash:    proof.Root,
		Proof:        proof,
		Anchor:       record,
		Verification: VerificationResult{Verified: true, Reason: ReasonOK},
		Metadata:     metadataFor(in),
	}
	b.observer.ProofIssued(in.Generator)
	b.log.Debug("proof issued",
		slog.String("proof_id", receipt.ProofID),
		slog.String("input_hash", receipt.InputHash),
		slog.String("file_id", record.FileID),
		slog.String("signer", b.signer.Algorithm()))
	return receipt, nil
}

// Verify checks receipt against in using the builder's signer.
func (b *Builder) Verify(receipt *ProofReceipt, in ProvenanceInput) (VerificationResult, error) {
	return Verify(receipt, in, b.signer)
}

func (b *Builder) assemble(canonical string, in ProvenanceInput) (ProofStructure, error) {
	inputHash := Digest(canonical)
	signature, err := b.signer.Sign([]byte(inputHash))
	if err != nil {
		return ProofStructure{}, xerrors.Wrap(CodeGenerationFailed, err, "sign input hash")
	}
	return ProofStructure{
		Type:      ProofType,
		Root:      inputHash,
		Leaves:    leavesFor(in),
		Signature: signature,
	}, nil
}

func leavesFor(in ProvenanceInput) [2]string {
	return [2]string{
		Digest(ContentLeafSalt + in.ContentHash),
		Digest(GeneratorLeafSalt + in.Generator),
	}
}

func metadataFor(in ProvenanceInput) ReceiptMetadata {
	return ReceiptMetadata{
		AgentID:          AgentID,
		ProofMeshVersion: ProofMeshVersion,
		HashingSchema:    HashingSchema,
		Generator:        in.Generator,
		Prompt:           in.Prompt,
		ParentProofID:    in.ParentProofID,
	}
}
