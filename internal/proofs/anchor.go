package proofs

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

// TimestampLayout is the consensusTimestamp format: ISO-8601 UTC with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// AnchorProvider records a payload hash on some ledger and reports where.
type AnchorProvider interface {
	Submit(ctx context.Context, payloadHash string) (AnchorRecord, error)
}

// AnchorFunc adapts a function to AnchorProvider.
type AnchorFunc func(ctx context.Context, payloadHash string) (AnchorRecord, error)

func (f AnchorFunc) Submit(ctx context.Context, payloadHash string) (AnchorRecord, error) {
	return f(ctx, payloadHash)
}

// SimulatedAnchorProvider fabricates a ledger record without any network
// call. The entity id is drawn from Random and the instant from Now.
type SimulatedAnchorProvider struct {
	Random io.Reader
	Now    func() time.Time
}

// NewSimulatedAnchorProvider returns a provider backed by crypto/rand and
// the wall clock.
func NewSimulatedAnchorProvider() *SimulatedAnchorProvider {
	return &SimulatedAnchorProvider{Random: rand.Reader, Now: time.Now}
}

func (p *SimulatedAnchorProvider) Submit(ctx context.Context, _ string) (AnchorRecord, error) {
	if err := ctx.Err(); err != nil {
		return AnchorRecord{}, err
	}
	r := p.Random
	if r == nil {
		r = rand.Reader
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	id, err := randomEntityID(r)
	if err != nil {
		return AnchorRecord{}, fmt.Errorf("draw entity id: %w", err)
	}
	return SimulatedRecord(id, now()), nil
}

// SimulatedRecord formats the ledger identifiers for entity id at instant t.
func SimulatedRecord(id int, t time.Time) AnchorRecord {
	fileID := fmt.Sprintf("0.0.%d", id)
	return AnchorRecord{
		FileID:             fileID,
		HcsTxID:            fmt.Sprintf("%s@%d", fileID, t.Unix()),
		ConsensusTimestamp: t.UTC().Format(TimestampLayout),
	}
}
