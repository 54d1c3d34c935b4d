package proofs

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestReceiptDigestsAreDeterministic: equal inputs give equal digest chains,
// whatever the random source.
func TestReceiptDigestsAreDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("inputHash, leaves and signature depend only on the input", prop.ForAll(
		func(contentHash, generator, prompt string, seed int64) bool {
			in := ProvenanceInput{ContentHash: contentHash, Generator: generator, Prompt: prompt}
			a, errA := newTestBuilder(seed).Generate(context.Background(), in)
			b, errB := newTestBuilder(seed+1).Generate(context.Background(), in)
			if errA != nil || errB != nil {
				return false
			}
			return a.InputHash == b.InputHash && a.Proof == b.Proof && a.Metadata == b.Metadata
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AnyString(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestRequiredFieldsProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	blank := gen.IntRange(0, 8).Map(func(n int) string {
		return strings.Repeat(" \t\n", n)
	})

	properties.Property("blank content hash is always rejected", prop.ForAll(
		func(contentHash, generator string) bool {
			_, err := Canonicalize(ProvenanceInput{ContentHash: contentHash, Generator: generator})
			return IsValidationError(err) && err.Error() == ValidationMessage
		},
		blank,
		gen.AnyString(),
	))

	properties.Property("blank generator is always rejected", prop.ForAll(
		func(contentHash, generator string) bool {
			_, err := Canonicalize(ProvenanceInput{ContentHash: contentHash, Generator: generator})
			return IsValidationError(err)
		},
		gen.AlphaString(),
		blank,
	))

	properties.TestingRun(t)
}

func TestSimulatedAnchorProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("entity ids stay within six digits and match across fields", prop.ForAll(
		func(seed int64) bool {
			p := &SimulatedAnchorProvider{Random: seeded(seed), Now: fixedClock}
			rec, err := p.Submit(context.Background(), Digest("x"))
			if err != nil {
				return false
			}
			file := fileIDPattern.FindStringSubmatch(rec.FileID)
			tx := hcsTxIDPattern.FindStringSubmatch(rec.HcsTxID)
			return file != nil && tx != nil && file[1] == tx[1]
		},
		gen.Int64(),
	))

	properties.Property("digest is 64 lowercase hex and stable", prop.ForAll(
		func(s string) bool {
			d := Digest(s)
			return IsDigest(d) && d == Digest(s)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
