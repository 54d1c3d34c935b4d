package proofs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofMesh/internal/errors"
)

type vector struct {
	Name      string          `json:"name"`
	Input     ProvenanceInput `json:"input"`
	Canonical string          `json:"canonical"`
	InputHash string          `json:"inputHash"`
	Leaves    []string        `json:"leaves"`
	Signature string          `json:"signature"`
}

func loadVectors(t *testing.T) []vector {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "vectors.json"))
	require.NoError(t, err)
	var vectors []vector
	require.NoError(t, json.Unmarshal(data, &vectors))
	require.NotEmpty(t, vectors)
	return vectors
}

func TestCanonicalizeVectors(t *testing.T) {
	for _, v := range loadVectors(t) {
		t.Run(v.Name, func(t *testing.T) {
			canonical, err := Canonicalize(v.Input)
			require.NoError(t, err)
			assert.Equal(t, v.Canonical, canonical)
			assert.Equal(t, v.InputHash, Digest(canonical))
		})
	}
}

func TestCanonicalizeIgnoresFieldOrder(t *testing.T) {
	docs := []string{
		`{"contentHash":"abc","generator":"Human","prompt":"p","parentProofId":"x"}`,
		`{"parentProofId":"x","prompt":"p","generator":"Human","contentHash":"abc"}`,
		`{"generator":"Human","parentProofId":"x","contentHash":"abc","prompt":"p"}`,
	}
	var want string
	for i, doc := range docs {
		var in ProvenanceInput
		require.NoError(t, json.Unmarshal([]byte(doc), &in))
		got, err := Canonicalize(in)
		require.NoError(t, err)

		direct, err := jcs.Transform([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, string(direct), got)

		if i == 0 {
			want = got
			continue
		}
		assert.Equal(t, want, got)
	}
}

func TestCanonicalizeOptionalFields(t *testing.T) {
	canonical, err := Canonicalize(ProvenanceInput{ContentHash: "abc", Generator: "Human", Prompt: "", ParentProofID: ""})
	require.NoError(t, err)
	assert.NotContains(t, canonical, "prompt")
	assert.NotContains(t, canonical, "parentProofId")

	// whitespace-only optional values are non-empty and therefore present
	canonical, err = Canonicalize(ProvenanceInput{ContentHash: "abc", Generator: "Human", Prompt: " "})
	require.NoError(t, err)
	assert.Equal(t, `{"contentHash":"abc","generator":"Human","prompt":" "}`, canonical)
}

func TestCanonicalizeKeepsRawValues(t *testing.T) {
	canonical, err := Canonicalize(ProvenanceInput{ContentHash: " abc ", Generator: "Human\n"})
	require.NoError(t, err)
	assert.Equal(t, `{"contentHash":" abc ","generator":"Human\n"}`, canonical)
}

func TestValidateRequiresFields(t *testing.T) {
	cases := []struct {
		name   string
		in     ProvenanceInput
		fields []string
	}{
		{"empty", ProvenanceInput{}, []string{"contentHash", "generator"}},
		{"blank content hash", ProvenanceInput{ContentHash: "   ", Generator: "Human"}, []string{"contentHash"}},
		{"blank generator", ProvenanceInput{ContentHash: "abc", Generator: "\t\n"}, []string{"generator"}},
		{"prompt does not help", ProvenanceInput{Prompt: "x", ParentProofID: "y"}, []string{"contentHash", "generator"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Canonicalize(tc.in)
			require.Error(t, err)
			assert.Equal(t, ValidationMessage, err.Error())
			assert.True(t, IsValidationError(err))
			assert.Equal(t, CodeValidationFailed, xerrors.CodeOf(err))
			assert.Equal(t, 400, xerrors.HTTPStatusOf(err))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.fields, verr.Fields)
		})
	}
}

func TestValidateUsesECMAScriptWhitespace(t *testing.T) {
	_, err := Canonicalize(ProvenanceInput{ContentHash: "\ufeff\u2028", Generator: "Human"})
	require.True(t, IsValidationError(err))

	_, err = Canonicalize(ProvenanceInput{ContentHash: "abc", Generator: "\u3000\u00a0"})
	require.True(t, IsValidationError(err))

	canonical, err := Canonicalize(ProvenanceInput{ContentHash: "\u0085", Generator: "Human"})
	require.NoError(t, err)
	assert.Equal(t, "{\"contentHash\":\"\u0085\",\"generator\":\"Human\"}", canonical)
}

func TestValidateRejectsInvalidUTF8(t *testing.T) {
	for _, prompt := range []string{"\xff", "\xfe", "ok\xc3"} {
		in := ProvenanceInput{ContentHash: "abc", Generator: "Human", Prompt: prompt}
		_, err := Canonicalize(in)
		require.Error(t, err, "prompt %q", prompt)
		assert.Equal(t, EncodingMessage, err.Error())
		assert.Equal(t, CodeValidationFailed, xerrors.CodeOf(err))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"prompt"}, verr.Fields)

		_, err = newTestBuilder(1).Generate(context.Background(), in)
		assert.True(t, IsValidationError(err))
	}

	_, err := Canonicalize(ProvenanceInput{ContentHash: "a\x80", Generator: "G\xff", ParentProofID: "\xfe"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"contentHash", "generator", "parentProofId"}, verr.Fields)
}

func TestDigest(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Digest(""))
	assert.Equal(t, Digest("abc"), Digest("abc"))
	assert.Equal(t, Digest("abc"), DigestBytes([]byte("abc")))
	assert.True(t, IsDigest(Digest("x")))
	assert.False(t, IsDigest("ABC"))
	assert.False(t, IsDigest(Digest("x")[:63]+"G"))
}
