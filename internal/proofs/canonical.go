package proofs

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gowebpki/jcs"

	xerrors "ProofMesh/internal/errors"
)

// Validate checks the required fields. Blank means empty after trimming
// ECMAScript whitespace (so U+FEFF counts as blank and U+0085 does not);
// the raw values are still what gets hashed. Every field must be valid
// UTF-8, since the canonical JSON would otherwise replace invalid bytes
// with U+FFFD and distinct inputs would share an input hash.
func (in ProvenanceInput) Validate() error {
	var missing []string
	if isBlank(in.ContentHash) {
		missing = append(missing, "contentHash")
	}
	if isBlank(in.Generator) {
		missing = append(missing, "generator")
	}
	if len(missing) > 0 {
		return newValidationError(missing...)
	}

	var invalid []string
	for _, f := range []struct{ name, value string }{
		{"contentHash", in.ContentHash},
		{"generator", in.Generator},
		{"prompt", in.Prompt},
		{"parentProofId", in.ParentProofID},
	} {
		if !utf8.ValidString(f.value) {
			invalid = append(invalid, f.name)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Fields: invalid, Message: EncodingMessage}
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, isECMAScriptSpace) == ""
}

// isECMAScriptSpace matches the WhiteSpace and LineTerminator sets used by
// String.prototype.trim.
func isECMAScriptSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0x00A0, 0xFEFF, 0x2028, 0x2029:
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// CanonicalRecord returns the fields that take part in the input hash.
// Prompt and ParentProofID are present only when non-empty.
func (in ProvenanceInput) CanonicalRecord() map[string]string {
	record := map[string]string{
		"contentHash": in.ContentHash,
		"generator":   in.Generator,
	}
	if in.Prompt != "" {
		record["prompt"] = in.Prompt
	}
	if in.ParentProofID != "" {
		record["parentProofId"] = in.ParentProofID
	}
	return record
}

// Canonicalize validates in and serializes its canonical record as RFC 8785
// JSON: sorted keys, no insignificant whitespace, ECMAScript string escaping.
func Canonicalize(in ProvenanceInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(in.CanonicalRecord())
	if err != nil {
		return "", xerrors.Wrap(CodeGenerationFailed, err, "encode canonical record")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", xerrors.Wrap(CodeGenerationFailed, err, "canonicalize record")
	}
	return string(canonical), nil
}
