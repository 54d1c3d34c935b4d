package proofs

import (
	"bytes"
	"encoding/json"
	"fmt"

	xerrors "ProofMesh/internal/errors"
)

// MarshalReceipt renders r as indented JSON, two spaces per level, without
// HTML escaping.
func MarshalReceipt(r *ProofReceipt) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseReceipt validates data against the receipt schema and decodes it.
// Both failures carry INVALID_ARGUMENT.
func ParseReceipt(data []byte) (*ProofReceipt, error) {
	if err := ValidateReceiptJSON(data); err != nil {
		return nil, err
	}
	var r ProofReceipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode receipt")
	}
	return &r, nil
}
