package proofs

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	xerrors "ProofMesh/internal/errors"
)

const receiptSchemaURL = "https://proofmesh.local/schemas/receipt.schema.json"

//go:embed receipt.schema.json
var receiptSchemaJSON []byte

var (
	receiptSchemaOnce sync.Once
	receiptSchema     *jsonschema.Schema
	receiptSchemaErr  error
)

func compiledReceiptSchema() (*jsonschema.Schema, error) {
	receiptSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(receiptSchemaURL, bytes.NewReader(receiptSchemaJSON)); err != nil {
			receiptSchemaErr = fmt.Errorf("receipt schema load failed: %w", err)
			return
		}
		receiptSchema, receiptSchemaErr = c.Compile(receiptSchemaURL)
		if receiptSchemaErr != nil {
			receiptSchemaErr = fmt.Errorf("receipt schema compile failed: %w", receiptSchemaErr)
		}
	})
	return receiptSchema, receiptSchemaErr
}

// ReceiptSchema returns the raw JSON Schema for serialized receipts.
func ReceiptSchema() []byte {
	return append([]byte(nil), receiptSchemaJSON...)
}

// ValidateReceiptJSON checks a serialized receipt against the receipt schema.
// Malformed or non-conforming documents are reported as INVALID_ARGUMENT.
func ValidateReceiptJSON(data []byte) error {
	schema, err := compiledReceiptSchema()
	if err != nil {
		return xerrors.Wrap(CodeGenerationFailed, err, "receipt schema unavailable")
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "receipt is not valid JSON")
	}
	if dec.More() {
		return xerrors.New(xerrors.CodeInvalidArgument, "receipt has trailing data")
	}
	if err := schema.Validate(doc); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "receipt schema validation failed")
	}
	return nil
}
