package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ProofMesh/internal/proofs"
	"ProofMesh/sdk/go/proofmesh"
)

func printReceipt(w io.Writer, receipt *proofs.ProofReceipt) error {
	body, err := proofs.MarshalReceipt(receipt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(body))
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderReceipts(w io.Writer, receipts []proofmesh.Receipt) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Proof ID", "Generator", "Input Hash", "File ID", "Consensus Timestamp", "Parent"})
	for _, r := range receipts {
		tw.AppendRow(table.Row{r.ProofID, r.Metadata.Generator, shorten(r.InputHash), r.Anchor.FileID, r.Anchor.ConsensusTimestamp, r.Metadata.ParentProofID})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "Total", len(receipts)})
	tw.Render()
}

func renderLineage(w io.Writer, lineage *proofmesh.Lineage) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Proof ID", "Generator", "Parent"})
	for i, r := range lineage.Chain {
		tw.AppendRow(table.Row{i, r.ProofID, r.Metadata.Generator, r.Metadata.ParentProofID})
	}
	tw.Render()
	switch {
	case lineage.MissingParent != "":
		fmt.Fprintf(w, "parent %s is not stored\n", lineage.MissingParent)
	case lineage.Cycle:
		fmt.Fprintln(w, "parent links form a cycle")
	case lineage.Truncated:
		fmt.Fprintln(w, "depth limit reached")
	}
}

func shorten(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-8:]
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
