package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ProofMesh/internal/proofs"
	"ProofMesh/sdk/go/proofmesh"
)

func addInputFlags(cmd *cobra.Command, in *proofs.ProvenanceInput) {
	cmd.Flags().StringVar(&in.ContentHash, "content-hash", "", "hash of the content being claimed")
	cmd.Flags().StringVar(&in.Generator, "generator", "", "model or person that produced the content")
	cmd.Flags().StringVar(&in.Prompt, "prompt", "", "prompt used to produce the content")
	cmd.Flags().StringVar(&in.ParentProofID, "parent", "", "proof id of the content this derives from")
}

func generateCmd(v *viper.Viper) *cobra.Command {
	var in proofs.ProvenanceInput
	var example, progress bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a provenance receipt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if example {
				in = proofs.ExampleInput()
			}
			if progress {
				for _, stage := range progressStages {
					fmt.Fprintln(cmd.ErrOrStderr(), stage)
				}
			}

			var receipt *proofs.ProofReceipt
			client, err := remoteClient(v)
			if err != nil {
				return err
			}
			if client != nil {
				receipt, err = client.GenerateProof(cmd.Context(), in)
			} else {
				builder, buildErr := localBuilder(v)
				if buildErr != nil {
					return buildErr
				}
				receipt, err = builder.Generate(cmd.Context(), in)
			}
			if err != nil {
				return err
			}
			return printReceipt(cmd.OutOrStdout(), receipt)
		},
	}
	addInputFlags(cmd, &in)
	cmd.Flags().BoolVar(&example, "example", false, "use the built-in example claim")
	cmd.Flags().BoolVar(&progress, "progress", false, "print progress labels to stderr")
	return cmd
}

func verifyCmd(v *viper.Viper) *cobra.Command {
	var in proofs.ProvenanceInput
	var receiptPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a receipt against the original claim",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), receiptPath)
			if err != nil {
				return err
			}
			if err := proofs.ValidateReceiptJSON(data); err != nil {
				return err
			}
			var receipt proofs.ProofReceipt
			if err := json.Unmarshal(data, &receipt); err != nil {
				return fmt.Errorf("decode receipt: %w", err)
			}

			var result proofs.VerificationResult
			client, err := remoteClient(v)
			if err != nil {
				return err
			}
			if client != nil {
				result, err = client.VerifyReceipt(cmd.Context(), &receipt, in)
			} else {
				builder, buildErr := localBuilder(v)
				if buildErr != nil {
					return buildErr
				}
				result, err = builder.Verify(&receipt, in)
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Verified {
				return fmt.Errorf("receipt %s not verified: %s", receipt.ProofID, result.Reason)
			}
			return nil
		},
	}
	addInputFlags(cmd, &in)
	cmd.Flags().StringVar(&receiptPath, "receipt", "-", "receipt JSON file, - for stdin")
	return cmd
}

func listCmd(v *viper.Viper) *cobra.Command {
	var opts proofmesh.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List receipts stored by a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireRemote(v)
			if err != nil {
				return err
			}
			receipts, err := client.ListProofs(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), receipts)
			}
			renderReceipts(cmd.OutOrStdout(), receipts)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum receipts to show")
	cmd.Flags().StringVar(&opts.Generator, "generator", "", "only show receipts from this generator")
	return cmd
}

func lineageCmd(v *viper.Viper) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "lineage <proof-id>",
		Short: "Follow parent links of a stored receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireRemote(v)
			if err != nil {
				return err
			}
			lineage, err := client.Lineage(cmd.Context(), args[0], depth)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), lineage)
			}
			renderLineage(cmd.OutOrStdout(), lineage)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum links to follow, 0 for the server default")
	return cmd
}

func submitCmd(v *viper.Viper) *cobra.Command {
	var in proofs.ProvenanceInput
	var jobID string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a receipt job on a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireRemote(v)
			if err != nil {
				return err
			}
			job, err := client.SubmitJob(cmd.Context(), jobID, in)
			if err != nil {
				return err
			}
			if wait > 0 {
				ctx, cancel := contextWithTimeout(cmd, wait)
				defer cancel()
				job, err = client.WaitForJob(ctx, job.ID, 250*time.Millisecond)
				if err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	addInputFlags(cmd, &in)
	cmd.Flags().StringVar(&jobID, "id", "", "job id; resubmitting an id returns the existing job")
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for the job to finish")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
