package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ProofMesh/internal/proofs"
	"ProofMesh/sdk/go/proofmesh"
)

// progressStages are the labels shown while a receipt is issued. They are
// cosmetic and do not track the builder's internal phases.
var progressStages = []string{
	"Canonicalizing provenance data...",
	"Computing metadata hash (SHA-256)...",
	"Generating Proof Stamp...",
	"Anchoring proof on Hedera Consensus Service...",
	"Producing verification report...",
	"Finalizing receipt...",
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:   "proofmesh",
		Short: "ProofMesh provenance receipts",
		Long: `proofmesh issues and checks provenance receipts for digital content.
A receipt binds a content hash and its generator into a SHA-256 digest chain,
signs the input hash and records where it was anchored.

Commands run locally unless --server points at a proofmeshd instance.`,
		SilenceUsage: true,
	}

	v.SetEnvPrefix("PROOFMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := root.PersistentFlags()
	flags.String("server", "", "proofmeshd base URL, e.g. http://localhost:8080")
	flags.Bool("json", false, "output JSON")
	flags.String("signer", "mock", "local signer: mock, ed25519 or secp256k1")
	flags.String("signer-key", "", "hex private key for the local signer")
	for _, name := range []string{"server", "json", "signer", "signer-key"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(generateCmd(v))
	root.AddCommand(verifyCmd(v))
	root.AddCommand(listCmd(v))
	root.AddCommand(lineageCmd(v))
	root.AddCommand(submitCmd(v))
	return root
}

func localBuilder(v *viper.Viper) (*proofs.Builder, error) {
	signer, err := proofs.NewSigner(v.GetString("signer"), v.GetString("signer-key"))
	if err != nil {
		return nil, err
	}
	return proofs.NewBuilder(proofs.WithSigner(signer)), nil
}

// remoteClient returns nil when no server is configured.
func remoteClient(v *viper.Viper) (*proofmesh.Client, error) {
	server := strings.TrimSpace(v.GetString("server"))
	if server == "" {
		return nil, nil
	}
	return proofmesh.NewClient(server, nil)
}

func requireRemote(v *viper.Viper) (*proofmesh.Client, error) {
	client, err := remoteClient(v)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("--server required")
	}
	return client, nil
}
