package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainSnapshot represents summarized network metadata for health reporting.
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// AnchorReceipt describes where a digest landed on chain.
type AnchorReceipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	// BlockTime is the block timestamp in unix seconds.
	BlockTime uint64
	ChainID   *big.Int
	From      common.Address
	GasUsed   uint64
}

// Client defines the common interface that any chain implementation must
// provide so the anchoring layer can work against different networks.
type Client interface {
	Name() string
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	// AnchorDigest embeds digest in a transaction, waits until it is mined
	// and reports the inclusion details.
	AnchorDigest(ctx context.Context, digest [32]byte) (AnchorReceipt, error)
	Close()
}
