package anchor

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
	"ProofMesh/internal/web3"
)

// ChainProvider anchors payload hashes through a web3 client. The ledger
// coordinates are folded into the record shapes used by the simulated
// provider: the block number plays the entity id and the block time the
// consensus instant.
type ChainProvider struct {
	client web3.Client
}

// NewChainProvider wraps client.
func NewChainProvider(client web3.Client) *ChainProvider {
	return &ChainProvider{client: client}
}

// Submit implements proofs.AnchorProvider.
func (p *ChainProvider) Submit(ctx context.Context, payloadHash string) (proofs.AnchorRecord, error) {
	if p == nil || p.client == nil {
		return proofs.AnchorRecord{}, xerrors.New(xerrors.CodeInitializationFailure, "链上锚定未初始化")
	}
	digest, err := decodeDigest(payloadHash)
	if err != nil {
		return proofs.AnchorRecord{}, err
	}
	receipt, err := p.client.AnchorDigest(ctx, digest)
	if err != nil {
		return proofs.AnchorRecord{}, xerrors.Wrap(xerrors.CodeAnchorFailure, err, "链上锚定失败",
			xerrors.WithMetadata("chain", p.client.Name()))
	}
	return RecordFromReceipt(receipt), nil
}

// RecordFromReceipt maps an on-chain inclusion to an AnchorRecord. The block
// number becomes the file id, zero-padded to six digits so ids keep the ledger
// shape 0.0.NNNNNN; blocks past 999999 yield longer ids.
func RecordFromReceipt(r web3.AnchorReceipt) proofs.AnchorRecord {
	fileID := fmt.Sprintf("0.0.%06d", r.BlockNumber)
	return proofs.AnchorRecord{
		FileID:             fileID,
		HcsTxID:            fmt.Sprintf("%s@%d", fileID, r.BlockTime),
		ConsensusTimestamp: time.Unix(int64(r.BlockTime), 0).UTC().Format(proofs.TimestampLayout),
		ContractAnchorTxID: r.TxHash.Hex(),
	}
}

func decodeDigest(payloadHash string) ([32]byte, error) {
	var digest [32]byte
	if !proofs.IsDigest(payloadHash) {
		return digest, xerrors.New(xerrors.CodeInvalidArgument, "锚定载荷必须是 64 位小写十六进制摘要")
	}
	if _, err := hex.Decode(digest[:], []byte(payloadHash)); err != nil {
		return digest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析锚定载荷失败")
	}
	return digest, nil
}
