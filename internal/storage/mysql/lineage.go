package mysql

import (
	"context"
	"strings"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
)

// DefaultLineageDepth 是未指定深度时的最大回溯层数。
const DefaultLineageDepth = 32

// LineageResult 描述一次沿 parentProofId 回溯的结果，Chain 从请求的回执开始。
type LineageResult struct {
	Chain         []*proofs.ProofReceipt `json:"chain"`
	MissingParent string                 `json:"missingParent,omitempty"`
	Cycle         bool                   `json:"cycle,omitempty"`
	Truncated     bool                   `json:"truncated,omitempty"`
}

// Lineage 从 proofID 开始沿父回执回溯。起点不存在时返回 NOT_FOUND；
// 中途缺失的父回执记录在 MissingParent 中而不是作为错误返回。
func Lineage(ctx context.Context, repo ReceiptRepository, proofID string, maxDepth int) (*LineageResult, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultLineageDepth
	}

	head, err := repo.Get(ctx, proofID)
	if err != nil {
		return nil, err
	}

	result := &LineageResult{Chain: []*proofs.ProofReceipt{head}}
	seen := map[string]struct{}{head.ProofID: {}}
	current := head
	for {
		parentID := strings.TrimSpace(current.Metadata.ParentProofID)
		if parentID == "" {
			return result, nil
		}
		if _, ok := seen[parentID]; ok {
			result.Cycle = true
			return result, nil
		}
		if len(result.Chain) > maxDepth {
			result.Truncated = true
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "回溯回执链被取消")
		}

		parent, err := repo.Get(ctx, parentID)
		if err != nil {
			if xerrors.CodeOf(err) == xerrors.CodeNotFound {
				result.MissingParent = parentID
				return result, nil
			}
			return nil, err
		}
		seen[parent.ProofID] = struct{}{}
		result.Chain = append(result.Chain, parent)
		current = parent
	}
}
