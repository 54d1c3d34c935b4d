package task

import (
	"context"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
)

// RecoveryHandler 定义了任务进入终态失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 返回的回执会作为降级结果保存；返回 nil 表示放弃补偿，继续按失败处理。
	Recover(ctx context.Context, job *Job, cause error) (*proofs.ProofReceipt, error)
}

// ReissueRecovery 在指定错误码导致任务失败时，使用备用执行器重新签发回执，
// 典型用法是链上锚定重试耗尽后改用模拟锚定。
type ReissueRecovery struct {
	Executor Executor
	Codes    []xerrors.Code
}

// Recover 实现 RecoveryHandler。
func (r *ReissueRecovery) Recover(ctx context.Context, job *Job, cause error) (*proofs.ProofReceipt, error) {
	if r == nil || r.Executor == nil || job == nil {
		return nil, nil
	}
	if !r.matches(xerrors.CodeOf(cause)) {
		return nil, nil
	}
	return r.Executor.Generate(ctx, job.Input)
}

func (r *ReissueRecovery) matches(code xerrors.Code) bool {
	if len(r.Codes) == 0 {
		return code == proofs.CodeAnchorFailed || code == xerrors.CodeAnchorFailure
	}
	for _, c := range r.Codes {
		if c == code {
			return true
		}
	}
	return false
}
