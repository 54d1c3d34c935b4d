package task

import (
	stdErrors "errors"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
)

// Status 表示证明任务在生命周期中的状态。
type Status string

// MaxJobIDLength 是调用方指定任务 ID 的最大字节数，与 proof_jobs.id 列宽一致。
const MaxJobIDLength = 64

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job 描述一次排队生成证明回执的请求。成功后 ProofID 指向回执仓库中的记录。
type Job struct {
	ID         string                 `json:"id"`
	Input      proofs.ProvenanceInput `json:"input"`
	Status     Status                 `json:"status"`
	Attempts   int                    `json:"attempts"`
	MaxRetries int                    `json:"max_retries"`
	ProofID    string                 `json:"proof_id,omitempty"`
	LastError  string                 `json:"last_error,omitempty"`
	ErrorCode  string                 `json:"error_code,omitempty"`
	CreatedAt  int64                  `json:"created_at"`
	UpdatedAt  int64                  `json:"updated_at"`
}

// Terminal 判断任务是否已经结束，不会再被重试。
func (j *Job) Terminal() bool {
	if j == nil {
		return false
	}
	return j.Status == StatusSucceeded || (j.Status == StatusFailed && j.Attempts >= j.MaxRetries)
}

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict")
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed")
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted")
)

// 任务错误码在统一错误目录中登记，这里保留包内简称。
const (
	CodeJobNotFound   = xerrors.CodeJobNotFound
	CodeJobConflict   = xerrors.CodeJobConflict
	CodeJobCompleted  = xerrors.CodeJobCompleted
	CodeJobExhausted  = xerrors.CodeJobExhausted
	CodeJobPublish    = xerrors.CodeJobPublish
	CodeJobProcessing = xerrors.CodeJobProcessing
	CodeJobCompensate = xerrors.CodeJobCompensate
)

// IsJobError 判断错误是否为指定的统一任务错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch {
	case stdErrors.Is(err, ErrJobNotFound):
		return target == CodeJobNotFound
	case stdErrors.Is(err, ErrJobConflict):
		return target == CodeJobConflict
	case stdErrors.Is(err, ErrJobCompleted):
		return target == CodeJobCompleted
	case stdErrors.Is(err, ErrJobExhausted):
		return target == CodeJobExhausted
	}
	return false
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	clone := *job
	return &clone
}
