// Package errors 定义 ProofMesh 的错误码目录以及携带错误码的错误类型。
// 目录按领域分组，HTTP 状态、告警级别和重试策略都由错误码决定。
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 为告警事件分级。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// 通用错误码，由存储、队列、配置和 API 层共用。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeAnchorFailure         Code = "ANCHOR_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// 证明回执生成相关的错误码。
const (
	CodeProofValidationFailed Code = "PROOF_VALIDATION_FAILED"
	CodeProofGenerationFailed Code = "PROOF_GENERATION_FAILED"
	CodeProofAnchorFailed     Code = "PROOF_ANCHOR_FAILED"
)

// 异步证明任务相关的错误码。
const (
	CodeJobNotFound   Code = "JOB_NOT_FOUND"
	CodeJobConflict   Code = "JOB_CONFLICT"
	CodeJobCompleted  Code = "JOB_COMPLETED"
	CodeJobExhausted  Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobPublish    Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing Code = "JOB_PROCESSING_FAILED"
	CodeJobCompensate Code = "JOB_COMPENSATION_FAILED"
)

// 错误码所属领域。
const (
	DomainCore  = "core"
	DomainProof = "proof"
	DomainJob   = "job"
)

// Descriptor 描述一个错误码的默认文案和处理策略。
type Descriptor struct {
	Domain     string
	Message    string
	Severity   Severity
	HTTPStatus int
	Retryable  bool
	Alert      bool
}

// catalog 在包初始化后只读，无需加锁。
var catalog = map[Code]Descriptor{
	CodeUnknown:               {DomainCore, "unknown error", SeverityCritical, http.StatusInternalServerError, false, true},
	CodeInvalidArgument:       {DomainCore, "invalid argument", SeverityInfo, http.StatusBadRequest, false, false},
	CodeNotFound:              {DomainCore, "resource not found", SeverityInfo, http.StatusNotFound, false, false},
	CodeConflict:              {DomainCore, "resource conflict", SeverityWarning, http.StatusConflict, false, false},
	CodeInitializationFailure: {DomainCore, "service not initialized", SeverityWarning, http.StatusServiceUnavailable, true, true},
	CodeStorageFailure:        {DomainCore, "storage failure", SeverityCritical, http.StatusInternalServerError, true, true},
	CodeQueueFailure:          {DomainCore, "queue failure", SeverityCritical, http.StatusInternalServerError, true, true},
	CodeAnchorFailure:         {DomainCore, "anchor submission failed", SeverityWarning, http.StatusBadGateway, true, true},
	CodeTimeout:               {DomainCore, "operation timed out", SeverityWarning, http.StatusGatewayTimeout, true, true},

	CodeProofValidationFailed: {DomainProof, "Content Hash and Generator information are required.", SeverityInfo, http.StatusBadRequest, false, false},
	CodeProofGenerationFailed: {DomainProof, "proof generation failed", SeverityCritical, http.StatusInternalServerError, false, true},
	CodeProofAnchorFailed:     {DomainProof, "proof anchoring failed", SeverityWarning, http.StatusBadGateway, true, true},

	CodeJobNotFound:   {DomainJob, "job not found", SeverityInfo, http.StatusNotFound, false, false},
	CodeJobConflict:   {DomainJob, "job conflict", SeverityWarning, http.StatusConflict, false, false},
	CodeJobCompleted:  {DomainJob, "job already completed", SeverityInfo, http.StatusConflict, false, false},
	CodeJobExhausted:  {DomainJob, "job retries exhausted", SeverityCritical, http.StatusInternalServerError, false, true},
	CodeJobPublish:    {DomainJob, "failed to publish job", SeverityCritical, http.StatusInternalServerError, true, true},
	CodeJobProcessing: {DomainJob, "job execution failed", SeverityWarning, http.StatusInternalServerError, true, true},
	CodeJobCompensate: {DomainJob, "job compensation failed", SeverityCritical, http.StatusInternalServerError, false, true},
}

// Lookup 返回错误码的描述，未登记的错误码按 UNKNOWN 处理。
func Lookup(code Code) Descriptor {
	if d, ok := catalog[code]; ok {
		return d
	}
	return catalog[CodeUnknown]
}

// Error 是携带错误码的错误，可包裹底层原因并附带键值信息。
type Error struct {
	code    Code
	message string
	cause   error
	details map[string]string
}

// Option 在构造时补充 Error。
type Option func(*Error)

// WithMetadata 附加一条键值信息，API 层会把它放进响应的 details 字段。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.details == nil {
			e.details = make(map[string]string)
		}
		e.details[key] = value
	}
}

// New 创建错误，message 为空时使用目录中的默认文案。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = Lookup(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 用错误码包裹 cause。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，使 errors.Is 可以匹配同码的哨兵错误。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.code == t.code
}

// Message 返回不含错误码和原因的文案。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.details) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.details))
	for k, v := range e.details {
		out[k] = v
	}
	return out
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stdErrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// CodeOf 返回错误链上的错误码，普通错误为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.code
	}
	return CodeUnknown
}

// RetryableError 判断错误码是否允许重试，普通错误不重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return Lookup(e.code).Retryable
	}
	return false
}

// ShouldAlert 判断错误是否需要触发告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return Lookup(e.code).Alert
	}
	return false
}

// HTTPStatusOf 返回错误码对应的 HTTP 状态码，普通错误为 500。
func HTTPStatusOf(err error) int {
	return Lookup(CodeOf(err)).HTTPStatus
}
