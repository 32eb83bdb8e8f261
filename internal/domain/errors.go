package domain

import "fmt"

// ErrorCode enumerates the error taxonomy exposed across worker-facing
// operations (spec.md §7). Every WorkerError carries exactly one code.
type ErrorCode string

const (
	ErrInvalidRequest                  ErrorCode = "InvalidRequest"
	ErrWorkerNotFound                  ErrorCode = "WorkerNotFound"
	ErrWorkerAlreadyExists             ErrorCode = "WorkerAlreadyExists"
	ErrWorkerCreationFailed            ErrorCode = "WorkerCreationFailed"
	ErrFailedToResumeWorker            ErrorCode = "FailedToResumeWorker"
	ErrComponentDownloadFailed         ErrorCode = "ComponentDownloadFailed"
	ErrComponentParseFailed            ErrorCode = "ComponentParseFailed"
	ErrInitialComponentFileDownloadFailed ErrorCode = "InitialComponentFileDownloadFailed"
	ErrPromiseNotFound                 ErrorCode = "PromiseNotFound"
	ErrPromiseDropped                  ErrorCode = "PromiseDropped"
	ErrPromiseAlreadyCompleted         ErrorCode = "PromiseAlreadyCompleted"
	ErrInterrupted                     ErrorCode = "Interrupted"
	ErrParamTypeMismatch               ErrorCode = "ParamTypeMismatch"
	ErrNoValueInMessage                ErrorCode = "NoValueInMessage"
	ErrValueMismatch                   ErrorCode = "ValueMismatch"
	ErrUnknown                         ErrorCode = "Unknown"
	ErrRuntimeError                    ErrorCode = "RuntimeError"
	ErrInvalidShardId                  ErrorCode = "InvalidShardId"
	ErrInvalidAccount                  ErrorCode = "InvalidAccount"
	ErrPreviousInvocationFailed        ErrorCode = "PreviousInvocationFailed"
	ErrPreviousInvocationExited        ErrorCode = "PreviousInvocationExited"

	// ErrPayloadNotFound is not in spec.md's top-level taxonomy (it is named
	// directly in §4.1's payload-policy paragraph); kept as its own code so
	// callers can match on it via errors.Is.
	ErrPayloadNotFound ErrorCode = "PayloadNotFound"
)

// WorkerError is the uniform error type returned by worker-facing operations.
// It round-trips through the durability wrapper (§4.4: "errors are serialized
// uniformly so replay reproduces them") and through the routing RPC surface
// (§6: "each response is success | failure(GolemError)").
type WorkerError struct {
	Code    ErrorCode
	Worker  WorkerId
	Details string
	// Shard/ExpectedShards populate InvalidShardId errors.
	Shard          uint32
	ExpectedShards []uint32
	Kind           InterruptKind
}

func (e *WorkerError) Error() string {
	if e.Details == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Details)
}

// Is supports errors.Is comparisons against a bare *WorkerError carrying only
// a Code (the conventional sentinel-comparison idiom for this type).
func (e *WorkerError) Is(target error) bool {
	t, ok := target.(*WorkerError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewInvalidRequest(details string) *WorkerError {
	return &WorkerError{Code: ErrInvalidRequest, Details: details}
}

func NewWorkerNotFound(id WorkerId) *WorkerError {
	return &WorkerError{Code: ErrWorkerNotFound, Worker: id}
}

func NewWorkerAlreadyExists(id WorkerId) *WorkerError {
	return &WorkerError{Code: ErrWorkerAlreadyExists, Worker: id}
}

func NewWorkerCreationFailed(id WorkerId, details string) *WorkerError {
	return &WorkerError{Code: ErrWorkerCreationFailed, Worker: id, Details: details}
}

func NewInterrupted(kind InterruptKind) *WorkerError {
	return &WorkerError{Code: ErrInterrupted, Kind: kind}
}

func NewInvalidShardId(shard uint32, expected []uint32) *WorkerError {
	return &WorkerError{Code: ErrInvalidShardId, Shard: shard, ExpectedShards: expected}
}

func NewUnknown(details string) *WorkerError {
	return &WorkerError{Code: ErrUnknown, Details: details}
}

func NewPromiseNotFound(worker WorkerId, promiseID string) *WorkerError {
	return &WorkerError{Code: ErrPromiseNotFound, Worker: worker, Details: promiseID}
}

func NewPromiseDropped(worker WorkerId, promiseID string) *WorkerError {
	return &WorkerError{Code: ErrPromiseDropped, Worker: worker, Details: promiseID}
}

func NewPromiseAlreadyCompleted(worker WorkerId, promiseID string) *WorkerError {
	return &WorkerError{Code: ErrPromiseAlreadyCompleted, Worker: worker, Details: promiseID}
}

// Sentinels for errors.Is-style comparisons where no extra fields are needed.
var (
	ErrPayloadNotFoundSentinel = &WorkerError{Code: ErrPayloadNotFound}
)
