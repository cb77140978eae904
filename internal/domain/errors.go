package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrTimeout          = fmt.Errorf("operation timed out")
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidOrigin             = fmt.Errorf("invalid origin")
	ErrInvalidPeriod             = fmt.Errorf("invalid time period")
	ErrUnknownDataType           = fmt.Errorf("unknown data type")
	ErrHistoryDeletionDisallowed = fmt.Errorf("history deletion disallowed by policy")
	ErrRemovalInProgress         = fmt.Errorf("removal already in progress")
	ErrBackendFailure            = fmt.Errorf("deletion backend failed")
	ErrConfigLoad                = fmt.Errorf("failed to load configuration")
	ErrAuditWrite                = fmt.Errorf("audit log write failed")
	ErrPathOutsideRoot           = fmt.Errorf("path resolves outside the deletion root")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Partition.ClearData")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "history", "partition")
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeInvalidOrigin      ErrorCode = "INVALID_ORIGIN"
	CodeInvalidPeriod      ErrorCode = "INVALID_PERIOD"
	CodeUnknownDataType    ErrorCode = "UNKNOWN_DATA_TYPE"
	CodeHistoryDisallowed  ErrorCode = "HISTORY_DELETION_DISALLOWED"
	CodeRemovalInProgress  ErrorCode = "REMOVAL_IN_PROGRESS"
	CodeBackendFailure     ErrorCode = "BACKEND_FAILURE"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodePathOutsideRoot    ErrorCode = "PATH_OUTSIDE_ROOT"
	CodeHistoryFailure     ErrorCode = "HISTORY_FAILURE"
	CodePartitionFailure   ErrorCode = "PARTITION_FAILURE"
	CodeDiskDataFailure    ErrorCode = "DISK_DATA_FAILURE"
	CodeProfileStoreFailed ErrorCode = "PROFILE_STORE_FAILURE"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:                  CodeNotFound,
	ErrInvalidInput:              CodeInvalidInput,
	ErrPermissionDenied:          CodePermissionDenied,
	ErrTimeout:                   CodeTimeout,
	ErrInvalidOrigin:             CodeInvalidOrigin,
	ErrInvalidPeriod:             CodeInvalidPeriod,
	ErrUnknownDataType:           CodeUnknownDataType,
	ErrHistoryDeletionDisallowed: CodeHistoryDisallowed,
	ErrRemovalInProgress:         CodeRemovalInProgress,
	ErrBackendFailure:            CodeBackendFailure,
	ErrConfigLoad:                CodeConfigLoad,
	ErrAuditWrite:                CodeAuditWrite,
	ErrPathOutsideRoot:           CodePathOutsideRoot,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrBackendFailure: {
		"history":   CodeHistoryFailure,
		"partition": CodePartitionFailure,
		"diskdata":  CodeDiskDataFailure,
		"profile":   CodeProfileStoreFailed,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		return de.Code()
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(e.Err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
