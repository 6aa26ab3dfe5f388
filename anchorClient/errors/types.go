package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed or missing input (never retried)
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeContractLogic indicates the contract reverted the call
	ErrCodeContractLogic ErrorCode = "CONTRACT_LOGIC"

	// ErrCodeInsufficientFunds indicates the signing account cannot pay for the transaction
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// ErrCodeNonceStale indicates the nonce was already consumed
	ErrCodeNonceStale ErrorCode = "NONCE_STALE"

	// ErrCodeUnderpriced indicates a replacement transaction did not outbid the pending one
	ErrCodeUnderpriced ErrorCode = "UNDERPRICED"

	// ErrCodeGasLimitExceeded indicates the call needs more gas than a block allows
	ErrCodeGasLimitExceeded ErrorCode = "GAS_LIMIT_EXCEEDED"

	// ErrCodeNetwork indicates timeouts and connectivity failures
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeUnknown indicates an error no rule recognised
	ErrCodeUnknown ErrorCode = "UNKNOWN"

	// ErrCodeEncoding indicates a projection that cannot be serialized
	ErrCodeEncoding ErrorCode = "ENCODING"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeDatabase indicates journal operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeContentStore indicates content-addressed storage errors
	ErrCodeContentStore ErrorCode = "CONTENT_STORE"

	// ErrCodeTrustFailure indicates an anchored record whose content no longer
	// matches its anchored hash
	ErrCodeTrustFailure ErrorCode = "TRUST_FAILURE"
)

// Severity represents the severity level of an error
type Severity string

const (
	// SeverityCritical indicates critical errors that require immediate attention
	SeverityCritical Severity = "CRITICAL"

	// SeverityHigh indicates high priority errors
	SeverityHigh Severity = "HIGH"

	// SeverityMedium indicates medium priority errors
	SeverityMedium Severity = "MEDIUM"

	// SeverityLow indicates low priority errors
	SeverityLow Severity = "LOW"

	// SeverityInfo indicates informational errors
	SeverityInfo Severity = "INFO"
)

// LedgerError is the classified, user-facing form of every engine failure.
// Message is the short human text, Action the suggested remedy and Cause the
// underlying technical error.
type LedgerError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Action   string                 `json:"action,omitempty"`
	Chain    string                 `json:"chain,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewLedgerError creates a new LedgerError with the default action for its code
func NewLedgerError(code ErrorCode, chain, message string, cause error) *LedgerError {
	return &LedgerError{
		Code:     code,
		Message:  message,
		Action:   defaultAction(code),
		Chain:    chain,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// NewLedgerErrorWithContext creates a new LedgerError with additional context
func NewLedgerErrorWithContext(code ErrorCode, chain, message string, cause error, context map[string]interface{}) *LedgerError {
	e := NewLedgerError(code, chain, message, cause)
	if context != nil {
		e.Context = context
	}
	return e
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Chain != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Chain, e.Code, e.Severity, msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, msg)
}

// Unwrap returns the underlying cause
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Detail returns the technical detail behind the user-facing message.
func (e *LedgerError) Detail() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// WithContext adds context to the error
func (e *LedgerError) WithContext(key string, value interface{}) *LedgerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *LedgerError) WithSeverity(severity Severity) *LedgerError {
	e.Severity = severity
	return e
}

// WithAction overrides the default suggested action
func (e *LedgerError) WithAction(action string) *LedgerError {
	e.Action = action
	return e
}

// IsRetryable returns true if the error is retryable.
// Unknown errors are never retried.
func (e *LedgerError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNonceStale, ErrCodeUnderpriced, ErrCodeNetwork:
		return true
	default:
		return false
	}
}

// determineSeverity determines the default severity based on error code
func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeUnknown, ErrCodeInsufficientFunds, ErrCodeTrustFailure:
		return SeverityCritical
	case ErrCodeDatabase, ErrCodeContractLogic, ErrCodeGasLimitExceeded:
		return SeverityHigh
	case ErrCodeNetwork, ErrCodeNonceStale, ErrCodeUnderpriced, ErrCodeContentStore:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig, ErrCodeEncoding:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func defaultAction(code ErrorCode) string {
	switch code {
	case ErrCodeContractLogic:
		return "fix the call parameters; do not retry"
	case ErrCodeValidation:
		return "fix the caller input"
	case ErrCodeInsufficientFunds:
		return "fund the signing account"
	case ErrCodeNonceStale:
		return "refresh the nonce and retry"
	case ErrCodeUnderpriced:
		return "bump the gas price and retry"
	case ErrCodeGasLimitExceeded:
		return "split the operation into smaller transactions"
	case ErrCodeNetwork:
		return "retry after backoff"
	case ErrCodeEncoding:
		return "remove non-serializable values from the projection"
	case ErrCodeConfig:
		return "fix the configuration file"
	case ErrCodeDatabase:
		return "check the journal database"
	case ErrCodeContentStore:
		return "check the content store node"
	case ErrCodeTrustFailure:
		return "investigate the record; it changed after anchoring"
	default:
		return "surface to an operator"
	}
}

// Common error constructors

// NewValidationError creates a validation error naming the offending field
func NewValidationError(chain, field, message string) *LedgerError {
	return NewLedgerError(ErrCodeValidation, chain, message, nil).WithContext("field", field)
}

// NewContractLogicError creates a contract revert error
func NewContractLogicError(chain, message string, cause error) *LedgerError {
	return NewLedgerError(ErrCodeContractLogic, chain, message, cause)
}

// NewNetworkError creates a network error
func NewNetworkError(chain, message string, cause error) *LedgerError {
	return NewLedgerError(ErrCodeNetwork, chain, message, cause)
}

// NewEncodingError creates an encoding error
func NewEncodingError(message string, cause error) *LedgerError {
	return NewLedgerError(ErrCodeEncoding, "", message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *LedgerError {
	return NewLedgerError(ErrCodeConfig, "", message, nil)
}

// NewDatabaseError creates a database error
func NewDatabaseError(message string, cause error) *LedgerError {
	return NewLedgerError(ErrCodeDatabase, "", message, cause)
}

// NewContentStoreError creates a content store error
func NewContentStoreError(message string, cause error) *LedgerError {
	return NewLedgerError(ErrCodeContentStore, "", message, cause)
}

// NewTrustFailureError reports an anchored record whose current hash differs
// from the anchored one
func NewTrustFailureError(chain, message string) *LedgerError {
	return NewLedgerError(ErrCodeTrustFailure, chain, message, nil)
}
