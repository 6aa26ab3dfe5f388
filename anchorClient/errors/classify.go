package errors

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// classificationRule maps node error text onto an error code. Rules are
// evaluated in order; the first rule with a matching pattern wins.
type classificationRule struct {
	code     ErrorCode
	message  string
	patterns []string
}

var classificationRules = []classificationRule{
	{
		code:    ErrCodeUnderpriced,
		message: "transaction gas price too low to replace the pending transaction",
		patterns: []string{
			"replacement transaction underpriced",
			"transaction underpriced",
			"fee too low",
		},
	},
	{
		code:    ErrCodeNonceStale,
		message: "transaction nonce already used",
		patterns: []string{
			"nonce too low",
			"nonce has already been used",
			"invalid nonce",
		},
	},
	{
		code:     ErrCodeInsufficientFunds,
		message:  "signing account has insufficient balance",
		patterns: []string{"insufficient funds", "insufficient balance"},
	},
	{
		code:    ErrCodeGasLimitExceeded,
		message: "transaction needs more gas than a block allows",
		patterns: []string{
			"exceeds block gas limit",
			"gas limit reached",
		},
	},
	{
		code:    ErrCodeContractLogic,
		message: "contract rejected the call",
		patterns: []string{
			"execution reverted",
			"reverted",
			"invalid opcode",
		},
	},
	{
		code:    ErrCodeValidation,
		message: "transaction is malformed",
		patterns: []string{
			"intrinsic gas too low",
			"invalid sender",
			"invalid chain id",
			"invalid address",
			"oversized data",
			"exceeds the configured cap",
		},
	},
	{
		code:    ErrCodeNetwork,
		message: "ledger node unreachable or slow",
		patterns: []string{
			"timeout",
			"timed out",
			"deadline exceeded",
			"connection refused",
			"connection reset",
			"broken pipe",
			"no such host",
			"temporary failure",
			"too many requests",
			"rate limit",
			"service unavailable",
			"bad gateway",
		},
	},
}

// Classify maps any error raised while building, sending or confirming a
// transaction onto a LedgerError. Errors that are already classified are
// returned unchanged. Anything no rule recognises becomes ErrCodeUnknown,
// which is not retryable.
func Classify(err error) *LedgerError {
	if err == nil {
		return nil
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr
	}

	if errors.Is(err, context.Canceled) {
		return NewLedgerError(ErrCodeUnknown, "", "operation cancelled by caller", err).
			WithAction("none; the caller aborted the operation")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkError("", "ledger request timed out", err)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(msg, pattern) {
				return NewLedgerError(rule.code, "", rule.message, err)
			}
		}
	}

	// Reverts carry ABI-encoded reason data even when the text is generic.
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return NewContractLogicError("", "contract rejected the call", err).
			WithContext("revert_data", dataErr.ErrorData())
	}

	var netErr net.Error
	if errors.As(err, &netErr) || strings.HasSuffix(msg, "eof") {
		return NewNetworkError("", "ledger node unreachable or slow", err)
	}

	return NewLedgerError(ErrCodeUnknown, "", "unclassified ledger error", err)
}

// IsAlreadyKnown reports whether the node already holds the exact signed
// transaction in its pool. The broadcast is then treated as accepted.
func IsAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
