package errors

import (
	"errors"
)

// WrapLedgerError wraps an error as a LedgerError if it isn't already one
func WrapLedgerError(err error, code ErrorCode, chain, message string) *LedgerError {
	if err == nil {
		return nil
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		ledgerErr.WithContext("wrapped_message", message)
		if chain != "" && ledgerErr.Chain == "" {
			ledgerErr.Chain = chain
		}
		return ledgerErr
	}

	return NewLedgerError(code, chain, message, err)
}

// IsCode checks if an error is a LedgerError with specific code
func IsCode(err error, code ErrorCode) bool {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code == code
	}
	return false
}
