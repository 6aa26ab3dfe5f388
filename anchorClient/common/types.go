package common

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// AnchorID is the 32-byte idempotency key under which a record is anchored.
type AnchorID [32]byte

// Hex returns the 0x-prefixed lowercase hex form of the identifier.
func (id AnchorID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id AnchorID) String() string {
	return id.Hex()
}

// IsZero reports whether the identifier is unset.
func (id AnchorID) IsZero() bool {
	return id == AnchorID{}
}

// MarshalText encodes the identifier as 0x-prefixed hex.
func (id AnchorID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText decodes a 0x-prefixed (or bare) 64 character hex string.
func (id *AnchorID) UnmarshalText(text []byte) error {
	parsed, err := ParseAnchorID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseAnchorID decodes a 0x-prefixed (or bare) 64 character hex string.
func ParseAnchorID(s string) (AnchorID, error) {
	var id AnchorID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return id, fmt.Errorf("invalid anchor id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid anchor id %q: want 32 bytes, got %d", s, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// ReceiptStatus is the terminal outcome of a submission.
type ReceiptStatus string

const (
	ReceiptStatusSuccess ReceiptStatus = "success"
	// ReceiptStatusFailed means the transaction was mined but reverted.
	ReceiptStatusFailed ReceiptStatus = "failed"
	// ReceiptStatusError means no transaction landed (rejected, timed out, unclassified).
	ReceiptStatusError ReceiptStatus = "error"
)

// AnchorReceipt records one completed submission. It is created once and
// never mutated; a new attempt produces a new receipt.
type AnchorReceipt struct {
	RecordID         string        `json:"record_id,omitempty"`
	TransactionHash  string        `json:"transaction_hash,omitempty"`
	BlockNumber      uint64        `json:"block_number"`
	GasUsed          uint64        `json:"gas_used"`
	ContractAddress  string        `json:"contract_address"`
	AnchorIdentifier AnchorID      `json:"anchor_identifier"`
	ContentHash      string        `json:"content_hash"`
	Timestamp        time.Time     `json:"timestamp"`
	Status           ReceiptStatus `json:"status"`
	Attempts         int           `json:"attempts"`
	ErrorCode        string        `json:"error_code,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

// Succeeded reports whether the receipt describes a mined, successful transaction.
func (r *AnchorReceipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccess
}
