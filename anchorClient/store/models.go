// Package store contains the GORM models of the engine journal.
//
// Database Structure (database file: journal.db):
//
//	journal.db
//	├── anchor_receipts        one row per completed submission, never updated
//	├── verification_attempts  append-only audit trail
//	└── record_statuses        latest status per record
package store

import (
	"time"

	"gorm.io/gorm"
)

// AnchorReceipt is a completed submission, successful or not.
type AnchorReceipt struct {
	gorm.Model
	RecordID        string `gorm:"index"`
	TxHash          string `gorm:"index"`
	BlockNumber     uint64
	GasUsed         uint64
	ContractAddress string
	AnchorID        string `gorm:"index;not null"` // 0x-prefixed hex
	ContentHash     string `gorm:"not null"`
	Timestamp       time.Time
	Status          string `gorm:"index;not null"` // "success", "failed" or "error"
	Attempts        int
	ErrorCode       string
	ErrorMessage    string `gorm:"type:text"`
}

// VerificationAttempt is one audit entry. Rows are inserted, never updated.
type VerificationAttempt struct {
	ID        uint      `gorm:"primaryKey"`
	AttemptID string    `gorm:"uniqueIndex;not null"`
	RecordID  string    `gorm:"index;not null"`
	Timestamp time.Time `gorm:"index"`
	Actor     string    `gorm:"not null"`
	Result    string    `gorm:"not null"` // "pending", "approved", "rejected", "revoked" or "expired"
	Reason    string    `gorm:"type:text"`
	Data      []byte    // JSON-encoded attempt data
}

// RecordStatus holds the latest verification status of a record.
type RecordStatus struct {
	RecordID  string `gorm:"primaryKey"`
	Status    string `gorm:"index"`
	UpdatedAt time.Time
}
