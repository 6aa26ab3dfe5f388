package db

import (
	"context"
	"encoding/json"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/store"
	"github.com/pushchain/credential-anchor/anchorClient/verification"
)

// ErrNotFound is returned when a journal lookup matches no row.
var ErrNotFound = errors.New("journal entry not found")

// Journal persists the engine's audit data. Receipts and attempts are only
// ever inserted; the status table keeps one row per record.
type Journal struct {
	db     *DB
	logger zerolog.Logger
}

// NewJournal wraps an opened database.
func NewJournal(database *DB, logger zerolog.Logger) *Journal {
	return &Journal{
		db:     database,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

// SaveReceipt inserts a completed submission.
func (j *Journal) SaveReceipt(ctx context.Context, r *common.AnchorReceipt) error {
	if r == nil {
		return errors.New("receipt is nil")
	}
	row := store.AnchorReceipt{
		RecordID:        r.RecordID,
		TxHash:          r.TransactionHash,
		BlockNumber:     r.BlockNumber,
		GasUsed:         r.GasUsed,
		ContractAddress: r.ContractAddress,
		AnchorID:        r.AnchorIdentifier.Hex(),
		ContentHash:     r.ContentHash,
		Timestamp:       r.Timestamp.UTC(),
		Status:          string(r.Status),
		Attempts:        r.Attempts,
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
	}
	if err := j.db.Client().WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrapf(err, "failed to save receipt for record %s", r.RecordID)
	}

	j.logger.Debug().
		Str("record_id", r.RecordID).
		Str("tx_hash", r.TransactionHash).
		Str("status", string(r.Status)).
		Msg("receipt saved")
	return nil
}

// LatestReceipt returns the most recently saved receipt of a record.
func (j *Journal) LatestReceipt(ctx context.Context, recordID string) (*common.AnchorReceipt, error) {
	var row store.AnchorReceipt
	err := j.db.Client().WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "no receipt for record %s", recordID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load receipt for record %s", recordID)
	}
	return receiptFromRow(row)
}

// LatestSuccessfulReceipt returns the most recent success receipt of a record.
func (j *Journal) LatestSuccessfulReceipt(ctx context.Context, recordID string) (*common.AnchorReceipt, error) {
	var row store.AnchorReceipt
	err := j.db.Client().WithContext(ctx).
		Where("record_id = ? AND status = ?", recordID, string(common.ReceiptStatusSuccess)).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "no successful receipt for record %s", recordID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load receipt for record %s", recordID)
	}
	return receiptFromRow(row)
}

// ListReceipts returns every receipt of a record, oldest first.
func (j *Journal) ListReceipts(ctx context.Context, recordID string) ([]common.AnchorReceipt, error) {
	var rows []store.AnchorReceipt
	if err := j.db.Client().WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list receipts for record %s", recordID)
	}

	out := make([]common.AnchorReceipt, 0, len(rows))
	for _, row := range rows {
		r, err := receiptFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// AppendAttempt inserts an attempt. An attempt id can be written once.
func (j *Journal) AppendAttempt(ctx context.Context, recordID string, a verification.Attempt) error {
	return appendAttempt(j.db.Client().WithContext(ctx), recordID, a)
}

// ListAttempts returns the audit trail of a record, oldest first.
func (j *Journal) ListAttempts(ctx context.Context, recordID string) ([]verification.Attempt, error) {
	var rows []store.VerificationAttempt
	if err := j.db.Client().WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list attempts for record %s", recordID)
	}

	out := make([]verification.Attempt, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.AttemptID)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt attempt id %q", row.AttemptID)
		}
		a := verification.Attempt{
			ID:        id,
			Timestamp: row.Timestamp.UTC(),
			Actor:     row.Actor,
			Result:    verification.AttemptResult(row.Result),
			Reason:    row.Reason,
		}
		if len(row.Data) > 0 {
			if err := json.Unmarshal(row.Data, &a.Data); err != nil {
				return nil, errors.Wrapf(err, "corrupt data on attempt %s", row.AttemptID)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// SaveStatus upserts the status snapshot of a record.
func (j *Journal) SaveStatus(ctx context.Context, recordID string, status verification.Status) error {
	return saveStatus(j.db.Client().WithContext(ctx), recordID, status)
}

// Status returns the last saved status of a record.
func (j *Journal) Status(ctx context.Context, recordID string) (verification.Status, error) {
	var row store.RecordStatus
	err := j.db.Client().WithContext(ctx).Where("record_id = ?", recordID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return verification.StatusUnset, errors.Wrapf(ErrNotFound, "no status for record %s", recordID)
	}
	if err != nil {
		return verification.StatusUnset, errors.Wrapf(err, "failed to load status for record %s", recordID)
	}
	return verification.Status(row.Status), nil
}

// RecordTransition stores an attempt and the resulting status in one
// transaction.
func (j *Journal) RecordTransition(ctx context.Context, recordID string, a verification.Attempt, status verification.Status) error {
	err := j.db.Client().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := appendAttempt(tx, recordID, a); err != nil {
			return err
		}
		return saveStatus(tx, recordID, status)
	})
	if err != nil {
		return err
	}

	j.logger.Debug().
		Str("record_id", recordID).
		Str("attempt_id", a.ID.String()).
		Str("status", string(status)).
		Msg("transition journaled")
	return nil
}

// Close checkpoints and closes the underlying database.
func (j *Journal) Close() error {
	if err := j.db.Checkpoint(); err != nil {
		j.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}
	return j.db.Close()
}

func appendAttempt(tx *gorm.DB, recordID string, a verification.Attempt) error {
	if recordID == "" {
		return errors.New("record id is required")
	}
	if a.ID == uuid.Nil {
		return errors.New("attempt id is required")
	}

	var data []byte
	if len(a.Data) > 0 {
		encoded, err := json.Marshal(a.Data)
		if err != nil {
			return errors.Wrapf(err, "failed to encode data for attempt %s", a.ID)
		}
		data = encoded
	}

	row := store.VerificationAttempt{
		AttemptID: a.ID.String(),
		RecordID:  recordID,
		Timestamp: a.Timestamp.UTC(),
		Actor:     a.Actor,
		Result:    string(a.Result),
		Reason:    a.Reason,
		Data:      data,
	}
	if err := tx.Create(&row).Error; err != nil {
		return errors.Wrapf(err, "failed to append attempt %s for record %s", a.ID, recordID)
	}
	return nil
}

func saveStatus(tx *gorm.DB, recordID string, status verification.Status) error {
	row := store.RecordStatus{RecordID: recordID, Status: string(status)}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrapf(err, "failed to save status for record %s", recordID)
	}
	return nil
}

func receiptFromRow(row store.AnchorReceipt) (*common.AnchorReceipt, error) {
	id, err := common.ParseAnchorID(row.AnchorID)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt anchor id on receipt %d", row.ID)
	}
	contract := row.ContractAddress
	if ethcommon.IsHexAddress(contract) {
		contract = ethcommon.HexToAddress(contract).Hex()
	}
	return &common.AnchorReceipt{
		RecordID:         row.RecordID,
		TransactionHash:  row.TxHash,
		BlockNumber:      row.BlockNumber,
		GasUsed:          row.GasUsed,
		ContractAddress:  contract,
		AnchorIdentifier: id,
		ContentHash:      row.ContentHash,
		Timestamp:        row.Timestamp.UTC(),
		Status:           common.ReceiptStatus(row.Status),
		Attempts:         row.Attempts,
		ErrorCode:        row.ErrorCode,
		ErrorMessage:     row.ErrorMessage,
	}, nil
}
