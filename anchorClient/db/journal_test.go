package db

import (
	"context"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/pushchain/credential-anchor/anchorClient/canonical"
	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/verification"
)

type JournalSuite struct {
	suite.Suite
	ctx     context.Context
	journal *Journal
}

func TestJournalSuite(t *testing.T) {
	suite.Run(t, new(JournalSuite))
}

func (s *JournalSuite) SetupTest() {
	s.ctx = context.Background()
	database, err := OpenInMemoryDB(true)
	s.Require().NoError(err)
	s.journal = NewJournal(database, zerolog.Nop())
}

func (s *JournalSuite) TearDownTest() {
	s.Require().NoError(s.journal.Close())
}

func sampleReceipt(recordID string, status common.ReceiptStatus, tx string) *common.AnchorReceipt {
	return &common.AnchorReceipt{
		RecordID:         recordID,
		TransactionHash:  tx,
		BlockNumber:      100,
		GasUsed:          52000,
		ContractAddress:  "0x00000000000000000000000000000000000000aa",
		AnchorIdentifier: canonical.DeriveID("Acme University", "alice@example.com", "BSc Computer Science", 1748736000),
		ContentHash:      canonical.HashBytes([]byte(recordID)),
		Timestamp:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:           status,
		Attempts:         1,
	}
}

func (s *JournalSuite) TestReceipts() {
	failed := sampleReceipt("rec-1", common.ReceiptStatusFailed, "0x01")
	failed.ErrorCode = "CONTRACT_LOGIC"
	failed.ErrorMessage = "contract rejected the call"
	s.Require().NoError(s.journal.SaveReceipt(s.ctx, failed))
	s.Require().NoError(s.journal.SaveReceipt(s.ctx, sampleReceipt("rec-1", common.ReceiptStatusSuccess, "0x02")))
	s.Require().NoError(s.journal.SaveReceipt(s.ctx, sampleReceipt("rec-2", common.ReceiptStatusSuccess, "0x03")))

	latest, err := s.journal.LatestReceipt(s.ctx, "rec-1")
	s.Require().NoError(err)
	s.Equal("0x02", latest.TransactionHash)
	s.Equal(failed.AnchorIdentifier, latest.AnchorIdentifier)
	s.Equal(common.ReceiptStatusSuccess, latest.Status)
	s.Equal(ethcommon.HexToAddress(failed.ContractAddress).Hex(), latest.ContractAddress)

	all, err := s.journal.ListReceipts(s.ctx, "rec-1")
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("0x01", all[0].TransactionHash)
	s.Equal("CONTRACT_LOGIC", all[0].ErrorCode)
	s.Equal(failed.Timestamp, all[0].Timestamp)

	_, err = s.journal.LatestReceipt(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
	s.Error(s.journal.SaveReceipt(s.ctx, nil))
}

func (s *JournalSuite) TestLatestSuccessfulReceipt() {
	s.Require().NoError(s.journal.SaveReceipt(s.ctx, sampleReceipt("rec-1", common.ReceiptStatusSuccess, "0x01")))
	s.Require().NoError(s.journal.SaveReceipt(s.ctx, sampleReceipt("rec-1", common.ReceiptStatusError, "")))

	latest, err := s.journal.LatestSuccessfulReceipt(s.ctx, "rec-1")
	s.Require().NoError(err)
	s.Equal("0x01", latest.TransactionHash)

	_, err = s.journal.LatestSuccessfulReceipt(s.ctx, "rec-2")
	s.ErrorIs(err, ErrNotFound)
}

func (s *JournalSuite) TestAttemptsAreAppendOnly() {
	a := verification.Attempt{
		ID:        uuid.New(),
		Timestamp: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		Actor:     "registrar",
		Result:    verification.ResultApproved,
		Data:      map[string]interface{}{"note": "checked"},
	}
	s.Require().NoError(s.journal.AppendAttempt(s.ctx, "rec-1", a))

	// Rewriting the same attempt id is refused.
	edited := a
	edited.Result = verification.ResultRejected
	s.Error(s.journal.AppendAttempt(s.ctx, "rec-1", edited))

	b := verification.Attempt{ID: uuid.New(), Timestamp: a.Timestamp.Add(time.Minute), Actor: "system", Result: verification.ResultRevoked, Reason: "issued in error"}
	s.Require().NoError(s.journal.AppendAttempt(s.ctx, "rec-1", b))

	got, err := s.journal.ListAttempts(s.ctx, "rec-1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(a.ID, got[0].ID)
	s.Equal(verification.ResultApproved, got[0].Result)
	s.Equal("checked", got[0].Data["note"])
	s.Equal(a.Timestamp, got[0].Timestamp)
	s.Equal("issued in error", got[1].Reason)
	s.Nil(got[1].Data)

	s.Error(s.journal.AppendAttempt(s.ctx, "", b))
	s.Error(s.journal.AppendAttempt(s.ctx, "rec-1", verification.Attempt{}))
}

func (s *JournalSuite) TestStatusUpsert() {
	_, err := s.journal.Status(s.ctx, "rec-1")
	s.ErrorIs(err, ErrNotFound)

	s.Require().NoError(s.journal.SaveStatus(s.ctx, "rec-1", verification.StatusPending))
	s.Require().NoError(s.journal.SaveStatus(s.ctx, "rec-1", verification.StatusVerified))

	status, err := s.journal.Status(s.ctx, "rec-1")
	s.Require().NoError(err)
	s.Equal(verification.StatusVerified, status)
}

func (s *JournalSuite) TestRecordTransitionIsAtomic() {
	a := verification.Attempt{ID: uuid.New(), Timestamp: time.Now().UTC(), Actor: "alice", Result: verification.ResultPending}
	s.Require().NoError(s.journal.RecordTransition(s.ctx, "rec-1", a, verification.StatusPending))

	// Duplicate attempt id fails the insert, so the status must not move.
	err := s.journal.RecordTransition(s.ctx, "rec-1", a, verification.StatusVerified)
	s.Error(err)

	status, err := s.journal.Status(s.ctx, "rec-1")
	s.Require().NoError(err)
	s.Equal(verification.StatusPending, status)

	attempts, err := s.journal.ListAttempts(s.ctx, "rec-1")
	s.Require().NoError(err)
	s.Len(attempts, 1)
}

func (s *JournalSuite) TestMachineWritesThroughJournal() {
	m := verification.NewMachine(zerolog.Nop(), verification.WithJournal(s.journal))
	rec := &verification.Record{ID: "rec-9", Issuer: "Acme University", Subject: "bob@example.com", Title: "MSc"}

	_, err := m.RequestVerification(s.ctx, rec, "bob@example.com")
	s.Require().NoError(err)
	_, err = m.Reject(s.ctx, rec, "registrar", "missing transcript")
	s.Require().NoError(err)

	status, err := s.journal.Status(s.ctx, "rec-9")
	s.Require().NoError(err)
	s.Equal(verification.StatusRejected, status)

	attempts, err := s.journal.ListAttempts(s.ctx, "rec-9")
	s.Require().NoError(err)
	s.Require().Len(attempts, 2)
	s.Equal(rec.Attempts[1].ID, attempts[1].ID)
	s.Equal("missing transcript", attempts[1].Reason)
}
