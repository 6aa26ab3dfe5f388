package core

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/credential-anchor/anchorClient/canonical"
	"github.com/pushchain/credential-anchor/anchorClient/cas"
	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/db"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
	"github.com/pushchain/credential-anchor/anchorClient/ledger"
	"github.com/pushchain/credential-anchor/anchorClient/verification"
)

const (
	testChain    = "eip155:11155111"
	testContract = "0x00000000000000000000000000000000000000Cc"
)

// MockLedger is a mock for LedgerInterface
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ChainID() string         { return testChain }
func (m *MockLedger) ContractAddress() string { return testContract }

func (m *MockLedger) StoreCredential(ctx context.Context, signer *ledger.Signer, req ledger.StoreRequest, maxRetries int) *ledger.SubmitResult {
	args := m.Called(ctx, signer, req, maxRetries)
	return args.Get(0).(*ledger.SubmitResult)
}

func (m *MockLedger) RevokeCredential(ctx context.Context, signer *ledger.Signer, anchorID common.AnchorID, reason string, maxRetries int) *ledger.SubmitResult {
	args := m.Called(ctx, signer, anchorID, reason, maxRetries)
	return args.Get(0).(*ledger.SubmitResult)
}

func (m *MockLedger) AuthorizeIssuer(ctx context.Context, signer *ledger.Signer, issuer ethcommon.Address, maxRetries int) *ledger.SubmitResult {
	args := m.Called(ctx, signer, issuer, maxRetries)
	return args.Get(0).(*ledger.SubmitResult)
}

func (m *MockLedger) RevokeIssuer(ctx context.Context, signer *ledger.Signer, issuer ethcommon.Address, maxRetries int) *ledger.SubmitResult {
	args := m.Called(ctx, signer, issuer, maxRetries)
	return args.Get(0).(*ledger.SubmitResult)
}

func (m *MockLedger) IsAuthorizedIssuer(ctx context.Context, issuer ethcommon.Address) (bool, error) {
	args := m.Called(ctx, issuer)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) VerifyCredential(ctx context.Context, anchorID common.AnchorID) (*ledger.OnChainCredential, error) {
	args := m.Called(ctx, anchorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.OnChainCredential), args.Error(1)
}

func (m *MockLedger) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	args := m.Called(ctx, blockNumber)
	return args.Get(0).(time.Time), args.Error(1)
}

// MockContentStore is a mock for ContentStoreInterface
type MockContentStore struct {
	mock.Mock
}

func (m *MockContentStore) Mirror(content []byte) (*cas.MirrorResult, error) {
	args := m.Called(content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cas.MirrorResult), args.Error(1)
}

func (m *MockContentStore) Get(cid string) ([]byte, error) {
	args := m.Called(cid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var (
	blockTime = time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	localNow  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func acmeRecord() *verification.Record {
	return &verification.Record{
		ID:           "cred-alice-bsc",
		Kind:         verification.KindCredential,
		Issuer:       "Acme University",
		Subject:      "alice@example.com",
		Title:        "BSc Computer Science",
		Organization: "Acme University",
		Type:         "degree",
		IssueDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testSigner(t *testing.T) *ledger.Signer {
	t.Helper()
	signer, err := ledger.NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	return signer
}

func successResult(hash string, block int64) *ledger.SubmitResult {
	return &ledger.SubmitResult{
		Success:  true,
		TxHash:   hash,
		Attempts: 1,
		TxHashes: []string{hash},
		Receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(block),
			GasUsed:     61234,
		},
	}
}

func newTestEngine(l LedgerInterface, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return localNow })}, opts...)
	return NewEngine(l, zerolog.Nop(), opts...)
}

func newTestJournal(t *testing.T) *db.Journal {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	j := db.NewJournal(database, zerolog.Nop())
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	signer := testSigner(t)
	rec := acmeRecord()

	expectedHash, err := rec.ContentHash()
	require.NoError(t, err)
	expectedID := canonical.DeriveID("Acme University", "alice@example.com", "BSc Computer Science", rec.IssueDate.Unix())

	l := new(MockLedger)
	l.On("StoreCredential", mock.Anything, signer, mock.MatchedBy(func(req ledger.StoreRequest) bool {
		want, _ := canonical.HashToBytes32(expectedHash)
		return req.AnchorID == expectedID && req.ContentHash == want &&
			req.Issuer == "Acme University" && req.Subject == "alice@example.com"
	}), 0).Return(successResult("0xfeed", 812)).Once()
	l.On("BlockTimestamp", mock.Anything, uint64(812)).Return(blockTime, nil)

	journal := newTestJournal(t)
	machine := verification.NewMachine(zerolog.Nop(), verification.WithJournal(journal))
	engine := newTestEngine(l, WithReceiptJournal(journal), WithMachine(machine))

	// Anchor.
	res := engine.Anchor(ctx, rec, nil, signer)
	require.True(t, res.Succeeded(), "anchor failed: %v", res.Err)
	assert.Equal(t, expectedHash, res.ContentHash)
	assert.Len(t, res.ContentHash, 64)
	assert.Equal(t, expectedID, res.AnchorID)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, res.Attempts)

	require.NotNil(t, rec.Anchor)
	assert.Equal(t, "0xfeed", rec.Anchor.TransactionHash)
	assert.Equal(t, uint64(812), rec.Anchor.BlockNumber)
	assert.Equal(t, uint64(61234), rec.Anchor.GasUsed)
	assert.Equal(t, blockTime, rec.Anchor.Timestamp)
	assert.Equal(t, testContract, rec.Anchor.ContractAddress)
	assert.Equal(t, verification.StatusUnset, rec.Status)

	saved, err := journal.LatestReceipt(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, common.ReceiptStatusSuccess, saved.Status)
	assert.Equal(t, expectedHash, saved.ContentHash)

	// Request and approve.
	_, err = machine.RequestVerification(ctx, rec, "alice@example.com")
	require.NoError(t, err)
	out, err := machine.Approve(ctx, rec, "registrar@acme.edu", nil)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, out.Status)

	attempts, err := journal.ListAttempts(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)

	// Untouched record reverifies.
	rv, err := engine.Reverify(rec)
	require.NoError(t, err)
	assert.True(t, rv.HashMatches)

	// Anchoring again converges on the journaled receipt.
	again := engine.Anchor(ctx, rec, nil, signer)
	require.True(t, again.Succeeded())
	assert.True(t, again.AlreadyAnchored)
	l.AssertNumberOfCalls(t, "StoreCredential", 1)

	// Tampering is detected.
	rec.Title = "MSc Computer Science"
	rv, err = engine.Reverify(rec)
	require.NoError(t, err)
	assert.False(t, rv.HashMatches)
	assert.Equal(t, expectedHash, rv.AnchoredHash)
	assert.NotEqual(t, rv.AnchoredHash, rv.CurrentHash)

	l.AssertExpectations(t)
}

func TestEngine_AnchorValidation(t *testing.T) {
	engine := newTestEngine(new(MockLedger))

	tests := []struct {
		name  string
		edit  func(r *verification.Record)
		field string
	}{
		{name: "missing id", edit: func(r *verification.Record) { r.ID = "" }, field: "id"},
		{name: "missing issuer", edit: func(r *verification.Record) { r.Issuer = " " }, field: "issuer"},
		{name: "missing subject", edit: func(r *verification.Record) { r.Subject = "" }, field: "subject"},
		{name: "missing title", edit: func(r *verification.Record) { r.Title = "" }, field: "title"},
		{name: "missing issue date", edit: func(r *verification.Record) { r.IssueDate = time.Time{} }, field: "issue_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := acmeRecord()
			tt.edit(rec)
			res := engine.Anchor(context.Background(), rec, nil, nil)
			require.NotNil(t, res.Err)
			assert.Equal(t, anchorerrors.ErrCodeValidation, res.Err.Code)
			assert.Equal(t, tt.field, res.Err.Context["field"])
			assert.False(t, res.Succeeded())
		})
	}

	res := engine.Anchor(context.Background(), nil, nil, nil)
	require.NotNil(t, res.Err)
	assert.Equal(t, "record", res.Err.Context["field"])
}

func TestEngine_MirrorFailureIsDegraded(t *testing.T) {
	signer := testSigner(t)
	rec := acmeRecord()
	doc := []byte("%PDF-1.7 diploma")

	l := new(MockLedger)
	l.On("StoreCredential", mock.Anything, signer, mock.Anything, 0).Return(successResult("0x01", 10))
	l.On("BlockTimestamp", mock.Anything, uint64(10)).Return(blockTime, nil)

	store := new(MockContentStore)
	store.On("Mirror", doc).Return(nil, anchorerrors.NewContentStoreError("ipfs add failed", errors.New("connection refused")))

	engine := newTestEngine(l, WithContentStore(store))
	res := engine.Anchor(context.Background(), rec, doc, signer)

	require.True(t, res.Succeeded())
	assert.True(t, res.Degraded)
	require.Error(t, res.MirrorError)
	assert.True(t, anchorerrors.IsCode(res.MirrorError, anchorerrors.ErrCodeContentStore))
	assert.Empty(t, res.ContentID)
	store.AssertExpectations(t)
}

func TestEngine_MirrorsProjectionWhenNoDocument(t *testing.T) {
	signer := testSigner(t)
	rec := acmeRecord()
	canon, err := canonical.Marshal(rec.Projection())
	require.NoError(t, err)

	l := new(MockLedger)
	l.On("StoreCredential", mock.Anything, signer, mock.Anything, 0).Return(successResult("0x01", 10))
	l.On("BlockTimestamp", mock.Anything, uint64(10)).Return(blockTime, nil)

	store := new(MockContentStore)
	store.On("Mirror", canon).Return(&cas.MirrorResult{CID: "bafy-test", GatewayURL: "https://ipfs.io/ipfs/bafy-test", Pinned: true}, nil)

	res := newTestEngine(l, WithContentStore(store)).Anchor(context.Background(), rec, nil, signer)
	require.True(t, res.Succeeded())
	assert.False(t, res.Degraded)
	assert.Equal(t, "bafy-test", res.ContentID)
	assert.Equal(t, "https://ipfs.io/ipfs/bafy-test", res.GatewayURL)
	store.AssertExpectations(t)
}

func TestEngine_PinFailureKeepsContentID(t *testing.T) {
	signer := testSigner(t)
	rec := acmeRecord()
	doc := []byte("%PDF-1.7 diploma")

	l := new(MockLedger)
	l.On("StoreCredential", mock.Anything, signer, mock.Anything, 0).Return(successResult("0x01", 10))
	l.On("BlockTimestamp", mock.Anything, uint64(10)).Return(blockTime, nil)

	store := new(MockContentStore)
	store.On("Mirror", doc).Return(
		&cas.MirrorResult{CID: "bafy-doc", GatewayURL: "https://ipfs.io/ipfs/bafy-doc"},
		anchorerrors.NewContentStoreError("ipfs pin failed", errors.New("pin: context deadline exceeded")),
	)

	res := newTestEngine(l, WithContentStore(store)).Anchor(context.Background(), rec, doc, signer)
	require.True(t, res.Succeeded())
	assert.True(t, res.Degraded)
	require.Error(t, res.MirrorError)
	assert.Equal(t, "bafy-doc", res.ContentID)
	assert.Equal(t, "https://ipfs.io/ipfs/bafy-doc", res.GatewayURL)
}

type failingJournal struct {
	err error
}

func (f failingJournal) SaveReceipt(context.Context, *common.AnchorReceipt) error { return f.err }

func (f failingJournal) LatestSuccessfulReceipt(context.Context, string) (*common.AnchorReceipt, error) {
	return nil, db.ErrNotFound
}

func TestEngine_JournalFailureIsDegraded(t *testing.T) {
	signer := testSigner(t)
	rec := acmeRecord()

	l := new(MockLedger)
	l.On("StoreCredential", mock.Anything, signer, mock.Anything, 0).Return(successResult("0x01", 10))
	l.On("BlockTimestamp", mock.Anything, uint64(10)).Return(blockTime, nil)

	journalErr := errors.New("database is locked")
	res := newTestEngine(l, WithReceiptJournal(failingJournal{err: journalErr})).Anchor(context.Background(), rec, nil, signer)

	require.True(t, res.Succeeded())
	assert.True(t, res.Degraded)
	assert.ErrorIs(t, res.JournalError, journalErr)
	assert.Nil(t, res.MirrorError)
	require.NotNil(t, rec.Anchor)
}

func TestEngine_RefusesToReanchorChangedRecord(t *testing.T) {
	ctx := context.Background()
	signer := testSigner(t)

	anchored := func(t *testing.T) (*MockLedger, *db.Journal, *Engine, *verification.Record) {
		t.Helper()
		l := new(MockLedger)
		l.On("StoreCredential", mock.Anything, signer, mock.Anything, 0).Return(successResult("0xfeed", 812)).Once()
		l.On("BlockTimestamp", mock.Anything, uint64(812)).Return(blockTime, nil)

		journal := newTestJournal(t)
		engine := newTestEngine(l, WithReceiptJournal(journal))
		rec := acmeRecord()
		require.True(t, engine.Anchor(ctx, rec, nil, signer).Succeeded())
		return l, journal, engine, rec
	}

	t.Run("receipt on the record", func(t *testing.T) {
		l, _, engine, rec := anchored(t)
		anchoredHash := rec.Anchor.ContentHash
		anchorID := rec.AnchorID()

		rec.Organization = "Acme Online"
		require.Equal(t, anchorID, rec.AnchorID())

		res := engine.Anchor(ctx, rec, nil, signer)
		require.NotNil(t, res.Err)
		assert.Equal(t, anchorerrors.ErrCodeTrustFailure, res.Err.Code)
		assert.False(t, res.Err.IsRetryable())
		assert.False(t, res.Succeeded())
		assert.False(t, res.AlreadyAnchored)
		assert.Equal(t, anchoredHash, res.Err.Context["anchored_hash"])
		l.AssertNumberOfCalls(t, "StoreCredential", 1)

		// The original receipt stays linked, so reverification still fails.
		assert.Equal(t, "0xfeed", rec.Anchor.TransactionHash)
		rv, err := engine.Reverify(rec)
		require.NoError(t, err)
		assert.False(t, rv.HashMatches)
	})

	t.Run("receipt only in the journal", func(t *testing.T) {
		l, _, engine, rec := anchored(t)
		rec.Anchor = nil
		rec.Type = "diploma"

		res := engine.Anchor(ctx, rec, nil, signer)
		require.NotNil(t, res.Err)
		assert.Equal(t, anchorerrors.ErrCodeTrustFailure, res.Err.Code)
		assert.Nil(t, rec.Anchor)
		l.AssertNumberOfCalls(t, "StoreCredential", 1)
	})
}

func TestEngine_AnchorFailureReceipts(t *testing.T) {
	signer := testSigner(t)

	t.Run("reverted transaction", func(t *testing.T) {
		rec := acmeRecord()
		l := new(MockLedger)
		l.On("StoreCredential", mock.Anything, signer, mock.Anything, 0).Return(&ledger.SubmitResult{
			TxHash:   "0xdead",
			Attempts: 1,
			Receipt:  &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5), GasUsed: 30000},
			Err:      anchorerrors.NewContractLogicError(testChain, "transaction reverted on chain", nil),
		})
		l.On("BlockTimestamp", mock.Anything, uint64(5)).Return(time.Time{}, errors.New("header not found"))

		journal := newTestJournal(t)
		res := newTestEngine(l, WithReceiptJournal(journal)).Anchor(context.Background(), rec, nil, signer)

		assert.False(t, res.Succeeded())
		require.NotNil(t, res.Receipt)
		assert.Equal(t, common.ReceiptStatusFailed, res.Receipt.Status)
		assert.Equal(t, "CONTRACT_LOGIC", res.Receipt.ErrorCode)
		assert.Equal(t, localNow, res.Receipt.Timestamp)
		assert.Nil(t, rec.Anchor)

		saved, err := journal.LatestReceipt(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, common.ReceiptStatusFailed, saved.Status)
	})

	t.Run("nothing landed", func(t *testing.T) {
		rec := acmeRecord()
		l := new(MockLedger)
		l.On("StoreCredential", mock.Anything, signer, mock.Anything, 3).Return(&ledger.SubmitResult{
			Attempts: 3,
			Err:      anchorerrors.NewNetworkError(testChain, "ledger node unreachable or slow", errors.New("connection refused")),
		})

		res := newTestEngine(l, WithMaxRetries(3)).Anchor(context.Background(), rec, nil, signer)
		assert.False(t, res.Succeeded())
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, common.ReceiptStatusError, res.Receipt.Status)
		assert.True(t, res.Err.IsRetryable())
		assert.Nil(t, rec.Anchor)
	})
}

func TestEngine_VerifyOnLedger(t *testing.T) {
	rec := acmeRecord()
	hash, err := rec.ContentHash()
	require.NoError(t, err)
	hash32, err := canonical.HashToBytes32(hash)
	require.NoError(t, err)

	t.Run("matching entry", func(t *testing.T) {
		l := new(MockLedger)
		l.On("VerifyCredential", mock.Anything, rec.AnchorID()).Return(&ledger.OnChainCredential{
			Title: rec.Title, Issuer: rec.Issuer, Subject: rec.Subject,
			ContentHash: hash32, Timestamp: blockTime, Valid: true,
		}, nil)

		out, err := newTestEngine(l).VerifyOnLedger(context.Background(), rec)
		require.NoError(t, err)
		assert.True(t, out.Found)
		assert.True(t, out.HashMatches)
		assert.True(t, out.Valid)
		assert.Equal(t, hash, out.OnChainHash)
		assert.Equal(t, blockTime, out.Timestamp)
	})

	t.Run("tampered record", func(t *testing.T) {
		l := new(MockLedger)
		l.On("VerifyCredential", mock.Anything, rec.AnchorID()).Return(&ledger.OnChainCredential{
			ContentHash: hash32, Timestamp: blockTime, Valid: true,
		}, nil)

		tampered := acmeRecord()
		tampered.Organization = "Acme Online"
		out, err := newTestEngine(l).VerifyOnLedger(context.Background(), tampered)
		require.NoError(t, err)
		assert.True(t, out.Found)
		assert.False(t, out.HashMatches)
	})

	t.Run("no entry", func(t *testing.T) {
		l := new(MockLedger)
		l.On("VerifyCredential", mock.Anything, rec.AnchorID()).Return(&ledger.OnChainCredential{}, nil)

		out, err := newTestEngine(l).VerifyOnLedger(context.Background(), rec)
		require.NoError(t, err)
		assert.False(t, out.Found)
		assert.False(t, out.HashMatches)
	})

	t.Run("ledger error", func(t *testing.T) {
		l := new(MockLedger)
		l.On("VerifyCredential", mock.Anything, rec.AnchorID()).Return(nil, anchorerrors.NewNetworkError(testChain, "down", nil))

		_, err := newTestEngine(l).VerifyOnLedger(context.Background(), rec)
		assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeNetwork))
	})
}

func TestEngine_RevokeOnLedger(t *testing.T) {
	ctx := context.Background()
	signer := testSigner(t)

	t.Run("revokes after the transaction lands", func(t *testing.T) {
		rec := acmeRecord()
		rec.Status = verification.StatusVerified

		l := new(MockLedger)
		l.On("RevokeCredential", mock.Anything, signer, rec.AnchorID(), "issued in error", 0).Return(successResult("0xabc", 20))

		res, err := newTestEngine(l).RevokeOnLedger(ctx, rec, signer, "registrar", "issued in error")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, verification.StatusRevoked, rec.Status)
		require.NotNil(t, rec.LatestAttempt())
		assert.Equal(t, "0xabc", rec.LatestAttempt().Data["tx_hash"])
	})

	t.Run("failed transaction leaves record verified", func(t *testing.T) {
		rec := acmeRecord()
		rec.Status = verification.StatusVerified

		l := new(MockLedger)
		l.On("RevokeCredential", mock.Anything, signer, rec.AnchorID(), "issued in error", 0).Return(&ledger.SubmitResult{
			Attempts: 1,
			Err:      anchorerrors.NewContractLogicError(testChain, "contract rejected the call", errors.New("execution reverted: not issuer")),
		})

		_, err := newTestEngine(l).RevokeOnLedger(ctx, rec, signer, "registrar", "issued in error")
		require.Error(t, err)
		assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeContractLogic))
		assert.Equal(t, verification.StatusVerified, rec.Status)
		assert.Empty(t, rec.Attempts)
	})

	t.Run("only verified records", func(t *testing.T) {
		rec := acmeRecord()
		rec.Status = verification.StatusPending
		l := new(MockLedger)

		_, err := newTestEngine(l).RevokeOnLedger(ctx, rec, signer, "registrar", "issued in error")
		assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeValidation))
		l.AssertNotCalled(t, "RevokeCredential", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reason required", func(t *testing.T) {
		rec := acmeRecord()
		rec.Status = verification.StatusVerified
		_, err := newTestEngine(new(MockLedger)).RevokeOnLedger(ctx, rec, signer, "registrar", "")
		assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeValidation))
	})
}

func TestEngine_IssuerOperations(t *testing.T) {
	ctx := context.Background()
	signer := testSigner(t)
	issuer := "0x1111111111111111111111111111111111111111"
	addr := ethcommon.HexToAddress(issuer)

	l := new(MockLedger)
	l.On("AuthorizeIssuer", mock.Anything, signer, addr, 0).Return(successResult("0x01", 1))
	l.On("RevokeIssuer", mock.Anything, signer, addr, 0).Return(&ledger.SubmitResult{
		Attempts: 1,
		Err:      anchorerrors.NewContractLogicError(testChain, "contract rejected the call", nil),
	})
	l.On("IsAuthorizedIssuer", mock.Anything, addr).Return(true, nil)

	engine := newTestEngine(l)

	res, err := engine.AuthorizeIssuer(ctx, signer, issuer)
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = engine.RevokeIssuer(ctx, signer, issuer)
	assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeContractLogic))

	ok, err := engine.IsAuthorizedIssuer(ctx, issuer)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = engine.IsAuthorizedIssuer(ctx, "acme")
	assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeValidation))
}

func TestEngine_FetchDocument(t *testing.T) {
	_, err := newTestEngine(new(MockLedger)).FetchDocument("bafy")
	assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeContentStore))

	store := new(MockContentStore)
	store.On("Get", "bafy").Return([]byte("diploma"), nil)
	data, err := newTestEngine(new(MockLedger), WithContentStore(store)).FetchDocument("bafy")
	require.NoError(t, err)
	assert.Equal(t, []byte("diploma"), data)
}
