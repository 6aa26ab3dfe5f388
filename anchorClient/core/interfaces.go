package core

import (
	"context"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/pushchain/credential-anchor/anchorClient/cas"
	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/db"
	"github.com/pushchain/credential-anchor/anchorClient/ledger"
)

// LedgerInterface defines the ledger operations the engine drives.
type LedgerInterface interface {
	ChainID() string
	ContractAddress() string
	StoreCredential(ctx context.Context, signer *ledger.Signer, req ledger.StoreRequest, maxRetries int) *ledger.SubmitResult
	RevokeCredential(ctx context.Context, signer *ledger.Signer, anchorID common.AnchorID, reason string, maxRetries int) *ledger.SubmitResult
	AuthorizeIssuer(ctx context.Context, signer *ledger.Signer, issuer ethcommon.Address, maxRetries int) *ledger.SubmitResult
	RevokeIssuer(ctx context.Context, signer *ledger.Signer, issuer ethcommon.Address, maxRetries int) *ledger.SubmitResult
	IsAuthorizedIssuer(ctx context.Context, issuer ethcommon.Address) (bool, error)
	VerifyCredential(ctx context.Context, anchorID common.AnchorID) (*ledger.OnChainCredential, error)
	BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// ContentStoreInterface defines the content store operations the engine uses.
type ContentStoreInterface interface {
	Mirror(content []byte) (*cas.MirrorResult, error)
	Get(cid string) ([]byte, error)
}

// ReceiptJournal persists completed submissions.
type ReceiptJournal interface {
	SaveReceipt(ctx context.Context, receipt *common.AnchorReceipt) error
	LatestSuccessfulReceipt(ctx context.Context, recordID string) (*common.AnchorReceipt, error)
}

var (
	_ LedgerInterface       = (*ledger.Gateway)(nil)
	_ ContentStoreInterface = (*cas.Client)(nil)
	_ ReceiptJournal        = (*db.Journal)(nil)
)
