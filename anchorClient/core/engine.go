// Package core orchestrates anchoring: hash the record, derive its anchor id,
// mirror the document, submit to the ledger and link the receipt.
package core

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pushchain/credential-anchor/anchorClient/canonical"
	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/db"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
	"github.com/pushchain/credential-anchor/anchorClient/ledger"
	"github.com/pushchain/credential-anchor/anchorClient/metrics"
	"github.com/pushchain/credential-anchor/anchorClient/verification"
)

// AnchorResult is the outcome of Engine.Anchor.
type AnchorResult struct {
	AnchorID    common.AnchorID
	ContentHash string
	ContentID   string // CID of the mirrored document, empty when not mirrored
	GatewayURL  string
	// Degraded is set when mirroring or journaling failed but anchoring
	// went ahead.
	Degraded     bool
	MirrorError  error
	JournalError error
	// AlreadyAnchored is set when the journal already held a matching
	// success receipt and nothing was submitted.
	AlreadyAnchored bool
	Receipt         *common.AnchorReceipt
	Attempts        int
	Err             *anchorerrors.LedgerError
}

// Succeeded reports whether the record is anchored.
func (r *AnchorResult) Succeeded() bool {
	return r != nil && r.Err == nil && r.Receipt.Succeeded()
}

// LedgerVerification compares a record with its registry entry.
type LedgerVerification struct {
	AnchorID    common.AnchorID `json:"anchor_id"`
	Found       bool            `json:"found"`
	OnChainHash string          `json:"on_chain_hash,omitempty"`
	CurrentHash string          `json:"current_hash"`
	HashMatches bool            `json:"hash_matches"`
	Valid       bool            `json:"valid"`
	Issuer      string          `json:"issuer,omitempty"`
	Timestamp   time.Time       `json:"timestamp,omitempty"`
}

// Engine ties the hasher, content store, ledger, journal and state machine
// together.
type Engine struct {
	ledger     LedgerInterface
	content    ContentStoreInterface
	journal    ReceiptJournal
	machine    *verification.Machine
	metrics    *metrics.Metrics
	maxRetries int
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithContentStore mirrors documents before anchoring.
func WithContentStore(c ContentStoreInterface) Option {
	return func(e *Engine) { e.content = c }
}

// WithReceiptJournal persists every receipt.
func WithReceiptJournal(j ReceiptJournal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithMachine sets the state machine receipts are linked through.
func WithMachine(m *verification.Machine) Option {
	return func(e *Engine) { e.machine = m }
}

// WithMetrics records mirror failures and reverification results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxRetries overrides the submitter's attempt budget.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine on top of a ledger.
func NewEngine(l LedgerInterface, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		ledger: l,
		now:    time.Now,
		log:    log.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.machine == nil {
		e.machine = verification.NewMachine(log, verification.WithMetrics(e.metrics), verification.WithClock(e.now))
	}
	return e
}

// Machine returns the state machine used for receipt linking.
func (e *Engine) Machine() *verification.Machine {
	return e.machine
}

// Anchor hashes rec, mirrors document (or the canonical projection when
// document is nil) and stores the hash on the ledger. A content store
// failure does not stop anchoring; it is reported through Degraded.
func (e *Engine) Anchor(ctx context.Context, rec *verification.Record, document []byte, signer *ledger.Signer) *AnchorResult {
	chain := e.ledger.ChainID()
	if lerr := validateRecord(chain, rec); lerr != nil {
		return &AnchorResult{Err: lerr}
	}

	result := &AnchorResult{AnchorID: rec.AnchorID()}

	projection := rec.Projection()
	canon, err := canonical.Marshal(projection)
	if err != nil {
		result.Err = anchorerrors.Classify(err)
		return result
	}
	result.ContentHash = canonical.HashBytes(canon)

	logger := e.log.With().
		Str("record_id", rec.ID).
		Str("anchor_id", result.AnchorID.Hex()).
		Str("content_hash", result.ContentHash).
		Logger()

	existing, lerr := e.existingReceipt(ctx, chain, rec, result)
	if lerr != nil {
		logger.Error().
			Str("anchored_hash", existing.ContentHash).
			Str("tx_hash", existing.TransactionHash).
			Msg("record changed after anchoring, refusing to re-anchor")
		result.Err = lerr
		result.Receipt = existing
		return result
	}
	if existing != nil {
		logger.Info().Str("tx_hash", existing.TransactionHash).Msg("record already anchored, skipping submission")
		result.AlreadyAnchored = true
		result.Receipt = existing
		if rec.Anchor == nil {
			if err := e.machine.LinkAnchorReceipt(rec, existing); err != nil {
				logger.Warn().Err(err).Msg("failed to link existing receipt")
			}
		}
		return result
	}

	if e.content != nil {
		content := document
		if content == nil {
			content = canon
		}
		mirror, err := e.content.Mirror(content)
		if mirror != nil {
			result.ContentID = mirror.CID
			result.GatewayURL = mirror.GatewayURL
		}
		if err != nil {
			result.Degraded = true
			result.MirrorError = err
			e.metrics.MirrorFailed()
			logger.Warn().Err(err).Str("cid", result.ContentID).Msg("content store unavailable, anchoring without mirror")
		}
	}

	hash32, err := canonical.HashToBytes32(result.ContentHash)
	if err != nil {
		result.Err = anchorerrors.NewEncodingError("content hash is not 32 bytes", err)
		return result
	}

	res := e.ledger.StoreCredential(ctx, signer, ledger.StoreRequest{
		AnchorID:    result.AnchorID,
		Title:       rec.Title,
		Issuer:      rec.Issuer,
		Subject:     rec.Subject,
		ContentHash: hash32,
	}, e.maxRetries)

	result.Attempts = res.Attempts
	result.Err = res.Err
	result.Receipt = e.receiptFor(ctx, rec.ID, result, res)

	if e.journal != nil {
		if err := e.journal.SaveReceipt(ctx, result.Receipt); err != nil {
			result.Degraded = true
			result.JournalError = err
			logger.Error().Err(err).Str("tx_hash", result.Receipt.TransactionHash).Msg("failed to journal receipt")
		}
	}

	if !res.Success {
		logger.Error().
			Err(res.Err).
			Int("attempts", res.Attempts).
			Msg("anchoring failed")
		return result
	}

	if err := e.machine.LinkAnchorReceipt(rec, result.Receipt); err != nil {
		logger.Warn().Err(err).Msg("failed to link receipt")
	}

	logger.Info().
		Str("tx_hash", result.Receipt.TransactionHash).
		Uint64("block", result.Receipt.BlockNumber).
		Int("attempts", result.Attempts).
		Bool("degraded", result.Degraded).
		Msg("record anchored")
	return result
}

// Reverify recomputes the record's hash and compares it with the hash
// captured at anchoring time.
func (e *Engine) Reverify(rec *verification.Record) (*verification.ReverifyResult, error) {
	return e.machine.Reverify(rec)
}

// VerifyOnLedger reads the registry entry under the record's anchor id and
// compares its content hash with the record as it is now.
func (e *Engine) VerifyOnLedger(ctx context.Context, rec *verification.Record) (*LedgerVerification, error) {
	if lerr := validateRecord(e.ledger.ChainID(), rec); lerr != nil {
		return nil, lerr
	}
	current, err := rec.ContentHash()
	if err != nil {
		return nil, anchorerrors.Classify(err)
	}

	out := &LedgerVerification{AnchorID: rec.AnchorID(), CurrentHash: current}
	cred, err := e.ledger.VerifyCredential(ctx, out.AnchorID)
	if err != nil {
		return nil, err
	}
	if !cred.Exists() {
		e.log.Info().Str("record_id", rec.ID).Str("anchor_id", out.AnchorID.Hex()).Msg("no registry entry for record")
		return out, nil
	}

	out.Found = true
	out.OnChainHash = hex.EncodeToString(cred.ContentHash[:])
	out.HashMatches = out.OnChainHash == current
	out.Valid = cred.Valid
	out.Issuer = cred.Issuer
	out.Timestamp = cred.Timestamp
	e.metrics.Reverified(out.HashMatches)

	if !out.HashMatches {
		e.log.Warn().
			Str("record_id", rec.ID).
			Str("current_hash", current).
			Str("on_chain_hash", out.OnChainHash).
			Msg("record content does not match registry entry")
	}
	return out, nil
}

// FetchDocument reads a mirrored document back from the content store.
func (e *Engine) FetchDocument(cid string) ([]byte, error) {
	if e.content == nil {
		return nil, anchorerrors.NewContentStoreError("content store is not configured", nil)
	}
	return e.content.Get(cid)
}

// RevokeOnLedger revokes the registry entry and then moves the record from
// verified to revoked. The record is unchanged if the transaction fails.
func (e *Engine) RevokeOnLedger(ctx context.Context, rec *verification.Record, signer *ledger.Signer, actor, reason string) (*ledger.SubmitResult, error) {
	chain := e.ledger.ChainID()
	if strings.TrimSpace(reason) == "" {
		return nil, anchorerrors.NewValidationError(chain, "reason", verification.ErrReasonRequired.Error())
	}
	if lerr := validateRecord(chain, rec); lerr != nil {
		return nil, lerr
	}
	if rec.Status != verification.StatusVerified {
		return nil, anchorerrors.NewValidationError(chain, "status", "only verified records can be revoked").
			WithContext("status", string(rec.Status))
	}

	res := e.ledger.RevokeCredential(ctx, signer, rec.AnchorID(), reason, e.maxRetries)
	if !res.Success {
		return res, resultErr(res)
	}

	if _, err := e.machine.Revoke(ctx, rec, actor, reason, map[string]interface{}{
		"tx_hash": res.TxHash,
		"chain":   chain,
	}); err != nil {
		return res, err
	}
	return res, nil
}

// AuthorizeIssuer adds issuer to the registry allow-list.
func (e *Engine) AuthorizeIssuer(ctx context.Context, signer *ledger.Signer, issuer string) (*ledger.SubmitResult, error) {
	addr, lerr := e.issuerAddress(issuer)
	if lerr != nil {
		return nil, lerr
	}
	res := e.ledger.AuthorizeIssuer(ctx, signer, addr, e.maxRetries)
	return res, resultErr(res)
}

// RevokeIssuer removes issuer from the registry allow-list.
func (e *Engine) RevokeIssuer(ctx context.Context, signer *ledger.Signer, issuer string) (*ledger.SubmitResult, error) {
	addr, lerr := e.issuerAddress(issuer)
	if lerr != nil {
		return nil, lerr
	}
	res := e.ledger.RevokeIssuer(ctx, signer, addr, e.maxRetries)
	return res, resultErr(res)
}

// IsAuthorizedIssuer reports whether issuer may anchor records.
func (e *Engine) IsAuthorizedIssuer(ctx context.Context, issuer string) (bool, error) {
	addr, lerr := e.issuerAddress(issuer)
	if lerr != nil {
		return false, lerr
	}
	return e.ledger.IsAuthorizedIssuer(ctx, addr)
}

func (e *Engine) issuerAddress(issuer string) (ethcommon.Address, *anchorerrors.LedgerError) {
	if !ethcommon.IsHexAddress(issuer) {
		return ethcommon.Address{}, anchorerrors.NewValidationError(e.ledger.ChainID(), "issuer", "issuer must be a hex address").
			WithContext("issuer", issuer)
	}
	return ethcommon.HexToAddress(issuer), nil
}

// existingReceipt returns the record's success receipt when it already
// covers the current anchor id and content hash. A success receipt for a
// different hash is a trust failure: the record changed after anchoring and
// must not be anchored again.
func (e *Engine) existingReceipt(ctx context.Context, chain string, rec *verification.Record, result *AnchorResult) (*common.AnchorReceipt, *anchorerrors.LedgerError) {
	candidate := rec.Anchor
	if candidate == nil && e.journal != nil {
		found, err := e.journal.LatestSuccessfulReceipt(ctx, rec.ID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			e.log.Warn().Err(err).Str("record_id", rec.ID).Msg("failed to read journal, submitting anyway")
		}
		candidate = found
	}
	if !candidate.Succeeded() {
		return nil, nil
	}
	if candidate.AnchorIdentifier == result.AnchorID && candidate.ContentHash == result.ContentHash {
		return candidate, nil
	}
	return candidate, anchorerrors.NewTrustFailureError(chain, "record does not match its anchored hash").
		WithContext("anchored_hash", candidate.ContentHash).
		WithContext("current_hash", result.ContentHash).
		WithContext("anchored_id", candidate.AnchorIdentifier.Hex()).
		WithContext("tx_hash", candidate.TransactionHash)
}

// receiptFor converts a submit result into an immutable receipt.
func (e *Engine) receiptFor(ctx context.Context, recordID string, result *AnchorResult, res *ledger.SubmitResult) *common.AnchorReceipt {
	receipt := &common.AnchorReceipt{
		RecordID:         recordID,
		TransactionHash:  res.TxHash,
		ContractAddress:  e.ledger.ContractAddress(),
		AnchorIdentifier: result.AnchorID,
		ContentHash:      result.ContentHash,
		Timestamp:        e.now().UTC(),
		Attempts:         res.Attempts,
	}

	switch {
	case res.Success:
		receipt.Status = common.ReceiptStatusSuccess
	case res.Receipt != nil && res.Receipt.Status == types.ReceiptStatusFailed:
		receipt.Status = common.ReceiptStatusFailed
	default:
		receipt.Status = common.ReceiptStatusError
	}

	if res.Receipt != nil {
		receipt.GasUsed = res.Receipt.GasUsed
		if res.Receipt.BlockNumber != nil {
			receipt.BlockNumber = res.Receipt.BlockNumber.Uint64()
			if ts, err := e.ledger.BlockTimestamp(ctx, receipt.BlockNumber); err == nil {
				receipt.Timestamp = ts
			} else {
				e.log.Debug().Err(err).Uint64("block", receipt.BlockNumber).Msg("block timestamp unavailable, using local time")
			}
		}
	}
	if res.Err != nil {
		receipt.ErrorCode = string(res.Err.Code)
		receipt.ErrorMessage = res.Err.Message
	}
	return receipt
}

func validateRecord(chain string, rec *verification.Record) *anchorerrors.LedgerError {
	switch {
	case rec == nil:
		return anchorerrors.NewValidationError(chain, "record", "record is required")
	case rec.ID == "":
		return anchorerrors.NewValidationError(chain, "id", "record id is required")
	case strings.TrimSpace(rec.Issuer) == "":
		return anchorerrors.NewValidationError(chain, "issuer", "issuer is required")
	case strings.TrimSpace(rec.Subject) == "":
		return anchorerrors.NewValidationError(chain, "subject", "subject is required")
	case strings.TrimSpace(rec.Title) == "":
		return anchorerrors.NewValidationError(chain, "title", "title is required")
	case rec.IssueDate.IsZero():
		return anchorerrors.NewValidationError(chain, "issue_date", "issue date is required")
	}
	return nil
}

func resultErr(res *ledger.SubmitResult) error {
	if res == nil || res.Err == nil {
		return nil
	}
	return res.Err
}
