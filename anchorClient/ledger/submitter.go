package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pushchain/credential-anchor/anchorClient/config"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
	"github.com/pushchain/credential-anchor/anchorClient/metrics"
)

// DefaultMaxRetries is the number of attempts when the caller passes zero.
const DefaultMaxRetries = 3

// ErrConfirmationTimeout marks a transaction that was accepted by the node
// but not mined within the confirmation timeout.
var ErrConfirmationTimeout = errors.New("timed out waiting for transaction receipt")

// SubmitterConfig holds retry configuration
type SubmitterConfig struct {
	MaxRetries          int           // total attempts per submission
	ConfirmationTimeout time.Duration // receipt wait bound per attempt
	PollInterval        time.Duration // receipt polling period
	BackoffInitial      time.Duration // first delay after a network error
	BackoffMax          time.Duration // delay cap
}

// DefaultSubmitterConfig returns default retry configuration
func DefaultSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		MaxRetries:          DefaultMaxRetries,
		ConfirmationTimeout: 2 * time.Minute,
		PollInterval:        2 * time.Second,
		BackoffInitial:      time.Second,
		BackoffMax:          30 * time.Second,
	}
}

// SubmitterConfigFrom converts the file configuration.
func SubmitterConfigFrom(c config.SubmitterConfig) SubmitterConfig {
	return SubmitterConfig{
		MaxRetries:          c.MaxRetries,
		ConfirmationTimeout: c.ConfirmationTimeout(),
		PollInterval:        c.ReceiptPollInterval(),
		BackoffInitial:      c.BackoffInitial(),
		BackoffMax:          c.BackoffMax(),
	}
}

// SubmitResult is the outcome of one Submit call.
type SubmitResult struct {
	Success  bool
	TxHash   string // hash of the landed transaction, or of the last broadcast
	Receipt  *types.Receipt
	Err      *anchorerrors.LedgerError
	Attempts int
	TxHashes []string // every hash broadcast, in order
	GasPrice *big.Int // price of the last built transaction
}

// Submitter signs, sends and confirms transactions, retrying the failures
// the classifier marks retryable.
type Submitter struct {
	rpcClient *RPCClient
	builder   *TxBuilder
	nonces    *NonceManager
	cfg       SubmitterConfig
	chainID   string
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewSubmitter creates a new submitter
func NewSubmitter(rpcClient *RPCClient, builder *TxBuilder, cfg SubmitterConfig, m *metrics.Metrics, logger zerolog.Logger) *Submitter {
	defaults := DefaultSubmitterConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = defaults.ConfirmationTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaults.BackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaults.BackoffMax
	}
	return &Submitter{
		rpcClient: rpcClient,
		builder:   builder,
		nonces:    NewNonceManager(),
		cfg:       cfg,
		chainID:   builder.chainID,
		metrics:   m,
		logger:    logger.With().Str("component", "ledger_submitter").Str("chain", builder.chainID).Logger(),
	}
}

// Submit runs call to completion: build, sign, send, wait for the receipt,
// classify and retry. maxRetries counts total attempts; zero uses the
// configured default. The result always carries a classified error on
// failure.
func (s *Submitter) Submit(ctx context.Context, call CallRequest, signer *Signer, maxRetries int) *SubmitResult {
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	result := &SubmitResult{}
	if signer == nil {
		result.Attempts = 1
		result.Err = anchorerrors.NewValidationError(s.chainID, "from", "signer is required")
		s.finish(result, call)
		return result
	}

	bo := s.newBackOff()
	var (
		opts BuildOptions
		// hashes the node may have accepted; only these can land
		inFlight []string
		lastErr  *anchorerrors.LedgerError
	)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt

		if len(inFlight) > 0 {
			var receipt *types.Receipt
			var hash string
			if lastErr != nil && lastErr.Code == anchorerrors.ErrCodeNonceStale {
				// The nonce was consumed, most likely by an earlier broadcast.
				receipt, hash = s.waitForLanded(ctx, inFlight)
			} else {
				receipt, hash = s.findLanded(ctx, inFlight)
			}
			if receipt != nil {
				s.logger.Info().
					Str("method", call.Method).
					Str("tx_hash", hash).
					Int("attempt", attempt).
					Msg("earlier broadcast landed, not resubmitting")
				result.TxHash = hash
				result.Attempts = attempt - 1
				s.settleReceipt(result, receipt)
				s.finish(result, call)
				return result
			}
		}

		req, tx, receipt, err := s.attempt(ctx, call, signer, opts)
		if req != nil {
			result.GasPrice = req.GasPrice
		}
		var hash string
		if tx != nil {
			hash = tx.Hash().Hex()
			result.TxHash = hash
			result.TxHashes = append(result.TxHashes, hash)
		}

		if err == nil {
			s.settleReceipt(result, receipt)
			if !result.Success {
				s.settleFromEarlier(ctx, result, inFlight)
			}
			s.finish(result, call)
			return result
		}

		lerr := anchorerrors.Classify(err)
		if lerr.Chain == "" {
			lerr.Chain = s.chainID
		}
		if tx != nil {
			lerr.WithContext("tx_hash", hash)
			if lerr.Code == anchorerrors.ErrCodeNetwork {
				// A failed send or a confirmation timeout leaves it unknown
				// whether the node kept the transaction.
				inFlight = append(inFlight, hash)
			}
		}
		result.Err = lerr
		lastErr = lerr
		s.metrics.AttemptFailed(string(lerr.Code))

		if !lerr.IsRetryable() || attempt == maxRetries {
			if s.settleFromEarlier(ctx, result, inFlight) {
				s.finish(result, call)
				return result
			}
			s.logger.Error().
				Err(lerr).
				Str("method", call.Method).
				Str("code", string(lerr.Code)).
				Int("attempt", attempt).
				Int("max_attempts", maxRetries).
				Msg("submission failed")
			s.finish(result, call)
			return result
		}

		opts = s.nextOptions(lerr, req, tx != nil)

		if lerr.Code == anchorerrors.ErrCodeNetwork {
			delay := bo.NextBackOff()
			s.logger.Warn().
				Err(lerr).
				Str("method", call.Method).
				Int("attempt", attempt).
				Int("max_attempts", maxRetries).
				Dur("retry_in", delay).
				Msg("submission attempt failed, retrying")
			if !sleep(ctx, delay) {
				result.Err = anchorerrors.Classify(ctx.Err())
				s.finish(result, call)
				return result
			}
		} else {
			s.logger.Warn().
				Err(lerr).
				Str("method", call.Method).
				Int("attempt", attempt).
				Int("max_attempts", maxRetries).
				Msg("submission attempt failed, retrying with refreshed parameters")
		}
	}

	s.finish(result, call)
	return result
}

// attempt performs one build-sign-send-wait cycle. The nonce slot is held
// until the node accepts the transaction.
func (s *Submitter) attempt(ctx context.Context, call CallRequest, signer *Signer, opts BuildOptions) (*TxRequest, *types.Transaction, *types.Receipt, error) {
	release, err := s.nonces.Acquire(ctx, signer.Address())
	if err != nil {
		return nil, nil, nil, err
	}
	defer release()

	req, err := s.builder.Build(ctx, call, signer.Address(), opts)
	if err != nil {
		return nil, nil, nil, err
	}

	signed, err := signer.SignTx(req.Transaction(), req.ChainID)
	if err != nil {
		return req, nil, nil, anchorerrors.NewValidationError(s.chainID, "signature", err.Error())
	}

	sentAt := time.Now()
	txHash, err := s.rpcClient.BroadcastTransaction(ctx, signed)
	if err != nil && !anchorerrors.IsAlreadyKnown(err) {
		// The node may still have relayed it; keep the hash for the landed check.
		return req, signed, nil, err
	}
	release()

	s.logger.Info().
		Str("method", call.Method).
		Str("tx_hash", txHash).
		Uint64("nonce", req.Nonce).
		Str("gas_price_gwei", weiToGwei(req.GasPrice)).
		Msg("transaction broadcast successfully")

	receipt, err := s.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return req, signed, nil, err
	}
	s.metrics.ConfirmationTime(time.Since(sentAt))
	return req, signed, receipt, nil
}

// waitForReceipt polls until the receipt appears, the confirmation timeout
// elapses or ctx is cancelled.
func (s *Submitter) waitForReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.rpcClient.GetTransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			s.logger.Debug().Err(err).Str("tx_hash", txHash.Hex()).Msg("receipt lookup failed, polling again")
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, anchorerrors.NewNetworkError(s.chainID, "transaction not mined before the confirmation timeout", ErrConfirmationTimeout).
				WithContext("tx_hash", txHash.Hex()).
				WithContext("timeout", s.cfg.ConfirmationTimeout.String())
		}
	}
}

// findLanded returns the receipt of an earlier broadcast, preferring a
// successful one.
func (s *Submitter) findLanded(ctx context.Context, hashes []string) (*types.Receipt, string) {
	var (
		landed     *types.Receipt
		landedHash string
	)
	for _, hash := range hashes {
		receipt, err := s.rpcClient.GetTransactionReceipt(ctx, ethcommon.HexToHash(hash))
		if err != nil || receipt == nil {
			continue
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			return receipt, hash
		}
		if landed == nil {
			landed, landedHash = receipt, hash
		}
	}
	return landed, landedHash
}

// waitForLanded polls findLanded until a receipt shows up or the
// confirmation timeout elapses.
func (s *Submitter) waitForLanded(ctx context.Context, hashes []string) (*types.Receipt, string) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if receipt, hash := s.findLanded(waitCtx, hashes); receipt != nil {
			return receipt, hash
		}
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return nil, ""
		}
	}
}

// settleFromEarlier replaces a failed result with the successful receipt of
// an earlier broadcast, if one landed.
func (s *Submitter) settleFromEarlier(ctx context.Context, result *SubmitResult, hashes []string) bool {
	if len(hashes) == 0 || ctx.Err() != nil {
		return false
	}
	receipt, hash := s.findLanded(ctx, hashes)
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return false
	}
	s.logger.Info().
		Str("tx_hash", hash).
		Str("failed_tx_hash", result.TxHash).
		Msg("earlier broadcast landed")
	result.TxHash = hash
	s.settleReceipt(result, receipt)
	return true
}

// nextOptions picks the build adjustments for the following attempt. A
// transaction that may still be pending is replaced at its own nonce so the
// two can never both land.
func (s *Submitter) nextOptions(lerr *anchorerrors.LedgerError, last *TxRequest, sent bool) BuildOptions {
	var opts BuildOptions
	if last == nil {
		return opts
	}

	switch {
	case lerr.Code == anchorerrors.ErrCodeUnderpriced,
		lerr.Code == anchorerrors.ErrCodeNetwork && sent:
		nonce := last.Nonce
		opts.Nonce = &nonce
		opts.MinGasPrice = last.GasPrice
	}
	return opts
}

func (s *Submitter) settleReceipt(result *SubmitResult, receipt *types.Receipt) {
	result.Receipt = receipt
	if receipt.Status == types.ReceiptStatusSuccessful {
		result.Success = true
		result.Err = nil
		return
	}
	result.Success = false
	result.Err = anchorerrors.NewContractLogicError(s.chainID, "transaction reverted on chain", nil).
		WithContext("tx_hash", result.TxHash)
	if receipt.BlockNumber != nil {
		result.Err.WithContext("block_number", receipt.BlockNumber.Uint64())
	}
}

func (s *Submitter) finish(result *SubmitResult, call CallRequest) {
	s.metrics.SubmissionCompleted(result.Success)
	if result.Success {
		s.logger.Info().
			Str("method", call.Method).
			Str("tx_hash", result.TxHash).
			Int("attempts", result.Attempts).
			Msg("transaction confirmed")
	}
}

func (s *Submitter) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.BackoffInitial
	bo.MaxInterval = s.cfg.BackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
