package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pushchain/credential-anchor/anchorClient/config"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
)

const (
	// MinGasLimit is the intrinsic cost of any transaction.
	MinGasLimit uint64 = 21_000
	// DefaultFallbackGasLimit is used when gas estimation fails.
	DefaultFallbackGasLimit uint64 = 500_000
	// DefaultMaxGasLimit caps every transaction the builder produces.
	DefaultMaxGasLimit uint64 = 8_000_000
)

// CallRequest is an unsigned contract invocation.
type CallRequest struct {
	Method string // for logs and metrics only
	To     ethcommon.Address
	Data   []byte
	Value  *big.Int
}

// TxRequest is a fully parameterized legacy transaction ready to sign.
type TxRequest struct {
	From         ethcommon.Address
	To           ethcommon.Address
	Nonce        uint64
	GasPrice     *big.Int
	Gas          uint64
	Value        *big.Int
	Data         []byte
	ChainID      *big.Int
	GasEstimated bool // false when the fallback gas limit was used
}

// Transaction returns the unsigned transaction described by r.
func (r *TxRequest) Transaction() *types.Transaction {
	value := r.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return types.NewTransaction(r.Nonce, r.To, value, r.Gas, r.GasPrice, r.Data)
}

// BuildOptions adjusts a build for a retry.
type BuildOptions struct {
	// Nonce pins the nonce of a transaction being replaced instead of taking
	// the pending one.
	Nonce *uint64
	// MinGasPrice is the price of a transaction being replaced; the new
	// price must outbid it by the replacement bump.
	MinGasPrice *big.Int
}

// TxBuilder fills nonce, gas price and gas limit for contract calls.
type TxBuilder struct {
	rpcClient  *RPCClient
	chainID    string
	chainIDInt int64
	gas        config.GasConfig
	lowFee     bool
	logger     zerolog.Logger
}

// NewTxBuilder creates a new transaction builder
func NewTxBuilder(
	rpcClient *RPCClient,
	chainID string,
	chainIDInt int64,
	gas config.GasConfig,
	lowFee bool,
	logger zerolog.Logger,
) (*TxBuilder, error) {
	if rpcClient == nil {
		return nil, fmt.Errorf("rpcClient is required")
	}
	if chainID == "" {
		return nil, fmt.Errorf("chainID is required")
	}
	if chainIDInt <= 0 {
		return nil, fmt.Errorf("invalid numeric chain id: %d", chainIDInt)
	}
	if gas.FallbackGasLimit == 0 {
		gas.FallbackGasLimit = DefaultFallbackGasLimit
	}
	if gas.MaxGasLimit == 0 {
		gas.MaxGasLimit = DefaultMaxGasLimit
	}

	return &TxBuilder{
		rpcClient:  rpcClient,
		chainID:    chainID,
		chainIDInt: chainIDInt,
		gas:        gas,
		lowFee:     lowFee,
		logger:     logger.With().Str("component", "ledger_tx_builder").Str("chain", chainID).Logger(),
	}, nil
}

// Build produces a validated TxRequest for call sent from the given account.
// Gas estimation failures fall back to the configured gas limit; every other
// RPC failure is returned unclassified for the submitter to classify.
func (tb *TxBuilder) Build(ctx context.Context, call CallRequest, from ethcommon.Address, opts BuildOptions) (*TxRequest, error) {
	req := &TxRequest{
		From:    from,
		To:      call.To,
		Value:   call.Value,
		Data:    call.Data,
		ChainID: big.NewInt(tb.chainIDInt),
	}
	if req.Value == nil {
		req.Value = big.NewInt(0)
	}

	// Reject obviously broken requests before touching the node.
	if err := tb.validateParties(req); err != nil {
		return nil, err
	}

	if opts.Nonce != nil {
		req.Nonce = *opts.Nonce
	} else {
		nonce, err := tb.GetNextNonce(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}
		req.Nonce = nonce
	}

	gasPrice, err := tb.gasPrice(ctx, opts.MinGasPrice)
	if err != nil {
		return nil, err
	}
	req.GasPrice = gasPrice

	req.Gas, req.GasEstimated = tb.gasLimit(ctx, call, req)

	if err := tb.Validate(req); err != nil {
		return nil, err
	}

	tb.logger.Debug().
		Str("method", call.Method).
		Uint64("nonce", req.Nonce).
		Str("gas_price_gwei", weiToGwei(req.GasPrice)).
		Uint64("gas", req.Gas).
		Bool("gas_estimated", req.GasEstimated).
		Msg("built transaction")

	return req, nil
}

// GetNextNonce returns the next nonce for the signer, counting pending
// transactions.
func (tb *TxBuilder) GetNextNonce(ctx context.Context, signer ethcommon.Address) (uint64, error) {
	return tb.rpcClient.GetPendingNonce(ctx, signer)
}

func (tb *TxBuilder) gasPrice(ctx context.Context, minGasPrice *big.Int) (*big.Int, error) {
	suggested, err := tb.rpcClient.GetGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	price := new(big.Int).Set(suggested)
	if !tb.lowFee && tb.gas.PriceBumpPercent > 0 {
		price = bumpByPercent(price, tb.gas.PriceBumpPercent)
	}

	if minGasPrice != nil && minGasPrice.Sign() > 0 {
		floor := bumpByPercent(minGasPrice, tb.gas.ReplacementBumpPercent)
		if floor.Cmp(minGasPrice) <= 0 {
			floor = new(big.Int).Add(minGasPrice, big.NewInt(1))
		}
		if price.Cmp(floor) < 0 {
			price = floor
		}
	}
	return price, nil
}

func (tb *TxBuilder) gasLimit(ctx context.Context, call CallRequest, req *TxRequest) (uint64, bool) {
	estimate, err := tb.rpcClient.EstimateGas(ctx, ethereum.CallMsg{
		From:     req.From,
		To:       &req.To,
		GasPrice: req.GasPrice,
		Value:    req.Value,
		Data:     req.Data,
	})
	if err != nil {
		tb.logger.Warn().
			Err(err).
			Str("method", call.Method).
			Uint64("fallback_gas_limit", tb.gas.FallbackGasLimit).
			Msg("gas estimation failed, using fallback gas limit")
		return tb.gas.FallbackGasLimit, false
	}

	gas := new(big.Int).SetUint64(estimate)
	gas = bumpByPercent(gas, tb.gas.EstimateMarginPercent)
	if !gas.IsUint64() {
		return estimate, true
	}
	limit := gas.Uint64()
	// The margin never pushes a fitting estimate over the cap.
	if limit > tb.gas.MaxGasLimit && estimate <= tb.gas.MaxGasLimit {
		limit = tb.gas.MaxGasLimit
	}
	return limit, true
}

func (tb *TxBuilder) validateParties(req *TxRequest) error {
	if req.From == (ethcommon.Address{}) {
		return anchorerrors.NewValidationError(tb.chainID, "from", "sender address is required")
	}
	if req.To == (ethcommon.Address{}) {
		return anchorerrors.NewValidationError(tb.chainID, "to", "contract address is required")
	}
	return nil
}

// Validate checks a built request against the transaction rules.
func (tb *TxBuilder) Validate(req *TxRequest) error {
	if req == nil {
		return anchorerrors.NewValidationError(tb.chainID, "request", "transaction request is nil")
	}
	if err := tb.validateParties(req); err != nil {
		return err
	}
	if req.ChainID == nil || req.ChainID.Sign() <= 0 {
		return anchorerrors.NewValidationError(tb.chainID, "chainId", "chain id is required")
	}
	if req.GasPrice == nil || req.GasPrice.Sign() <= 0 {
		return anchorerrors.NewValidationError(tb.chainID, "gasPrice", "gas price must be positive")
	}
	if req.Gas < MinGasLimit {
		return anchorerrors.NewValidationError(tb.chainID, "gas",
			fmt.Sprintf("gas limit %d below intrinsic minimum %d", req.Gas, MinGasLimit))
	}
	if req.Gas > tb.gas.MaxGasLimit {
		return anchorerrors.NewValidationError(tb.chainID, "gas",
			fmt.Sprintf("gas limit %d exceeds the configured cap %d", req.Gas, tb.gas.MaxGasLimit))
	}
	if len(req.Data) == 0 {
		return anchorerrors.NewValidationError(tb.chainID, "data", "call data is required for contract calls")
	}
	return nil
}

// bumpByPercent returns v * (100 + percent) / 100.
func bumpByPercent(v *big.Int, percent int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(int64(100+percent)))
	return out.Div(out, big.NewInt(100))
}

// weiToGwei converts wei to gwei for logging
func weiToGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	gwei := new(big.Int).Div(wei, big.NewInt(1e9))
	return gwei.String()
}
