package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/config"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
	"github.com/pushchain/credential-anchor/anchorClient/metrics"
)

// Gateway binds the RPC pool, builder and submitter to one credential
// registry contract on one chain.
type Gateway struct {
	rpcClient  *RPCClient
	builder    *TxBuilder
	submitter  *Submitter
	contract   ethcommon.Address
	chainID    string
	chainIDInt int64
	logger     zerolog.Logger
}

// NewGateway dials the configured endpoints and returns a ready gateway.
func NewGateway(cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) (*Gateway, error) {
	if err := cfg.ValidateLedger(); err != nil {
		return nil, anchorerrors.NewConfigError(err.Error())
	}
	chainIDInt, _ := cfg.Chain.NumericChainID()

	rpcClient, err := NewRPCClient(cfg.Chain.RPCURLs, chainIDInt, cfg.Chain.RPCTimeout(), logger)
	if err != nil {
		return nil, anchorerrors.NewNetworkError(cfg.Chain.ChainID, "failed to connect to ledger", err)
	}
	return newGateway(rpcClient, cfg, m, logger)
}

func newGateway(rpcClient *RPCClient, cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) (*Gateway, error) {
	chainIDInt, err := cfg.Chain.NumericChainID()
	if err != nil {
		return nil, anchorerrors.NewConfigError(err.Error())
	}
	if !ethcommon.IsHexAddress(cfg.Chain.ContractAddress) {
		return nil, anchorerrors.NewConfigError(fmt.Sprintf("invalid contract address: %s", cfg.Chain.ContractAddress))
	}

	builder, err := NewTxBuilder(rpcClient, cfg.Chain.ChainID, chainIDInt, cfg.Gas, cfg.Chain.LowFee, logger)
	if err != nil {
		return nil, anchorerrors.NewConfigError(err.Error())
	}

	return &Gateway{
		rpcClient:  rpcClient,
		builder:    builder,
		submitter:  NewSubmitter(rpcClient, builder, SubmitterConfigFrom(cfg.Submitter), m, logger),
		contract:   ethcommon.HexToAddress(cfg.Chain.ContractAddress),
		chainID:    cfg.Chain.ChainID,
		chainIDInt: chainIDInt,
		logger:     logger.With().Str("component", "ledger_gateway").Str("chain", cfg.Chain.ChainID).Logger(),
	}, nil
}

// ChainID returns the CAIP-2 chain id.
func (g *Gateway) ChainID() string { return g.chainID }

// ContractAddress returns the registry contract address.
func (g *Gateway) ContractAddress() string { return g.contract.Hex() }

// StoreCredential anchors a content hash under req.AnchorID.
func (g *Gateway) StoreCredential(ctx context.Context, signer *Signer, req StoreRequest, maxRetries int) *SubmitResult {
	data, err := PackStoreCredential(req)
	if err != nil {
		return g.encodingFailure(MethodStoreCredential, err)
	}
	return g.submitter.Submit(ctx, g.call(MethodStoreCredential, data), signer, maxRetries)
}

// RevokeCredential marks an anchored record invalid on the registry.
func (g *Gateway) RevokeCredential(ctx context.Context, signer *Signer, anchorID common.AnchorID, reason string, maxRetries int) *SubmitResult {
	data, err := PackRevokeCredential(anchorID, reason)
	if err != nil {
		return g.encodingFailure(MethodRevokeCredential, err)
	}
	return g.submitter.Submit(ctx, g.call(MethodRevokeCredential, data), signer, maxRetries)
}

// AuthorizeIssuer allows issuer to store credentials. Owner only.
func (g *Gateway) AuthorizeIssuer(ctx context.Context, signer *Signer, issuer ethcommon.Address, maxRetries int) *SubmitResult {
	data, err := PackAuthorizeIssuer(issuer)
	if err != nil {
		return g.encodingFailure(MethodAuthorizeIssuer, err)
	}
	return g.submitter.Submit(ctx, g.call(MethodAuthorizeIssuer, data), signer, maxRetries)
}

// RevokeIssuer withdraws an issuer authorization. Owner only.
func (g *Gateway) RevokeIssuer(ctx context.Context, signer *Signer, issuer ethcommon.Address, maxRetries int) *SubmitResult {
	data, err := PackRevokeIssuer(issuer)
	if err != nil {
		return g.encodingFailure(MethodRevokeIssuer, err)
	}
	return g.submitter.Submit(ctx, g.call(MethodRevokeIssuer, data), signer, maxRetries)
}

// IsAuthorizedIssuer queries the registry's issuer allow-list.
func (g *Gateway) IsAuthorizedIssuer(ctx context.Context, issuer ethcommon.Address) (bool, error) {
	data, err := PackIsAuthorizedIssuer(issuer)
	if err != nil {
		return false, anchorerrors.NewEncodingError("failed to encode isAuthorizedIssuer", err)
	}
	out, err := g.rpcClient.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data})
	if err != nil {
		return false, anchorerrors.WrapLedgerError(anchorerrors.Classify(err), anchorerrors.ErrCodeUnknown, g.chainID, "isAuthorizedIssuer call failed")
	}
	authorized, err := UnpackIsAuthorizedIssuer(out)
	if err != nil {
		return false, anchorerrors.NewEncodingError("failed to decode isAuthorizedIssuer", err)
	}
	return authorized, nil
}

// VerifyCredential reads the registry entry for anchorID.
func (g *Gateway) VerifyCredential(ctx context.Context, anchorID common.AnchorID) (*OnChainCredential, error) {
	data, err := PackVerifyCredential(anchorID)
	if err != nil {
		return nil, anchorerrors.NewEncodingError("failed to encode verifyCredential", err)
	}
	out, err := g.rpcClient.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data})
	if err != nil {
		return nil, anchorerrors.WrapLedgerError(anchorerrors.Classify(err), anchorerrors.ErrCodeUnknown, g.chainID, "verifyCredential call failed")
	}
	cred, err := UnpackVerifyCredential(out)
	if err != nil {
		return nil, anchorerrors.NewEncodingError("failed to decode verifyCredential", err)
	}
	return cred, nil
}

// BlockTimestamp returns the timestamp of the given block.
func (g *Gateway) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := g.rpcClient.GetHeader(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, anchorerrors.Classify(err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// IsHealthy reports whether any endpoint answers.
func (g *Gateway) IsHealthy(ctx context.Context) bool {
	return g.rpcClient.IsHealthy(ctx)
}

// Close releases the RPC connections.
func (g *Gateway) Close() {
	g.rpcClient.Close()
}

func (g *Gateway) call(method string, data []byte) CallRequest {
	return CallRequest{Method: method, To: g.contract, Data: data}
}

func (g *Gateway) encodingFailure(method string, err error) *SubmitResult {
	return &SubmitResult{
		Attempts: 1,
		Err:      anchorerrors.NewEncodingError(fmt.Sprintf("failed to encode %s", method), err),
	}
}
