package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const defaultRPCTimeout = 10 * time.Second

// ethBackend is the subset of *ethclient.Client the gateway relies on.
type ethBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

var _ ethBackend = (*ethclient.Client)(nil)

// RPCClient provides the ledger RPC operations over a pool of endpoints.
// Reads fail over round-robin; broadcasts go to a single endpoint.
type RPCClient struct {
	clients []ethBackend
	index   uint64
	timeout time.Duration
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// NewRPCClient creates a new RPC client from RPC URLs and validates chain ID
func NewRPCClient(rpcURLs []string, expectedChainID int64, timeout time.Duration, logger zerolog.Logger) (*RPCClient, error) {
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}

	log := logger.With().Str("component", "ledger_rpc_client").Logger()
	clients := make([]ethBackend, 0, len(rpcURLs))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, url := range rpcURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to RPC endpoint, skipping")
			continue
		}

		clientChainID, err := client.ChainID(ctx)
		if err != nil {
			// Keep the endpoint; a slow node may still serve later calls.
			log.Warn().
				Err(err).
				Str("url", url).
				Int64("expected_chain_id", expectedChainID).
				Msg("failed to verify chain ID, proceeding with client anyway")
			clients = append(clients, client)
			continue
		}

		if clientChainID.Int64() != expectedChainID {
			client.Close()
			log.Warn().
				Str("url", url).
				Int64("expected_chain_id", expectedChainID).
				Int64("actual_chain_id", clientChainID.Int64()).
				Msg("chain ID mismatch, closing client")
			continue
		}

		clients = append(clients, client)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("failed to connect to any valid RPC endpoints")
	}

	return newRPCClient(clients, timeout, log), nil
}

func newRPCClient(clients []ethBackend, timeout time.Duration, logger zerolog.Logger) *RPCClient {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &RPCClient{
		clients: clients,
		timeout: timeout,
		logger:  logger,
	}
}

// executeWithFailover executes a read with round-robin failover. Answers
// that another endpoint would repeat (not found, cancellation) end the loop.
func (rc *RPCClient) executeWithFailover(ctx context.Context, operation string, fn func(context.Context, ethBackend) error) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()

	if len(clients) == 0 {
		return fmt.Errorf("no RPC clients available for %s", operation)
	}

	var lastErr error
	maxAttempts := len(clients)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		index := atomic.AddUint64(&rc.index, 1) - 1
		client := clients[index%uint64(len(clients))]
		if client == nil {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		err := fn(callCtx, client)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, ethereum.NotFound) || ctx.Err() != nil {
			return err
		}
		lastErr = err

		rc.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return fmt.Errorf("operation %s failed after trying %d endpoints: %w", operation, maxAttempts, lastErr)
}

// pick returns the next endpoint in round-robin order without failover.
func (rc *RPCClient) pick() (ethBackend, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if len(rc.clients) == 0 {
		return nil, fmt.Errorf("no RPC clients available")
	}
	index := atomic.AddUint64(&rc.index, 1) - 1
	return rc.clients[index%uint64(len(rc.clients))], nil
}

// IsHealthy checks if any RPC in the pool is healthy by pinging it
func (rc *RPCClient) IsHealthy(ctx context.Context) bool {
	rc.mu.RLock()
	hasClients := len(rc.clients) > 0
	rc.mu.RUnlock()

	if !hasClients {
		return false
	}

	_, err := rc.GetLatestBlock(ctx)
	return err == nil
}

// GetChainID returns the chain id reported by the node
func (rc *RPCClient) GetChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := rc.executeWithFailover(ctx, "get_chain_id", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		chainID, innerErr = client.ChainID(ctx)
		return innerErr
	})
	return chainID, err
}

// GetLatestBlock returns the latest block number
func (rc *RPCClient) GetLatestBlock(ctx context.Context) (uint64, error) {
	var blockNum uint64
	err := rc.executeWithFailover(ctx, "get_block_number", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		blockNum, innerErr = client.BlockNumber(ctx)
		return innerErr
	})
	return blockNum, err
}

// GetHeader returns the header of the given block (nil for latest)
func (rc *RPCClient) GetHeader(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := rc.executeWithFailover(ctx, "get_header", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		header, innerErr = client.HeaderByNumber(ctx, number)
		return innerErr
	})
	return header, err
}

// GetGasPrice fetches the current gas price
func (rc *RPCClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	var gasPrice *big.Int
	err := rc.executeWithFailover(ctx, "get_gas_price", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		gasPrice, innerErr = client.SuggestGasPrice(ctx)
		return innerErr
	})
	return gasPrice, err
}

// GetPendingNonce returns the next nonce including pending transactions
func (rc *RPCClient) GetPendingNonce(ctx context.Context, account ethcommon.Address) (uint64, error) {
	var nonce uint64
	err := rc.executeWithFailover(ctx, "get_pending_nonce", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		nonce, innerErr = client.PendingNonceAt(ctx, account)
		return innerErr
	})
	return nonce, err
}

// EstimateGas estimates the gas needed by msg
func (rc *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := rc.executeWithFailover(ctx, "estimate_gas", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		gas, innerErr = client.EstimateGas(ctx, msg)
		return innerErr
	})
	return gas, err
}

// CallContract executes a read-only contract call at the latest block
func (rc *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := rc.executeWithFailover(ctx, "call_contract", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		out, innerErr = client.CallContract(ctx, msg, nil)
		return innerErr
	})
	return out, err
}

// GetTransactionReceipt fetches a transaction receipt. Unmined
// transactions return ethereum.NotFound.
func (rc *RPCClient) GetTransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := rc.executeWithFailover(ctx, "get_transaction_receipt", func(ctx context.Context, client ethBackend) error {
		var innerErr error
		receipt, innerErr = client.TransactionReceipt(ctx, txHash)
		return innerErr
	})
	return receipt, err
}

// BroadcastTransaction sends a signed transaction to one endpoint and
// returns its hash. The hash is returned even when the send fails.
func (rc *RPCClient) BroadcastTransaction(ctx context.Context, tx *types.Transaction) (string, error) {
	txHash := tx.Hash().Hex()
	client, err := rc.pick()
	if err != nil {
		return txHash, err
	}
	callCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	if err := client.SendTransaction(callCtx, tx); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// Close closes all RPC connections
func (rc *RPCClient) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, client := range rc.clients {
		if client != nil {
			client.Close()
		}
	}
	rc.clients = nil
}
