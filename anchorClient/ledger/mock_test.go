package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/credential-anchor/anchorClient/config"
)

const (
	testChainID    = "eip155:11155111"
	testChainIDInt = int64(11155111)
	testContract   = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

// receiptFunc lets a test compute receipts per hash instead of returning a
// fixed value.
type receiptFunc func(ctx context.Context, hash ethcommon.Hash) (*types.Receipt, error)

// mockEthClient is a mock implementation of the Ethereum client for testing
type mockEthClient struct {
	mock.Mock
}

var _ ethBackend = (*mockEthClient)(nil)

func (m *mockEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if id := args.Get(0); id != nil {
		return id.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(ctx, number)
	if header := args.Get(0); header != nil {
		return header.(*types.Header), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if price := args.Get(0); price != nil {
		return price.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockEthClient) TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	if fn, ok := args.Get(0).(receiptFunc); ok {
		return fn(ctx, txHash)
	}
	if receipt := args.Get(0); receipt != nil {
		return receipt.(*types.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, msg, blockNumber)
	if out := args.Get(0); out != nil {
		return out.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) Close() {
	m.Called()
}

// stubChainReads wires the reads every build performs.
func stubChainReads(m *mockEthClient, pendingNonce uint64, gasPrice int64, estimate uint64) {
	m.On("PendingNonceAt", mock.Anything, mock.Anything).Return(pendingNonce, nil)
	m.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(gasPrice), nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(estimate, nil)
}

func testGasConfig() config.GasConfig {
	return config.GasConfig{
		PriceBumpPercent:       10,
		ReplacementBumpPercent: 12,
		EstimateMarginPercent:  20,
		FallbackGasLimit:       500_000,
		MaxGasLimit:            8_000_000,
	}
}

func testConfig() config.Config {
	return config.Config{
		LogLevel:  1,
		LogFormat: "json",
		Chain: config.ChainConfig{
			ChainID:         testChainID,
			RPCURLs:         []string{"http://localhost:8545"},
			ContractAddress: testContract,
		},
		Gas: testGasConfig(),
	}
}

func fastSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		MaxRetries:          3,
		ConfirmationTimeout: 50 * time.Millisecond,
		PollInterval:        2 * time.Millisecond,
		BackoffInitial:      time.Millisecond,
		BackoffMax:          5 * time.Millisecond,
	}
}

func newTestRPC(clients ...ethBackend) *RPCClient {
	return newRPCClient(clients, time.Second, zerolog.Nop())
}

func newTestBuilder(t *testing.T, client ethBackend, lowFee bool) *TxBuilder {
	t.Helper()
	builder, err := NewTxBuilder(newTestRPC(client), testChainID, testChainIDInt, testGasConfig(), lowFee, zerolog.Nop())
	require.NoError(t, err)
	return builder
}

func newTestSubmitter(t *testing.T, client ethBackend) *Submitter {
	t.Helper()
	builder := newTestBuilder(t, client, false)
	return NewSubmitter(builder.rpcClient, builder, fastSubmitterConfig(), nil, zerolog.Nop())
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewSignerFromKey(key)
}

func minedReceipt(status uint64) *types.Receipt {
	return &types.Receipt{
		Status:      status,
		BlockNumber: big.NewInt(100),
		GasUsed:     52_000,
	}
}

func testCall() CallRequest {
	return CallRequest{
		Method: MethodStoreCredential,
		To:     ethcommon.HexToAddress(testContract),
		Data:   []byte{0xde, 0xad, 0xbe, 0xef},
	}
}
