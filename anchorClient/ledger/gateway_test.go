package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/config"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
)

func newTestGateway(t *testing.T, client ethBackend) *Gateway {
	t.Helper()
	cfg := testConfig()
	cfg.Submitter = config.SubmitterConfig{MaxRetries: 3, ConfirmationTimeoutSeconds: 1, ReceiptPollIntervalMillis: 2, BackoffInitialMillis: 1, BackoffMaxMillis: 5}
	gw, err := newGateway(newTestRPC(client), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	return gw
}

func TestNewGatewayConfigErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Chain.ContractAddress = ""
	_, err := NewGateway(cfg, nil, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeConfig))

	cfg = testConfig()
	cfg.Chain.ChainID = "bogus:1"
	_, err = newGateway(newTestRPC(), cfg, nil, zerolog.Nop())
	assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeConfig))
}

func TestGatewayStoreCredential(t *testing.T) {
	client := &mockEthClient{}
	stubChainReads(client, 0, 1_000_000_000, 100_000)
	sent := &sentLog{}
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil).Run(sent.record)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(minedReceipt(types.ReceiptStatusSuccessful), nil)

	gw := newTestGateway(t, client)
	req := StoreRequest{
		AnchorID:    common.AnchorID{0x01},
		Title:       "BSc Computer Science",
		Issuer:      "Acme University",
		Subject:     "alice@example.com",
		ContentHash: [32]byte{0x02},
	}
	res := gw.StoreCredential(context.Background(), newTestSigner(t), req, 0)

	require.True(t, res.Success)
	txs := sent.all()
	require.Len(t, txs, 1)
	assert.Equal(t, ethcommon.HexToAddress(testContract), *txs[0].To())

	expected, err := PackStoreCredential(req)
	require.NoError(t, err)
	assert.Equal(t, expected, txs[0].Data())
	assert.Equal(t, testChainID, gw.ChainID())
	assert.Equal(t, ethcommon.HexToAddress(testContract).Hex(), gw.ContractAddress())
}

func TestGatewayAdminCalls(t *testing.T) {
	client := &mockEthClient{}
	stubChainReads(client, 0, 1_000_000_000, 60_000)
	sent := &sentLog{}
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil).Run(sent.record)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(minedReceipt(types.ReceiptStatusSuccessful), nil)

	gw := newTestGateway(t, client)
	signer := newTestSigner(t)
	issuer := ethcommon.HexToAddress("0x1234567890123456789012345678901234567890")

	require.True(t, gw.AuthorizeIssuer(context.Background(), signer, issuer, 1).Success)
	require.True(t, gw.RevokeIssuer(context.Background(), signer, issuer, 1).Success)
	require.True(t, gw.RevokeCredential(context.Background(), signer, common.AnchorID{0x05}, "issued in error", 1).Success)

	txs := sent.all()
	require.Len(t, txs, 3)
	assert.Equal(t, registryABI.Methods[MethodAuthorizeIssuer].ID, txs[0].Data()[:4])
	assert.Equal(t, registryABI.Methods[MethodRevokeIssuer].ID, txs[1].Data()[:4])
	assert.Equal(t, registryABI.Methods[MethodRevokeCredential].ID, txs[2].Data()[:4])
}

func TestGatewayReads(t *testing.T) {
	client := &mockEthClient{}
	verifyOut, err := registryABI.Methods[MethodVerifyCredential].Outputs.Pack(
		"BSc Computer Science", "Acme University", "alice@example.com", [32]byte{0xaa}, big.NewInt(1748736000), true)
	require.NoError(t, err)
	authOut, err := registryABI.Methods[MethodIsAuthorizedIssuer].Outputs.Pack(false)
	require.NoError(t, err)

	verifyID := registryABI.Methods[MethodVerifyCredential].ID
	client.On("CallContract", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return len(msg.Data) >= 4 && string(msg.Data[:4]) == string(verifyID)
	}), (*big.Int)(nil)).Return(verifyOut, nil)
	client.On("CallContract", mock.Anything, mock.Anything, (*big.Int)(nil)).Return(authOut, nil)
	client.On("HeaderByNumber", mock.Anything, big.NewInt(100)).Return(&types.Header{Time: 1748736000}, nil)

	gw := newTestGateway(t, client)
	ctx := context.Background()

	cred, err := gw.VerifyCredential(ctx, common.AnchorID{0x01})
	require.NoError(t, err)
	assert.True(t, cred.Valid)
	assert.Equal(t, [32]byte{0xaa}, cred.ContentHash)

	ok, err := gw.IsAuthorizedIssuer(ctx, ethcommon.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.False(t, ok)

	ts, err := gw.BlockTimestamp(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1748736000, 0).UTC(), ts)
}

func TestGatewayReadErrorsAreClassified(t *testing.T) {
	client := &mockEthClient{}
	client.On("CallContract", mock.Anything, mock.Anything, (*big.Int)(nil)).Return(nil, errors.New("execution reverted: unknown anchor"))

	_, err := newTestGateway(t, client).VerifyCredential(context.Background(), common.AnchorID{0x01})
	require.Error(t, err)
	assert.True(t, anchorerrors.IsCode(err, anchorerrors.ErrCodeContractLogic))
}
