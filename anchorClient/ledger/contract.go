package ledger

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pushchain/credential-anchor/anchorClient/common"
)

// CredentialRegistryABI contains the ABI for the credential registry contract
const CredentialRegistryABI = `[
  {
    "type": "function",
    "name": "storeCredential",
    "inputs": [
      { "name": "anchorId", "type": "bytes32", "internalType": "bytes32" },
      { "name": "title", "type": "string", "internalType": "string" },
      { "name": "issuer", "type": "string", "internalType": "string" },
      { "name": "studentId", "type": "string", "internalType": "string" },
      { "name": "contentHash", "type": "bytes32", "internalType": "bytes32" }
    ],
    "outputs": [{ "name": "", "type": "bytes32", "internalType": "bytes32" }],
    "stateMutability": "nonpayable"
  },
  {
    "type": "function",
    "name": "verifyCredential",
    "inputs": [
      { "name": "anchorId", "type": "bytes32", "internalType": "bytes32" }
    ],
    "outputs": [
      { "name": "title", "type": "string", "internalType": "string" },
      { "name": "issuer", "type": "string", "internalType": "string" },
      { "name": "studentId", "type": "string", "internalType": "string" },
      { "name": "contentHash", "type": "bytes32", "internalType": "bytes32" },
      { "name": "timestamp", "type": "uint256", "internalType": "uint256" },
      { "name": "isValid", "type": "bool", "internalType": "bool" }
    ],
    "stateMutability": "view"
  },
  {
    "type": "function",
    "name": "revokeCredential",
    "inputs": [
      { "name": "anchorId", "type": "bytes32", "internalType": "bytes32" },
      { "name": "reason", "type": "string", "internalType": "string" }
    ],
    "outputs": [],
    "stateMutability": "nonpayable"
  },
  {
    "type": "function",
    "name": "authorizeIssuer",
    "inputs": [
      { "name": "issuer", "type": "address", "internalType": "address" }
    ],
    "outputs": [],
    "stateMutability": "nonpayable"
  },
  {
    "type": "function",
    "name": "revokeIssuer",
    "inputs": [
      { "name": "issuer", "type": "address", "internalType": "address" }
    ],
    "outputs": [],
    "stateMutability": "nonpayable"
  },
  {
    "type": "function",
    "name": "isAuthorizedIssuer",
    "inputs": [
      { "name": "issuer", "type": "address", "internalType": "address" }
    ],
    "outputs": [{ "name": "", "type": "bool", "internalType": "bool" }],
    "stateMutability": "view"
  },
  {
    "type": "event",
    "name": "CredentialStored",
    "inputs": [
      { "name": "anchorId", "type": "bytes32", "indexed": true, "internalType": "bytes32" },
      { "name": "contentHash", "type": "bytes32", "indexed": false, "internalType": "bytes32" },
      { "name": "issuer", "type": "address", "indexed": false, "internalType": "address" }
    ],
    "anonymous": false
  }
]`

const (
	MethodStoreCredential    = "storeCredential"
	MethodVerifyCredential   = "verifyCredential"
	MethodRevokeCredential   = "revokeCredential"
	MethodAuthorizeIssuer    = "authorizeIssuer"
	MethodRevokeIssuer       = "revokeIssuer"
	MethodIsAuthorizedIssuer = "isAuthorizedIssuer"

	EventCredentialStored = "CredentialStored"
)

var registryABI = mustParseRegistryABI()

// ParseRegistryABI parses CredentialRegistryABI.
func ParseRegistryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(CredentialRegistryABI))
}

func mustParseRegistryABI() abi.ABI {
	parsed, err := ParseRegistryABI()
	if err != nil {
		panic(fmt.Sprintf("invalid credential registry abi: %v", err))
	}
	return parsed
}

// StoreRequest carries the arguments of storeCredential.
type StoreRequest struct {
	AnchorID    common.AnchorID
	Title       string
	Issuer      string
	Subject     string
	ContentHash [32]byte
}

// OnChainCredential is the registry's view of an anchored record.
type OnChainCredential struct {
	Title       string
	Issuer      string
	Subject     string
	ContentHash [32]byte
	Timestamp   time.Time
	Valid       bool
}

// Exists reports whether the registry holds anything under the queried id.
// Unknown ids decode as an all-zero record.
func (c *OnChainCredential) Exists() bool {
	return c != nil && (c.ContentHash != [32]byte{} || !c.Timestamp.IsZero())
}

// CredentialStoredEvent is the decoded CredentialStored log.
type CredentialStoredEvent struct {
	AnchorID    common.AnchorID
	ContentHash [32]byte
	Issuer      ethcommon.Address
}

// PackStoreCredential encodes a storeCredential call.
func PackStoreCredential(req StoreRequest) ([]byte, error) {
	return registryABI.Pack(MethodStoreCredential, [32]byte(req.AnchorID), req.Title, req.Issuer, req.Subject, req.ContentHash)
}

// PackVerifyCredential encodes a verifyCredential call.
func PackVerifyCredential(anchorID common.AnchorID) ([]byte, error) {
	return registryABI.Pack(MethodVerifyCredential, [32]byte(anchorID))
}

// PackRevokeCredential encodes a revokeCredential call.
func PackRevokeCredential(anchorID common.AnchorID, reason string) ([]byte, error) {
	return registryABI.Pack(MethodRevokeCredential, [32]byte(anchorID), reason)
}

// PackAuthorizeIssuer encodes an authorizeIssuer call.
func PackAuthorizeIssuer(issuer ethcommon.Address) ([]byte, error) {
	return registryABI.Pack(MethodAuthorizeIssuer, issuer)
}

// PackRevokeIssuer encodes a revokeIssuer call.
func PackRevokeIssuer(issuer ethcommon.Address) ([]byte, error) {
	return registryABI.Pack(MethodRevokeIssuer, issuer)
}

// PackIsAuthorizedIssuer encodes an isAuthorizedIssuer call.
func PackIsAuthorizedIssuer(issuer ethcommon.Address) ([]byte, error) {
	return registryABI.Pack(MethodIsAuthorizedIssuer, issuer)
}

// UnpackVerifyCredential decodes the return data of verifyCredential.
func UnpackVerifyCredential(data []byte) (*OnChainCredential, error) {
	out, err := registryABI.Unpack(MethodVerifyCredential, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", MethodVerifyCredential, err)
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("unexpected %s output length %d", MethodVerifyCredential, len(out))
	}

	cred := &OnChainCredential{}
	var ok bool
	if cred.Title, ok = out[0].(string); !ok {
		return nil, fmt.Errorf("unexpected type %T for title", out[0])
	}
	if cred.Issuer, ok = out[1].(string); !ok {
		return nil, fmt.Errorf("unexpected type %T for issuer", out[1])
	}
	if cred.Subject, ok = out[2].(string); !ok {
		return nil, fmt.Errorf("unexpected type %T for studentId", out[2])
	}
	if cred.ContentHash, ok = out[3].([32]byte); !ok {
		return nil, fmt.Errorf("unexpected type %T for contentHash", out[3])
	}
	ts, ok := out[4].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for timestamp", out[4])
	}
	if ts.Sign() > 0 {
		cred.Timestamp = time.Unix(ts.Int64(), 0).UTC()
	}
	if cred.Valid, ok = out[5].(bool); !ok {
		return nil, fmt.Errorf("unexpected type %T for isValid", out[5])
	}
	return cred, nil
}

// UnpackIsAuthorizedIssuer decodes the return data of isAuthorizedIssuer.
func UnpackIsAuthorizedIssuer(data []byte) (bool, error) {
	out, err := registryABI.Unpack(MethodIsAuthorizedIssuer, data)
	if err != nil {
		return false, fmt.Errorf("failed to unpack %s: %w", MethodIsAuthorizedIssuer, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected %s output length %d", MethodIsAuthorizedIssuer, len(out))
	}
	authorized, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected type %T for isAuthorizedIssuer", out[0])
	}
	return authorized, nil
}

// FindCredentialStored returns the first CredentialStored log emitted by
// contract in the receipt.
func FindCredentialStored(receipt *types.Receipt, contract ethcommon.Address) (*CredentialStoredEvent, bool) {
	if receipt == nil {
		return nil, false
	}
	event := registryABI.Events[EventCredentialStored]
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract || len(log.Topics) < 2 || log.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil || len(values) != 2 {
			continue
		}
		contentHash, ok := values[0].([32]byte)
		if !ok {
			continue
		}
		issuer, ok := values[1].(ethcommon.Address)
		if !ok {
			continue
		}
		return &CredentialStoredEvent{
			AnchorID:    common.AnchorID(log.Topics[1]),
			ContentHash: contentHash,
			Issuer:      issuer,
		}, true
	}
	return nil, false
}
