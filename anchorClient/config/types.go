package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Home directory (default: ~/.anchord)

	Chain     ChainConfig     `json:"chain"`
	Gas       GasConfig       `json:"gas"`
	Submitter SubmitterConfig `json:"submitter"`
	IPFS      IPFSConfig      `json:"ipfs"`
	Journal   JournalConfig   `json:"journal"`
}

// ChainConfig describes the ledger the engine anchors to.
type ChainConfig struct {
	ChainID           string   `json:"chain_id"`            // CAIP-2 chain id, e.g. eip155:11155111
	RPCURLs           []string `json:"rpc_urls"`            // JSON-RPC endpoints; reads fail over round-robin
	ContractAddress   string   `json:"contract_address"`    // CredentialRegistry contract
	LowFee            bool     `json:"low_fee"`             // test networks: use the node gas price as-is
	RPCTimeoutSeconds int      `json:"rpc_timeout_seconds"` // per-call timeout for read RPCs (default: 10)
}

// GasConfig tunes the transaction builder.
type GasConfig struct {
	PriceBumpPercent       int    `json:"price_bump_percent"`       // added to the node gas price (default: 10)
	ReplacementBumpPercent int    `json:"replacement_bump_percent"` // minimum raise over a previous price (default: 12)
	EstimateMarginPercent  int    `json:"estimate_margin_percent"`  // safety margin on gas estimates (default: 20)
	FallbackGasLimit       uint64 `json:"fallback_gas_limit"`       // used when estimation fails (default: 500000)
	MaxGasLimit            uint64 `json:"max_gas_limit"`            // hard ceiling (default: 8000000)
}

// SubmitterConfig tunes the retry engine.
type SubmitterConfig struct {
	MaxRetries                 int `json:"max_retries"`                  // total attempts per submission (default: 3)
	ConfirmationTimeoutSeconds int `json:"confirmation_timeout_seconds"` // receipt wait bound (default: 120)
	ReceiptPollIntervalMillis  int `json:"receipt_poll_interval_millis"` // receipt polling period (default: 2000)
	BackoffInitialMillis       int `json:"backoff_initial_millis"`       // first network-error backoff (default: 1000)
	BackoffMaxMillis           int `json:"backoff_max_millis"`           // backoff cap (default: 30000)
}

// IPFSConfig configures the content store mirror.
type IPFSConfig struct {
	Enabled        bool   `json:"enabled"`
	APIURL         string `json:"api_url"`         // IPFS HTTP API, e.g. localhost:5001
	GatewayURL     string `json:"gateway_url"`     // public gateway prefix (default: https://ipfs.io/ipfs/)
	TimeoutSeconds int    `json:"timeout_seconds"` // default: 20
	CacheSize      int    `json:"cache_size"`      // cached reads (default: 1000)
	Pin            bool   `json:"pin"`             // pin mirrored documents
}

// JournalConfig configures the SQLite journal of receipts and attempts.
type JournalConfig struct {
	InMemory bool   `json:"in_memory"`
	Dir      string `json:"dir"`      // default: <node_home>/data
	Filename string `json:"filename"` // default: journal.db
}

// NumericChainID extracts the numeric EVM chain id from a CAIP-2 id.
// A bare number is accepted as well.
func (c ChainConfig) NumericChainID() (int64, error) {
	raw := c.ChainID
	if raw == "" {
		return 0, fmt.Errorf("chain_id is required")
	}
	if idx := strings.Index(raw, ":"); idx >= 0 {
		if raw[:idx] != "eip155" {
			return 0, fmt.Errorf("unsupported chain namespace %q", raw[:idx])
		}
		raw = raw[idx+1:]
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chain_id %q", c.ChainID)
	}
	return id, nil
}

// RPCTimeout returns the per-call timeout for read RPCs.
func (c ChainConfig) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutSeconds) * time.Second
}

// ConfirmationTimeout returns the receipt wait bound.
func (s SubmitterConfig) ConfirmationTimeout() time.Duration {
	return time.Duration(s.ConfirmationTimeoutSeconds) * time.Second
}

// ReceiptPollInterval returns the receipt polling period.
func (s SubmitterConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(s.ReceiptPollIntervalMillis) * time.Millisecond
}

// BackoffInitial returns the first network-error backoff delay.
func (s SubmitterConfig) BackoffInitial() time.Duration {
	return time.Duration(s.BackoffInitialMillis) * time.Millisecond
}

// BackoffMax returns the backoff cap.
func (s SubmitterConfig) BackoffMax() time.Duration {
	return time.Duration(s.BackoffMaxMillis) * time.Millisecond
}

// Timeout returns the IPFS request timeout.
func (i IPFSConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}
