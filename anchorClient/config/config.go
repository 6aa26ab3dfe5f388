package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/pushchain/credential-anchor/anchorClient/constant"
)

const (
	defaultJournalFilename = "journal.db"
	defaultGatewayURL      = "https://ipfs.io/ipfs/"
)

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Chain settings are optional until a ledger command runs, but must be
	// well formed when present.
	if cfg.Chain.ChainID != "" {
		if _, err := cfg.Chain.NumericChainID(); err != nil {
			return err
		}
	}
	if cfg.Chain.ContractAddress != "" && !ethcommon.IsHexAddress(cfg.Chain.ContractAddress) {
		return fmt.Errorf("contract address %q is not a hex address", cfg.Chain.ContractAddress)
	}
	if cfg.Chain.RPCTimeoutSeconds == 0 {
		cfg.Chain.RPCTimeoutSeconds = 10
	}

	// Set defaults for gas config
	if cfg.Gas.PriceBumpPercent == 0 {
		cfg.Gas.PriceBumpPercent = 10
	}
	if cfg.Gas.ReplacementBumpPercent == 0 {
		cfg.Gas.ReplacementBumpPercent = 12
	}
	if cfg.Gas.EstimateMarginPercent == 0 {
		cfg.Gas.EstimateMarginPercent = 20
	}
	if cfg.Gas.FallbackGasLimit == 0 {
		cfg.Gas.FallbackGasLimit = 500_000
	}
	if cfg.Gas.MaxGasLimit == 0 {
		cfg.Gas.MaxGasLimit = 8_000_000
	}
	if cfg.Gas.PriceBumpPercent < 0 || cfg.Gas.ReplacementBumpPercent < 0 || cfg.Gas.EstimateMarginPercent < 0 {
		return fmt.Errorf("gas percentages must not be negative")
	}
	if cfg.Gas.FallbackGasLimit > cfg.Gas.MaxGasLimit {
		return fmt.Errorf("fallback gas limit %d exceeds max gas limit %d", cfg.Gas.FallbackGasLimit, cfg.Gas.MaxGasLimit)
	}

	// Set defaults for submitter config
	if cfg.Submitter.MaxRetries == 0 {
		cfg.Submitter.MaxRetries = 3
	}
	if cfg.Submitter.MaxRetries < 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if cfg.Submitter.ConfirmationTimeoutSeconds == 0 {
		cfg.Submitter.ConfirmationTimeoutSeconds = 120
	}
	if cfg.Submitter.ReceiptPollIntervalMillis == 0 {
		cfg.Submitter.ReceiptPollIntervalMillis = 2000
	}
	if cfg.Submitter.BackoffInitialMillis == 0 {
		cfg.Submitter.BackoffInitialMillis = 1000
	}
	if cfg.Submitter.BackoffMaxMillis == 0 {
		cfg.Submitter.BackoffMaxMillis = 30_000
	}

	// Set defaults for content store
	if cfg.IPFS.GatewayURL == "" {
		cfg.IPFS.GatewayURL = defaultGatewayURL
	}
	if cfg.IPFS.TimeoutSeconds == 0 {
		cfg.IPFS.TimeoutSeconds = 20
	}
	if cfg.IPFS.CacheSize == 0 {
		cfg.IPFS.CacheSize = 1000
	}
	if cfg.IPFS.Enabled && cfg.IPFS.APIURL == "" {
		return fmt.Errorf("ipfs api url is required when ipfs is enabled")
	}

	// Set defaults for journal
	if cfg.Journal.Filename == "" {
		cfg.Journal.Filename = defaultJournalFilename
	}

	return nil
}

// ValidateLedger checks the settings every ledger operation depends on.
func (c *Config) ValidateLedger() error {
	if _, err := c.Chain.NumericChainID(); err != nil {
		return err
	}
	if len(c.Chain.RPCURLs) == 0 {
		return fmt.Errorf("at least one rpc url is required")
	}
	if !ethcommon.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("contract address %q is not a hex address", c.Chain.ContractAddress)
	}
	return nil
}

// JournalPath returns the SQLite file location, relative paths resolved
// against the node home.
func (c *Config) JournalPath() string {
	dir := c.Journal.Dir
	if dir == "" {
		dir = filepath.Join(c.NodeHome, constant.DataSubdir)
	}
	return filepath.Join(dir, c.Journal.Filename)
}

// Save writes the given config to <NodeDir>/config/anchord_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads, validates and returns the config from
// <BasePath>/config/anchord_config.json.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = basePath
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return &cfg, nil
}
