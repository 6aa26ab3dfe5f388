package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// EnvSignerKey holds the hex private key of the issuing account.
	EnvSignerKey = "ANCHORD_SIGNER_KEY"
	// EnvRPCURL overrides the configured endpoints (comma separated).
	EnvRPCURL = "ANCHORD_RPC_URL"
	// EnvContractAddress overrides the configured registry contract.
	EnvContractAddress = "ANCHORD_CONTRACT_ADDRESS"
	// EnvIPFSURL overrides the IPFS API endpoint and enables mirroring.
	EnvIPFSURL = "ANCHORD_IPFS_URL"
)

// LoadEnv loads a .env file from the working directory or one of up to five
// parent directories. A missing file is not an error; the returned path is
// empty in that case.
func LoadEnv() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		envPath := filepath.Join(currentDir, ".env")
		if _, statErr := os.Stat(envPath); statErr == nil {
			if err := godotenv.Load(envPath); err != nil {
				return "", err
			}
			return envPath, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}
	return "", nil
}

// LoadEnvWithPath loads environment variables from a specific .env file path
func LoadEnvWithPath(filePath string) error {
	return godotenv.Load(filePath)
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) {
	if raw := os.Getenv(EnvRPCURL); raw != "" {
		var urls []string
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			cfg.Chain.RPCURLs = urls
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvContractAddress)); addr != "" {
		cfg.Chain.ContractAddress = addr
	}
	if ipfsURL := strings.TrimSpace(os.Getenv(EnvIPFSURL)); ipfsURL != "" {
		cfg.IPFS.APIURL = ipfsURL
		cfg.IPFS.Enabled = true
	}
}

// SignerKey returns the signing key from the environment, without any 0x prefix.
func SignerKey() string {
	return strings.TrimPrefix(strings.TrimSpace(os.Getenv(EnvSignerKey)), "0x")
}
