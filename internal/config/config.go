package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// NativeCurrency describes the chain's gas token for wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkConfig is the fixed target-network record. It is handed to
// wallet_addEthereumChain verbatim, so field names match the wallet RPC shape.
type NetworkConfig struct {
	ChainID          int64          `json:"chainId"`
	ChainIDHex       string         `json:"chainIdHex"`
	ChainName        string         `json:"chainName"`
	RPCURL           string         `json:"rpcUrl"`
	NativeCurrency   NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURL string         `json:"blockExplorerUrl"`
}

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Deployer  string `json:"deployer"`
	Contracts struct {
		BurnMintNFT string `json:"BurnMintNFT"`
		FreeMintNFT string `json:"FreeMintNFT"`
		HairToken   string `json:"HairToken"`
		MaxToken    string `json:"MaxToken"`
	} `json:"contracts"`
}

// AppConfig ties together network + deployment info and derived values.
type AppConfig struct {
	Network    NetworkConfig
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
}

type ServiceConfig struct {
	HTTPPort       int
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	HistoryDSN     string
	APISecret      string
	APIClockSkew   time.Duration
}

type ChainConfig struct {
	RPCURL     string
	WalletURL  string
	PrivateKey string
}

const (
	defaultNetworkPath     = "network.json"
	defaultDeploymentsPath = "deployments.json"
)

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	networkPath := envOr("NETWORK_PATH", defaultNetworkPath)
	deploymentsPath := envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath)

	netCfg, err := loadNetwork(networkPath)
	if err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}

	deployCfg, err := loadDeployments(deploymentsPath)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	serviceCfg := ServiceConfig{
		HTTPPort:       envOrInt("API_HTTP_PORT", 3000),
		PollInterval:   time.Duration(envOrInt("PROVIDER_POLL_INTERVAL_MS", 4000)) * time.Millisecond,
		ConfirmTimeout: time.Duration(envOrInt("CONFIRM_TIMEOUT_SECONDS", 300)) * time.Second,
		HistoryDSN:     envOr("HISTORY_DSN", ""),
		APISecret:      envOr("API_HMAC_SECRET", ""),
		APIClockSkew:   time.Duration(envOrInt("API_CLOCK_SKEW_SECONDS", 60)) * time.Second,
	}

	chainCfg := ChainConfig{
		RPCURL:     envOr("CHAIN_RPC_URL", netCfg.RPCURL),
		WalletURL:  envOr("WALLET_RPC_URL", netCfg.RPCURL),
		PrivateKey: envOr("CHAIN_PRIVATE_KEY", ""),
	}

	return &AppConfig{
		Network:    *netCfg,
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
	}, nil
}

func loadNetwork(path string) (*NetworkConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg NetworkConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.ChainIDHex == "" {
		cfg.ChainIDHex = fmt.Sprintf("0x%x", cfg.ChainID)
	}
	return &cfg, nil
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
