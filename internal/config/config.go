// Package config loads runtime configuration: process-level settings from the
// environment and the per-chain table from a TOML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pelletier/go-toml/v2"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/chain"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

// ChainEntry is one chain's connection settings in the TOML config.
type ChainEntry struct {
	RPCURL     string            `toml:"rpc_url"`
	PrivateKey string            `toml:"private_key,omitempty"`
	Mnemonic   string            `toml:"mnemonic,omitempty"`
	Address    string            `toml:"address,omitempty"`
	EVMChainID int64             `toml:"evm_chain_id,omitempty"`
	Contracts  map[string]string `toml:"contracts,omitempty"`
}

// AdapterConfig converts the entry into the adapter connection bundle.
func (e ChainEntry) AdapterConfig() chain.Config {
	return chain.Config{
		RPCURL:     e.RPCURL,
		PrivateKey: e.PrivateKey,
		Mnemonic:   e.Mnemonic,
		Address:    e.Address,
		EVMChainID: e.EVMChainID,
		Contracts:  e.Contracts,
	}
}

// ChainsConfig is the chain table keyed by canonical chain name.
type ChainsConfig struct {
	Chains map[common.ChainID]ChainEntry `toml:"chains"`
}

// MustLoadChains reads and parses the chain table, panicking on failure. Chain
// connectivity is required at startup, a broken table is not recoverable.
func MustLoadChains(path string) *ChainsConfig {
	cfg := &ChainsConfig{}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	if err = toml.Unmarshal(file, cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Config holds the process-level settings read from the environment.
type Config struct {
	SettlementURL    string
	SettlementAPIKey string
	ChainsConfigPath string
	PollInterval     time.Duration
	MaxRetries       int
	RetryInitialWait time.Duration
}

// FromEnv assembles the process configuration, applying documented defaults for
// anything unset.
func FromEnv() (*Config, error) {
	cfg := &Config{
		SettlementURL:    os.Getenv("SETTLEMENT_URL"),
		SettlementAPIKey: os.Getenv("SETTLEMENT_API_KEY"),
		ChainsConfigPath: os.Getenv("CHAINS_CONFIG"),
		PollInterval:     5 * time.Second,
		MaxRetries:       3,
		RetryInitialWait: time.Second,
	}
	if cfg.SettlementURL == "" {
		return nil, fmt.Errorf("SETTLEMENT_URL is required")
	}
	if cfg.ChainsConfigPath == "" {
		cfg.ChainsConfigPath = "chains.toml"
	}

	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL_MS: %q", v)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid MAX_RETRIES: %q", v)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("RETRY_INITIAL_WAIT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid RETRY_INITIAL_WAIT_MS: %q", v)
		}
		cfg.RetryInitialWait = time.Duration(ms) * time.Millisecond
	}
	return cfg, nil
}
