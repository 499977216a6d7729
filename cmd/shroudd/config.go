// config.go - Configuration management for the shroud daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Deployment
	PackageID string `json:"package_id"`
	CoreID    string `json:"core_id"`

	// Endpoints
	LedgerRPC     string `json:"ledger_rpc"`
	RelayEndpoint string `json:"relay_endpoint"`
	ProvingKeyURL string `json:"proving_key_url"`

	// File paths
	WalletPath string `json:"wallet_path"`

	// HTTP surface
	ListenAddr string `json:"listen_addr"`

	// Logging
	LogLevel string `json:"log_level"`

	// Confirmation polling
	ConfirmPollMillis   int `json:"confirm_poll_millis"`
	ConfirmPollAttempts int `json:"confirm_poll_attempts"`

	// Per-account operation rate limiting
	RateLimitBurst      int `json:"rate_limit_burst"`
	RateLimitRefillSecs int `json:"rate_limit_refill_secs"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		PackageID:           "0xfe522b49ffbe0c129acd76f1172803012fcb1132315a598d2b4926eb25e9fcd9",
		CoreID:              "0x331b493acbdd79249979e594b5f20b497375b679a9ad58f9cf31a388ced6ebd3",
		LedgerRPC:           "http://127.0.0.1:9000",
		RelayEndpoint:       "http://127.0.0.1:9001/swap",
		ProvingKeyURL:       "http://127.0.0.1:9002/pk",
		WalletPath:          "shroud-wallet.db",
		ListenAddr:          ":8080",
		LogLevel:            "info",
		ConfirmPollMillis:   500,
		ConfirmPollAttempts: 120,
		RateLimitBurst:      5,
		RateLimitRefillSecs: 30,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PackageID == "" {
		return fmt.Errorf("package_id must be set")
	}
	if c.CoreID == "" {
		return fmt.Errorf("core_id must be set")
	}
	if c.LedgerRPC == "" {
		return fmt.Errorf("ledger_rpc must be set")
	}
	if c.ProvingKeyURL == "" {
		return fmt.Errorf("proving_key_url must be set")
	}
	if c.WalletPath == "" {
		return fmt.Errorf("wallet_path must be set")
	}
	if c.ConfirmPollMillis <= 0 {
		return fmt.Errorf("confirm_poll_millis must be positive")
	}
	if c.ConfirmPollAttempts <= 0 {
		return fmt.Errorf("confirm_poll_attempts must be positive")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_burst must be positive")
	}
	if c.RateLimitRefillSecs <= 0 {
		return fmt.Errorf("rate_limit_refill_secs must be positive")
	}
	return nil
}
