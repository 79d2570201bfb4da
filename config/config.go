// Package config assembles gateway configuration from the environment.
// The gateway has no command-line surface; everything is either an
// environment variable or a baked-in default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/radiodial/paygate/types"
)

var validate = validator.New()

// Config is the gateway's static configuration.
type Config struct {
	// LedgerRPCURL is the read-only RPC endpoint receipts resolve
	// against.
	LedgerRPCURL string `json:"ledgerRpcUrl" validate:"required,url"`

	// Network names the ledger, echoed in challenges.
	Network types.Network `json:"network"`

	// QuoteURL is the external price source. Empty means the gateway
	// serves the baked-in fallback prices forever.
	QuoteURL string `json:"quoteUrl" validate:"omitempty,url"`

	// TreasuryAddress receives the platform's share of every payment.
	TreasuryAddress string `json:"treasuryAddress" validate:"required"`

	// CatalogPath points at a JSON pricing catalog. Empty selects the
	// built-in table.
	CatalogPath string `json:"catalogPath"`

	ChallengeTTL time.Duration `json:"challengeTtl"`
	OracleTTL    time.Duration `json:"oracleTtl"`

	// StrictVerification decodes the on-ledger transfer instead of
	// trusting the proof's claimed amount.
	StrictVerification bool `json:"strictVerification"`

	// ReplayWindow, when positive, enables the used-proof guard.
	ReplayWindow time.Duration `json:"replayWindow"`

	LogLevel string `json:"logLevel"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Network:      types.NetworkBase,
		ChallengeTTL: 300 * time.Second,
		OracleTTL:    60 * time.Second,
		LogLevel:     "info",
	}
}

// FromEnv reads PAYGATE_* variables over the defaults.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("PAYGATE_LEDGER_RPC_URL"); v != "" {
		cfg.LedgerRPCURL = v
	}
	if v := os.Getenv("PAYGATE_NETWORK"); v != "" {
		cfg.Network = types.Network(v)
	}
	if v := os.Getenv("PAYGATE_QUOTE_URL"); v != "" {
		cfg.QuoteURL = v
	}
	if v := os.Getenv("PAYGATE_TREASURY_ADDRESS"); v != "" {
		cfg.TreasuryAddress = v
	}
	if v := os.Getenv("PAYGATE_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("PAYGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PAYGATE_STRICT_VERIFY"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("PAYGATE_STRICT_VERIFY: %w", err)
		}
		cfg.StrictVerification = strict
	}

	var err error
	if cfg.ChallengeTTL, err = envSeconds("PAYGATE_CHALLENGE_TTL_SECONDS", cfg.ChallengeTTL); err != nil {
		return cfg, err
	}
	if cfg.OracleTTL, err = envSeconds("PAYGATE_ORACLE_TTL_SECONDS", cfg.OracleTTL); err != nil {
		return cfg, err
	}
	if cfg.ReplayWindow, err = envSeconds("PAYGATE_REPLAY_WINDOW_SECONDS", cfg.ReplayWindow); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the assembled configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}
	if c.Network.ChainID() == 0 {
		return fmt.Errorf("invalid gateway config: unknown network %q", c.Network)
	}
	return nil
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
