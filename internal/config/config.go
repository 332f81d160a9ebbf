package config

import (
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcutil/base58"
)

type Config struct {
	Port string
	Env  string

	// Solana RPC endpoint used as the ledger oracle.
	RPCURL string

	// SPL token mint payments must use and the wallet they must land on.
	Mint      string
	Recipient string

	// Optional Postgres DSN. Unset selects the in-memory store.
	DBSource string

	// TTLs bounding replay-record growth.
	PaywallRefTTL time.Duration
	DepositRefTTL time.Duration
}

func Load() (*Config, error) {
	mint := os.Getenv("SPL_TOKEN_MINT")
	if mint == "" {
		return nil, fmt.Errorf("SPL_TOKEN_MINT environment variable is required")
	}
	if err := validateAddress(mint); err != nil {
		return nil, fmt.Errorf("invalid SPL_TOKEN_MINT: %w", err)
	}

	recipient := os.Getenv("RECIPIENT_WALLET")
	if recipient == "" {
		return nil, fmt.Errorf("RECIPIENT_WALLET environment variable is required")
	}
	if err := validateAddress(recipient); err != nil {
		return nil, fmt.Errorf("invalid RECIPIENT_WALLET: %w", err)
	}

	rpcURL := os.Getenv("SOLANA_RPC_URL")
	if rpcURL == "" {
		rpcURL = "https://api.devnet.solana.com"
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	paywallTTL, err := durationEnv("PAYWALL_REF_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	depositTTL, err := durationEnv("DEPOSIT_REF_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:          port,
		Env:           env,
		RPCURL:        rpcURL,
		Mint:          mint,
		Recipient:     recipient,
		DBSource:      os.Getenv("DB_SOURCE"),
		PaywallRefTTL: paywallTTL,
		DepositRefTTL: depositTTL,
	}, nil
}

// validateAddress checks that a value is a base58-encoded 32-byte Solana
// public key. Bad addresses are a startup-time failure, never per-request.
func validateAddress(addr string) error {
	decoded := base58.Decode(addr)
	if len(decoded) != 32 {
		return fmt.Errorf("%q is not a base58-encoded 32-byte public key", addr)
	}
	return nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
