package config

import (
	"fmt"
	"os"
	"time"
)

// AppConfig carries everything the gateway needs, sourced from environment
// variables with sensible defaults.
type AppConfig struct {
	Service ServiceConfig
	Chain   ChainConfig
	Storage StorageConfig
}

type ServiceConfig struct {
	HTTPPort       int
	ForwardTimeout time.Duration
	LogLevel       string
}

type ChainConfig struct {
	RPCURL           string
	TokenDecimals    int
	MinConfirmations uint64
	VerifyTimeout    time.Duration
}

type StorageConfig struct {
	// PostgresDSN selects the postgres store when set; the in-memory store
	// is used otherwise.
	PostgresDSN string
}

func Load() (*AppConfig, error) {
	decimals := envOrInt("PAYGATE_TOKEN_DECIMALS", 18)
	if decimals < 0 || decimals > 30 {
		return nil, fmt.Errorf("invalid PAYGATE_TOKEN_DECIMALS: %d", decimals)
	}

	minConf := envOrInt("PAYGATE_MIN_CONFIRMATIONS", 1)
	if minConf < 1 {
		return nil, fmt.Errorf("PAYGATE_MIN_CONFIRMATIONS must be at least 1")
	}

	return &AppConfig{
		Service: ServiceConfig{
			HTTPPort:       envOrInt("PAYGATE_HTTP_PORT", 3000),
			ForwardTimeout: time.Duration(envOrInt("PAYGATE_FORWARD_TIMEOUT_MS", 30000)) * time.Millisecond,
			LogLevel:       envOr("PAYGATE_LOG_LEVEL", "info"),
		},
		Chain: ChainConfig{
			RPCURL:           envOr("PAYGATE_CHAIN_RPC_URL", ""),
			TokenDecimals:    decimals,
			MinConfirmations: uint64(minConf),
			VerifyTimeout:    time.Duration(envOrInt("PAYGATE_VERIFY_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Storage: StorageConfig{
			PostgresDSN: envOr("PAYGATE_POSTGRES_DSN", ""),
		},
	}, nil
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
