package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries every runtime setting for the engine. Values come from
// environment variables; main loads an optional .env file first.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON     bool   `env:"LOG_JSON" envDefault:"false"`

	// AdminAddress seeds the engine admin on first boot. Subsequent boots
	// leave the stored admin untouched.
	AdminAddress string `env:"ADMIN_ADDRESS,required"`

	// EscrowAddress is the ledger account that holds custodied funds.
	EscrowAddress string `env:"ESCROW_ADDRESS" envDefault:"vault:escrow"`

	// StakingCurrency and MinStake configure the arbiter registry. The
	// staking currency must be a token currency, never the native sentinel.
	StakingCurrency string `env:"STAKING_CURRENCY" envDefault:"USDQ"`
	MinStake        int64  `env:"MIN_STAKE" envDefault:"100"`

	// Optional on-chain settlement. When EthRPCURL is set, currencies that
	// look like contract addresses settle through the ERC-20 adapter.
	EthRPCURL     string `env:"ETH_RPC_URL"`
	EthPrivateKey string `env:"ETH_PRIVATE_KEY"`
}

// Parse loads Config from the environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}
