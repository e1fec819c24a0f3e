// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"investflow/kyc"
	"investflow/transfer"
)

// Config is the onboarding process configuration.
type Config struct {
	DatabaseURL       string          `env:"DATABASE_URL"`
	CatalogPath       string          `env:"INVESTFLOW_CATALOG"`
	MinimumInvestment decimal.Decimal `env:"INVESTFLOW_MINIMUM_INVESTMENT" envDefault:"25000"`
	ReceiptSecret     string          `env:"INVESTFLOW_RECEIPT_SECRET"`

	KYCProcessing      time.Duration `env:"INVESTFLOW_KYC_PROCESSING" envDefault:"3s"`
	KYCSuccess         time.Duration `env:"INVESTFLOW_KYC_SUCCESS" envDefault:"2s"`
	TransferProcessing time.Duration `env:"INVESTFLOW_TRANSFER_PROCESSING" envDefault:"4s"`
	TransferSuccess    time.Duration `env:"INVESTFLOW_TRANSFER_SUCCESS" envDefault:"2s"`
	CaptionInterval    time.Duration `env:"INVESTFLOW_CAPTION_INTERVAL" envDefault:"1s"`
	RetryBackoff       time.Duration `env:"INVESTFLOW_RETRY_BACKOFF" envDefault:"2s"`
	MaxAttempts        int           `env:"INVESTFLOW_MAX_ATTEMPTS" envDefault:"3"`

	LogLevel  slog.Level `env:"INVESTFLOW_LOG_LEVEL" envDefault:"info"`
	Investors int        `env:"INVESTFLOW_INVESTORS" envDefault:"1"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if !cfg.MinimumInvestment.IsPositive() {
		return Config{}, fmt.Errorf("config: minimum investment must be positive, got %s", cfg.MinimumInvestment)
	}
	if cfg.Investors < 1 {
		return Config{}, fmt.Errorf("config: investors must be at least 1, got %d", cfg.Investors)
	}
	if cfg.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("config: max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	return cfg, nil
}

// KYC returns the identity verification timings.
func (c Config) KYC() kyc.Config {
	return kyc.Config{
		ProcessingDwell: c.KYCProcessing,
		SuccessDwell:    c.KYCSuccess,
		RetryBackoff:    c.RetryBackoff,
		MaxAttempts:     c.MaxAttempts,
	}
}

// Transfer returns the fund transfer timings.
func (c Config) Transfer() transfer.Config {
	return transfer.Config{
		ProcessingDwell: c.TransferProcessing,
		SuccessDwell:    c.TransferSuccess,
		CaptionInterval: c.CaptionInterval,
		RetryBackoff:    c.RetryBackoff,
		MaxAttempts:     c.MaxAttempts,
		Captions:        transfer.DefaultCaptions(),
	}
}
