package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	DBURL         string `mapstructure:"DB_URL"`
	HTTPAddr      string `mapstructure:"HTTP_ADDR"`
	TokenDecimals int    `mapstructure:"TOKEN_DECIMALS"`

	// DemoUserEmail is the fallback identity for payloads that carry no user
	// reference. A production deployment must replace this with a required
	// identity-resolution step.
	DemoUserEmail string `mapstructure:"DEMO_USER_EMAIL"`

	BankWebhookSecret       string `mapstructure:"BANK_WEBHOOK_SECRET"`
	BankWebhookAllowedCIDRs string `mapstructure:"BANK_WEBHOOK_ALLOWED_CIDRS"`

	WalletProviderAcct string `mapstructure:"WALLET_PROVIDER_ACCT"`
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	viper.AddConfigPath(filepath.Dir(absPath))
	viper.SetConfigName(filepath.Base(absPath))
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("TOKEN_DECIMALS", 6)
	viper.SetDefault("DEMO_USER_EMAIL", "demo@pkr-issuer.local")
	viper.SetDefault("WALLET_PROVIDER_ACCT", "WALLET-001")

	if err := viper.ReadInConfig(); err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}
