// Package config loads deployment settings from an optional dotenv file and
// the process environment. Environment variables win over the file.
package config

import (
	"math/big"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/cryptodevs/nft-collection/publish/contracts/cryptodevs"
)

const DefaultEnvFile = ".env"

// Config holds everything the deployment needs. WhitelistContractAddress and
// MetadataURL are contract inputs and carry no validation tags.
type Config struct {
	WhitelistContractAddress string `mapstructure:"whitelist_contract_address"`
	MetadataURL              string `mapstructure:"metadata_url"`

	RPCURL         string        `mapstructure:"rpc_url" validate:"required,url"`
	PrivateKey     string        `mapstructure:"private_key" validate:"required"`
	PublicAddress  string        `mapstructure:"public_address" validate:"omitempty,eth_addr"`
	ChainID        uint64        `mapstructure:"chain_id"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
	GasFeeCap      int64         `mapstructure:"gas_fee_cap" validate:"gte=0"`
	GasTipCap      int64         `mapstructure:"gas_tip_cap" validate:"gte=0"`
	Confirmations  uint64        `mapstructure:"confirmations" validate:"gte=1"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds" validate:"gt=0"`

	ArtifactsDir string `mapstructure:"artifacts_dir" validate:"required"`
	LogLevel     string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads envFile (skipped when it does not exist) and the environment.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "read %s", envFile)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "stat %s", envFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("whitelist_contract_address", "")
	v.SetDefault("metadata_url", "")

	v.SetDefault("rpc_url", "")
	v.SetDefault("private_key", "")
	v.SetDefault("public_address", "")
	v.SetDefault("chain_id", 0)
	v.SetDefault("gas_limit", cryptodevs.GasLimit)
	v.SetDefault("gas_fee_cap", 2_000_000_000)
	v.SetDefault("gas_tip_cap", 1_000_000_000)
	v.SetDefault("confirmations", 1)
	v.SetDefault("poll_interval", "2s")
	v.SetDefault("timeout_seconds", 600)

	v.SetDefault("artifacts_dir", "artifacts")
	v.SetDefault("log_level", "info")
}

// Validate checks everything a deployment needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// ValidateRead checks only what read-only commands need.
func (c *Config) ValidateRead() error {
	if err := validate.StructPartial(c, "RPCURL", "PollInterval", "TimeoutSeconds", "LogLevel"); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) FeeCaps() (feeCap, tipCap *big.Int) {
	return big.NewInt(c.GasFeeCap), big.NewInt(c.GasTipCap)
}
