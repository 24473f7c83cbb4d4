// Package config loads the wallet service configuration from YAML and
// turns the raw string fields into typed values the rest of the codebase
// consumes.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	sdkutils "github.com/Layr-Labs/eigensdk-go/utils"
)

const (
	// DefaultEntrypointAddress is the canonical v0.6 entry point, deployed at
	// the same address on every chain we support.
	DefaultEntrypointAddress = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"

	// DefaultMaxWalletsPerOwner bounds how many derived wallets one owner
	// key may register.
	DefaultMaxWalletsPerOwner = 10
)

// Config is the typed, validated configuration.
type Config struct {
	Environment sdklogging.LogLevel
	SmartWallet *SmartWalletConfig
}

// SmartWalletConfig carries everything the account controller and its
// collaborators need: chain endpoints, the relay, the account factory and
// entry point, and optional sponsorship settings.
type SmartWalletConfig struct {
	EthRpcUrl  string
	EthWsUrl   string
	BundlerURL string

	// ControllerPrivateKey is the owner key the CLI signs with. Optional:
	// library consumers usually bring their own signer.
	ControllerPrivateKey *ecdsa.PrivateKey

	FactoryAddress    common.Address
	EntrypointAddress common.Address
	PaymasterAddress  common.Address

	// ChainID pins the chain this config is for. Zero means "ask the node".
	ChainID *big.Int

	MaxWalletsPerOwner int
	DbPath             string

	// Remote sponsorship service, used instead of local paymaster signing
	// when set.
	PaymasterServiceURL    string
	PaymasterServiceAPIKey string
}

// ConfigRaw mirrors the YAML file. Addresses and keys stay strings here;
// NewConfig converts and validates them.
type ConfigRaw struct {
	Environment sdklogging.LogLevel `yaml:"environment"`
	SmartWallet SmartWalletRaw      `yaml:"smart_wallet"`
}

type SmartWalletRaw struct {
	EthRpcUrl            string `yaml:"eth_rpc_url" validate:"required,url"`
	EthWsUrl             string `yaml:"eth_ws_url" validate:"omitempty,url"`
	BundlerUrl           string `yaml:"bundler_url" validate:"required,url"`
	ControllerPrivateKey string `yaml:"controller_private_key" validate:"omitempty"`
	FactoryAddress       string `yaml:"factory_address" validate:"required,eth_addr"`
	EntrypointAddress    string `yaml:"entrypoint_address" validate:"omitempty,eth_addr"`
	PaymasterAddress     string `yaml:"paymaster_address" validate:"omitempty,eth_addr"`
	ChainId              int64  `yaml:"chain_id" validate:"omitempty,gt=0"`
	MaxWalletsPerOwner   int    `yaml:"max_wallets_per_owner" validate:"omitempty,gte=1"`
	DbPath               string `yaml:"db_path"`

	PaymasterServiceUrl    string `yaml:"paymaster_service_url" validate:"omitempty,url"`
	PaymasterServiceApiKey string `yaml:"paymaster_service_api_key"`
}

// NewConfig reads and validates the YAML file at configFilePath.
func NewConfig(configFilePath string) (*Config, error) {
	var raw ConfigRaw
	if err := sdkutils.ReadYamlConfig(configFilePath, &raw); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", configFilePath, err)
	}
	return FromRaw(&raw)
}

// FromRaw converts an already-decoded raw config. Split out of NewConfig so
// tests can build configs without touching the filesystem.
func FromRaw(raw *ConfigRaw) (*Config, error) {
	if err := validator.New().Struct(&raw.SmartWallet); err != nil {
		return nil, fmt.Errorf("config: invalid smart_wallet section: %w", err)
	}

	wallet := &SmartWalletConfig{
		EthRpcUrl:              raw.SmartWallet.EthRpcUrl,
		EthWsUrl:               raw.SmartWallet.EthWsUrl,
		BundlerURL:             raw.SmartWallet.BundlerUrl,
		FactoryAddress:         common.HexToAddress(raw.SmartWallet.FactoryAddress),
		EntrypointAddress:      common.HexToAddress(raw.SmartWallet.EntrypointAddress),
		PaymasterAddress:       common.HexToAddress(raw.SmartWallet.PaymasterAddress),
		MaxWalletsPerOwner:     raw.SmartWallet.MaxWalletsPerOwner,
		DbPath:                 raw.SmartWallet.DbPath,
		PaymasterServiceURL:    raw.SmartWallet.PaymasterServiceUrl,
		PaymasterServiceAPIKey: raw.SmartWallet.PaymasterServiceApiKey,
	}

	if raw.SmartWallet.ControllerPrivateKey != "" {
		key, err := crypto.HexToECDSA(trim0x(raw.SmartWallet.ControllerPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("config: parsing controller_private_key: %w", err)
		}
		wallet.ControllerPrivateKey = key
	}

	if (wallet.EntrypointAddress == common.Address{}) {
		wallet.EntrypointAddress = common.HexToAddress(DefaultEntrypointAddress)
	}
	if raw.SmartWallet.ChainId > 0 {
		wallet.ChainID = big.NewInt(raw.SmartWallet.ChainId)
	}
	if wallet.MaxWalletsPerOwner == 0 {
		wallet.MaxWalletsPerOwner = DefaultMaxWalletsPerOwner
	}

	environment := raw.Environment
	if environment == "" {
		environment = sdklogging.Production
	}

	return &Config{
		Environment: environment,
		SmartWallet: wallet,
	}, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
