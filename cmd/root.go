package cmd

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/k0kubun/pp/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-wallet/core/account"
	"github.com/AvaProtocol/ap-wallet/core/chainio/signer"
	"github.com/AvaProtocol/ap-wallet/core/config"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/ap-wallet/pkg/logger"
	"github.com/AvaProtocol/ap-wallet/storage"
)

// rootCmd represents the base command when called without any subcommands
var (
	cfgPath   = "./config/wallet.yaml"
	debugMode = false

	rootCmd = &cobra.Command{
		Use:   "ap-wallet",
		Short: "Ava Protocol smart wallet CLI",
		Long: `CLI to derive, deploy and operate ERC-4337 smart wallets.

Each sub command drives one part of the wallet lifecycle, such as
"ap-wallet wallet address" to inspect a counterfactual wallet or
"ap-wallet session create" to mint a scoped session key.
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config/wallet.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Dump wire-level structures for troubleshooting")
}

// walletApp bundles the collaborators every command wires the same way:
// config, chain client, relay, store and the account controller on top.
type walletApp struct {
	cfg    *config.Config
	client *ethclient.Client
	relay  *bundler.BundlerClient
	db     storage.Storage
	ctrl   *account.Controller
	logger logger.Logger
}

// openApp loads the config file and dials everything. Callers must Close.
func openApp() (*walletApp, error) {
	cfg, err := config.NewConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(string(cfg.Environment))
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	client, err := ethclient.Dial(cfg.SmartWallet.EthRpcUrl)
	if err != nil {
		return nil, fmt.Errorf("dialing eth rpc %s: %w", cfg.SmartWallet.EthRpcUrl, err)
	}

	relay, err := bundler.NewBundlerClient(cfg.SmartWallet.BundlerURL)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("dialing bundler %s: %w", cfg.SmartWallet.BundlerURL, err)
	}

	storePath := cfg.SmartWallet.DbPath
	if storePath == "" {
		storePath = "./data/wallet"
	}
	db, err := storage.NewWithPath(storePath)
	if err != nil {
		client.Close()
		relay.Close()
		return nil, fmt.Errorf("opening store at %s: %w", storePath, err)
	}

	ctrl, err := account.NewController(account.ControllerConfig{
		Wallet:  cfg.SmartWallet,
		Client:  client,
		Relay:   relay,
		Sponsor: sponsorFromConfig(cfg.SmartWallet),
		DB:      db,
		Logger:  log,
	})
	if err != nil {
		client.Close()
		relay.Close()
		db.Close()
		return nil, err
	}

	return &walletApp{
		cfg:    cfg,
		client: client,
		relay:  relay,
		db:     db,
		ctrl:   ctrl,
		logger: log,
	}, nil
}

// mustApp is openApp for commands that cannot proceed without it.
func mustApp() *walletApp {
	app, err := openApp()
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return app
}

func (a *walletApp) Close() {
	a.client.Close()
	a.relay.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Errorf("closing store: %v", err)
	}
}

// ownerSigner returns the signer for the configured controller key.
func (a *walletApp) ownerSigner() (*signer.ECDSASigner, error) {
	if a.cfg.SmartWallet.ControllerPrivateKey == nil {
		return nil, fmt.Errorf("controller_private_key is not set in %s", cfgPath)
	}
	return signer.FromPrivateKey(a.cfg.SmartWallet.ControllerPrivateKey), nil
}

// sponsorFromConfig picks the paymaster provider the config describes: the
// remote service when a URL is set, local signing when we hold both a
// paymaster address and the signing key, nil otherwise.
func sponsorFromConfig(wallet *config.SmartWalletConfig) paymaster.Provider {
	if wallet.PaymasterServiceURL != "" {
		return paymaster.NewRemoteProvider(paymaster.RemoteConfig{
			URL:    wallet.PaymasterServiceURL,
			APIKey: wallet.PaymasterServiceAPIKey,
		})
	}
	if wallet.PaymasterAddress != (common.Address{}) && wallet.ControllerPrivateKey != nil {
		return paymaster.NewLocalProvider(
			wallet.PaymasterAddress,
			signer.FromPrivateKey(wallet.ControllerPrivateKey),
			0,
		)
	}
	return nil
}

// debugDump pretty-prints a structure when --debug is set.
func debugDump(label string, v interface{}) {
	if !debugMode {
		return
	}
	fmt.Printf("--- %s ---\n", label)
	pp.Println(v)
}

// parseEtherAmount converts a decimal ether string such as "0.25" to wei.
func parseEtherAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %v", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	wei := d.Mul(decimal.New(1, 18))
	if !wei.IsInteger() {
		return nil, fmt.Errorf("amount %q has sub-wei precision", s)
	}
	return wei.BigInt(), nil
}

// formatEther renders a wei amount as a decimal ether string.
func formatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
