// Package account orchestrates the smart account lifecycle: deriving
// counterfactual addresses, building and signing user operations, routing
// them through an optional paymaster, submitting them to a bundler and
// tracking deployment state across sends.
package account

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-wallet/core/chainio/aa"
	"github.com/AvaProtocol/ap-wallet/core/config"
	"github.com/AvaProtocol/ap-wallet/metrics"
	"github.com/AvaProtocol/ap-wallet/model"
	"github.com/AvaProtocol/ap-wallet/pkg/eip1559"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/ap-wallet/pkg/logger"
	"github.com/AvaProtocol/ap-wallet/storage"
)

// ChainClient is the slice of an Ethereum node the controller needs: code
// lookups for deployment checks, contract calls for the entry point views,
// fee data and the chain id. *ethclient.Client satisfies it.
type ChainClient interface {
	ethereum.ContractCaller
	eip1559.FeeReader
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// ControllerConfig wires a Controller. Wallet, Client and Relay are
// required; everything else degrades gracefully when absent.
type ControllerConfig struct {
	Wallet *config.SmartWalletConfig
	Client ChainClient
	Relay  *bundler.BundlerClient

	// Sponsor pays gas for operations executed with Sponsored set. Nil
	// means every operation is self-funded.
	Sponsor paymaster.Provider

	// DB backs the wallet registry. Nil disables persistence and the
	// per-owner wallet cap.
	DB storage.Storage

	Logger  logger.Logger
	Metrics *metrics.WalletMetrics

	// PollInterval is the receipt polling cadence,
	// bundler.DefaultPollInterval when zero.
	PollInterval time.Duration
}

// Controller owns the shared collaborators and hands out per-account
// handles. It is safe for concurrent use.
type Controller struct {
	cfg     *config.SmartWalletConfig
	client  ChainClient
	relay   *bundler.BundlerClient
	sponsor paymaster.Provider

	registry *Registry
	logger   logger.Logger
	metrics  *metrics.WalletMetrics

	entryPoint   common.Address
	pollInterval time.Duration

	chainMu sync.Mutex
	chainID *big.Int
}

func NewController(cc ControllerConfig) (*Controller, error) {
	if cc.Wallet == nil {
		return nil, fmt.Errorf("account: nil wallet config")
	}
	if cc.Client == nil {
		return nil, fmt.Errorf("account: nil chain client")
	}
	if cc.Relay == nil {
		return nil, fmt.Errorf("account: nil bundler client")
	}
	if cc.Wallet.FactoryAddress == (common.Address{}) {
		return nil, fmt.Errorf("account: wallet config has no factory address")
	}

	entryPoint := cc.Wallet.EntrypointAddress
	if entryPoint == (common.Address{}) {
		entryPoint = common.HexToAddress(config.DefaultEntrypointAddress)
	}

	// The aa helpers read these process-wide; pin them once at wiring time.
	aa.SetEntrypointAddress(entryPoint)
	aa.SetFactoryAddress(cc.Wallet.FactoryAddress)

	c := &Controller{
		cfg:          cc.Wallet,
		client:       cc.Client,
		relay:        cc.Relay,
		sponsor:      cc.Sponsor,
		logger:       logger.EnsureLogger(cc.Logger),
		metrics:      cc.Metrics,
		entryPoint:   entryPoint,
		pollInterval: cc.PollInterval,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = bundler.DefaultPollInterval
	}
	if cc.Wallet.ChainID != nil && cc.Wallet.ChainID.Sign() > 0 {
		c.chainID = cc.Wallet.ChainID
	}
	if cc.DB != nil {
		c.registry = NewRegistry(cc.DB)
	}
	return c, nil
}

// EntryPoint returns the entry point every operation from this controller
// is bound to.
func (c *Controller) EntryPoint() common.Address {
	return c.entryPoint
}

// Wallets exposes the registry, nil when the controller runs without
// persistence.
func (c *Controller) Wallets() *Registry {
	return c.registry
}

// ChainID returns the configured chain id, or queries the node once and
// memoizes the answer when the config leaves it unset.
func (c *Controller) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}

	id, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: reading chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

// Handle resolves the account handle for (owner, salt) against the
// configured factory. The counterfactual address is derived locally, never
// via RPC, and memoized on the handle. With a registry wired, a first-seen
// wallet row is persisted, subject to the per-owner cap.
func (c *Controller) Handle(owner common.Address, salt *big.Int) (*Handle, error) {
	if salt == nil {
		salt = big.NewInt(0)
	}

	factory := c.cfg.FactoryAddress
	address, err := aa.ComputeSmartWalletAddress(factory, owner, salt)
	if err != nil {
		return nil, fmt.Errorf("account: deriving wallet address: %w", err)
	}

	if c.registry != nil {
		if err := c.registerWallet(owner, address, factory, salt); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("resolved wallet handle",
		"owner", owner.Hex(), "address", address.Hex(), "salt", salt.String())

	return &Handle{
		controller: c,
		owner:      owner,
		factory:    factory,
		salt:       new(big.Int).Set(salt),
		address:    address,
	}, nil
}

// registerWallet persists a first-seen row. Existing rows are left alone so
// a hidden wallet stays hidden across handle resolutions.
func (c *Controller) registerWallet(owner, address, factory common.Address, salt *big.Int) error {
	_, err := c.registry.GetWallet(owner, address)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return err
	}

	if max := c.cfg.MaxWalletsPerOwner; max > 0 {
		count, err := c.registry.CountWallets(owner)
		if err != nil {
			return err
		}
		if count >= int64(max) {
			return fmt.Errorf("%w: %d of %d in use", ErrTooManyWallets, count, max)
		}
	}

	return c.registry.SaveWallet(model.NewSmartWallet(owner, address, factory, salt))
}
