// Package testutil carries shared test fixtures: throwaway badger storage,
// a development logger, the default cache, and deterministic keys so test
// vectors stay stable across runs.
package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-wallet/core/chainio/signer"
	"github.com/AvaProtocol/ap-wallet/core/config"
	"github.com/AvaProtocol/ap-wallet/pkg/logger"
	"github.com/AvaProtocol/ap-wallet/storage"
)

const (
	paymasterAddress = "0xB985af5f96EF2722DC99aEBA573520903B86505e"

	// TestOwnerKeyHex is the first hardhat development key. Its address is
	// 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266.
	TestOwnerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

// Shortcut to initialize a storage at a temp path, panic if we cannot create db
func TestMustDB() storage.Storage {
	dir, err := os.MkdirTemp("", "aptest")
	if err != nil {
		panic(err)
	}

	db, err := storage.NewWithPath(dir)
	if err != nil {
		panic(err)
	}
	return db
}

func GetLogger() logger.Logger {
	l, err := logger.New("development")
	if err != nil {
		panic(err)
	}
	return l
}

// TestOwnerSigner returns a signer over the well known hardhat key so tests
// produce reproducible signatures.
func TestOwnerSigner() *signer.ECDSASigner {
	s, err := signer.FromPrivateKeyHex(TestOwnerKeyHex)
	if err != nil {
		panic(err)
	}
	return s
}

// GetTestSmartWalletConfig returns the sepolia factory and entry point the
// tests are written against. No live RPC endpoints; tests that need a node
// stub one.
func GetTestSmartWalletConfig() *config.SmartWalletConfig {
	return &config.SmartWalletConfig{
		FactoryAddress:    common.HexToAddress("0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7"),
		EntrypointAddress: common.HexToAddress(config.DefaultEntrypointAddress),
		PaymasterAddress:  common.HexToAddress(paymasterAddress),
	}
}

func GetDefaultCache() *bigcache.BigCache {
	config := bigcache.Config{

		// number of shards (must be a power of 2)
		Shards: 1024,

		// time after which entry can be evicted
		LifeWindow: 10 * time.Minute,

		// Interval between removing expired entries (clean up).
		// If set to <= 0 then no action is performed.
		// Setting to < 1 second is counterproductive - bigcache has a one second resolution.
		CleanWindow: 5 * time.Minute,

		// rps * lifeWindow, used only in initial memory allocation
		MaxEntriesInWindow: 1000 * 10 * 60,

		// max entry size in bytes, used only in initial memory allocation
		MaxEntrySize: 500,

		// prints information about additional memory allocation
		Verbose: true,

		// cache will not allocate more memory than this limit, value in MB
		// if value is reached then the oldest entries can be overridden for the new ones
		// 0 value means no size limit
		HardMaxCacheSize: 8192,

		// callback fired when the oldest entry is removed because of its expiration time or no space left
		// for the new entry, or because delete was called. A bitmask representing the reason will be returned.
		// Default value is nil which means no callback and it prevents from unwrapping the oldest entry.
		OnRemove: nil,

		// OnRemoveWithReason is a callback fired when the oldest entry is removed because of its expiration time or no space left
		// for the new entry, or because delete was called. A constant representing the reason will be passed through.
		// Default value is nil which means no callback and it prevents from unwrapping the oldest entry.
		// Ignored if OnRemove is specified.
		OnRemoveWithReason: nil,
	}
	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		panic(fmt.Errorf("error get default cache for test"))
	}
	return cache
}
