package aa

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// EntrypointAddress is the canonical v0.6 entry point deployment shared
	// across chains.
	EntrypointAddress = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

	// EntrypointV7Address is the canonical v0.7 entry point, used when an
	// operation is submitted in the packed layout.
	EntrypointV7Address = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	factoryAddress = common.HexToAddress("0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7")

	defaultSalt = big.NewInt(0)
)

// SetFactoryAddress overrides the account factory every init-code helper
// uses. Call once at startup from config; the setters are not safe for
// concurrent use with in-flight builds.
func SetFactoryAddress(address common.Address) {
	factoryAddress = address
}

func SetEntrypointAddress(address common.Address) {
	EntrypointAddress = address
}
