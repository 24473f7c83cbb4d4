package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddressList converts a list of hex strings into addresses, rejecting
// anything malformed rather than silently zeroing it.
func ParseAddressList(addresses []string) ([]common.Address, error) {
	result := make([]common.Address, len(addresses))
	for i, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("config: invalid address %q at position %d", addr, i)
		}
		result[i] = common.HexToAddress(addr)
	}
	return result, nil
}
