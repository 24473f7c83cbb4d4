// Package byte4 works with 4-byte function selectors: deriving them from
// canonical signatures, reading them off calldata, and resolving them back
// to ABI methods.
package byte4

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GetMethodFromCalldata resolves the leading selector of calldata against
// the methods of a parsed ABI.
func GetMethodFromCalldata(parsedABI abi.ABI, calldata []byte) (*abi.Method, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("invalid selector length: %d", len(calldata))
	}
	selector, err := SelectorFromCalldata(calldata)
	if err != nil {
		return nil, err
	}

	for name, method := range parsedABI.Methods {
		var types []string
		for _, input := range method.Inputs {
			types = append(types, input.Type.String())
		}

		sig := fmt.Sprintf("%v(%v)", name, strings.Join(types, ","))
		if SelectorFromSignature(sig) == selector {
			return &method, nil
		}
	}

	return nil, fmt.Errorf("no matching method found for selector: %s", selector.Hex())
}
