package byte4

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selector is a 4-byte function selector: the first four bytes of the
// keccak hash of the canonical method signature. JSON form is 0x-prefixed
// hex.
type Selector [4]byte

// SelectorFromSignature derives the selector of a canonical signature such
// as "transfer(address,uint256)".
func SelectorFromSignature(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// SelectorFromCalldata reads the leading selector off encoded calldata.
func SelectorFromCalldata(data []byte) (Selector, error) {
	var s Selector
	if len(data) < 4 {
		return s, fmt.Errorf("calldata too short for a selector: %d bytes", len(data))
	}
	copy(s[:], data[:4])
	return s, nil
}

func (s Selector) Bytes() []byte {
	return s[:]
}

func (s Selector) Hex() string {
	return hexutil.Encode(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

func (s Selector) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Hex())
}

func (s *Selector) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return fmt.Errorf("malformed selector %q: %v", raw, err)
	}
	if len(decoded) != 4 {
		return fmt.Errorf("selector must be 4 bytes, got %d", len(decoded))
	}
	copy(s[:], decoded)
	return nil
}
