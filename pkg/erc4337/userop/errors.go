package userop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrMalformedField flags an operation field that cannot be encoded the
	// way its wire slot declares.
	ErrMalformedField = errors.New("userop: malformed field")

	// ErrFieldOverflow is returned when a value is wider than the slot it
	// must occupy. Encoding fails instead of truncating.
	ErrFieldOverflow = fmt.Errorf("%w: value exceeds field width", ErrMalformedField)

	// ErrShortPaymasterData is returned when a v0.7 paymasterAndData blob is
	// shorter than its 52-byte static prefix.
	ErrShortPaymasterData = fmt.Errorf("%w: paymasterAndData shorter than static prefix", ErrMalformedField)
)

// checkUint256 verifies v fits an unsigned 256-bit word. Nil is zero.
func checkUint256(field string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrMalformedField, field)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%s: %w", field, ErrFieldOverflow)
	}
	return nil
}

// checkUint128 verifies v fits one 16-byte half of a packed gas slot.
func checkUint128(field string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrMalformedField, field)
	}
	if v.BitLen() > 128 {
		return fmt.Errorf("%s: %w", field, ErrFieldOverflow)
	}
	return nil
}
