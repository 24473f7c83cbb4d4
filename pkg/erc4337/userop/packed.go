package userop

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Byte offsets inside a v0.7 paymasterAndData blob. The first 20 bytes are
// the paymaster address, followed by two 16-byte gas halves, then the
// paymaster-specific data.
const (
	PaymasterValidationGasOffset = 20
	PaymasterPostOpGasOffset     = 36
	PaymasterDataOffset          = 52
)

// PackedUserOperation is the v0.7 entry point layout. The four account gas
// values collapse into two bytes32 slots, each slot holding two 16-byte
// big-endian halves.
type PackedUserOperation struct {
	Sender             common.Address `json:"sender"`
	Nonce              *big.Int       `json:"nonce"`
	InitCode           []byte         `json:"initCode"`
	CallData           []byte         `json:"callData"`
	AccountGasLimits   [32]byte       `json:"accountGasLimits"`
	PreVerificationGas *big.Int       `json:"preVerificationGas"`
	GasFees            [32]byte       `json:"gasFees"`
	PaymasterAndData   []byte         `json:"paymasterAndData"`
	Signature          []byte         `json:"signature"`
}

// Pack converts the flat v0.6 layout into the packed v0.7 layout. The four
// gas values and the two fee values must each fit 128 bits; a wider value
// fails instead of truncating. PaymasterAndData and Signature are carried
// verbatim, so Unpack(Pack(op)) reproduces op exactly.
func (op *UserOperation) Pack() (*PackedUserOperation, error) {
	if err := checkUint256("nonce", op.Nonce); err != nil {
		return nil, err
	}
	if err := checkUint256("preVerificationGas", op.PreVerificationGas); err != nil {
		return nil, err
	}

	accountGasLimits, err := packGasPair(
		"verificationGasLimit", op.VerificationGasLimit,
		"callGasLimit", op.CallGasLimit,
	)
	if err != nil {
		return nil, err
	}
	gasFees, err := packGasPair(
		"maxPriorityFeePerGas", op.MaxPriorityFeePerGas,
		"maxFeePerGas", op.MaxFeePerGas,
	)
	if err != nil {
		return nil, err
	}

	return &PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              new(big.Int).Set(bigOrZero(op.Nonce)),
		InitCode:           cloneBytes(op.InitCode),
		CallData:           cloneBytes(op.CallData),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: new(big.Int).Set(bigOrZero(op.PreVerificationGas)),
		GasFees:            gasFees,
		PaymasterAndData:   cloneBytes(op.PaymasterAndData),
		Signature:          cloneBytes(op.Signature),
	}, nil
}

// Unpack expands the packed v0.7 layout back into the flat v0.6 layout.
func (p *PackedUserOperation) Unpack() (*UserOperation, error) {
	if err := checkUint256("nonce", p.Nonce); err != nil {
		return nil, err
	}
	if err := checkUint256("preVerificationGas", p.PreVerificationGas); err != nil {
		return nil, err
	}

	verificationGasLimit, callGasLimit := splitGasPair(p.AccountGasLimits)
	maxPriorityFeePerGas, maxFeePerGas := splitGasPair(p.GasFees)

	return &UserOperation{
		Sender:               p.Sender,
		Nonce:                new(big.Int).Set(bigOrZero(p.Nonce)),
		InitCode:             cloneBytes(p.InitCode),
		CallData:             cloneBytes(p.CallData),
		CallGasLimit:         callGasLimit,
		VerificationGasLimit: verificationGasLimit,
		PreVerificationGas:   new(big.Int).Set(bigOrZero(p.PreVerificationGas)),
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		PaymasterAndData:     cloneBytes(p.PaymasterAndData),
		Signature:            cloneBytes(p.Signature),
	}, nil
}

// PackForSignature serializes the packed operation into the static abi
// layout the v0.7 entry point hashes.
func (p *PackedUserOperation) PackForSignature() ([]byte, error) {
	if err := checkUint256("nonce", p.Nonce); err != nil {
		return nil, err
	}
	if err := checkUint256("preVerificationGas", p.PreVerificationGas); err != nil {
		return nil, err
	}

	addressTy, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)

	args := abi.Arguments{
		{Name: "sender", Type: addressTy},
		{Name: "nonce", Type: uint256Ty},
		{Name: "initCodeHash", Type: bytes32Ty},
		{Name: "callDataHash", Type: bytes32Ty},
		{Name: "accountGasLimits", Type: bytes32Ty},
		{Name: "preVerificationGas", Type: uint256Ty},
		{Name: "gasFees", Type: bytes32Ty},
		{Name: "paymasterAndDataHash", Type: bytes32Ty},
	}

	return args.Pack(
		p.Sender,
		bigOrZero(p.Nonce),
		crypto.Keccak256Hash(p.InitCode),
		crypto.Keccak256Hash(p.CallData),
		p.AccountGasLimits,
		bigOrZero(p.PreVerificationGas),
		p.GasFees,
		crypto.Keccak256Hash(p.PaymasterAndData),
	)
}

// GetUserOpHash computes the canonical v0.7 userOpHash with the same outer
// keccak over entry point and chain id as the v0.6 rule.
func (p *PackedUserOperation) GetUserOpHash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := p.PackForSignature()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(
		crypto.Keccak256(packed),
		common.LeftPadBytes(entryPoint.Bytes(), 32),
		common.LeftPadBytes(bigOrZero(chainID).Bytes(), 32),
	), nil
}

// MarshalJSON encodes the packed operation with the two gas slots as fixed
// 32-byte hex strings.
func (p *PackedUserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sender             string `json:"sender"`
		Nonce              string `json:"nonce"`
		InitCode           string `json:"initCode"`
		CallData           string `json:"callData"`
		AccountGasLimits   string `json:"accountGasLimits"`
		PreVerificationGas string `json:"preVerificationGas"`
		GasFees            string `json:"gasFees"`
		PaymasterAndData   string `json:"paymasterAndData"`
		Signature          string `json:"signature"`
	}{
		Sender:             p.Sender.Hex(),
		Nonce:              hexutil.EncodeBig(bigOrZero(p.Nonce)),
		InitCode:           hexutil.Encode(p.InitCode),
		CallData:           hexutil.Encode(p.CallData),
		AccountGasLimits:   hexutil.Encode(p.AccountGasLimits[:]),
		PreVerificationGas: hexutil.EncodeBig(bigOrZero(p.PreVerificationGas)),
		GasFees:            hexutil.Encode(p.GasFees[:]),
		PaymasterAndData:   hexutil.Encode(p.PaymasterAndData),
		Signature:          hexutil.Encode(p.Signature),
	})
}

// UnmarshalJSON decodes the layout produced by MarshalJSON. The gas slots
// must be exactly 32 bytes.
func (p *PackedUserOperation) UnmarshalJSON(data []byte) error {
	aux := struct {
		Sender             string `json:"sender"`
		Nonce              string `json:"nonce"`
		InitCode           string `json:"initCode"`
		CallData           string `json:"callData"`
		AccountGasLimits   string `json:"accountGasLimits"`
		PreVerificationGas string `json:"preVerificationGas"`
		GasFees            string `json:"gasFees"`
		PaymasterAndData   string `json:"paymasterAndData"`
		Signature          string `json:"signature"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.Sender = common.HexToAddress(aux.Sender)

	var err error
	if p.Nonce, err = decodeQuantity("nonce", aux.Nonce); err != nil {
		return err
	}
	if p.InitCode, err = decodeBytes("initCode", aux.InitCode); err != nil {
		return err
	}
	if p.CallData, err = decodeBytes("callData", aux.CallData); err != nil {
		return err
	}
	if p.AccountGasLimits, err = decodeGasSlot("accountGasLimits", aux.AccountGasLimits); err != nil {
		return err
	}
	if p.PreVerificationGas, err = decodeQuantity("preVerificationGas", aux.PreVerificationGas); err != nil {
		return err
	}
	if p.GasFees, err = decodeGasSlot("gasFees", aux.GasFees); err != nil {
		return err
	}
	if p.PaymasterAndData, err = decodeBytes("paymasterAndData", aux.PaymasterAndData); err != nil {
		return err
	}
	if p.Signature, err = decodeBytes("signature", aux.Signature); err != nil {
		return err
	}

	return nil
}

// PaymasterFields are the components of a v0.7 paymasterAndData blob.
type PaymasterFields struct {
	Paymaster                     common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
}

// PackPaymasterAndData composes a v0.7 paymasterAndData blob from its
// components. Both gas limits must fit 128 bits.
func PackPaymasterAndData(paymaster common.Address, verificationGasLimit, postOpGasLimit *big.Int, data []byte) ([]byte, error) {
	if err := checkUint128("paymasterVerificationGasLimit", verificationGasLimit); err != nil {
		return nil, err
	}
	if err := checkUint128("paymasterPostOpGasLimit", postOpGasLimit); err != nil {
		return nil, err
	}

	out := make([]byte, 0, PaymasterDataOffset+len(data))
	out = append(out, paymaster.Bytes()...)
	out = append(out, common.LeftPadBytes(bigOrZero(verificationGasLimit).Bytes(), 16)...)
	out = append(out, common.LeftPadBytes(bigOrZero(postOpGasLimit).Bytes(), 16)...)
	out = append(out, data...)
	return out, nil
}

// SplitPaymasterAndData decomposes a v0.7 paymasterAndData blob. Anything
// shorter than the static prefix, including an empty blob, is rejected.
func SplitPaymasterAndData(data []byte) (*PaymasterFields, error) {
	if len(data) < PaymasterDataOffset {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrShortPaymasterData, len(data), PaymasterDataOffset)
	}
	return &PaymasterFields{
		Paymaster:                     common.BytesToAddress(data[:PaymasterValidationGasOffset]),
		PaymasterVerificationGasLimit: new(big.Int).SetBytes(data[PaymasterValidationGasOffset:PaymasterPostOpGasOffset]),
		PaymasterPostOpGasLimit:       new(big.Int).SetBytes(data[PaymasterPostOpGasOffset:PaymasterDataOffset]),
		PaymasterData:                 cloneBytes(data[PaymasterDataOffset:]),
	}, nil
}

// packGasPair writes hi into the top 16 bytes and lo into the bottom 16
// bytes of one slot, both big-endian.
func packGasPair(hiName string, hi *big.Int, loName string, lo *big.Int) ([32]byte, error) {
	var slot [32]byte
	if err := checkUint128(hiName, hi); err != nil {
		return slot, err
	}
	if err := checkUint128(loName, lo); err != nil {
		return slot, err
	}
	copy(slot[:16], common.LeftPadBytes(bigOrZero(hi).Bytes(), 16))
	copy(slot[16:], common.LeftPadBytes(bigOrZero(lo).Bytes(), 16))
	return slot, nil
}

func splitGasPair(slot [32]byte) (hi, lo *big.Int) {
	return new(big.Int).SetBytes(slot[:16]), new(big.Int).SetBytes(slot[16:])
}

func decodeGasSlot(field, s string) ([32]byte, error) {
	var slot [32]byte
	if s == "" {
		return slot, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return slot, fmt.Errorf("%w: %s: %v", ErrMalformedField, field, err)
	}
	if len(b) != 32 {
		return slot, fmt.Errorf("%w: %s must be 32 bytes, got %d", ErrMalformedField, field, len(b))
	}
	copy(slot[:], b)
	return slot, nil
}
