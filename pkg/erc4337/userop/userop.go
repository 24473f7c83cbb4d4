// Package userop models ERC-4337 user operations in both entry point wire
// shapes: the flat v0.6 layout and the packed v0.7 layout with the gas
// limits collapsed into 32-byte slots. It converts losslessly between the
// two and computes the canonical userOpHash each entry point signs over.
//
// Hashing and packing are pure: they read the operation value, the entry
// point address and the chain id, and nothing else. Any field wider than
// its wire slot fails with a typed error instead of truncating.
package userop

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserOperation is the flat v0.6 layout. Nil *big.Int fields are treated as
// zero so a partially built operation can be hashed and marshaled while a
// controller is still filling it in.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

// MarshalJSON encodes the operation in the bundler RPC convention: hex
// quantities for integers, 0x-prefixed hex for byte fields.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sender               string `json:"sender"`
		Nonce                string `json:"nonce"`
		InitCode             string `json:"initCode"`
		CallData             string `json:"callData"`
		CallGasLimit         string `json:"callGasLimit"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		PreVerificationGas   string `json:"preVerificationGas"`
		MaxFeePerGas         string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
		PaymasterAndData     string `json:"paymasterAndData"`
		Signature            string `json:"signature"`
	}{
		Sender:               op.Sender.Hex(),
		Nonce:                hexutil.EncodeBig(bigOrZero(op.Nonce)),
		InitCode:             hexutil.Encode(op.InitCode),
		CallData:             hexutil.Encode(op.CallData),
		CallGasLimit:         hexutil.EncodeBig(bigOrZero(op.CallGasLimit)),
		VerificationGasLimit: hexutil.EncodeBig(bigOrZero(op.VerificationGasLimit)),
		PreVerificationGas:   hexutil.EncodeBig(bigOrZero(op.PreVerificationGas)),
		MaxFeePerGas:         hexutil.EncodeBig(bigOrZero(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: hexutil.EncodeBig(bigOrZero(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     hexutil.Encode(op.PaymasterAndData),
		Signature:            hexutil.Encode(op.Signature),
	})
}

// UnmarshalJSON decodes the bundler RPC convention produced by MarshalJSON.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	aux := struct {
		Sender               string `json:"sender"`
		Nonce                string `json:"nonce"`
		InitCode             string `json:"initCode"`
		CallData             string `json:"callData"`
		CallGasLimit         string `json:"callGasLimit"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		PreVerificationGas   string `json:"preVerificationGas"`
		MaxFeePerGas         string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
		PaymasterAndData     string `json:"paymasterAndData"`
		Signature            string `json:"signature"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	op.Sender = common.HexToAddress(aux.Sender)

	var err error
	if op.Nonce, err = decodeQuantity("nonce", aux.Nonce); err != nil {
		return err
	}
	if op.InitCode, err = decodeBytes("initCode", aux.InitCode); err != nil {
		return err
	}
	if op.CallData, err = decodeBytes("callData", aux.CallData); err != nil {
		return err
	}
	if op.CallGasLimit, err = decodeQuantity("callGasLimit", aux.CallGasLimit); err != nil {
		return err
	}
	if op.VerificationGasLimit, err = decodeQuantity("verificationGasLimit", aux.VerificationGasLimit); err != nil {
		return err
	}
	if op.PreVerificationGas, err = decodeQuantity("preVerificationGas", aux.PreVerificationGas); err != nil {
		return err
	}
	if op.MaxFeePerGas, err = decodeQuantity("maxFeePerGas", aux.MaxFeePerGas); err != nil {
		return err
	}
	if op.MaxPriorityFeePerGas, err = decodeQuantity("maxPriorityFeePerGas", aux.MaxPriorityFeePerGas); err != nil {
		return err
	}
	if op.PaymasterAndData, err = decodeBytes("paymasterAndData", aux.PaymasterAndData); err != nil {
		return err
	}
	if op.Signature, err = decodeBytes("signature", aux.Signature); err != nil {
		return err
	}

	return nil
}

// Copy returns a deep copy. Mutating the copy never touches the original,
// so a builder can fork an operation for gas estimation and keep signing
// the pristine one.
func (op *UserOperation) Copy() *UserOperation {
	return &UserOperation{
		Sender:               op.Sender,
		Nonce:                cloneBig(op.Nonce),
		InitCode:             cloneBytes(op.InitCode),
		CallData:             cloneBytes(op.CallData),
		CallGasLimit:         cloneBig(op.CallGasLimit),
		VerificationGasLimit: cloneBig(op.VerificationGasLimit),
		PreVerificationGas:   cloneBig(op.PreVerificationGas),
		MaxFeePerGas:         cloneBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: cloneBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     cloneBytes(op.PaymasterAndData),
		Signature:            cloneBytes(op.Signature),
	}
}

func decodeQuantity(field, s string) (*big.Int, error) {
	if s == "" || s == "0x" {
		return new(big.Int), nil
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedField, field, err)
	}
	return v, nil
}

func decodeBytes(field, s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedField, field, err)
	}
	return b, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
