package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PackForSignature serializes the operation into the static abi layout the
// v0.6 entry point hashes. Dynamic fields enter as their keccak256 digests,
// numeric fields as 32-byte words, and the signature does not participate.
func (op *UserOperation) PackForSignature() ([]byte, error) {
	if err := op.checkWordWidths(); err != nil {
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
		{Name: "callGasLimit", Type: uint256Ty},
		{Name: "verificationGasLimit", Type: uint256Ty},
		{Name: "preVerificationGas", Type: uint256Ty},
		{Name: "maxFeePerGas", Type: uint256Ty},
		{Name: "maxPriorityFeePerGas", Type: uint256Ty},
		{Name: "paymasterAndDataHash", Type: bytes32Ty},
	}

	return args.Pack(
		op.Sender,
		bigOrZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		bigOrZero(op.CallGasLimit),
		bigOrZero(op.VerificationGasLimit),
		bigOrZero(op.PreVerificationGas),
		bigOrZero(op.MaxFeePerGas),
		bigOrZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
}

// GetUserOpHash computes the canonical v0.6 userOpHash: the keccak256 of
// the packed operation, hashed again with the entry point address and the
// chain id, each left-padded to 32 bytes. This is the digest the account
// signs and the bundler reports back, so it must only be taken once every
// field other than the signature is final.
func (op *UserOperation) GetUserOpHash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.PackForSignature()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(
		crypto.Keccak256(packed),
		common.LeftPadBytes(entryPoint.Bytes(), 32),
		common.LeftPadBytes(bigOrZero(chainID).Bytes(), 32),
	), nil
}

func (op *UserOperation) checkWordWidths() error {
	for _, f := range []struct {
		name string
		v    *big.Int
	}{
		{"nonce", op.Nonce},
		{"callGasLimit", op.CallGasLimit},
		{"verificationGasLimit", op.VerificationGasLimit},
		{"preVerificationGas", op.PreVerificationGas},
		{"maxFeePerGas", op.MaxFeePerGas},
		{"maxPriorityFeePerGas", op.MaxPriorityFeePerGas},
	} {
		if err := checkUint256(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}
