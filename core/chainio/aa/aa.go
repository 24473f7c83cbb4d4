// Package aa wraps the on-chain surface of the account abstraction
// contracts: init code construction, counterfactual address derivation,
// entry point nonce reads, and calldata packing for the smart account's
// execute entry points.
package aa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBatchMismatch is returned when the three executeBatch slices differ in
// length.
var ErrBatchMismatch = errors.New("aa: executeBatch targets, values and calldatas must have equal length")

// GetInitCode returns the initCode deploying a wallet for ownerAddress with
// the given salt through the configured factory: the factory address
// followed by the packed createAccount calldata, hex encoded.
func GetInitCode(ownerAddress string, salt *big.Int) (string, error) {
	return GetInitCodeForFactory(ownerAddress, factoryAddress, salt)
}

// GetInitCodeForFactory is GetInitCode against an explicit factory.
func GetInitCodeForFactory(ownerAddress string, factory common.Address, salt *big.Int) (string, error) {
	calldata, err := factoryABI.Pack("createAccount", common.HexToAddress(ownerAddress), salt)
	if err != nil {
		return "", err
	}

	var data []byte
	data = append(data, factory.Bytes()...)
	data = append(data, calldata...)

	return hexutil.Encode(data), nil
}

// ComputeSmartWalletAddress derives the counterfactual wallet address
// without touching the chain:
// keccak256(0xff || factory || salt(32) || keccak256(initCode))[12:].
// The same (factory, owner, salt) triple always yields the same address, so
// callers cache the result for the lifetime of the handle. A nil salt
// panics.
func ComputeSmartWalletAddress(factory, owner common.Address, salt *big.Int) (common.Address, error) {
	initCodeHex, err := GetInitCodeForFactory(owner.Hex(), factory, salt)
	if err != nil {
		return common.Address{}, err
	}

	initCode, err := hexutil.Decode(initCodeHex)
	if err != nil {
		return common.Address{}, err
	}

	saltBytes := make([]byte, 32)
	salt.FillBytes(saltBytes)

	hash := crypto.Keccak256(
		[]byte{0xff},
		factory.Bytes(),
		saltBytes,
		crypto.Keccak256(initCode),
	)

	return common.BytesToAddress(hash[12:]), nil
}

// GetSenderAddress asks the factory's getAddress view for the wallet
// address. It is the on-chain cross-check for ComputeSmartWalletAddress and
// needs an RPC round trip.
func GetSenderAddress(ctx context.Context, conn ethereum.ContractCaller, ownerAddress common.Address, salt *big.Int) (*common.Address, error) {
	if salt == nil {
		salt = defaultSalt
	}

	calldata, err := factoryABI.Pack("getAddress", ownerAddress, salt)
	if err != nil {
		return nil, err
	}

	result, err := conn.CallContract(ctx, ethereum.CallMsg{
		To:   &factoryAddress,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, err
	}

	out, err := factoryABI.Unpack("getAddress", result)
	if err != nil {
		return nil, fmt.Errorf("decode getAddress result: %w", err)
	}

	sender := out[0].(common.Address)
	return &sender, nil
}

// GetNonce reads the entry point's sequential nonce for sender under the
// given 192-bit key. A nil key means the default sequence 0. The entry
// point is the source of truth; nothing here counts locally.
func GetNonce(ctx context.Context, conn ethereum.ContractCaller, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = defaultSalt
	}

	calldata, err := entrypointABI.Pack("getNonce", sender, key)
	if err != nil {
		return nil, err
	}

	result, err := conn.CallContract(ctx, ethereum.CallMsg{
		To:   &EntrypointAddress,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, err
	}

	out, err := entrypointABI.Unpack("getNonce", result)
	if err != nil {
		return nil, fmt.Errorf("decode getNonce result: %w", err)
	}

	return out[0].(*big.Int), nil
}

// GetDepositBalance reads the sender's gas deposit held by the entry point.
func GetDepositBalance(ctx context.Context, conn ethereum.ContractCaller, account common.Address) (*big.Int, error) {
	calldata, err := entrypointABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}

	result, err := conn.CallContract(ctx, ethereum.CallMsg{
		To:   &EntrypointAddress,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, err
	}

	out, err := entrypointABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("decode balanceOf result: %w", err)
	}

	return out[0].(*big.Int), nil
}

// PackExecute generates the calldata for a single call through the wallet.
func PackExecute(targetAddress common.Address, ethValue *big.Int, calldata []byte) ([]byte, error) {
	if ethValue == nil {
		ethValue = big.NewInt(0)
	}
	if calldata == nil {
		calldata = []byte{}
	}
	return accountABI.Pack("execute", targetAddress, ethValue, calldata)
}

// PackExecuteBatch generates the calldata for a batch; values[i] and
// calldatas[i] pair with targets[i].
func PackExecuteBatch(targets []common.Address, values []*big.Int, calldatas [][]byte) ([]byte, error) {
	if len(targets) != len(values) || len(targets) != len(calldatas) {
		return nil, fmt.Errorf("%w: %d targets, %d values, %d calldatas",
			ErrBatchMismatch, len(targets), len(values), len(calldatas))
	}

	packValues := make([]*big.Int, len(values))
	packCalldatas := make([][]byte, len(calldatas))
	for i := range targets {
		packValues[i] = values[i]
		if packValues[i] == nil {
			packValues[i] = big.NewInt(0)
		}
		packCalldatas[i] = calldatas[i]
		if packCalldatas[i] == nil {
			packCalldatas[i] = []byte{}
		}
	}

	return accountABI.Pack("executeBatch", targets, packValues, packCalldatas)
}

// UnpackExecute reverses PackExecute. It fails on anything that is not an
// execute(address,uint256,bytes) call.
func UnpackExecute(calldata []byte) (target common.Address, value *big.Int, data []byte, err error) {
	method := accountABI.Methods["execute"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return common.Address{}, nil, nil, fmt.Errorf("aa: calldata is not an execute call")
	}
	out, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("aa: decode execute calldata: %w", err)
	}
	return out[0].(common.Address), out[1].(*big.Int), out[2].([]byte), nil
}

// UnpackExecuteBatch reverses PackExecuteBatch.
func UnpackExecuteBatch(calldata []byte) (targets []common.Address, values []*big.Int, calldatas [][]byte, err error) {
	method := accountABI.Methods["executeBatch"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, nil, nil, fmt.Errorf("aa: calldata is not an executeBatch call")
	}
	out, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("aa: decode executeBatch calldata: %w", err)
	}
	return out[0].([]common.Address), out[1].([]*big.Int), out[2].([][]byte), nil
}

// IsExecuteBatch reports whether calldata targets the batch entry point of
// the wallet rather than the single-call one.
func IsExecuteBatch(calldata []byte) bool {
	return len(calldata) >= 4 && bytes.Equal(calldata[:4], accountABI.Methods["executeBatch"].ID)
}
