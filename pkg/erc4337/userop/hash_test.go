package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	testChainID    = big.NewInt(11155111)
)

func TestGetUserOpHash_MatchesManualEncoding(t *testing.T) {
	// Rebuild the v0.6 hash by hand: every field in PackForSignature is a
	// static abi type, so the encoding is ten 32-byte words in order.
	op := sampleOp()

	hash, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)

	var packed []byte
	packed = append(packed, common.LeftPadBytes(op.Sender.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(op.Nonce.Bytes(), 32)...)
	packed = append(packed, crypto.Keccak256(op.InitCode)...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	packed = append(packed, common.LeftPadBytes(op.CallGasLimit.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(op.VerificationGasLimit.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(op.PreVerificationGas.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(op.MaxFeePerGas.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(op.MaxPriorityFeePerGas.Bytes(), 32)...)
	packed = append(packed, crypto.Keccak256(op.PaymasterAndData)...)

	expected := crypto.Keccak256Hash(
		crypto.Keccak256(packed),
		common.LeftPadBytes(testEntryPoint.Bytes(), 32),
		common.LeftPadBytes(testChainID.Bytes(), 32),
	)

	assert.Equal(t, expected, hash, "abi packing should agree with the manual word-by-word encoding")
}

func TestGetUserOpHash_Deterministic(t *testing.T) {
	op := sampleOp()

	h1, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)
	h2, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "same inputs must produce the same hash")
}

func TestGetUserOpHash_SensitiveToEveryField(t *testing.T) {
	base := sampleOp()
	baseHash, err := base.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)

	mutations := map[string]func(op *UserOperation){
		"sender":               func(op *UserOperation) { op.Sender = common.HexToAddress("0x0000000000000000000000000000000000000001") },
		"nonce":                func(op *UserOperation) { op.Nonce = big.NewInt(8) },
		"initCode":             func(op *UserOperation) { op.InitCode = append(op.InitCode, 0x01) },
		"callData":             func(op *UserOperation) { op.CallData = append(op.CallData, 0x01) },
		"callGasLimit":         func(op *UserOperation) { op.CallGasLimit = big.NewInt(200_001) },
		"verificationGasLimit": func(op *UserOperation) { op.VerificationGasLimit = big.NewInt(1_000_001) },
		"preVerificationGas":   func(op *UserOperation) { op.PreVerificationGas = big.NewInt(50_001) },
		"maxFeePerGas":         func(op *UserOperation) { op.MaxFeePerGas = big.NewInt(20_000_000_001) },
		"maxPriorityFeePerGas": func(op *UserOperation) { op.MaxPriorityFeePerGas = big.NewInt(2_000_000_001) },
		"paymasterAndData":     func(op *UserOperation) { op.PaymasterAndData = append(op.PaymasterAndData, 0x01) },
	}

	for field, mutate := range mutations {
		op := base.Copy()
		mutate(op)
		h, err := op.GetUserOpHash(testEntryPoint, testChainID)
		require.NoError(t, err, field)
		assert.NotEqual(t, baseHash, h, "changing %s must change the hash", field)
	}
}

func TestGetUserOpHash_IgnoresSignature(t *testing.T) {
	op := sampleOp()
	baseHash, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)

	op.Signature = common.FromHex("0xdeadbeef")
	h, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)

	assert.Equal(t, baseHash, h, "the signature must not participate in the hash")
}

func TestGetUserOpHash_BoundToEntryPointAndChain(t *testing.T) {
	op := sampleOp()
	baseHash, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)

	otherEntryPoint, err := op.GetUserOpHash(common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"), testChainID)
	require.NoError(t, err)
	assert.NotEqual(t, baseHash, otherEntryPoint)

	otherChain, err := op.GetUserOpHash(testEntryPoint, big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, baseHash, otherChain)
}

func TestGetUserOpHash_EmptyOperation(t *testing.T) {
	// A zero-value operation hashes the empty byte string for every dynamic
	// field. Nothing panics on nil integers.
	op := &UserOperation{}

	hash, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	emptyHash := crypto.Keccak256Hash(nil)
	packed, err := op.PackForSignature()
	require.NoError(t, err)
	require.Len(t, packed, 10*32)
	assert.Equal(t, emptyHash.Bytes(), packed[64:96], "empty initCode hashes as keccak256 of zero bytes")
	assert.Equal(t, emptyHash.Bytes(), packed[96:128], "empty callData hashes as keccak256 of zero bytes")
	assert.Equal(t, emptyHash.Bytes(), packed[9*32:], "empty paymasterAndData hashes as keccak256 of zero bytes")
}

func TestGetUserOpHash_RejectsOversizedField(t *testing.T) {
	overflow := new(big.Int).Lsh(big.NewInt(1), 256)

	op := sampleOp()
	op.Nonce = overflow
	_, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldOverflow)
	assert.ErrorIs(t, err, ErrMalformedField)
	assert.Contains(t, err.Error(), "nonce")

	op = sampleOp()
	op.MaxFeePerGas = overflow
	_, err = op.GetUserOpHash(testEntryPoint, testChainID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldOverflow)
}

func TestGetUserOpHash_RejectsNegativeField(t *testing.T) {
	op := sampleOp()
	op.CallGasLimit = big.NewInt(-1)

	_, err := op.GetUserOpHash(testEntryPoint, testChainID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedField)
	assert.NotErrorIs(t, err, ErrFieldOverflow, "a negative value is malformed, not overflowing")
}

func TestGetUserOpHash_MaxUint256Accepted(t *testing.T) {
	// 2^256-1 is the widest legal word. It must hash, not error.
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	op := sampleOp()
	op.Nonce = max
	_, err := op.GetUserOpHash(testEntryPoint, testChainID)
	assert.NoError(t, err)
}
