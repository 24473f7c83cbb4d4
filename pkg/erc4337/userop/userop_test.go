package userop

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleOp returns a fully populated operation. Every byte field is
// non-empty and every integer non-zero so whole-struct equality is
// meaningful in round-trip tests.
func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557"),
		Nonce:                big.NewInt(7),
		InitCode:             common.FromHex("0xb99bc2e399e06cddcf5e725c0ea341e8f03228345fbfb9cf000000000000000000000000804e49e8c4edb560ae7c48b554f6d2e27bb815570000000000000000000000000000000000000000000000000000000000000000"),
		CallData:             common.FromHex("0xb61d27f6000000000000000000000000e0e45c3c96d0774b7adc12c1f0e1a4091befb4640000000000000000000000000000000000000000000000000000000000000000"),
		CallGasLimit:         big.NewInt(200_000),
		VerificationGasLimit: big.NewInt(1_000_000),
		PreVerificationGas:   big.NewInt(50_000),
		MaxFeePerGas:         big.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
		PaymasterAndData:     common.FromHex("0xe0e45c3c96d0774b7adc12c1f0e1a4091befb46400000000000000000000000000000000000000000000000000000000deadbeef"),
		Signature:            common.FromHex("0x1234567890abcdef"),
	}
}

func TestUserOperation_JSONRoundTrip(t *testing.T) {
	op := sampleOp()

	data, err := json.Marshal(op)
	require.NoError(t, err)

	decoded := &UserOperation{}
	require.NoError(t, json.Unmarshal(data, decoded))

	assert.Equal(t, op, decoded, "decode(encode(op)) should reproduce op")

	// A second encode must be byte-identical to the first, so the wire form
	// is stable across round trips.
	data2, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(data2))
}

func TestUserOperation_JSONWireKeys(t *testing.T) {
	op := sampleOp()

	data, err := json.Marshal(op)
	require.NoError(t, err)

	// Bundlers are picky about key casing and hex quantities.
	for _, key := range []string{
		`"sender":"0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557"`,
		`"nonce":"0x7"`,
		`"callGasLimit":"0x30d40"`,
		`"verificationGasLimit":"0xf4240"`,
		`"preVerificationGas":"0xc350"`,
		`"maxFeePerGas":"0x4a817c800"`,
		`"maxPriorityFeePerGas":"0x77359400"`,
	} {
		assert.Contains(t, string(data), key)
	}
}

func TestUserOperation_JSONZeroAndEmptyFields(t *testing.T) {
	op := &UserOperation{}

	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nonce":"0x0"`, "nil big.Int should encode as 0x0")
	assert.Contains(t, string(data), `"initCode":"0x"`, "empty bytes should encode as 0x")

	decoded := &UserOperation{}
	require.NoError(t, json.Unmarshal(data, decoded))
	require.NotNil(t, decoded.Nonce)
	assert.Zero(t, decoded.Nonce.Sign())
	assert.Empty(t, decoded.InitCode)
	assert.Empty(t, decoded.Signature)
}

func TestUserOperation_JSONRejectsMalformedQuantity(t *testing.T) {
	blob := `{"sender":"0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557","nonce":"0xzz","initCode":"0x","callData":"0x","callGasLimit":"0x1","verificationGasLimit":"0x1","preVerificationGas":"0x1","maxFeePerGas":"0x1","maxPriorityFeePerGas":"0x1","paymasterAndData":"0x","signature":"0x"}`

	err := json.Unmarshal([]byte(blob), &UserOperation{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedField)
	assert.Contains(t, err.Error(), "nonce")
}

func TestUserOperation_CopyIsDeep(t *testing.T) {
	op := sampleOp()
	dup := op.Copy()

	require.Equal(t, op, dup)

	// Mutate every mutable field of the copy.
	dup.Nonce.Add(dup.Nonce, big.NewInt(1))
	dup.CallGasLimit.SetInt64(1)
	dup.InitCode[0] ^= 0xff
	dup.CallData[0] ^= 0xff
	dup.PaymasterAndData[0] ^= 0xff
	dup.Signature[0] ^= 0xff

	assert.Equal(t, int64(7), op.Nonce.Int64(), "original nonce must be untouched")
	assert.Equal(t, int64(200_000), op.CallGasLimit.Int64())
	assert.NotEqual(t, op.InitCode[0], dup.InitCode[0])
	assert.NotEqual(t, op.CallData[0], dup.CallData[0])
	assert.NotEqual(t, op.PaymasterAndData[0], dup.PaymasterAndData[0])
	assert.NotEqual(t, op.Signature[0], dup.Signature[0])
}

func TestUserOperation_CopyPreservesNil(t *testing.T) {
	op := &UserOperation{Sender: common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")}
	dup := op.Copy()

	assert.Nil(t, dup.Nonce)
	assert.Nil(t, dup.InitCode)
	assert.Nil(t, dup.Signature)
}
