package sessionkeys

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-wallet/pkg/byte4"
)

func sampleSessionKey() common.Address {
	return common.HexToAddress("0x9fB29AAc15b9A4B7F17c3385939b007540f4d791")
}

func samplePermission() Permission {
	return Permission{
		ValidAfter:          1_700_000_000,
		ValidUntil:          1_700_003_600,
		MaxValuePerCall:     big.NewInt(1e18),
		MaxTotalValue:       big.NewInt(5e18),
		AllowedTargets:      []common.Address{targetA, targetB},
		BlockedTargets:      []common.Address{targetC},
		AllowedSelectors:    []byte4.Selector{byte4.SelectorFromSignature("transfer(address,uint256)")},
		MaxTransactionCount: 7,
		CooldownSeconds:     60,
	}
}

func TestEncodePermissionsLayout(t *testing.T) {
	sessionKey := sampleSessionKey()
	p := samplePermission()

	data, err := EncodePermissions(sessionKey, p)
	require.NoError(t, err)

	// header + (1+40) allowed + (1+20) blocked + (1+4) selectors + 16 limits
	require.Len(t, data, 160+41+21+5+16)

	assert.Equal(t, make([]byte, 12), data[:12], "address slot is left padded")
	assert.Equal(t, sessionKey.Bytes(), data[12:32])
	assert.Equal(t, p.ValidAfter, new(big.Int).SetBytes(data[32:64]).Int64())
	assert.Equal(t, p.ValidUntil, new(big.Int).SetBytes(data[64:96]).Int64())
	assert.Zero(t, new(big.Int).SetBytes(data[96:128]).Cmp(p.MaxValuePerCall))
	assert.Zero(t, new(big.Int).SetBytes(data[128:160]).Cmp(p.MaxTotalValue))

	assert.EqualValues(t, 2, data[160])
	assert.Equal(t, targetA.Bytes(), data[161:181])
	assert.Equal(t, targetB.Bytes(), data[181:201])

	assert.EqualValues(t, 1, data[201])
	assert.Equal(t, targetC.Bytes(), data[202:222])

	assert.EqualValues(t, 1, data[222])
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, data[223:227], "transfer(address,uint256)")

	assert.EqualValues(t, 7, binary.BigEndian.Uint64(data[227:235]))
	assert.EqualValues(t, 60, binary.BigEndian.Uint64(data[235:243]))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sessionKey := sampleSessionKey()
	p := samplePermission()

	data, err := EncodePermissions(sessionKey, p)
	require.NoError(t, err)

	gotKey, got, err := DecodePermissions(data)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, gotKey)
	assert.Equal(t, p, got)
}

func TestEncodePermissionsNormalizesNilCaps(t *testing.T) {
	p := Permission{ValidAfter: 0, ValidUntil: 100}

	data, err := EncodePermissions(sampleSessionKey(), p)
	require.NoError(t, err)
	require.Len(t, data, permissionMinLen)

	_, got, err := DecodePermissions(data)
	require.NoError(t, err)
	assert.Zero(t, got.MaxValuePerCall.Sign(), "nil per-call cap encodes as zero")
	assert.Zero(t, got.MaxTotalValue.Sign(), "nil total cap encodes as zero")
}

func TestEncodePermissionsRejectsOutOfRange(t *testing.T) {
	manyTargets := make([]common.Address, 256)
	for i := range manyTargets {
		manyTargets[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}

	cases := []struct {
		name    string
		mutate  func(*Permission)
		wantErr string
	}{
		{
			name:    "negative valid_after",
			mutate:  func(p *Permission) { p.ValidAfter = -1 },
			wantErr: "must not be negative",
		},
		{
			name:    "valid_until past uint48",
			mutate:  func(p *Permission) { p.ValidUntil = 1 << 48 },
			wantErr: "exceeds the uint48 range",
		},
		{
			name:    "negative per-call cap",
			mutate:  func(p *Permission) { p.MaxValuePerCall = big.NewInt(-1) },
			wantErr: "must not be negative",
		},
		{
			name:    "per-call cap past uint256",
			mutate:  func(p *Permission) { p.MaxValuePerCall = new(big.Int).Lsh(big.NewInt(1), 256) },
			wantErr: "exceeds the uint256 range",
		},
		{
			name:    "too many allowed targets",
			mutate:  func(p *Permission) { p.AllowedTargets = manyTargets },
			wantErr: "wire limit",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := samplePermission()
			tc.mutate(&p)

			_, err := EncodePermissions(sampleSessionKey(), p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDecodePermissionsRejectsMalformed(t *testing.T) {
	valid, err := EncodePermissions(sampleSessionKey(), samplePermission())
	require.NoError(t, err)

	t.Run("too short", func(t *testing.T) {
		_, _, err := DecodePermissions(valid[:100])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least")
	})

	t.Run("nonzero address padding", func(t *testing.T) {
		tampered := append([]byte(nil), valid...)
		tampered[0] = 1

		_, _, err := DecodePermissions(tampered)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonzero padding")
	})

	t.Run("truncated inside a list", func(t *testing.T) {
		_, _, err := DecodePermissions(valid[:170])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "truncated inside the allowed target list")
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, _, err := DecodePermissions(append(append([]byte(nil), valid...), 0x00))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected a")
	})
}

func TestAuthorizationDigestCoversEveryInput(t *testing.T) {
	account := testAccount
	sessionKey := sampleSessionKey()
	p := samplePermission()

	base, err := AuthorizationDigest(account, sessionKey, p)
	require.NoError(t, err)

	otherAccount, err := AuthorizationDigest(targetA, sessionKey, p)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherAccount)

	otherKey, err := AuthorizationDigest(account, targetB, p)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherKey)

	looser := p
	looser.ValidUntil += 1
	otherWindow, err := AuthorizationDigest(account, sessionKey, looser)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherWindow, "widening the window must change what the owner signs")
}
