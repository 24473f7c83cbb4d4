package sessionkeys

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-wallet/pkg/byte4"
)

// Wire layout shared with the on-chain session validator: a fixed 160 byte
// header, three length-prefixed lists, then the two uint64 limits.
//
//	[0:32]    session key address, left padded
//	[32:64]   validAfter  (uint48 range)
//	[64:96]   validUntil  (uint48 range)
//	[96:128]  maxValuePerCall (uint256)
//	[128:160] maxTotalValue   (uint256)
//	[160]     allowed target count, then 20 bytes per target
//	          blocked target count, then 20 bytes per target
//	          selector count, then 4 bytes per selector
//	[n:n+8]   maxTransactionCount, big endian
//	[n+8:n+16] cooldownSeconds, big endian
const (
	permissionHeaderLen = 160

	// permissionMinLen is the empty-list record: header, three zero counts
	// and the two limits.
	permissionMinLen = permissionHeaderLen + 3 + 16

	maxUint48 = 1<<48 - 1

	// maxListLen is the most entries a one-byte length prefix can carry.
	maxListLen = 255
)

// EncodePermissions serializes a session grant into the exact byte layout
// the on-chain verifier expects. Out-of-range fields fail fast with a
// descriptive error; nothing is truncated or clamped silently.
func EncodePermissions(sessionKey common.Address, p Permission) ([]byte, error) {
	if err := checkTimestamp("valid_after", p.ValidAfter); err != nil {
		return nil, err
	}
	if err := checkTimestamp("valid_until", p.ValidUntil); err != nil {
		return nil, err
	}
	if len(p.AllowedTargets) > maxListLen {
		return nil, fmt.Errorf("sessionkeys: %d allowed targets exceed the %d entry wire limit", len(p.AllowedTargets), maxListLen)
	}
	if len(p.BlockedTargets) > maxListLen {
		return nil, fmt.Errorf("sessionkeys: %d blocked targets exceed the %d entry wire limit", len(p.BlockedTargets), maxListLen)
	}
	if len(p.AllowedSelectors) > maxListLen {
		return nil, fmt.Errorf("sessionkeys: %d selectors exceed the %d entry wire limit", len(p.AllowedSelectors), maxListLen)
	}

	size := permissionMinLen + 20*(len(p.AllowedTargets)+len(p.BlockedTargets)) + 4*len(p.AllowedSelectors)
	buf := bytes.NewBuffer(make([]byte, 0, size))

	buf.Write(common.LeftPadBytes(sessionKey.Bytes(), 32))
	buf.Write(common.LeftPadBytes(big.NewInt(p.ValidAfter).Bytes(), 32))
	buf.Write(common.LeftPadBytes(big.NewInt(p.ValidUntil).Bytes(), 32))
	if err := writeUint256(buf, "max_value_per_call", p.MaxValuePerCall); err != nil {
		return nil, err
	}
	if err := writeUint256(buf, "max_total_value", p.MaxTotalValue); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(p.AllowedTargets)))
	for _, target := range p.AllowedTargets {
		buf.Write(target.Bytes())
	}
	buf.WriteByte(byte(len(p.BlockedTargets)))
	for _, target := range p.BlockedTargets {
		buf.Write(target.Bytes())
	}
	buf.WriteByte(byte(len(p.AllowedSelectors)))
	for _, sel := range p.AllowedSelectors {
		buf.Write(sel.Bytes())
	}

	var limits [16]byte
	binary.BigEndian.PutUint64(limits[:8], p.MaxTransactionCount)
	binary.BigEndian.PutUint64(limits[8:], p.CooldownSeconds)
	buf.Write(limits[:])

	return buf.Bytes(), nil
}

// DecodePermissions is the inverse of EncodePermissions. It rejects
// truncated input, nonzero padding in the address slot and trailing bytes.
func DecodePermissions(data []byte) (common.Address, Permission, error) {
	var p Permission
	var zero common.Address

	if len(data) < permissionMinLen {
		return zero, p, fmt.Errorf("sessionkeys: encoded permissions need at least %d bytes, got %d", permissionMinLen, len(data))
	}
	for _, b := range data[:12] {
		if b != 0 {
			return zero, p, fmt.Errorf("sessionkeys: nonzero padding in the session key slot")
		}
	}
	sessionKey := common.BytesToAddress(data[12:32])

	validAfter, err := readTimestamp("valid_after", data[32:64])
	if err != nil {
		return zero, p, err
	}
	validUntil, err := readTimestamp("valid_until", data[64:96])
	if err != nil {
		return zero, p, err
	}
	p.ValidAfter = validAfter
	p.ValidUntil = validUntil
	p.MaxValuePerCall = new(big.Int).SetBytes(data[96:128])
	p.MaxTotalValue = new(big.Int).SetBytes(data[128:160])

	off := permissionHeaderLen
	p.AllowedTargets, off, err = readAddressList(data, off, "allowed target")
	if err != nil {
		return zero, p, err
	}
	p.BlockedTargets, off, err = readAddressList(data, off, "blocked target")
	if err != nil {
		return zero, p, err
	}
	p.AllowedSelectors, off, err = readSelectorList(data, off)
	if err != nil {
		return zero, p, err
	}

	if len(data) != off+16 {
		return zero, p, fmt.Errorf("sessionkeys: expected a %d byte record, got %d", off+16, len(data))
	}
	p.MaxTransactionCount = binary.BigEndian.Uint64(data[off : off+8])
	p.CooldownSeconds = binary.BigEndian.Uint64(data[off+8 : off+16])

	return sessionKey, p, nil
}

// AuthorizationDigest is what the account owner signs to bind a session key
// to an account: keccak256(account || encodePermissions(sessionKey, p)).
// The encoded permissions already pin the session key itself, so one
// signature covers the key, the account and every limit.
func AuthorizationDigest(account, sessionKey common.Address, p Permission) ([32]byte, error) {
	encoded, err := EncodePermissions(sessionKey, p)
	if err != nil {
		return [32]byte{}, err
	}
	return [32]byte(crypto.Keccak256Hash(account.Bytes(), encoded)), nil
}

func checkTimestamp(field string, v int64) error {
	if v < 0 {
		return fmt.Errorf("sessionkeys: %s must not be negative, got %d", field, v)
	}
	if v > maxUint48 {
		return fmt.Errorf("sessionkeys: %s %d exceeds the uint48 range", field, v)
	}
	return nil
}

func readTimestamp(field string, slot []byte) (int64, error) {
	v := new(big.Int).SetBytes(slot)
	if v.BitLen() > 48 {
		return 0, fmt.Errorf("sessionkeys: %s exceeds the uint48 range", field)
	}
	return v.Int64(), nil
}

func writeUint256(buf *bytes.Buffer, field string, v *big.Int) error {
	if v == nil {
		buf.Write(make([]byte, 32))
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("sessionkeys: %s must not be negative", field)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("sessionkeys: %s exceeds the uint256 range", field)
	}
	buf.Write(common.LeftPadBytes(v.Bytes(), 32))
	return nil
}

func readAddressList(data []byte, off int, what string) ([]common.Address, int, error) {
	if off >= len(data) {
		return nil, off, fmt.Errorf("sessionkeys: truncated before the %s count", what)
	}
	count := int(data[off])
	off++
	if len(data) < off+20*count {
		return nil, off, fmt.Errorf("sessionkeys: truncated inside the %s list", what)
	}
	var list []common.Address
	for i := 0; i < count; i++ {
		list = append(list, common.BytesToAddress(data[off:off+20]))
		off += 20
	}
	return list, off, nil
}

func readSelectorList(data []byte, off int) ([]byte4.Selector, int, error) {
	if off >= len(data) {
		return nil, off, fmt.Errorf("sessionkeys: truncated before the selector count")
	}
	count := int(data[off])
	off++
	if len(data) < off+4*count {
		return nil, off, fmt.Errorf("sessionkeys: truncated inside the selector list")
	}
	var list []byte4.Selector
	for i := 0; i < count; i++ {
		var sel byte4.Selector
		copy(sel[:], data[off:off+4])
		list = append(list, sel)
		off += 4
	}
	return list, off, nil
}
