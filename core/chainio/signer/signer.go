// Package signer produces the EIP-191 personal-message signatures the
// smart account contracts verify, behind a small capability interface so
// owner keys, session keys and hardware-backed keys sign interchangeably.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	eip191Prefix = "\x19Ethereum Signed Message:\n"
)

// ErrNotExportable is returned when raw key material is requested from a
// signer that cannot hand it out.
var ErrNotExportable = errors.New("signer: key material is not exportable")

// Signer signs 32-byte digests on behalf of one address. SignDigest wraps
// the digest in the EIP-191 personal-message envelope before signing,
// matching the recover step the account contracts run on-chain.
type Signer interface {
	Address() common.Address
	SignDigest(ctx context.Context, digest [32]byte) ([]byte, error)
}

// KeyExporter is implemented by signers whose private key may leave the
// process, e.g. for session export. Hardware-backed signers do not
// implement it.
type KeyExporter interface {
	ExportPrivateKey() (*ecdsa.PrivateKey, error)
}

// ECDSASigner is an in-memory secp256k1 key.
type ECDSASigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromPrivateKey wraps an existing key.
func FromPrivateKey(key *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// FromPrivateKeyHex parses a hex-encoded private key, with or without the
// 0x prefix.
func FromPrivateKeyHex(privateKeyHex string) (*ECDSASigner, error) {
	if strings.HasPrefix(privateKeyHex, "0x") {
		privateKeyHex = privateKeyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, err
	}

	return FromPrivateKey(privateKey), nil
}

func (s *ECDSASigner) Address() common.Address {
	return s.address
}

func (s *ECDSASigner) SignDigest(ctx context.Context, digest [32]byte) ([]byte, error) {
	return SignMessage(s.key, digest[:])
}

func (s *ECDSASigner) ExportPrivateKey() (*ecdsa.PrivateKey, error) {
	return s.key, nil
}

// Generate EIP191 signature
func SignMessage(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	prefixedData := append(prefix, data...)
	hash := crypto.Keccak256Hash(prefixedData)
	sig, e := crypto.Sign(hash.Bytes(), key)
	if e != nil {
		return nil, e
	}
	// https://stackoverflow.com/questions/69762108/implementing-ethereum-personal-sign-eip-191-from-go-ethereum-gives-different-s
	sig[64] += 27

	return sig, nil
}

func SignMessageAsHex(key *ecdsa.PrivateKey, data []byte) (string, error) {
	signature, e := SignMessage(key, data)
	if e == nil {
		return common.Bytes2Hex(signature), nil
	}

	return "", e
}

// RecoverMessageSigner returns the address whose SignMessage call produced
// sig over data.
func RecoverMessageSigner(data, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signer: signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	hash := crypto.Keccak256Hash(append(prefix, data...))

	adjusted := append([]byte(nil), sig...)
	if adjusted[64] >= 27 {
		adjusted[64] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), adjusted)
	if err != nil {
		return common.Address{}, err
	}

	return crypto.PubkeyToAddress(*pub), nil
}
