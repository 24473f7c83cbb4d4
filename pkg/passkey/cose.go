// Package passkey decodes WebAuthn credential material and prepares it for
// on-chain P-256 verification. The COSE and DER decoders are deliberately
// narrow: they accept exactly the shapes a P-256 authenticator emits and
// reject everything else with a typed error. General CBOR or ASN.1 input
// does not belong here.
package passkey

import (
	"fmt"
	"math/big"
)

// COSE constants for the one key shape this package accepts.
const (
	coseKeyKty = 1
	coseKeyAlg = 3
	coseKeyCrv = -1
	coseKeyX   = -2
	coseKeyY   = -3

	coseKtyEC2   = 2
	coseAlgES256 = -7
	coseCrvP256  = 1
)

// CBOR major types used by that shape.
const (
	cborMajorUint  = 0
	cborMajorNeg   = 1
	cborMajorBytes = 2
	cborMajorMap   = 5
)

// ParseCOSEPublicKey decodes a COSE_Key holding a P-256 public key and
// returns its affine coordinates. The key must be an EC2/ES256/P-256 map
// with both 32-byte coordinates present ({1:2, 3:-7, -1:1, -2:x, -3:y});
// unknown map keys, duplicate entries and trailing bytes are all rejected.
func ParseCOSEPublicKey(data []byte) (x, y *big.Int, err error) {
	r := &cborReader{buf: data}

	major, count, err := r.head()
	if err != nil {
		return nil, nil, err
	}
	if major != cborMajorMap {
		return nil, nil, fmt.Errorf("%w: expected map, got major type %d", ErrMalformedCOSEKey, major)
	}

	var (
		xBytes, yBytes []byte
		seen           = map[int64]bool{}
	)

	for i := uint64(0); i < count; i++ {
		key, err := r.int()
		if err != nil {
			return nil, nil, err
		}
		if seen[key] {
			return nil, nil, fmt.Errorf("%w: duplicate map key %d", ErrMalformedCOSEKey, key)
		}
		seen[key] = true

		switch key {
		case coseKeyKty:
			v, err := r.int()
			if err != nil {
				return nil, nil, err
			}
			if v != coseKtyEC2 {
				return nil, nil, fmt.Errorf("%w: got kty %d", ErrCOSEKeyType, v)
			}
		case coseKeyAlg:
			v, err := r.int()
			if err != nil {
				return nil, nil, err
			}
			if v != coseAlgES256 {
				return nil, nil, fmt.Errorf("%w: got alg %d", ErrCOSEAlgorithm, v)
			}
		case coseKeyCrv:
			v, err := r.int()
			if err != nil {
				return nil, nil, err
			}
			if v != coseCrvP256 {
				return nil, nil, fmt.Errorf("%w: got crv %d", ErrCOSECurve, v)
			}
		case coseKeyX:
			if xBytes, err = r.coordinate(); err != nil {
				return nil, nil, err
			}
		case coseKeyY:
			if yBytes, err = r.coordinate(); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, fmt.Errorf("%w: unexpected map key %d", ErrMalformedCOSEKey, key)
		}
	}

	if r.off != len(r.buf) {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedCOSEKey, len(r.buf)-r.off)
	}
	if !seen[coseKeyKty] || !seen[coseKeyCrv] {
		return nil, nil, fmt.Errorf("%w: missing kty or crv", ErrMalformedCOSEKey)
	}
	if xBytes == nil {
		return nil, nil, fmt.Errorf("%w: x (-2) absent", ErrCOSECoordinate)
	}
	if yBytes == nil {
		return nil, nil, fmt.Errorf("%w: y (-3) absent", ErrCOSECoordinate)
	}

	return new(big.Int).SetBytes(xBytes), new(big.Int).SetBytes(yBytes), nil
}

// cborReader walks exactly the CBOR subset a COSE EC2 key uses: small maps,
// small integers and definite-length byte strings.
type cborReader struct {
	buf []byte
	off int
}

// head reads a major type and its argument. Only immediate arguments
// (0..23) and the one-byte extension (24) appear in the accepted shape;
// anything longer is rejected.
func (r *cborReader) head() (major byte, value uint64, err error) {
	if r.off >= len(r.buf) {
		return 0, 0, fmt.Errorf("%w: truncated input", ErrMalformedCOSEKey)
	}

	b := r.buf[r.off]
	r.off++

	major = b >> 5
	info := b & 0x1f

	switch {
	case info < 24:
		return major, uint64(info), nil
	case info == 24:
		if r.off >= len(r.buf) {
			return 0, 0, fmt.Errorf("%w: truncated argument", ErrMalformedCOSEKey)
		}
		v := uint64(r.buf[r.off])
		r.off++
		return major, v, nil
	default:
		return 0, 0, fmt.Errorf("%w: unsupported additional info %d", ErrMalformedCOSEKey, info)
	}
}

func (r *cborReader) int() (int64, error) {
	major, v, err := r.head()
	if err != nil {
		return 0, err
	}
	switch major {
	case cborMajorUint:
		return int64(v), nil
	case cborMajorNeg:
		return -1 - int64(v), nil
	default:
		return 0, fmt.Errorf("%w: expected integer, got major type %d", ErrMalformedCOSEKey, major)
	}
}

// coordinate reads a byte string that must be exactly 32 bytes, the P-256
// affine coordinate width.
func (r *cborReader) coordinate() ([]byte, error) {
	major, length, err := r.head()
	if err != nil {
		return nil, err
	}
	if major != cborMajorBytes {
		return nil, fmt.Errorf("%w: expected byte string, got major type %d", ErrCOSECoordinate, major)
	}
	if length != 32 {
		return nil, fmt.Errorf("%w: coordinate must be 32 bytes, got %d", ErrCOSECoordinate, length)
	}
	if r.off+32 > len(r.buf) {
		return nil, fmt.Errorf("%w: truncated coordinate", ErrCOSECoordinate)
	}

	out := r.buf[r.off : r.off+32]
	r.off += 32
	return out, nil
}
