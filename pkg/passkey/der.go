package passkey

import "fmt"

const (
	derTagSequence = 0x30
	derTagInteger  = 0x02
)

// ParseP256Signature decodes a DER ECDSA signature, a SEQUENCE of exactly
// two INTEGERs, into fixed 32-byte r and s. The single leading zero byte
// DER adds when an integer's top bit is set is stripped; values shorter
// than 32 bytes are left-padded. Long-form lengths, trailing bytes,
// non-minimal padding and integers wider than 32 bytes are rejected.
func ParseP256Signature(der []byte) (r, s [32]byte, err error) {
	if len(der) < 2 {
		return r, s, fmt.Errorf("%w: %d bytes", ErrDERLength, len(der))
	}
	if der[0] != derTagSequence {
		return r, s, fmt.Errorf("%w: expected SEQUENCE (0x30), got 0x%02x", ErrDERTag, der[0])
	}
	if der[1] > 0x7f {
		return r, s, fmt.Errorf("%w: long-form length", ErrDERLength)
	}
	if int(der[1]) != len(der)-2 {
		return r, s, fmt.Errorf("%w: sequence length %d does not match %d remaining bytes", ErrDERLength, der[1], len(der)-2)
	}

	body := der[2:]

	rBytes, rest, err := parseDERInteger(body)
	if err != nil {
		return r, s, err
	}
	sBytes, rest, err := parseDERInteger(rest)
	if err != nil {
		return r, s, err
	}
	if len(rest) != 0 {
		return r, s, fmt.Errorf("%w: %d trailing bytes after s", ErrMalformedDER, len(rest))
	}

	copy(r[32-len(rBytes):], rBytes)
	copy(s[32-len(sBytes):], sBytes)
	return r, s, nil
}

// parseDERInteger reads one INTEGER and returns its unsigned value with the
// sign-disambiguation zero removed.
func parseDERInteger(buf []byte) (value, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, fmt.Errorf("%w: truncated integer header", ErrDERLength)
	}
	if buf[0] != derTagInteger {
		return nil, nil, fmt.Errorf("%w: expected INTEGER (0x02), got 0x%02x", ErrDERTag, buf[0])
	}
	if buf[1] > 0x7f {
		return nil, nil, fmt.Errorf("%w: long-form integer length", ErrDERLength)
	}

	length := int(buf[1])
	if length == 0 {
		return nil, nil, fmt.Errorf("%w: zero-length integer", ErrDERInteger)
	}
	if len(buf) < 2+length {
		return nil, nil, fmt.Errorf("%w: integer length %d exceeds %d remaining bytes", ErrDERLength, length, len(buf)-2)
	}

	value = buf[2 : 2+length]
	rest = buf[2+length:]

	if value[0] == 0x00 {
		if length == 1 {
			// A lone zero encodes the value 0, which is never a valid
			// ECDSA component.
			return nil, nil, fmt.Errorf("%w: integer is zero", ErrDERInteger)
		}
		if value[1] < 0x80 {
			return nil, nil, fmt.Errorf("%w: non-minimal leading zero", ErrDERInteger)
		}
		value = value[1:]
	} else if value[0] >= 0x80 {
		// Top bit set without a sign pad encodes a negative number; r and s
		// are always positive.
		return nil, nil, fmt.Errorf("%w: negative integer", ErrDERInteger)
	}

	if len(value) > 32 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrDERIntegerTooLong, len(value))
	}

	return value, rest, nil
}

// FormatSignature converts a DER signature into the fixed 64-byte r||s
// layout smart account verifiers consume.
func FormatSignature(der []byte) ([]byte, error) {
	r, s, err := ParseP256Signature(der)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 64)
	copy(out[:32], r[:])
	copy(out[32:], s[:])
	return out, nil
}
