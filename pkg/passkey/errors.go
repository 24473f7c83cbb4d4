package passkey

import (
	"errors"
	"fmt"
)

// Parse errors are typed so callers can tell a wrong key shape from a
// corrupt signature. Malformed cryptographic input is never repaired or
// defaulted.
var (
	ErrMalformedCOSEKey = errors.New("passkey: malformed COSE key")
	ErrCOSEKeyType      = fmt.Errorf("%w: key type is not EC2", ErrMalformedCOSEKey)
	ErrCOSEAlgorithm    = fmt.Errorf("%w: algorithm is not ES256", ErrMalformedCOSEKey)
	ErrCOSECurve        = fmt.Errorf("%w: curve is not P-256", ErrMalformedCOSEKey)
	ErrCOSECoordinate   = fmt.Errorf("%w: missing or malformed coordinate", ErrMalformedCOSEKey)

	ErrMalformedDER      = errors.New("passkey: malformed DER signature")
	ErrDERTag            = fmt.Errorf("%w: unexpected tag", ErrMalformedDER)
	ErrDERLength         = fmt.Errorf("%w: bad length", ErrMalformedDER)
	ErrDERInteger        = fmt.Errorf("%w: bad integer encoding", ErrMalformedDER)
	ErrDERIntegerTooLong = fmt.Errorf("%w: integer wider than 32 bytes", ErrMalformedDER)

	ErrMalformedAssertion = errors.New("passkey: malformed assertion")
	ErrInvalidCredential  = errors.New("passkey: invalid credential")
	ErrRPIDMismatch       = errors.New("passkey: relying party id mismatch")
	ErrSignatureInvalid   = errors.New("passkey: signature verification failed")
)
