package passkey

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// authenticatorData is rpIdHash(32) || flags(1) || signCount(4) at minimum.
const minAuthenticatorDataLen = 37

// Credential is one passkey enrollment: an opaque authenticator id, the
// P-256 public key coordinates and the relying party domain the key is
// scoped to. Immutable once created.
type Credential struct {
	ID         []byte
	PublicKeyX *big.Int
	PublicKeyY *big.Int
	RPID       string
}

// NewCredentialFromCOSE builds a credential from the COSE key blob an
// authenticator returns at registration.
func NewCredentialFromCOSE(id []byte, rpID string, coseKey []byte) (*Credential, error) {
	x, y, err := ParseCOSEPublicKey(coseKey)
	if err != nil {
		return nil, err
	}

	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, fmt.Errorf("%w: point is not on P-256", ErrInvalidCredential)
	}

	return &Credential{
		ID:         append([]byte(nil), id...),
		PublicKeyX: x,
		PublicKeyY: y,
		RPID:       rpID,
	}, nil
}

// Assertion is the material one WebAuthn get() ceremony produces.
type Assertion struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
	Signature         []byte // DER
}

// SigningMessage reconstructs the digest the authenticator actually signed:
// sha256(authenticatorData || sha256(clientDataJSON)).
func SigningMessage(authenticatorData, clientDataJSON []byte) [32]byte {
	clientDataHash := sha256.Sum256(clientDataJSON)
	return sha256.Sum256(append(append([]byte(nil), authenticatorData...), clientDataHash[:]...))
}

// CreateVerificationCalldata packages the assertion for the P-256 verifier
// precompile: messageHash(32) || r(32) || s(32) || x(32) || y(32).
func CreateVerificationCalldata(assertion *Assertion, credential *Credential) ([]byte, error) {
	if err := checkAssertionShape(assertion); err != nil {
		return nil, err
	}

	r, s, err := ParseP256Signature(assertion.Signature)
	if err != nil {
		return nil, err
	}

	x, y, err := credentialCoordinates(credential)
	if err != nil {
		return nil, err
	}

	message := SigningMessage(assertion.AuthenticatorData, assertion.ClientDataJSON)

	out := make([]byte, 0, 160)
	out = append(out, message[:]...)
	out = append(out, r[:]...)
	out = append(out, s[:]...)
	out = append(out, x...)
	out = append(out, y...)
	return out, nil
}

// EncodeSignature ABI-encodes the assertion as the WebAuthn auth struct
// smart account verifiers expect: (bytes authenticatorData, string
// clientDataJSON, uint256 challengeIndex, uint256 typeIndex, uint256 r,
// uint256 s). The indices locate the "challenge" and "type" members inside
// the client data so the contract can check them without a JSON parser.
func EncodeSignature(assertion *Assertion) ([]byte, error) {
	if err := checkAssertionShape(assertion); err != nil {
		return nil, err
	}

	challengeIndex := bytes.Index(assertion.ClientDataJSON, []byte(`"challenge"`))
	if challengeIndex < 0 {
		return nil, fmt.Errorf(`%w: clientDataJSON lacks a "challenge" member`, ErrMalformedAssertion)
	}
	typeIndex := bytes.Index(assertion.ClientDataJSON, []byte(`"type"`))
	if typeIndex < 0 {
		return nil, fmt.Errorf(`%w: clientDataJSON lacks a "type" member`, ErrMalformedAssertion)
	}

	r, s, err := ParseP256Signature(assertion.Signature)
	if err != nil {
		return nil, err
	}

	authTy, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "authenticatorData", Type: "bytes"},
		{Name: "clientDataJSON", Type: "string"},
		{Name: "challengeIndex", Type: "uint256"},
		{Name: "typeIndex", Type: "uint256"},
		{Name: "r", Type: "uint256"},
		{Name: "s", Type: "uint256"},
	})
	if err != nil {
		return nil, err
	}

	args := abi.Arguments{{Type: authTy}}
	return args.Pack(struct {
		AuthenticatorData []byte
		ClientDataJSON    string
		ChallengeIndex    *big.Int
		TypeIndex         *big.Int
		R                 *big.Int
		S                 *big.Int
	}{
		AuthenticatorData: assertion.AuthenticatorData,
		ClientDataJSON:    string(assertion.ClientDataJSON),
		ChallengeIndex:    big.NewInt(int64(challengeIndex)),
		TypeIndex:         big.NewInt(int64(typeIndex)),
		R:                 new(big.Int).SetBytes(r[:]),
		S:                 new(big.Int).SetBytes(s[:]),
	})
}

// Verify checks the assertion locally: the credential point must be on
// P-256, the relying party hash must match when the credential carries an
// RPID, and the DER signature must verify over the signing message. Used by
// tests and pre-flight checks before anything goes on-chain.
func Verify(assertion *Assertion, credential *Credential) error {
	if err := checkAssertionShape(assertion); err != nil {
		return err
	}

	if credential.RPID != "" {
		rpIDHash := sha256.Sum256([]byte(credential.RPID))
		if !bytes.Equal(rpIDHash[:], assertion.AuthenticatorData[:32]) {
			return ErrRPIDMismatch
		}
	}

	x, y := credential.PublicKeyX, credential.PublicKeyY
	if x == nil || y == nil || !elliptic.P256().IsOnCurve(x, y) {
		return fmt.Errorf("%w: point is not on P-256", ErrInvalidCredential)
	}

	r, s, err := ParseP256Signature(assertion.Signature)
	if err != nil {
		return err
	}

	message := SigningMessage(assertion.AuthenticatorData, assertion.ClientDataJSON)
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	if !ecdsa.Verify(pub, message[:], new(big.Int).SetBytes(r[:]), new(big.Int).SetBytes(s[:])) {
		return ErrSignatureInvalid
	}

	return nil
}

func checkAssertionShape(assertion *Assertion) error {
	if assertion == nil {
		return fmt.Errorf("%w: nil assertion", ErrMalformedAssertion)
	}
	if len(assertion.AuthenticatorData) < minAuthenticatorDataLen {
		return fmt.Errorf("%w: authenticatorData is %d bytes, want at least %d",
			ErrMalformedAssertion, len(assertion.AuthenticatorData), minAuthenticatorDataLen)
	}
	if len(assertion.ClientDataJSON) == 0 {
		return fmt.Errorf("%w: empty clientDataJSON", ErrMalformedAssertion)
	}
	return nil
}

func credentialCoordinates(credential *Credential) (x, y []byte, err error) {
	if credential == nil || credential.PublicKeyX == nil || credential.PublicKeyY == nil {
		return nil, nil, fmt.Errorf("%w: missing public key", ErrInvalidCredential)
	}
	if credential.PublicKeyX.BitLen() > 256 || credential.PublicKeyY.BitLen() > 256 {
		return nil, nil, fmt.Errorf("%w: coordinate wider than 32 bytes", ErrInvalidCredential)
	}

	x = make([]byte, 32)
	y = make([]byte, 32)
	credential.PublicKeyX.FillBytes(x)
	credential.PublicKeyY.FillBytes(y)
	return x, y, nil
}
