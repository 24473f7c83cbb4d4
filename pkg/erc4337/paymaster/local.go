package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-wallet/core/chainio/signer"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
)

const (
	// Negative skew on validAfter tolerates clock drift between this
	// process and the bundler's node.
	clockSkewSeconds = 120

	// DefaultSponsorshipTTL bounds how long a signed sponsorship stays
	// submittable when the provider is constructed without a duration.
	DefaultSponsorshipTTL = 10 * time.Minute

	// paymasterAndData layout: address(20) || abi.encode(uint48 validUntil,
	// uint48 validAfter)(64) || signature(65).
	windowOffset     = 20
	signatureOffset  = 84
	paymasterBlobLen = 149
)

// ValidityWindow is the unix-timestamp interval a sponsorship is valid in.
// Both bounds must fit in uint48, the width the verifying contract decodes.
type ValidityWindow struct {
	ValidUntil *big.Int
	ValidAfter *big.Int
}

// ValidityWindowForDuration builds a window that opened clockSkewSeconds ago
// and closes d from now.
func ValidityWindowForDuration(d time.Duration) ValidityWindow {
	now := time.Now().Unix()
	return ValidityWindow{
		ValidUntil: big.NewInt(now + int64(d.Seconds())),
		ValidAfter: big.NewInt(now - clockSkewSeconds),
	}
}

func (w ValidityWindow) validate() error {
	if w.ValidUntil == nil || w.ValidAfter == nil {
		return fmt.Errorf("%w: missing bound", ErrInvalidValidityWindow)
	}
	if w.ValidUntil.Sign() < 0 || w.ValidAfter.Sign() < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrInvalidValidityWindow)
	}
	if w.ValidUntil.BitLen() > 48 || w.ValidAfter.BitLen() > 48 {
		return fmt.Errorf("%w: timestamp wider than uint48", ErrInvalidValidityWindow)
	}
	if w.ValidUntil.Cmp(w.ValidAfter) <= 0 {
		return fmt.Errorf("%w: validUntil %s is not after validAfter %s",
			ErrInvalidValidityWindow, w.ValidUntil, w.ValidAfter)
	}
	return nil
}

// PaymasterHash computes the digest a VerifyingPaymaster checks sponsorship
// signatures against: keccak256(abi.encode(sender, nonce, keccak(initCode),
// keccak(callData), callGasLimit, verificationGasLimit, preVerificationGas,
// maxFeePerGas, maxPriorityFeePerGas, chainID, paymaster, validUntil,
// validAfter)). The contract applies the EIP-191 prefix on top of this hash
// during validation, so signers must do the same.
func PaymasterHash(op *userop.UserOperation, chainID *big.Int, paymaster common.Address, window ValidityWindow) (common.Hash, error) {
	if err := window.validate(); err != nil {
		return common.Hash{}, err
	}

	packed, err := op.PackForSignature()
	if err != nil {
		return common.Hash{}, err
	}

	if chainID == nil {
		chainID = big.NewInt(0)
	}

	// The last word of the canonical packing covers paymasterAndData. This
	// hash feeds the blob that embeds its own signature, so that word is
	// dropped and the sponsorship terms take its place.
	preimage := make([]byte, 0, len(packed)+96)
	preimage = append(preimage, packed[:len(packed)-32]...)
	preimage = append(preimage, common.LeftPadBytes(chainID.Bytes(), 32)...)
	preimage = append(preimage, common.LeftPadBytes(paymaster.Bytes(), 32)...)
	preimage = append(preimage, common.LeftPadBytes(window.ValidUntil.Bytes(), 32)...)
	preimage = append(preimage, common.LeftPadBytes(window.ValidAfter.Bytes(), 32)...)

	return crypto.Keccak256Hash(preimage), nil
}

// LocalProvider signs sponsorships with a VerifyingPaymaster's signing key.
// It performs no network I/O; the hash the contract would compute on-chain
// is reproduced locally. The entry point passed to GetPaymasterData is
// ignored because the contract scopes the hash to itself and the chain.
type LocalProvider struct {
	paymaster common.Address
	signer    signer.Signer
	validFor  time.Duration
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider returns a provider signing for the given paymaster
// contract. Windows close validFor from signing time; non-positive values
// fall back to DefaultSponsorshipTTL.
func NewLocalProvider(paymaster common.Address, s signer.Signer, validFor time.Duration) *LocalProvider {
	if validFor <= 0 {
		validFor = DefaultSponsorshipTTL
	}
	return &LocalProvider{paymaster: paymaster, signer: s, validFor: validFor}
}

func (p *LocalProvider) GetPaymasterData(ctx context.Context, op *userop.UserOperation, _ common.Address, chainID *big.Int) (*Result, error) {
	return p.GetPaymasterDataWithWindow(ctx, op, chainID, ValidityWindowForDuration(p.validFor))
}

// GetPaymasterDataWithWindow signs a sponsorship for an explicit window
// instead of one derived from the provider's TTL.
func (p *LocalProvider) GetPaymasterDataWithWindow(ctx context.Context, op *userop.UserOperation, chainID *big.Int, window ValidityWindow) (*Result, error) {
	hash, err := PaymasterHash(op, chainID, p.paymaster, window)
	if err != nil {
		return nil, err
	}

	sig, err := p.signer.SignDigest(ctx, [32]byte(hash))
	if err != nil {
		return nil, fmt.Errorf("paymaster: signing sponsorship: %w", err)
	}

	blob, err := packPaymasterAndData(p.paymaster, window, sig)
	if err != nil {
		return nil, err
	}
	return &Result{PaymasterAndData: blob}, nil
}

func uint48Arguments() abi.Arguments {
	uint48Ty := abi.Type{T: abi.UintTy, Size: 48}
	return abi.Arguments{{Type: uint48Ty}, {Type: uint48Ty}}
}

func packPaymasterAndData(paymaster common.Address, window ValidityWindow, sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("paymaster: signer produced a %d-byte signature, want %d", len(sig), crypto.SignatureLength)
	}

	// The contract reads the window with abi.decode(paymasterAndData[20:84],
	// (uint48, uint48)), so the two values occupy full 32-byte words.
	encodedWindow, err := uint48Arguments().Pack(window.ValidUntil, window.ValidAfter)
	if err != nil {
		return nil, fmt.Errorf("paymaster: encoding validity window: %w", err)
	}

	blob := make([]byte, 0, paymasterBlobLen)
	blob = append(blob, paymaster.Bytes()...)
	blob = append(blob, encodedWindow...)
	blob = append(blob, sig...)
	return blob, nil
}

// ParsePaymasterAndData splits a VerifyingPaymaster blob back into its
// parts. The inverse of what LocalProvider assembles.
func ParsePaymasterAndData(data []byte) (paymaster common.Address, window ValidityWindow, sig []byte, err error) {
	if len(data) != paymasterBlobLen {
		return common.Address{}, ValidityWindow{}, nil,
			fmt.Errorf("%w: %d bytes, want %d", ErrMalformedSponsorship, len(data), paymasterBlobLen)
	}

	paymaster = common.BytesToAddress(data[:windowOffset])
	window = ValidityWindow{
		ValidUntil: new(big.Int).SetBytes(data[windowOffset : windowOffset+32]),
		ValidAfter: new(big.Int).SetBytes(data[windowOffset+32 : signatureOffset]),
	}
	if err := window.validate(); err != nil {
		return common.Address{}, ValidityWindow{}, nil, err
	}

	sig = append([]byte(nil), data[signatureOffset:]...)
	return paymaster, window, sig, nil
}
