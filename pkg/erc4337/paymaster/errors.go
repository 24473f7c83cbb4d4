package paymaster

import "errors"

var (
	// ErrSponsorshipUnavailable covers every way a remote sponsorship can
	// fall through: transport failures, service-side rejections, unusable
	// responses and gas suggestions above the configured caps. Callers may
	// treat it as non-fatal and fall back to self-funding the operation.
	ErrSponsorshipUnavailable = errors.New("paymaster: sponsorship unavailable")

	// ErrInvalidValidityWindow rejects windows a VerifyingPaymaster
	// contract could not accept: missing or negative bounds, bounds wider
	// than uint48, or validUntil not after validAfter.
	ErrInvalidValidityWindow = errors.New("paymaster: invalid validity window")

	// ErrMalformedSponsorship rejects paymasterAndData blobs that do not
	// carry the address || abi.encode(uint48,uint48) || signature layout.
	ErrMalformedSponsorship = errors.New("paymaster: malformed paymasterAndData")
)
