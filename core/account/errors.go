package account

import "errors"

var (
	// ErrNoCalls is returned when an operation is built with an empty call
	// list. An empty execute would still burn gas on-chain, so it is
	// rejected before the nonce is consumed.
	ErrNoCalls = errors.New("account: an operation needs at least one call")

	// ErrSessionBatch is returned when a session key is asked to sign a
	// batch operation. Session permissions evaluate one call at a time;
	// signing a batch would bypass the per-call value and selector rules.
	ErrSessionBatch = errors.New("account: session keys sign single-call operations only")

	// ErrNoSponsor is returned when sponsorship is requested on a
	// controller wired without a paymaster provider.
	ErrNoSponsor = errors.New("account: no paymaster provider configured")

	// ErrWalletNotFound is returned by the registry for an owner/address
	// pair with no stored row.
	ErrWalletNotFound = errors.New("account: wallet not found")

	// ErrTooManyWallets is returned when deriving one more wallet would
	// push an owner past the configured cap.
	ErrTooManyWallets = errors.New("account: wallet cap for owner reached")
)
