package bundler

import "errors"

var (
	// ErrBundlerRejected marks a relay-level rejection before on-chain
	// inclusion, carrying the relay's reason string. Resubmitting the same
	// operation will fail the same way.
	ErrBundlerRejected = errors.New("bundler: relay rejected the operation")

	// ErrWaitTimeout means the caller's deadline expired while the
	// operation was still pending. The operation may land later; waiting
	// again with the same hash is safe.
	ErrWaitTimeout = errors.New("bundler: timed out waiting for receipt")

	// ErrExecutionReverted means the operation was included on-chain and
	// its execution failed. The receipt accompanies the error.
	ErrExecutionReverted = errors.New("bundler: operation reverted on-chain")
)
