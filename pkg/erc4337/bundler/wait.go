package bundler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultPollInterval is how often WaitForReceipt asks the relay for a
// receipt when the caller does not pick an interval.
const DefaultPollInterval = 2 * time.Second

// WaitForReceipt polls eth_getUserOperationReceipt until the operation is
// included or ctx expires. A pollInterval of zero or less selects
// DefaultPollInterval.
//
// Outcomes:
//   - inclusion with success: the receipt and a nil error
//   - inclusion with a revert: the receipt and ErrExecutionReverted
//   - ctx expiry: ErrWaitTimeout wrapping ctx.Err(); the operation may
//     still land afterwards, so re-waiting on the same hash is safe
//
// Transport blips during polling are tolerated until ctx expires; a relay
// rejection of the receipt query itself aborts the wait.
func (bc *BundlerClient) WaitForReceipt(ctx context.Context, userOpHash common.Hash, pollInterval time.Duration) (*UserOperationReceipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := bc.GetUserOperationReceipt(ctx, userOpHash)
		switch {
		case err == nil && receipt != nil:
			if !receipt.Success {
				return receipt, revertError(receipt)
			}
			return receipt, nil
		case errors.Is(err, ErrBundlerRejected):
			return nil, err
		case err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %w (last poll error: %v)", ErrWaitTimeout, ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("%w: %w", ErrWaitTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func revertError(receipt *UserOperationReceipt) error {
	if receipt.Reason == "" {
		return ErrExecutionReverted
	}
	return fmt.Errorf("%w: %s", ErrExecutionReverted, receipt.Reason)
}
