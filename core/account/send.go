package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-wallet/metrics"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/bundler"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
)

// ExecutionResult is the terminal outcome of one sent operation.
type ExecutionResult struct {
	// Success mirrors the relay receipt: included and not reverted.
	Success bool
	// UserOpHash identifies the operation with the relay.
	UserOpHash common.Hash
	// TxHash is the bundle transaction the operation landed in.
	TxHash common.Hash
	// Receipt is the full relay receipt, nil when the operation never made
	// it on-chain.
	Receipt *bundler.UserOperationReceipt
}

func resultFromReceipt(opHash common.Hash, receipt *bundler.UserOperationReceipt) *ExecutionResult {
	result := &ExecutionResult{
		Success:    receipt.Success,
		UserOpHash: opHash,
		Receipt:    receipt,
	}
	if receipt.Receipt != nil {
		result.TxHash = receipt.Receipt.TransactionHash
	}
	return result
}

// Send submits a fully signed operation and blocks until the relay reports
// a receipt or ctx expires. Timing out or cancelling returns
// bundler.ErrWaitTimeout with the relay hash in the result; the operation
// may still land later. A reverted operation returns its receipt alongside
// bundler.ErrExecutionReverted. Cached deployment state only moves forward
// on a confirmed success.
func (h *Handle) Send(ctx context.Context, op *userop.UserOperation) (*ExecutionResult, error) {
	c := h.controller

	opHash, err := c.relay.SendUserOperation(ctx, op, c.entryPoint)
	if err != nil {
		return nil, err
	}
	c.metrics.IncUserOp(metrics.OpSubmitted)
	c.logger.Info("user operation submitted",
		"user_op_hash", opHash.Hex(), "sender", h.address.Hex(), "nonce", op.Nonce.String())

	receipt, err := c.relay.WaitForReceipt(ctx, opHash, c.pollInterval)
	if err != nil {
		if receipt != nil {
			c.metrics.IncUserOp(metrics.OpReverted)
			c.logger.Error("user operation reverted",
				"user_op_hash", opHash.Hex(), "reason", receipt.Reason)
			return resultFromReceipt(opHash, receipt), err
		}
		c.metrics.IncUserOp(metrics.OpDropped)
		return &ExecutionResult{UserOpHash: opHash}, err
	}

	result := resultFromReceipt(opHash, receipt)
	c.metrics.IncUserOp(metrics.OpSucceeded)

	// A successful execution proves the account has code, whether or not
	// this operation was the one that deployed it.
	h.markDeployed()
	if len(op.InitCode) > 0 {
		c.metrics.IncWalletDeployment()
	}

	c.logger.Info("user operation confirmed",
		"user_op_hash", opHash.Hex(), "tx_hash", result.TxHash.Hex(), "sender", h.address.Hex())
	return result, nil
}

// Execute runs the full pipeline: build, estimate, optionally sponsor,
// sign, send. Any failure before Send leaves chain and cached state
// untouched, aside from the nonce read.
func (h *Handle) Execute(ctx context.Context, calls []Call, opts BuildOptions, s OperationSigner) (*ExecutionResult, error) {
	op, err := h.BuildOperation(ctx, calls, opts)
	if err != nil {
		return nil, err
	}
	if err := h.EstimateAndFill(ctx, op); err != nil {
		return nil, err
	}
	if opts.Sponsored {
		if err := h.SponsorOperation(ctx, op); err != nil {
			return nil, err
		}
	}
	if err := h.SignOperation(ctx, op, s); err != nil {
		return nil, err
	}
	return h.Send(ctx, op)
}
