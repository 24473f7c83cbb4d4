package account

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-wallet/core/chainio/aa"
	"github.com/AvaProtocol/ap-wallet/pkg/eip1559"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
)

// dummySignature passes the relay's shape checks during gas estimation.
// Relays validate signature length, not validity, at the estimation stage.
var dummySignature = append(bytes.Repeat([]byte{0xff}, 64), 0x1c)

// Call is one target invocation inside an operation.
type Call struct {
	To common.Address
	// Value is the native amount forwarded with the call. Nil means zero.
	Value *big.Int
	Data  []byte
}

// BuildOptions tweaks operation assembly. The zero value asks for live fee
// suggestion, relay gas estimation and a self-funded operation.
type BuildOptions struct {
	// MaxFeePerGas and MaxPriorityFeePerGas replace fee resolution when
	// both are set. A lone MaxPriorityFeePerGas rides under the suggested
	// base fee headroom.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	// Gas field preloads. EstimateAndFill skips the relay only when all
	// three are set.
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int

	// NonceKey selects the entry point nonce lane, key 0 when nil.
	NonceKey *big.Int

	// Sponsored routes the operation through the configured paymaster
	// during Execute.
	Sponsored bool
}

// BuildOperation assembles an unsigned operation for the given calls. A
// single call packs execute, several pack executeBatch. InitCode is
// attached only while the account has no code. The entry point nonce is
// read fresh on every build; a cached nonce would go stale the moment
// another operation lands.
func (h *Handle) BuildOperation(ctx context.Context, calls []Call, opts BuildOptions) (*userop.UserOperation, error) {
	if len(calls) == 0 {
		return nil, ErrNoCalls
	}

	callData, err := packCalls(calls)
	if err != nil {
		return nil, err
	}

	initCode := []byte{}
	deployed, err := h.CheckDeployed(ctx)
	if err != nil {
		return nil, err
	}
	if !deployed {
		initCodeHex, err := aa.GetInitCodeForFactory(h.owner.Hex(), h.factory, h.salt)
		if err != nil {
			return nil, fmt.Errorf("account: building init code: %w", err)
		}
		initCode = common.FromHex(initCodeHex)
	}

	nonce, err := aa.GetNonce(ctx, h.controller.client, h.address, opts.NonceKey)
	if err != nil {
		return nil, fmt.Errorf("account: reading entry point nonce: %w", err)
	}

	maxFee, tip, err := h.resolveFees(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &userop.UserOperation{
		Sender:               h.address,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		CallGasLimit:         opts.CallGasLimit,
		VerificationGasLimit: opts.VerificationGasLimit,
		PreVerificationGas:   opts.PreVerificationGas,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}, nil
}

func packCalls(calls []Call) ([]byte, error) {
	if len(calls) == 1 {
		data, err := aa.PackExecute(calls[0].To, calls[0].Value, calls[0].Data)
		if err != nil {
			return nil, fmt.Errorf("account: packing execute: %w", err)
		}
		return data, nil
	}

	targets := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	datas := make([][]byte, len(calls))
	for i, call := range calls {
		targets[i] = call.To
		values[i] = call.Value
		datas[i] = call.Data
	}
	data, err := aa.PackExecuteBatch(targets, values, datas)
	if err != nil {
		return nil, fmt.Errorf("account: packing executeBatch: %w", err)
	}
	return data, nil
}

// resolveFees returns the (maxFeePerGas, maxPriorityFeePerGas) pair for the
// operation. The suggestion path fails typed with eip1559.ErrNoBlockData
// when the chain head cannot be read; a build without fee data is fatal,
// not retried.
func (h *Handle) resolveFees(ctx context.Context, opts BuildOptions) (*big.Int, *big.Int, error) {
	if opts.MaxFeePerGas != nil && opts.MaxPriorityFeePerGas != nil {
		return opts.MaxFeePerGas, opts.MaxPriorityFeePerGas, nil
	}

	maxFee, tip, err := eip1559.SuggestFee(ctx, h.controller.client)
	if err != nil {
		return nil, nil, fmt.Errorf("account: suggesting fees: %w", err)
	}
	if opts.MaxPriorityFeePerGas != nil {
		// Caller pins the tip; the suggested base fee headroom carries over.
		maxFee = new(big.Int).Add(new(big.Int).Sub(maxFee, tip), opts.MaxPriorityFeePerGas)
		tip = opts.MaxPriorityFeePerGas
	}
	return maxFee, tip, nil
}

// EstimateAndFill asks the relay for the three gas fields and writes them
// into op. It is a no-op when all three are already set. Estimation runs on
// a copy carrying a placeholder signature, so op is untouched on failure.
func (h *Handle) EstimateAndFill(ctx context.Context, op *userop.UserOperation) error {
	if op.CallGasLimit != nil && op.VerificationGasLimit != nil && op.PreVerificationGas != nil {
		return nil
	}

	probe := *op
	if len(probe.Signature) == 0 {
		probe.Signature = dummySignature
	}

	estimation, err := h.controller.relay.EstimateUserOperationGas(ctx, &probe, h.controller.entryPoint, nil)
	if err != nil {
		return err
	}

	op.CallGasLimit = estimation.CallGasLimit
	op.VerificationGasLimit = estimation.VerificationGasLimit
	op.PreVerificationGas = estimation.PreVerificationGas
	return nil
}

// SponsorOperation routes op through the configured paymaster. Gas
// suggestions coming back from the provider are applied before the
// sponsorship blob is attached, because the sponsorship signature covers
// the gas fields. Must run after estimation and before signing.
func (h *Handle) SponsorOperation(ctx context.Context, op *userop.UserOperation) error {
	c := h.controller
	if c.sponsor == nil {
		return ErrNoSponsor
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return err
	}

	result, err := c.sponsor.GetPaymasterData(ctx, op, c.entryPoint, chainID)
	if err != nil {
		return err
	}

	if s := result.GasSuggestions; s != nil {
		if s.CallGasLimit != nil {
			op.CallGasLimit = s.CallGasLimit
		}
		if s.VerificationGasLimit != nil {
			op.VerificationGasLimit = s.VerificationGasLimit
		}
		if s.PreVerificationGas != nil {
			op.PreVerificationGas = s.PreVerificationGas
		}
	}
	op.PaymasterAndData = result.PaymasterAndData
	return nil
}
