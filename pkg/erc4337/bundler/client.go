// Package bundler is a transport-level gateway to an ERC-4337 relay. It
// submits signed operations, asks for gas estimates and polls for receipts.
// The client is stateless and performs no retries of its own; retry policy
// belongs to the caller, and the error taxonomy in errors.go tells the
// caller which failures are worth retrying.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
)

// BundlerClient talks to one ERC-4337 bundler RPC endpoint.
type BundlerClient struct {
	client *rpc.Client
	url    string
}

// NewBundlerClient connects to the given URL.
func NewBundlerClient(url string) (*BundlerClient, error) {
	// DialHTTP is more compatible with HTTP-based bundler endpoints than
	// Dial, and still supports other protocols such as WebSocket.
	c, err := rpc.DialHTTP(url)
	if err != nil {
		return nil, fmt.Errorf("bundler: creating client: %w", err)
	}
	return &BundlerClient{client: c, url: url}, nil
}

// Close closes the underlying RPC client connection.
func (bc *BundlerClient) Close() {
	bc.client.Close()
}

// URL returns the endpoint this client was dialed against.
func (bc *BundlerClient) URL() string {
	return bc.url
}

// call wraps CallContext so that relay-side rejections (the relay answered
// with a JSON-RPC error object) come back as ErrBundlerRejected while
// transport failures pass through untyped.
func (bc *BundlerClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	err := bc.client.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: code %d: %s", ErrBundlerRejected, method, rpcErr.ErrorCode(), rpcErr.Error())
	}
	return err
}

// SendUserOperation submits a fully signed operation via
// eth_sendUserOperation and returns the relay's userOpHash.
func (bc *BundlerClient) SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error) {
	var userOpHash common.Hash
	// Some relays insist on an EIP-55 checksummed entry point address, so
	// the string form goes on the wire rather than the raw address bytes.
	err := bc.call(ctx, &userOpHash, "eth_sendUserOperation", op, entryPoint.Hex())
	if err != nil {
		return common.Hash{}, err
	}
	return userOpHash, nil
}

// EstimateUserOperationGas asks the relay for the three gas-limit fields of
// an unsigned operation. The signature may be absent or semi-valid; relays
// only check its length. The optional override map has eth_call state
// override semantics.
func (bc *BundlerClient) EstimateUserOperationGas(
	ctx context.Context,
	op *userop.UserOperation,
	entryPoint common.Address,
	override map[string]any,
) (*GasEstimation, error) {
	if override == nil {
		override = map[string]any{}
	}

	var raw map[string]interface{}
	if err := bc.call(ctx, &raw, "eth_estimateUserOperationGas", op, entryPoint.Hex(), override); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("bundler: relay returned an empty gas estimate")
	}

	estimation := &GasEstimation{}
	if err := decodeWire(raw, estimation); err != nil {
		return nil, fmt.Errorf("bundler: decoding gas estimate: %w", err)
	}
	if estimation.PreVerificationGas == nil || estimation.VerificationGasLimit == nil || estimation.CallGasLimit == nil {
		return nil, fmt.Errorf("bundler: incomplete gas estimate %v", raw)
	}
	return estimation, nil
}

// GetUserOperationReceipt fetches the receipt for a submitted operation.
// A nil receipt with a nil error means the operation is not included yet.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	var raw map[string]interface{}
	if err := bc.call(ctx, &raw, "eth_getUserOperationReceipt", userOpHash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	receipt := &UserOperationReceipt{}
	if err := decodeWire(raw, receipt); err != nil {
		return nil, fmt.Errorf("bundler: decoding receipt: %w", err)
	}
	return receipt, nil
}

// GetUserOperationByHash looks up a submitted operation. Nil means the
// relay does not know the hash; a lookup with nil block fields is pending.
func (bc *BundlerClient) GetUserOperationByHash(ctx context.Context, userOpHash common.Hash) (*UserOperationLookup, error) {
	var raw map[string]interface{}
	if err := bc.call(ctx, &raw, "eth_getUserOperationByHash", userOpHash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	lookup := &UserOperationLookup{}
	if err := decodeWire(raw, lookup); err != nil {
		return nil, fmt.Errorf("bundler: decoding operation lookup: %w", err)
	}
	return lookup, nil
}

// SupportedEntryPoints lists the entry point contracts the relay accepts
// operations for, most preferred first.
func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entryPoints []common.Address
	if err := bc.call(ctx, &entryPoints, "eth_supportedEntryPoints"); err != nil {
		return nil, err
	}
	return entryPoints, nil
}

// ChainID asks the relay which chain it serves. Prefer the static
// KnownEndpoints table when the endpoint is a known public relay.
func (bc *BundlerClient) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := bc.call(ctx, &result, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}
