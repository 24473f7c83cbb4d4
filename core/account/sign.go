package account

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-wallet/core/chainio/aa"
	"github.com/AvaProtocol/ap-wallet/core/chainio/signer"
	"github.com/AvaProtocol/ap-wallet/core/sessionkeys"
	"github.com/AvaProtocol/ap-wallet/pkg/byte4"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
	"github.com/AvaProtocol/ap-wallet/pkg/passkey"
)

// OperationSigner produces the signature field for one built operation.
// The three implementations below cover the owner key, a delegated session
// key and a WebAuthn passkey.
type OperationSigner interface {
	SignUserOp(ctx context.Context, op *userop.UserOperation, opHash common.Hash) ([]byte, error)
}

// OwnerSigner signs with the account owner's key. The account contract
// recovers an EIP-191 signature made with the raw key, so the wrapped
// signer must implement signer.KeyExporter; a hardware-backed signer that
// cannot fails with signer.ErrNotExportable rather than producing a
// signature the contract would reject.
type OwnerSigner struct {
	Signer signer.Signer
}

func (o OwnerSigner) SignUserOp(_ context.Context, _ *userop.UserOperation, opHash common.Hash) ([]byte, error) {
	exporter, ok := o.Signer.(signer.KeyExporter)
	if !ok {
		return nil, signer.ErrNotExportable
	}
	key, err := exporter.ExportPrivateKey()
	if err != nil {
		return nil, err
	}
	return signer.SignMessage(key, opHash.Bytes())
}

// SessionSigner signs through the session key manager, which validates the
// call against the session's permission grant and advances the usage
// counters atomically with the signature. Sessions authorize one call at a
// time, so batch operations are rejected with ErrSessionBatch.
type SessionSigner struct {
	Manager *sessionkeys.Manager
	Session common.Address
}

func (s SessionSigner) SignUserOp(_ context.Context, op *userop.UserOperation, opHash common.Hash) ([]byte, error) {
	action, err := actionFromCallData(op.CallData)
	if err != nil {
		return nil, err
	}
	return s.Manager.SignWithSession(s.Session, opHash, action)
}

// actionFromCallData recovers the {target, value, selector} triple the
// session rules evaluate from packed execute calldata.
func actionFromCallData(callData []byte) (sessionkeys.Action, error) {
	if aa.IsExecuteBatch(callData) {
		return sessionkeys.Action{}, ErrSessionBatch
	}

	target, value, data, err := aa.UnpackExecute(callData)
	if err != nil {
		return sessionkeys.Action{}, err
	}

	action := sessionkeys.Action{Target: target, Value: value}
	if len(data) >= 4 {
		selector, err := byte4.SelectorFromCalldata(data)
		if err != nil {
			return sessionkeys.Action{}, err
		}
		action.Selector = &selector
	}
	return action, nil
}

// PasskeySigner attaches a WebAuthn assertion an authenticator already
// produced, verified locally against the credential and ABI-encoded the way
// the account's WebAuthn verifier expects. The caller is responsible for
// having used the operation hash as the WebAuthn challenge; the assertion
// itself cannot be minted here because the key never leaves the
// authenticator.
type PasskeySigner struct {
	Credential *passkey.Credential
	Assertion  *passkey.Assertion
}

func (p PasskeySigner) SignUserOp(_ context.Context, _ *userop.UserOperation, _ common.Hash) ([]byte, error) {
	if err := passkey.Verify(p.Assertion, p.Credential); err != nil {
		return nil, err
	}
	return passkey.EncodeSignature(p.Assertion)
}

// SignOperation fills op.Signature over the canonical hash for the
// controller's entry point and chain. A denial from the session path leaves
// the operation unsigned and is reported as-is.
func (h *Handle) SignOperation(ctx context.Context, op *userop.UserOperation, s OperationSigner) error {
	chainID, err := h.controller.ChainID(ctx)
	if err != nil {
		return err
	}
	opHash, err := op.GetUserOpHash(h.controller.entryPoint, chainID)
	if err != nil {
		return err
	}

	sig, err := s.SignUserOp(ctx, op, opHash)
	if _, isSession := s.(SessionSigner); isSession {
		switch {
		case err == nil:
			h.controller.metrics.IncSessionSignature("signed")
		case errors.Is(err, sessionkeys.ErrDenied):
			h.controller.metrics.IncSessionSignature("denied")
		}
	}
	if err != nil {
		return err
	}

	op.Signature = sig
	return nil
}
