// Package paymaster produces the paymasterAndData blob that makes an entry
// point charge an operation's gas to a sponsoring contract instead of the
// account. Two providers exist behind one interface: LocalProvider signs
// sponsorships itself with a VerifyingPaymaster key and never touches the
// network, RemoteProvider asks an ERC-7677 style service. The controller
// treats them interchangeably.
package paymaster

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
)

// GasSuggestions carries gas limits a sponsorship service wants applied to
// the operation it sponsored. Nil fields mean the service had no opinion.
type GasSuggestions struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
}

// Result is one granted sponsorship.
type Result struct {
	// PaymasterAndData goes into the operation verbatim. Re-signing the
	// operation afterwards is the caller's job since the blob is part of
	// the userOpHash.
	PaymasterAndData []byte

	// GasSuggestions is nil for providers that never adjust gas.
	GasSuggestions *GasSuggestions
}

// Provider grants gas sponsorships for unsigned operations.
type Provider interface {
	GetPaymasterData(ctx context.Context, op *userop.UserOperation, entryPoint common.Address, chainID *big.Int) (*Result, error)
}
