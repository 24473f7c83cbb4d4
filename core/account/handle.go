package account

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// DeploymentState is what the controller knows about an account's on-chain
// code.
type DeploymentState int32

const (
	// DeploymentUnknown means no code lookup has happened yet.
	DeploymentUnknown DeploymentState = iota
	// DeploymentNotDeployed means the most recent lookup saw no code.
	DeploymentNotDeployed
	// DeploymentDeployed is terminal. Once code has been observed, or a
	// send has landed a deployment, the handle never downgrades.
	DeploymentDeployed
)

func (s DeploymentState) String() string {
	switch s {
	case DeploymentNotDeployed:
		return "not_deployed"
	case DeploymentDeployed:
		return "deployed"
	default:
		return "unknown"
	}
}

// Handle is one smart account under the controller: the owner/factory/salt
// triple, the memoized counterfactual address and the cached deployment
// state.
//
// Two goroutines racing through Execute on a fresh account may both attach
// initCode. The entry point deploys exactly once and the second attempt is
// a validation no-op, so the state is cached without a lock.
type Handle struct {
	controller *Controller

	owner   common.Address
	factory common.Address
	salt    *big.Int
	address common.Address

	deployment atomic.Int32
}

func (h *Handle) Owner() common.Address {
	return h.owner
}

// Address is the CREATE2 counterfactual address, valid before deployment.
func (h *Handle) Address() common.Address {
	return h.address
}

func (h *Handle) Salt() *big.Int {
	return new(big.Int).Set(h.salt)
}

// DeploymentState returns the cached state without touching the chain.
func (h *Handle) DeploymentState() DeploymentState {
	return DeploymentState(h.deployment.Load())
}

// CheckDeployed refreshes the deployment state with a code lookup. A handle
// already pinned Deployed answers true without querying.
func (h *Handle) CheckDeployed(ctx context.Context) (bool, error) {
	if h.DeploymentState() == DeploymentDeployed {
		return true, nil
	}

	code, err := h.controller.client.CodeAt(ctx, h.address, nil)
	if err != nil {
		return false, fmt.Errorf("account: reading code at %s: %w", h.address.Hex(), err)
	}
	if len(code) > 0 {
		h.markDeployed()
		return true, nil
	}

	// Only an Unknown handle moves to NotDeployed; if a concurrent lookup
	// or send observed a deployment in the meantime, that observation wins.
	h.deployment.CompareAndSwap(int32(DeploymentUnknown), int32(DeploymentNotDeployed))
	return false, nil
}

func (h *Handle) markDeployed() {
	h.deployment.Store(int32(DeploymentDeployed))
}
