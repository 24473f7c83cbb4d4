// Package model holds the storage-facing records shared by the controller
// and the CLI.
package model

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SmartWallet is one counterfactual account row: who owns it, where it
// lives, and the factory/salt pair that derived it. IsHidden keeps a wallet
// out of listings without deleting its history.
type SmartWallet struct {
	Owner    *common.Address `json:"owner"`
	Address  *common.Address `json:"address"`
	Factory  *common.Address `json:"factory,omitempty"`
	Salt     *big.Int        `json:"salt"`
	IsHidden bool            `json:"is_hidden,omitempty"`
}

// NewSmartWallet copies the inputs into a fresh row. Salt defaults to zero
// so a stored row always round-trips with an explicit salt.
func NewSmartWallet(owner, address, factory common.Address, salt *big.Int) *SmartWallet {
	if salt == nil {
		salt = big.NewInt(0)
	}
	o, a, f := owner, address, factory
	return &SmartWallet{
		Owner:   &o,
		Address: &a,
		Factory: &f,
		Salt:    new(big.Int).Set(salt),
	}
}

func (w *SmartWallet) ToJSON() ([]byte, error) {
	return json.Marshal(w)
}

func (w *SmartWallet) FromStorageData(body []byte) error {
	err := json.Unmarshal(body, w)

	return err
}
