package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/AvaProtocol/ap-wallet/model"
	"github.com/AvaProtocol/ap-wallet/storage"
)

const walletPrefix = "w"

// Registry persists the wallets an owner has derived so listings survive
// restarts. Rows live at "w:<owner>:<address>" with both addresses
// hex-lowercased, keeping one owner's wallets in a single prefix scan.
type Registry struct {
	db storage.Storage
}

func NewRegistry(db storage.Storage) *Registry {
	return &Registry{db: db}
}

func walletKey(owner, address common.Address) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s",
		walletPrefix, strings.ToLower(owner.Hex()), strings.ToLower(address.Hex())))
}

func ownerPrefix(owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s:%s:", walletPrefix, strings.ToLower(owner.Hex())))
}

// SaveWallet upserts one row.
func (r *Registry) SaveWallet(w *model.SmartWallet) error {
	if w == nil || w.Owner == nil || w.Address == nil {
		return fmt.Errorf("account: a wallet row needs owner and address")
	}
	body, err := w.ToJSON()
	if err != nil {
		return err
	}
	return r.db.Set(walletKey(*w.Owner, *w.Address), body)
}

// GetWallet loads one row, ErrWalletNotFound when absent. Hidden rows are
// returned; hiding only affects listings.
func (r *Registry) GetWallet(owner, address common.Address) (*model.SmartWallet, error) {
	body, err := r.db.GetKey(walletKey(owner, address))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	w := &model.SmartWallet{}
	if err := w.FromStorageData(body); err != nil {
		return nil, fmt.Errorf("account: corrupt wallet row for %s: %w", address.Hex(), err)
	}
	return w, nil
}

// ListWallets returns the owner's rows with hidden ones filtered out.
func (r *Registry) ListWallets(owner common.Address) ([]*model.SmartWallet, error) {
	items, err := r.db.GetByPrefix(ownerPrefix(owner))
	if err != nil {
		return nil, err
	}

	wallets := make([]*model.SmartWallet, 0, len(items))
	for _, item := range items {
		w := &model.SmartWallet{}
		if err := w.FromStorageData(item.Value); err != nil {
			return nil, fmt.Errorf("account: corrupt wallet row at %s: %w", item.Key, err)
		}
		wallets = append(wallets, w)
	}

	return lo.Filter(wallets, func(w *model.SmartWallet, _ int) bool {
		return !w.IsHidden
	}), nil
}

// CountWallets counts every row for owner, hidden included, without loading
// values.
func (r *Registry) CountWallets(owner common.Address) (int64, error) {
	return r.db.CountKeysByPrefix(ownerPrefix(owner))
}

// SetHidden flips the hidden flag on an existing row.
func (r *Registry) SetHidden(owner, address common.Address, hidden bool) error {
	w, err := r.GetWallet(owner, address)
	if err != nil {
		return err
	}
	w.IsHidden = hidden
	return r.SaveWallet(w)
}
