package state

import (
	"fmt"
	"math/big"

	"veritynet/core/types"
)

var accountPrefix = []byte("account/")

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return buf
}

func ensureAccountDefaults(account *types.Account) {
	if account.BalanceVNT == nil {
		account.BalanceVNT = big.NewInt(0)
	}
	if account.PendingRewards == nil {
		account.PendingRewards = big.NewInt(0)
	}
}

// GetAccount loads the account stored under the provided address. Addresses
// without prior activity yield a zeroed account.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	account := &types.Account{}
	if _, err := m.KVGet(accountKey(addr), account); err != nil {
		return nil, err
	}
	ensureAccountDefaults(account)
	return account, nil
}

// PutAccount persists the account under the provided address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	ensureAccountDefaults(account)
	return m.KVPut(accountKey(addr), account)
}
