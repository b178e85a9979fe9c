package types

import "math/big"

// Account is the balance-bearing record stored per address. Reputation
// lives in its own profile record; the account only tracks spendable VNT,
// the running total of unclaimed settlement payouts, and a nonce for
// replay protection on the RPC surface.
type Account struct {
	Nonce          uint64   `json:"nonce"`
	BalanceVNT     *big.Int `json:"balanceVNT"`
	PendingRewards *big.Int `json:"pendingRewards"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.BalanceVNT != nil {
		clone.BalanceVNT = new(big.Int).Set(a.BalanceVNT)
	}
	if a.PendingRewards != nil {
		clone.PendingRewards = new(big.Int).Set(a.PendingRewards)
	}
	return clone
}
