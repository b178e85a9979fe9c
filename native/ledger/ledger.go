package ledger

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"veritynet/core/types"
)

var (
	// ErrInsufficientFunds is returned when a debit or transfer exceeds the
	// payer's spendable balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrInsufficientAllowance is returned when TransferFrom exceeds the
	// spender's approved allowance.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	// ErrInvalidAmount is returned when an amount is nil or not positive.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// ModuleAddress derives a deterministic account address for a module-owned
// balance from its name.
func ModuleAddress(name string) [20]byte {
	var out [20]byte
	hash := ethcrypto.Keccak256([]byte(name))
	copy(out[:], hash[12:])
	return out
}

var (
	// VaultAddress holds every stake escrowed by the engines. Funds leave
	// it only through settlement claims and fee transfers.
	VaultAddress = ModuleAddress("veritynet/vault")
	// TreasuryAddress is the default destination for protocol fees.
	TreasuryAddress = ModuleAddress("veritynet/treasury")
)

var (
	totalSupplyKey  = []byte("ledger/totalSupply")
	allowancePrefix = []byte("ledger/allowance/")
)

// State is the account storage the ledger operates over.
type State interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine implements VNT balance accounting: transfers, allowances, and the
// vault movements used to escrow and settle stakes.
type Engine struct {
	state State
}

// NewEngine constructs a ledger engine bound to the supplied state backend.
func NewEngine(state State) *Engine {
	return &Engine{state: state}
}

func (e *Engine) withState() (State, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("ledger: state not configured")
	}
	return e.state, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func allowanceKey(owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+41)
	buf = append(buf, allowancePrefix...)
	buf = append(buf, owner[:]...)
	buf = append(buf, '/')
	buf = append(buf, spender[:]...)
	return buf
}

// BalanceOf returns the spendable balance of the address.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	account, err := state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.BalanceVNT), nil
}

// PendingRewards returns the unclaimed settlement total of the address.
func (e *Engine) PendingRewards(addr [20]byte) (*big.Int, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	account, err := state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.PendingRewards), nil
}

// TotalSupply returns the amount of VNT ever minted.
func (e *Engine) TotalSupply() (*big.Int, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	supply := new(big.Int)
	if _, err := state.KVGet(totalSupplyKey, supply); err != nil {
		return nil, err
	}
	return supply, nil
}

// Mint creates new VNT on the address. It is reserved for genesis grants.
func (e *Engine) Mint(addr [20]byte, amount *big.Int) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	account, err := state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account.BalanceVNT = new(big.Int).Add(account.BalanceVNT, amount)
	if err := state.PutAccount(addr[:], account); err != nil {
		return err
	}
	supply := new(big.Int)
	if _, err := state.KVGet(totalSupplyKey, supply); err != nil {
		return err
	}
	return state.KVPut(totalSupplyKey, new(big.Int).Add(supply, amount))
}

func (e *Engine) move(from, to [20]byte, amount *big.Int) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	payer, err := state.GetAccount(from[:])
	if err != nil {
		return err
	}
	if payer.BalanceVNT.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	payer.BalanceVNT = new(big.Int).Sub(payer.BalanceVNT, amount)
	if err := state.PutAccount(from[:], payer); err != nil {
		return err
	}
	payee, err := state.GetAccount(to[:])
	if err != nil {
		return err
	}
	payee.BalanceVNT = new(big.Int).Add(payee.BalanceVNT, amount)
	return state.PutAccount(to[:], payee)
}

// Transfer moves VNT between two accounts.
func (e *Engine) Transfer(from, to [20]byte, amount *big.Int) error {
	if from == to {
		return fmt.Errorf("ledger: transfer to self")
	}
	return e.move(from, to, amount)
}

// Approve sets the spender's allowance over the owner's balance. A zero
// amount clears the allowance.
func (e *Engine) Approve(owner, spender [20]byte, amount *big.Int) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return state.KVPut(allowanceKey(owner, spender), amount)
}

// Allowance returns the spender's remaining allowance over the owner's
// balance.
func (e *Engine) Allowance(owner, spender [20]byte) (*big.Int, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	allowance := new(big.Int)
	if _, err := state.KVGet(allowanceKey(owner, spender), allowance); err != nil {
		return nil, err
	}
	return allowance, nil
}

// TransferFrom moves VNT from the owner to the recipient on behalf of an
// approved spender, consuming allowance.
func (e *Engine) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance := new(big.Int)
	if _, err := state.KVGet(allowanceKey(owner, spender), allowance); err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := e.move(owner, to, amount); err != nil {
		return err
	}
	return state.KVPut(allowanceKey(owner, spender), new(big.Int).Sub(allowance, amount))
}

// Debit escrows the amount from the address into the engine vault.
func (e *Engine) Debit(addr [20]byte, amount *big.Int) error {
	return e.move(addr, VaultAddress, amount)
}

// Credit releases the amount from the engine vault to the address. A vault
// shortfall means settlement bookkeeping is broken, so it is surfaced as an
// internal error rather than ErrInsufficientFunds.
func (e *Engine) Credit(addr [20]byte, amount *big.Int) error {
	err := e.move(VaultAddress, addr, amount)
	if errors.Is(err, ErrInsufficientFunds) {
		return fmt.Errorf("ledger: vault underflow crediting %s", amount)
	}
	return err
}

// AccruePending records settlement value owed to the address; the funds stay
// in the vault until claimed.
func (e *Engine) AccruePending(addr [20]byte, amount *big.Int) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	account, err := state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account.PendingRewards = new(big.Int).Add(account.PendingRewards, amount)
	return state.PutAccount(addr[:], account)
}

// SettlePending clears claimed settlement value from the pending total.
func (e *Engine) SettlePending(addr [20]byte, amount *big.Int) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	account, err := state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	if account.PendingRewards.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: pending rewards underflow for %x", addr)
	}
	account.PendingRewards = new(big.Int).Sub(account.PendingRewards, amount)
	return state.PutAccount(addr[:], account)
}
