package reputation

import (
	"fmt"
	"time"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	profilePrefix    = []byte("reputation/profile/")
	delegationPrefix = []byte("reputation/delegation/")
)

func profileKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", profilePrefix, addr))
}

func delegationKey(delegator, delegate [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", delegationPrefix, delegator, delegate))
}

// storedProfile is the RLP-encodable form of Profile. RLP has no signed
// integers, so the base score is persisted as magnitude plus sign.
type storedProfile struct {
	BaseMagnitude uint64
	BaseNegative  bool
	DelegatedIn   uint64
	DelegatedOut  uint64
	UpdatedAt     uint64
}

type storedDelegation struct {
	Amount uint64
	Since  uint64
}

// Ledger persists reputation profiles and delegation rows.
type Ledger struct {
	store storage
	nowFn func() int64
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{
		store: store,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

func (l *Ledger) getProfile(addr [20]byte) (*Profile, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("reputation: storage not configured")
	}
	stored := storedProfile{}
	if _, err := l.store.KVGet(profileKey(addr), &stored); err != nil {
		return nil, err
	}
	base := int64(stored.BaseMagnitude)
	if stored.BaseNegative {
		base = -base
	}
	return &Profile{
		Address:      addr,
		BaseScore:    base,
		DelegatedIn:  stored.DelegatedIn,
		DelegatedOut: stored.DelegatedOut,
		UpdatedAt:    int64(stored.UpdatedAt),
	}, nil
}

func (l *Ledger) putProfile(p *Profile) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("reputation: storage not configured")
	}
	if p == nil {
		return fmt.Errorf("reputation: profile must not be nil")
	}
	stored := storedProfile{
		DelegatedIn:  p.DelegatedIn,
		DelegatedOut: p.DelegatedOut,
	}
	if p.BaseScore < 0 {
		stored.BaseNegative = true
		stored.BaseMagnitude = uint64(-(p.BaseScore + 1)) + 1
	} else {
		stored.BaseMagnitude = uint64(p.BaseScore)
	}
	if p.UpdatedAt > 0 {
		stored.UpdatedAt = uint64(p.UpdatedAt)
	}
	return l.store.KVPut(profileKey(p.Address), &stored)
}

func (l *Ledger) getDelegation(delegator, delegate [20]byte) (*Delegation, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, fmt.Errorf("reputation: storage not configured")
	}
	stored := storedDelegation{}
	found, err := l.store.KVGet(delegationKey(delegator, delegate), &stored)
	if err != nil {
		return nil, false, err
	}
	if !found || stored.Amount == 0 {
		return nil, false, nil
	}
	return &Delegation{
		Delegator: delegator,
		Delegate:  delegate,
		Amount:    stored.Amount,
		Since:     int64(stored.Since),
	}, true, nil
}

func (l *Ledger) putDelegation(d *Delegation) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("reputation: storage not configured")
	}
	if d == nil {
		return fmt.Errorf("reputation: delegation must not be nil")
	}
	stored := storedDelegation{Amount: d.Amount}
	if d.Since > 0 {
		stored.Since = uint64(d.Since)
	}
	return l.store.KVPut(delegationKey(d.Delegator, d.Delegate), &stored)
}
