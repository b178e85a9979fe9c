package reputation

import (
	"errors"
	"math"
)

var (
	// ErrInvalidAmount marks delegation amounts that are zero.
	ErrInvalidAmount = errors.New("reputation: amount must be positive")
	// ErrUnauthorized marks delegations exceeding the caller's spare base
	// reputation.
	ErrUnauthorized = errors.New("reputation: unauthorized")
	// ErrSelfDelegation marks attempts to delegate reputation to oneself.
	ErrSelfDelegation = errors.New("reputation: cannot delegate to self")
	// ErrNotFound marks lookups of delegations that do not exist.
	ErrNotFound = errors.New("reputation: delegation not found")
	// ErrInsufficientDelegation marks undelegations exceeding the
	// outstanding delegated amount.
	ErrInsufficientDelegation = errors.New("reputation: delegation smaller than requested amount")
)

// Profile tracks a participant's reputation standing. The base score is
// signed and may go negative through penalties; delegated weight is always
// non-negative.
type Profile struct {
	Address      [20]byte
	BaseScore    int64
	DelegatedIn  uint64
	DelegatedOut uint64
	UpdatedAt    int64
}

// EffectiveScore returns base + delegated-in - delegated-out, saturating at
// the int64 bounds. The result may be negative; callers that need a voting
// weight clamp it separately.
func (p *Profile) EffectiveScore() int64 {
	if p == nil {
		return 0
	}
	score := saturatingAdd(p.BaseScore, clampToInt64(p.DelegatedIn))
	return saturatingSub(score, clampToInt64(p.DelegatedOut))
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Delegation records reputation lent from one participant to another.
// Repeated delegations between the same pair accumulate on this row.
type Delegation struct {
	Delegator [20]byte
	Delegate  [20]byte
	Amount    uint64
	Since     int64
}

// Clone returns a deep copy of the delegation.
func (d *Delegation) Clone() *Delegation {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

func clampToInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

func saturatingSub(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return saturatingAdd(a+1, math.MaxInt64)
	}
	return saturatingAdd(a, -b)
}
