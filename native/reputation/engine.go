package reputation

import (
	"fmt"

	"veritynet/core/events"
	"veritynet/native/tally"
)

const maxBps = 10_000

// Engine exposes reputation reads and mutations on top of the ledger. Score
// deltas and delegation moves are published through the configured emitter.
type Engine struct {
	ledger  *Ledger
	emitter events.Emitter
}

// NewEngine constructs an engine around the supplied ledger.
func NewEngine(ledger *Ledger) *Engine {
	return &Engine{ledger: ledger, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the sink used for reputation events. Passing nil
// restores the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// SetNowFunc overrides the ledger's wall clock, primarily for deterministic
// tests. Passing nil restores real time.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil || e.ledger == nil {
		return
	}
	e.ledger.SetNowFunc(now)
}

func (e *Engine) withLedger() (*Ledger, error) {
	if e == nil || e.ledger == nil {
		return nil, fmt.Errorf("reputation: ledger not configured")
	}
	return e.ledger, nil
}

// Profile returns the stored profile for addr. Unknown addresses yield a
// zero-valued profile rather than an error.
func (e *Engine) Profile(addr [20]byte) (*Profile, error) {
	ledger, err := e.withLedger()
	if err != nil {
		return nil, err
	}
	return ledger.getProfile(addr)
}

// EffectiveScore returns the base score adjusted for delegation flows.
func (e *Engine) EffectiveScore(addr [20]byte) (int64, error) {
	profile, err := e.Profile(addr)
	if err != nil {
		return 0, err
	}
	return profile.EffectiveScore(), nil
}

// BaseScore returns the undelegated base score for addr.
func (e *Engine) BaseScore(addr [20]byte) (int64, error) {
	profile, err := e.Profile(addr)
	if err != nil {
		return 0, err
	}
	return profile.BaseScore, nil
}

// Weight returns the non-negative voting weight derived from the effective
// score.
func (e *Engine) Weight(addr [20]byte) (uint64, error) {
	score, err := e.EffectiveScore(addr)
	if err != nil {
		return 0, err
	}
	return tally.ClampScore(score), nil
}

// Delegation returns the active delegation row between the pair, if any.
func (e *Engine) Delegation(delegator, delegate [20]byte) (*Delegation, bool, error) {
	ledger, err := e.withLedger()
	if err != nil {
		return nil, false, err
	}
	return ledger.getDelegation(delegator, delegate)
}

// Delegate moves amount of delegator's base score capacity to delegate.
// The total delegated out of an address may never exceed the positive part
// of its base score at the time of the call.
func (e *Engine) Delegate(delegator, delegate [20]byte, amount uint64) error {
	ledger, err := e.withLedger()
	if err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if delegator == delegate {
		return ErrSelfDelegation
	}
	from, err := ledger.getProfile(delegator)
	if err != nil {
		return err
	}
	capacity := uint64(0)
	if from.BaseScore > 0 {
		capacity = uint64(from.BaseScore)
	}
	available := uint64(0)
	if from.DelegatedOut < capacity {
		available = capacity - from.DelegatedOut
	}
	if amount > available {
		return ErrUnauthorized
	}
	to, err := ledger.getProfile(delegate)
	if err != nil {
		return err
	}
	if to.DelegatedIn+amount < to.DelegatedIn {
		return fmt.Errorf("reputation: delegated-in overflow for %x", delegate)
	}
	row, found, err := ledger.getDelegation(delegator, delegate)
	if err != nil {
		return err
	}
	now := ledger.now()
	if !found {
		row = &Delegation{Delegator: delegator, Delegate: delegate, Since: now}
	}
	if row.Amount+amount < row.Amount {
		return fmt.Errorf("reputation: delegation overflow between %x and %x", delegator, delegate)
	}
	row.Amount += amount
	from.DelegatedOut += amount
	from.UpdatedAt = now
	to.DelegatedIn += amount
	to.UpdatedAt = now
	if err := ledger.putDelegation(row); err != nil {
		return err
	}
	if err := ledger.putProfile(from); err != nil {
		return err
	}
	if err := ledger.putProfile(to); err != nil {
		return err
	}
	e.emit(events.Delegated{
		Delegator: delegator,
		Delegate:  delegate,
		Amount:    amount,
		Total:     row.Amount,
	})
	return nil
}

// Undelegate returns amount of previously delegated score back to the
// delegator. Withdrawing more than the pair's active delegation fails with
// ErrInsufficientDelegation.
func (e *Engine) Undelegate(delegator, delegate [20]byte, amount uint64) error {
	ledger, err := e.withLedger()
	if err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	row, found, err := ledger.getDelegation(delegator, delegate)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if amount > row.Amount {
		return ErrInsufficientDelegation
	}
	from, err := ledger.getProfile(delegator)
	if err != nil {
		return err
	}
	to, err := ledger.getProfile(delegate)
	if err != nil {
		return err
	}
	if from.DelegatedOut < amount {
		return fmt.Errorf("reputation: delegated-out underflow for %x", delegator)
	}
	if to.DelegatedIn < amount {
		return fmt.Errorf("reputation: delegated-in underflow for %x", delegate)
	}
	now := ledger.now()
	row.Amount -= amount
	from.DelegatedOut -= amount
	from.UpdatedAt = now
	to.DelegatedIn -= amount
	to.UpdatedAt = now
	if err := ledger.putDelegation(row); err != nil {
		return err
	}
	if err := ledger.putProfile(from); err != nil {
		return err
	}
	if err := ledger.putProfile(to); err != nil {
		return err
	}
	e.emit(events.Undelegated{
		Delegator: delegator,
		Delegate:  delegate,
		Amount:    amount,
		Total:     row.Amount,
	})
	return nil
}

// ApplyDelta adjusts the base score of addr by delta and records the reason.
// A zero delta is a no-op. The new base score is returned.
func (e *Engine) ApplyDelta(addr [20]byte, delta int64, reason string) (int64, error) {
	ledger, err := e.withLedger()
	if err != nil {
		return 0, err
	}
	profile, err := ledger.getProfile(addr)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return profile.BaseScore, nil
	}
	old := profile.BaseScore
	profile.BaseScore = saturatingAdd(old, delta)
	profile.UpdatedAt = ledger.now()
	if err := ledger.putProfile(profile); err != nil {
		return 0, err
	}
	e.emit(events.ReputationChanged{
		Address:  addr,
		OldScore: old,
		NewScore: profile.BaseScore,
		Reason:   reason,
	})
	return profile.BaseScore, nil
}

// SlashBps removes a basis-point fraction of the positive part of addr's base
// score and returns the amount removed. Addresses at or below zero are left
// untouched.
func (e *Engine) SlashBps(addr [20]byte, bps uint64, reason string) (uint64, error) {
	if bps > maxBps {
		return 0, ErrInvalidAmount
	}
	ledger, err := e.withLedger()
	if err != nil {
		return 0, err
	}
	profile, err := ledger.getProfile(addr)
	if err != nil {
		return 0, err
	}
	if profile.BaseScore <= 0 || bps == 0 {
		return 0, nil
	}
	base := uint64(profile.BaseScore)
	slash := base/maxBps*bps + base%maxBps*bps/maxBps
	if slash == 0 {
		return 0, nil
	}
	if _, err := e.ApplyDelta(addr, -int64(slash), reason); err != nil {
		return 0, err
	}
	return slash, nil
}
