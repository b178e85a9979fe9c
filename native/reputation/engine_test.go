package reputation

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"veritynet/core/events"
)

type mockStore struct {
	kv map[string][]byte
}

func newMockStore() *mockStore {
	return &mockStore{kv: make(map[string][]byte)}
}

func (m *mockStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStore) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestEngine(t *testing.T) (*Engine, *capturingEmitter) {
	t.Helper()
	ledger := NewLedger(newMockStore())
	ledger.SetNowFunc(func() int64 { return 1_700_000_000 })
	engine := NewEngine(ledger)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	return engine, emitter
}

func mustApplyDelta(t *testing.T, e *Engine, addr [20]byte, delta int64) {
	t.Helper()
	if _, err := e.ApplyDelta(addr, delta, "seed"); err != nil {
		t.Fatalf("apply delta %d to %x: %v", delta, addr, err)
	}
}

func mustProfile(t *testing.T, e *Engine, addr [20]byte) *Profile {
	t.Helper()
	profile, err := e.Profile(addr)
	if err != nil {
		t.Fatalf("profile %x: %v", addr, err)
	}
	return profile
}

func TestDelegateRespectsBaseCapacity(t *testing.T) {
	engine, _ := newTestEngine(t)
	delegator := newTestAddress(0x01)
	delegate := newTestAddress(0x02)
	mustApplyDelta(t, engine, delegator, 100)

	if err := engine.Delegate(delegator, delegate, 101); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if profile := mustProfile(t, engine, delegator); profile.DelegatedOut != 0 {
		t.Fatalf("failed delegation mutated state: delegated out %d", profile.DelegatedOut)
	}
	if _, found, err := engine.Delegation(delegator, delegate); err != nil || found {
		t.Fatalf("failed delegation left a row: found=%v err=%v", found, err)
	}

	if err := engine.Delegate(delegator, delegate, 60); err != nil {
		t.Fatalf("delegate within capacity: %v", err)
	}
	if err := engine.Delegate(delegator, delegate, 41); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on exhausted capacity, got %v", err)
	}
	if err := engine.Delegate(delegator, delegate, 40); err != nil {
		t.Fatalf("delegate remaining capacity: %v", err)
	}
	if profile := mustProfile(t, engine, delegator); profile.DelegatedOut != 100 {
		t.Fatalf("delegated out = %d, want 100", profile.DelegatedOut)
	}
}

func TestDelegateValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	delegator := newTestAddress(0x01)
	mustApplyDelta(t, engine, delegator, 50)

	if err := engine.Delegate(delegator, newTestAddress(0x02), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := engine.Delegate(delegator, delegator, 10); !errors.Is(err, ErrSelfDelegation) {
		t.Fatalf("expected ErrSelfDelegation, got %v", err)
	}
	negative := newTestAddress(0x03)
	mustApplyDelta(t, engine, negative, -5)
	if err := engine.Delegate(negative, delegator, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for negative base, got %v", err)
	}
}

func TestDelegateAccumulatesPerPair(t *testing.T) {
	engine, emitter := newTestEngine(t)
	delegator := newTestAddress(0x01)
	delegate := newTestAddress(0x02)
	mustApplyDelta(t, engine, delegator, 100)
	emitter.events = nil

	if err := engine.Delegate(delegator, delegate, 30); err != nil {
		t.Fatalf("first delegation: %v", err)
	}
	if err := engine.Delegate(delegator, delegate, 20); err != nil {
		t.Fatalf("second delegation: %v", err)
	}
	row, found, err := engine.Delegation(delegator, delegate)
	if err != nil || !found {
		t.Fatalf("delegation row: found=%v err=%v", found, err)
	}
	if row.Amount != 50 {
		t.Fatalf("row amount = %d, want 50", row.Amount)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	last, ok := emitter.events[1].(events.Delegated)
	if !ok {
		t.Fatalf("unexpected event type %T", emitter.events[1])
	}
	if last.Amount != 20 || last.Total != 50 {
		t.Fatalf("event amount=%d total=%d, want 20/50", last.Amount, last.Total)
	}
}

func TestDelegationRowRoundTrip(t *testing.T) {
	ledger := NewLedger(newMockStore())
	ledger.SetNowFunc(func() int64 { return 1_700_000_000 })
	delegator := newTestAddress(0x01)
	delegate := newTestAddress(0x02)

	if _, found, err := ledger.getDelegation(delegator, delegate); err != nil || found {
		t.Fatalf("missing row: found=%v err=%v", found, err)
	}
	if err := ledger.putDelegation(&Delegation{
		Delegator: delegator,
		Delegate:  delegate,
		Amount:    40,
		Since:     1_700_000_000,
	}); err != nil {
		t.Fatalf("put delegation: %v", err)
	}
	row, found, err := ledger.getDelegation(delegator, delegate)
	if err != nil {
		t.Fatalf("get delegation: %v", err)
	}
	if !found {
		t.Fatal("stored delegation must read back as found")
	}
	if row.Amount != 40 || row.Delegator != delegator || row.Delegate != delegate {
		t.Fatalf("row = %+v, want amount 40 between %x and %x", row, delegator, delegate)
	}
	if row.Since != 1_700_000_000 {
		t.Fatalf("row since = %d, want 1700000000", row.Since)
	}
}

func TestUndelegate(t *testing.T) {
	engine, emitter := newTestEngine(t)
	delegator := newTestAddress(0x01)
	delegate := newTestAddress(0x02)
	mustApplyDelta(t, engine, delegator, 100)

	if err := engine.Undelegate(delegator, delegate, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := engine.Delegate(delegator, delegate, 80); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if err := engine.Undelegate(delegator, delegate, 81); !errors.Is(err, ErrInsufficientDelegation) {
		t.Fatalf("expected ErrInsufficientDelegation, got %v", err)
	}
	if err := engine.Undelegate(delegator, delegate, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	emitter.events = nil
	if err := engine.Undelegate(delegator, delegate, 50); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if profile := mustProfile(t, engine, delegator); profile.DelegatedOut != 30 {
		t.Fatalf("delegated out = %d, want 30", profile.DelegatedOut)
	}
	if profile := mustProfile(t, engine, delegate); profile.DelegatedIn != 30 {
		t.Fatalf("delegated in = %d, want 30", profile.DelegatedIn)
	}
	evt, ok := emitter.events[0].(events.Undelegated)
	if !ok {
		t.Fatalf("unexpected event type %T", emitter.events[0])
	}
	if evt.Amount != 50 || evt.Total != 30 {
		t.Fatalf("event amount=%d total=%d, want 50/30", evt.Amount, evt.Total)
	}

	// The returned capacity is immediately usable again.
	if err := engine.Delegate(delegator, delegate, 70); err != nil {
		t.Fatalf("re-delegate after undelegate: %v", err)
	}
	row, _, err := engine.Delegation(delegator, delegate)
	if err != nil {
		t.Fatalf("delegation row: %v", err)
	}
	if row.Amount != 100 {
		t.Fatalf("row amount = %d, want 100", row.Amount)
	}

	if err := engine.Undelegate(delegator, delegate, 100); err != nil {
		t.Fatalf("drain delegation: %v", err)
	}
	if _, found, err := engine.Delegation(delegator, delegate); err != nil || found {
		t.Fatalf("drained delegation should read as absent: found=%v err=%v", found, err)
	}
}

func TestEffectiveScoreReflectsDelegation(t *testing.T) {
	engine, _ := newTestEngine(t)
	delegator := newTestAddress(0x01)
	delegate := newTestAddress(0x02)
	mustApplyDelta(t, engine, delegator, 100)
	mustApplyDelta(t, engine, delegate, 10)

	if err := engine.Delegate(delegator, delegate, 40); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if score, err := engine.EffectiveScore(delegator); err != nil || score != 60 {
		t.Fatalf("delegator effective score = %d (%v), want 60", score, err)
	}
	if score, err := engine.EffectiveScore(delegate); err != nil || score != 50 {
		t.Fatalf("delegate effective score = %d (%v), want 50", score, err)
	}
	if weight, err := engine.Weight(delegate); err != nil || weight != 50 {
		t.Fatalf("delegate weight = %d (%v), want 50", weight, err)
	}
}

func TestWeightClampsNegativeScores(t *testing.T) {
	engine, _ := newTestEngine(t)
	addr := newTestAddress(0x07)
	mustApplyDelta(t, engine, addr, -25)

	if score, err := engine.EffectiveScore(addr); err != nil || score != -25 {
		t.Fatalf("effective score = %d (%v), want -25", score, err)
	}
	if weight, err := engine.Weight(addr); err != nil || weight != 0 {
		t.Fatalf("weight = %d (%v), want 0", weight, err)
	}
}

func TestApplyDeltaEmitsChange(t *testing.T) {
	engine, emitter := newTestEngine(t)
	addr := newTestAddress(0x04)

	score, err := engine.ApplyDelta(addr, 30, "attest.bonus")
	if err != nil || score != 30 {
		t.Fatalf("apply +30 = %d (%v), want 30", score, err)
	}
	score, err = engine.ApplyDelta(addr, -50, "resolution.penalty")
	if err != nil || score != -20 {
		t.Fatalf("apply -50 = %d (%v), want -20", score, err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	change, ok := emitter.events[1].(events.ReputationChanged)
	if !ok {
		t.Fatalf("unexpected event type %T", emitter.events[1])
	}
	if change.OldScore != 30 || change.NewScore != -20 || change.Reason != "resolution.penalty" {
		t.Fatalf("unexpected change event %+v", change)
	}

	emitter.events = nil
	if _, err := engine.ApplyDelta(addr, 0, "noop"); err != nil {
		t.Fatalf("apply zero delta: %v", err)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("zero delta emitted %d events", len(emitter.events))
	}
}

func TestSlashBps(t *testing.T) {
	engine, _ := newTestEngine(t)
	addr := newTestAddress(0x05)
	mustApplyDelta(t, engine, addr, 500)

	removed, err := engine.SlashBps(addr, 2500, "challenge.upheld")
	if err != nil {
		t.Fatalf("slash: %v", err)
	}
	if removed != 125 {
		t.Fatalf("removed = %d, want 125", removed)
	}
	if profile := mustProfile(t, engine, addr); profile.BaseScore != 375 {
		t.Fatalf("base score = %d, want 375", profile.BaseScore)
	}

	if _, err := engine.SlashBps(addr, 10_001, "bad"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for bps overflow, got %v", err)
	}

	depleted := newTestAddress(0x06)
	mustApplyDelta(t, engine, depleted, -10)
	removed, err = engine.SlashBps(depleted, 5000, "challenge.upheld")
	if err != nil || removed != 0 {
		t.Fatalf("slash of negative base removed %d (%v), want 0", removed, err)
	}
}

func TestProfileRoundTripPreservesSign(t *testing.T) {
	engine, _ := newTestEngine(t)
	addr := newTestAddress(0x08)
	mustApplyDelta(t, engine, addr, -42)

	profile := mustProfile(t, engine, addr)
	if profile.BaseScore != -42 {
		t.Fatalf("base score = %d, want -42", profile.BaseScore)
	}
	if profile.UpdatedAt != 1_700_000_000 {
		t.Fatalf("updated at = %d, want fixed clock", profile.UpdatedAt)
	}
}
