package gov

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"veritynet/core/events"
	"veritynet/native/ledger"
	"veritynet/native/params"
)

type mockStore struct {
	kv       map[string][]byte
	counters map[string]uint64
}

func newMockStore() *mockStore {
	return &mockStore{kv: make(map[string][]byte), counters: make(map[string]uint64)}
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

func (m *mockStore) NextID(name string) (uint64, error) {
	m.counters[name]++
	return m.counters[name], nil
}

type mockLedger struct {
	balances map[[20]byte]*big.Int
	vault    *big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[[20]byte]*big.Int), vault: big.NewInt(0)}
}

func (m *mockLedger) balance(addr [20]byte) *big.Int {
	if existing, ok := m.balances[addr]; ok {
		return existing
	}
	fresh := big.NewInt(0)
	m.balances[addr] = fresh
	return fresh
}

func (m *mockLedger) fund(addr [20]byte, amount int64) {
	m.balance(addr).Add(m.balance(addr), big.NewInt(amount))
}

func (m *mockLedger) Debit(addr [20]byte, amount *big.Int) error {
	balance := m.balance(addr)
	if balance.Cmp(amount) < 0 {
		return ledger.ErrInsufficientFunds
	}
	balance.Sub(balance, amount)
	m.vault.Add(m.vault, amount)
	return nil
}

func (m *mockLedger) Credit(addr [20]byte, amount *big.Int) error {
	if m.vault.Cmp(amount) < 0 {
		return fmt.Errorf("vault underflow: have %s, need %s", m.vault, amount)
	}
	m.vault.Sub(m.vault, amount)
	balance := m.balance(addr)
	balance.Add(balance, amount)
	return nil
}

type mockScores struct {
	scores map[[20]byte]int64
}

func newMockScores() *mockScores {
	return &mockScores{scores: make(map[[20]byte]int64)}
}

func (m *mockScores) EffectiveScore(addr [20]byte) (int64, error) {
	return m.scores[addr], nil
}

type mockSink struct {
	applied map[string][]byte
}

func newMockSink() *mockSink {
	return &mockSink{applied: make(map[string][]byte)}
}

func (m *mockSink) Apply(key string, value []byte) error {
	m.applied[key] = append([]byte(nil), value...)
	return nil
}

type mockPolicy struct {
	minDeposit   int64
	votingPeriod int64
	timelock     int64
	quorum       uint64
	passBps      uint32
	treasury     [20]byte
	treasurySet  bool
}

func (p *mockPolicy) GovMinDeposit() (*big.Int, error) {
	return big.NewInt(p.minDeposit), nil
}

func (p *mockPolicy) GovVotingPeriodSeconds() (int64, error) {
	return p.votingPeriod, nil
}

func (p *mockPolicy) GovTimelockSeconds() (int64, error) {
	return p.timelock, nil
}

func (p *mockPolicy) GovQuorumWeight() (uint64, error) {
	return p.quorum, nil
}

func (p *mockPolicy) GovPassThresholdBps() (uint32, error) {
	return p.passBps, nil
}

func (p *mockPolicy) FeeTreasury() ([20]byte, bool, error) {
	return p.treasury, p.treasurySet, nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

func (c *fakeClock) advance(seconds int64) { c.now += seconds }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type fixture struct {
	engine  *Engine
	ledger  *mockLedger
	scores  *mockScores
	sink    *mockSink
	policy  *mockPolicy
	emitter *capturingEmitter
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: newMockLedger(),
		scores: newMockScores(),
		sink:   newMockSink(),
		policy: &mockPolicy{
			minDeposit:   500,
			votingPeriod: 1_000,
			timelock:     400,
			quorum:       1_000,
			passBps:      5_000,
			treasury:     newTestAddress(0xFE),
			treasurySet:  true,
		},
		emitter: &capturingEmitter{},
		clock:   &fakeClock{now: 1_700_000_000},
	}
	f.engine = NewEngine(newMockStore(), f.ledger, f.scores, f.sink, f.policy)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(f.clock.Now)
	return f
}

// propose funds the proposer with exactly the deposit and submits a window
// parameter proposal.
func (f *fixture) propose(t *testing.T, proposer [20]byte, deposit int64) uint64 {
	t.Helper()
	f.ledger.fund(proposer, deposit)
	id, err := f.engine.Propose(proposer, params.KeyDisputeWindow, []byte("86400"), big.NewInt(deposit))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return id
}

func (f *fixture) mustGet(t *testing.T, id uint64) *Proposal {
	t.Helper()
	proposal, err := f.engine.Get(id)
	if err != nil {
		t.Fatalf("get proposal %d: %v", id, err)
	}
	return proposal
}

func (f *fixture) vote(t *testing.T, voter [20]byte, id uint64, support bool) {
	t.Helper()
	if err := f.engine.Vote(voter, id, support); err != nil {
		t.Fatalf("vote by %x: %v", voter[:2], err)
	}
}

func TestProposeValidations(t *testing.T) {
	f := newFixture(t)
	proposer := newTestAddress(0x01)
	f.ledger.fund(proposer, 400)

	if _, err := f.engine.Propose(proposer, "assert/unknownKnob", []byte("1"), big.NewInt(500)); !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("unknown key: got %v, want ErrUnknownParam", err)
	}
	if _, err := f.engine.Propose(proposer, params.KeyDisputeWindow, []byte("-5"), big.NewInt(500)); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("negative window: got %v, want ErrInvalidValue", err)
	}
	if _, err := f.engine.Propose(proposer, params.KeyMinAssertionStake, []byte(`"abc"`), big.NewInt(500)); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("malformed amount: got %v, want ErrInvalidValue", err)
	}
	if _, err := f.engine.Propose(proposer, params.KeyDisputeWindow, []byte("86400"), big.NewInt(499)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("deposit below minimum: got %v, want ErrInsufficientDeposit", err)
	}
	if _, err := f.engine.Propose(proposer, params.KeyDisputeWindow, []byte("86400"), nil); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("nil deposit: got %v, want ErrInsufficientDeposit", err)
	}
	if _, err := f.engine.Propose(proposer, params.KeyDisputeWindow, []byte("86400"), big.NewInt(500)); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("underfunded proposer: got %v, want ErrInsufficientFunds", err)
	}

	f.ledger.fund(proposer, 100)
	id, err := f.engine.Propose(proposer, params.KeyDisputeWindow, []byte("86400"), big.NewInt(500))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if id != 1 {
		t.Fatalf("first proposal id = %d, want 1", id)
	}
	if got := f.ledger.balance(proposer); got.Sign() != 0 {
		t.Fatalf("proposer balance after escrow = %s, want 0", got)
	}
	proposal := f.mustGet(t, id)
	if proposal.Status != StatusVoting {
		t.Fatalf("status = %v, want voting", proposal.Status)
	}
	if proposal.VotingEndTime != f.clock.now+1_000 {
		t.Fatalf("voting end = %d, want %d", proposal.VotingEndTime, f.clock.now+1_000)
	}
	proposed, ok := f.emitter.events[len(f.emitter.events)-1].(events.GovProposed)
	if !ok {
		t.Fatalf("last event = %T, want GovProposed", f.emitter.events[len(f.emitter.events)-1])
	}
	if proposed.ParamKey != params.KeyDisputeWindow || proposed.Deposit.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("proposed event = %+v", proposed)
	}
}

func TestVoteLastWriteWins(t *testing.T) {
	f := newFixture(t)
	proposer := newTestAddress(0x01)
	voter := newTestAddress(0x02)
	other := newTestAddress(0x03)
	f.scores.scores[voter] = 300
	f.scores.scores[other] = 150

	id := f.propose(t, proposer, 500)
	f.vote(t, voter, id, true)
	if p := f.mustGet(t, id); p.YesWeight != 300 || p.NoWeight != 0 {
		t.Fatalf("tallies after first vote = %d/%d, want 300/0", p.YesWeight, p.NoWeight)
	}

	// Flipping sides moves the full recorded weight.
	f.vote(t, voter, id, false)
	if p := f.mustGet(t, id); p.YesWeight != 0 || p.NoWeight != 300 {
		t.Fatalf("tallies after flip = %d/%d, want 0/300", p.YesWeight, p.NoWeight)
	}

	// A revote re-reads the voter's current score.
	f.scores.scores[voter] = 200
	f.vote(t, voter, id, false)
	if p := f.mustGet(t, id); p.YesWeight != 0 || p.NoWeight != 200 {
		t.Fatalf("tallies after re-weighted vote = %d/%d, want 0/200", p.YesWeight, p.NoWeight)
	}

	f.vote(t, other, id, true)
	if p := f.mustGet(t, id); p.YesWeight != 150 || p.NoWeight != 200 {
		t.Fatalf("tallies with second voter = %d/%d, want 150/200", p.YesWeight, p.NoWeight)
	}

	record, found, err := f.engine.GetVote(id, voter)
	if err != nil || !found {
		t.Fatalf("get vote: found=%v err=%v", found, err)
	}
	if record.Support || record.Weight != 200 {
		t.Fatalf("stored vote = %+v, want no with weight 200", record)
	}
}

func TestVoteGuards(t *testing.T) {
	f := newFixture(t)
	proposer := newTestAddress(0x01)
	voter := newTestAddress(0x02)
	f.scores.scores[voter] = 300

	if err := f.engine.Vote(voter, 404, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("vote on unknown proposal: got %v, want ErrNotFound", err)
	}

	id := f.propose(t, proposer, 500)
	weightless := newTestAddress(0x04)
	f.scores.scores[weightless] = -10
	if err := f.engine.Vote(weightless, id, true); !errors.Is(err, ErrNoVotingWeight) {
		t.Fatalf("weightless vote: got %v, want ErrNoVotingWeight", err)
	}

	f.clock.advance(1_000)
	if err := f.engine.Vote(voter, id, true); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("vote after window: got %v, want ErrWindowClosed", err)
	}

	if _, err := f.engine.Finalize(id); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := f.engine.Vote(voter, id, true); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("vote after finalize: got %v, want ErrInvalidState", err)
	}
}

func TestFinalizePassRefundsDeposit(t *testing.T) {
	f := newFixture(t)
	proposer := newTestAddress(0x01)
	yay := newTestAddress(0x02)
	nay := newTestAddress(0x03)
	f.scores.scores[yay] = 800
	f.scores.scores[nay] = 400

	id := f.propose(t, proposer, 500)
	f.vote(t, yay, id, true)
	f.vote(t, nay, id, false)

	if _, err := f.engine.Finalize(id); !errors.Is(err, ErrWindowNotElapsed) {
		t.Fatalf("finalize before window: got %v, want ErrWindowNotElapsed", err)
	}

	f.clock.advance(1_000)
	status, err := f.engine.Finalize(id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if status != StatusPassed {
		t.Fatalf("status = %v, want passed", status)
	}
	if got := f.ledger.balance(proposer); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("proposer refund = %s, want 500", got)
	}
	proposal := f.mustGet(t, id)
	if proposal.TimelockEndTime != f.clock.now+400 {
		t.Fatalf("timelock end = %d, want %d", proposal.TimelockEndTime, f.clock.now+400)
	}
	if _, err := f.engine.Finalize(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("finalize twice: got %v, want ErrInvalidState", err)
	}

	finalized, ok := f.emitter.events[len(f.emitter.events)-1].(events.GovFinalized)
	if !ok {
		t.Fatalf("last event = %T, want GovFinalized", f.emitter.events[len(f.emitter.events)-1])
	}
	if finalized.Status != "passed" || finalized.YesWeight != 800 || finalized.NoWeight != 400 {
		t.Fatalf("finalized event = %+v", finalized)
	}
}

func TestFinalizeQuorumFailureForfeitsDeposit(t *testing.T) {
	f := newFixture(t)
	proposer := newTestAddress(0x01)
	voter := newTestAddress(0x02)
	f.scores.scores[voter] = 300

	// 300 total weight misses the 1000 quorum even though every vote is a
	// yes.
	id := f.propose(t, proposer, 500)
	f.vote(t, voter, id, true)
	f.clock.advance(1_000)
	status, err := f.engine.Finalize(id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if status != StatusRejected {
		t.Fatalf("status = %v, want rejected", status)
	}
	if got := f.ledger.balance(proposer); got.Sign() != 0 {
		t.Fatalf("proposer balance = %s, want 0 after forfeit", got)
	}
	if got := f.ledger.balance(f.policy.treasury); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("treasury balance = %s, want 500", got)
	}
	if err := f.engine.Execute(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("execute rejected proposal: got %v, want ErrInvalidState", err)
	}
}

func TestFinalizeThresholds(t *testing.T) {
	f := newFixture(t)
	proposer := newTestAddress(0x01)
	yay := newTestAddress(0x02)
	nay := newTestAddress(0x03)

	// 500 yes vs 600 no clears quorum but misses the 50% pass threshold.
	f.scores.scores[yay] = 500
	f.scores.scores[nay] = 600
	first := f.propose(t, proposer, 500)
	f.vote(t, yay, first, true)
	f.vote(t, nay, first, false)
	f.clock.advance(1_000)
	if status, err := f.engine.Finalize(first); err != nil || status != StatusRejected {
		t.Fatalf("finalize = %v, %v; want rejected", status, err)
	}

	// An exact 50% yes share meets the threshold.
	f.scores.scores[yay] = 600
	second := f.propose(t, proposer, 500)
	f.vote(t, yay, second, true)
	f.vote(t, nay, second, false)
	f.clock.advance(1_000)
	if status, err := f.engine.Finalize(second); err != nil || status != StatusPassed {
		t.Fatalf("finalize = %v, %v; want passed", status, err)
	}
}

func TestFinalizeRejectWithoutTreasuryLeavesDepositInVault(t *testing.T) {
	f := newFixture(t)
	f.policy.treasurySet = false
	proposer := newTestAddress(0x01)

	id := f.propose(t, proposer, 500)
	f.clock.advance(1_000)
	status, err := f.engine.Finalize(id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if status != StatusRejected {
		t.Fatalf("status = %v, want rejected for zero votes", status)
	}
	if f.ledger.vault.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("vault = %s, want 500 retained", f.ledger.vault)
	}
}

func TestExecuteAppliesParamAfterTimelock(t *testing.T) {
	f := newFixture(t)
	proposer := newTestAddress(0x01)
	voter := newTestAddress(0x02)
	f.scores.scores[voter] = 2_000

	id := f.propose(t, proposer, 500)
	f.vote(t, voter, id, true)
	f.clock.advance(1_000)
	if _, err := f.engine.Finalize(id); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if err := f.engine.Execute(id); !errors.Is(err, ErrTimelockNotElapsed) {
		t.Fatalf("execute before timelock: got %v, want ErrTimelockNotElapsed", err)
	}

	f.clock.advance(400)
	if err := f.engine.Execute(id); err != nil {
		t.Fatalf("execute: %v", err)
	}
	applied, ok := f.sink.applied[params.KeyDisputeWindow]
	if !ok {
		t.Fatalf("parameter update was not applied")
	}
	if string(applied) != "86400" {
		t.Fatalf("applied value = %q, want 86400", applied)
	}
	if p := f.mustGet(t, id); p.Status != StatusExecuted {
		t.Fatalf("status = %v, want executed", p.Status)
	}
	if err := f.engine.Execute(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("execute twice: got %v, want ErrInvalidState", err)
	}

	executed, ok := f.emitter.events[len(f.emitter.events)-1].(events.GovExecuted)
	if !ok {
		t.Fatalf("last event = %T, want GovExecuted", f.emitter.events[len(f.emitter.events)-1])
	}
	if executed.ID != id || executed.ParamKey != params.KeyDisputeWindow {
		t.Fatalf("executed event = %+v", executed)
	}
}
