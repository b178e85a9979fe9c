package challenge

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"veritynet/core/events"
	"veritynet/native/ledger"
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
	pending  map[[20]byte]*big.Int
	vault    *big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		balances: make(map[[20]byte]*big.Int),
		pending:  make(map[[20]byte]*big.Int),
		vault:    big.NewInt(0),
	}
}

func (m *mockLedger) balance(addr [20]byte) *big.Int {
	if existing, ok := m.balances[addr]; ok {
		return existing
	}
	fresh := big.NewInt(0)
	m.balances[addr] = fresh
	return fresh
}

func (m *mockLedger) pendingOf(addr [20]byte) *big.Int {
	if existing, ok := m.pending[addr]; ok {
		return existing
	}
	fresh := big.NewInt(0)
	m.pending[addr] = fresh
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

func (m *mockLedger) AccruePending(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("accrue: amount must be positive")
	}
	pending := m.pendingOf(addr)
	pending.Add(pending, amount)
	return nil
}

func (m *mockLedger) SettlePending(addr [20]byte, amount *big.Int) error {
	pending := m.pendingOf(addr)
	if pending.Cmp(amount) < 0 {
		return fmt.Errorf("settle: pending underflow: have %s, need %s", pending, amount)
	}
	pending.Sub(pending, amount)
	return nil
}

func (m *mockLedger) total() *big.Int {
	sum := new(big.Int).Set(m.vault)
	for _, balance := range m.balances {
		sum.Add(sum, balance)
	}
	return sum
}

type scoreDelta struct {
	addr   [20]byte
	delta  int64
	reason string
}

// mockScores mirrors the reputation engine's slash arithmetic so the tests
// assert the exact post-slash scores the production wiring would produce.
type mockScores struct {
	effective map[[20]byte]int64
	base      map[[20]byte]int64
	deltas    []scoreDelta
}

func newMockScores() *mockScores {
	return &mockScores{effective: make(map[[20]byte]int64), base: make(map[[20]byte]int64)}
}

func (m *mockScores) set(addr [20]byte, score int64) {
	m.effective[addr] = score
	m.base[addr] = score
}

func (m *mockScores) EffectiveScore(addr [20]byte) (int64, error) {
	return m.effective[addr], nil
}

func (m *mockScores) BaseScore(addr [20]byte) (int64, error) {
	return m.base[addr], nil
}

func (m *mockScores) ApplyDelta(addr [20]byte, delta int64, reason string) (int64, error) {
	m.effective[addr] += delta
	m.base[addr] += delta
	m.deltas = append(m.deltas, scoreDelta{addr: addr, delta: delta, reason: reason})
	return m.base[addr], nil
}

func (m *mockScores) SlashBps(addr [20]byte, bps uint64, reason string) (uint64, error) {
	base := m.base[addr]
	if base <= 0 || bps == 0 {
		return 0, nil
	}
	magnitude := uint64(base)
	slash := magnitude/10_000*bps + magnitude%10_000*bps/10_000
	if _, err := m.ApplyDelta(addr, -int64(slash), reason); err != nil {
		return 0, err
	}
	return slash, nil
}

type mockPolicy struct {
	challengeStake   int64
	voteWindow       int64
	minVoteThreshold int64
	step             int64
	slashBps         uint32
}

func (p *mockPolicy) ChallengeStake() (*big.Int, error) {
	return big.NewInt(p.challengeStake), nil
}

func (p *mockPolicy) VoteWindowSeconds() (int64, error) {
	return p.voteWindow, nil
}

func (p *mockPolicy) MinVoteThreshold() (int64, error) {
	return p.minVoteThreshold, nil
}

func (p *mockPolicy) ReputationStep() (int64, error) {
	return p.step, nil
}

func (p *mockPolicy) ChallengeSlashBps() (uint32, error) {
	return p.slashBps, nil
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
	policy  *mockPolicy
	emitter *capturingEmitter
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: newMockLedger(),
		scores: newMockScores(),
		policy: &mockPolicy{
			challengeStake:   50,
			voteWindow:       3_600,
			minVoteThreshold: 100,
			step:             10,
			slashBps:         2_500,
		},
		emitter: &capturingEmitter{},
		clock:   &fakeClock{now: 1_700_000_000},
	}
	f.engine = NewEngine(newMockStore(), f.ledger, f.scores, f.policy)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(f.clock.Now)
	return f
}

// open funds the challenger with exactly the stake and opens a challenge.
func (f *fixture) open(t *testing.T, challenger, challenged [20]byte, stake int64) uint64 {
	t.Helper()
	f.ledger.fund(challenger, stake)
	id, err := f.engine.Open(challenger, challenged, big.NewInt(stake), [32]byte{0xAA})
	if err != nil {
		t.Fatalf("open challenge: %v", err)
	}
	return id
}

func (f *fixture) mustGet(t *testing.T, id uint64) *Challenge {
	t.Helper()
	record, err := f.engine.Get(id)
	if err != nil {
		t.Fatalf("get challenge %d: %v", id, err)
	}
	return record
}

func TestOpenValidations(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)
	f.ledger.fund(challenger, 40)

	if _, err := f.engine.Open(challenger, challenger, big.NewInt(50), [32]byte{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("self-challenge: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.engine.Open(challenger, challenged, big.NewInt(40), [32]byte{}); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("stake below minimum: got %v, want ErrInsufficientStake", err)
	}
	if _, err := f.engine.Open(challenger, challenged, nil, [32]byte{}); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("nil stake: got %v, want ErrInsufficientStake", err)
	}
	if _, err := f.engine.Open(challenger, challenged, big.NewInt(50), [32]byte{}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("underfunded challenger: got %v, want ErrInsufficientFunds", err)
	}

	f.ledger.fund(challenger, 10)
	id, err := f.engine.Open(challenger, challenged, big.NewInt(50), [32]byte{0xAA})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if id != 1 {
		t.Fatalf("first challenge id = %d, want 1", id)
	}
	if got := f.ledger.balance(challenger); got.Sign() != 0 {
		t.Fatalf("challenger balance after escrow = %s, want 0", got)
	}
	record := f.mustGet(t, id)
	if record.Status != StatusOpen {
		t.Fatalf("status = %v, want open", record.Status)
	}
	if record.VoteWindowEnd != f.clock.now+3_600 {
		t.Fatalf("vote window end = %d, want %d", record.VoteWindowEnd, f.clock.now+3_600)
	}
	opened, ok := f.emitter.events[len(f.emitter.events)-1].(events.ChallengeOpened)
	if !ok {
		t.Fatalf("last event = %T, want ChallengeOpened", f.emitter.events[len(f.emitter.events)-1])
	}
	if opened.ID != id || opened.Challenger != challenger || opened.Challenged != challenged {
		t.Fatalf("opened event parties mismatch: %+v", opened)
	}
	if opened.Stake.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("opened event stake = %s, want 50", opened.Stake)
	}
}

func TestOpenRequiresTenthOfChallengedScore(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	f.scores.set(challenged, 500)
	f.ledger.fund(challenger, 100)

	f.scores.effective[challenger] = 49
	if _, err := f.engine.Open(challenger, challenged, big.NewInt(50), [32]byte{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("score 49 vs base 500: got %v, want ErrUnauthorized", err)
	}
	f.scores.effective[challenger] = 50
	if _, err := f.engine.Open(challenger, challenged, big.NewInt(50), [32]byte{}); err != nil {
		t.Fatalf("score 50 vs base 500: %v", err)
	}
}

func TestOpenAgainstNonPositiveScoreIsUnrestricted(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	f.scores.set(challenger, 0)
	f.scores.set(challenged, -200)
	f.ledger.fund(challenger, 50)

	if _, err := f.engine.Open(challenger, challenged, big.NewInt(50), [32]byte{}); err != nil {
		t.Fatalf("challenging a negative score: %v", err)
	}
}

func TestVoteGuards(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	voter := newTestAddress(0x03)
	weak := newTestAddress(0x04)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)
	f.scores.set(voter, 300)
	f.scores.set(weak, 99)

	if err := f.engine.Vote(voter, 404, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("vote on unknown challenge: got %v, want ErrNotFound", err)
	}

	id := f.open(t, challenger, challenged, 50)
	if err := f.engine.Vote(challenger, id, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("challenger voting: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.Vote(challenged, id, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("challenged voting: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.Vote(weak, id, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("sub-threshold voter: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.Vote(voter, id, true); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := f.engine.Vote(voter, id, false); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("repeat vote: got %v, want ErrAlreadyVoted", err)
	}

	f.clock.advance(3_600)
	late := newTestAddress(0x05)
	f.scores.set(late, 200)
	if err := f.engine.Vote(late, id, true); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("vote after window: got %v, want ErrWindowClosed", err)
	}

	if _, err := f.engine.Resolve(id); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := f.engine.Vote(late, id, true); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("vote after resolution: got %v, want ErrInvalidState", err)
	}
}

func TestVoteAccumulatesWeightedTallies(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	yay := newTestAddress(0x03)
	nay := newTestAddress(0x04)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)
	f.scores.set(yay, 300)
	f.scores.set(nay, 150)

	id := f.open(t, challenger, challenged, 50)
	if err := f.engine.Vote(yay, id, true); err != nil {
		t.Fatalf("upheld vote: %v", err)
	}
	if err := f.engine.Vote(nay, id, false); err != nil {
		t.Fatalf("dismissed vote: %v", err)
	}

	record := f.mustGet(t, id)
	if record.VotesUpheld != 300 || record.VotesDismissed != 150 {
		t.Fatalf("tallies = %d/%d, want 300/150", record.VotesUpheld, record.VotesDismissed)
	}

	vote, found, err := f.engine.GetVote(id, yay)
	if err != nil || !found {
		t.Fatalf("get vote: found=%v err=%v", found, err)
	}
	if !vote.Upheld || vote.Weight != 300 {
		t.Fatalf("stored vote = %+v, want upheld weight 300", vote)
	}

	voted, ok := f.emitter.events[len(f.emitter.events)-1].(events.ChallengeVoted)
	if !ok {
		t.Fatalf("last event = %T, want ChallengeVoted", f.emitter.events[len(f.emitter.events)-1])
	}
	if voted.Voter != nay || voted.Upheld || voted.Weight != 150 {
		t.Fatalf("voted event = %+v, want dismissed weight 150", voted)
	}
}

// A challenge against a high-reputation participant that the voters dismiss
// must leave the challenged score untouched, penalize the challenger, and
// forfeit the challenger's stake to the challenged party.
func TestResolveDismissedPenalizesChallenger(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)

	id := f.open(t, challenger, challenged, 50)
	for i, fill := range []byte{0x03, 0x04, 0x05} {
		voter := newTestAddress(fill)
		f.scores.set(voter, 300)
		if err := f.engine.Vote(voter, id, false); err != nil {
			t.Fatalf("voter %d: %v", i, err)
		}
	}

	f.clock.advance(3_600)
	status, err := f.engine.Resolve(id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status != StatusDismissed {
		t.Fatalf("status = %v, want dismissed", status)
	}

	if got := f.scores.base[challenged]; got != 500 {
		t.Fatalf("challenged score = %d, want 500 unchanged", got)
	}
	if got := f.scores.base[challenger]; got != 590 {
		t.Fatalf("challenger score = %d, want 590", got)
	}
	for _, delta := range f.scores.deltas {
		if delta.addr == challenged {
			t.Fatalf("unexpected reputation move on challenged party: %+v", delta)
		}
	}

	if _, err := f.engine.ClaimStake(challenger, id); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("challenger claim: got %v, want ErrNothingToClaim", err)
	}
	payout, err := f.engine.ClaimStake(challenged, id)
	if err != nil {
		t.Fatalf("challenged claim: %v", err)
	}
	if payout.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("challenged payout = %s, want 50", payout)
	}
	if f.ledger.vault.Sign() != 0 {
		t.Fatalf("vault = %s after claims, want 0", f.ledger.vault)
	}

	resolved, ok := f.emitter.events[len(f.emitter.events)-2].(events.ChallengeResolved)
	if !ok {
		t.Fatalf("expected ChallengeResolved before the claim event")
	}
	if resolved.Status != "dismissed" || resolved.VotesUpheld != 0 || resolved.VotesDismissed != 900 {
		t.Fatalf("resolved event = %+v, want dismissed 0/900", resolved)
	}
}

func TestResolveUpheldSlashesChallenged(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	voter := newTestAddress(0x03)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)
	f.scores.set(voter, 300)

	id := f.open(t, challenger, challenged, 50)
	if err := f.engine.Vote(voter, id, true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	f.clock.advance(3_600)
	status, err := f.engine.Resolve(id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status != StatusUpheld {
		t.Fatalf("status = %v, want upheld", status)
	}

	// 2500 bps of a 500 base removes 125 points.
	if got := f.scores.base[challenged]; got != 375 {
		t.Fatalf("challenged score = %d, want 375", got)
	}
	if got := f.scores.base[challenger]; got != 610 {
		t.Fatalf("challenger score = %d, want 610", got)
	}

	record := f.mustGet(t, id)
	if record.SlashedAmount != 125 {
		t.Fatalf("slashed amount = %d, want 125", record.SlashedAmount)
	}

	payout, err := f.engine.ClaimStake(challenger, id)
	if err != nil {
		t.Fatalf("challenger claim: %v", err)
	}
	if payout.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("challenger refund = %s, want 50", payout)
	}
	if _, err := f.engine.ClaimStake(challenged, id); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("challenged claim: got %v, want ErrNothingToClaim", err)
	}

	var slashSeen, stepSeen bool
	for _, delta := range f.scores.deltas {
		switch {
		case delta.addr == challenged && delta.delta == -125 && delta.reason == "challenge.upheld":
			slashSeen = true
		case delta.addr == challenger && delta.delta == 10 && delta.reason == "challenge.upheld":
			stepSeen = true
		}
	}
	if !slashSeen || !stepSeen {
		t.Fatalf("reputation moves missing: slash=%v step=%v deltas=%+v", slashSeen, stepSeen, f.scores.deltas)
	}
}

func TestResolveInconclusiveSplitsStake(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	yay := newTestAddress(0x03)
	nay := newTestAddress(0x04)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)
	f.scores.set(yay, 300)
	f.scores.set(nay, 200)

	// 300 upheld vs 200 dismissed: neither side exceeds double the other.
	id := f.open(t, challenger, challenged, 51)
	if err := f.engine.Vote(yay, id, true); err != nil {
		t.Fatalf("upheld vote: %v", err)
	}
	if err := f.engine.Vote(nay, id, false); err != nil {
		t.Fatalf("dismissed vote: %v", err)
	}

	f.clock.advance(3_600)
	status, err := f.engine.Resolve(id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status != StatusInconclusive {
		t.Fatalf("status = %v, want inconclusive", status)
	}
	if len(f.scores.deltas) != 0 {
		t.Fatalf("inconclusive challenge moved reputation: %+v", f.scores.deltas)
	}

	// Odd stake of 51 splits 25 to the challenged, 26 back to the
	// challenger, so nothing is stranded in the vault.
	challengedPayout, err := f.engine.ClaimStake(challenged, id)
	if err != nil {
		t.Fatalf("challenged claim: %v", err)
	}
	if challengedPayout.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("challenged payout = %s, want 25", challengedPayout)
	}
	challengerPayout, err := f.engine.ClaimStake(challenger, id)
	if err != nil {
		t.Fatalf("challenger claim: %v", err)
	}
	if challengerPayout.Cmp(big.NewInt(26)) != 0 {
		t.Fatalf("challenger payout = %s, want 26", challengerPayout)
	}
	if f.ledger.vault.Sign() != 0 {
		t.Fatalf("vault = %s after claims, want 0", f.ledger.vault)
	}
	if f.ledger.total().Cmp(big.NewInt(51)) != 0 {
		t.Fatalf("total supply = %s, want 51", f.ledger.total())
	}
}

func TestResolveGuards(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)

	if _, err := f.engine.Resolve(404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("resolve unknown: got %v, want ErrNotFound", err)
	}

	id := f.open(t, challenger, challenged, 50)
	if _, err := f.engine.Resolve(id); !errors.Is(err, ErrWindowNotElapsed) {
		t.Fatalf("resolve before window: got %v, want ErrWindowNotElapsed", err)
	}

	f.clock.advance(3_600)
	if _, err := f.engine.Resolve(id); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.engine.Resolve(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("resolve twice: got %v, want ErrInvalidState", err)
	}
}

func TestResolveAccruesPendingUntilClaimed(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	voter := newTestAddress(0x03)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)
	f.scores.set(voter, 300)

	id := f.open(t, challenger, challenged, 50)
	if err := f.engine.Vote(voter, id, true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	f.clock.advance(3_600)
	if _, err := f.engine.Resolve(id); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// The refund is recorded as pending at resolve time; the balance
	// moves only when the challenger claims.
	if got := f.ledger.pendingOf(challenger); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("challenger pending = %s, want 50", got)
	}
	if got := f.ledger.balance(challenger); got.Sign() != 0 {
		t.Fatalf("challenger balance = %s before claim, want 0", got)
	}
	if got := f.ledger.pendingOf(challenged); got.Sign() != 0 {
		t.Fatalf("challenged pending = %s, want 0", got)
	}

	if _, err := f.engine.ClaimStake(challenger, id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.ledger.pendingOf(challenger); got.Sign() != 0 {
		t.Fatalf("challenger pending = %s after claim, want 0", got)
	}
	if got := f.ledger.balance(challenger); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("challenger balance = %s after claim, want 50", got)
	}
}

func TestClaimGuards(t *testing.T) {
	f := newFixture(t)
	challenger := newTestAddress(0x01)
	challenged := newTestAddress(0x02)
	stranger := newTestAddress(0x09)
	f.scores.set(challenger, 600)
	f.scores.set(challenged, 500)

	id := f.open(t, challenger, challenged, 50)
	if _, err := f.engine.ClaimStake(challenger, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("claim while open: got %v, want ErrInvalidState", err)
	}

	f.clock.advance(3_600)
	if _, err := f.engine.Resolve(id); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := f.engine.ClaimStake(stranger, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger claim: got %v, want ErrUnauthorized", err)
	}

	// No votes resolves inconclusive, so both parties hold a payout.
	if _, err := f.engine.ClaimStake(challenger, id); err != nil {
		t.Fatalf("challenger claim: %v", err)
	}
	if _, err := f.engine.ClaimStake(challenger, id); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("repeat challenger claim: got %v, want ErrAlreadyClaimed", err)
	}
	if _, err := f.engine.ClaimStake(challenged, id); err != nil {
		t.Fatalf("challenged claim: %v", err)
	}
	if _, err := f.engine.ClaimStake(challenged, id); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("repeat challenged claim: got %v, want ErrAlreadyClaimed", err)
	}
	if f.ledger.vault.Sign() != 0 {
		t.Fatalf("vault = %s after both claims, want 0", f.ledger.vault)
	}

	claimed, ok := f.emitter.events[len(f.emitter.events)-1].(events.StakeClaimed)
	if !ok {
		t.Fatalf("last event = %T, want StakeClaimed", f.emitter.events[len(f.emitter.events)-1])
	}
	if claimed.Scope != events.ClaimScopeChallenge || claimed.Claimant != challenged {
		t.Fatalf("claim event = %+v, want challenge-scoped claim by challenged", claimed)
	}
}
