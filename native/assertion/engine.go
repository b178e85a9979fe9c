package assertion

import (
	"fmt"
	"math/big"
	"time"

	"veritynet/core/events"
	"veritynet/native/tally"
)

// Ledger is the token boundary the engine debits and credits for stakes.
// Debit moves funds from the participant into the engine vault; Credit moves
// them back out. Settlement entitlements are accrued as pending rewards at
// resolution time and settled against the pending total when claimed.
type Ledger interface {
	Debit(addr [20]byte, amount *big.Int) error
	Credit(addr [20]byte, amount *big.Int) error
	AccruePending(addr [20]byte, amount *big.Int) error
	SettlePending(addr [20]byte, amount *big.Int) error
}

// ScoreSource supplies effective reputation scores and applies resolution
// deltas.
type ScoreSource interface {
	EffectiveScore(addr [20]byte) (int64, error)
	ApplyDelta(addr [20]byte, delta int64, reason string) (int64, error)
}

// TopicGate reports whether a topic currently accepts assertions.
type TopicGate interface {
	IsActive(id uint64) (bool, error)
}

// Policy supplies the governance parameters the engine reads at call time.
type Policy interface {
	MinAssertionStake() (*big.Int, error)
	MinAttestationStake() (*big.Int, error)
	MinDisputeStake() (*big.Int, error)
	MinRelevanceStake() (*big.Int, error)
	DisputeWindowSeconds() (int64, error)
	RelevanceDecaySeconds() (int64, error)
	ReputationStep() (int64, error)
	AttestReputationBonus() (int64, error)
	AttesterRewardShareBps() (uint32, error)
	FeeTreasury() ([20]byte, bool, error)
}

// Reputation delta reasons recorded on ReputationChanged events.
const (
	reasonAttestBonus   = "assert.attest"
	reasonResolvedTrue  = "assert.resolved.true"
	reasonResolvedFalse = "assert.resolved.false"
)

// Engine implements the assertion registry and its dispute resolver. Every
// mutation is expected to run inside a state transaction owned by the caller
// so a failed call leaves nothing behind.
type Engine struct {
	store   storage
	ledger  Ledger
	scores  ScoreSource
	topics  TopicGate
	policy  Policy
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs an assertion engine from its collaborators.
func NewEngine(store storage, ledger Ledger, scores ScoreSource, topics TopicGate, policy Policy) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		scores:  scores,
		topics:  topics,
		policy:  policy,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event sink. Passing nil restores the no-op
// emitter.
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

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) withStore() (storage, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("assert: storage not configured")
	}
	return e.store, nil
}

func (e *Engine) collaborators() error {
	if e == nil || e.store == nil {
		return fmt.Errorf("assert: storage not configured")
	}
	if e.ledger == nil {
		return fmt.Errorf("assert: ledger not configured")
	}
	if e.scores == nil {
		return fmt.Errorf("assert: score source not configured")
	}
	if e.policy == nil {
		return fmt.Errorf("assert: policy not configured")
	}
	return nil
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func validStake(stake, minimum *big.Int) error {
	if stake == nil || stake.Sign() <= 0 {
		return ErrInsufficientStake
	}
	if minimum != nil && stake.Cmp(minimum) < 0 {
		return ErrInsufficientStake
	}
	return nil
}

// Submit registers a new assertion against an active topic, escrowing the
// creator's stake, and returns the new assertion id.
func (e *Engine) Submit(creator [20]byte, topicID uint64, fingerprint [32]byte, stake *big.Int) (uint64, error) {
	if err := e.collaborators(); err != nil {
		return 0, err
	}
	if e.topics == nil {
		return 0, fmt.Errorf("assert: topic gate not configured")
	}
	active, err := e.topics.IsActive(topicID)
	if err != nil {
		return 0, err
	}
	if !active {
		return 0, ErrTopicNotActive
	}
	minimum, err := e.policy.MinAssertionStake()
	if err != nil {
		return 0, err
	}
	if err := validStake(stake, minimum); err != nil {
		return 0, err
	}
	score, err := e.scores.EffectiveScore(creator)
	if err != nil {
		return 0, err
	}
	if err := e.ledger.Debit(creator, stake); err != nil {
		return 0, err
	}
	id, err := e.store.NextID(assertionCounter)
	if err != nil {
		return 0, err
	}
	now := e.now()
	record := &Assertion{
		ID:                 id,
		TopicID:            topicID,
		Creator:            creator,
		ContentFingerprint: fingerprint,
		StakeLocked:        new(big.Int).Set(stake),
		CreatorScore:       score,
		CreatedAt:          now,
		LastActivityAt:     now,
		Status:             StatusActive,
	}
	if err := e.putAssertion(record); err != nil {
		return 0, err
	}
	e.emit(events.AssertionSubmitted{
		ID:          id,
		TopicID:     topicID,
		Creator:     creator,
		Fingerprint: fingerprint,
		Stake:       new(big.Int).Set(stake),
		CreatedAt:   now,
	})
	return id, nil
}

// Attest backs an assertion with stake. The attester's current effective
// score (clamped at zero) is added to the accumulated attestation weight and
// the attester earns the configured engagement bonus.
func (e *Engine) Attest(attester [20]byte, assertionID uint64, stake *big.Int) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	record, err := e.getAssertion(assertionID)
	if err != nil {
		return err
	}
	if record.Status != StatusActive {
		return ErrInvalidState
	}
	if attester == record.Creator {
		return ErrUnauthorized
	}
	minimum, err := e.policy.MinAttestationStake()
	if err != nil {
		return err
	}
	if err := validStake(stake, minimum); err != nil {
		return err
	}
	score, err := e.scores.EffectiveScore(attester)
	if err != nil {
		return err
	}
	weight := tally.ClampScore(score)
	if err := e.ledger.Debit(attester, stake); err != nil {
		return err
	}
	now := e.now()
	if err := e.upsertAttestation(assertionID, attester, stake, weight, now); err != nil {
		return err
	}
	record.AttestWeight = tally.AddWeight(record.AttestWeight, weight)
	record.LastActivityAt = now
	if err := e.putAssertion(record); err != nil {
		return err
	}
	bonus, err := e.policy.AttestReputationBonus()
	if err != nil {
		return err
	}
	if bonus > 0 {
		if _, err := e.scores.ApplyDelta(attester, bonus, reasonAttestBonus); err != nil {
			return err
		}
	}
	e.emit(events.AssertionAttested{
		ID:           assertionID,
		Attester:     attester,
		Stake:        new(big.Int).Set(stake),
		Weight:       weight,
		AttestWeight: record.AttestWeight,
	})
	return nil
}

// upsertAttestation folds a new stake and weight contribution into the
// attester's row, creating it on first contact, and tracks the attester in
// the per-assertion address list.
func (e *Engine) upsertAttestation(assertionID uint64, attester [20]byte, stake *big.Int, weight uint64, now int64) error {
	row, found, err := e.getAttestation(assertionID, attester)
	if err != nil {
		return err
	}
	if !found {
		row = &Attestation{
			AssertionID: assertionID,
			Attester:    attester,
			StakeLocked: big.NewInt(0),
			CreatedAt:   now,
		}
	}
	row.StakeLocked = new(big.Int).Add(row.StakeLocked, stake)
	row.Weight = tally.AddWeight(row.Weight, weight)
	row.UpdatedAt = now
	if err := e.putAttestation(row); err != nil {
		return err
	}
	return e.store.KVAppend(attestersKey(assertionID), attester[:])
}

// Dispute opens a challenge against an assertion. The first dispute moves the
// assertion to Disputed and starts the dispute window; later disputes must
// land before the window closes. Returns the new dispute id.
func (e *Engine) Dispute(disputer [20]byte, assertionID uint64, stake *big.Int, reason [32]byte) (uint64, error) {
	if err := e.collaborators(); err != nil {
		return 0, err
	}
	record, err := e.getAssertion(assertionID)
	if err != nil {
		return 0, err
	}
	now := e.now()
	switch record.Status {
	case StatusActive:
	case StatusDisputed:
		if now >= record.DisputeWindowEnd {
			return 0, ErrWindowClosed
		}
	default:
		return 0, ErrInvalidState
	}
	if disputer == record.Creator {
		return 0, ErrUnauthorized
	}
	minimum, err := e.policy.MinDisputeStake()
	if err != nil {
		return 0, err
	}
	if err := validStake(stake, minimum); err != nil {
		return 0, err
	}
	score, err := e.scores.EffectiveScore(disputer)
	if err != nil {
		return 0, err
	}
	weight := tally.ClampScore(score)
	if err := e.ledger.Debit(disputer, stake); err != nil {
		return 0, err
	}
	disputeID, err := e.store.NextID(disputeCounter)
	if err != nil {
		return 0, err
	}
	row := &Dispute{
		ID:                disputeID,
		AssertionID:       assertionID,
		Disputer:          disputer,
		StakeLocked:       new(big.Int).Set(stake),
		ReasonFingerprint: reason,
		ScoreAtDispute:    score,
		Weight:            weight,
		Status:            DisputeOpen,
		CreatedAt:         now,
	}
	if err := e.putDispute(row); err != nil {
		return 0, err
	}
	if record.Status == StatusActive {
		record.Status = StatusDisputed
		window, err := e.policy.DisputeWindowSeconds()
		if err != nil {
			return 0, err
		}
		record.DisputeWindowEnd = now + window
	}
	record.DisputeWeight = tally.AddWeight(record.DisputeWeight, weight)
	record.LastActivityAt = now
	record.DisputeIDs = append(record.DisputeIDs, disputeID)
	if err := e.putAssertion(record); err != nil {
		return 0, err
	}
	e.emit(events.AssertionDisputed{
		ID:            assertionID,
		DisputeID:     disputeID,
		Disputer:      disputer,
		Stake:         new(big.Int).Set(stake),
		Reason:        reason,
		Weight:        weight,
		DisputeWeight: record.DisputeWeight,
		WindowEnd:     record.DisputeWindowEnd,
	})
	return disputeID, nil
}

// SignalRelevance refreshes the activity timer of an assertion that has gone
// quiet for longer than the relevance decay period. The stake is escrowed as
// a zero-weight attestation row and refunds through the usual claim path.
func (e *Engine) SignalRelevance(caller [20]byte, assertionID uint64, stake *big.Int) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	record, err := e.getAssertion(assertionID)
	if err != nil {
		return err
	}
	if record.Status != StatusActive {
		return ErrInvalidState
	}
	decay, err := e.policy.RelevanceDecaySeconds()
	if err != nil {
		return err
	}
	now := e.now()
	if now-record.LastActivityAt <= decay {
		return ErrWindowNotElapsed
	}
	minimum, err := e.policy.MinRelevanceStake()
	if err != nil {
		return err
	}
	if err := validStake(stake, minimum); err != nil {
		return err
	}
	if err := e.ledger.Debit(caller, stake); err != nil {
		return err
	}
	if err := e.upsertAttestation(assertionID, caller, stake, 0, now); err != nil {
		return err
	}
	record.LastActivityAt = now
	if err := e.putAssertion(record); err != nil {
		return err
	}
	e.emit(events.RelevanceSignalled{
		ID:             assertionID,
		Caller:         caller,
		Stake:          new(big.Int).Set(stake),
		LastActivityAt: now,
	})
	return nil
}

// MarkObsolete retires an assertion whose activity timer has decayed without
// anyone signalling relevance. All escrowed stakes become refundable through
// claims.
func (e *Engine) MarkObsolete(caller [20]byte, assertionID uint64) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	record, err := e.getAssertion(assertionID)
	if err != nil {
		return err
	}
	if record.Status != StatusActive {
		return ErrInvalidState
	}
	decay, err := e.policy.RelevanceDecaySeconds()
	if err != nil {
		return err
	}
	now := e.now()
	if now-record.LastActivityAt <= decay {
		return ErrWindowNotElapsed
	}
	record.Status = StatusObsolete
	record.CreatorPayout = new(big.Int).Set(record.StakeLocked)
	if err := e.ledger.AccruePending(record.Creator, record.CreatorPayout); err != nil {
		return err
	}
	if err := e.refundAttestations(assertionID); err != nil {
		return err
	}
	if err := e.putAssertion(record); err != nil {
		return err
	}
	e.emit(events.AssertionObsoleted{ID: assertionID, Caller: caller, ObsoletedAt: now})
	return nil
}

// refundAttestations marks every attestation row claimable at face value.
func (e *Engine) refundAttestations(assertionID uint64) error {
	addrs, err := e.attesters(assertionID)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		row, found, err := e.getAttestation(assertionID, addr)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("assert: attester %x listed without a row", addr)
		}
		row.Payout = new(big.Int).Set(row.StakeLocked)
		if err := e.putAttestation(row); err != nil {
			return err
		}
		if err := e.ledger.AccruePending(addr, row.Payout); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the stored assertion or ErrNotFound.
func (e *Engine) Get(assertionID uint64) (*Assertion, error) {
	return e.getAssertion(assertionID)
}

// GetDispute returns the stored dispute or ErrNotFound.
func (e *Engine) GetDispute(disputeID uint64) (*Dispute, error) {
	return e.getDispute(disputeID)
}

// GetAttestation returns the attester's aggregated row, if present.
func (e *Engine) GetAttestation(assertionID uint64, attester [20]byte) (*Attestation, bool, error) {
	return e.getAttestation(assertionID, attester)
}

// ListDisputes returns every dispute row attached to the assertion in
// creation order.
func (e *Engine) ListDisputes(assertionID uint64) ([]*Dispute, error) {
	record, err := e.getAssertion(assertionID)
	if err != nil {
		return nil, err
	}
	out := make([]*Dispute, 0, len(record.DisputeIDs))
	for _, id := range record.DisputeIDs {
		row, err := e.getDispute(id)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
