package challenge

import (
	"fmt"
	"math/big"
	"time"

	"veritynet/core/events"
	"veritynet/native/tally"
)

const challengeCounter = "challenge"

// eligibilityDivisor scales the challenged party's base score into the
// minimum effective score a challenger must hold. It keeps trivial accounts
// from challenging high-reputation participants.
const eligibilityDivisor = 10

// Reputation delta reasons recorded on ReputationChanged events.
const (
	reasonUpheld    = "challenge.upheld"
	reasonDismissed = "challenge.dismissed"
)

// storage abstracts the subset of state manager functionality the engine
// needs.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	NextID(name string) (uint64, error)
}

// Ledger is the token boundary for challenge stakes.
type Ledger interface {
	Debit(addr [20]byte, amount *big.Int) error
	Credit(addr [20]byte, amount *big.Int) error
	AccruePending(addr [20]byte, amount *big.Int) error
	SettlePending(addr [20]byte, amount *big.Int) error
}

// ScoreSource supplies reputation reads and resolution-time mutations.
type ScoreSource interface {
	EffectiveScore(addr [20]byte) (int64, error)
	BaseScore(addr [20]byte) (int64, error)
	ApplyDelta(addr [20]byte, delta int64, reason string) (int64, error)
	SlashBps(addr [20]byte, bps uint64, reason string) (uint64, error)
}

// Policy supplies the governance parameters the engine reads at call time.
type Policy interface {
	ChallengeStake() (*big.Int, error)
	VoteWindowSeconds() (int64, error)
	MinVoteThreshold() (int64, error)
	ReputationStep() (int64, error)
	ChallengeSlashBps() (uint32, error)
}

var (
	recordPrefix = []byte("challenge/record/")
	votePrefix   = []byte("challenge/vote/")
)

func recordKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", recordPrefix, id))
}

func voteKey(id uint64, voter [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", votePrefix, id, voter))
}

type storedChallenge struct {
	Challenger        [20]byte
	Challenged        [20]byte
	Stake             *big.Int
	Reason            [32]byte
	VotesUpheld       uint64
	VotesDismissed    uint64
	VoteWindowEnd     uint64
	CreatedAt         uint64
	Status            uint8
	SlashedAmount     uint64
	ChallengerPayout  *big.Int
	ChallengedPayout  *big.Int
	ChallengerClaimed bool
	ChallengedClaimed bool
}

type storedVote struct {
	Upheld bool
	Weight uint64
	CastAt uint64
}

// Engine implements the reputation-challenge resolver. It follows the same
// read-weights-then-settle pattern as the dispute resolver, with third-party
// weighted votes in place of stake-weighted disputes.
type Engine struct {
	store   storage
	ledger  Ledger
	scores  ScoreSource
	policy  Policy
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a challenge engine from its collaborators.
func NewEngine(store storage, ledger Ledger, scores ScoreSource, policy Policy) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		scores:  scores,
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

func (e *Engine) collaborators() error {
	if e == nil || e.store == nil {
		return fmt.Errorf("challenge: storage not configured")
	}
	if e.ledger == nil {
		return fmt.Errorf("challenge: ledger not configured")
	}
	if e.scores == nil {
		return fmt.Errorf("challenge: score source not configured")
	}
	if e.policy == nil {
		return fmt.Errorf("challenge: policy not configured")
	}
	return nil
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) getChallenge(id uint64) (*Challenge, error) {
	stored := storedChallenge{}
	found, err := e.store.KVGet(recordKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	normalize := func(v *big.Int) *big.Int {
		if v == nil {
			return big.NewInt(0)
		}
		return v
	}
	return &Challenge{
		ID:                id,
		Challenger:        stored.Challenger,
		Challenged:        stored.Challenged,
		StakeLocked:       normalize(stored.Stake),
		ReasonFingerprint: stored.Reason,
		VotesUpheld:       stored.VotesUpheld,
		VotesDismissed:    stored.VotesDismissed,
		VoteWindowEnd:     int64(stored.VoteWindowEnd),
		CreatedAt:         int64(stored.CreatedAt),
		Status:            Status(stored.Status),
		SlashedAmount:     stored.SlashedAmount,
		ChallengerPayout:  normalize(stored.ChallengerPayout),
		ChallengedPayout:  normalize(stored.ChallengedPayout),
		ChallengerClaimed: stored.ChallengerClaimed,
		ChallengedClaimed: stored.ChallengedClaimed,
	}, nil
}

func (e *Engine) putChallenge(c *Challenge) error {
	if c == nil {
		return fmt.Errorf("challenge: record must not be nil")
	}
	normalize := func(v *big.Int) *big.Int {
		if v == nil {
			return big.NewInt(0)
		}
		return v
	}
	stored := storedChallenge{
		Challenger:        c.Challenger,
		Challenged:        c.Challenged,
		Stake:             normalize(c.StakeLocked),
		Reason:            c.ReasonFingerprint,
		VotesUpheld:       c.VotesUpheld,
		VotesDismissed:    c.VotesDismissed,
		Status:            uint8(c.Status),
		SlashedAmount:     c.SlashedAmount,
		ChallengerPayout:  normalize(c.ChallengerPayout),
		ChallengedPayout:  normalize(c.ChallengedPayout),
		ChallengerClaimed: c.ChallengerClaimed,
		ChallengedClaimed: c.ChallengedClaimed,
	}
	if c.VoteWindowEnd > 0 {
		stored.VoteWindowEnd = uint64(c.VoteWindowEnd)
	}
	if c.CreatedAt > 0 {
		stored.CreatedAt = uint64(c.CreatedAt)
	}
	return e.store.KVPut(recordKey(c.ID), &stored)
}

// Open starts a challenge against another participant's score. The
// challenger's effective score must reach a tenth of the challenged party's
// base score, and the stake is escrowed until resolution.
func (e *Engine) Open(challenger, challenged [20]byte, stake *big.Int, reason [32]byte) (uint64, error) {
	if err := e.collaborators(); err != nil {
		return 0, err
	}
	if challenger == challenged {
		return 0, ErrUnauthorized
	}
	challengerScore, err := e.scores.EffectiveScore(challenger)
	if err != nil {
		return 0, err
	}
	challengedBase, err := e.scores.BaseScore(challenged)
	if err != nil {
		return 0, err
	}
	if challengerScore < challengedBase/eligibilityDivisor {
		return 0, ErrUnauthorized
	}
	minimum, err := e.policy.ChallengeStake()
	if err != nil {
		return 0, err
	}
	if stake == nil || stake.Sign() <= 0 || stake.Cmp(minimum) < 0 {
		return 0, ErrInsufficientStake
	}
	if err := e.ledger.Debit(challenger, stake); err != nil {
		return 0, err
	}
	window, err := e.policy.VoteWindowSeconds()
	if err != nil {
		return 0, err
	}
	id, err := e.store.NextID(challengeCounter)
	if err != nil {
		return 0, err
	}
	now := e.now()
	record := &Challenge{
		ID:                id,
		Challenger:        challenger,
		Challenged:        challenged,
		StakeLocked:       new(big.Int).Set(stake),
		ReasonFingerprint: reason,
		VoteWindowEnd:     now + window,
		CreatedAt:         now,
		Status:            StatusOpen,
	}
	if err := e.putChallenge(record); err != nil {
		return 0, err
	}
	e.emit(events.ChallengeOpened{
		ID:         id,
		Challenger: challenger,
		Challenged: challenged,
		Stake:      new(big.Int).Set(stake),
		Reason:     reason,
		WindowEnd:  record.VoteWindowEnd,
	})
	return id, nil
}

// Vote records a third-party weighted vote. Each eligible voter votes once;
// the weight is the voter's effective score clamped at zero.
func (e *Engine) Vote(voter [20]byte, challengeID uint64, upheld bool) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	record, err := e.getChallenge(challengeID)
	if err != nil {
		return err
	}
	if record.Status != StatusOpen {
		return ErrInvalidState
	}
	now := e.now()
	if now >= record.VoteWindowEnd {
		return ErrWindowClosed
	}
	if voter == record.Challenger || voter == record.Challenged {
		return ErrUnauthorized
	}
	score, err := e.scores.EffectiveScore(voter)
	if err != nil {
		return err
	}
	threshold, err := e.policy.MinVoteThreshold()
	if err != nil {
		return err
	}
	if score < threshold {
		return ErrUnauthorized
	}
	marker := voteKey(challengeID, voter)
	voted, err := e.store.KVGet(marker, nil)
	if err != nil {
		return err
	}
	if voted {
		return ErrAlreadyVoted
	}
	weight := tally.ClampScore(score)
	if err := e.store.KVPut(marker, &storedVote{Upheld: upheld, Weight: weight, CastAt: uint64(now)}); err != nil {
		return err
	}
	if upheld {
		record.VotesUpheld = tally.AddWeight(record.VotesUpheld, weight)
	} else {
		record.VotesDismissed = tally.AddWeight(record.VotesDismissed, weight)
	}
	if err := e.putChallenge(record); err != nil {
		return err
	}
	e.emit(events.ChallengeVoted{ID: challengeID, Voter: voter, Upheld: upheld, Weight: weight})
	return nil
}

// Resolve finalizes a challenge once the vote window has elapsed, applying
// the decisive-ratio rule to the accumulated vote weights.
func (e *Engine) Resolve(challengeID uint64) (Status, error) {
	if err := e.collaborators(); err != nil {
		return 0, err
	}
	record, err := e.getChallenge(challengeID)
	if err != nil {
		return 0, err
	}
	if record.Status != StatusOpen {
		return 0, ErrInvalidState
	}
	if e.now() < record.VoteWindowEnd {
		return 0, ErrWindowNotElapsed
	}
	step, err := e.policy.ReputationStep()
	if err != nil {
		return 0, err
	}
	switch tally.Decide(record.VotesUpheld, record.VotesDismissed) {
	case tally.OutcomeFor:
		slashBps, err := e.policy.ChallengeSlashBps()
		if err != nil {
			return 0, err
		}
		slashed, err := e.scores.SlashBps(record.Challenged, uint64(slashBps), reasonUpheld)
		if err != nil {
			return 0, err
		}
		if _, err := e.scores.ApplyDelta(record.Challenger, step, reasonUpheld); err != nil {
			return 0, err
		}
		record.Status = StatusUpheld
		record.SlashedAmount = slashed
		record.ChallengerPayout = new(big.Int).Set(record.StakeLocked)
		record.ChallengedPayout = big.NewInt(0)
	case tally.OutcomeAgainst:
		if _, err := e.scores.ApplyDelta(record.Challenger, -step, reasonDismissed); err != nil {
			return 0, err
		}
		record.Status = StatusDismissed
		record.ChallengerPayout = big.NewInt(0)
		record.ChallengedPayout = new(big.Int).Set(record.StakeLocked)
	default:
		record.Status = StatusInconclusive
		half := new(big.Int).Rsh(record.StakeLocked, 1)
		record.ChallengedPayout = half
		record.ChallengerPayout = new(big.Int).Sub(record.StakeLocked, half)
	}
	if record.ChallengerPayout.Sign() > 0 {
		if err := e.ledger.AccruePending(record.Challenger, record.ChallengerPayout); err != nil {
			return 0, err
		}
	}
	if record.ChallengedPayout.Sign() > 0 {
		if err := e.ledger.AccruePending(record.Challenged, record.ChallengedPayout); err != nil {
			return 0, err
		}
	}
	if err := e.putChallenge(record); err != nil {
		return 0, err
	}
	e.emit(events.ChallengeResolved{
		ID:             challengeID,
		Status:         record.Status.String(),
		VotesUpheld:    record.VotesUpheld,
		VotesDismissed: record.VotesDismissed,
	})
	return record.Status, nil
}

// ClaimStake pays out the caller's side of a resolved challenge. Claims are
// idempotent; a repeat claim fails with ErrAlreadyClaimed.
func (e *Engine) ClaimStake(caller [20]byte, challengeID uint64) (*big.Int, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	record, err := e.getChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	if record.Status == StatusOpen {
		return nil, ErrInvalidState
	}
	var payout *big.Int
	switch caller {
	case record.Challenger:
		if record.ChallengerClaimed {
			return nil, ErrAlreadyClaimed
		}
		if record.ChallengerPayout.Sign() == 0 {
			return nil, ErrNothingToClaim
		}
		record.ChallengerClaimed = true
		payout = new(big.Int).Set(record.ChallengerPayout)
	case record.Challenged:
		if record.ChallengedClaimed {
			return nil, ErrAlreadyClaimed
		}
		if record.ChallengedPayout.Sign() == 0 {
			return nil, ErrNothingToClaim
		}
		record.ChallengedClaimed = true
		payout = new(big.Int).Set(record.ChallengedPayout)
	default:
		return nil, ErrUnauthorized
	}
	if err := e.putChallenge(record); err != nil {
		return nil, err
	}
	if err := e.ledger.SettlePending(caller, payout); err != nil {
		return nil, err
	}
	if err := e.ledger.Credit(caller, payout); err != nil {
		return nil, err
	}
	e.emit(events.StakeClaimed{
		Scope:    events.ClaimScopeChallenge,
		ID:       challengeID,
		Claimant: caller,
		Amount:   new(big.Int).Set(payout),
	})
	return payout, nil
}

// Get returns the stored challenge or ErrNotFound.
func (e *Engine) Get(challengeID uint64) (*Challenge, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	return e.getChallenge(challengeID)
}

// GetVote returns a voter's recorded vote, if any.
func (e *Engine) GetVote(challengeID uint64, voter [20]byte) (*Vote, bool, error) {
	if err := e.collaborators(); err != nil {
		return nil, false, err
	}
	stored := storedVote{}
	found, err := e.store.KVGet(voteKey(challengeID, voter), &stored)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &Vote{
		ChallengeID: challengeID,
		Voter:       voter,
		Upheld:      stored.Upheld,
		Weight:      stored.Weight,
		CastAt:      int64(stored.CastAt),
	}, true, nil
}
