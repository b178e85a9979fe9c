package gov

import (
	"fmt"
	"math/big"
	"time"

	"veritynet/core/events"
	"veritynet/native/params"
	"veritynet/native/tally"
)

const proposalCounter = "gov"

// storage abstracts the subset of state manager functionality the engine
// needs.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	NextID(name string) (uint64, error)
}

// Ledger is the token boundary for proposal deposits.
type Ledger interface {
	Debit(addr [20]byte, amount *big.Int) error
	Credit(addr [20]byte, amount *big.Int) error
}

// ScoreSource supplies the reputation weights behind proposal votes.
type ScoreSource interface {
	EffectiveScore(addr [20]byte) (int64, error)
}

// ParamSink receives the validated parameter update when a passed proposal
// executes.
type ParamSink interface {
	Apply(key string, value []byte) error
}

// Policy supplies the governance knobs the engine reads at call time.
type Policy interface {
	GovMinDeposit() (*big.Int, error)
	GovVotingPeriodSeconds() (int64, error)
	GovTimelockSeconds() (int64, error)
	GovQuorumWeight() (uint64, error)
	GovPassThresholdBps() (uint32, error)
	FeeTreasury() ([20]byte, bool, error)
}

var (
	proposalPrefix = []byte("gov/proposal/")
	votePrefix     = []byte("gov/vote/")
)

func proposalKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", proposalPrefix, id))
}

func voteKey(id uint64, voter [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", votePrefix, id, voter))
}

type storedProposal struct {
	Proposer        [20]byte
	ParamKey        string
	ParamValue      []byte
	Deposit         *big.Int
	SubmittedAt     uint64
	VotingEndTime   uint64
	TimelockEndTime uint64
	YesWeight       uint64
	NoWeight        uint64
	Status          uint8
}

type storedVote struct {
	Support bool
	Weight  uint64
	CastAt  uint64
}

// Engine implements closed-enum parameter governance. Proposals target one
// key from the governable allow-list; votes carry the voter's clamped
// effective reputation; a passed proposal applies its value after a
// timelock.
type Engine struct {
	store   storage
	ledger  Ledger
	scores  ScoreSource
	sink    ParamSink
	policy  Policy
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a governance engine from its collaborators.
func NewEngine(store storage, ledger Ledger, scores ScoreSource, sink ParamSink, policy Policy) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		scores:  scores,
		sink:    sink,
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
		return fmt.Errorf("gov: storage not configured")
	}
	if e.ledger == nil {
		return fmt.Errorf("gov: ledger not configured")
	}
	if e.scores == nil {
		return fmt.Errorf("gov: score source not configured")
	}
	if e.sink == nil {
		return fmt.Errorf("gov: parameter sink not configured")
	}
	if e.policy == nil {
		return fmt.Errorf("gov: policy not configured")
	}
	return nil
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) getProposal(id uint64) (*Proposal, error) {
	stored := storedProposal{}
	found, err := e.store.KVGet(proposalKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	deposit := stored.Deposit
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	return &Proposal{
		ID:              id,
		Proposer:        stored.Proposer,
		ParamKey:        stored.ParamKey,
		ParamValue:      stored.ParamValue,
		Deposit:         deposit,
		SubmittedAt:     int64(stored.SubmittedAt),
		VotingEndTime:   int64(stored.VotingEndTime),
		TimelockEndTime: int64(stored.TimelockEndTime),
		YesWeight:       stored.YesWeight,
		NoWeight:        stored.NoWeight,
		Status:          Status(stored.Status),
	}, nil
}

func (e *Engine) putProposal(p *Proposal) error {
	if p == nil {
		return fmt.Errorf("gov: proposal must not be nil")
	}
	deposit := p.Deposit
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	stored := storedProposal{
		Proposer:   p.Proposer,
		ParamKey:   p.ParamKey,
		ParamValue: p.ParamValue,
		Deposit:    deposit,
		YesWeight:  p.YesWeight,
		NoWeight:   p.NoWeight,
		Status:     uint8(p.Status),
	}
	if p.SubmittedAt > 0 {
		stored.SubmittedAt = uint64(p.SubmittedAt)
	}
	if p.VotingEndTime > 0 {
		stored.VotingEndTime = uint64(p.VotingEndTime)
	}
	if p.TimelockEndTime > 0 {
		stored.TimelockEndTime = uint64(p.TimelockEndTime)
	}
	return e.store.KVPut(proposalKey(p.ID), &stored)
}

// Propose opens a proposal to set the named parameter to the supplied JSON
// value. The deposit is escrowed until finalization.
func (e *Engine) Propose(proposer [20]byte, key string, value []byte, deposit *big.Int) (uint64, error) {
	if err := e.collaborators(); err != nil {
		return 0, err
	}
	if !params.Governable(key) {
		return 0, ErrUnknownParam
	}
	if err := params.ValidateJSON(key, value); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	minimum, err := e.policy.GovMinDeposit()
	if err != nil {
		return 0, err
	}
	if deposit == nil || deposit.Sign() <= 0 || deposit.Cmp(minimum) < 0 {
		return 0, ErrInsufficientDeposit
	}
	if err := e.ledger.Debit(proposer, deposit); err != nil {
		return 0, err
	}
	votingPeriod, err := e.policy.GovVotingPeriodSeconds()
	if err != nil {
		return 0, err
	}
	id, err := e.store.NextID(proposalCounter)
	if err != nil {
		return 0, err
	}
	now := e.now()
	proposal := &Proposal{
		ID:            id,
		Proposer:      proposer,
		ParamKey:      key,
		ParamValue:    append([]byte(nil), value...),
		Deposit:       new(big.Int).Set(deposit),
		SubmittedAt:   now,
		VotingEndTime: now + votingPeriod,
		Status:        StatusVoting,
	}
	if err := e.putProposal(proposal); err != nil {
		return 0, err
	}
	e.emit(events.GovProposed{
		ID:            id,
		Proposer:      proposer,
		ParamKey:      key,
		Deposit:       new(big.Int).Set(deposit),
		VotingEndTime: proposal.VotingEndTime,
	})
	return id, nil
}

// Vote records the voter's position, weighted by their clamped effective
// score at vote time. A repeat vote replaces the earlier one; the last write
// inside the window wins.
func (e *Engine) Vote(voter [20]byte, proposalID uint64, support bool) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	proposal, err := e.getProposal(proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != StatusVoting {
		return ErrInvalidState
	}
	now := e.now()
	if now >= proposal.VotingEndTime {
		return ErrWindowClosed
	}
	score, err := e.scores.EffectiveScore(voter)
	if err != nil {
		return err
	}
	weight := tally.ClampScore(score)
	if weight == 0 {
		return ErrNoVotingWeight
	}
	marker := voteKey(proposalID, voter)
	previous := storedVote{}
	replaced, err := e.store.KVGet(marker, &previous)
	if err != nil {
		return err
	}
	if replaced {
		if previous.Support {
			proposal.YesWeight = tally.SubWeight(proposal.YesWeight, previous.Weight)
		} else {
			proposal.NoWeight = tally.SubWeight(proposal.NoWeight, previous.Weight)
		}
	}
	if support {
		proposal.YesWeight = tally.AddWeight(proposal.YesWeight, weight)
	} else {
		proposal.NoWeight = tally.AddWeight(proposal.NoWeight, weight)
	}
	if err := e.store.KVPut(marker, &storedVote{Support: support, Weight: weight, CastAt: uint64(now)}); err != nil {
		return err
	}
	if err := e.putProposal(proposal); err != nil {
		return err
	}
	e.emit(events.GovVoted{ID: proposalID, Voter: voter, Support: support, Weight: weight})
	return nil
}

// Finalize tallies a proposal once its voting window has elapsed. Passing
// requires the combined weight to reach the quorum and the yes share to
// reach the pass threshold. The deposit is refunded on a pass and routed to
// the fee treasury on a rejection.
func (e *Engine) Finalize(proposalID uint64) (Status, error) {
	if err := e.collaborators(); err != nil {
		return 0, err
	}
	proposal, err := e.getProposal(proposalID)
	if err != nil {
		return 0, err
	}
	if proposal.Status != StatusVoting {
		return 0, ErrInvalidState
	}
	now := e.now()
	if now < proposal.VotingEndTime {
		return 0, ErrWindowNotElapsed
	}
	quorum, err := e.policy.GovQuorumWeight()
	if err != nil {
		return 0, err
	}
	passBps, err := e.policy.GovPassThresholdBps()
	if err != nil {
		return 0, err
	}
	total := tally.AddWeight(proposal.YesWeight, proposal.NoWeight)
	if total > 0 && total >= quorum && passesThreshold(proposal.YesWeight, total, passBps) {
		timelock, err := e.policy.GovTimelockSeconds()
		if err != nil {
			return 0, err
		}
		proposal.Status = StatusPassed
		proposal.TimelockEndTime = now + timelock
		if err := e.putProposal(proposal); err != nil {
			return 0, err
		}
		if err := e.ledger.Credit(proposal.Proposer, proposal.Deposit); err != nil {
			return 0, err
		}
	} else {
		proposal.Status = StatusRejected
		if err := e.putProposal(proposal); err != nil {
			return 0, err
		}
		treasury, ok, err := e.policy.FeeTreasury()
		if err != nil {
			return 0, err
		}
		// With no treasury configured the forfeited deposit stays in
		// the vault, permanently out of circulation.
		if ok && proposal.Deposit.Sign() > 0 {
			if err := e.ledger.Credit(treasury, proposal.Deposit); err != nil {
				return 0, err
			}
		}
	}
	e.emit(events.GovFinalized{
		ID:              proposalID,
		Status:          proposal.Status.String(),
		YesWeight:       proposal.YesWeight,
		NoWeight:        proposal.NoWeight,
		TimelockEndTime: proposal.TimelockEndTime,
	})
	return proposal.Status, nil
}

// passesThreshold reports yes/total >= bps/10000 using exact integer math.
func passesThreshold(yes, total uint64, bps uint32) bool {
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(yes), big.NewInt(10_000))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(total), big.NewInt(int64(bps)))
	return lhs.Cmp(rhs) >= 0
}

// Execute applies a passed proposal's parameter update once the timelock
// has elapsed.
func (e *Engine) Execute(proposalID uint64) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	proposal, err := e.getProposal(proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != StatusPassed {
		return ErrInvalidState
	}
	if e.now() < proposal.TimelockEndTime {
		return ErrTimelockNotElapsed
	}
	if err := e.sink.Apply(proposal.ParamKey, proposal.ParamValue); err != nil {
		return err
	}
	proposal.Status = StatusExecuted
	if err := e.putProposal(proposal); err != nil {
		return err
	}
	e.emit(events.GovExecuted{ID: proposalID, ParamKey: proposal.ParamKey})
	return nil
}

// Get returns the stored proposal or ErrNotFound.
func (e *Engine) Get(proposalID uint64) (*Proposal, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	return e.getProposal(proposalID)
}

// GetVote returns a voter's latest recorded vote, if any.
func (e *Engine) GetVote(proposalID uint64, voter [20]byte) (*VoteRecord, bool, error) {
	if err := e.collaborators(); err != nil {
		return nil, false, err
	}
	stored := storedVote{}
	found, err := e.store.KVGet(voteKey(proposalID, voter), &stored)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &VoteRecord{
		ProposalID: proposalID,
		Voter:      voter,
		Support:    stored.Support,
		Weight:     stored.Weight,
		CastAt:     int64(stored.CastAt),
	}, true, nil
}
