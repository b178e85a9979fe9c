package core

import (
	"fmt"
	"math/big"
	"sync"

	"veritynet/core/events"
	"veritynet/core/state"
	"veritynet/native/assertion"
	"veritynet/native/challenge"
	"veritynet/native/common"
	"veritynet/native/gov"
	"veritynet/native/ledger"
	"veritynet/native/params"
	"veritynet/native/reputation"
	"veritynet/native/topic"
	"veritynet/storage"
)

var eventSeqKey = []byte("events/seq")

// eventHistoryLimit bounds the in-memory backlog replayed to new subscribers.
const eventHistoryLimit = 256

// SequencedEvent pairs a committed event with its position in the node's
// event history. Sequence numbers are strictly increasing and survive node
// restarts, so downstream consumers can deduplicate replays.
type SequencedEvent struct {
	Seq   uint64
	Event events.Event
}

// eventBuffer collects the events an operation emits while its state
// transaction is open. The node broadcasts the buffer only after the
// transaction commits; an aborted operation emits nothing.
type eventBuffer struct {
	pending []events.Event
}

func (b *eventBuffer) Emit(evt events.Event) {
	b.pending = append(b.pending, evt)
}

func (b *eventBuffer) drain() []events.Event {
	out := b.pending
	b.pending = nil
	return out
}

func (b *eventBuffer) reset() {
	b.pending = nil
}

// Node owns the database, the state manager, the parameter store and every
// engine, and serializes all operations under one mutex. Each mutating
// operation runs inside a state transaction; committed events fan out to
// registered sinks and subscribers in commit order.
type Node struct {
	mu     sync.Mutex
	db     storage.Database
	state  *state.Manager
	params *params.Store
	buffer *eventBuffer

	ledger     *ledger.Engine
	reputation *reputation.Engine
	topics     *topic.Registry
	assertions *assertion.Engine
	challenges *challenge.Engine
	gov        *gov.Engine

	subMu   sync.Mutex
	lastSeq uint64
	nextSub uint64
	subs    map[uint64]chan SequencedEvent
	sinks   []func(SequencedEvent)
	history []SequencedEvent
}

// NewNode wires the engines over the supplied database.
func NewNode(db storage.Database) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	manager := state.NewManager(db)
	store := params.NewStore(manager)
	buffer := &eventBuffer{}

	ledgerEngine := ledger.NewEngine(manager)
	repEngine := reputation.NewEngine(reputation.NewLedger(manager))
	repEngine.SetEmitter(buffer)
	topicRegistry := topic.NewRegistry(manager, store)
	topicRegistry.SetEmitter(buffer)
	assertEngine := assertion.NewEngine(manager, ledgerEngine, repEngine, topicRegistry, store)
	assertEngine.SetEmitter(buffer)
	challengeEngine := challenge.NewEngine(manager, ledgerEngine, repEngine, store)
	challengeEngine.SetEmitter(buffer)
	govEngine := gov.NewEngine(manager, ledgerEngine, repEngine, store, store)
	govEngine.SetEmitter(buffer)

	node := &Node{
		db:         db,
		state:      manager,
		params:     store,
		buffer:     buffer,
		ledger:     ledgerEngine,
		reputation: repEngine,
		topics:     topicRegistry,
		assertions: assertEngine,
		challenges: challengeEngine,
		gov:        govEngine,
		subs:       make(map[uint64]chan SequencedEvent),
	}
	if _, err := manager.KVGet(eventSeqKey, &node.lastSeq); err != nil {
		return nil, fmt.Errorf("core: load event sequence: %w", err)
	}
	return node, nil
}

// SetNowFunc overrides the wall clock of every engine. Passing nil restores
// real time.
func (n *Node) SetNowFunc(now func() int64) {
	n.topics.SetNowFunc(now)
	n.assertions.SetNowFunc(now)
	n.challenges.SetNowFunc(now)
	n.gov.SetNowFunc(now)
	n.reputation.SetNowFunc(now)
}

// ParamStore exposes the typed parameter accessors for read paths.
func (n *Node) ParamStore() *params.Store {
	return n.params
}

// SetModulePauses persists the pause switches enforced on every mutating
// operation. Operators apply this at startup from configuration.
func (n *Node) SetModulePauses(pauses params.Pauses) error {
	return n.withTxn("", func() error {
		return n.params.SetPauses(pauses)
	})
}

// RegisterSink adds a synchronous consumer called for every committed event.
// Sinks must be fast and must not call back into the node.
func (n *Node) RegisterSink(sink func(SequencedEvent)) {
	if sink == nil {
		return
	}
	n.subMu.Lock()
	defer n.subMu.Unlock()
	n.sinks = append(n.sinks, sink)
}

// Subscribe registers a buffered event channel and returns the retained
// history entries with a sequence greater than the supplied cursor. When a
// subscriber falls behind its buffer, events are dropped for that subscriber
// rather than blocking the node. The returned function cancels the
// subscription and closes the channel.
func (n *Node) Subscribe(cursor uint64) (<-chan SequencedEvent, func(), []SequencedEvent) {
	ch := make(chan SequencedEvent, 32)
	n.subMu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch
	backlog := make([]SequencedEvent, 0, len(n.history))
	for _, entry := range n.history {
		if entry.Seq > cursor {
			backlog = append(backlog, entry)
		}
	}
	n.subMu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.subMu.Lock()
			if existing, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(existing)
			}
			n.subMu.Unlock()
		})
	}
	return ch, cancel, backlog
}

func (n *Node) publish(batch []events.Event) {
	if len(batch) == 0 {
		return
	}
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, evt := range batch {
		n.lastSeq++
		sequenced := SequencedEvent{Seq: n.lastSeq, Event: evt}
		n.history = append(n.history, sequenced)
		if len(n.history) > eventHistoryLimit {
			n.history = n.history[len(n.history)-eventHistoryLimit:]
		}
		for _, sink := range n.sinks {
			sink(sequenced)
		}
		for _, ch := range n.subs {
			select {
			case ch <- sequenced:
			default:
			}
		}
	}
}

// withTxn serializes a mutating operation: pause guard, state transaction,
// and post-commit event broadcast. The event sequence counter advances
// inside the same transaction, so replayed sequence numbers cannot occur.
func (n *Node) withTxn(module string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if module != "" {
		pauses, err := n.params.Pauses()
		if err != nil {
			return err
		}
		if err := common.Guard(pauses, module); err != nil {
			return fmt.Errorf("%s: %w", module, err)
		}
	}
	if err := n.state.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		n.state.Abort()
		n.buffer.reset()
		return err
	}
	if emitted := len(n.buffer.pending); emitted > 0 {
		if err := n.state.KVPut(eventSeqKey, n.lastSeq+uint64(emitted)); err != nil {
			n.state.Abort()
			n.buffer.reset()
			return err
		}
	}
	if err := n.state.Commit(); err != nil {
		n.buffer.reset()
		return err
	}
	n.publish(n.buffer.drain())
	return nil
}

// withRead serializes a read against in-flight transactions.
func (n *Node) withRead(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn()
}

// --- Assertions ---

// SubmitAssertion records a new assertion under an active topic, escrowing
// the creator's stake.
func (n *Node) SubmitAssertion(creator [20]byte, topicID uint64, fingerprint [32]byte, stake *big.Int) (uint64, error) {
	var id uint64
	err := n.withTxn(common.ModuleAssertions, func() error {
		var err error
		id, err = n.assertions.Submit(creator, topicID, fingerprint, stake)
		return err
	})
	return id, err
}

// AttestAssertion locks stake in support of an assertion.
func (n *Node) AttestAssertion(attester [20]byte, assertionID uint64, stake *big.Int) error {
	return n.withTxn(common.ModuleAssertions, func() error {
		return n.assertions.Attest(attester, assertionID, stake)
	})
}

// DisputeAssertion locks stake against an assertion and opens (or joins) its
// dispute window.
func (n *Node) DisputeAssertion(disputer [20]byte, assertionID uint64, stake *big.Int, reason [32]byte) (uint64, error) {
	var id uint64
	err := n.withTxn(common.ModuleAssertions, func() error {
		var err error
		id, err = n.assertions.Dispute(disputer, assertionID, stake, reason)
		return err
	})
	return id, err
}

// SignalAssertionRelevance refreshes a decayed assertion's activity clock.
func (n *Node) SignalAssertionRelevance(caller [20]byte, assertionID uint64, stake *big.Int) error {
	return n.withTxn(common.ModuleAssertions, func() error {
		return n.assertions.SignalRelevance(caller, assertionID, stake)
	})
}

// MarkAssertionObsolete retires an inactive assertion and unlocks its
// stakes for claiming.
func (n *Node) MarkAssertionObsolete(caller [20]byte, assertionID uint64) error {
	return n.withTxn(common.ModuleAssertions, func() error {
		return n.assertions.MarkObsolete(caller, assertionID)
	})
}

// ResolveAssertion settles a disputed assertion once its window elapsed.
func (n *Node) ResolveAssertion(assertionID uint64) (assertion.Outcome, error) {
	var outcome assertion.Outcome
	err := n.withTxn(common.ModuleAssertions, func() error {
		var err error
		outcome, err = n.assertions.Resolve(assertionID)
		return err
	})
	return outcome, err
}

// ClaimAssertionStake pays out the caller's settled assertion entitlement.
func (n *Node) ClaimAssertionStake(caller [20]byte, assertionID uint64) (*big.Int, error) {
	var payout *big.Int
	err := n.withTxn(common.ModuleAssertions, func() error {
		var err error
		payout, err = n.assertions.ClaimAssertionStake(caller, assertionID)
		return err
	})
	return payout, err
}

// ClaimDisputeStake pays out the caller's settled dispute entitlement.
func (n *Node) ClaimDisputeStake(caller [20]byte, disputeID uint64) (*big.Int, error) {
	var payout *big.Int
	err := n.withTxn(common.ModuleAssertions, func() error {
		var err error
		payout, err = n.assertions.ClaimDisputeStake(caller, disputeID)
		return err
	})
	return payout, err
}

// GetAssertion returns the stored assertion.
func (n *Node) GetAssertion(assertionID uint64) (*assertion.Assertion, error) {
	var record *assertion.Assertion
	err := n.withRead(func() error {
		var err error
		record, err = n.assertions.Get(assertionID)
		return err
	})
	return record, err
}

// GetDispute returns the stored dispute.
func (n *Node) GetDispute(disputeID uint64) (*assertion.Dispute, error) {
	var record *assertion.Dispute
	err := n.withRead(func() error {
		var err error
		record, err = n.assertions.GetDispute(disputeID)
		return err
	})
	return record, err
}

// GetAttestation returns the caller's attestation row on an assertion.
func (n *Node) GetAttestation(assertionID uint64, attester [20]byte) (*assertion.Attestation, bool, error) {
	var (
		record *assertion.Attestation
		found  bool
	)
	err := n.withRead(func() error {
		var err error
		record, found, err = n.assertions.GetAttestation(assertionID, attester)
		return err
	})
	return record, found, err
}

// ListAssertionDisputes returns every dispute raised against an assertion.
func (n *Node) ListAssertionDisputes(assertionID uint64) ([]*assertion.Dispute, error) {
	var records []*assertion.Dispute
	err := n.withRead(func() error {
		var err error
		records, err = n.assertions.ListDisputes(assertionID)
		return err
	})
	return records, err
}

// --- Reputation ---

// ReputationProfile returns the address's reputation profile.
func (n *Node) ReputationProfile(addr [20]byte) (*reputation.Profile, error) {
	var profile *reputation.Profile
	err := n.withRead(func() error {
		var err error
		profile, err = n.reputation.Profile(addr)
		return err
	})
	return profile, err
}

// DelegateReputation moves effective score from delegator to delegate.
func (n *Node) DelegateReputation(delegator, delegate [20]byte, amount uint64) error {
	return n.withTxn(common.ModuleReputation, func() error {
		return n.reputation.Delegate(delegator, delegate, amount)
	})
}

// UndelegateReputation returns previously delegated score.
func (n *Node) UndelegateReputation(delegator, delegate [20]byte, amount uint64) error {
	return n.withTxn(common.ModuleReputation, func() error {
		return n.reputation.Undelegate(delegator, delegate, amount)
	})
}

// GetDelegation returns the delegation row between the pair, if any.
func (n *Node) GetDelegation(delegator, delegate [20]byte) (*reputation.Delegation, bool, error) {
	var (
		record *reputation.Delegation
		found  bool
	)
	err := n.withRead(func() error {
		var err error
		record, found, err = n.reputation.Delegation(delegator, delegate)
		return err
	})
	return record, found, err
}

// --- Challenges ---

// OpenChallenge starts a reputation challenge with escrowed stake.
func (n *Node) OpenChallenge(challenger, challenged [20]byte, stake *big.Int, reason [32]byte) (uint64, error) {
	var id uint64
	err := n.withTxn(common.ModuleChallenges, func() error {
		var err error
		id, err = n.challenges.Open(challenger, challenged, stake, reason)
		return err
	})
	return id, err
}

// VoteChallenge records a weighted third-party vote on a challenge.
func (n *Node) VoteChallenge(voter [20]byte, challengeID uint64, upheld bool) error {
	return n.withTxn(common.ModuleChallenges, func() error {
		return n.challenges.Vote(voter, challengeID, upheld)
	})
}

// ResolveChallenge settles a challenge once its vote window elapsed.
func (n *Node) ResolveChallenge(challengeID uint64) (challenge.Status, error) {
	var status challenge.Status
	err := n.withTxn(common.ModuleChallenges, func() error {
		var err error
		status, err = n.challenges.Resolve(challengeID)
		return err
	})
	return status, err
}

// ClaimChallengeStake pays out the caller's side of a resolved challenge.
func (n *Node) ClaimChallengeStake(caller [20]byte, challengeID uint64) (*big.Int, error) {
	var payout *big.Int
	err := n.withTxn(common.ModuleChallenges, func() error {
		var err error
		payout, err = n.challenges.ClaimStake(caller, challengeID)
		return err
	})
	return payout, err
}

// GetChallenge returns the stored challenge.
func (n *Node) GetChallenge(challengeID uint64) (*challenge.Challenge, error) {
	var record *challenge.Challenge
	err := n.withRead(func() error {
		var err error
		record, err = n.challenges.Get(challengeID)
		return err
	})
	return record, err
}

// --- Topics ---

// ProposeTopic registers a topic awaiting approval votes.
func (n *Node) ProposeTopic(proposer [20]byte, name string) (uint64, error) {
	var id uint64
	err := n.withTxn(common.ModuleTopics, func() error {
		var err error
		id, err = n.topics.Propose(proposer, name)
		return err
	})
	return id, err
}

// ApproveTopic records one approval vote; the threshold vote activates the
// topic.
func (n *Node) ApproveTopic(topicID uint64, voter [20]byte) error {
	return n.withTxn(common.ModuleTopics, func() error {
		return n.topics.Approve(topicID, voter)
	})
}

// AbandonTopic withdraws a proposed topic.
func (n *Node) AbandonTopic(topicID uint64, caller [20]byte) error {
	return n.withTxn(common.ModuleTopics, func() error {
		return n.topics.Abandon(topicID, caller)
	})
}

// GetTopic returns the stored topic.
func (n *Node) GetTopic(topicID uint64) (*topic.Topic, error) {
	var record *topic.Topic
	err := n.withRead(func() error {
		var err error
		record, err = n.topics.Get(topicID)
		return err
	})
	return record, err
}

// --- Governance ---

// SubmitProposal opens a parameter-change proposal with an escrowed deposit.
func (n *Node) SubmitProposal(proposer [20]byte, key string, value []byte, deposit *big.Int) (uint64, error) {
	var id uint64
	err := n.withTxn(common.ModuleGov, func() error {
		var err error
		id, err = n.gov.Propose(proposer, key, value, deposit)
		return err
	})
	return id, err
}

// VoteProposal records a reputation-weighted vote; a revote replaces the
// previous one.
func (n *Node) VoteProposal(voter [20]byte, proposalID uint64, support bool) error {
	return n.withTxn(common.ModuleGov, func() error {
		return n.gov.Vote(voter, proposalID, support)
	})
}

// FinalizeProposal tallies a proposal after its voting window.
func (n *Node) FinalizeProposal(proposalID uint64) (gov.Status, error) {
	var status gov.Status
	err := n.withTxn(common.ModuleGov, func() error {
		var err error
		status, err = n.gov.Finalize(proposalID)
		return err
	})
	return status, err
}

// ExecuteProposal applies a passed proposal after its timelock.
func (n *Node) ExecuteProposal(proposalID uint64) error {
	return n.withTxn(common.ModuleGov, func() error {
		return n.gov.Execute(proposalID)
	})
}

// GetProposal returns the stored proposal.
func (n *Node) GetProposal(proposalID uint64) (*gov.Proposal, error) {
	var record *gov.Proposal
	err := n.withRead(func() error {
		var err error
		record, err = n.gov.Get(proposalID)
		return err
	})
	return record, err
}

// --- Ledger ---

// Balance returns the spendable VNT balance of the address.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.withRead(func() error {
		var err error
		balance, err = n.ledger.BalanceOf(addr)
		return err
	})
	return balance, err
}

// PendingRewards returns the address's settlement value awaiting a claim.
func (n *Node) PendingRewards(addr [20]byte) (*big.Int, error) {
	var pending *big.Int
	err := n.withRead(func() error {
		var err error
		pending, err = n.ledger.PendingRewards(addr)
		return err
	})
	return pending, err
}

// Transfer moves VNT between accounts.
func (n *Node) Transfer(from, to [20]byte, amount *big.Int) error {
	return n.withTxn(common.ModuleLedger, func() error {
		return n.ledger.Transfer(from, to, amount)
	})
}

// Approve sets the spender's allowance over the owner's balance.
func (n *Node) Approve(owner, spender [20]byte, amount *big.Int) error {
	return n.withTxn(common.ModuleLedger, func() error {
		return n.ledger.Approve(owner, spender, amount)
	})
}

// Allowance returns the spender's remaining allowance over the owner's
// balance.
func (n *Node) Allowance(owner, spender [20]byte) (*big.Int, error) {
	var allowance *big.Int
	err := n.withRead(func() error {
		var err error
		allowance, err = n.ledger.Allowance(owner, spender)
		return err
	})
	return allowance, err
}

// TotalSupply returns the minted VNT supply.
func (n *Node) TotalSupply() (*big.Int, error) {
	var supply *big.Int
	err := n.withRead(func() error {
		var err error
		supply, err = n.ledger.TotalSupply()
		return err
	})
	return supply, err
}
