package events

import (
	"encoding/hex"
	"math/big"

	"veritynet/core/types"
)

const (
	TypeAssertionSubmitted = "assertion.submitted"
	TypeAssertionAttested  = "assertion.attested"
	TypeAssertionDisputed  = "assertion.disputed"
	TypeAssertionResolved  = "assertion.resolved"
	TypeRelevanceSignalled = "assertion.relevanceSignalled"
	TypeAssertionObsoleted = "assertion.obsoleted"
	TypeStakeClaimed       = "stake.claimed"
)

// Claim scopes recorded on StakeClaimed events.
const (
	ClaimScopeAssertion = "assertion"
	ClaimScopeDispute   = "dispute"
	ClaimScopeChallenge = "challenge"
)

type AssertionSubmitted struct {
	ID          uint64
	TopicID     uint64
	Creator     [20]byte
	Fingerprint [32]byte
	Stake       *big.Int
	CreatedAt   int64
}

func (AssertionSubmitted) EventType() string { return TypeAssertionSubmitted }

func (e AssertionSubmitted) Event() *types.Event {
	return &types.Event{
		Type: TypeAssertionSubmitted,
		Attributes: map[string]string{
			"id":          uintToString(e.ID),
			"topicId":     uintToString(e.TopicID),
			"creator":     addressString(e.Creator),
			"fingerprint": hex.EncodeToString(e.Fingerprint[:]),
			"stake":       formatAmount(e.Stake),
			"createdAt":   intToString(e.CreatedAt),
		},
	}
}

type AssertionAttested struct {
	ID           uint64
	Attester     [20]byte
	Stake        *big.Int
	Weight       uint64
	AttestWeight uint64
}

func (AssertionAttested) EventType() string { return TypeAssertionAttested }

func (e AssertionAttested) Event() *types.Event {
	return &types.Event{
		Type: TypeAssertionAttested,
		Attributes: map[string]string{
			"id":           uintToString(e.ID),
			"attester":     addressString(e.Attester),
			"stake":        formatAmount(e.Stake),
			"weight":       uintToString(e.Weight),
			"attestWeight": uintToString(e.AttestWeight),
		},
	}
}

type AssertionDisputed struct {
	ID            uint64
	DisputeID     uint64
	Disputer      [20]byte
	Stake         *big.Int
	Reason        [32]byte
	Weight        uint64
	DisputeWeight uint64
	WindowEnd     int64
}

func (AssertionDisputed) EventType() string { return TypeAssertionDisputed }

func (e AssertionDisputed) Event() *types.Event {
	return &types.Event{
		Type: TypeAssertionDisputed,
		Attributes: map[string]string{
			"id":            uintToString(e.ID),
			"disputeId":     uintToString(e.DisputeID),
			"disputer":      addressString(e.Disputer),
			"stake":         formatAmount(e.Stake),
			"reason":        hex.EncodeToString(e.Reason[:]),
			"weight":        uintToString(e.Weight),
			"disputeWeight": uintToString(e.DisputeWeight),
			"windowEnd":     intToString(e.WindowEnd),
		},
	}
}

type AssertionResolved struct {
	ID            uint64
	Outcome       string
	AttestWeight  uint64
	DisputeWeight uint64
	DisputeCount  uint64
	Fee           *big.Int
}

func (AssertionResolved) EventType() string { return TypeAssertionResolved }

func (e AssertionResolved) Event() *types.Event {
	return &types.Event{
		Type: TypeAssertionResolved,
		Attributes: map[string]string{
			"id":            uintToString(e.ID),
			"outcome":       e.Outcome,
			"attestWeight":  uintToString(e.AttestWeight),
			"disputeWeight": uintToString(e.DisputeWeight),
			"disputeCount":  uintToString(e.DisputeCount),
			"fee":           formatAmount(e.Fee),
		},
	}
}

type RelevanceSignalled struct {
	ID             uint64
	Caller         [20]byte
	Stake          *big.Int
	LastActivityAt int64
}

func (RelevanceSignalled) EventType() string { return TypeRelevanceSignalled }

func (e RelevanceSignalled) Event() *types.Event {
	return &types.Event{
		Type: TypeRelevanceSignalled,
		Attributes: map[string]string{
			"id":             uintToString(e.ID),
			"caller":         addressString(e.Caller),
			"stake":          formatAmount(e.Stake),
			"lastActivityAt": intToString(e.LastActivityAt),
		},
	}
}

type AssertionObsoleted struct {
	ID          uint64
	Caller      [20]byte
	ObsoletedAt int64
}

func (AssertionObsoleted) EventType() string { return TypeAssertionObsoleted }

func (e AssertionObsoleted) Event() *types.Event {
	return &types.Event{
		Type: TypeAssertionObsoleted,
		Attributes: map[string]string{
			"id":          uintToString(e.ID),
			"caller":      addressString(e.Caller),
			"obsoletedAt": intToString(e.ObsoletedAt),
		},
	}
}

type StakeClaimed struct {
	Scope    string
	ID       uint64
	Claimant [20]byte
	Amount   *big.Int
}

func (StakeClaimed) EventType() string { return TypeStakeClaimed }

func (e StakeClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeClaimed,
		Attributes: map[string]string{
			"scope":    e.Scope,
			"id":       uintToString(e.ID),
			"claimant": addressString(e.Claimant),
			"amount":   formatAmount(e.Amount),
		},
	}
}
