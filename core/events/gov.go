package events

import (
	"math/big"

	"veritynet/core/types"
)

const (
	TypeGovProposed  = "gov.proposed"
	TypeGovVoted     = "gov.voted"
	TypeGovFinalized = "gov.finalized"
	TypeGovExecuted  = "gov.executed"
)

type GovProposed struct {
	ID            uint64
	Proposer      [20]byte
	ParamKey      string
	Deposit       *big.Int
	VotingEndTime int64
}

func (GovProposed) EventType() string { return TypeGovProposed }

func (e GovProposed) Event() *types.Event {
	return &types.Event{
		Type: TypeGovProposed,
		Attributes: map[string]string{
			"id":            uintToString(e.ID),
			"proposer":      addressString(e.Proposer),
			"paramKey":      e.ParamKey,
			"deposit":       formatAmount(e.Deposit),
			"votingEndTime": intToString(e.VotingEndTime),
		},
	}
}

type GovVoted struct {
	ID      uint64
	Voter   [20]byte
	Support bool
	Weight  uint64
}

func (GovVoted) EventType() string { return TypeGovVoted }

func (e GovVoted) Event() *types.Event {
	support := "no"
	if e.Support {
		support = "yes"
	}
	return &types.Event{
		Type: TypeGovVoted,
		Attributes: map[string]string{
			"id":      uintToString(e.ID),
			"voter":   addressString(e.Voter),
			"support": support,
			"weight":  uintToString(e.Weight),
		},
	}
}

type GovFinalized struct {
	ID              uint64
	Status          string
	YesWeight       uint64
	NoWeight        uint64
	TimelockEndTime int64
}

func (GovFinalized) EventType() string { return TypeGovFinalized }

func (e GovFinalized) Event() *types.Event {
	return &types.Event{
		Type: TypeGovFinalized,
		Attributes: map[string]string{
			"id":              uintToString(e.ID),
			"status":          e.Status,
			"yesWeight":       uintToString(e.YesWeight),
			"noWeight":        uintToString(e.NoWeight),
			"timelockEndTime": intToString(e.TimelockEndTime),
		},
	}
}

type GovExecuted struct {
	ID       uint64
	ParamKey string
}

func (GovExecuted) EventType() string { return TypeGovExecuted }

func (e GovExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeGovExecuted,
		Attributes: map[string]string{
			"id":       uintToString(e.ID),
			"paramKey": e.ParamKey,
		},
	}
}
