package events

import (
	"encoding/hex"
	"math/big"

	"veritynet/core/types"
)

const (
	TypeChallengeOpened   = "challenge.opened"
	TypeChallengeVoted    = "challenge.voted"
	TypeChallengeResolved = "challenge.resolved"
)

type ChallengeOpened struct {
	ID         uint64
	Challenger [20]byte
	Challenged [20]byte
	Stake      *big.Int
	Reason     [32]byte
	WindowEnd  int64
}

func (ChallengeOpened) EventType() string { return TypeChallengeOpened }

func (e ChallengeOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeOpened,
		Attributes: map[string]string{
			"id":         uintToString(e.ID),
			"challenger": addressString(e.Challenger),
			"challenged": addressString(e.Challenged),
			"stake":      formatAmount(e.Stake),
			"reason":     hex.EncodeToString(e.Reason[:]),
			"windowEnd":  intToString(e.WindowEnd),
		},
	}
}

type ChallengeVoted struct {
	ID     uint64
	Voter  [20]byte
	Upheld bool
	Weight uint64
}

func (ChallengeVoted) EventType() string { return TypeChallengeVoted }

func (e ChallengeVoted) Event() *types.Event {
	vote := "dismissed"
	if e.Upheld {
		vote = "upheld"
	}
	return &types.Event{
		Type: TypeChallengeVoted,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"voter":  addressString(e.Voter),
			"vote":   vote,
			"weight": uintToString(e.Weight),
		},
	}
}

type ChallengeResolved struct {
	ID             uint64
	Status         string
	VotesUpheld    uint64
	VotesDismissed uint64
}

func (ChallengeResolved) EventType() string { return TypeChallengeResolved }

func (e ChallengeResolved) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeResolved,
		Attributes: map[string]string{
			"id":             uintToString(e.ID),
			"status":         e.Status,
			"votesUpheld":    uintToString(e.VotesUpheld),
			"votesDismissed": uintToString(e.VotesDismissed),
		},
	}
}
