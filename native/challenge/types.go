package challenge

import (
	"errors"
	"math/big"
)

var (
	// ErrNotFound marks lookups of unknown challenge ids.
	ErrNotFound = errors.New("challenge: not found")
	// ErrInvalidState marks operations attempted outside the Open
	// lifecycle stage.
	ErrInvalidState = errors.New("challenge: invalid state for operation")
	// ErrInsufficientStake marks stakes below the configured minimum.
	ErrInsufficientStake = errors.New("challenge: stake below minimum")
	// ErrUnauthorized marks ineligible challengers, self-challenges,
	// party votes and sub-threshold voters.
	ErrUnauthorized = errors.New("challenge: unauthorized")
	// ErrWindowNotElapsed marks resolution attempts before the vote window
	// closes.
	ErrWindowNotElapsed = errors.New("challenge: window not elapsed")
	// ErrWindowClosed marks votes cast after the window closed.
	ErrWindowClosed = errors.New("challenge: window closed")
	// ErrAlreadyVoted marks repeat votes from the same voter.
	ErrAlreadyVoted = errors.New("challenge: already voted")
	// ErrAlreadyClaimed marks repeat stake claims.
	ErrAlreadyClaimed = errors.New("challenge: stake already claimed")
	// ErrNothingToClaim marks claims by a party with no entitlement.
	ErrNothingToClaim = errors.New("challenge: nothing to claim")
)

// Status captures a challenge's lifecycle stage.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusUpheld
	StatusDismissed
	StatusInconclusive
)

// Valid reports whether the status is a known lifecycle stage.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusUpheld, StatusDismissed, StatusInconclusive:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusUpheld:
		return "upheld"
	case StatusDismissed:
		return "dismissed"
	case StatusInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// Challenge is a meta-dispute against a participant's reputation score,
// resolved by weighted votes from third parties.
type Challenge struct {
	ID                uint64
	Challenger        [20]byte
	Challenged        [20]byte
	StakeLocked       *big.Int
	ReasonFingerprint [32]byte
	VotesUpheld       uint64
	VotesDismissed    uint64
	VoteWindowEnd     int64
	CreatedAt         int64
	Status            Status
	SlashedAmount     uint64
	ChallengerPayout  *big.Int
	ChallengedPayout  *big.Int
	ChallengerClaimed bool
	ChallengedClaimed bool
}

// Clone returns a deep copy of the challenge.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	clone := *c
	if c.StakeLocked != nil {
		clone.StakeLocked = new(big.Int).Set(c.StakeLocked)
	}
	if c.ChallengerPayout != nil {
		clone.ChallengerPayout = new(big.Int).Set(c.ChallengerPayout)
	}
	if c.ChallengedPayout != nil {
		clone.ChallengedPayout = new(big.Int).Set(c.ChallengedPayout)
	}
	return &clone
}

// Vote is one voter's recorded position on a challenge.
type Vote struct {
	ChallengeID uint64
	Voter       [20]byte
	Upheld      bool
	Weight      uint64
	CastAt      int64
}
