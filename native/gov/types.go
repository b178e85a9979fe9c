package gov

import (
	"errors"
	"math/big"
)

var (
	// ErrNotFound marks lookups of unknown proposal ids.
	ErrNotFound = errors.New("gov: proposal not found")
	// ErrInvalidState marks operations attempted outside the proposal's
	// current lifecycle stage.
	ErrInvalidState = errors.New("gov: invalid state for operation")
	// ErrUnknownParam marks proposals targeting a parameter outside the
	// governable allow-list.
	ErrUnknownParam = errors.New("gov: parameter not governable")
	// ErrInvalidValue marks proposals carrying a malformed parameter value.
	ErrInvalidValue = errors.New("gov: invalid parameter value")
	// ErrInsufficientDeposit marks deposits below the configured minimum.
	ErrInsufficientDeposit = errors.New("gov: deposit below minimum")
	// ErrNoVotingWeight marks votes from accounts whose clamped effective
	// score is zero.
	ErrNoVotingWeight = errors.New("gov: voter has no voting weight")
	// ErrWindowNotElapsed marks finalization attempts before the voting
	// window closes.
	ErrWindowNotElapsed = errors.New("gov: voting window not elapsed")
	// ErrWindowClosed marks votes cast after the voting window closed.
	ErrWindowClosed = errors.New("gov: voting window closed")
	// ErrTimelockNotElapsed marks execution attempts before the timelock
	// expires.
	ErrTimelockNotElapsed = errors.New("gov: timelock not elapsed")
)

// Status captures a proposal's lifecycle stage.
type Status uint8

const (
	StatusVoting Status = iota + 1
	StatusPassed
	StatusRejected
	StatusExecuted
)

// Valid reports whether the status is a known lifecycle stage.
func (s Status) Valid() bool {
	switch s {
	case StatusVoting, StatusPassed, StatusRejected, StatusExecuted:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusVoting:
		return "voting"
	case StatusPassed:
		return "passed"
	case StatusRejected:
		return "rejected"
	case StatusExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Proposal is a request to change one governable parameter. The value is
// kept as the raw JSON payload it will be applied with.
type Proposal struct {
	ID              uint64
	Proposer        [20]byte
	ParamKey        string
	ParamValue      []byte
	Deposit         *big.Int
	SubmittedAt     int64
	VotingEndTime   int64
	TimelockEndTime int64
	YesWeight       uint64
	NoWeight        uint64
	Status          Status
}

// Clone returns a deep copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ParamValue != nil {
		clone.ParamValue = append([]byte(nil), p.ParamValue...)
	}
	if p.Deposit != nil {
		clone.Deposit = new(big.Int).Set(p.Deposit)
	}
	return &clone
}

// VoteRecord is one voter's latest recorded position on a proposal.
type VoteRecord struct {
	ProposalID uint64
	Voter      [20]byte
	Support    bool
	Weight     uint64
	CastAt     int64
}
