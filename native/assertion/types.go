package assertion

import (
	"errors"
	"math/big"
)

var (
	// ErrNotFound marks lookups of unknown assertion or dispute ids.
	ErrNotFound = errors.New("assert: not found")
	// ErrInvalidState marks operations attempted outside the valid
	// lifecycle state.
	ErrInvalidState = errors.New("assert: invalid state for operation")
	// ErrInsufficientStake marks stakes below the configured minimum.
	ErrInsufficientStake = errors.New("assert: stake below minimum")
	// ErrTopicNotActive marks submissions against topics that are not
	// accepting assertions.
	ErrTopicNotActive = errors.New("assert: topic not active")
	// ErrUnauthorized marks callers acting on entities they must not touch,
	// e.g. a creator attesting its own assertion.
	ErrUnauthorized = errors.New("assert: unauthorized")
	// ErrWindowNotElapsed marks resolution or decay operations attempted
	// before their window elapsed.
	ErrWindowNotElapsed = errors.New("assert: window not elapsed")
	// ErrWindowClosed marks dispute attempts after the dispute window
	// closed.
	ErrWindowClosed = errors.New("assert: window closed")
	// ErrAlreadyClaimed marks repeat stake claims.
	ErrAlreadyClaimed = errors.New("assert: stake already claimed")
	// ErrNothingToClaim marks claims by parties with no entitlement.
	ErrNothingToClaim = errors.New("assert: nothing to claim")
)

// Status captures an assertion's lifecycle stage. Transitions are monotonic:
// Active->Disputed->Resolved is the only forward path, with Active->Obsolete
// reachable only through relevance decay.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusDisputed
	StatusResolved
	StatusObsolete
)

// Valid reports whether the status is a known lifecycle stage.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDisputed, StatusResolved, StatusObsolete:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	case StatusObsolete:
		return "obsolete"
	default:
		return "unknown"
	}
}

// Outcome is the terminal verdict recorded when a disputed assertion
// resolves.
type Outcome uint8

const (
	OutcomeUnresolved Outcome = iota
	OutcomeTrue
	OutcomeFalse
	OutcomeInconclusive
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTrue:
		return "true"
	case OutcomeFalse:
		return "false"
	case OutcomeInconclusive:
		return "inconclusive"
	default:
		return "unresolved"
	}
}

// DisputeStatus tracks an individual dispute row through settlement.
type DisputeStatus uint8

const (
	DisputeOpen DisputeStatus = iota + 1
	DisputeSettledWon
	DisputeSettledLost
	DisputeSettledRefunded
)

func (s DisputeStatus) String() string {
	switch s {
	case DisputeOpen:
		return "open"
	case DisputeSettledWon:
		return "settledWon"
	case DisputeSettledLost:
		return "settledLost"
	case DisputeSettledRefunded:
		return "settledRefunded"
	default:
		return "unknown"
	}
}

// Assertion is a claim submitted for community verification. Weights are
// accumulated sums of effective scores captured at action time; they are
// never re-evaluated against live reputation.
type Assertion struct {
	ID                 uint64
	TopicID            uint64
	Creator            [20]byte
	ContentFingerprint [32]byte
	StakeLocked        *big.Int
	CreatorScore       int64
	CreatedAt          int64
	LastActivityAt     int64
	Status             Status
	AttestWeight       uint64
	DisputeWeight      uint64
	DisputeWindowEnd   int64
	Outcome            Outcome
	DisputeIDs         []uint64
	CreatorPayout      *big.Int
	CreatorClaimed     bool
	FeeRetained        *big.Int
}

// Clone returns a deep copy of the assertion.
func (a *Assertion) Clone() *Assertion {
	if a == nil {
		return nil
	}
	clone := *a
	if a.StakeLocked != nil {
		clone.StakeLocked = new(big.Int).Set(a.StakeLocked)
	}
	if a.CreatorPayout != nil {
		clone.CreatorPayout = new(big.Int).Set(a.CreatorPayout)
	}
	if a.FeeRetained != nil {
		clone.FeeRetained = new(big.Int).Set(a.FeeRetained)
	}
	if a.DisputeIDs != nil {
		clone.DisputeIDs = append([]uint64(nil), a.DisputeIDs...)
	}
	return &clone
}

// Attestation aggregates one participant's backing of an assertion. Repeated
// attestations accumulate on the same row; relevance signals appear as
// zero-weight rows so their stakes flow through the same claim path.
type Attestation struct {
	AssertionID uint64
	Attester    [20]byte
	StakeLocked *big.Int
	Weight      uint64
	CreatedAt   int64
	UpdatedAt   int64
	Payout      *big.Int
	Claimed     bool
}

// Clone returns a deep copy of the attestation.
func (a *Attestation) Clone() *Attestation {
	if a == nil {
		return nil
	}
	clone := *a
	if a.StakeLocked != nil {
		clone.StakeLocked = new(big.Int).Set(a.StakeLocked)
	}
	if a.Payout != nil {
		clone.Payout = new(big.Int).Set(a.Payout)
	}
	return &clone
}

// Dispute is one disputer's challenge record against an assertion. The
// assertion aggregates dispute weight; each row's stake settles individually
// through claims.
type Dispute struct {
	ID                uint64
	AssertionID       uint64
	Disputer          [20]byte
	StakeLocked       *big.Int
	ReasonFingerprint [32]byte
	ScoreAtDispute    int64
	Weight            uint64
	Status            DisputeStatus
	CreatedAt         int64
	Payout            *big.Int
	Claimed           bool
}

// Clone returns a deep copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	if d.StakeLocked != nil {
		clone.StakeLocked = new(big.Int).Set(d.StakeLocked)
	}
	if d.Payout != nil {
		clone.Payout = new(big.Int).Set(d.Payout)
	}
	return &clone
}
