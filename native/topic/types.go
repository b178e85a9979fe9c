package topic

import "errors"

var (
	// ErrNotFound marks lookups of unknown topic ids.
	ErrNotFound = errors.New("topic: not found")
	// ErrInvalidName marks proposals with an empty name.
	ErrInvalidName = errors.New("topic: name must not be empty")
	// ErrInvalidState marks operations attempted outside the Proposed
	// lifecycle stage.
	ErrInvalidState = errors.New("topic: operation not allowed in current status")
	// ErrAlreadyApproved marks repeat approvals from the same voter.
	ErrAlreadyApproved = errors.New("topic: voter already approved")
	// ErrUnauthorized marks abandon attempts by anyone but the proposer.
	ErrUnauthorized = errors.New("topic: unauthorized")
)

// Status captures a topic's lifecycle stage.
type Status uint8

const (
	StatusProposed Status = iota + 1
	StatusActive
	StatusAbandoned
)

// Valid reports whether the status is a known lifecycle stage.
func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusActive, StatusAbandoned:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusActive:
		return "active"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Topic is a coarse assertion category. Only Active topics accept new
// assertions.
type Topic struct {
	ID          uint64
	Name        string
	Proposer    [20]byte
	Status      Status
	Approvals   uint64
	CreatedAt   int64
	ActivatedAt int64
}

// Clone returns a deep copy of the topic.
func (t *Topic) Clone() *Topic {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
