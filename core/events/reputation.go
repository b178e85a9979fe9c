package events

import "veritynet/core/types"

const (
	TypeReputationChanged     = "reputation.changed"
	TypeReputationDelegated   = "reputation.delegated"
	TypeReputationUndelegated = "reputation.undelegated"
)

type ReputationChanged struct {
	Address  [20]byte
	OldScore int64
	NewScore int64
	Reason   string
}

func (ReputationChanged) EventType() string { return TypeReputationChanged }

func (e ReputationChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeReputationChanged,
		Attributes: map[string]string{
			"address": addressString(e.Address),
			"old":     intToString(e.OldScore),
			"new":     intToString(e.NewScore),
			"reason":  e.Reason,
		},
	}
}

type Delegated struct {
	Delegator [20]byte
	Delegate  [20]byte
	Amount    uint64
	Total     uint64
}

func (Delegated) EventType() string { return TypeReputationDelegated }

func (e Delegated) Event() *types.Event {
	return &types.Event{
		Type: TypeReputationDelegated,
		Attributes: map[string]string{
			"delegator": addressString(e.Delegator),
			"delegate":  addressString(e.Delegate),
			"amount":    uintToString(e.Amount),
			"total":     uintToString(e.Total),
		},
	}
}

type Undelegated struct {
	Delegator [20]byte
	Delegate  [20]byte
	Amount    uint64
	Total     uint64
}

func (Undelegated) EventType() string { return TypeReputationUndelegated }

func (e Undelegated) Event() *types.Event {
	return &types.Event{
		Type: TypeReputationUndelegated,
		Attributes: map[string]string{
			"delegator": addressString(e.Delegator),
			"delegate":  addressString(e.Delegate),
			"amount":    uintToString(e.Amount),
			"total":     uintToString(e.Total),
		},
	}
}
