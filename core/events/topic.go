package events

import "veritynet/core/types"

const (
	TypeTopicProposed  = "topic.proposed"
	TypeTopicApproved  = "topic.approved"
	TypeTopicActivated = "topic.activated"
	TypeTopicAbandoned = "topic.abandoned"
)

type TopicProposed struct {
	ID       uint64
	Name     string
	Proposer [20]byte
}

func (TopicProposed) EventType() string { return TypeTopicProposed }

func (e TopicProposed) Event() *types.Event {
	return &types.Event{
		Type: TypeTopicProposed,
		Attributes: map[string]string{
			"id":       uintToString(e.ID),
			"name":     e.Name,
			"proposer": addressString(e.Proposer),
		},
	}
}

type TopicApproved struct {
	ID        uint64
	Voter     [20]byte
	Approvals uint64
}

func (TopicApproved) EventType() string { return TypeTopicApproved }

func (e TopicApproved) Event() *types.Event {
	return &types.Event{
		Type: TypeTopicApproved,
		Attributes: map[string]string{
			"id":        uintToString(e.ID),
			"voter":     addressString(e.Voter),
			"approvals": uintToString(e.Approvals),
		},
	}
}

type TopicActivated struct {
	ID uint64
}

func (TopicActivated) EventType() string { return TypeTopicActivated }

func (e TopicActivated) Event() *types.Event {
	return &types.Event{
		Type:       TypeTopicActivated,
		Attributes: map[string]string{"id": uintToString(e.ID)},
	}
}

type TopicAbandoned struct {
	ID uint64
}

func (TopicAbandoned) EventType() string { return TypeTopicAbandoned }

func (e TopicAbandoned) Event() *types.Event {
	return &types.Event{
		Type:       TypeTopicAbandoned,
		Attributes: map[string]string{"id": uintToString(e.ID)},
	}
}
