package topic

import (
	"fmt"
	"strings"
	"time"

	"veritynet/core/events"
)

const idCounter = "topic"

// storage abstracts the subset of state manager functionality the registry
// needs.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	NextID(name string) (uint64, error)
}

// policy supplies the governance parameters the registry reads at call time.
type policy interface {
	TopicApprovalThreshold() (uint64, error)
}

var (
	recordPrefix   = []byte("topic/record/")
	approvalPrefix = []byte("topic/approval/")
)

func recordKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", recordPrefix, id))
}

func approvalKey(id uint64, voter [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", approvalPrefix, id, voter))
}

type storedTopic struct {
	Name        string
	Proposer    [20]byte
	Status      uint8
	Approvals   uint64
	CreatedAt   uint64
	ActivatedAt uint64
}

// Registry manages the topic lifecycle: proposals accumulate one approval per
// voter and activate once the configured threshold is reached.
type Registry struct {
	store   storage
	policy  policy
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry constructs a registry bound to the provided storage and policy.
func NewRegistry(store storage, policy policy) *Registry {
	return &Registry{
		store:   store,
		policy:  policy,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event sink. Passing nil restores the no-op
// emitter.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if r == nil {
		return
	}
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) emit(evt events.Event) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}

func (r *Registry) withStore() (storage, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("topic: storage not configured")
	}
	return r.store, nil
}

func (r *Registry) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

func (r *Registry) getTopic(id uint64) (*Topic, error) {
	store, err := r.withStore()
	if err != nil {
		return nil, err
	}
	stored := storedTopic{}
	found, err := store.KVGet(recordKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &Topic{
		ID:          id,
		Name:        stored.Name,
		Proposer:    stored.Proposer,
		Status:      Status(stored.Status),
		Approvals:   stored.Approvals,
		CreatedAt:   int64(stored.CreatedAt),
		ActivatedAt: int64(stored.ActivatedAt),
	}, nil
}

func (r *Registry) putTopic(t *Topic) error {
	store, err := r.withStore()
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("topic: record must not be nil")
	}
	stored := storedTopic{
		Name:      t.Name,
		Proposer:  t.Proposer,
		Status:    uint8(t.Status),
		Approvals: t.Approvals,
	}
	if t.CreatedAt > 0 {
		stored.CreatedAt = uint64(t.CreatedAt)
	}
	if t.ActivatedAt > 0 {
		stored.ActivatedAt = uint64(t.ActivatedAt)
	}
	return store.KVPut(recordKey(t.ID), &stored)
}

// Propose registers a new topic in the Proposed stage and returns its id.
func (r *Registry) Propose(proposer [20]byte, name string) (uint64, error) {
	store, err := r.withStore()
	if err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrInvalidName
	}
	id, err := store.NextID(idCounter)
	if err != nil {
		return 0, err
	}
	record := &Topic{
		ID:        id,
		Name:      name,
		Proposer:  proposer,
		Status:    StatusProposed,
		CreatedAt: r.now(),
	}
	if err := r.putTopic(record); err != nil {
		return 0, err
	}
	r.emit(events.TopicProposed{ID: id, Name: name, Proposer: proposer})
	return id, nil
}

// Seed registers a topic that is active from the start, bypassing the
// approval vote. Used for genesis topics only.
func (r *Registry) Seed(proposer [20]byte, name string) (uint64, error) {
	store, err := r.withStore()
	if err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrInvalidName
	}
	id, err := store.NextID(idCounter)
	if err != nil {
		return 0, err
	}
	now := r.now()
	record := &Topic{
		ID:          id,
		Name:        name,
		Proposer:    proposer,
		Status:      StatusActive,
		CreatedAt:   now,
		ActivatedAt: now,
	}
	if err := r.putTopic(record); err != nil {
		return 0, err
	}
	r.emit(events.TopicProposed{ID: id, Name: name, Proposer: proposer})
	r.emit(events.TopicActivated{ID: id})
	return id, nil
}

// Approve records one approval vote per voter. Reaching the configured
// threshold activates the topic.
func (r *Registry) Approve(id uint64, voter [20]byte) error {
	store, err := r.withStore()
	if err != nil {
		return err
	}
	if r.policy == nil {
		return fmt.Errorf("topic: policy not configured")
	}
	record, err := r.getTopic(id)
	if err != nil {
		return err
	}
	if record.Status != StatusProposed {
		return ErrInvalidState
	}
	marker := approvalKey(id, voter)
	voted, err := store.KVGet(marker, nil)
	if err != nil {
		return err
	}
	if voted {
		return ErrAlreadyApproved
	}
	if err := store.KVPut(marker, true); err != nil {
		return err
	}
	record.Approvals++
	threshold, err := r.policy.TopicApprovalThreshold()
	if err != nil {
		return err
	}
	activated := record.Approvals >= threshold
	if activated {
		record.Status = StatusActive
		record.ActivatedAt = r.now()
	}
	if err := r.putTopic(record); err != nil {
		return err
	}
	r.emit(events.TopicApproved{ID: id, Voter: voter, Approvals: record.Approvals})
	if activated {
		r.emit(events.TopicActivated{ID: id})
	}
	return nil
}

// Abandon retires a still-Proposed topic. Only the proposer may abandon.
func (r *Registry) Abandon(id uint64, caller [20]byte) error {
	record, err := r.getTopic(id)
	if err != nil {
		return err
	}
	if record.Status != StatusProposed {
		return ErrInvalidState
	}
	if record.Proposer != caller {
		return ErrUnauthorized
	}
	record.Status = StatusAbandoned
	if err := r.putTopic(record); err != nil {
		return err
	}
	r.emit(events.TopicAbandoned{ID: id})
	return nil
}

// Get returns the stored topic or ErrNotFound.
func (r *Registry) Get(id uint64) (*Topic, error) {
	return r.getTopic(id)
}

// IsActive reports whether the topic exists and accepts assertions. Unknown
// ids read as inactive rather than erroring so callers can gate uniformly.
func (r *Registry) IsActive(id uint64) (bool, error) {
	record, err := r.getTopic(id)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return record.Status == StatusActive, nil
}
