package assertion

import (
	"fmt"
	"math/big"
)

const (
	assertionCounter = "assertion"
	disputeCounter   = "dispute"
)

// storage abstracts the subset of state manager functionality the engine
// needs.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	NextID(name string) (uint64, error)
}

var (
	recordPrefix    = []byte("assert/record/")
	attestPrefix    = []byte("assert/attest/")
	attestersPrefix = []byte("assert/attesters/")
	disputePrefix   = []byte("assert/dispute/")
)

func recordKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", recordPrefix, id))
}

func attestationKey(id uint64, attester [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", attestPrefix, id, attester))
}

func attestersKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", attestersPrefix, id))
}

func disputeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", disputePrefix, id))
}

// Stored forms keep RLP-friendly layouts: timestamps as uint64, signed scores
// as magnitude plus sign.

type storedAssertion struct {
	TopicID          uint64
	Creator          [20]byte
	Fingerprint      [32]byte
	Stake            *big.Int
	ScoreMagnitude   uint64
	ScoreNegative    bool
	CreatedAt        uint64
	LastActivityAt   uint64
	Status           uint8
	AttestWeight     uint64
	DisputeWeight    uint64
	DisputeWindowEnd uint64
	Outcome          uint8
	DisputeIDs       []uint64
	CreatorPayout    *big.Int
	CreatorClaimed   bool
	FeeRetained      *big.Int
}

type storedAttestation struct {
	Stake     *big.Int
	Weight    uint64
	CreatedAt uint64
	UpdatedAt uint64
	Payout    *big.Int
	Claimed   bool
}

type storedDispute struct {
	AssertionID    uint64
	Disputer       [20]byte
	Reason         [32]byte
	Stake          *big.Int
	ScoreMagnitude uint64
	ScoreNegative  bool
	Weight         uint64
	Status         uint8
	CreatedAt      uint64
	Payout         *big.Int
	Claimed        bool
}

func splitScore(score int64) (uint64, bool) {
	if score < 0 {
		return uint64(-(score + 1)) + 1, true
	}
	return uint64(score), false
}

func joinScore(magnitude uint64, negative bool) int64 {
	value := int64(magnitude)
	if negative {
		return -value
	}
	return value
}

func normalizeAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (e *Engine) getAssertion(id uint64) (*Assertion, error) {
	store, err := e.withStore()
	if err != nil {
		return nil, err
	}
	stored := storedAssertion{}
	found, err := store.KVGet(recordKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &Assertion{
		ID:                 id,
		TopicID:            stored.TopicID,
		Creator:            stored.Creator,
		ContentFingerprint: stored.Fingerprint,
		StakeLocked:        normalizeAmount(stored.Stake),
		CreatorScore:       joinScore(stored.ScoreMagnitude, stored.ScoreNegative),
		CreatedAt:          int64(stored.CreatedAt),
		LastActivityAt:     int64(stored.LastActivityAt),
		Status:             Status(stored.Status),
		AttestWeight:       stored.AttestWeight,
		DisputeWeight:      stored.DisputeWeight,
		DisputeWindowEnd:   int64(stored.DisputeWindowEnd),
		Outcome:            Outcome(stored.Outcome),
		DisputeIDs:         stored.DisputeIDs,
		CreatorPayout:      normalizeAmount(stored.CreatorPayout),
		CreatorClaimed:     stored.CreatorClaimed,
		FeeRetained:        normalizeAmount(stored.FeeRetained),
	}, nil
}

func (e *Engine) putAssertion(a *Assertion) error {
	store, err := e.withStore()
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("assert: record must not be nil")
	}
	magnitude, negative := splitScore(a.CreatorScore)
	stored := storedAssertion{
		TopicID:        a.TopicID,
		Creator:        a.Creator,
		Fingerprint:    a.ContentFingerprint,
		Stake:          normalizeAmount(a.StakeLocked),
		ScoreMagnitude: magnitude,
		ScoreNegative:  negative,
		Status:         uint8(a.Status),
		AttestWeight:   a.AttestWeight,
		DisputeWeight:  a.DisputeWeight,
		Outcome:        uint8(a.Outcome),
		DisputeIDs:     a.DisputeIDs,
		CreatorPayout:  normalizeAmount(a.CreatorPayout),
		CreatorClaimed: a.CreatorClaimed,
		FeeRetained:    normalizeAmount(a.FeeRetained),
	}
	if a.CreatedAt > 0 {
		stored.CreatedAt = uint64(a.CreatedAt)
	}
	if a.LastActivityAt > 0 {
		stored.LastActivityAt = uint64(a.LastActivityAt)
	}
	if a.DisputeWindowEnd > 0 {
		stored.DisputeWindowEnd = uint64(a.DisputeWindowEnd)
	}
	return store.KVPut(recordKey(a.ID), &stored)
}

func (e *Engine) getAttestation(assertionID uint64, attester [20]byte) (*Attestation, bool, error) {
	store, err := e.withStore()
	if err != nil {
		return nil, false, err
	}
	stored := storedAttestation{}
	found, err := store.KVGet(attestationKey(assertionID, attester), &stored)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &Attestation{
		AssertionID: assertionID,
		Attester:    attester,
		StakeLocked: normalizeAmount(stored.Stake),
		Weight:      stored.Weight,
		CreatedAt:   int64(stored.CreatedAt),
		UpdatedAt:   int64(stored.UpdatedAt),
		Payout:      normalizeAmount(stored.Payout),
		Claimed:     stored.Claimed,
	}, true, nil
}

func (e *Engine) putAttestation(a *Attestation) error {
	store, err := e.withStore()
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("assert: attestation must not be nil")
	}
	stored := storedAttestation{
		Stake:   normalizeAmount(a.StakeLocked),
		Weight:  a.Weight,
		Payout:  normalizeAmount(a.Payout),
		Claimed: a.Claimed,
	}
	if a.CreatedAt > 0 {
		stored.CreatedAt = uint64(a.CreatedAt)
	}
	if a.UpdatedAt > 0 {
		stored.UpdatedAt = uint64(a.UpdatedAt)
	}
	return store.KVPut(attestationKey(a.AssertionID, a.Attester), &stored)
}

func (e *Engine) attesters(assertionID uint64) ([][20]byte, error) {
	store, err := e.withStore()
	if err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := store.KVGetList(attestersKey(assertionID), &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("assert: malformed attester entry of %d bytes", len(entry))
		}
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

func (e *Engine) getDispute(id uint64) (*Dispute, error) {
	store, err := e.withStore()
	if err != nil {
		return nil, err
	}
	stored := storedDispute{}
	found, err := store.KVGet(disputeKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &Dispute{
		ID:                id,
		AssertionID:       stored.AssertionID,
		Disputer:          stored.Disputer,
		StakeLocked:       normalizeAmount(stored.Stake),
		ReasonFingerprint: stored.Reason,
		ScoreAtDispute:    joinScore(stored.ScoreMagnitude, stored.ScoreNegative),
		Weight:            stored.Weight,
		Status:            DisputeStatus(stored.Status),
		CreatedAt:         int64(stored.CreatedAt),
		Payout:            normalizeAmount(stored.Payout),
		Claimed:           stored.Claimed,
	}, nil
}

func (e *Engine) putDispute(d *Dispute) error {
	store, err := e.withStore()
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("assert: dispute must not be nil")
	}
	magnitude, negative := splitScore(d.ScoreAtDispute)
	stored := storedDispute{
		AssertionID:    d.AssertionID,
		Disputer:       d.Disputer,
		Reason:         d.ReasonFingerprint,
		Stake:          normalizeAmount(d.StakeLocked),
		ScoreMagnitude: magnitude,
		ScoreNegative:  negative,
		Weight:         d.Weight,
		Status:         uint8(d.Status),
		Payout:         normalizeAmount(d.Payout),
		Claimed:        d.Claimed,
	}
	if d.CreatedAt > 0 {
		stored.CreatedAt = uint64(d.CreatedAt)
	}
	return store.KVPut(disputeKey(d.ID), &stored)
}
