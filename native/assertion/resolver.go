package assertion

import (
	"math"
	"math/big"

	"veritynet/core/events"
	"veritynet/native/tally"
)

// Resolve finalizes a disputed assertion once its window has elapsed. The
// decisive-ratio rule compares the accumulated weights; stake entitlements
// are recorded on the rows for pull-based claims. The only funds pushed at
// resolve time is the protocol fee credited to the treasury.
func (e *Engine) Resolve(assertionID uint64) (Outcome, error) {
	if err := e.collaborators(); err != nil {
		return OutcomeUnresolved, err
	}
	record, err := e.getAssertion(assertionID)
	if err != nil {
		return OutcomeUnresolved, err
	}
	if record.Status != StatusDisputed {
		return OutcomeUnresolved, ErrInvalidState
	}
	if e.now() < record.DisputeWindowEnd {
		return OutcomeUnresolved, ErrWindowNotElapsed
	}
	disputes := make([]*Dispute, 0, len(record.DisputeIDs))
	for _, id := range record.DisputeIDs {
		row, err := e.getDispute(id)
		if err != nil {
			return OutcomeUnresolved, err
		}
		disputes = append(disputes, row)
	}
	step, err := e.policy.ReputationStep()
	if err != nil {
		return OutcomeUnresolved, err
	}
	switch tally.Decide(record.AttestWeight, record.DisputeWeight) {
	case tally.OutcomeAgainst:
		record.Outcome = OutcomeFalse
		err = e.settleFalse(record, disputes, step)
	case tally.OutcomeFor:
		record.Outcome = OutcomeTrue
		err = e.settleTrue(record, disputes, step)
	default:
		record.Outcome = OutcomeInconclusive
		err = e.settleInconclusive(record, disputes)
	}
	if err != nil {
		return OutcomeUnresolved, err
	}
	record.Status = StatusResolved
	for _, row := range disputes {
		if err := e.putDispute(row); err != nil {
			return OutcomeUnresolved, err
		}
	}
	if err := e.putAssertion(record); err != nil {
		return OutcomeUnresolved, err
	}
	e.emit(events.AssertionResolved{
		ID:            record.ID,
		Outcome:       record.Outcome.String(),
		AttestWeight:  record.AttestWeight,
		DisputeWeight: record.DisputeWeight,
		DisputeCount:  uint64(len(disputes)),
		Fee:           new(big.Int).Set(record.FeeRetained),
	})
	return record.Outcome, nil
}

// doubleStep returns 2*step saturating at the int64 maximum.
func doubleStep(step int64) int64 {
	if step > math.MaxInt64/2 {
		return math.MaxInt64
	}
	return 2 * step
}

// uniqueDisputers returns the distinct disputer addresses in first-seen
// order. Reputation deltas apply once per address no matter how many dispute
// rows it opened.
func uniqueDisputers(disputes []*Dispute) [][20]byte {
	seen := make(map[[20]byte]bool, len(disputes))
	out := make([][20]byte, 0, len(disputes))
	for _, row := range disputes {
		if seen[row.Disputer] {
			continue
		}
		seen[row.Disputer] = true
		out = append(out, row.Disputer)
	}
	return out
}

func totalStake(disputes []*Dispute) *big.Int {
	total := big.NewInt(0)
	for _, row := range disputes {
		total.Add(total, row.StakeLocked)
	}
	return total
}

// settleFalse pays disputers their stake plus half of their pro-rata share
// of the creator's stake; the other half, plus integer dust, is the protocol
// fee. Attestation stakes are refunded; the creator keeps nothing.
func (e *Engine) settleFalse(record *Assertion, disputes []*Dispute, step int64) error {
	double := doubleStep(step)
	if _, err := e.scores.ApplyDelta(record.Creator, -double, reasonResolvedFalse); err != nil {
		return err
	}
	for _, addr := range uniqueDisputers(disputes) {
		if _, err := e.scores.ApplyDelta(addr, double, reasonResolvedFalse); err != nil {
			return err
		}
	}
	total := totalStake(disputes)
	distributed := big.NewInt(0)
	for _, row := range disputes {
		winShare := big.NewInt(0)
		if total.Sign() > 0 {
			winShare.Mul(record.StakeLocked, row.StakeLocked)
			winShare.Div(winShare, total)
		}
		half := new(big.Int).Rsh(winShare, 1)
		row.Status = DisputeSettledWon
		row.Payout = new(big.Int).Add(row.StakeLocked, half)
		if err := e.ledger.AccruePending(row.Disputer, row.Payout); err != nil {
			return err
		}
		distributed.Add(distributed, half)
	}
	fee := new(big.Int).Sub(record.StakeLocked, distributed)
	record.CreatorPayout = big.NewInt(0)
	record.FeeRetained = fee
	if err := e.refundAttestations(record.ID); err != nil {
		return err
	}
	if fee.Sign() > 0 {
		treasury, ok, err := e.policy.FeeTreasury()
		if err != nil {
			return err
		}
		// With no treasury configured the fee stays in the vault,
		// permanently out of circulation.
		if ok {
			if err := e.ledger.Credit(treasury, fee); err != nil {
				return err
			}
		}
	}
	return nil
}

// settleTrue refunds the creator and splits the forfeited dispute stakes:
// the configured share goes to attesters pro-rata by stake, the rest to the
// creator. Integer dust from the attester split also lands on the creator.
func (e *Engine) settleTrue(record *Assertion, disputes []*Dispute, step int64) error {
	if _, err := e.scores.ApplyDelta(record.Creator, step, reasonResolvedTrue); err != nil {
		return err
	}
	double := doubleStep(step)
	for _, addr := range uniqueDisputers(disputes) {
		if _, err := e.scores.ApplyDelta(addr, -double, reasonResolvedTrue); err != nil {
			return err
		}
	}
	pool := totalStake(disputes)
	for _, row := range disputes {
		row.Status = DisputeSettledLost
		row.Payout = big.NewInt(0)
	}
	shareBps, err := e.policy.AttesterRewardShareBps()
	if err != nil {
		return err
	}
	attesterShare := new(big.Int).Mul(pool, big.NewInt(int64(shareBps)))
	attesterShare.Div(attesterShare, big.NewInt(10_000))

	addrs, err := e.attesters(record.ID)
	if err != nil {
		return err
	}
	rows := make([]*Attestation, 0, len(addrs))
	totalAttestStake := big.NewInt(0)
	for _, addr := range addrs {
		row, found, err := e.getAttestation(record.ID, addr)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		rows = append(rows, row)
		totalAttestStake.Add(totalAttestStake, row.StakeLocked)
	}
	distributed := big.NewInt(0)
	for _, row := range rows {
		reward := big.NewInt(0)
		if attesterShare.Sign() > 0 && totalAttestStake.Sign() > 0 {
			reward.Mul(attesterShare, row.StakeLocked)
			reward.Div(reward, totalAttestStake)
		}
		row.Payout = new(big.Int).Add(row.StakeLocked, reward)
		if err := e.ledger.AccruePending(row.Attester, row.Payout); err != nil {
			return err
		}
		distributed.Add(distributed, reward)
		if err := e.putAttestation(row); err != nil {
			return err
		}
	}
	creatorPayout := new(big.Int).Set(record.StakeLocked)
	creatorPayout.Add(creatorPayout, new(big.Int).Sub(pool, attesterShare))
	creatorPayout.Add(creatorPayout, new(big.Int).Sub(attesterShare, distributed))
	record.CreatorPayout = creatorPayout
	record.FeeRetained = big.NewInt(0)
	return e.ledger.AccruePending(record.Creator, creatorPayout)
}

// settleInconclusive refunds every stake at face value with no reputation
// movement.
func (e *Engine) settleInconclusive(record *Assertion, disputes []*Dispute) error {
	for _, row := range disputes {
		row.Status = DisputeSettledRefunded
		row.Payout = new(big.Int).Set(row.StakeLocked)
		if err := e.ledger.AccruePending(row.Disputer, row.Payout); err != nil {
			return err
		}
	}
	record.CreatorPayout = new(big.Int).Set(record.StakeLocked)
	record.FeeRetained = big.NewInt(0)
	if err := e.ledger.AccruePending(record.Creator, record.CreatorPayout); err != nil {
		return err
	}
	return e.refundAttestations(record.ID)
}

// ClaimAssertionStake pays out the caller's recorded entitlement on a
// resolved or obsoleted assertion: the creator payout, the caller's
// attestation row, or both in one call. Claims are idempotent; a repeat
// claim fails with ErrAlreadyClaimed and moves no funds.
func (e *Engine) ClaimAssertionStake(caller [20]byte, assertionID uint64) (*big.Int, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	record, err := e.getAssertion(assertionID)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusResolved && record.Status != StatusObsolete {
		return nil, ErrInvalidState
	}
	total := big.NewInt(0)
	claimedBefore := false
	recordDirty := false
	if caller == record.Creator {
		if record.CreatorClaimed {
			claimedBefore = true
		} else if record.CreatorPayout.Sign() > 0 {
			total.Add(total, record.CreatorPayout)
			record.CreatorClaimed = true
			recordDirty = true
		}
	}
	row, found, err := e.getAttestation(assertionID, caller)
	if err != nil {
		return nil, err
	}
	rowDirty := false
	if found {
		if row.Claimed {
			claimedBefore = true
		} else if row.Payout.Sign() > 0 {
			total.Add(total, row.Payout)
			row.Claimed = true
			rowDirty = true
		}
	}
	if total.Sign() == 0 {
		if claimedBefore {
			return nil, ErrAlreadyClaimed
		}
		return nil, ErrNothingToClaim
	}
	if recordDirty {
		if err := e.putAssertion(record); err != nil {
			return nil, err
		}
	}
	if rowDirty {
		if err := e.putAttestation(row); err != nil {
			return nil, err
		}
	}
	if err := e.ledger.SettlePending(caller, total); err != nil {
		return nil, err
	}
	if err := e.ledger.Credit(caller, total); err != nil {
		return nil, err
	}
	e.emit(events.StakeClaimed{
		Scope:    events.ClaimScopeAssertion,
		ID:       assertionID,
		Claimant: caller,
		Amount:   new(big.Int).Set(total),
	})
	return total, nil
}

// ClaimDisputeStake pays out a settled dispute row to its disputer.
func (e *Engine) ClaimDisputeStake(caller [20]byte, disputeID uint64) (*big.Int, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	row, err := e.getDispute(disputeID)
	if err != nil {
		return nil, err
	}
	if caller != row.Disputer {
		return nil, ErrUnauthorized
	}
	if row.Status == DisputeOpen {
		return nil, ErrInvalidState
	}
	if row.Claimed {
		return nil, ErrAlreadyClaimed
	}
	if row.Payout.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	row.Claimed = true
	if err := e.putDispute(row); err != nil {
		return nil, err
	}
	if err := e.ledger.SettlePending(caller, row.Payout); err != nil {
		return nil, err
	}
	if err := e.ledger.Credit(caller, row.Payout); err != nil {
		return nil, err
	}
	e.emit(events.StakeClaimed{
		Scope:    events.ClaimScopeDispute,
		ID:       disputeID,
		Claimant: caller,
		Amount:   new(big.Int).Set(row.Payout),
	})
	return new(big.Int).Set(row.Payout), nil
}
