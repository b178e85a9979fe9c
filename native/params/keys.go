package params

// Canonical parameter store keys. Values are JSON-encoded to align with
// governance proposal payloads.
const (
	// KeyMinAssertionStake stores the minimum stake to submit an assertion.
	KeyMinAssertionStake = "assert/minAssertionStake"
	// KeyMinAttestationStake stores the minimum stake per attestation.
	KeyMinAttestationStake = "assert/minAttestationStake"
	// KeyMinDisputeStake stores the minimum stake per dispute.
	KeyMinDisputeStake = "assert/minDisputeStake"
	// KeyMinRelevanceStake stores the minimum stake for a relevance signal.
	KeyMinRelevanceStake = "assert/minRelevanceStake"
	// KeyDisputeWindow stores the dispute window length in seconds.
	KeyDisputeWindow = "assert/disputeWindowSeconds"
	// KeyRelevanceDecay stores the inactivity period, in seconds, after
	// which an assertion may be refreshed or marked obsolete.
	KeyRelevanceDecay = "assert/relevanceDecaySeconds"
	// KeyAttesterRewardShareBps stores the share of forfeited dispute
	// stakes routed to attesters on a True outcome, in basis points.
	KeyAttesterRewardShareBps = "assert/attesterRewardShareBps"

	// KeyReputationStep stores the base reputation adjustment unit.
	KeyReputationStep = "reputation/step"
	// KeyAttestReputationBonus stores the immediate reputation increment
	// granted per attestation.
	KeyAttestReputationBonus = "reputation/attestBonus"

	// KeyChallengeStake stores the minimum stake to open a reputation
	// challenge.
	KeyChallengeStake = "challenge/minStake"
	// KeyVoteWindow stores the challenge voting window length in seconds.
	KeyVoteWindow = "challenge/voteWindowSeconds"
	// KeyMinVoteThreshold stores the minimum effective score required to
	// vote on a challenge.
	KeyMinVoteThreshold = "challenge/minVoteThreshold"
	// KeyChallengeSlashBps stores the fraction of a challenged account's
	// positive base score removed on an upheld challenge, in basis points.
	KeyChallengeSlashBps = "challenge/slashBps"

	// KeyTopicApprovalThreshold stores the number of distinct approvals
	// required to activate a proposed topic.
	KeyTopicApprovalThreshold = "topic/approvalThreshold"

	// KeyFeeTreasury stores the bech32 address receiving protocol fees.
	KeyFeeTreasury = "system/feeTreasury"
	// KeyPauses stores the module pause configuration.
	KeyPauses = "system/pauses"

	// KeyGovMinDeposit stores the minimum proposal deposit.
	KeyGovMinDeposit = "gov/minDeposit"
	// KeyGovVotingPeriod stores the proposal voting period in seconds.
	KeyGovVotingPeriod = "gov/votingPeriodSeconds"
	// KeyGovTimelock stores the post-pass execution delay in seconds.
	KeyGovTimelock = "gov/timelockSeconds"
	// KeyGovQuorumWeight stores the minimum combined vote weight for a
	// proposal to be decided.
	KeyGovQuorumWeight = "gov/quorumWeight"
	// KeyGovPassThresholdBps stores the yes-weight ratio required to pass,
	// in basis points.
	KeyGovPassThresholdBps = "gov/passThresholdBps"
)
