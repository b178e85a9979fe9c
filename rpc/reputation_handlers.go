package rpc

import (
	"encoding/hex"
	"net/http"

	"veritynet/native/challenge"
	"veritynet/native/reputation"
)

type repGetParams struct {
	Address string `json:"address"`
}

type repDelegateParams struct {
	Delegator string `json:"delegator"`
	Delegate  string `json:"delegate"`
	Amount    uint64 `json:"amount"`
}

type repOpenChallengeParams struct {
	Challenger string `json:"challenger"`
	Challenged string `json:"challenged"`
	Stake      string `json:"stake"`
	Reason     string `json:"reason"`
	ReasonText string `json:"reasonText"`
}

type repVoteChallengeParams struct {
	Voter       string `json:"voter"`
	ChallengeID uint64 `json:"challengeId"`
	Upheld      bool   `json:"upheld"`
}

type repChallengeIDParams struct {
	ChallengeID uint64 `json:"challengeId"`
}

type repClaimChallengeParams struct {
	Caller      string `json:"caller"`
	ChallengeID uint64 `json:"challengeId"`
}

type profileResult struct {
	Address        string `json:"address"`
	BaseScore      int64  `json:"baseScore"`
	DelegatedIn    uint64 `json:"delegatedIn"`
	DelegatedOut   uint64 `json:"delegatedOut"`
	EffectiveScore int64  `json:"effectiveScore"`
	UpdatedAt      int64  `json:"updatedAt"`
}

type delegationResult struct {
	Delegator string `json:"delegator"`
	Delegate  string `json:"delegate"`
	Amount    uint64 `json:"amount"`
	Since     int64  `json:"since"`
}

type challengeResult struct {
	ID                uint64 `json:"id"`
	Challenger        string `json:"challenger"`
	Challenged        string `json:"challenged"`
	StakeLocked       string `json:"stakeLocked"`
	ReasonFingerprint string `json:"reasonFingerprint"`
	VotesUpheld       uint64 `json:"votesUpheld"`
	VotesDismissed    uint64 `json:"votesDismissed"`
	VoteWindowEnd     int64  `json:"voteWindowEnd"`
	CreatedAt         int64  `json:"createdAt"`
	Status            string `json:"status"`
	SlashedAmount     uint64 `json:"slashedAmount"`
	ChallengerPayout  string `json:"challengerPayout"`
	ChallengedPayout  string `json:"challengedPayout"`
	ChallengerClaimed bool   `json:"challengerClaimed"`
	ChallengedClaimed bool   `json:"challengedClaimed"`
}

func profileToResult(p *reputation.Profile) *profileResult {
	if p == nil {
		return nil
	}
	return &profileResult{
		Address:        bech32String(p.Address),
		BaseScore:      p.BaseScore,
		DelegatedIn:    p.DelegatedIn,
		DelegatedOut:   p.DelegatedOut,
		EffectiveScore: p.EffectiveScore(),
		UpdatedAt:      p.UpdatedAt,
	}
}

func delegationToResult(d *reputation.Delegation) *delegationResult {
	if d == nil {
		return nil
	}
	return &delegationResult{
		Delegator: bech32String(d.Delegator),
		Delegate:  bech32String(d.Delegate),
		Amount:    d.Amount,
		Since:     d.Since,
	}
}

func challengeToResult(c *challenge.Challenge) *challengeResult {
	if c == nil {
		return nil
	}
	return &challengeResult{
		ID:                c.ID,
		Challenger:        bech32String(c.Challenger),
		Challenged:        bech32String(c.Challenged),
		StakeLocked:       bigString(c.StakeLocked),
		ReasonFingerprint: hex.EncodeToString(c.ReasonFingerprint[:]),
		VotesUpheld:       c.VotesUpheld,
		VotesDismissed:    c.VotesDismissed,
		VoteWindowEnd:     c.VoteWindowEnd,
		CreatedAt:         c.CreatedAt,
		Status:            c.Status.String(),
		SlashedAmount:     c.SlashedAmount,
		ChallengerPayout:  bigString(c.ChallengerPayout),
		ChallengedPayout:  bigString(c.ChallengedPayout),
		ChallengerClaimed: c.ChallengerClaimed,
		ChallengedClaimed: c.ChallengedClaimed,
	}
}

func handleRepGet(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repGetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		return nil, errInvalidParams("invalid address", err)
	}
	profile, err := s.node.ReputationProfile(addr)
	if err != nil {
		return nil, engineError(err)
	}
	return profileToResult(profile), nil
}

func handleRepDelegate(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repDelegateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	delegator, err := decodeBech32(params.Delegator)
	if err != nil {
		return nil, errInvalidParams("invalid delegator address", err)
	}
	delegate, err := decodeBech32(params.Delegate)
	if err != nil {
		return nil, errInvalidParams("invalid delegate address", err)
	}
	if err := s.node.DelegateReputation(delegator, delegate, params.Amount); err != nil {
		return nil, engineError(err)
	}
	stored, ok, err := s.node.GetDelegation(delegator, delegate)
	if err != nil {
		return nil, engineError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeServerError, Message: "internal error", Data: "delegation missing after write"}
	}
	return delegationToResult(stored), nil
}

func handleRepUndelegate(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repDelegateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	delegator, err := decodeBech32(params.Delegator)
	if err != nil {
		return nil, errInvalidParams("invalid delegator address", err)
	}
	delegate, err := decodeBech32(params.Delegate)
	if err != nil {
		return nil, errInvalidParams("invalid delegate address", err)
	}
	if err := s.node.UndelegateReputation(delegator, delegate, params.Amount); err != nil {
		return nil, engineError(err)
	}
	stored, ok, err := s.node.GetDelegation(delegator, delegate)
	if err != nil {
		return nil, engineError(err)
	}
	if !ok {
		// Fully unwound rows are deleted, so report the empty remainder.
		return &delegationResult{
			Delegator: bech32String(delegator),
			Delegate:  bech32String(delegate),
			Amount:    0,
		}, nil
	}
	return delegationToResult(stored), nil
}

func handleRepOpenChallenge(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repOpenChallengeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	challenger, err := decodeBech32(params.Challenger)
	if err != nil {
		return nil, errInvalidParams("invalid challenger address", err)
	}
	challenged, err := decodeBech32(params.Challenged)
	if err != nil {
		return nil, errInvalidParams("invalid challenged address", err)
	}
	stake, err := amountFromString(params.Stake)
	if err != nil {
		return nil, errInvalidParams("invalid stake", err)
	}
	reason, rpcErr := fingerprintFromParams(params.Reason, params.ReasonText)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.node.OpenChallenge(challenger, challenged, stake, reason)
	if err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetChallenge(id)
	if err != nil {
		return nil, engineError(err)
	}
	return challengeToResult(stored), nil
}

func handleRepVoteChallenge(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repVoteChallengeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	voter, err := decodeBech32(params.Voter)
	if err != nil {
		return nil, errInvalidParams("invalid voter address", err)
	}
	if err := s.node.VoteChallenge(voter, params.ChallengeID, params.Upheld); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetChallenge(params.ChallengeID)
	if err != nil {
		return nil, engineError(err)
	}
	return challengeToResult(stored), nil
}

func handleRepResolveChallenge(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repChallengeIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if _, err := s.node.ResolveChallenge(params.ChallengeID); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetChallenge(params.ChallengeID)
	if err != nil {
		return nil, engineError(err)
	}
	return challengeToResult(stored), nil
}

func handleRepClaimChallengeStake(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repClaimChallengeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		return nil, errInvalidParams("invalid caller address", err)
	}
	amount, err := s.node.ClaimChallengeStake(caller, params.ChallengeID)
	if err != nil {
		return nil, engineError(err)
	}
	return &claimResult{Amount: bigString(amount)}, nil
}

func handleRepGetChallenge(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params repChallengeIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	stored, err := s.node.GetChallenge(params.ChallengeID)
	if err != nil {
		return nil, engineError(err)
	}
	return challengeToResult(stored), nil
}
