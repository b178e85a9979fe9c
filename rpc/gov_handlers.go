package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"veritynet/native/gov"
)

type govProposeParams struct {
	Proposer string          `json:"proposer"`
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Deposit  string          `json:"deposit"`
}

type govVoteParams struct {
	Voter      string `json:"voter"`
	ProposalID uint64 `json:"proposalId"`
	Support    bool   `json:"support"`
}

type govIDParams struct {
	ProposalID uint64 `json:"proposalId"`
}

type proposalResult struct {
	ID              uint64          `json:"id"`
	Proposer        string          `json:"proposer"`
	ParamKey        string          `json:"paramKey"`
	ParamValue      json.RawMessage `json:"paramValue"`
	Deposit         string          `json:"deposit"`
	SubmittedAt     int64           `json:"submittedAt"`
	VotingEndTime   int64           `json:"votingEndTime"`
	TimelockEndTime int64           `json:"timelockEndTime"`
	YesWeight       uint64          `json:"yesWeight"`
	NoWeight        uint64          `json:"noWeight"`
	Status          string          `json:"status"`
}

func proposalToResult(p *gov.Proposal) *proposalResult {
	if p == nil {
		return nil
	}
	return &proposalResult{
		ID:              p.ID,
		Proposer:        bech32String(p.Proposer),
		ParamKey:        p.ParamKey,
		ParamValue:      json.RawMessage(p.ParamValue),
		Deposit:         bigString(p.Deposit),
		SubmittedAt:     p.SubmittedAt,
		VotingEndTime:   p.VotingEndTime,
		TimelockEndTime: p.TimelockEndTime,
		YesWeight:       p.YesWeight,
		NoWeight:        p.NoWeight,
		Status:          p.Status.String(),
	}
}

func handleGovPropose(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params govProposeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	proposer, err := decodeBech32(params.Proposer)
	if err != nil {
		return nil, errInvalidParams("invalid proposer address", err)
	}
	key := strings.TrimSpace(params.Key)
	if key == "" {
		return nil, errInvalidParams("parameter key required", nil)
	}
	if len(params.Value) == 0 {
		return nil, errInvalidParams("parameter value required", nil)
	}
	deposit, err := amountFromString(params.Deposit)
	if err != nil {
		return nil, errInvalidParams("invalid deposit", err)
	}
	id, err := s.node.SubmitProposal(proposer, key, []byte(params.Value), deposit)
	if err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetProposal(id)
	if err != nil {
		return nil, engineError(err)
	}
	return proposalToResult(stored), nil
}

func handleGovVote(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params govVoteParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	voter, err := decodeBech32(params.Voter)
	if err != nil {
		return nil, errInvalidParams("invalid voter address", err)
	}
	if err := s.node.VoteProposal(voter, params.ProposalID, params.Support); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetProposal(params.ProposalID)
	if err != nil {
		return nil, engineError(err)
	}
	return proposalToResult(stored), nil
}

func handleGovFinalize(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params govIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if _, err := s.node.FinalizeProposal(params.ProposalID); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetProposal(params.ProposalID)
	if err != nil {
		return nil, engineError(err)
	}
	return proposalToResult(stored), nil
}

func handleGovExecute(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params govIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.ExecuteProposal(params.ProposalID); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetProposal(params.ProposalID)
	if err != nil {
		return nil, engineError(err)
	}
	return proposalToResult(stored), nil
}

func handleGovGet(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params govIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	stored, err := s.node.GetProposal(params.ProposalID)
	if err != nil {
		return nil, engineError(err)
	}
	return proposalToResult(stored), nil
}
