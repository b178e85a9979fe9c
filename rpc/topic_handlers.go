package rpc

import (
	"net/http"

	"veritynet/native/topic"
)

type topicProposeParams struct {
	Proposer string `json:"proposer"`
	Name     string `json:"name"`
}

type topicVoteParams struct {
	TopicID uint64 `json:"topicId"`
	Voter   string `json:"voter"`
}

type topicAbandonParams struct {
	TopicID uint64 `json:"topicId"`
	Caller  string `json:"caller"`
}

type topicIDParams struct {
	TopicID uint64 `json:"topicId"`
}

type topicResult struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Proposer    string `json:"proposer"`
	Status      string `json:"status"`
	Approvals   uint64 `json:"approvals"`
	CreatedAt   int64  `json:"createdAt"`
	ActivatedAt int64  `json:"activatedAt,omitempty"`
}

func topicToResult(t *topic.Topic) *topicResult {
	if t == nil {
		return nil
	}
	return &topicResult{
		ID:          t.ID,
		Name:        t.Name,
		Proposer:    bech32String(t.Proposer),
		Status:      t.Status.String(),
		Approvals:   t.Approvals,
		CreatedAt:   t.CreatedAt,
		ActivatedAt: t.ActivatedAt,
	}
}

func handleTopicPropose(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params topicProposeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	proposer, err := decodeBech32(params.Proposer)
	if err != nil {
		return nil, errInvalidParams("invalid proposer address", err)
	}
	id, err := s.node.ProposeTopic(proposer, params.Name)
	if err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetTopic(id)
	if err != nil {
		return nil, engineError(err)
	}
	return topicToResult(stored), nil
}

func handleTopicApprove(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params topicVoteParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	voter, err := decodeBech32(params.Voter)
	if err != nil {
		return nil, errInvalidParams("invalid voter address", err)
	}
	if err := s.node.ApproveTopic(params.TopicID, voter); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetTopic(params.TopicID)
	if err != nil {
		return nil, engineError(err)
	}
	return topicToResult(stored), nil
}

func handleTopicAbandon(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params topicAbandonParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		return nil, errInvalidParams("invalid caller address", err)
	}
	if err := s.node.AbandonTopic(params.TopicID, caller); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetTopic(params.TopicID)
	if err != nil {
		return nil, engineError(err)
	}
	return topicToResult(stored), nil
}

func handleTopicGet(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params topicIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	stored, err := s.node.GetTopic(params.TopicID)
	if err != nil {
		return nil, engineError(err)
	}
	return topicToResult(stored), nil
}
