package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"veritynet/crypto"
	"veritynet/native/assertion"
)

type assertSubmitParams struct {
	Creator     string `json:"creator"`
	TopicID     uint64 `json:"topicId"`
	Fingerprint string `json:"fingerprint"`
	Content     string `json:"content"`
	Stake       string `json:"stake"`
}

type assertAttestParams struct {
	Attester    string `json:"attester"`
	AssertionID uint64 `json:"assertionId"`
	Stake       string `json:"stake"`
}

type assertDisputeParams struct {
	Disputer    string `json:"disputer"`
	AssertionID uint64 `json:"assertionId"`
	Stake       string `json:"stake"`
	Reason      string `json:"reason"`
	ReasonText  string `json:"reasonText"`
}

type assertSignalParams struct {
	Caller      string `json:"caller"`
	AssertionID uint64 `json:"assertionId"`
	Stake       string `json:"stake"`
}

type assertIDParams struct {
	AssertionID uint64 `json:"assertionId"`
}

type assertCallerParams struct {
	Caller      string `json:"caller"`
	AssertionID uint64 `json:"assertionId"`
}

type assertClaimDisputeParams struct {
	Caller    string `json:"caller"`
	DisputeID uint64 `json:"disputeId"`
}

type assertionResult struct {
	ID                 uint64   `json:"id"`
	TopicID            uint64   `json:"topicId"`
	Creator            string   `json:"creator"`
	ContentFingerprint string   `json:"contentFingerprint"`
	StakeLocked        string   `json:"stakeLocked"`
	CreatorScore       int64    `json:"creatorScore"`
	CreatedAt          int64    `json:"createdAt"`
	LastActivityAt     int64    `json:"lastActivityAt"`
	Status             string   `json:"status"`
	AttestWeight       uint64   `json:"attestWeight"`
	DisputeWeight      uint64   `json:"disputeWeight"`
	DisputeWindowEnd   int64    `json:"disputeWindowEnd"`
	Outcome            string   `json:"outcome"`
	DisputeIDs         []uint64 `json:"disputeIds,omitempty"`
	CreatorPayout      string   `json:"creatorPayout"`
	CreatorClaimed     bool     `json:"creatorClaimed"`
	FeeRetained        string   `json:"feeRetained"`
}

type attestationResult struct {
	AssertionID uint64 `json:"assertionId"`
	Attester    string `json:"attester"`
	StakeLocked string `json:"stakeLocked"`
	Weight      uint64 `json:"weight"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
	Payout      string `json:"payout"`
	Claimed     bool   `json:"claimed"`
}

type disputeResult struct {
	ID                uint64 `json:"id"`
	AssertionID       uint64 `json:"assertionId"`
	Disputer          string `json:"disputer"`
	StakeLocked       string `json:"stakeLocked"`
	ReasonFingerprint string `json:"reasonFingerprint"`
	ScoreAtDispute    int64  `json:"scoreAtDispute"`
	Weight            uint64 `json:"weight"`
	Status            string `json:"status"`
	CreatedAt         int64  `json:"createdAt"`
	Payout            string `json:"payout"`
	Claimed           bool   `json:"claimed"`
}

type claimResult struct {
	Amount string `json:"amount"`
}

func assertionToResult(a *assertion.Assertion) *assertionResult {
	if a == nil {
		return nil
	}
	return &assertionResult{
		ID:                 a.ID,
		TopicID:            a.TopicID,
		Creator:            bech32String(a.Creator),
		ContentFingerprint: hex.EncodeToString(a.ContentFingerprint[:]),
		StakeLocked:        bigString(a.StakeLocked),
		CreatorScore:       a.CreatorScore,
		CreatedAt:          a.CreatedAt,
		LastActivityAt:     a.LastActivityAt,
		Status:             a.Status.String(),
		AttestWeight:       a.AttestWeight,
		DisputeWeight:      a.DisputeWeight,
		DisputeWindowEnd:   a.DisputeWindowEnd,
		Outcome:            a.Outcome.String(),
		DisputeIDs:         a.DisputeIDs,
		CreatorPayout:      bigString(a.CreatorPayout),
		CreatorClaimed:     a.CreatorClaimed,
		FeeRetained:        bigString(a.FeeRetained),
	}
}

func attestationToResult(a *assertion.Attestation) *attestationResult {
	if a == nil {
		return nil
	}
	return &attestationResult{
		AssertionID: a.AssertionID,
		Attester:    bech32String(a.Attester),
		StakeLocked: bigString(a.StakeLocked),
		Weight:      a.Weight,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		Payout:      bigString(a.Payout),
		Claimed:     a.Claimed,
	}
}

func disputeToResult(d *assertion.Dispute) *disputeResult {
	if d == nil {
		return nil
	}
	return &disputeResult{
		ID:                d.ID,
		AssertionID:       d.AssertionID,
		Disputer:          bech32String(d.Disputer),
		StakeLocked:       bigString(d.StakeLocked),
		ReasonFingerprint: hex.EncodeToString(d.ReasonFingerprint[:]),
		ScoreAtDispute:    d.ScoreAtDispute,
		Weight:            d.Weight,
		Status:            d.Status.String(),
		CreatedAt:         d.CreatedAt,
		Payout:            bigString(d.Payout),
		Claimed:           d.Claimed,
	}
}

func handleAssertSubmit(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertSubmitParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	creator, err := decodeBech32(params.Creator)
	if err != nil {
		return nil, errInvalidParams("invalid creator address", err)
	}
	fingerprint, rpcErr := fingerprintFromParams(params.Fingerprint, params.Content)
	if rpcErr != nil {
		return nil, rpcErr
	}
	stake, err := amountFromString(params.Stake)
	if err != nil {
		return nil, errInvalidParams("invalid stake", err)
	}
	id, err := s.node.SubmitAssertion(creator, params.TopicID, fingerprint, stake)
	if err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetAssertion(id)
	if err != nil {
		return nil, engineError(err)
	}
	return assertionToResult(stored), nil
}

func handleAssertAttest(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertAttestParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	attester, err := decodeBech32(params.Attester)
	if err != nil {
		return nil, errInvalidParams("invalid attester address", err)
	}
	stake, err := amountFromString(params.Stake)
	if err != nil {
		return nil, errInvalidParams("invalid stake", err)
	}
	if err := s.node.AttestAssertion(attester, params.AssertionID, stake); err != nil {
		return nil, engineError(err)
	}
	stored, ok, err := s.node.GetAttestation(params.AssertionID, attester)
	if err != nil {
		return nil, engineError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeServerError, Message: "internal error", Data: "attestation missing after write"}
	}
	return attestationToResult(stored), nil
}

func handleAssertDispute(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertDisputeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	disputer, err := decodeBech32(params.Disputer)
	if err != nil {
		return nil, errInvalidParams("invalid disputer address", err)
	}
	stake, err := amountFromString(params.Stake)
	if err != nil {
		return nil, errInvalidParams("invalid stake", err)
	}
	reason, rpcErr := fingerprintFromParams(params.Reason, params.ReasonText)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.node.DisputeAssertion(disputer, params.AssertionID, stake, reason)
	if err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetDispute(id)
	if err != nil {
		return nil, engineError(err)
	}
	return disputeToResult(stored), nil
}

func handleAssertSignalRelevance(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertSignalParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		return nil, errInvalidParams("invalid caller address", err)
	}
	stake, err := amountFromString(params.Stake)
	if err != nil {
		return nil, errInvalidParams("invalid stake", err)
	}
	if err := s.node.SignalAssertionRelevance(caller, params.AssertionID, stake); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetAssertion(params.AssertionID)
	if err != nil {
		return nil, engineError(err)
	}
	return assertionToResult(stored), nil
}

func handleAssertMarkObsolete(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertCallerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		return nil, errInvalidParams("invalid caller address", err)
	}
	if err := s.node.MarkAssertionObsolete(caller, params.AssertionID); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetAssertion(params.AssertionID)
	if err != nil {
		return nil, engineError(err)
	}
	return assertionToResult(stored), nil
}

func handleAssertResolve(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if _, err := s.node.ResolveAssertion(params.AssertionID); err != nil {
		return nil, engineError(err)
	}
	stored, err := s.node.GetAssertion(params.AssertionID)
	if err != nil {
		return nil, engineError(err)
	}
	return assertionToResult(stored), nil
}

func handleAssertClaimStake(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertCallerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		return nil, errInvalidParams("invalid caller address", err)
	}
	amount, err := s.node.ClaimAssertionStake(caller, params.AssertionID)
	if err != nil {
		return nil, engineError(err)
	}
	return &claimResult{Amount: bigString(amount)}, nil
}

func handleAssertClaimDisputeStake(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertClaimDisputeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		return nil, errInvalidParams("invalid caller address", err)
	}
	amount, err := s.node.ClaimDisputeStake(caller, params.DisputeID)
	if err != nil {
		return nil, engineError(err)
	}
	return &claimResult{Amount: bigString(amount)}, nil
}

func handleAssertGet(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	stored, err := s.node.GetAssertion(params.AssertionID)
	if err != nil {
		return nil, engineError(err)
	}
	return assertionToResult(stored), nil
}

func handleAssertListDisputes(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params assertIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	disputes, err := s.node.ListAssertionDisputes(params.AssertionID)
	if err != nil {
		return nil, engineError(err)
	}
	results := make([]*disputeResult, 0, len(disputes))
	for _, dispute := range disputes {
		results = append(results, disputeToResult(dispute))
	}
	return map[string]interface{}{"disputes": results}, nil
}

func decodeBech32(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func bech32String(addr [20]byte) string {
	return crypto.NewAddress(crypto.VNTPrefix, addr[:]).String()
}

func amountFromString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a base-10 integer")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func decodeFingerprint(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("fingerprint must be hex encoded: %w", err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("fingerprint must be %d bytes, got %d", len(out), len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// fingerprintFromParams resolves the content fingerprint from either an
// explicit 32-byte hex digest or raw content hashed server side. The explicit
// digest wins when both are supplied.
func fingerprintFromParams(fingerprint, content string) ([32]byte, *RPCError) {
	if strings.TrimSpace(fingerprint) != "" {
		decoded, err := decodeFingerprint(fingerprint)
		if err != nil {
			return [32]byte{}, errInvalidParams("invalid fingerprint", err)
		}
		return decoded, nil
	}
	if content != "" {
		return assertion.Fingerprint([]byte(content)), nil
	}
	return [32]byte{}, errInvalidParams("fingerprint or content required", nil)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
