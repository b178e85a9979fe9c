package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"veritynet/crypto"
	"veritynet/native/common"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// Pauses toggles the mutating entry points of each module.
type Pauses struct {
	Assertions bool `json:"assertions"`
	Challenges bool `json:"challenges"`
	Reputation bool `json:"reputation"`
	Topics     bool `json:"topics"`
	Ledger     bool `json:"ledger"`
	Gov        bool `json:"gov"`
}

// IsPaused implements common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case common.ModuleAssertions:
		return p.Assertions
	case common.ModuleChallenges:
		return p.Challenges
	case common.ModuleReputation:
		return p.Reputation
	case common.ModuleTopics:
		return p.Topics
	case common.ModuleLedger:
		return p.Ledger
	case common.ModuleGov:
		return p.Gov
	default:
		return false
	}
}

// Defaults applied when a parameter has never been written.
var (
	DefaultMinAssertionStake   = big.NewInt(100)
	DefaultMinAttestationStake = big.NewInt(10)
	DefaultMinDisputeStake     = big.NewInt(25)
	DefaultMinRelevanceStake   = big.NewInt(5)
	DefaultChallengeStake      = big.NewInt(50)
	DefaultGovMinDeposit       = big.NewInt(500)
)

const (
	DefaultDisputeWindowSeconds   int64  = 72 * 3600
	DefaultVoteWindowSeconds      int64  = 24 * 3600
	DefaultRelevanceDecaySeconds  int64  = 30 * 24 * 3600
	DefaultReputationStep         int64  = 10
	DefaultAttestReputationBonus  int64  = 1
	DefaultMinVoteThreshold       int64  = 100
	DefaultAttesterRewardShareBps uint32 = 5000
	DefaultChallengeSlashBps      uint32 = 2500
	DefaultTopicApprovalThreshold uint64 = 3
	DefaultGovVotingPeriodSeconds int64  = 72 * 3600
	DefaultGovTimelockSeconds     int64  = 24 * 3600
	DefaultGovQuorumWeight        uint64 = 1000
	DefaultGovPassThresholdBps    uint32 = 5000
)

func (s *Store) MinAssertionStake() (*big.Int, error) {
	return s.bigValue(KeyMinAssertionStake, DefaultMinAssertionStake)
}

func (s *Store) MinAttestationStake() (*big.Int, error) {
	return s.bigValue(KeyMinAttestationStake, DefaultMinAttestationStake)
}

func (s *Store) MinDisputeStake() (*big.Int, error) {
	return s.bigValue(KeyMinDisputeStake, DefaultMinDisputeStake)
}

func (s *Store) MinRelevanceStake() (*big.Int, error) {
	return s.bigValue(KeyMinRelevanceStake, DefaultMinRelevanceStake)
}

func (s *Store) ChallengeStake() (*big.Int, error) {
	return s.bigValue(KeyChallengeStake, DefaultChallengeStake)
}

func (s *Store) GovMinDeposit() (*big.Int, error) {
	return s.bigValue(KeyGovMinDeposit, DefaultGovMinDeposit)
}

func (s *Store) DisputeWindowSeconds() (int64, error) {
	return s.int64Value(KeyDisputeWindow, DefaultDisputeWindowSeconds)
}

func (s *Store) VoteWindowSeconds() (int64, error) {
	return s.int64Value(KeyVoteWindow, DefaultVoteWindowSeconds)
}

func (s *Store) RelevanceDecaySeconds() (int64, error) {
	return s.int64Value(KeyRelevanceDecay, DefaultRelevanceDecaySeconds)
}

func (s *Store) ReputationStep() (int64, error) {
	return s.int64Value(KeyReputationStep, DefaultReputationStep)
}

func (s *Store) AttestReputationBonus() (int64, error) {
	return s.int64Value(KeyAttestReputationBonus, DefaultAttestReputationBonus)
}

func (s *Store) MinVoteThreshold() (int64, error) {
	return s.int64Value(KeyMinVoteThreshold, DefaultMinVoteThreshold)
}

func (s *Store) GovVotingPeriodSeconds() (int64, error) {
	return s.int64Value(KeyGovVotingPeriod, DefaultGovVotingPeriodSeconds)
}

func (s *Store) GovTimelockSeconds() (int64, error) {
	return s.int64Value(KeyGovTimelock, DefaultGovTimelockSeconds)
}

func (s *Store) AttesterRewardShareBps() (uint32, error) {
	return s.bpsValue(KeyAttesterRewardShareBps, DefaultAttesterRewardShareBps)
}

func (s *Store) ChallengeSlashBps() (uint32, error) {
	return s.bpsValue(KeyChallengeSlashBps, DefaultChallengeSlashBps)
}

func (s *Store) GovPassThresholdBps() (uint32, error) {
	return s.bpsValue(KeyGovPassThresholdBps, DefaultGovPassThresholdBps)
}

func (s *Store) TopicApprovalThreshold() (uint64, error) {
	return s.uint64Value(KeyTopicApprovalThreshold, DefaultTopicApprovalThreshold)
}

func (s *Store) GovQuorumWeight() (uint64, error) {
	return s.uint64Value(KeyGovQuorumWeight, DefaultGovQuorumWeight)
}

// FeeTreasury loads the protocol fee treasury address. The boolean reports
// whether a treasury has been configured; when false, fees stay in the
// engine vault.
func (s *Store) FeeTreasury() ([20]byte, bool, error) {
	var addr [20]byte
	state, err := s.withState()
	if err != nil {
		return addr, false, err
	}
	raw, ok, err := state.ParamStoreGet(KeyFeeTreasury)
	if err != nil {
		return addr, false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return addr, false, nil
	}
	decoded, err := decodeAddress(raw)
	if err != nil {
		return addr, false, err
	}
	return decoded, true, nil
}

// SetFeeTreasury persists the protocol fee treasury address.
func (s *Store) SetFeeTreasury(addr [20]byte) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(crypto.NewAddress(crypto.VNTPrefix, addr[:]).String())
	if err != nil {
		return fmt.Errorf("params: encode treasury: %w", err)
	}
	return state.ParamStoreSet(KeyFeeTreasury, encoded)
}

// SetPauses persists the supplied pause configuration under the canonical
// parameter store key.
func (s *Store) SetPauses(pauses Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(pauses)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return state.ParamStoreSet(KeyPauses, encoded)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return Pauses{}, err
	}
	raw, ok, err := state.ParamStoreGet(KeyPauses)
	if err != nil {
		return Pauses{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Pauses{}, nil
	}
	var pauses Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	return pauses, nil
}

func (s *Store) bigValue(key string, fallback *big.Int) (*big.Int, error) {
	state, err := s.withState()
	if err != nil {
		return nil, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return nil, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return new(big.Int).Set(fallback), nil
	}
	return decodeBig(raw)
}

func (s *Store) int64Value(key string, fallback int64) (int64, error) {
	state, err := s.withState()
	if err != nil {
		return 0, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return 0, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return fallback, nil
	}
	return decodeInt64(raw)
}

func (s *Store) uint64Value(key string, fallback uint64) (uint64, error) {
	state, err := s.withState()
	if err != nil {
		return 0, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return 0, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return fallback, nil
	}
	return decodeUint64(raw)
}

func (s *Store) bpsValue(key string, fallback uint32) (uint32, error) {
	state, err := s.withState()
	if err != nil {
		return 0, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return 0, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return fallback, nil
	}
	return decodeBps(raw)
}

func decodeBig(raw []byte) (*big.Int, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("params: decode amount: %w", err)
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(text), 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("params: invalid amount %q", text)
	}
	return value, nil
}

func decodeInt64(raw []byte) (int64, error) {
	var value int64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("params: decode integer: %w", err)
	}
	if value < 0 {
		return 0, fmt.Errorf("params: integer must not be negative, got %d", value)
	}
	return value, nil
}

func decodeUint64(raw []byte) (uint64, error) {
	var value uint64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("params: decode integer: %w", err)
	}
	return value, nil
}

func decodeBps(raw []byte) (uint32, error) {
	var value uint32
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("params: decode basis points: %w", err)
	}
	if value > 10_000 {
		return 0, fmt.Errorf("params: basis points out of range: %d", value)
	}
	return value, nil
}

func decodeAddress(raw []byte) ([20]byte, error) {
	var out [20]byte
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return out, fmt.Errorf("params: decode address: %w", err)
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(text))
	if err != nil {
		return out, fmt.Errorf("params: decode address: %w", err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func decodePauses(raw []byte) error {
	var pauses Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return fmt.Errorf("params: decode pauses: %w", err)
	}
	return nil
}
