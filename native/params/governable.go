package params

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
)

type valueKind uint8

const (
	kindAmount valueKind = iota + 1
	kindSeconds
	kindScore
	kindBps
	kindCount
	kindWeight
	kindAddress
	kindPauses
)

var governable = map[string]valueKind{
	KeyMinAssertionStake:      kindAmount,
	KeyMinAttestationStake:    kindAmount,
	KeyMinDisputeStake:        kindAmount,
	KeyMinRelevanceStake:      kindAmount,
	KeyChallengeStake:         kindAmount,
	KeyGovMinDeposit:          kindAmount,
	KeyDisputeWindow:          kindSeconds,
	KeyVoteWindow:             kindSeconds,
	KeyRelevanceDecay:         kindSeconds,
	KeyGovVotingPeriod:        kindSeconds,
	KeyGovTimelock:            kindSeconds,
	KeyReputationStep:         kindScore,
	KeyAttestReputationBonus:  kindScore,
	KeyMinVoteThreshold:       kindScore,
	KeyAttesterRewardShareBps: kindBps,
	KeyChallengeSlashBps:      kindBps,
	KeyGovPassThresholdBps:    kindBps,
	KeyTopicApprovalThreshold: kindCount,
	KeyGovQuorumWeight:        kindWeight,
	KeyFeeTreasury:            kindAddress,
	KeyPauses:                 kindPauses,
}

// Governable reports whether the named parameter may be updated through a
// governance proposal. Anything outside this closed list is rejected.
func Governable(key string) bool {
	_, ok := governable[key]
	return ok
}

// GovernableKeys returns the sorted parameter allow-list.
func GovernableKeys() []string {
	keys := make([]string, 0, len(governable))
	for key := range governable {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ValidateJSON checks that raw is a well-formed value for the named
// parameter.
func ValidateJSON(key string, raw []byte) error {
	kind, ok := governable[key]
	if !ok {
		return fmt.Errorf("params: %q is not a governable parameter", key)
	}
	switch kind {
	case kindAmount:
		_, err := decodeBig(raw)
		return err
	case kindSeconds:
		value, err := decodeInt64(raw)
		if err != nil {
			return err
		}
		if value == 0 {
			return fmt.Errorf("params: %q must be positive", key)
		}
		return nil
	case kindScore:
		_, err := decodeInt64(raw)
		return err
	case kindBps:
		_, err := decodeBps(raw)
		return err
	case kindCount:
		value, err := decodeUint64(raw)
		if err != nil {
			return err
		}
		if value == 0 {
			return fmt.Errorf("params: %q must be positive", key)
		}
		return nil
	case kindWeight:
		_, err := decodeUint64(raw)
		return err
	case kindAddress:
		_, err := decodeAddress(raw)
		return err
	case kindPauses:
		return decodePauses(raw)
	default:
		return fmt.Errorf("params: unhandled parameter kind for %q", key)
	}
}

// Apply validates the supplied JSON value and persists it under the key.
func (s *Store) Apply(key string, raw []byte) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := ValidateJSON(key, raw); err != nil {
		return err
	}
	return state.ParamStoreSet(key, raw)
}

func encodeAmount(v *big.Int) []byte {
	encoded, _ := json.Marshal(v.String())
	return encoded
}

func encodeNumber(v interface{}) []byte {
	encoded, _ := json.Marshal(v)
	return encoded
}

// EnsureDefaults persists the default value for every parameter that has
// never been written, so operators can inspect the full policy surface.
// The fee treasury is left unset unless genesis configures one.
func (s *Store) EnsureDefaults() error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	defaults := map[string][]byte{
		KeyMinAssertionStake:      encodeAmount(DefaultMinAssertionStake),
		KeyMinAttestationStake:    encodeAmount(DefaultMinAttestationStake),
		KeyMinDisputeStake:        encodeAmount(DefaultMinDisputeStake),
		KeyMinRelevanceStake:      encodeAmount(DefaultMinRelevanceStake),
		KeyChallengeStake:         encodeAmount(DefaultChallengeStake),
		KeyGovMinDeposit:          encodeAmount(DefaultGovMinDeposit),
		KeyDisputeWindow:          encodeNumber(DefaultDisputeWindowSeconds),
		KeyVoteWindow:             encodeNumber(DefaultVoteWindowSeconds),
		KeyRelevanceDecay:         encodeNumber(DefaultRelevanceDecaySeconds),
		KeyGovVotingPeriod:        encodeNumber(DefaultGovVotingPeriodSeconds),
		KeyGovTimelock:            encodeNumber(DefaultGovTimelockSeconds),
		KeyReputationStep:         encodeNumber(DefaultReputationStep),
		KeyAttestReputationBonus:  encodeNumber(DefaultAttestReputationBonus),
		KeyMinVoteThreshold:       encodeNumber(DefaultMinVoteThreshold),
		KeyAttesterRewardShareBps: encodeNumber(DefaultAttesterRewardShareBps),
		KeyChallengeSlashBps:      encodeNumber(DefaultChallengeSlashBps),
		KeyGovPassThresholdBps:    encodeNumber(DefaultGovPassThresholdBps),
		KeyTopicApprovalThreshold: encodeNumber(DefaultTopicApprovalThreshold),
		KeyGovQuorumWeight:        encodeNumber(DefaultGovQuorumWeight),
		KeyPauses:                 encodeNumber(Pauses{}),
	}
	for key, value := range defaults {
		_, ok, err := state.ParamStoreGet(key)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := state.ParamStoreSet(key, value); err != nil {
			return err
		}
	}
	return nil
}
