package core

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"veritynet/crypto"
)

var genesisAppliedKey = []byte("genesis/applied")

// reputationReasonGenesis tags score grants made at genesis.
const reputationReasonGenesis = "genesis.grant"

// TokenGrant mints an initial VNT balance to an account.
type TokenGrant struct {
	Address string `toml:"Address" json:"address"`
	Amount  string `toml:"Amount" json:"amount"`
}

// ReputationGrant seeds an account's base reputation score.
type ReputationGrant struct {
	Address string `toml:"Address" json:"address"`
	Score   int64  `toml:"Score" json:"score"`
}

// SeedTopic creates a topic that is active from genesis, bypassing the
// approval vote.
type SeedTopic struct {
	Name     string `toml:"Name" json:"name"`
	Proposer string `toml:"Proposer" json:"proposer"`
}

// Genesis describes the initial state applied to an empty database: token
// and reputation grants, seed topics, the fee treasury, and parameter
// overrides. Parameter values are the raw JSON payloads the parameter store
// accepts.
type Genesis struct {
	TokenGrants      []TokenGrant      `toml:"token"`
	ReputationGrants []ReputationGrant `toml:"reputation"`
	SeedTopics       []SeedTopic       `toml:"topics"`
	FeeTreasury      string            `toml:"FeeTreasury"`
	Params           map[string]string `toml:"params"`
}

func parseAddress(field, value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("genesis: %s: %w", field, err)
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("genesis: %s: invalid amount %q", field, value)
	}
	return amount, nil
}

// InitGenesis applies the genesis state exactly once. The boolean reports
// whether this call performed the initialization; a node restarted on an
// already-initialized database gets (false, nil).
func (n *Node) InitGenesis(spec Genesis) (bool, error) {
	applied := false
	err := n.withTxn("", func() error {
		found, err := n.state.KVGet(genesisAppliedKey, nil)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		applied = true
		if err := n.params.EnsureDefaults(); err != nil {
			return err
		}
		keys := make([]string, 0, len(spec.Params))
		for key := range spec.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := n.params.Apply(key, []byte(spec.Params[key])); err != nil {
				return fmt.Errorf("genesis: param %q: %w", key, err)
			}
		}
		if treasury := strings.TrimSpace(spec.FeeTreasury); treasury != "" {
			addr, err := parseAddress("feeTreasury", treasury)
			if err != nil {
				return err
			}
			if err := n.params.SetFeeTreasury(addr); err != nil {
				return err
			}
		}
		for i, grant := range spec.TokenGrants {
			addr, err := parseAddress(fmt.Sprintf("token grant %d", i), grant.Address)
			if err != nil {
				return err
			}
			amount, err := parseAmount(fmt.Sprintf("token grant %d", i), grant.Amount)
			if err != nil {
				return err
			}
			if err := n.ledger.Mint(addr, amount); err != nil {
				return err
			}
		}
		for i, grant := range spec.ReputationGrants {
			addr, err := parseAddress(fmt.Sprintf("reputation grant %d", i), grant.Address)
			if err != nil {
				return err
			}
			if grant.Score == 0 {
				continue
			}
			if _, err := n.reputation.ApplyDelta(addr, grant.Score, reputationReasonGenesis); err != nil {
				return err
			}
		}
		for i, seed := range spec.SeedTopics {
			proposer, err := parseAddress(fmt.Sprintf("seed topic %d", i), seed.Proposer)
			if err != nil {
				return err
			}
			if _, err := n.topics.Seed(proposer, seed.Name); err != nil {
				return fmt.Errorf("genesis: seed topic %q: %w", seed.Name, err)
			}
		}
		return n.state.KVPut(genesisAppliedKey, true)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// LoadGenesisFile decodes a genesis spec from the TOML file at path.
func LoadGenesisFile(path string) (Genesis, error) {
	var spec Genesis
	meta, err := toml.DecodeFile(path, &spec)
	if err != nil {
		return Genesis{}, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Genesis{}, fmt.Errorf("genesis: %s: unknown field %s", path, undecoded[0].String())
	}
	return spec, nil
}
