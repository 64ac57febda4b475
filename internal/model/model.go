// Package model defines the typed records exchanged with the Octant backend API.
// Every field the upstream may omit is optional here; callers must treat a nil
// response as "not available yet", never as an error.
package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Allocation is a single donor-to-project allocation for one epoch.
// Amount is a base-unit (wei) integer carried as a decimal string.
type Allocation struct {
	Project string `json:"project"`
	Donor   string `json:"donor"`
	Amount  string `json:"amount"`
}

// Validate checks the fields required for aggregation. Records failing
// validation are dropped upstream of grouping, not silently defaulted.
func (a Allocation) Validate() error {
	if strings.TrimSpace(a.Project) == "" {
		return fmt.Errorf("allocation missing project address")
	}
	if strings.TrimSpace(a.Donor) == "" {
		return fmt.Errorf("allocation missing donor address")
	}
	if _, ok := new(big.Int).SetString(amountOrZero(a.Amount), 10); !ok {
		return fmt.Errorf("allocation amount %q is not a base-unit integer", a.Amount)
	}
	return nil
}

// AmountWei returns the allocation amount as an integer, zero for
// empty or malformed input.
func (a Allocation) AmountWei() *big.Int {
	return Wei(a.Amount)
}

// AllocationsResponse is the body of /allocations/epoch/{epoch}.
type AllocationsResponse struct {
	Allocations []Allocation `json:"allocations"`
}

// Reward is the per-project reward record for a finalized epoch.
type Reward struct {
	Address   string `json:"address"`
	Allocated string `json:"allocated"`
	Matched   string `json:"matched"`
}

// AllocatedWei returns the directly allocated reward amount.
func (r Reward) AllocatedWei() *big.Int { return Wei(r.Allocated) }

// MatchedWei returns the quadratic-funding matched amount.
func (r Reward) MatchedWei() *big.Int { return Wei(r.Matched) }

// RewardsResponse is the body of /rewards/projects/epoch/{epoch}.
type RewardsResponse struct {
	Rewards []Reward `json:"rewards"`
}

// RewardFor returns the reward record for an address by exact match.
func (r *RewardsResponse) RewardFor(address string) (Reward, bool) {
	if r == nil {
		return Reward{}, false
	}
	for _, reward := range r.Rewards {
		if reward.Address == address {
			return reward, true
		}
	}
	return Reward{}, false
}

// MerkleLeaf is one entry of a finalized reward distribution tree.
type MerkleLeaf struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// MerkleTree is the body of /rewards/merkle_tree/{epoch}. Its presence means
// the epoch's payouts have been committed on-chain.
type MerkleTree struct {
	Root   string       `json:"root"`
	Leaves []MerkleLeaf `json:"leaves"`
}

// LeafFor returns the first leaf matching the address exactly.
func (m *MerkleTree) LeafFor(address string) (MerkleLeaf, bool) {
	if m == nil {
		return MerkleLeaf{}, false
	}
	for _, leaf := range m.Leaves {
		if leaf.Address == address {
			return leaf, true
		}
	}
	return MerkleLeaf{}, false
}

// CurrentEpoch is the body of /epochs/current.
type CurrentEpoch struct {
	CurrentEpoch int `json:"currentEpoch"`
}

// IndexedEpoch is the body of /epochs/indexed and describes how far the
// backend indexer lags the chain.
type IndexedEpoch struct {
	CurrentEpoch int `json:"currentEpoch"`
	IndexedEpoch int `json:"indexedEpoch"`
}

// EpochInfo is the body of /epochs/info/{epoch}. All amounts are wei strings;
// fields the backend has not computed yet arrive as null.
type EpochInfo struct {
	TotalRewards             *string `json:"totalRewards"`
	StakingProceeds          *string `json:"stakingProceeds"`
	TotalEffectiveDeposit    *string `json:"totalEffectiveDeposit"`
	VanillaIndividualRewards *string `json:"vanillaIndividualRewards"`
	OperationalCost          *string `json:"operationalCost"`
	MatchedRewards           *string `json:"matchedRewards"`
	PatronsRewards           *string `json:"patronsRewards"`
	TotalWithdrawals         *string `json:"totalWithdrawals"`
	Leftover                 *string `json:"leftover"`
	PPF                      *string `json:"ppf"`
	CommunityFund            *string `json:"communityFund"`
}

// EpochStatus is the body of /snapshots/status/{epoch}.
type EpochStatus struct {
	IsCurrent   bool `json:"isCurrent"`
	IsPending   bool `json:"isPending"`
	IsFinalized bool `json:"isFinalized"`
}

// ChainInfo is the body of /info/chain-info. ChainID is a json.Number because
// deployments have served it both as a number and as a string.
type ChainInfo struct {
	ChainID   json.Number `json:"chainId"`
	ChainName string      `json:"chainName"`
}

// VersionInfo is the body of /info/version.
type VersionInfo struct {
	ID    string `json:"id"`
	Env   string `json:"env"`
	Chain string `json:"chain"`
}

// ProjectsMetadata is the body of /projects/epoch/{epoch}.
type ProjectsMetadata struct {
	ProjectsAddresses []string `json:"projectsAddresses"`
	ProjectsCid       string   `json:"projectsCid"`
}

// ProjectDetail carries the human-readable metadata for one project.
type ProjectDetail struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ProjectDetailsResponse is the body of /projects/details.
type ProjectDetailsResponse struct {
	ProjectsDetails []ProjectDetail `json:"projectsDetails"`
}

// Wei parses a base-unit decimal string, returning zero for empty or
// malformed input. Use Allocation.Validate where malformed input must be
// rejected instead of zeroed.
func Wei(s string) *big.Int {
	n, ok := new(big.Int).SetString(amountOrZero(s), 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

func amountOrZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return strings.TrimSpace(s)
}
