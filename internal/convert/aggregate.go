// Package convert turns raw Octant epoch data into DAOIP-5 documents.
package convert

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/octant-daoip5/internal/caip10"
	"github.com/yourorg/octant-daoip5/internal/model"
)

// weiExponent shifts base-unit amounts to whole ETH (10^18 wei per ETH).
const weiExponent = -18

// Summary is the aggregate of all allocations one project received in an
// epoch: the exact total, the donors in arrival order, and the contributing
// raw records.
type Summary struct {
	Address        string
	TotalAllocated *big.Int
	Donors         []string
	Allocations    []model.Allocation
}

// GroupAllocations buckets raw allocations by project address, preserving the
// order in which addresses are first seen. Amounts are summed with
// arbitrary-precision integers; records failing validation are dropped with a
// warning rather than corrupting a project's total.
func GroupAllocations(allocations []model.Allocation) []Summary {
	groups := make(map[string]int)
	var out []Summary

	for _, alloc := range allocations {
		if err := alloc.Validate(); err != nil {
			logrus.Warnf("Skipping allocation record: %v", err)
			continue
		}
		idx, ok := groups[alloc.Project]
		if !ok {
			idx = len(out)
			groups[alloc.Project] = idx
			out = append(out, Summary{
				Address:        alloc.Project,
				TotalAllocated: new(big.Int),
			})
		}
		out[idx].TotalAllocated.Add(out[idx].TotalAllocated, alloc.AmountWei())
		out[idx].Donors = append(out[idx].Donors, alloc.Donor)
		out[idx].Allocations = append(out[idx].Allocations, alloc)
	}

	return out
}

// applicationStatus derives the lifecycle status from the project's reward
// record. A matched amount means the quadratic-funding round funded the
// project; a bare allocation means it was approved but unmatched.
func applicationStatus(reward model.Reward, found bool) string {
	if !found {
		return "pending"
	}
	if reward.MatchedWei().Sign() > 0 {
		return "funded"
	}
	if reward.AllocatedWei().Sign() > 0 {
		return "approved"
	}
	return "pending"
}

// buildPayouts attaches at most one payout entry, referencing the first
// merkle leaf matching the project address.
func buildPayouts(epochNum int, address string, merkle *model.MerkleTree) []Payout {
	payouts := []Payout{}
	leaf, ok := merkle.LeafFor(address)
	if !ok {
		return payouts
	}
	return append(payouts, Payout{
		Type: "OnchainTransaction",
		Value: PayoutValue{
			Amount:     leaf.Amount,
			MerkleRoot: merkle.Root,
			Recipient:  address,
		},
		Proof: fmt.Sprintf("merkle_proof_epoch_%d_%s", epochNum, address),
	})
}

// usdAmount converts a base-unit total to a fixed two-decimal USD string at
// the epoch's rate. When no rate resolves the result is the literal
// "unknown": never zero, so a missing rate cannot masquerade as a worthless
// grant.
func usdAmount(ctx context.Context, rateSource RateSource, epochNum int, totalWei *big.Int) string {
	rate, ok := rateSource.RateForEpoch(ctx, epochNum)
	if !ok {
		return "unknown"
	}
	eth := decimal.NewFromBigInt(totalWei, weiExponent)
	return eth.Mul(decimal.NewFromFloat(rate)).StringFixed(2)
}

// WeiToETH renders a base-unit amount as a whole-ETH string, capped at six
// decimal places with trailing zeros trimmed.
func WeiToETH(wei string) string {
	return decimal.NewFromBigInt(model.Wei(wei), weiExponent).Round(6).String()
}

// buildApplications aggregates a concluded epoch's allocations into canonical
// applications. Callers must have resolved the epoch state to completed first.
func (b *Builder) buildApplications(
	ctx context.Context,
	epochNum int,
	allocations []model.Allocation,
	rewards *model.RewardsResponse,
	merkle *model.MerkleTree,
	now time.Time,
) []Application {
	chainID := b.ChainID()
	poolID := caip10.PoolID(chainID, epochNum)
	poolName := fmt.Sprintf("Octant Epoch %d", epochNum)
	createdAt := now.UTC().Format(time.RFC3339)

	groups := GroupAllocations(allocations)
	applications := make([]Application, 0, len(groups))

	for i, group := range groups {
		reward, hasReward := rewards.RewardFor(group.Address)

		app := Application{
			Type:          "GrantApplication",
			ID:            caip10.ApplicationID(chainID, i+1),
			GrantPoolID:   poolID,
			GrantPoolName: poolName,
			ProjectID:     caip10.ProjectID(chainID, group.Address),
			ProjectName:   shortProjectName(group.Address),
			CreatedAt:     createdAt,
			FundsAsked: []FundsEntry{
				{Amount: "0", Denomination: "ETH"},
			},
			FundsApproved: []FundsEntry{
				{Amount: group.TotalAllocated.String(), Denomination: "ETH"},
			},
			FundsApprovedInUSD: usdAmount(ctx, b.rates, epochNum, group.TotalAllocated),
			Status:             applicationStatus(reward, hasReward),
			Payouts:            buildPayouts(epochNum, group.Address, merkle),
		}

		// A reward record always contributes a matched entry, zero or not;
		// the USD total only moves when matched funds actually exist.
		if hasReward {
			matched := reward.MatchedWei()
			app.FundsApproved = append(app.FundsApproved, FundsEntry{
				Amount:       reward.Matched,
				Denomination: "ETH",
				Type:         "matched_funding",
			})
			if matched.Sign() > 0 {
				total := new(big.Int).Add(group.TotalAllocated, matched)
				app.FundsApprovedInUSD = usdAmount(ctx, b.rates, epochNum, total)
			}
		}

		applications = append(applications, app)
	}

	return applications
}

// shortProjectName is the display name used when no project detail record is
// available in the applications document.
func shortProjectName(address string) string {
	if len(address) > 8 {
		address = address[:8]
	}
	return fmt.Sprintf("Project %s...", address)
}
