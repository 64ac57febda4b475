package convert

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/octant-daoip5/internal/model"
)

// stubRates is a RateSource with fixed per-epoch rates.
type stubRates struct {
	rates      map[int]float64
	current    float64
	hasCurrent bool
}

func (s stubRates) RateForEpoch(_ context.Context, epochNum int) (float64, bool) {
	rate, ok := s.rates[epochNum]
	return rate, ok
}

func (s stubRates) CurrentRate(_ context.Context) (float64, bool) {
	return s.current, s.hasCurrent
}

func (s stubRates) Snapshot() map[int]float64 { return s.rates }

func testBuilder(rateSource RateSource) *Builder {
	return NewBuilder("https://backend.test", rateSource, nil, nil, nil)
}

func TestGroupAllocationsInsertionOrderAndSums(t *testing.T) {
	allocations := []model.Allocation{
		{Project: "0xCC", Donor: "0xD1", Amount: "100"},
		{Project: "0xAA", Donor: "0xD2", Amount: "50"},
		{Project: "0xCC", Donor: "0xD3", Amount: "25"},
		{Project: "0xBB", Donor: "0xD1", Amount: "0"},
	}

	groups := GroupAllocations(allocations)
	require.Len(t, groups, 3)

	// First-seen order, no re-sorting.
	assert.Equal(t, "0xCC", groups[0].Address)
	assert.Equal(t, "0xAA", groups[1].Address)
	assert.Equal(t, "0xBB", groups[2].Address)

	assert.Equal(t, "125", groups[0].TotalAllocated.String())
	assert.Equal(t, []string{"0xD1", "0xD3"}, groups[0].Donors)
	assert.Equal(t, "50", groups[1].TotalAllocated.String())

	// Zero totals are valid, reportable outcomes.
	assert.Equal(t, "0", groups[2].TotalAllocated.String())
}

func TestGroupAllocationsConservation(t *testing.T) {
	allocations := []model.Allocation{
		{Project: "0xAA", Donor: "0xD1", Amount: "1000000000000000000"},
		{Project: "0xBB", Donor: "0xD2", Amount: "500000000000000000"},
		{Project: "0xAA", Donor: "0xD3", Amount: "250000000000000000"},
		{Project: "0xCC", Donor: "0xD4", Amount: "1"},
	}

	input := new(big.Int)
	for _, a := range allocations {
		input.Add(input, a.AmountWei())
	}

	output := new(big.Int)
	for _, g := range GroupAllocations(allocations) {
		output.Add(output, g.TotalAllocated)
	}

	assert.Equal(t, input.String(), output.String())
}

func TestGroupAllocationsDropsInvalidRecords(t *testing.T) {
	allocations := []model.Allocation{
		{Project: "0xAA", Donor: "0xD1", Amount: "10"},
		{Project: "", Donor: "0xD2", Amount: "99"},
		{Project: "0xAA", Donor: "0xD3", Amount: "bogus"},
	}

	groups := GroupAllocations(allocations)
	require.Len(t, groups, 1)
	assert.Equal(t, "10", groups[0].TotalAllocated.String())
}

func TestGroupAllocationsExceedsUint64(t *testing.T) {
	// Two allocations that would overflow any fixed-width integer.
	big1 := "18446744073709551615"
	allocations := []model.Allocation{
		{Project: "0xAA", Donor: "0xD1", Amount: big1},
		{Project: "0xAA", Donor: "0xD2", Amount: big1},
	}

	groups := GroupAllocations(allocations)
	require.Len(t, groups, 1)
	assert.Equal(t, "36893488147419103230", groups[0].TotalAllocated.String())
}

func TestApplicationStatus(t *testing.T) {
	tests := []struct {
		name   string
		reward model.Reward
		found  bool
		want   string
	}{
		{"no reward record", model.Reward{}, false, "pending"},
		{"matched funding", model.Reward{Allocated: "10", Matched: "5"}, true, "funded"},
		{"allocated only", model.Reward{Allocated: "10", Matched: "0"}, true, "approved"},
		{"zero reward", model.Reward{Allocated: "0", Matched: "0"}, true, "pending"},
		{"matched without allocated", model.Reward{Allocated: "0", Matched: "3"}, true, "funded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applicationStatus(tt.reward, tt.found))
		})
	}
}

func TestBuildPayoutsFirstMatchWins(t *testing.T) {
	merkle := &model.MerkleTree{
		Root: "0xR",
		Leaves: []model.MerkleLeaf{
			{Address: "0xBB", Amount: "7"},
			{Address: "0xAA", Amount: "3"},
			{Address: "0xAA", Amount: "4"},
		},
	}

	payouts := buildPayouts(7, "0xAA", merkle)
	require.Len(t, payouts, 1)
	assert.Equal(t, "OnchainTransaction", payouts[0].Type)
	assert.Equal(t, "3", payouts[0].Value.Amount)
	assert.Equal(t, "0xR", payouts[0].Value.MerkleRoot)
	assert.Equal(t, "0xAA", payouts[0].Value.Recipient)
	assert.Equal(t, "merkle_proof_epoch_7_0xAA", payouts[0].Proof)

	assert.Empty(t, buildPayouts(7, "0xZZ", merkle))
}

func TestUSDAmount(t *testing.T) {
	source := stubRates{rates: map[int]float64{7: 2000.0}}

	wei, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, "3000.00", usdAmount(context.Background(), source, 7, wei))
	assert.Equal(t, "0.00", usdAmount(context.Background(), source, 7, big.NewInt(0)))

	// No resolvable rate must never render as a number.
	assert.Equal(t, "unknown", usdAmount(context.Background(), source, 8, wei))
}

func TestWeiToETH(t *testing.T) {
	assert.Equal(t, "1.5", WeiToETH("1500000000000000000"))
	assert.Equal(t, "1", WeiToETH("1000000000000000000"))
	assert.Equal(t, "0.000001", WeiToETH("1000000000000"))
	assert.Equal(t, "0", WeiToETH("garbage"))
}
