package strikes

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/internal/tools/options"
)

func f(v float64) *float64 { return &v }

func snapshot() *market.Snapshot {
	return &market.Snapshot{
		Symbol:    "SPY",
		Date:      "2026-08-21",
		Timestamp: time.Now(),
		Spot:      500,
		IVAtm:     0.25,
		HV10:      0.2,
		HV20:      0.2,
		HV60:      0.2,
	}
}

func straddlePlan() analysis.StrategyPlan {
	return analysis.StrategyPlan{
		Tier:      analysis.TierAggressive,
		Structure: analysis.StructureLongStraddle,
		Legs: []analysis.LegTemplate{
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessATM},
			{Action: analysis.ActionBuy, Side: analysis.SidePut, Moneyness: analysis.MoneynessATM},
		},
		DTE: analysis.DTERange{Min: 30, Max: 45, Optimal: 35},
	}
}

func condorPlan() analysis.StrategyPlan {
	return analysis.StrategyPlan{
		Tier:      analysis.TierAggressive,
		Structure: analysis.StructureIronCondor,
		Legs: []analysis.LegTemplate{
			{Action: analysis.ActionSell, Side: analysis.SideCall, Moneyness: analysis.MoneynessOTMCall},
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessWingCall},
			{Action: analysis.ActionSell, Side: analysis.SidePut, Moneyness: analysis.MoneynessOTMPut},
			{Action: analysis.ActionBuy, Side: analysis.SidePut, Moneyness: analysis.MoneynessWingPut},
		},
		DTE: analysis.DTERange{Min: 14, Max: 45, Optimal: 30},
	}
}

func TestResolveATMLegsShareOneStrike(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Increment = 5

	snap := snapshot()
	snap.Spot = 503.2

	set := NewCalculator(cfg).Resolve(straddlePlan(), snap)

	require.Len(t, set.Legs, 2)
	assert.Equal(t, set.Legs[0].Strike, set.Legs[1].Strike)
	assert.Equal(t, 505.0, set.Legs[0].Strike) // 503.2 rounded to increment 5
}

func TestResolveDeltaSolver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Increment = 0 // keep the raw solve for the assertion

	set := NewCalculator(cfg).Resolve(condorPlan(), snapshot())
	require.Len(t, set.Legs, 4)

	for _, leg := range set.Legs {
		require.Equal(t, analysis.MethodDelta, leg.Method)

		target := cfg.WingDelta
		if leg.Action == analysis.ActionBuy {
			target = cfg.WingDelta / 2 // protective wings
		}

		tt := float64(leg.DTE) / 365.0
		d := options.Delta(500, leg.Strike, tt, cfg.RiskFreeRate, 0.25, leg.Side == analysis.SideCall)
		assert.InDelta(t, target, math.Abs(d), 5*cfg.SolverTolerance)
	}

	// Calls above spot, puts below.
	assert.Greater(t, set.Legs[0].Strike, 500.0)
	assert.Greater(t, set.Legs[1].Strike, set.Legs[0].Strike)
	assert.Less(t, set.Legs[2].Strike, 500.0)
	assert.Less(t, set.Legs[3].Strike, set.Legs[2].Strike)
}

func TestResolveBarrierUsesWalls(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = analysis.MethodBarrier
	cfg.Increment = 0

	snap := snapshot()
	snap.CallWall = f(520.0)
	snap.PutWall = f(480.0)

	set := NewCalculator(cfg).Resolve(condorPlan(), snap)

	// Sold call tucks inside the wall; the bought wing (no secondary wall)
	// sits past the same wall.
	assert.Equal(t, analysis.MethodBarrier, set.Legs[0].Method)
	assert.InDelta(t, 520*(1-cfg.BarrierBufferPct), set.Legs[0].Strike, 1e-9)
	assert.InDelta(t, 520*(1+cfg.BarrierBufferPct), set.Legs[1].Strike, 1e-9)
	assert.InDelta(t, 480*(1+cfg.BarrierBufferPct), set.Legs[2].Strike, 1e-9)
	assert.InDelta(t, 480*(1-cfg.BarrierBufferPct), set.Legs[3].Strike, 1e-9)
}

func TestResolveBarrierFallsBackWithoutWalls(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = analysis.MethodBarrier

	set := NewCalculator(cfg).Resolve(condorPlan(), snapshot())

	for _, leg := range set.Legs {
		assert.Equal(t, analysis.MethodATR, leg.Method)
	}
}

func TestResolveATRBandsAroundSpot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = analysis.MethodATR
	cfg.Increment = 0

	set := NewCalculator(cfg).Resolve(condorPlan(), snapshot())

	assert.Greater(t, set.Legs[0].Strike, 500.0)
	assert.Less(t, set.Legs[2].Strike, 500.0)

	// Wings band out 1.5x further than the sold legs.
	callBand := set.Legs[0].Strike - 500
	wingBand := set.Legs[1].Strike - 500
	assert.InDelta(t, 1.5, wingBand/callBand, 1e-9)
}

func TestResolveDegenerateVolFallsBackToATR(t *testing.T) {
	snap := snapshot()
	snap.IVAtm = 0 // delta is the moneyness indicator, bracket check fails

	set := NewCalculator(DefaultConfig()).Resolve(condorPlan(), snap)

	for _, leg := range set.Legs {
		assert.Equal(t, analysis.MethodATR, leg.Method)
	}
}

func TestResolveLegDTEFollowsExpiry(t *testing.T) {
	plan := analysis.StrategyPlan{
		Tier:      analysis.TierConservative,
		Structure: analysis.StructureCalendar,
		Legs: []analysis.LegTemplate{
			{Action: analysis.ActionSell, Side: analysis.SideCall, Moneyness: analysis.MoneynessATM, Expiry: analysis.ExpiryNear},
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessATM, Expiry: analysis.ExpiryFar},
		},
		DTE: analysis.DTERange{Min: 7, Max: 60, Optimal: 30},
	}

	set := NewCalculator(DefaultConfig()).Resolve(plan, snapshot())

	require.Len(t, set.Legs, 2)
	assert.Equal(t, 7, set.Legs[0].DTE)
	assert.Equal(t, 60, set.Legs[1].DTE)
}

func TestRoundToIncrement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Increment = 0.5
	c := NewCalculator(cfg)

	assert.Equal(t, 100.5, c.roundToIncrement(100.6))
	assert.Equal(t, 100.5, c.roundToIncrement(100.26))
	assert.Equal(t, 100.0, c.roundToIncrement(100.24))
}
