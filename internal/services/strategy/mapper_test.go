package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voledge/internal/domain/analysis"
)

func TestMapIsTotal(t *testing.T) {
	m := NewMapper()

	directions := []analysis.Direction{
		analysis.DirectionLongVol, analysis.DirectionShortVol, analysis.DirectionHold,
	}
	gexes := []analysis.GEXRegime{analysis.GEXPositive, analysis.GEXNegative, analysis.GEXNeutral}
	terms := []analysis.TermRegime{analysis.TermBackwardation, analysis.TermFlat, analysis.TermContango}

	for _, dir := range directions {
		for _, gex := range gexes {
			for _, term := range terms {
				f := analysis.FeatureSet{GEXRegime: gex, TermRegime: term}
				set := m.Map(analysis.Decision{Direction: dir}, f)

				for _, plan := range []analysis.StrategyPlan{set.Aggressive, set.Balanced, set.Conservative} {
					require.NotEmpty(t, plan.Structure, "%s/%s/%s", dir, gex, term)
					require.NotEmpty(t, plan.Legs, "%s structure has no legs", plan.Structure)
					require.Greater(t, plan.DTE.Max, 0)
					require.LessOrEqual(t, plan.DTE.Min, plan.DTE.Optimal)
					require.LessOrEqual(t, plan.DTE.Optimal, plan.DTE.Max)
				}
			}
		}
	}
}

func TestMapLongVolShortGamma(t *testing.T) {
	m := NewMapper()
	f := analysis.FeatureSet{GEXRegime: analysis.GEXNegative, TermRegime: analysis.TermFlat}

	set := m.Map(analysis.Decision{Direction: analysis.DirectionLongVol}, f)

	assert.Equal(t, analysis.StructureLongStraddle, set.Aggressive.Structure)

	// Both straddle legs anchor ATM.
	for _, leg := range set.Aggressive.Legs {
		assert.Equal(t, analysis.MoneynessATM, leg.Moneyness)
		assert.Equal(t, analysis.ActionBuy, leg.Action)
	}
}

func TestMapRefusesShortPremiumIntoShortGamma(t *testing.T) {
	m := NewMapper()
	f := analysis.FeatureSet{GEXRegime: analysis.GEXNegative}

	set := m.Map(analysis.Decision{Direction: analysis.DirectionShortVol}, f)

	// An iron condor into a short-gamma tape is the refused combination;
	// the table detours to the calendar.
	assert.Equal(t, analysis.StructureCalendar, set.Aggressive.Structure)
}

func TestMapShortVolPositiveGamma(t *testing.T) {
	m := NewMapper()
	f := analysis.FeatureSet{GEXRegime: analysis.GEXPositive}

	set := m.Map(analysis.Decision{Direction: analysis.DirectionShortVol}, f)

	require.Equal(t, analysis.StructureIronCondor, set.Aggressive.Structure)
	assert.Len(t, set.Aggressive.Legs, 4)
}

func TestMapShortStrangleNeedsCarry(t *testing.T) {
	m := NewMapper()

	// Long gamma plus contango carry: the aggressive tier drops the wings
	// and sells the strangle naked.
	f := analysis.FeatureSet{GEXRegime: analysis.GEXPositive, TermRegime: analysis.TermContango}
	set := m.Map(analysis.Decision{Direction: analysis.DirectionShortVol}, f)

	require.Equal(t, analysis.StructureShortStrangle, set.Aggressive.Structure)
	require.Len(t, set.Aggressive.Legs, 2)
	for _, leg := range set.Aggressive.Legs {
		assert.Equal(t, analysis.ActionSell, leg.Action)
	}

	// Without the carry confirmation the condor's wings stay on.
	f.TermRegime = analysis.TermFlat
	set = m.Map(analysis.Decision{Direction: analysis.DirectionShortVol}, f)
	assert.Equal(t, analysis.StructureIronCondor, set.Aggressive.Structure)
}

func TestMapConservativeIsAlwaysCalendar(t *testing.T) {
	m := NewMapper()

	for _, dir := range []analysis.Direction{
		analysis.DirectionLongVol, analysis.DirectionShortVol, analysis.DirectionHold,
	} {
		set := m.Map(analysis.Decision{Direction: dir}, analysis.FeatureSet{})
		assert.Equal(t, analysis.StructureCalendar, set.Conservative.Structure)
	}
}

func TestMapCalendarLegsSplitExpiries(t *testing.T) {
	m := NewMapper()
	set := m.Map(analysis.Decision{Direction: analysis.DirectionHold}, analysis.FeatureSet{})

	legs := set.Conservative.Legs
	require.Len(t, legs, 2)
	assert.Equal(t, analysis.ExpiryNear, legs[0].Expiry)
	assert.Equal(t, analysis.ActionSell, legs[0].Action)
	assert.Equal(t, analysis.ExpiryFar, legs[1].Expiry)
	assert.Equal(t, analysis.ActionBuy, legs[1].Action)
}

func TestMapEventWeekTightensLongVolDTE(t *testing.T) {
	m := NewMapper()
	f := analysis.FeatureSet{EventWeek: true, GEXRegime: analysis.GEXNegative}

	set := m.Map(analysis.Decision{Direction: analysis.DirectionLongVol}, f)

	assert.Equal(t, analysis.DTERange{Min: 5, Max: 20, Optimal: 10}, set.Aggressive.DTE)

	// Short vol keeps the standard windows even in event weeks.
	set = m.Map(analysis.Decision{Direction: analysis.DirectionShortVol}, f)
	assert.NotEqual(t, 5, set.Aggressive.DTE.Min)
}
