package strategy

import (
	"voledge/internal/domain/analysis"
)

// Mapper selects one structure archetype per risk tier from the fixed
// catalogue, keyed on (direction, term regime, GEX regime). Every tier
// resolves to exactly one structure; combinations without a better match
// fall back to the calendar, the most conservative structure.
type Mapper struct{}

// NewMapper creates a strategy mapper
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map builds the three-tier plan set for a decision and feature context.
func (m *Mapper) Map(d analysis.Decision, f analysis.FeatureSet) analysis.PlanSet {
	return analysis.PlanSet{
		Aggressive:   m.plan(analysis.TierAggressive, d, f),
		Balanced:     m.plan(analysis.TierBalanced, d, f),
		Conservative: m.plan(analysis.TierConservative, d, f),
	}
}

func (m *Mapper) plan(tier analysis.Tier, d analysis.Decision, f analysis.FeatureSet) analysis.StrategyPlan {
	structure := m.lookup(tier, d.Direction, f)

	return analysis.StrategyPlan{
		Tier:      tier,
		Structure: structure,
		Legs:      legsFor(structure),
		DTE:       m.dteFor(structure, d.Direction, f),
	}
}

// lookup is the deterministic structure table. Unmatched combinations fall
// through to the calendar.
func (m *Mapper) lookup(tier analysis.Tier, dir analysis.Direction, f analysis.FeatureSet) analysis.Structure {
	switch dir {
	case analysis.DirectionLongVol:
		switch tier {
		case analysis.TierAggressive:
			// A short-gamma tape moves through strikes; pay for both
			// ATM legs. Otherwise widen to cheaper wings.
			if f.GEXRegime == analysis.GEXNegative {
				return analysis.StructureLongStraddle
			}
			return analysis.StructureLongStrangle
		case analysis.TierBalanced:
			if f.TermRegime == analysis.TermContango {
				return analysis.StructureDiagonal
			}
			return analysis.StructureLongStrangle
		}

	case analysis.DirectionShortVol:
		switch tier {
		case analysis.TierAggressive:
			if f.GEXRegime == analysis.GEXNegative {
				// Selling premium into a short-gamma tape is the one
				// combination the table refuses.
				return analysis.StructureCalendar
			}
			if f.TermRegime == analysis.TermContango {
				// Carry confirms the harvest; take the naked strangle
				// instead of paying for wings.
				return analysis.StructureShortStrangle
			}
			return analysis.StructureIronCondor
		case analysis.TierBalanced:
			if f.TermRegime == analysis.TermBackwardation {
				return analysis.StructureCalendar
			}
			return analysis.StructureCreditSpread
		}

	case analysis.DirectionHold:
		if tier == analysis.TierAggressive && f.TermRegime != analysis.TermFlat {
			return analysis.StructureDiagonal
		}
	}

	return analysis.StructureCalendar
}

// legsFor expands a structure into its leg templates.
func legsFor(s analysis.Structure) []analysis.LegTemplate {
	switch s {
	case analysis.StructureLongStraddle:
		return []analysis.LegTemplate{
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessATM},
			{Action: analysis.ActionBuy, Side: analysis.SidePut, Moneyness: analysis.MoneynessATM},
		}
	case analysis.StructureLongStrangle:
		return []analysis.LegTemplate{
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessOTMCall},
			{Action: analysis.ActionBuy, Side: analysis.SidePut, Moneyness: analysis.MoneynessOTMPut},
		}
	case analysis.StructureShortStrangle:
		return []analysis.LegTemplate{
			{Action: analysis.ActionSell, Side: analysis.SideCall, Moneyness: analysis.MoneynessOTMCall},
			{Action: analysis.ActionSell, Side: analysis.SidePut, Moneyness: analysis.MoneynessOTMPut},
		}
	case analysis.StructureIronCondor:
		return []analysis.LegTemplate{
			{Action: analysis.ActionSell, Side: analysis.SideCall, Moneyness: analysis.MoneynessOTMCall},
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessWingCall},
			{Action: analysis.ActionSell, Side: analysis.SidePut, Moneyness: analysis.MoneynessOTMPut},
			{Action: analysis.ActionBuy, Side: analysis.SidePut, Moneyness: analysis.MoneynessWingPut},
		}
	case analysis.StructureCreditSpread:
		return []analysis.LegTemplate{
			{Action: analysis.ActionSell, Side: analysis.SidePut, Moneyness: analysis.MoneynessOTMPut},
			{Action: analysis.ActionBuy, Side: analysis.SidePut, Moneyness: analysis.MoneynessWingPut},
		}
	case analysis.StructureDiagonal:
		return []analysis.LegTemplate{
			{Action: analysis.ActionSell, Side: analysis.SideCall, Moneyness: analysis.MoneynessOTMCall, Expiry: analysis.ExpiryNear},
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessATM, Expiry: analysis.ExpiryFar},
		}
	default: // calendar
		return []analysis.LegTemplate{
			{Action: analysis.ActionSell, Side: analysis.SideCall, Moneyness: analysis.MoneynessATM, Expiry: analysis.ExpiryNear},
			{Action: analysis.ActionBuy, Side: analysis.SideCall, Moneyness: analysis.MoneynessATM, Expiry: analysis.ExpiryFar},
		}
	}
}

// dteFor returns the DTE range for a structure, tightened in event weeks.
func (m *Mapper) dteFor(s analysis.Structure, dir analysis.Direction, f analysis.FeatureSet) analysis.DTERange {
	var r analysis.DTERange
	switch s {
	case analysis.StructureLongStraddle, analysis.StructureLongStrangle:
		r = analysis.DTERange{Min: 30, Max: 45, Optimal: 35}
	case analysis.StructureShortStrangle, analysis.StructureIronCondor, analysis.StructureCreditSpread:
		r = analysis.DTERange{Min: 14, Max: 45, Optimal: 30}
	default: // calendar, diagonal span near/far expiries
		r = analysis.DTERange{Min: 7, Max: 60, Optimal: 30}
	}

	if f.EventWeek && dir == analysis.DirectionLongVol {
		// Event premium lives in the short-dated expiries.
		r = analysis.DTERange{Min: 5, Max: 20, Optimal: 10}
	}

	return r
}
