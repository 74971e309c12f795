package strikes

import (
	"math"

	"github.com/shopspring/decimal"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/internal/tools/options"
	"voledge/pkg/errors"
	"voledge/pkg/logger"
)

// Config holds strike resolution parameters
type Config struct {
	// Method selects the preferred resolution method: delta|barrier|atr.
	// The ATR method is always the terminal fallback.
	Method analysis.StrikeMethod

	// WingDelta is the |delta| target for OTM legs; protective wings
	// target half of it.
	WingDelta float64

	SolverMaxIter   int
	SolverTolerance float64

	// BarrierBufferPct offsets a wall-anchored strike toward spot for
	// sold legs.
	BarrierBufferPct float64

	ATRMultiplier float64

	// Increment is the instrument's strike spacing.
	Increment float64

	RiskFreeRate float64
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Method:           analysis.MethodDelta,
		WingDelta:        0.30,
		SolverMaxIter:    100,
		SolverTolerance:  1e-4,
		BarrierBufferPct: 0.005,
		ATRMultiplier:    1.0,
		Increment:        1.0,
		RiskFreeRate:     0.05,
	}
}

// Calculator resolves concrete strike prices for a strategy plan's legs.
type Calculator struct {
	cfg Config
	log *logger.Logger
}

// NewCalculator creates a strike calculator
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		cfg: cfg,
		log: logger.Get().With("component", "strike_calculator"),
	}
}

// Resolve computes a strike for every leg of the plan. Each leg resolves
// independently; ATM legs all land on the same increment-rounded spot. A
// failed delta solve or a missing wall falls back to the ATR method; the
// leg is still resolved and tagged with the method actually used.
func (c *Calculator) Resolve(plan analysis.StrategyPlan, snap *market.Snapshot) analysis.StrikeSet {
	set := analysis.StrikeSet{
		Tier: plan.Tier,
		Legs: make([]analysis.LegStrike, 0, len(plan.Legs)),
	}

	for _, leg := range plan.Legs {
		dte := legDTE(leg, plan.DTE)
		strike, method := c.resolveLeg(leg, snap, dte)
		set.Legs = append(set.Legs, analysis.LegStrike{
			Action: leg.Action,
			Side:   leg.Side,
			Strike: c.roundToIncrement(strike),
			Method: method,
			DTE:    dte,
		})
	}

	return set
}

func legDTE(leg analysis.LegTemplate, r analysis.DTERange) int {
	switch leg.Expiry {
	case analysis.ExpiryNear:
		return r.Min
	case analysis.ExpiryFar:
		return r.Max
	default:
		return r.Optimal
	}
}

func (c *Calculator) resolveLeg(leg analysis.LegTemplate, snap *market.Snapshot, dte int) (float64, analysis.StrikeMethod) {
	if leg.Moneyness == analysis.MoneynessATM {
		// All ATM legs share the spot strike regardless of method.
		return snap.Spot, c.cfg.Method
	}

	switch c.cfg.Method {
	case analysis.MethodDelta:
		strike, err := c.deltaStrike(leg, snap, dte)
		if err == nil {
			return strike, analysis.MethodDelta
		}
		c.log.Warnw("delta solve failed, using ATR fallback",
			"symbol", snap.Symbol, "side", leg.Side, "error", err)

	case analysis.MethodBarrier:
		if strike, ok := c.barrierStrike(leg, snap); ok {
			return strike, analysis.MethodBarrier
		}
	}

	return c.atrStrike(leg, snap, dte), analysis.MethodATR
}

// deltaStrike solves for the strike whose Black-Scholes delta magnitude
// matches the leg's target, by bisection on the closed-form delta. |delta|
// is monotonically decreasing as the strike moves out of the money, so the
// bracket [0.4*spot, 2.5*spot] always straddles targets inside (0, 0.5).
func (c *Calculator) deltaStrike(leg analysis.LegTemplate, snap *market.Snapshot, dte int) (float64, error) {
	target := c.cfg.WingDelta
	if leg.Moneyness == analysis.MoneynessWingCall || leg.Moneyness == analysis.MoneynessWingPut {
		target = c.cfg.WingDelta / 2
	}

	t := float64(dte) / 365.0
	sigma := snap.IVAtm
	call := leg.Side == analysis.SideCall

	absDelta := func(k float64) float64 {
		return math.Abs(options.Delta(snap.Spot, k, t, c.cfg.RiskFreeRate, sigma, call))
	}

	// For calls |delta| decreases with strike; for puts it increases.
	lo, hi := snap.Spot*0.4, snap.Spot*2.5
	if !call {
		lo, hi = hi, lo // keep f(lo) > target > f(hi)
	}

	if !(absDelta(lo) >= target && absDelta(hi) <= target) {
		return 0, errors.Wrapf(errors.ErrConvergence,
			"target delta %.2f outside bracket", target)
	}

	for i := 0; i < c.cfg.SolverMaxIter; i++ {
		mid := (lo + hi) / 2
		d := absDelta(mid)
		if math.Abs(d-target) < c.cfg.SolverTolerance {
			return mid, nil
		}
		if d > target {
			lo = mid
		} else {
			hi = mid
		}
	}

	return 0, errors.Wrapf(errors.ErrConvergence,
		"no convergence after %d iterations", c.cfg.SolverMaxIter)
}

// barrierStrike pins a strike to the relevant gamma wall, offset by the
// buffer: sold legs tuck inside the wall, bought wings sit past it.
func (c *Calculator) barrierStrike(leg analysis.LegTemplate, snap *market.Snapshot) (float64, bool) {
	var wall *float64
	switch leg.Moneyness {
	case analysis.MoneynessOTMCall:
		wall = snap.CallWall
	case analysis.MoneynessWingCall:
		wall = snap.CallWall2
		if wall == nil {
			wall = snap.CallWall
		}
	case analysis.MoneynessOTMPut:
		wall = snap.PutWall
	case analysis.MoneynessWingPut:
		wall = snap.PutWall2
		if wall == nil {
			wall = snap.PutWall
		}
	}
	if wall == nil || *wall <= 0 {
		return 0, false
	}

	buffer := *wall * c.cfg.BarrierBufferPct
	callSide := leg.Side == analysis.SideCall

	if leg.Action == analysis.ActionSell {
		if callSide {
			return *wall - buffer, true
		}
		return *wall + buffer, true
	}
	if callSide {
		return *wall + buffer, true
	}
	return *wall - buffer, true
}

// atrStrike bands the strike around spot using an ATR proxy derived from
// HV20: daily sigma scaled by the root of the holding period.
func (c *Calculator) atrStrike(leg analysis.LegTemplate, snap *market.Snapshot, dte int) float64 {
	dailyRange := snap.Spot * snap.HV20 / math.Sqrt(252)
	band := c.cfg.ATRMultiplier * dailyRange * math.Sqrt(float64(dte))

	if leg.Moneyness == analysis.MoneynessWingCall || leg.Moneyness == analysis.MoneynessWingPut {
		band *= 1.5
	}

	if leg.Side == analysis.SideCall {
		return snap.Spot + band
	}
	return snap.Spot - band
}

// roundToIncrement snaps a raw strike to the instrument's strike spacing.
// decimal arithmetic avoids float ulp artifacts exactly at increment
// boundaries.
func (c *Calculator) roundToIncrement(strike float64) float64 {
	if c.cfg.Increment <= 0 {
		return strike
	}
	inc := decimal.NewFromFloat(c.cfg.Increment)
	n := decimal.NewFromFloat(strike).Div(inc).Round(0)
	out, _ := n.Mul(inc).Float64()
	return out
}
