package features

import (
	"math"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
)

// Config holds the regime bucketing thresholds. VRP thresholds are
// percentage points of (IV-HV)/HV; term band is percentage points of
// normalized slope; skew band is in vol points.
type Config struct {
	VRPLongBiasPct  float64
	VRPShortBiasPct float64

	// EventIVBlend is the weight of event-week IV in the blended selected
	// IV when the snapshot is flagged as an event week.
	EventIVBlend float64

	GEXNeutralBand   float64 // absolute net-GEX band treated as neutral
	TermSlopeBandPct float64
	SkewBalancedBand float64
	RVMomentumBand   float64
	GammaWallProxPct float64

	// SpreadFullPenalty is the relative ATM spread that zeroes the
	// liquidity score on its own.
	SpreadFullPenalty float64

	VovElevated    float64
	VovSubdued     float64
	VIXTermBandPct float64
	VexBand        float64
	VannaElevated  float64
}

// DefaultConfig returns the documented default thresholds
func DefaultConfig() Config {
	return Config{
		VRPLongBiasPct:    -3.0,
		VRPShortBiasPct:   3.0,
		EventIVBlend:      0.5,
		GEXNeutralBand:    0.05,
		TermSlopeBandPct:  2.0,
		SkewBalancedBand:  0.02,
		RVMomentumBand:    0.2,
		GammaWallProxPct:  0.005,
		SpreadFullPenalty: 0.05,
		VovElevated:       110,
		VovSubdued:        90,
		VIXTermBandPct:    0.02,
		VexBand:           50,
		VannaElevated:     0.01,
	}
}

// Calculator derives dimensionless regime features from a market snapshot.
// Compute is pure and total: missing optional inputs yield neutral regimes,
// never an error.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a feature calculator
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Compute derives the full feature set from a snapshot.
func (c *Calculator) Compute(snap *market.Snapshot) analysis.FeatureSet {
	fs := analysis.FeatureSet{
		EventWeek:        snap.EventWeek,
		VRPRegime:        analysis.VRPNeutral,
		GEXRegime:        analysis.GEXNeutral,
		TermRegime:       analysis.TermFlat,
		SkewRegime:       analysis.SkewBalanced,
		RVMomentumRegime: analysis.MacroNeutral,
		VexRegime:        analysis.MacroNeutral,
		VovRegime:        analysis.MacroNeutral,
		VIXTermRegime:    analysis.MacroNeutral,
	}

	c.computeVRP(snap, &fs)
	c.computeGEX(snap, &fs)
	c.computeTerm(snap, &fs)
	c.computeSkew(snap, &fs)
	fs.LiquidityScore = c.liquidityScore(snap)
	c.computeRVMomentum(snap, &fs)
	c.computeSecondary(snap, &fs)

	return fs
}

// SelectedIV returns the IV used for VRP, strikes and simulation: ATM IV,
// blended toward event-week IV when the snapshot is an event week.
func (c *Calculator) SelectedIV(snap *market.Snapshot) float64 {
	iv := snap.IVAtm
	if snap.EventWeek && snap.IVEventWeek != nil {
		iv = c.cfg.EventIVBlend*(*snap.IVEventWeek) + (1-c.cfg.EventIVBlend)*snap.IVAtm
	}
	return iv
}

func (c *Calculator) computeVRP(snap *market.Snapshot, fs *analysis.FeatureSet) {
	iv := c.SelectedIV(snap)

	// HV window matched to horizon: event week trades against short
	// realized, the regular 30d view against HV20.
	hv := snap.HV20
	if snap.EventWeek {
		hv = snap.HV10
	}
	if hv <= 0 || iv <= 0 {
		// Undefined, skipped. Regime stays neutral.
		return
	}

	fs.VRPPct = (iv - hv) / hv * 100
	fs.VRPValid = true

	switch {
	case fs.VRPPct < c.cfg.VRPLongBiasPct:
		fs.VRPRegime = analysis.VRPLongBias
	case fs.VRPPct > c.cfg.VRPShortBiasPct:
		fs.VRPRegime = analysis.VRPShortBias
	default:
		fs.VRPRegime = analysis.VRPNeutral
	}
}

func (c *Calculator) computeGEX(snap *market.Snapshot, fs *analysis.FeatureSet) {
	if snap.NetGEX != nil {
		switch {
		case *snap.NetGEX > c.cfg.GEXNeutralBand:
			fs.GEXRegime = analysis.GEXPositive
		case *snap.NetGEX < -c.cfg.GEXNeutralBand:
			fs.GEXRegime = analysis.GEXNegative
		}
		return
	}

	// Without a net GEX reading, spot vs vol-trigger is the regime proxy:
	// above the trigger dealers are long gamma, below they are short.
	if snap.VolTrigger != nil && *snap.VolTrigger > 0 {
		switch {
		case snap.Spot > *snap.VolTrigger:
			fs.GEXRegime = analysis.GEXPositive
		case snap.Spot < *snap.VolTrigger:
			fs.GEXRegime = analysis.GEXNegative
		}
	}
}

func (c *Calculator) computeTerm(snap *market.Snapshot, fs *analysis.FeatureSet) {
	if snap.IVFront == nil || snap.IVBack == nil || *snap.IVFront <= 0 {
		return
	}

	fs.TermSlopePct = (*snap.IVBack - *snap.IVFront) / *snap.IVFront * 100
	fs.TermValid = true

	switch {
	case fs.TermSlopePct < -c.cfg.TermSlopeBandPct:
		fs.TermRegime = analysis.TermBackwardation
	case fs.TermSlopePct > c.cfg.TermSlopeBandPct:
		fs.TermRegime = analysis.TermContango
	}
}

func (c *Calculator) computeSkew(snap *market.Snapshot, fs *analysis.FeatureSet) {
	if snap.PutSkew25 == nil || snap.CallSkew25 == nil {
		return
	}

	fs.SkewValue = *snap.PutSkew25 - *snap.CallSkew25
	fs.SkewValid = true

	switch {
	case fs.SkewValue > c.cfg.SkewBalancedBand:
		fs.SkewRegime = analysis.SkewPutHeavy
	case fs.SkewValue < -c.cfg.SkewBalancedBand:
		fs.SkewRegime = analysis.SkewCallHeavy
	}
}

// liquidityScore combines the ATM spread (inverse) with a volume/open
// interest bonus, clamped to [0, 100]. A missing spread reads as neutral 50.
func (c *Calculator) liquidityScore(snap *market.Snapshot) float64 {
	if snap.SpreadAtm == nil {
		return 50
	}

	spread := math.Max(*snap.SpreadAtm, 0)
	score := 100 * (1 - spread/c.cfg.SpreadFullPenalty)

	if snap.VolumeOIRatio != nil && *snap.VolumeOIRatio > 0 {
		score += 20 * math.Min(*snap.VolumeOIRatio, 1)
	}

	return math.Max(0, math.Min(100, score))
}

func (c *Calculator) computeRVMomentum(snap *market.Snapshot, fs *analysis.FeatureSet) {
	if snap.HV60 <= 0 || snap.HV10 <= 0 {
		return
	}

	fs.RVMomentum = snap.HV10/snap.HV60 - 1

	switch {
	case fs.RVMomentum > c.cfg.RVMomentumBand:
		fs.RVMomentumRegime = analysis.MacroElevated
	case fs.RVMomentum < -c.cfg.RVMomentumBand:
		fs.RVMomentumRegime = analysis.MacroSubdued
	}
}

func (c *Calculator) computeSecondary(snap *market.Snapshot, fs *analysis.FeatureSet) {
	// Pin risk: spot parked on a gamma wall inside a long-gamma regime.
	if snap.GammaWall != nil && *snap.GammaWall > 0 && fs.GEXRegime == analysis.GEXPositive {
		prox := math.Abs(snap.Spot-*snap.GammaWall) / snap.Spot
		fs.PinRisk = prox <= c.cfg.GammaWallProxPct
	}

	if snap.VexNet != nil {
		switch {
		case *snap.VexNet < -c.cfg.VexBand:
			fs.VexRegime = analysis.MacroElevated
		case *snap.VexNet > c.cfg.VexBand:
			fs.VexRegime = analysis.MacroSubdued
		}
	}

	if snap.VannaAtm != nil {
		fs.VannaElevated = math.Abs(*snap.VannaAtm) > c.cfg.VannaElevated
	}

	if snap.VVIX != nil {
		switch {
		case *snap.VVIX > c.cfg.VovElevated:
			fs.VovRegime = analysis.MacroElevated
		case *snap.VVIX < c.cfg.VovSubdued:
			fs.VovRegime = analysis.MacroSubdued
		}
	}

	if snap.VIX != nil && snap.VIX9D != nil && *snap.VIX > 0 {
		ratio := *snap.VIX9D / *snap.VIX
		switch {
		case ratio > 1+c.cfg.VIXTermBandPct:
			fs.VIXTermRegime = analysis.MacroElevated // short-dated stress bid
		case ratio < 1-c.cfg.VIXTermBandPct:
			fs.VIXTermRegime = analysis.MacroSubdued
		}
	}
}
