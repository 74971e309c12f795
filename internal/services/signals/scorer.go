package signals

import (
	"math"
	"strings"

	"voledge/internal/domain/analysis"
)

// WeightTable maps "<signal>_<side>" keys to weights, e.g. "vrp_long" or
// "gex_short". The table is open: a new signal only needs a new key, and the
// scorer picks up any "<name>_long"/"<name>_short" pair it knows how to
// derive a unit for.
type WeightTable map[string]float64

// DefaultWeights returns the documented default weight table. Long-side
// weights follow the premium-discount view, short-side the premium-harvest
// view; liquidity penalizes both sides.
func DefaultWeights() WeightTable {
	return WeightTable{
		"vrp_long":       0.25,
		"gex_long":       0.18,
		"vex_long":       0.18,
		"carry_long":     0.08,
		"skew_long":      0.08,
		"vanna_long":     0.05,
		"rv_momo_long":   0.06,
		"liquidity_long": 0.10,
		"vov_long":       0.07,
		"vix_term_long":  0.05,
		"pin_long":       0.06,

		"vrp_short":       0.30,
		"gex_short":       0.12,
		"vex_short":       0.12,
		"carry_short":     0.18,
		"skew_short":      0.08,
		"rv_momo_short":   0.05,
		"liquidity_short": 0.10,
		"vov_short":       0.07,
		"vix_term_short":  0.05,
		"pin_short":       0.09,
	}
}

// AbsSum returns the sum of absolute weights, the confidence normalizer.
func (w WeightTable) AbsSum() float64 {
	var sum float64
	for _, v := range w {
		sum += math.Abs(v)
	}
	return sum
}

// Config holds scoring parameters
type Config struct {
	Weights WeightTable

	// NeutralEpsilon is the |L-S| band reported as a neutral dominant
	// direction.
	NeutralEpsilon float64
}

// DefaultConfig returns the default scoring configuration
func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		NeutralEpsilon: 0.05,
	}
}

// Scorer converts a feature set into the two weighted composite scores.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with an externally supplied weight table.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// units is a signal's unit pull on each side before weighting
type units struct {
	long  float64
	short float64
}

// Score computes LongVolScore, ShortVolScore, the dominant direction and the
// confidence percentage. Both scores may be nonzero at once; they are not
// normalized against each other.
func (s *Scorer) Score(f analysis.FeatureSet) analysis.ScoreSet {
	contributions := s.unitContributions(f)

	set := analysis.ScoreSet{
		Breakdown: make(map[string]analysis.Contribution, len(contributions)),
	}

	for name, u := range contributions {
		wl := s.cfg.Weights[name+"_long"]
		ws := s.cfg.Weights[name+"_short"]

		c := analysis.Contribution{
			LongUnit:      u.long,
			ShortUnit:     u.short,
			LongWeighted:  wl * u.long,
			ShortWeighted: ws * u.short,
		}
		set.Breakdown[name] = c
		set.LongVolScore += c.LongWeighted
		set.ShortVolScore += c.ShortWeighted
	}

	diff := set.LongVolScore - set.ShortVolScore
	switch {
	case math.Abs(diff) < s.cfg.NeutralEpsilon:
		set.Dominant = analysis.DirectionHold
	case diff > 0:
		set.Dominant = analysis.DirectionLongVol
	default:
		set.Dominant = analysis.DirectionShortVol
	}

	if norm := s.cfg.Weights.AbsSum(); norm > 0 {
		set.Confidence = math.Min(100, math.Abs(diff)/norm*100)
	}

	return set
}

// SignalNames lists the signals the scorer derives units for, from the
// weight table keys.
func (s *Scorer) SignalNames() []string {
	seen := make(map[string]bool)
	var names []string
	for key := range s.cfg.Weights {
		name := key
		if i := strings.LastIndex(key, "_"); i > 0 {
			suffix := key[i+1:]
			if suffix == "long" || suffix == "short" {
				name = key[:i]
			}
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// unitContributions maps each regime reading to signed unit pulls. Invalid
// or neutral features contribute zero to both sides.
func (s *Scorer) unitContributions(f analysis.FeatureSet) map[string]units {
	u := make(map[string]units)

	switch f.VRPRegime {
	case analysis.VRPLongBias:
		u["vrp"] = units{long: 1}
	case analysis.VRPShortBias:
		u["vrp"] = units{short: 1}
	default:
		u["vrp"] = units{}
	}

	switch f.GEXRegime {
	case analysis.GEXNegative:
		u["gex"] = units{long: 1}
	case analysis.GEXPositive:
		u["gex"] = units{short: 1}
	default:
		u["gex"] = units{}
	}

	switch f.TermRegime {
	case analysis.TermBackwardation:
		u["carry"] = units{long: 1}
	case analysis.TermContango:
		u["carry"] = units{short: 1}
	default:
		u["carry"] = units{}
	}

	switch f.SkewRegime {
	case analysis.SkewPutHeavy:
		u["skew"] = units{long: 1}
	case analysis.SkewCallHeavy:
		u["skew"] = units{short: 1}
	default:
		u["skew"] = units{}
	}

	// Poor liquidity drags both sides toward HOLD.
	penalty := -(1 - f.LiquidityScore/100)
	u["liquidity"] = units{long: penalty, short: penalty}

	switch f.RVMomentumRegime {
	case analysis.MacroElevated:
		u["rv_momo"] = units{long: 1}
	case analysis.MacroSubdued:
		u["rv_momo"] = units{short: 1}
	default:
		u["rv_momo"] = units{}
	}

	if f.PinRisk {
		u["pin"] = units{long: -1, short: 1}
	} else {
		u["pin"] = units{}
	}

	switch f.VexRegime {
	case analysis.MacroElevated:
		u["vex"] = units{long: 1}
	case analysis.MacroSubdued:
		u["vex"] = units{short: 1}
	default:
		u["vex"] = units{}
	}

	if f.VannaElevated {
		u["vanna"] = units{long: -1}
	} else {
		u["vanna"] = units{}
	}

	switch f.VovRegime {
	case analysis.MacroElevated:
		u["vov"] = units{long: 1}
	case analysis.MacroSubdued:
		u["vov"] = units{short: 1}
	default:
		u["vov"] = units{}
	}

	switch f.VIXTermRegime {
	case analysis.MacroElevated:
		u["vix_term"] = units{long: 1}
	case analysis.MacroSubdued:
		u["vix_term"] = units{short: 1}
	default:
		u["vix_term"] = units{}
	}

	return u
}
