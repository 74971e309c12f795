package decision

import (
	"math"
	"sort"

	"voledge/internal/domain/analysis"
)

// ProbFloor pins a minimum probability at and above a score level.
type ProbFloor struct {
	Score float64
	Floor float64
}

// Config holds the decision policy thresholds.
type Config struct {
	ThresholdLong  float64
	ThresholdShort float64
	ProbThreshold  float64

	// Slope is the logistic steepness. The squash is re-centered so that
	// p(threshold) equals ProbThreshold exactly regardless of Slope.
	Slope float64

	// Floors raise the squashed probability at score steps; mirrors the
	// cold-start priors (1.0 -> 0.55, 1.5 -> 0.60, 2.0 -> 0.65).
	Floors []ProbFloor

	BucketMedium float64
	BucketHigh   float64
}

// DefaultConfig returns the documented default policy
func DefaultConfig() Config {
	return Config{
		ThresholdLong:  1.0,
		ThresholdShort: 1.0,
		ProbThreshold:  0.55,
		Slope:          1.2,
		Floors: []ProbFloor{
			{Score: 1.0, Floor: 0.55},
			{Score: 1.5, Floor: 0.60},
			{Score: 2.0, Floor: 0.65},
		},
		BucketMedium: 0.55,
		BucketHigh:   0.70,
	}
}

// Engine applies the threshold and probability policy to a score set.
type Engine struct {
	cfg Config
}

// NewEngine creates a decision engine
func NewEngine(cfg Config) *Engine {
	sorted := make([]ProbFloor, len(cfg.Floors))
	copy(sorted, cfg.Floors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })
	cfg.Floors = sorted
	return &Engine{cfg: cfg}
}

// Decide classifies a score set into LONG_VOL, SHORT_VOL or HOLD.
//
// Both branch gate sets are evaluated on their own branch probability and
// recorded on the decision for audit; only the first passing branch, in
// long -> short precedence, sets the direction. Boundaries are inclusive.
// The persisted PLong/PShort/PHold form a joint distribution: rescaled when
// the branches sum past 1, with the hold residual clamped at zero.
func (e *Engine) Decide(scores analysis.ScoreSet) analysis.Decision {
	branchLong := e.probability(scores.LongVolScore, e.cfg.ThresholdLong)
	branchShort := e.probability(scores.ShortVolScore, e.cfg.ThresholdShort)

	pLong, pShort := branchLong, branchShort
	if sum := pLong + pShort; sum > 1 {
		pLong /= sum
		pShort /= sum
	}
	pHold := math.Max(0, 1-pLong-pShort)

	d := analysis.Decision{
		PLong:  pLong,
		PShort: pShort,
		PHold:  pHold,
	}

	d.LongGate = analysis.GateAudit{
		Score:       scores.LongVolScore,
		Threshold:   e.cfg.ThresholdLong,
		Probability: branchLong,
		ScoreGate:   scores.LongVolScore >= e.cfg.ThresholdLong,
		ProbGate:    branchLong >= e.cfg.ProbThreshold,
	}
	d.LongGate.Passed = d.LongGate.ScoreGate && d.LongGate.ProbGate

	d.ShortGate = analysis.GateAudit{
		Score:       scores.ShortVolScore,
		Threshold:   e.cfg.ThresholdShort,
		Probability: branchShort,
		ScoreGate:   scores.ShortVolScore >= e.cfg.ThresholdShort,
		ProbGate:    branchShort >= e.cfg.ProbThreshold,
	}
	d.ShortGate.Passed = d.ShortGate.ScoreGate && d.ShortGate.ProbGate

	switch {
	case d.LongGate.Passed:
		d.Direction = analysis.DirectionLongVol
		d.Bucket = e.bucket(branchLong)
	case d.ShortGate.Passed:
		d.Direction = analysis.DirectionShortVol
		d.Bucket = e.bucket(branchShort)
	default:
		d.Direction = analysis.DirectionHold
		d.Bucket = e.bucket(pHold)
	}

	return d
}

// probability squashes a score through a logistic centered so that
// p(threshold) = ProbThreshold, then applies the score-step floors.
// Negative scores fall below 0.5 monotonically; the result is clamped to
// (0, 1).
func (e *Engine) probability(score, threshold float64) float64 {
	// logit of the calibration point
	pt := e.cfg.ProbThreshold
	center := threshold - math.Log(pt/(1-pt))/e.cfg.Slope

	p := 1 / (1 + math.Exp(-e.cfg.Slope*(score-center)))

	for _, f := range e.cfg.Floors {
		if score >= f.Score && p < f.Floor {
			p = f.Floor
		}
	}

	return math.Min(math.Max(p, 0), 1)
}

func (e *Engine) bucket(winning float64) analysis.ConfidenceBucket {
	switch {
	case winning > e.cfg.BucketHigh:
		return analysis.BucketHigh
	case winning >= e.cfg.BucketMedium:
		return analysis.BucketMedium
	default:
		return analysis.BucketLow
	}
}
