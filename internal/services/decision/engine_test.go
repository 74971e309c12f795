package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voledge/internal/domain/analysis"
)

func scores(long, short float64) analysis.ScoreSet {
	return analysis.ScoreSet{LongVolScore: long, ShortVolScore: short}
}

func TestDecideScoreExactlyAtThresholdPasses(t *testing.T) {
	// Boundaries are inclusive: score == threshold and p == ProbThreshold
	// must both gate through.
	eng := NewEngine(DefaultConfig())

	d := eng.Decide(scores(1.0, 0.0))

	assert.True(t, d.LongGate.ScoreGate)
	assert.True(t, d.LongGate.ProbGate)
	assert.True(t, d.LongGate.Passed)
	assert.Equal(t, analysis.DirectionLongVol, d.Direction)
	assert.GreaterOrEqual(t, d.PLong, 0.55)
}

func TestDecideJustBelowThresholdHolds(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	d := eng.Decide(scores(0.999, 0.0))

	assert.False(t, d.LongGate.ScoreGate)
	assert.Equal(t, analysis.DirectionHold, d.Direction)
}

func TestDecideLongPrecedenceOverShort(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	d := eng.Decide(scores(2.0, 2.0))

	require.True(t, d.LongGate.Passed)
	require.True(t, d.ShortGate.Passed)
	assert.Equal(t, analysis.DirectionLongVol, d.Direction)
}

func TestDecideShortWinsWhenLongFails(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	d := eng.Decide(scores(0.2, 1.8))

	assert.False(t, d.LongGate.Passed)
	assert.True(t, d.ShortGate.Passed)
	assert.Equal(t, analysis.DirectionShortVol, d.Direction)
}

func TestDecideBothGatesAlwaysAudited(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	d := eng.Decide(scores(2.0, 0.3))

	// The short branch is recorded even though long won first.
	assert.Equal(t, 0.3, d.ShortGate.Score)
	assert.Equal(t, 1.0, d.ShortGate.Threshold)
	assert.Greater(t, d.ShortGate.Probability, 0.0)
}

func TestProbabilityMonotonicInScore(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	prev := -1.0
	for _, s := range []float64{-2, -1, 0, 0.5, 1, 1.5, 2, 3} {
		d := eng.Decide(scores(s, -5))
		require.GreaterOrEqual(t, d.PLong, prev, "p must not decrease at score %v", s)
		prev = d.PLong
	}
}

func TestProbabilityFloors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Slope = 0.1 // flatten the squash so floors bind
	eng := NewEngine(cfg)

	d := eng.Decide(scores(2.0, -5))
	assert.GreaterOrEqual(t, d.LongGate.Probability, 0.65)

	d = eng.Decide(scores(1.5, -5))
	assert.GreaterOrEqual(t, d.LongGate.Probability, 0.60)
}

func TestProbabilitiesSumToOne(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	for _, tc := range [][2]float64{{3, 3}, {2, 1.5}, {0, 0}, {-1, 4}} {
		d := eng.Decide(scores(tc[0], tc[1]))

		sum := d.PLong + d.PShort + d.PHold
		assert.InDelta(t, 1.0, sum, 1e-9, "scores %v", tc)
		assert.GreaterOrEqual(t, d.PHold, 0.0)
	}
}

func TestDecideBuckets(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	// Deep score pushes the logistic well past the high cut.
	d := eng.Decide(scores(4.0, -5))
	assert.Equal(t, analysis.BucketHigh, d.Bucket)

	// At the calibration point the probability is exactly 0.55: medium.
	d = eng.Decide(scores(1.0, -5))
	assert.Equal(t, analysis.BucketMedium, d.Bucket)

	// Two near-threshold branches rescale away the hold residual: a
	// low-conviction HOLD.
	d = eng.Decide(scores(0.9, 0.9))
	require.Equal(t, analysis.DirectionHold, d.Direction)
	assert.Equal(t, analysis.BucketLow, d.Bucket)
}

func TestHoldBucketUsesHoldProbability(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	d := eng.Decide(scores(-3.0, -3.0))
	require.Equal(t, analysis.DirectionHold, d.Direction)
	assert.Equal(t, d.PHold, d.WinningProbability())
}
