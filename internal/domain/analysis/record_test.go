package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voledge/pkg/errors"
)

func TestCheckWriteRequiresEarlierStages(t *testing.T) {
	rec := &Record{Symbol: "SPY", Date: "2026-08-21"}

	// A fresh record only admits the first stage.
	assert.NoError(t, rec.CheckWrite(StageFeatures))
	for _, s := range Stages[1:] {
		err := rec.CheckWrite(s)
		require.Error(t, err, "stage %s", s)
		assert.True(t, errors.Is(err, errors.ErrStageOrder))
	}
}

func TestCheckWriteNoGap(t *testing.T) {
	rec := &Record{Symbol: "SPY", Date: "2026-08-21"}
	now := time.Now()

	rec.SetStage(StageFeatures, FeatureSet{}, now)
	rec.SetStage(StageScores, ScoreSet{}, now)

	assert.NoError(t, rec.CheckWrite(StageDecision))

	err := rec.CheckWrite(StageStrategy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStageOrder))
}

func TestCheckWriteRewriteAllowed(t *testing.T) {
	rec := fullRecord(t)

	// Update mode rewrites the first three stages of a complete record.
	assert.NoError(t, rec.CheckWrite(StageFeatures))
	assert.NoError(t, rec.CheckWrite(StageScores))
	assert.NoError(t, rec.CheckWrite(StageDecision))
}

func TestCheckWriteUnknownStage(t *testing.T) {
	rec := &Record{}
	err := rec.CheckWrite(Stage("bogus"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownStage))
}

func TestSetStageStampsTimestamps(t *testing.T) {
	rec := &Record{}
	now := time.Date(2026, 8, 21, 15, 0, 0, 0, time.UTC)

	rec.SetStage(StageFeatures, FeatureSet{}, now)

	require.NotNil(t, rec.Features)
	assert.Equal(t, now, rec.Features.ComputedAt)
	assert.Equal(t, now, rec.UpdatedAt)
}

func TestLastStage(t *testing.T) {
	rec := &Record{}
	assert.Equal(t, Stage(""), rec.LastStage())

	now := time.Now()
	rec.SetStage(StageFeatures, FeatureSet{}, now)
	rec.SetStage(StageScores, ScoreSet{}, now)
	assert.Equal(t, StageScores, rec.LastStage())

	// A populated later slot behind a gap does not count.
	rec.Edge = &EdgeEstimate{}
	assert.Equal(t, StageScores, rec.LastStage())
}

func TestStageIndexOrder(t *testing.T) {
	for i, s := range Stages {
		assert.Equal(t, i, s.Index())
		assert.True(t, s.Valid())
	}
	assert.Equal(t, -1, Stage("nope").Index())
}

func fullRecord(t *testing.T) *Record {
	t.Helper()
	rec := &Record{Symbol: "SPY", Date: "2026-08-21"}
	now := time.Now()

	payloads := map[Stage]interface{}{
		StageFeatures: FeatureSet{},
		StageScores:   ScoreSet{},
		StageDecision: Decision{},
		StageStrategy: PlanSet{},
		StageStrikes:  StrikeSet{},
		StageEdge:     EdgeEstimate{},
	}
	for _, s := range Stages {
		require.NoError(t, rec.CheckWrite(s))
		rec.SetStage(s, payloads[s], now)
	}
	return rec
}
