package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func params() market.Summary {
	return market.Summary{Spot: 500, IVAtm: 0.25, HV20: 0.2}
}

func TestInitCreatesRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Init(ctx, "spy", "2026-08-21", params())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "spy", rec.Symbol)
	assert.Equal(t, 500.0, rec.MarketParams.Spot)

	// The document lands at <base>/<SYMBOL>/<date>/<SYMBOL>_<date>.json.
	path := filepath.Join(store.baseDir, "SPY", "2026-08-21", "SPY_2026-08-21.json")
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestInitIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Init(ctx, "SPY", "2026-08-21", params())
	require.NoError(t, err)

	again, err := store.Init(ctx, "SPY", "2026-08-21", market.Summary{Spot: 999})
	require.NoError(t, err)

	// The existing record is returned untouched.
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 500.0, again.MarketParams.Spot)
}

func TestLoadNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "SPY", "2026-08-21")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestWriteStageSequence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Init(ctx, "SPY", "2026-08-21", params())
	require.NoError(t, err)

	payloads := map[analysis.Stage]interface{}{
		analysis.StageFeatures: analysis.FeatureSet{VRPPct: 17.2, VRPValid: true},
		analysis.StageScores:   analysis.ScoreSet{LongVolScore: 1.2},
		analysis.StageDecision: analysis.Decision{Direction: analysis.DirectionLongVol},
		analysis.StageStrategy: analysis.PlanSet{},
		analysis.StageStrikes:  analysis.StrikeSet{},
		analysis.StageEdge:     analysis.EdgeEstimate{WinRate: 0.6},
	}

	for _, s := range analysis.Stages {
		rec, err := store.WriteStage(ctx, "SPY", "2026-08-21", s, payloads[s])
		require.NoError(t, err, "stage %s", s)
		assert.Equal(t, s, rec.LastStage())
		assert.False(t, rec.UpdatedAt.IsZero())
	}

	rec, err := store.Load(ctx, "SPY", "2026-08-21")
	require.NoError(t, err)
	assert.InDelta(t, 17.2, rec.Features.VRPPct, 1e-9)
	assert.Equal(t, 0.6, rec.Edge.WinRate)
}

func TestWriteStageRejectsGap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Init(ctx, "SPY", "2026-08-21", params())
	require.NoError(t, err)

	_, err = store.WriteStage(ctx, "SPY", "2026-08-21", analysis.StageScores, analysis.ScoreSet{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStageOrder))

	// The record is unchanged on a refused write.
	rec, err := store.Load(ctx, "SPY", "2026-08-21")
	require.NoError(t, err)
	assert.Nil(t, rec.Scores)
}

func TestWriteStageUninitializedRecord(t *testing.T) {
	store := newTestStore(t)

	_, err := store.WriteStage(context.Background(), "SPY", "2026-08-21", analysis.StageFeatures, analysis.FeatureSet{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUpdateModeRewritesEarlyStages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Init(ctx, "SPY", "2026-08-21", params())
	require.NoError(t, err)

	for _, s := range analysis.Stages {
		_, err := store.WriteStage(ctx, "SPY", "2026-08-21", s, payloadFor(s))
		require.NoError(t, err)
	}

	// Rewrite the decision on the complete record; downstream stays put.
	rec, err := store.WriteStage(ctx, "SPY", "2026-08-21", analysis.StageDecision,
		analysis.Decision{Direction: analysis.DirectionShortVol})
	require.NoError(t, err)

	assert.Equal(t, analysis.DirectionShortVol, rec.Decision.Direction)
	assert.NotNil(t, rec.Strategy)
	assert.NotNil(t, rec.Edge)
	assert.True(t, rec.Decision.ComputedAt.After(rec.Edge.ComputedAt))
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, date := range []string{"2026-08-19", "2026-08-21", "2026-08-20"} {
		_, err := store.Init(ctx, "SPY", date, params())
		require.NoError(t, err)
	}

	dates, err := store.List(ctx, "spy")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-21", "2026-08-20", "2026-08-19"}, dates)
}

func TestListUnknownSymbolEmpty(t *testing.T) {
	store := newTestStore(t)

	dates, err := store.List(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestConcurrentWritersDifferentKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	symbols := []string{"SPY", "QQQ", "IWM", "TLT"}
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			_, err := store.Init(ctx, sym, "2026-08-21", params())
			assert.NoError(t, err)
			_, err = store.WriteStage(ctx, sym, "2026-08-21", analysis.StageFeatures, analysis.FeatureSet{})
			assert.NoError(t, err)
		}(sym)
	}
	wg.Wait()

	for _, sym := range symbols {
		rec, err := store.Load(ctx, sym, "2026-08-21")
		require.NoError(t, err)
		assert.Equal(t, analysis.StageFeatures, rec.LastStage())
	}
}

func payloadFor(s analysis.Stage) interface{} {
	switch s {
	case analysis.StageFeatures:
		return analysis.FeatureSet{}
	case analysis.StageScores:
		return analysis.ScoreSet{}
	case analysis.StageDecision:
		return analysis.Decision{Direction: analysis.DirectionLongVol}
	case analysis.StageStrategy:
		return analysis.PlanSet{}
	case analysis.StageStrikes:
		return analysis.StrikeSet{}
	default:
		return analysis.EdgeEstimate{}
	}
}
