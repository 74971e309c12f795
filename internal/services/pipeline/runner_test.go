package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/internal/repository/filestore"
	"voledge/internal/services/decision"
	"voledge/internal/services/edge"
	"voledge/internal/services/features"
	"voledge/internal/services/signals"
	"voledge/internal/services/strategy"
	"voledge/internal/services/strikes"
	"voledge/pkg/errors"
)

func f(v float64) *float64 { return &v }

func newTestRunner(t *testing.T) (*Runner, analysis.StageStore) {
	return newTestRunnerWith(t, nil)
}

func newTestRunnerWith(t *testing.T, wire func(*Deps)) (*Runner, analysis.StageStore) {
	t.Helper()

	store := filestore.NewStore(t.TempDir())

	edgeCfg := edge.DefaultConfig()
	edgeCfg.Simulations = 500
	edgeCfg.Seed = 7

	deps := Deps{
		Store:    store,
		Features: features.NewCalculator(features.DefaultConfig()),
		Scorer:   signals.NewScorer(signals.DefaultConfig()),
		Engine:   decision.NewEngine(decision.DefaultConfig()),
		Mapper:   strategy.NewMapper(),
		Strikes:  strikes.NewCalculator(strikes.DefaultConfig()),
		Edge:     edge.NewSimulator(edgeCfg),
	}
	if wire != nil {
		wire(&deps)
	}
	return NewRunner(DefaultConfig(), deps), store
}

// permissiveEdge lets any directional decision through the profitability
// gates so side-channel tests do not depend on simulation statistics.
func permissiveEdge() *edge.Simulator {
	cfg := edge.DefaultConfig()
	cfg.Simulations = 500
	cfg.Seed = 7
	cfg.EVThreshold = -1e9
	cfg.RRThreshold = 0
	return edge.NewSimulator(cfg)
}

type stubPublisher struct {
	completed int
	updated   int
}

func (s *stubPublisher) PublishDecision(ctx context.Context, rec *analysis.Record) error {
	s.completed++
	return nil
}

func (s *stubPublisher) PublishUpdate(ctx context.Context, rec *analysis.Record) error {
	s.updated++
	return nil
}

type stubNotifier struct {
	calls int
}

func (s *stubNotifier) NotifyDecision(ctx context.Context, rec *analysis.Record, narrative string) error {
	s.calls++
	return nil
}

// richSnapshot aligns every signal on the premium-harvest side so the short
// score clears the decision threshold.
func richSnapshot() *market.Snapshot {
	return &market.Snapshot{
		Symbol:     "SPY",
		Date:       "2026-08-21",
		Timestamp:  time.Now(),
		Spot:       500,
		IVAtm:      0.361,
		HV10:       0.20,
		HV20:       0.308,
		HV60:       0.30,
		NetGEX:     f(1.5),
		GammaWall:  f(500.5),
		IVFront:    f(0.30),
		IVBack:     f(0.34),
		PutSkew25:  f(0.01),
		CallSkew25: f(0.05),
		SpreadAtm:  f(0.0),
		VexNet:     f(80.0),
		VVIX:       f(80.0),
		VIX:        f(20.0),
		VIX9D:      f(19.0),
	}
}

func TestRunCompletesAllStages(t *testing.T) {
	runner, store := newTestRunner(t)
	ctx := context.Background()

	rec, err := runner.Run(ctx, richSnapshot())
	require.NoError(t, err)

	assert.Equal(t, analysis.StageEdge, rec.LastStage())
	for _, s := range analysis.Stages {
		assert.True(t, rec.HasStage(s), "stage %s missing", s)
	}

	// The persisted copy matches what the runner returned.
	persisted, err := store.Load(ctx, "SPY", "2026-08-21")
	require.NoError(t, err)
	assert.Equal(t, rec.Decision.Direction, persisted.Decision.Direction)
}

func TestRunStrikeTierFollowsBucket(t *testing.T) {
	runner, _ := newTestRunner(t)

	rec, err := runner.Run(context.Background(), richSnapshot())
	require.NoError(t, err)

	want := tierForBucket(rec.Decision.Bucket)
	assert.Equal(t, want, rec.Strikes.Tier)
}

func TestRunRefusesInvalidSnapshot(t *testing.T) {
	runner, store := newTestRunner(t)
	ctx := context.Background()

	snap := richSnapshot()
	snap.IVAtm = 0

	_, err := runner.Run(ctx, snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	// Nothing was initialized for the refused input.
	_, err = store.Load(ctx, "SPY", "2026-08-21")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRunCanceledContextKeepsPrefix(t *testing.T) {
	runner, store := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, richSnapshot())
	require.Error(t, err)

	// Init went through; no stage was written after cancellation.
	rec, loadErr := store.Load(context.Background(), "SPY", "2026-08-21")
	require.NoError(t, loadErr)
	assert.Equal(t, analysis.Stage(""), rec.LastStage())
}

func TestUpdateRewritesScoringStagesOnly(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx := context.Background()

	first, err := runner.Run(ctx, richSnapshot())
	require.NoError(t, err)

	// Second read flips the VRP view hard enough to change the decision.
	snap := richSnapshot()
	snap.IVAtm = 0.20
	snap.HV20 = 0.35

	updated, err := runner.Update(ctx, snap)
	require.NoError(t, err)

	assert.NotEqual(t, first.Decision.Direction, updated.Decision.Direction)

	// Downstream payloads survive with their original timestamps.
	require.NotNil(t, updated.Strategy)
	require.NotNil(t, updated.Edge)
	assert.Equal(t, first.Edge.ComputedAt, updated.Edge.ComputedAt)
	assert.True(t, updated.Decision.ComputedAt.After(updated.Strategy.ComputedAt))
}

func TestUpdateUnknownRecord(t *testing.T) {
	runner, _ := newTestRunner(t)

	_, err := runner.Update(context.Background(), richSnapshot())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUpdatePublishesEvent(t *testing.T) {
	pub := &stubPublisher{}
	runner, _ := newTestRunnerWith(t, func(d *Deps) { d.Publisher = pub })
	ctx := context.Background()

	_, err := runner.Run(ctx, richSnapshot())
	require.NoError(t, err)
	require.Equal(t, 1, pub.completed)

	snap := richSnapshot()
	snap.IVAtm = 0.20
	snap.HV20 = 0.35

	_, err = runner.Update(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, pub.updated)
}

func TestNotifyOnlyActionableOutcomes(t *testing.T) {
	// A directional decision with a passing edge is the only alert trigger.
	notifier := &stubNotifier{}
	runner, _ := newTestRunnerWith(t, func(d *Deps) {
		d.Notifier = notifier
		d.Edge = permissiveEdge()
	})

	_, err := runner.Run(context.Background(), richSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
}

func TestNotifySkipsHoldDecision(t *testing.T) {
	notifier := &stubNotifier{}
	pub := &stubPublisher{}
	runner, _ := newTestRunnerWith(t, func(d *Deps) {
		d.Notifier = notifier
		d.Publisher = pub
		d.Edge = permissiveEdge()
	})

	snap := richSnapshot()
	snap.IVAtm = 0.20
	snap.HV20 = 0.35

	rec, err := runner.Run(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, analysis.DirectionHold, rec.Decision.Direction)

	// HOLD still reaches the event stream, just not the chat channel.
	assert.Equal(t, 0, notifier.calls)
	assert.Equal(t, 1, pub.completed)
}

func TestNotifySkipsFailedEdgeGates(t *testing.T) {
	notifier := &stubNotifier{}
	runner, _ := newTestRunnerWith(t, func(d *Deps) {
		d.Notifier = notifier
		cfg := edge.DefaultConfig()
		cfg.Simulations = 500
		cfg.Seed = 7
		cfg.EVThreshold = 1e9 // unreachable
		d.Edge = edge.NewSimulator(cfg)
	})

	rec, err := runner.Run(context.Background(), richSnapshot())
	require.NoError(t, err)
	require.NotEqual(t, analysis.DirectionHold, rec.Decision.Direction)

	assert.Equal(t, 0, notifier.calls)
}

// orderFailStore refuses every stage write with the stage-order sentinel.
type orderFailStore struct{}

func (orderFailStore) Init(ctx context.Context, symbol, date string, params market.Summary) (*analysis.Record, error) {
	return &analysis.Record{Symbol: symbol, Date: date}, nil
}

func (orderFailStore) Load(ctx context.Context, symbol, date string) (*analysis.Record, error) {
	return nil, errors.ErrNotFound
}

func (orderFailStore) WriteStage(ctx context.Context, symbol, date string, stage analysis.Stage, payload interface{}) (*analysis.Record, error) {
	return nil, errors.ErrStageOrder
}

func (orderFailStore) List(ctx context.Context, symbol string) ([]string, error) {
	return nil, nil
}

func TestStageFailureKeepsCauseChain(t *testing.T) {
	runner, _ := newTestRunnerWith(t, func(d *Deps) { d.Store = orderFailStore{} })

	_, err := runner.Run(context.Background(), richSnapshot())
	require.Error(t, err)

	// Both the stage-failed wrapper and the store's own sentinel survive.
	assert.True(t, errors.Is(err, errors.ErrStageFailed))
	assert.True(t, errors.Is(err, errors.ErrStageOrder))
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	runner, _ := newTestRunner(t)

	bad := richSnapshot()
	bad.Symbol = "QQQ"
	bad.Spot = 0

	good2 := richSnapshot()
	good2.Symbol = "IWM"

	results := runner.RunBatch(context.Background(), []*market.Snapshot{
		richSnapshot(), bad, good2,
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "QQQ", results[1].Symbol)
	assert.Equal(t, analysis.StageEdge, results[2].Record.LastStage())
}
