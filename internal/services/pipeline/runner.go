package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/internal/metrics"
	"voledge/internal/services/decision"
	"voledge/internal/services/edge"
	"voledge/internal/services/features"
	"voledge/internal/services/signals"
	"voledge/internal/services/strategy"
	"voledge/internal/services/strikes"
	"voledge/pkg/errors"
	"voledge/pkg/logger"
)

// Publisher emits decision lifecycle events to the event stream.
type Publisher interface {
	PublishDecision(ctx context.Context, rec *analysis.Record) error
	PublishUpdate(ctx context.Context, rec *analysis.Record) error
}

// Notifier delivers a completed decision to a human channel.
type Notifier interface {
	NotifyDecision(ctx context.Context, rec *analysis.Record, narrative string) error
}

// Narrator turns a completed record into a short prose summary.
type Narrator interface {
	Narrate(ctx context.Context, rec *analysis.Record) (string, error)
}

// Config holds runner-level settings
type Config struct {
	MaxConcurrency int
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{MaxConcurrency: 5}
}

// Deps wires the runner's stage services and optional side channels.
// Publisher, Notifier and Narrator may be nil; side effects are best-effort
// and never fail a run.
type Deps struct {
	Store    analysis.StageStore
	Features *features.Calculator
	Scorer   *signals.Scorer
	Engine   *decision.Engine
	Mapper   *strategy.Mapper
	Strikes  *strikes.Calculator
	Edge     *edge.Simulator

	Publisher Publisher
	Notifier  Notifier
	Narrator  Narrator
}

// Runner executes the analysis pipeline against the stage store. Each stage
// is persisted as soon as it completes, so an interrupted run leaves a
// resumable prefix behind.
type Runner struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
}

// NewRunner creates a pipeline runner
func NewRunner(cfg Config, deps Deps) *Runner {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Runner{
		cfg:  cfg,
		deps: deps,
		log:  logger.Get().With("component", "pipeline"),
	}
}

// Run executes all six stages for a snapshot. A context cancellation between
// stages returns the record as persisted so far together with the context
// error; everything already written stays written.
func (r *Runner) Run(ctx context.Context, snap *market.Snapshot) (*analysis.Record, error) {
	if missing := snap.Validate(); len(missing) > 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"snapshot for %s/%s missing: %s", snap.Symbol, snap.Date, strings.Join(missing, ", "))
	}

	log := r.log.With("symbol", snap.Symbol, "date", snap.Date)
	log.Info("starting analysis run")

	rec, err := r.deps.Store.Init(ctx, snap.Symbol, snap.Date, snap.Summarize())
	if err != nil {
		return nil, errors.Wrap(err, "init record")
	}

	fs := r.deps.Features.Compute(snap)
	if rec, err = r.write(ctx, rec, analysis.StageFeatures, fs); err != nil {
		return rec, err
	}

	scores := r.deps.Scorer.Score(fs)
	if rec, err = r.write(ctx, rec, analysis.StageScores, scores); err != nil {
		return rec, err
	}

	dec := r.deps.Engine.Decide(scores)
	if rec, err = r.write(ctx, rec, analysis.StageDecision, dec); err != nil {
		return rec, err
	}

	plans := r.deps.Mapper.Map(dec, fs)
	if rec, err = r.write(ctx, rec, analysis.StageStrategy, plans); err != nil {
		return rec, err
	}

	plan := plans.ForTier(tierForBucket(dec.Bucket))
	strikeSet := r.deps.Strikes.Resolve(plan, snap)
	if rec, err = r.write(ctx, rec, analysis.StageStrikes, strikeSet); err != nil {
		return rec, err
	}

	est := r.deps.Edge.Estimate(ctx, strikeSet, snap, r.deps.Features.SelectedIV(snap))
	if rec, err = r.write(ctx, rec, analysis.StageEdge, est); err != nil {
		return rec, err
	}

	metrics.IncRunCompleted(dec.Direction.String())
	log.Infow("analysis run complete",
		"direction", dec.Direction, "bucket", dec.Bucket,
		"tier", plan.Tier, "win_rate", est.WinRate, "ev", est.ExpectedValue)

	r.sideEffects(ctx, rec)

	return rec, nil
}

// Update re-scores an existing record from a fresh snapshot: features,
// scores and decision are recomputed and rewritten, downstream stages are
// left untouched. Their ComputedAt timestamps now trail the decision's,
// which is how consumers detect staleness.
func (r *Runner) Update(ctx context.Context, snap *market.Snapshot) (*analysis.Record, error) {
	if missing := snap.Validate(); len(missing) > 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"snapshot for %s/%s missing: %s", snap.Symbol, snap.Date, strings.Join(missing, ", "))
	}

	rec, err := r.deps.Store.Load(ctx, snap.Symbol, snap.Date)
	if err != nil {
		return nil, errors.Wrap(err, "load record for update")
	}

	fs := r.deps.Features.Compute(snap)
	if rec, err = r.write(ctx, rec, analysis.StageFeatures, fs); err != nil {
		return rec, err
	}

	scores := r.deps.Scorer.Score(fs)
	if rec, err = r.write(ctx, rec, analysis.StageScores, scores); err != nil {
		return rec, err
	}

	dec := r.deps.Engine.Decide(scores)
	if rec, err = r.write(ctx, rec, analysis.StageDecision, dec); err != nil {
		return rec, err
	}

	metrics.IncUpdateCompleted()
	r.log.Infow("re-score complete",
		"symbol", snap.Symbol, "date", snap.Date, "direction", dec.Direction)

	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.PublishUpdate(ctx, rec); err != nil {
			r.log.Warnw("update publish failed", "symbol", rec.Symbol, "error", err)
		}
	}

	return rec, nil
}

// Result is one symbol's outcome within a batch.
type Result struct {
	Symbol string
	Date   string
	Record *analysis.Record
	Err    error
}

// RunBatch runs the full pipeline for each snapshot with bounded
// concurrency. One symbol's failure never stops the others; results come
// back in input order.
func (r *Runner) RunBatch(ctx context.Context, snaps []*market.Snapshot) []Result {
	results := make([]Result, len(snaps))
	sem := make(chan struct{}, r.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i, snap := range snaps {
		wg.Add(1)
		go func(i int, snap *market.Snapshot) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.BatchStarted()
			defer metrics.BatchDone()

			rec, err := r.Run(ctx, snap)
			results[i] = Result{Symbol: snap.Symbol, Date: snap.Date, Record: rec, Err: err}
		}(i, snap)
	}

	wg.Wait()
	return results
}

func (r *Runner) write(ctx context.Context, rec *analysis.Record, stage analysis.Stage, payload interface{}) (*analysis.Record, error) {
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	start := time.Now()
	out, err := r.deps.Store.WriteStage(ctx, rec.Symbol, rec.Date, stage, payload)
	if err != nil {
		metrics.IncStageError(stage.String())
		return rec, errors.Wrapf(errors.Join(errors.ErrStageFailed, err), "stage %s", stage)
	}
	metrics.ObserveStage(stage.String(), time.Since(start))
	return out, nil
}

// sideEffects fans a completed record out to the optional channels. Failures
// are logged and swallowed: the record is already durable.
func (r *Runner) sideEffects(ctx context.Context, rec *analysis.Record) {
	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.PublishDecision(ctx, rec); err != nil {
			r.log.Warnw("decision publish failed", "symbol", rec.Symbol, "error", err)
		}
	}

	// Alerts are reserved for actionable outcomes: a directional decision
	// whose simulated edge cleared the profitability gates.
	if r.deps.Notifier != nil && actionable(rec) {
		narrative := ""
		if r.deps.Narrator != nil {
			text, err := r.deps.Narrator.Narrate(ctx, rec)
			if err != nil {
				r.log.Warnw("narration failed", "symbol", rec.Symbol, "error", err)
			} else {
				narrative = text
			}
		}
		if err := r.deps.Notifier.NotifyDecision(ctx, rec, narrative); err != nil {
			r.log.Warnw("notification failed", "symbol", rec.Symbol, "error", err)
		}
	}
}

func actionable(rec *analysis.Record) bool {
	return rec.Decision != nil && rec.Decision.Direction != analysis.DirectionHold &&
		rec.Edge != nil && rec.Edge.IsProfitable
}

// tierForBucket maps decision confidence to the executed risk tier: the
// higher the confidence the more conservative the sizing, matching the
// house preference for defined risk when conviction is already priced in.
func tierForBucket(b analysis.ConfidenceBucket) analysis.Tier {
	switch b {
	case analysis.BucketHigh:
		return analysis.TierConservative
	case analysis.BucketMedium:
		return analysis.TierBalanced
	default:
		return analysis.TierAggressive
	}
}
