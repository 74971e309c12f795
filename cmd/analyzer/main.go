package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"voledge/internal/adapters/ai"
	"voledge/internal/adapters/clickhouse"
	"voledge/internal/adapters/config"
	"voledge/internal/adapters/errors/noop"
	"voledge/internal/adapters/errors/sentry"
	"voledge/internal/adapters/kafka"
	"voledge/internal/adapters/postgres"
	"voledge/internal/adapters/redis"
	"voledge/internal/adapters/telegram"
	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/internal/metrics"
	chrepo "voledge/internal/repository/clickhouse"
	"voledge/internal/repository/filestore"
	pgrepo "voledge/internal/repository/postgres"
	redisrepo "voledge/internal/repository/redis"
	"voledge/internal/services/decision"
	"voledge/internal/services/edge"
	"voledge/internal/services/features"
	"voledge/internal/services/pipeline"
	"voledge/internal/services/signals"
	"voledge/internal/services/strategy"
	"voledge/internal/services/strikes"
	"voledge/pkg/errors"
	"voledge/pkg/logger"
)

func main() {
	command := flag.String("cmd", "analyze", "Command: analyze|update|batch|list|show")
	input := flag.String("input", "", "Snapshot JSON file (analyze/update), or array of snapshots (batch)")
	symbol := flag.String("symbol", "", "Symbol (list/show)")
	date := flag.String("date", "", "Date YYYY-MM-DD (show)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Run deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	if cfg.App.MetricsEnabled {
		go metrics.Serve(cfg.App.MetricsAddr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app, err := buildApp(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer app.close()

	if err := app.dispatch(ctx, *command, *input, *symbol, *date); err != nil {
		log.ErrorWithContext(ctx, err, map[string]string{"command": *command})
		errorTracker.Flush(ctx)
		os.Exit(1)
	}
	errorTracker.Flush(ctx)
}

// app holds the wired pipeline and its side channels
type app struct {
	cfg     *config.Config
	runner  *pipeline.Runner
	store   analysis.StageStore
	archive *chrepo.HistoryRepository
	closers []func() error
	log     *logger.Logger
}

func buildApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: logger.Get()}

	store, err := a.buildStore()
	if err != nil {
		return nil, err
	}
	a.store = store

	deps := pipeline.Deps{
		Store:    store,
		Features: features.NewCalculator(featureConfig(cfg)),
		Scorer:   signals.NewScorer(scorerConfig(cfg)),
		Engine:   decision.NewEngine(decisionConfig(cfg)),
		Mapper:   strategy.NewMapper(),
		Strikes:  strikes.NewCalculator(strikeConfig(cfg)),
		Edge:     edge.NewSimulator(edgeConfig(cfg)),
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		a.closers = append(a.closers, producer.Close)
		deps.Publisher = kafka.NewDecisionPublisher(producer)
	}

	if cfg.Telegram.Enabled {
		notifier, err := telegram.NewNotifier(telegram.Config{
			Token:  cfg.Telegram.BotToken,
			ChatID: cfg.Telegram.ChatID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "init telegram")
		}
		deps.Notifier = notifier
	}

	if cfg.AI.Enabled {
		narrator, err := ai.NewNarrator(ai.Config{
			APIKey:    cfg.AI.APIKey,
			Model:     cfg.AI.Model,
			RateLimit: cfg.AI.RateLimit,
		})
		if err != nil {
			return nil, errors.Wrap(err, "init narrator")
		}
		deps.Narrator = narrator
	}

	if cfg.ClickHouse.Enabled {
		chClient, err := clickhouse.NewClient(cfg.ClickHouse)
		if err != nil {
			return nil, errors.Wrap(err, "init clickhouse")
		}
		a.closers = append(a.closers, chClient.Close)
		a.archive = chrepo.NewHistoryRepository(chClient.Conn())
	}

	a.runner = pipeline.NewRunner(pipeline.Config{
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
	}, deps)

	return a, nil
}

// buildStore assembles the stage store: file or Postgres, optionally behind
// the Redis read-through cache.
func (a *app) buildStore() (analysis.StageStore, error) {
	var store analysis.StageStore

	switch a.cfg.Store.Backend {
	case "postgres":
		client, err := postgres.NewClient(a.cfg.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "init postgres")
		}
		a.closers = append(a.closers, client.Close)
		store = pgrepo.NewRecordStore(client.DB())
	case "file":
		store = filestore.NewStore(a.cfg.Store.BaseDir)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown store backend %q", a.cfg.Store.Backend)
	}

	if a.cfg.Store.CacheEnabled {
		client, err := redis.NewClient(a.cfg.Redis)
		if err != nil {
			return nil, errors.Wrap(err, "init redis")
		}
		a.closers = append(a.closers, client.Close)
		ttl := time.Duration(a.cfg.Store.CacheTTL) * time.Second
		store = redisrepo.NewCachedStore(store, client.Client(), ttl)
	}

	return store, nil
}

func (a *app) dispatch(ctx context.Context, command, input, symbol, date string) error {
	switch command {
	case "analyze":
		return a.analyze(ctx, input)
	case "update":
		return a.update(ctx, input)
	case "batch":
		return a.batch(ctx, input)
	case "list":
		return a.list(ctx, symbol)
	case "show":
		return a.show(ctx, symbol, date)
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown command %q", command)
	}
}

func (a *app) analyze(ctx context.Context, input string) error {
	snap, err := readSnapshot(input)
	if err != nil {
		return err
	}

	rec, err := a.runner.Run(ctx, snap)
	if err != nil {
		return err
	}

	a.archiveRecord(ctx, rec)
	return printJSON(rec)
}

func (a *app) update(ctx context.Context, input string) error {
	snap, err := readSnapshot(input)
	if err != nil {
		return err
	}

	rec, err := a.runner.Update(ctx, snap)
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func (a *app) batch(ctx context.Context, input string) error {
	snaps, err := readSnapshots(input)
	if err != nil {
		return err
	}

	results := a.runner.RunBatch(ctx, snaps)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			a.log.Errorw("batch item failed", "symbol", res.Symbol, "date", res.Date, "error", res.Err)
			continue
		}
		a.archiveRecord(ctx, res.Record)
	}

	a.log.Infof("batch complete: %d ok, %d failed", len(results)-failed, failed)
	if failed == len(results) && failed > 0 {
		return errors.Wrap(errors.ErrStageFailed, "all batch items failed")
	}
	return nil
}

func (a *app) list(ctx context.Context, symbol string) error {
	if symbol == "" {
		return errors.Wrap(errors.ErrInvalidInput, "-symbol is required")
	}

	dates, err := a.store.List(ctx, symbol)
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Println(d)
	}
	return nil
}

func (a *app) show(ctx context.Context, symbol, date string) error {
	if symbol == "" || date == "" {
		return errors.Wrap(errors.ErrInvalidInput, "-symbol and -date are required")
	}

	rec, err := a.store.Load(ctx, symbol, date)
	if err != nil {
		return err
	}
	return printJSON(rec)
}

// archiveRecord appends a completed record to the ClickHouse history,
// best-effort.
func (a *app) archiveRecord(ctx context.Context, rec *analysis.Record) {
	if a.archive == nil || rec == nil {
		return
	}
	if err := a.archive.Archive(ctx, rec); err != nil {
		a.log.Warnw("history archive failed", "symbol", rec.Symbol, "error", err)
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warnf("close failed: %v", err)
		}
	}
}

func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}
	return tracker
}

func readSnapshot(path string) (*market.Snapshot, error) {
	if path == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "-input is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshot %s", path)
	}

	var snap market.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return &snap, nil
}

func readSnapshots(path string) ([]*market.Snapshot, error) {
	if path == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "-input is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshots %s", path)
	}

	var snaps []*market.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, errors.Wrapf(err, "decode snapshots %s", path)
	}
	return snaps, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func featureConfig(cfg *config.Config) features.Config {
	return features.Config{
		VRPLongBiasPct:    cfg.Features.VRPLongBiasPct,
		VRPShortBiasPct:   cfg.Features.VRPShortBiasPct,
		EventIVBlend:      cfg.Features.EventIVBlend,
		GEXNeutralBand:    cfg.Features.GEXNeutralBand,
		TermSlopeBandPct:  cfg.Features.TermSlopeBandPct,
		SkewBalancedBand:  cfg.Features.SkewBalancedBand,
		RVMomentumBand:    cfg.Features.RVMomentumBand,
		GammaWallProxPct:  cfg.Features.GammaWallProxPct,
		SpreadFullPenalty: cfg.Features.SpreadFullPenalty,
		VovElevated:       features.DefaultConfig().VovElevated,
		VovSubdued:        features.DefaultConfig().VovSubdued,
		VIXTermBandPct:    features.DefaultConfig().VIXTermBandPct,
		VexBand:           features.DefaultConfig().VexBand,
		VannaElevated:     features.DefaultConfig().VannaElevated,
	}
}

func scorerConfig(cfg *config.Config) signals.Config {
	sc := signals.DefaultConfig()
	if len(cfg.Weights.Table) > 0 {
		sc.Weights = signals.WeightTable(cfg.Weights.Table)
	}
	sc.NeutralEpsilon = cfg.Decision.NeutralEpsilon
	return sc
}

func decisionConfig(cfg *config.Config) decision.Config {
	dc := decision.Config{
		ThresholdLong:  cfg.Decision.ThresholdLong,
		ThresholdShort: cfg.Decision.ThresholdShort,
		ProbThreshold:  cfg.Decision.ProbThreshold,
		Slope:          cfg.Decision.Slope,
		BucketMedium:   cfg.Decision.BucketMedium,
		BucketHigh:     cfg.Decision.BucketHigh,
	}
	for score, floor := range cfg.Decision.ProbFloors {
		var s float64
		if _, err := fmt.Sscanf(score, "%f", &s); err == nil {
			dc.Floors = append(dc.Floors, decision.ProbFloor{Score: s, Floor: floor})
		}
	}
	if len(dc.Floors) == 0 {
		dc.Floors = decision.DefaultConfig().Floors
	}
	return dc
}

func strikeConfig(cfg *config.Config) strikes.Config {
	return strikes.Config{
		Method:           analysis.StrikeMethod(cfg.Strikes.Method),
		WingDelta:        cfg.Strikes.WingDelta,
		SolverMaxIter:    cfg.Strikes.SolverMaxIter,
		SolverTolerance:  cfg.Strikes.SolverTolerance,
		BarrierBufferPct: cfg.Strikes.BarrierBufferPct,
		ATRMultiplier:    cfg.Strikes.ATRMultiplier,
		Increment:        cfg.Strikes.Increment,
		RiskFreeRate:     cfg.RiskFreeRate,
	}
}

func edgeConfig(cfg *config.Config) edge.Config {
	return edge.Config{
		Simulations:  cfg.MonteCarlo.Simulations,
		Workers:      cfg.MonteCarlo.Workers,
		Seed:         cfg.MonteCarlo.Seed,
		RiskFreeRate: cfg.RiskFreeRate,
		EVThreshold:  cfg.MonteCarlo.EVThreshold,
		RRThreshold:  cfg.MonteCarlo.RRThreshold,
	}
}
