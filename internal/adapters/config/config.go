package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"voledge/pkg/errors"
)

type Config struct {
	App           AppConfig
	Features      FeatureConfig
	Weights       WeightsConfig
	Decision      DecisionConfig
	Strikes       StrikeConfig
	MonteCarlo    MonteCarloConfig
	Store         StoreConfig
	Redis         RedisConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	AI            AIConfig
	ErrorTracking ErrorTrackingConfig
	Pipeline      PipelineConfig

	// Annualized risk-free rate shared by the strike solver and the
	// Monte Carlo drift term.
	RiskFreeRate float64 `envconfig:"RISK_FREE_RATE" default:"0.05"`
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"voledge"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`

	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

// FeatureConfig holds the regime bucketing thresholds for the feature
// calculator. VRP thresholds are percentage points of (IV-HV)/HV.
type FeatureConfig struct {
	VRPLongBiasPct    float64 `envconfig:"VRP_LONG_BIAS_PCT" default:"-3.0"`
	VRPShortBiasPct   float64 `envconfig:"VRP_SHORT_BIAS_PCT" default:"3.0"`
	EventIVBlend      float64 `envconfig:"EVENT_IV_BLEND" default:"0.5"`
	GEXNeutralBand    float64 `envconfig:"GEX_NEUTRAL_BAND" default:"0.05"`
	TermSlopeBandPct  float64 `envconfig:"TERM_SLOPE_BAND_PCT" default:"2.0"`
	SkewBalancedBand  float64 `envconfig:"SKEW_BALANCED_BAND" default:"0.02"`
	RVMomentumBand    float64 `envconfig:"RV_MOMENTUM_BAND" default:"0.2"`
	GammaWallProxPct  float64 `envconfig:"GAMMA_WALL_PROX_THRESHOLD" default:"0.005"`
	SpreadFullPenalty float64 `envconfig:"SPREAD_FULL_PENALTY" default:"0.05"`
}

// WeightsConfig carries the open per-signal weight table. Keys are
// "<signal>_<side>", e.g. "vrp_long", "gex_short". New signals need only a
// new key, no code change on this side.
type WeightsConfig struct {
	Table map[string]float64 `envconfig:"SIGNAL_WEIGHTS" default:"vrp_long:0.25,gex_long:0.18,vex_long:0.18,carry_long:0.08,skew_long:0.08,vanna_long:0.05,rv_momo_long:0.06,liquidity_long:0.10,vov_long:0.07,vix_term_long:0.05,pin_long:0.06,vrp_short:0.30,gex_short:0.12,vex_short:0.12,carry_short:0.18,skew_short:0.08,rv_momo_short:0.05,liquidity_short:0.10,vov_short:0.07,vix_term_short:0.05,pin_short:0.09"`
}

type DecisionConfig struct {
	ThresholdLong  float64 `envconfig:"DECISION_THRESHOLD_LONG" default:"1.0"`
	ThresholdShort float64 `envconfig:"DECISION_THRESHOLD_SHORT" default:"1.0"`
	ProbThreshold  float64 `envconfig:"PROB_THRESHOLD" default:"0.55"`

	// Score level to minimum probability floor. Mirrors the cold-start
	// priors: a score at 1.5 implies at least 0.60, at 2.0 at least 0.65.
	ProbFloors map[string]float64 `envconfig:"PROB_FLOORS" default:"1.0:0.55,1.5:0.60,2.0:0.65"`

	// Logistic squash steepness. p(threshold) is pinned to ProbThreshold
	// regardless of this value; Slope controls how fast p grows past it.
	Slope float64 `envconfig:"PROB_SLOPE" default:"1.2"`

	BucketMedium   float64 `envconfig:"CONFIDENCE_BUCKET_MEDIUM" default:"0.55"`
	BucketHigh     float64 `envconfig:"CONFIDENCE_BUCKET_HIGH" default:"0.70"`
	NeutralEpsilon float64 `envconfig:"SCORE_NEUTRAL_EPSILON" default:"0.05"`
}

type StrikeConfig struct {
	Method           string  `envconfig:"STRIKE_METHOD" default:"delta"`
	WingDelta        float64 `envconfig:"STRIKE_WING_DELTA" default:"0.30"`
	SolverMaxIter    int     `envconfig:"STRIKE_SOLVER_MAX_ITER" default:"100"`
	SolverTolerance  float64 `envconfig:"STRIKE_SOLVER_TOLERANCE" default:"0.0001"`
	BarrierBufferPct float64 `envconfig:"STRIKE_BARRIER_BUFFER_PCT" default:"0.005"`
	ATRMultiplier    float64 `envconfig:"STRIKE_ATR_MULTIPLIER" default:"1.0"`
	Increment        float64 `envconfig:"STRIKE_INCREMENT" default:"1.0"`
}

type MonteCarloConfig struct {
	Simulations int   `envconfig:"MONTE_CARLO_SIMULATIONS" default:"10000"`
	Workers     int   `envconfig:"MONTE_CARLO_WORKERS" default:"4"`
	Seed        int64 `envconfig:"MONTE_CARLO_SEED" default:"0"` // 0 = time-based

	EVThreshold float64 `envconfig:"EDGE_EV_THRESHOLD" default:"0"`
	RRThreshold float64 `envconfig:"EDGE_RR_THRESHOLD" default:"1.5"`
}

type StoreConfig struct {
	// Backend selects the stage store implementation: file|postgres
	Backend string `envconfig:"STORE_BACKEND" default:"file"`
	BaseDir string `envconfig:"STORE_BASE_DIR" default:"data/analysis"`

	// CacheEnabled puts the redis read-through cache in front of the store
	CacheEnabled bool `envconfig:"STORE_CACHE_ENABLED" default:"false"`
	CacheTTL     int  `envconfig:"STORE_CACHE_TTL_SECONDS" default:"3600"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"voledge"`
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
}

type TelegramConfig struct {
	Enabled  bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

type AIConfig struct {
	Enabled   bool    `envconfig:"AI_NARRATION_ENABLED" default:"false"`
	APIKey    string  `envconfig:"OPENAI_API_KEY"`
	Model     string  `envconfig:"AI_NARRATION_MODEL" default:"gpt-4o-mini"`
	RateLimit float64 `envconfig:"AI_RATE_LIMIT_PER_SEC" default:"0.5"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// PipelineConfig bounds the per-symbol fan-out. Stages for a single
// (symbol, date) always run sequentially.
type PipelineConfig struct {
	MaxConcurrency int `envconfig:"PIPELINE_MAX_CONCURRENCY" default:"5"`
}

// Load reads configuration from environment variables.
// It first tries to load .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
