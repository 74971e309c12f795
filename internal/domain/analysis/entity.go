package analysis

import "time"

// Direction is the ternary pipeline outcome
type Direction string

const (
	DirectionLongVol  Direction = "LONG_VOL"
	DirectionShortVol Direction = "SHORT_VOL"
	DirectionHold     Direction = "HOLD"
)

// Valid checks if direction is valid
func (d Direction) Valid() bool {
	switch d {
	case DirectionLongVol, DirectionShortVol, DirectionHold:
		return true
	}
	return false
}

// String returns string representation
func (d Direction) String() string {
	return string(d)
}

// VRPRegime buckets the volatility risk premium
type VRPRegime string

const (
	VRPLongBias  VRPRegime = "long_bias"  // IV cheap vs realized
	VRPNeutral   VRPRegime = "neutral"
	VRPShortBias VRPRegime = "short_bias" // IV rich vs realized
)

// GEXRegime buckets net dealer gamma positioning
type GEXRegime string

const (
	GEXPositive GEXRegime = "positive"
	GEXNegative GEXRegime = "negative"
	GEXNeutral  GEXRegime = "neutral"
)

// TermRegime buckets the IV term-structure slope
type TermRegime string

const (
	TermBackwardation TermRegime = "backwardation"
	TermFlat          TermRegime = "flat"
	TermContango      TermRegime = "contango"
)

// SkewRegime buckets put-vs-call wing pricing
type SkewRegime string

const (
	SkewPutHeavy  SkewRegime = "put_heavy"
	SkewBalanced  SkewRegime = "balanced"
	SkewCallHeavy SkewRegime = "call_heavy"
)

// MacroRegime is a generic tri-state for macro vol context signals
// (VVIX level, VIX9D vs VIX term)
type MacroRegime string

const (
	MacroElevated MacroRegime = "elevated"
	MacroNeutral  MacroRegime = "neutral"
	MacroSubdued  MacroRegime = "subdued"
)

// FeatureSet is the output of the feature calculation stage. Derived
// deterministically from a market snapshot; Valid flags mark features whose
// inputs were present, invalid features carry neutral regimes.
type FeatureSet struct {
	VRPPct    float64   `json:"vrp_pct"`
	VRPValid  bool      `json:"vrp_valid"`
	VRPRegime VRPRegime `json:"vrp_regime"`

	GEXRegime GEXRegime `json:"gex_regime"`

	TermSlopePct float64    `json:"term_slope_pct"`
	TermValid    bool       `json:"term_valid"`
	TermRegime   TermRegime `json:"term_regime"`

	SkewValue  float64    `json:"skew_value"`
	SkewValid  bool       `json:"skew_valid"`
	SkewRegime SkewRegime `json:"skew_regime"`

	LiquidityScore float64 `json:"liquidity_score"` // 0-100

	EventWeek bool `json:"event_week"`

	RVMomentum       float64     `json:"rv_momentum"`
	RVMomentumRegime MacroRegime `json:"rv_momentum_regime"`

	PinRisk bool `json:"pin_risk"`

	VexRegime     MacroRegime `json:"vex_regime"`   // elevated = strongly negative net VEX
	VannaElevated bool        `json:"vanna_elevated"`
	VovRegime     MacroRegime `json:"vov_regime"`
	VIXTermRegime MacroRegime `json:"vix_term_regime"`

	ComputedAt time.Time `json:"computed_at,omitempty"`
}

// Contribution is one signal's signed unit pull on each side, before and
// after weighting. Kept for audit.
type Contribution struct {
	LongUnit      float64 `json:"long_unit"`
	ShortUnit     float64 `json:"short_unit"`
	LongWeighted  float64 `json:"long_weighted"`
	ShortWeighted float64 `json:"short_weighted"`
}

// ScoreSet is the output of the signal scoring stage
type ScoreSet struct {
	LongVolScore  float64                 `json:"long_vol_score"`
	ShortVolScore float64                 `json:"short_vol_score"`
	Dominant      Direction               `json:"dominant"`
	Confidence    float64                 `json:"confidence"` // 0-100
	Breakdown     map[string]Contribution `json:"breakdown"`

	ComputedAt time.Time `json:"computed_at,omitempty"`
}

// ConfidenceBucket buckets the winning probability
type ConfidenceBucket string

const (
	BucketLow    ConfidenceBucket = "low"
	BucketMedium ConfidenceBucket = "medium"
	BucketHigh   ConfidenceBucket = "high"
)

// GateAudit records one directional branch evaluation. Both branches are
// always evaluated and persisted even when the first one wins.
type GateAudit struct {
	Score       float64 `json:"score"`
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
	ScoreGate   bool    `json:"score_gate"`
	ProbGate    bool    `json:"prob_gate"`
	Passed      bool    `json:"passed"`
}

// Decision is the output of the decision stage
type Decision struct {
	Direction Direction        `json:"direction"`
	Bucket    ConfidenceBucket `json:"bucket"`

	PLong  float64 `json:"p_long"`
	PShort float64 `json:"p_short"`
	PHold  float64 `json:"p_hold"`

	LongGate  GateAudit `json:"long_gate"`
	ShortGate GateAudit `json:"short_gate"`

	ComputedAt time.Time `json:"computed_at,omitempty"`
}

// WinningProbability returns the probability of the chosen direction.
func (d *Decision) WinningProbability() float64 {
	switch d.Direction {
	case DirectionLongVol:
		return d.PLong
	case DirectionShortVol:
		return d.PShort
	default:
		return d.PHold
	}
}

// Tier is a strategy risk tier
type Tier string

const (
	TierAggressive   Tier = "aggressive"
	TierBalanced     Tier = "balanced"
	TierConservative Tier = "conservative"
)

// Structure is an options-structure archetype from the fixed catalogue
type Structure string

const (
	StructureLongStraddle  Structure = "long_straddle"
	StructureLongStrangle  Structure = "long_strangle"
	StructureShortStrangle Structure = "short_strangle"
	StructureIronCondor    Structure = "iron_condor"
	StructureCreditSpread  Structure = "credit_spread"
	StructureCalendar      Structure = "calendar"
	StructureDiagonal      Structure = "diagonal"
)

// LegAction is buy or sell
type LegAction string

const (
	ActionBuy  LegAction = "buy"
	ActionSell LegAction = "sell"
)

// LegSide is call or put
type LegSide string

const (
	SideCall LegSide = "call"
	SidePut  LegSide = "put"
)

// Moneyness anchors a leg's strike before resolution
type Moneyness string

const (
	MoneynessATM      Moneyness = "atm"
	MoneynessOTMCall  Moneyness = "otm_call"
	MoneynessOTMPut   Moneyness = "otm_put"
	MoneynessWingCall Moneyness = "wing_call" // protective wing beyond otm_call
	MoneynessWingPut  Moneyness = "wing_put"
)

// LegExpiry places a leg within the plan's DTE range. Empty means the
// optimal DTE; near/far split calendars and diagonals across expiries.
type LegExpiry string

const (
	ExpiryNear LegExpiry = "near"
	ExpiryFar  LegExpiry = "far"
)

// LegTemplate is one leg of a structure before strikes are resolved
type LegTemplate struct {
	Action    LegAction `json:"action"`
	Side      LegSide   `json:"side"`
	Moneyness Moneyness `json:"moneyness"`
	Expiry    LegExpiry `json:"expiry,omitempty"`
}

// DTERange bounds days-to-expiration for a plan
type DTERange struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Optimal int `json:"optimal"`
}

// StrategyPlan is one risk tier's plan
type StrategyPlan struct {
	Tier      Tier          `json:"tier"`
	Structure Structure     `json:"structure"`
	Legs      []LegTemplate `json:"legs"`
	DTE       DTERange      `json:"dte"`
}

// PlanSet is the strategy stage output: one plan per risk tier
type PlanSet struct {
	Aggressive   StrategyPlan `json:"aggressive"`
	Balanced     StrategyPlan `json:"balanced"`
	Conservative StrategyPlan `json:"conservative"`

	ComputedAt time.Time `json:"computed_at,omitempty"`
}

// ForTier returns the plan for a tier, balanced when unknown.
func (p *PlanSet) ForTier(t Tier) StrategyPlan {
	switch t {
	case TierAggressive:
		return p.Aggressive
	case TierConservative:
		return p.Conservative
	default:
		return p.Balanced
	}
}

// StrikeMethod tags how a leg's strike was resolved
type StrikeMethod string

const (
	MethodDelta   StrikeMethod = "delta"
	MethodBarrier StrikeMethod = "barrier"
	MethodATR     StrikeMethod = "atr"
)

// LegStrike is one leg with a resolved strike
type LegStrike struct {
	Action LegAction    `json:"action"`
	Side   LegSide      `json:"side"`
	Strike float64      `json:"strike"`
	Method StrikeMethod `json:"method"`
	DTE    int          `json:"dte"`
}

// StrikeSet is the strike stage output for the tier selected for execution
type StrikeSet struct {
	Tier Tier        `json:"tier"`
	Legs []LegStrike `json:"legs"`

	ComputedAt time.Time `json:"computed_at,omitempty"`
}

// EdgeEstimate is the Monte Carlo stage output. RewardRisk is 0 with
// RiskUndefined set when no simulated path lost money; the zero sentinel
// is not a real ratio and never passes the RR profitability gate.
type EdgeEstimate struct {
	WinRate       float64 `json:"win_rate"`
	RewardRisk    float64 `json:"reward_risk"`
	RiskUndefined bool    `json:"risk_undefined"`
	ExpectedValue float64 `json:"expected_value"`
	IsProfitable  bool    `json:"is_profitable"`
	Simulations   int     `json:"simulations"`
	Seed          int64   `json:"seed"`

	ComputedAt time.Time `json:"computed_at,omitempty"`
}
