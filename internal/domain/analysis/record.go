package analysis

import (
	"time"

	"voledge/internal/domain/market"
	"voledge/pkg/errors"
)

// Stage names the pipeline stages in execution order
type Stage string

const (
	StageFeatures Stage = "features"
	StageScores   Stage = "scores"
	StageDecision Stage = "decision"
	StageStrategy Stage = "strategy"
	StageStrikes  Stage = "strikes"
	StageEdge     Stage = "edge"
)

// Stages is the pipeline order. Writing stage k requires stages 1..k-1.
var Stages = []Stage{
	StageFeatures,
	StageScores,
	StageDecision,
	StageStrategy,
	StageStrikes,
	StageEdge,
}

// Index returns the stage's position in pipeline order, -1 if unknown.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid checks if the stage name is part of the pipeline
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// String returns string representation
func (s Stage) String() string {
	return string(s)
}

// Record is the persisted analysis state for one (symbol, date). It is owned
// exclusively by the stage store; pipeline services exchange stage payloads
// and never touch the record directly.
type Record struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MarketParams market.Summary `json:"market_params"`

	Features *FeatureSet   `json:"features,omitempty"`
	Scores   *ScoreSet     `json:"scores,omitempty"`
	Decision *Decision     `json:"decision,omitempty"`
	Strategy *PlanSet      `json:"strategy,omitempty"`
	Strikes  *StrikeSet    `json:"strikes,omitempty"`
	Edge     *EdgeEstimate `json:"edge,omitempty"`
}

// HasStage reports whether a stage slot is populated
func (r *Record) HasStage(s Stage) bool {
	switch s {
	case StageFeatures:
		return r.Features != nil
	case StageScores:
		return r.Scores != nil
	case StageDecision:
		return r.Decision != nil
	case StageStrategy:
		return r.Strategy != nil
	case StageStrikes:
		return r.Strikes != nil
	case StageEdge:
		return r.Edge != nil
	}
	return false
}

// LastStage returns the deepest populated stage, or "" for a fresh record.
func (r *Record) LastStage() Stage {
	var last Stage
	for _, s := range Stages {
		if !r.HasStage(s) {
			break
		}
		last = s
	}
	return last
}

// CheckWrite enforces the no-gap invariant for writing stage s into this
// record: all earlier stages must already be present. Rewriting an existing
// stage is always allowed (update mode).
func (r *Record) CheckWrite(s Stage) error {
	idx := s.Index()
	if idx < 0 {
		return errors.Wrapf(errors.ErrUnknownStage, "stage %q", s)
	}
	for _, earlier := range Stages[:idx] {
		if !r.HasStage(earlier) {
			return errors.Wrapf(errors.ErrStageOrder,
				"cannot write stage %q: stage %q missing for %s/%s",
				s, earlier, r.Symbol, r.Date)
		}
	}
	return nil
}

// SetStage stores a payload into its slot, stamping ComputedAt. The caller
// must have passed CheckWrite first; SetStage panics on a type mismatch,
// which indicates a programming error, not bad input.
func (r *Record) SetStage(s Stage, payload interface{}, now time.Time) {
	switch s {
	case StageFeatures:
		p := payload.(FeatureSet)
		p.ComputedAt = now
		r.Features = &p
	case StageScores:
		p := payload.(ScoreSet)
		p.ComputedAt = now
		r.Scores = &p
	case StageDecision:
		p := payload.(Decision)
		p.ComputedAt = now
		r.Decision = &p
	case StageStrategy:
		p := payload.(PlanSet)
		p.ComputedAt = now
		r.Strategy = &p
	case StageStrikes:
		p := payload.(StrikeSet)
		p.ComputedAt = now
		r.Strikes = &p
	case StageEdge:
		p := payload.(EdgeEstimate)
		p.ComputedAt = now
		r.Edge = &p
	}
	r.UpdatedAt = now
}
