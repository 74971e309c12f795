package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"voledge/internal/domain/analysis"
	"voledge/internal/services/pipeline"
	"voledge/pkg/errors"
	"voledge/pkg/logger"
)

// Compile-time check
var _ pipeline.Narrator = (*Narrator)(nil)

const systemPrompt = "You are a volatility trading desk assistant. " +
	"Summarize the analysis in 2-3 plain sentences for a trader: what the signals say, " +
	"what the structure is, and the main risk. No preamble, no disclaimers."

// Config contains narrator configuration
type Config struct {
	APIKey    string
	Model     string
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// Narrator produces a short prose summary of a completed analysis record
// via the OpenAI chat API. Narration is decorative: callers treat errors
// as a missing narrative, never as a run failure.
type Narrator struct {
	client  openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewNarrator creates an AI narrator
func NewNarrator(cfg Config) (*Narrator, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 0.5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	return &Narrator{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		log:     logger.Get().With("component", "ai_narrator", "model", cfg.Model),
	}, nil
}

// Narrate summarizes a completed record.
func (n *Narrator) Narrate(ctx context.Context, rec *analysis.Record) (string, error) {
	if rec.Decision == nil {
		return "", errors.Wrap(errors.ErrInvalidInput, "record has no decision to narrate")
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "narration rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: n.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(describeRecord(rec)),
		},
		MaxTokens: openai.Int(300),
	})
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.Wrap(errors.ErrInternal, "no completion returned")
	}

	n.log.Debugw("narration generated", "symbol", rec.Symbol, "date", rec.Date)
	return resp.Choices[0].Message.Content, nil
}

// describeRecord flattens the record into prompt text. Only regime labels
// and headline numbers go in; the full breakdown would waste tokens.
func describeRecord(rec *analysis.Record) string {
	d := rec.Decision
	text := fmt.Sprintf("%s on %s: direction %s, confidence %s, p(win) %.2f.",
		rec.Symbol, rec.Date, d.Direction, d.Bucket, d.WinningProbability())

	if rec.Features != nil {
		text += fmt.Sprintf(" VRP %.1f%% (%s), GEX %s, term %s, skew %s, liquidity %.0f/100.",
			rec.Features.VRPPct, rec.Features.VRPRegime, rec.Features.GEXRegime,
			rec.Features.TermRegime, rec.Features.SkewRegime, rec.Features.LiquidityScore)
		if rec.Features.EventWeek {
			text += " Event week."
		}
	}

	if rec.Strategy != nil && rec.Strikes != nil {
		plan := rec.Strategy.ForTier(rec.Strikes.Tier)
		text += fmt.Sprintf(" Structure: %s, tier %s, DTE %d-%d.",
			plan.Structure, plan.Tier, plan.DTE.Min, plan.DTE.Max)
	}

	if rec.Edge != nil {
		text += fmt.Sprintf(" Simulated: win rate %.0f%%, EV %.2f.",
			rec.Edge.WinRate*100, rec.Edge.ExpectedValue)
	}

	return text
}
