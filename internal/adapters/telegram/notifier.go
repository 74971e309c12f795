package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"voledge/internal/domain/analysis"
	"voledge/internal/services/pipeline"
	"voledge/pkg/errors"
	"voledge/pkg/logger"
)

// Compile-time check
var _ pipeline.Notifier = (*Notifier)(nil)

// Config contains Telegram notifier configuration
type Config struct {
	Token  string
	ChatID int64

	// Telegram allows ~30 msg/sec; stay under it.
	RateLimitRate  int
	RateLimitBurst int
}

// Notifier posts completed decisions to a Telegram chat
type Notifier struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewNotifier creates a Telegram notifier
func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}

	return &Notifier{
		api:     api,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
		log:     logger.Get().With("component", "telegram_notifier"),
	}, nil
}

// NotifyDecision sends the decision summary, with the optional narrative
// appended when the narrator produced one.
func (n *Notifier) NotifyDecision(ctx context.Context, rec *analysis.Record, narrative string) error {
	if rec.Decision == nil {
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram rate limit wait")
	}

	text := formatDecision(rec)
	if narrative != "" {
		text += "\n\n" + narrative
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := n.api.Send(msg); err != nil {
		return errors.Wrapf(err, "send decision notification for %s/%s", rec.Symbol, rec.Date)
	}

	n.log.Debugw("decision notification sent", "symbol", rec.Symbol, "date", rec.Date)
	return nil
}

func formatDecision(rec *analysis.Record) string {
	d := rec.Decision

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s %s</b> %s\n", rec.Symbol, rec.Date, directionEmoji(d.Direction))
	fmt.Fprintf(&b, "Direction: <b>%s</b> (%s confidence)\n", d.Direction, d.Bucket)
	fmt.Fprintf(&b, "P(win): %.0f%%", d.WinningProbability()*100)

	if rec.Strategy != nil && rec.Strikes != nil {
		plan := rec.Strategy.ForTier(rec.Strikes.Tier)
		fmt.Fprintf(&b, "\nStructure: %s (%s), DTE %d-%d",
			plan.Structure, plan.Tier, plan.DTE.Min, plan.DTE.Max)

		for _, leg := range rec.Strikes.Legs {
			fmt.Fprintf(&b, "\n  %s %s @ %s (%dd)",
				leg.Action, leg.Side, humanize.Commaf(leg.Strike), leg.DTE)
		}
	}

	if rec.Edge != nil {
		rr := fmt.Sprintf("%.2f", rec.Edge.RewardRisk)
		if rec.Edge.RiskUndefined {
			rr = "n/a"
		}
		fmt.Fprintf(&b, "\nEdge: win %.0f%%, R/R %s, EV %.2f",
			rec.Edge.WinRate*100, rr, rec.Edge.ExpectedValue)
	}

	return b.String()
}

func directionEmoji(d analysis.Direction) string {
	switch d {
	case analysis.DirectionLongVol:
		return "📈"
	case analysis.DirectionShortVol:
		return "📉"
	default:
		return "⏸"
	}
}
