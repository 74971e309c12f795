package kafka

import (
	"context"
	"fmt"
	"time"

	"voledge/internal/domain/analysis"
	"voledge/internal/services/pipeline"
)

// Compile-time check
var _ pipeline.Publisher = (*DecisionPublisher)(nil)

// DecisionEvent is the wire shape of a completed analysis on the stream.
// Consumers key on symbol; the full record stays in the stage store.
type DecisionEvent struct {
	Symbol      string    `json:"symbol"`
	Date        string    `json:"date"`
	Direction   string    `json:"direction"`
	Bucket      string    `json:"bucket"`
	Probability float64   `json:"probability"`
	Tier        string    `json:"tier,omitempty"`
	WinRate     float64   `json:"win_rate,omitempty"`
	EV          float64   `json:"expected_value,omitempty"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// DecisionPublisher emits completed decisions through the shared producer
type DecisionPublisher struct {
	producer *Producer
}

// NewDecisionPublisher creates a decision publisher
func NewDecisionPublisher(producer *Producer) *DecisionPublisher {
	return &DecisionPublisher{producer: producer}
}

// PublishDecision emits the record's decision to the decisions topic.
func (p *DecisionPublisher) PublishDecision(ctx context.Context, rec *analysis.Record) error {
	return p.publish(ctx, TopicDecisionCompleted, rec)
}

// PublishUpdate emits a re-scored decision to the updates topic. Downstream
// stage fields on the event reflect the record as stored, which after an
// update means the prior run's strikes and edge.
func (p *DecisionPublisher) PublishUpdate(ctx context.Context, rec *analysis.Record) error {
	return p.publish(ctx, TopicDecisionUpdated, rec)
}

func (p *DecisionPublisher) publish(ctx context.Context, topic string, rec *analysis.Record) error {
	if rec.Decision == nil {
		return nil
	}

	event := DecisionEvent{
		Symbol:      rec.Symbol,
		Date:        rec.Date,
		Direction:   rec.Decision.Direction.String(),
		Bucket:      string(rec.Decision.Bucket),
		Probability: rec.Decision.WinningProbability(),
		EmittedAt:   time.Now().UTC(),
	}
	if rec.Strikes != nil {
		event.Tier = string(rec.Strikes.Tier)
	}
	if rec.Edge != nil {
		event.WinRate = rec.Edge.WinRate
		event.EV = rec.Edge.ExpectedValue
	}

	key := fmt.Sprintf("%s:%s", rec.Symbol, rec.Date)
	return p.producer.Publish(ctx, topic, key, event)
}
