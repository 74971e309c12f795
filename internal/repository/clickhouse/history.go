package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"voledge/internal/domain/analysis"
	"voledge/pkg/errors"
)

// DecisionRow is one archived decision, flattened for columnar storage.
type DecisionRow struct {
	Symbol        string    `ch:"symbol"`
	Date          string    `ch:"date"`
	Direction     string    `ch:"direction"`
	Bucket        string    `ch:"bucket"`
	LongScore     float64   `ch:"long_score"`
	ShortScore    float64   `ch:"short_score"`
	PLong         float64   `ch:"p_long"`
	PShort        float64   `ch:"p_short"`
	Structure     string    `ch:"structure"`
	Tier          string    `ch:"tier"`
	WinRate       float64   `ch:"win_rate"`
	RewardRisk    float64   `ch:"reward_risk"`
	ExpectedValue float64   `ch:"expected_value"`
	Spot          float64   `ch:"spot"`
	IVAtm         float64   `ch:"iv_atm"`
	EventWeek     bool      `ch:"event_week"`
	CreatedAt     time.Time `ch:"created_at"`
}

// HistoryRepository archives completed decisions to ClickHouse for
// longitudinal study. The file or Postgres store stays the source of truth;
// this table is append-only.
type HistoryRepository struct {
	conn driver.Conn
}

// NewHistoryRepository creates a decision history repository
func NewHistoryRepository(conn driver.Conn) *HistoryRepository {
	return &HistoryRepository{conn: conn}
}

// Archive appends one completed record. Records without a decision stage
// are skipped silently; partial runs are not history.
func (r *HistoryRepository) Archive(ctx context.Context, rec *analysis.Record) error {
	if rec.Decision == nil || rec.Scores == nil {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO decision_history (
			symbol, date, direction, bucket,
			long_score, short_score, p_long, p_short,
			structure, tier, win_rate, reward_risk, expected_value,
			spot, iv_atm, event_week, created_at
		)
	`)
	if err != nil {
		return errors.Wrap(err, "prepare history batch")
	}

	row := flatten(rec)
	if err := batch.Append(
		row.Symbol, row.Date, row.Direction, row.Bucket,
		row.LongScore, row.ShortScore, row.PLong, row.PShort,
		row.Structure, row.Tier, row.WinRate, row.RewardRisk, row.ExpectedValue,
		row.Spot, row.IVAtm, row.EventWeek, row.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "append history row")
	}

	return batch.Send()
}

// History returns the archived decisions for a symbol, newest first.
func (r *HistoryRepository) History(ctx context.Context, symbol string, limit int) ([]DecisionRow, error) {
	var rows []DecisionRow

	query := `
		SELECT symbol, date, direction, bucket,
			long_score, short_score, p_long, p_short,
			structure, tier, win_rate, reward_risk, expected_value,
			spot, iv_atm, event_week, created_at
		FROM decision_history
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT $2`

	if err := r.conn.Select(ctx, &rows, query, symbol, limit); err != nil {
		return nil, errors.Wrapf(err, "query history for %s", symbol)
	}
	return rows, nil
}

// DirectionStats returns hit counts by decision direction for a symbol.
func (r *HistoryRepository) DirectionStats(ctx context.Context, symbol string) (map[string]uint64, error) {
	query := `
		SELECT direction, count() AS n
		FROM decision_history
		WHERE symbol = $1
		GROUP BY direction`

	rows, err := r.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "query direction stats for %s", symbol)
	}
	defer rows.Close()

	stats := make(map[string]uint64)
	for rows.Next() {
		var direction string
		var n uint64
		if err := rows.Scan(&direction, &n); err != nil {
			return nil, errors.Wrap(err, "scan direction stats")
		}
		stats[direction] = n
	}
	return stats, rows.Err()
}

func flatten(rec *analysis.Record) DecisionRow {
	row := DecisionRow{
		Symbol:    rec.Symbol,
		Date:      rec.Date,
		Direction: rec.Decision.Direction.String(),
		Bucket:    string(rec.Decision.Bucket),
		PLong:     rec.Decision.PLong,
		PShort:    rec.Decision.PShort,
		Spot:      rec.MarketParams.Spot,
		IVAtm:     rec.MarketParams.IVAtm,
		EventWeek: rec.MarketParams.EventWeek,
		CreatedAt: time.Now().UTC(),
	}

	row.LongScore = rec.Scores.LongVolScore
	row.ShortScore = rec.Scores.ShortVolScore

	if rec.Strikes != nil {
		row.Tier = string(rec.Strikes.Tier)
	}
	if rec.Strategy != nil && rec.Strikes != nil {
		row.Structure = string(rec.Strategy.ForTier(rec.Strikes.Tier).Structure)
	}
	if rec.Edge != nil {
		row.WinRate = rec.Edge.WinRate
		row.RewardRisk = rec.Edge.RewardRisk
		row.ExpectedValue = rec.Edge.ExpectedValue
	}

	return row
}
