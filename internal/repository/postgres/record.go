package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/internal/metrics"
	"voledge/pkg/errors"
)

// Compile-time check
var _ analysis.StageStore = (*RecordStore)(nil)

// RecordStore implements analysis.StageStore on Postgres. The whole record
// lives in one row with a JSONB column per stage; WriteStage takes a row
// lock so the stage-order check and the update are atomic per key.
type RecordStore struct {
	db *sqlx.DB
}

// NewRecordStore creates a Postgres-backed stage store
func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

type recordRow struct {
	ID           string          `db:"id"`
	Symbol       string          `db:"symbol"`
	Date         string          `db:"date"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
	MarketParams json.RawMessage `db:"market_params"`
	Features     json.RawMessage `db:"features"`
	Scores       json.RawMessage `db:"scores"`
	Decision     json.RawMessage `db:"decision"`
	Strategy     json.RawMessage `db:"strategy"`
	Strikes      json.RawMessage `db:"strikes"`
	Edge         json.RawMessage `db:"edge"`
}

// Init creates the record for (symbol, date), or returns the existing one.
func (s *RecordStore) Init(ctx context.Context, symbol, date string, params market.Summary) (*analysis.Record, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "encode market params")
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO analysis_records (id, symbol, date, created_at, updated_at, market_params)
		VALUES ($1, UPPER($2), $3, $4, $4, $5)
		ON CONFLICT (symbol, date) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), symbol, date, now, paramsJSON); err != nil {
		metrics.IncStoreWrite("postgres", "error")
		return nil, errors.Wrapf(err, "init record %s/%s", symbol, date)
	}
	metrics.IncStoreWrite("postgres", "ok")

	return s.Load(ctx, symbol, date)
}

// Load returns the record, or errors.ErrNotFound.
func (s *RecordStore) Load(ctx context.Context, symbol, date string) (*analysis.Record, error) {
	var row recordRow

	query := `SELECT * FROM analysis_records WHERE symbol = UPPER($1) AND date = $2`

	if err := s.db.GetContext(ctx, &row, query, symbol, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "record %s/%s", symbol, date)
		}
		return nil, errors.Wrapf(err, "load record %s/%s", symbol, date)
	}

	return row.toRecord()
}

// WriteStage stores one stage payload under the no-gap invariant.
func (s *RecordStore) WriteStage(ctx context.Context, symbol, date string, stage analysis.Stage, payload interface{}) (*analysis.Record, error) {
	if !stage.Valid() {
		return nil, errors.Wrapf(errors.ErrUnknownStage, "stage %q", stage)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var row recordRow
	query := `SELECT * FROM analysis_records WHERE symbol = UPPER($1) AND date = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &row, query, symbol, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "record %s/%s", symbol, date)
		}
		return nil, errors.Wrapf(err, "lock record %s/%s", symbol, date)
	}

	rec, err := row.toRecord()
	if err != nil {
		return nil, err
	}
	if err := rec.CheckWrite(stage); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.SetStage(stage, payload, now)

	stageJSON, err := json.Marshal(stagePayload(rec, stage))
	if err != nil {
		return nil, errors.Wrapf(err, "encode stage %s", stage)
	}

	// Stage names are a closed set, safe to splice as a column name.
	update := `UPDATE analysis_records SET "` + stage.String() + `" = $1, updated_at = $2
		WHERE symbol = UPPER($3) AND date = $4`
	if _, err := tx.ExecContext(ctx, update, stageJSON, now, symbol, date); err != nil {
		metrics.IncStoreWrite("postgres", "error")
		return nil, errors.Wrapf(err, "write stage %s for %s/%s", stage, symbol, date)
	}

	if err := tx.Commit(); err != nil {
		metrics.IncStoreWrite("postgres", "error")
		return nil, errors.Wrap(err, "commit stage write")
	}
	metrics.IncStoreWrite("postgres", "ok")

	return rec, nil
}

// List returns the dates with a record for the symbol, newest first.
func (s *RecordStore) List(ctx context.Context, symbol string) ([]string, error) {
	var dates []string

	query := `SELECT date FROM analysis_records WHERE symbol = UPPER($1) ORDER BY date DESC`

	if err := s.db.SelectContext(ctx, &dates, query, symbol); err != nil {
		return nil, errors.Wrapf(err, "list records for %s", symbol)
	}
	return dates, nil
}

func (r *recordRow) toRecord() (*analysis.Record, error) {
	rec := &analysis.Record{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Date:      r.Date,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	if err := json.Unmarshal(r.MarketParams, &rec.MarketParams); err != nil {
		return nil, errors.Wrap(err, "decode market params")
	}

	for stage, raw := range map[analysis.Stage]json.RawMessage{
		analysis.StageFeatures: r.Features,
		analysis.StageScores:   r.Scores,
		analysis.StageDecision: r.Decision,
		analysis.StageStrategy: r.Strategy,
		analysis.StageStrikes:  r.Strikes,
		analysis.StageEdge:     r.Edge,
	} {
		if len(raw) == 0 {
			continue
		}
		if err := decodeStage(rec, stage, raw); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

func decodeStage(rec *analysis.Record, stage analysis.Stage, raw json.RawMessage) error {
	var err error
	switch stage {
	case analysis.StageFeatures:
		rec.Features = &analysis.FeatureSet{}
		err = json.Unmarshal(raw, rec.Features)
	case analysis.StageScores:
		rec.Scores = &analysis.ScoreSet{}
		err = json.Unmarshal(raw, rec.Scores)
	case analysis.StageDecision:
		rec.Decision = &analysis.Decision{}
		err = json.Unmarshal(raw, rec.Decision)
	case analysis.StageStrategy:
		rec.Strategy = &analysis.PlanSet{}
		err = json.Unmarshal(raw, rec.Strategy)
	case analysis.StageStrikes:
		rec.Strikes = &analysis.StrikeSet{}
		err = json.Unmarshal(raw, rec.Strikes)
	case analysis.StageEdge:
		rec.Edge = &analysis.EdgeEstimate{}
		err = json.Unmarshal(raw, rec.Edge)
	}
	if err != nil {
		return errors.Wrapf(err, "decode stage %s", stage)
	}
	return nil
}

func stagePayload(rec *analysis.Record, stage analysis.Stage) interface{} {
	switch stage {
	case analysis.StageFeatures:
		return rec.Features
	case analysis.StageScores:
		return rec.Scores
	case analysis.StageDecision:
		return rec.Decision
	case analysis.StageStrategy:
		return rec.Strategy
	case analysis.StageStrikes:
		return rec.Strikes
	default:
		return rec.Edge
	}
}
