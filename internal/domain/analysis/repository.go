package analysis

import (
	"context"

	"voledge/internal/domain/market"
)

// StageStore persists analysis records keyed by (symbol, date).
//
// Implementations must serialize writes per key so the no-gap invariant in
// Record.CheckWrite holds under concurrency; writes to different keys need
// no coordination.
type StageStore interface {
	// Init creates the record for (symbol, date) with its market summary,
	// or returns the existing one untouched.
	Init(ctx context.Context, symbol, date string, params market.Summary) (*Record, error)

	// Load returns the record, or errors.ErrNotFound.
	Load(ctx context.Context, symbol, date string) (*Record, error)

	// WriteStage stores one stage payload. Returns errors.ErrStageOrder if
	// any earlier stage is missing, errors.ErrNotFound if the record was
	// never initialized.
	WriteStage(ctx context.Context, symbol, date string, stage Stage, payload interface{}) (*Record, error)

	// List returns the dates with a record for the symbol, newest first.
	List(ctx context.Context, symbol string) ([]string, error)
}
