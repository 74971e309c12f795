package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/internal/metrics"
	"voledge/pkg/errors"
)

// Compile-time check
var _ analysis.StageStore = (*Store)(nil)

// Store implements analysis.StageStore on the local filesystem. One JSON
// document per (symbol, date) at <base>/<SYMBOL>/<date>/<SYMBOL>_<date>.json,
// written atomically via rename. A per-key mutex serializes writers so the
// stage-order check and the write are one critical section.
type Store struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a file-backed stage store rooted at baseDir
func NewStore(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Init creates the record for (symbol, date), or returns the existing one.
func (s *Store) Init(ctx context.Context, symbol, date string, params market.Summary) (*analysis.Record, error) {
	lock := s.keyLock(symbol, date)
	lock.Lock()
	defer lock.Unlock()

	if rec, err := s.read(symbol, date); err == nil {
		return rec, nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &analysis.Record{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Date:         date,
		CreatedAt:    now,
		UpdatedAt:    now,
		MarketParams: params,
	}

	if err := s.save(rec); err != nil {
		metrics.IncStoreWrite("file", "error")
		return nil, err
	}
	metrics.IncStoreWrite("file", "ok")
	return rec, nil
}

// Load returns the record, or errors.ErrNotFound.
func (s *Store) Load(ctx context.Context, symbol, date string) (*analysis.Record, error) {
	lock := s.keyLock(symbol, date)
	lock.Lock()
	defer lock.Unlock()

	return s.read(symbol, date)
}

// WriteStage stores one stage payload under the no-gap invariant.
func (s *Store) WriteStage(ctx context.Context, symbol, date string, stage analysis.Stage, payload interface{}) (*analysis.Record, error) {
	lock := s.keyLock(symbol, date)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.read(symbol, date)
	if err != nil {
		return nil, err
	}

	if err := rec.CheckWrite(stage); err != nil {
		return nil, err
	}
	rec.SetStage(stage, payload, time.Now().UTC())

	if err := s.save(rec); err != nil {
		metrics.IncStoreWrite("file", "error")
		return nil, err
	}
	metrics.IncStoreWrite("file", "ok")
	return rec, nil
}

// List returns the dates with a record for the symbol, newest first.
func (s *Store) List(ctx context.Context, symbol string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, strings.ToUpper(symbol)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "list records for %s", symbol)
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			dates = append(dates, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

func (s *Store) keyLock(symbol, date string) *sync.Mutex {
	key := strings.ToUpper(symbol) + "/" + date

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

func (s *Store) path(symbol, date string) string {
	sym := strings.ToUpper(symbol)
	return filepath.Join(s.baseDir, sym, date, fmt.Sprintf("%s_%s.json", sym, date))
}

func (s *Store) read(symbol, date string) (*analysis.Record, error) {
	data, err := os.ReadFile(s.path(symbol, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "record %s/%s", symbol, date)
		}
		return nil, errors.Wrapf(err, "read record %s/%s", symbol, date)
	}

	var rec analysis.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "decode record %s/%s", symbol, date)
	}
	return &rec, nil
}

// save writes the document to a temp file in the same directory and renames
// it over the target, so readers never observe a torn write.
func (s *Store) save(rec *analysis.Record) error {
	path := s.path(rec.Symbol, rec.Date)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create record dir %s", dir)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode record %s/%s", rec.Symbol, rec.Date)
	}

	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replace record %s/%s", rec.Symbol, rec.Date)
	}
	return nil
}
