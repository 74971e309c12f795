package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"voledge/internal/domain/analysis"
	"voledge/internal/domain/market"
	"voledge/pkg/errors"
	"voledge/pkg/logger"
)

// Compile-time check
var _ analysis.StageStore = (*CachedStore)(nil)

// CachedStore decorates another StageStore with a Redis read-through cache.
// Writes go to the inner store first and refresh the cache on success, so
// the cache can only lag, never lead, the durable copy. Cache failures are
// logged and degraded around.
type CachedStore struct {
	inner  analysis.StageStore
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedStore wraps inner with a Redis cache
func NewCachedStore(inner analysis.StageStore, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
		log:    logger.Get().With("component", "record_cache"),
	}
}

// Init delegates to the inner store and primes the cache.
func (s *CachedStore) Init(ctx context.Context, symbol, date string, params market.Summary) (*analysis.Record, error) {
	rec, err := s.inner.Init(ctx, symbol, date, params)
	if err != nil {
		return nil, err
	}
	s.put(ctx, rec)
	return rec, nil
}

// Load tries the cache first, falling back to the inner store on a miss.
func (s *CachedStore) Load(ctx context.Context, symbol, date string) (*analysis.Record, error) {
	key := s.key(symbol, date)

	data, err := s.client.Get(ctx, key).Result()
	if err == nil {
		var rec analysis.Record
		if jsonErr := json.Unmarshal([]byte(data), &rec); jsonErr == nil {
			return &rec, nil
		}
		// Corrupt entry, drop it and reload.
		s.client.Del(ctx, key)
	} else if err != redis.Nil {
		s.log.Warnw("cache read failed", "key", key, "error", err)
	}

	rec, err := s.inner.Load(ctx, symbol, date)
	if err != nil {
		return nil, err
	}
	s.put(ctx, rec)
	return rec, nil
}

// WriteStage delegates to the inner store and refreshes the cache.
func (s *CachedStore) WriteStage(ctx context.Context, symbol, date string, stage analysis.Stage, payload interface{}) (*analysis.Record, error) {
	rec, err := s.inner.WriteStage(ctx, symbol, date, stage, payload)
	if err != nil {
		return nil, err
	}
	s.put(ctx, rec)
	return rec, nil
}

// List is not cached; listings are rare and cheap on the inner store.
func (s *CachedStore) List(ctx context.Context, symbol string) ([]string, error) {
	return s.inner.List(ctx, symbol)
}

func (s *CachedStore) put(ctx context.Context, rec *analysis.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Warnw("cache encode failed", "symbol", rec.Symbol, "error", errors.Wrap(err, "marshal record"))
		return
	}
	if err := s.client.Set(ctx, s.key(rec.Symbol, rec.Date), data, s.ttl).Err(); err != nil {
		s.log.Warnw("cache write failed", "symbol", rec.Symbol, "error", err)
	}
}

func (s *CachedStore) key(symbol, date string) string {
	return fmt.Sprintf("analysis:%s:%s", strings.ToUpper(symbol), date)
}
