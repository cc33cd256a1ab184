// Package cache stores rendered read responses per (facility, date) in
// Redis.  Every entry for a day lives in one hash so a write to that day
// drops all of them with a single DEL.
package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/neighborhood/facility-booking/internal/config"
	"github.com/neighborhood/facility-booking/internal/model"
)

// Listing is the per-day response cache.  A nil *Listing is a valid,
// disabled cache: reads miss and writes are dropped.
type Listing struct {
	rdb *redis.Client
	cfg config.ListingCacheConfig
}

// NewListing returns nil when caching is disabled or Redis is unavailable.
func NewListing(cfg config.ListingCacheConfig, rdb *redis.Client) *Listing {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &Listing{rdb: rdb, cfg: cfg}
}

func (l *Listing) key(k model.DayKey) string {
	return l.cfg.Prefix + ":" + k.String()
}

// Get returns the payload stored under field for day k.
func (l *Listing) Get(ctx context.Context, k model.DayKey, field string) ([]byte, bool) {
	if l == nil {
		return nil, false
	}
	bs, err := l.rdb.HGet(ctx, l.key(k), field).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", l.key(k)).Msg("listing cache read failed")
		}
		return nil, false
	}
	return bs, true
}

// Set stores payload under field and refreshes the day's TTL.
func (l *Listing) Set(ctx context.Context, k model.DayKey, field string, payload []byte) {
	if l == nil {
		return
	}
	key := l.key(k)
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, payload)
		p.Expire(ctx, key, l.cfg.TTL)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("listing cache write failed")
	}
}

// Invalidate drops every cached response for day k.
func (l *Listing) Invalidate(ctx context.Context, k model.DayKey) error {
	if l == nil {
		return nil
	}
	return l.rdb.Del(ctx, l.key(k)).Err()
}
