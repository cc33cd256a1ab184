package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighborhood/facility-booking/internal/config"
	"github.com/neighborhood/facility-booking/internal/model"
)

func TestNilListingIsDisabled(t *testing.T) {
	var l *Listing
	k := model.DayKey{FacilityID: "gym", Date: model.Date{Year: 2030, Month: 1, Day: 2}}

	l.Set(context.Background(), k, "f", []byte("x"))
	_, ok := l.Get(context.Background(), k, "f")
	assert.False(t, ok)
	assert.NoError(t, l.Invalidate(context.Background(), k))

	assert.Nil(t, NewListing(config.ListingCacheConfig{Enabled: false}, nil))
}

func TestListingRoundTripAgainstRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	l := NewListing(config.ListingCacheConfig{Enabled: true, TTL: time.Minute, Prefix: "test:list:" + time.Now().Format("150405.000")}, rdb)
	require.NotNil(t, l)
	ctx := context.Background()
	k := model.DayKey{FacilityID: "gym", Date: model.Date{Year: 2030, Month: 1, Day: 2}}
	other := model.DayKey{FacilityID: "gym", Date: model.Date{Year: 2030, Month: 1, Day: 3}}

	l.Set(ctx, k, "a", []byte("one"))
	l.Set(ctx, k, "b", []byte("two"))
	l.Set(ctx, other, "a", []byte("three"))

	got, ok := l.Get(ctx, k, "b")
	require.True(t, ok)
	assert.Equal(t, "two", string(got))

	require.NoError(t, l.Invalidate(ctx, k))
	_, ok = l.Get(ctx, k, "a")
	assert.False(t, ok)
	_, ok = l.Get(ctx, other, "a")
	assert.True(t, ok)
	require.NoError(t, l.Invalidate(ctx, other))
}
