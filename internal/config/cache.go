package config

import "time"

// ListingCacheConfig controls the Redis cache in front of per-day
// reservation listings and availability timelines.  Entries are dropped on
// every write to the same (facility, date), so TTL only bounds how long an
// entry survives a missed invalidation.
type ListingCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadListingCacheConfig reads CACHE_* variables, falling back to defaults.
func LoadListingCacheConfig() ListingCacheConfig {
	cfg := ListingCacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 30*time.Second),
		Prefix:  envStr("CACHE_PREFIX", "booking:list"),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg
}
