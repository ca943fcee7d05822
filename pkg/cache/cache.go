package cache

import "time"

// Cache is a TTL key/value cache used for market status lookups.
type Cache interface {
	// Get returns (value, true) if key is present and not expired.
	Get(key string) (any, bool)

	// Set stores value under key for ttl. It may be dropped under contention.
	Set(key string, value any, ttl time.Duration) bool

	Delete(key string)

	Clear()

	Close()
}
