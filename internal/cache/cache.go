// Package cache provides the two-tier key/value facade: a remote redis
// tier fronted by an in-process map. Remote failures are swallowed and
// logged; the in-process tier never fails, so callers get at least
// process-lifetime durability.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by tiers when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Tier is one storage level. Values are opaque serialised blobs.
type Tier interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key matching the glob pattern and returns the
	// number of removed entries.
	Clear(ctx context.Context, pattern string) (int, error)
	Stats(ctx context.Context) TierStats
}

// TierStats is a point-in-time view of one tier.
type TierStats struct {
	Driver    string `json:"driver"`
	Keys      int64  `json:"keys"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Available bool   `json:"available"`
}

// Stats aggregates both tiers for the monitoring endpoint.
type Stats struct {
	Remote *TierStats `json:"remote,omitempty"`
	Local  TierStats  `json:"local"`
}
