package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/observability/logger"
)

// Facade is the two-tier store. Reads consult the remote tier first and
// fall back to the in-process tier on miss or remote failure; writes go
// through to both. It never surfaces errors: reads report absence,
// writes report false.
type Facade struct {
	remote Tier // nil when running local-only
	local  Tier
	log    *zap.Logger
}

// New builds a facade. remote may be nil.
func New(remote Tier, defaultTTL time.Duration) *Facade {
	return &Facade{
		remote: remote,
		local:  newLocalTier(defaultTTL),
		log:    logger.Named("cache"),
	}
}

// Key builds a cache key: prefix plus a short digest over the ordered
// positional arguments and the lexicographically sorted named arguments.
func Key(prefix string, args []any, kwargs map[string]any) string {
	var b strings.Builder
	for _, a := range args {
		fmt.Fprintf(&b, "%v|", a)
	}
	names := make([]string, 0, len(kwargs))
	for k := range kwargs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, "%s=%v|", k, kwargs[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return prefix + ":" + hex.EncodeToString(sum[:8])
}

// Get decodes the cached value for key into dst. Returns false when the
// key is absent from both tiers.
func (f *Facade) Get(ctx context.Context, key string, dst any) bool {
	if f.remote != nil {
		raw, err := f.remote.Get(ctx, key)
		if err == nil {
			if json.Unmarshal([]byte(raw), dst) == nil {
				return true
			}
			f.log.Warn("remote value undecodable", zap.String("key", key))
		} else if err != ErrNotFound {
			f.log.Warn("remote get failed", zap.String("key", key), zap.Error(err))
		}
	}

	raw, err := f.local.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), dst) == nil
}

// Set stores value under key in both tiers with an absolute expiry of
// now + ttl. Returns false only when the value cannot be serialised.
func (f *Facade) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		f.log.Warn("value not serialisable", zap.String("key", key), zap.Error(err))
		return false
	}
	if f.remote != nil {
		if err := f.remote.Set(ctx, key, string(raw), ttl); err != nil {
			f.log.Warn("remote set failed", zap.String("key", key), zap.Error(err))
		}
	}
	_ = f.local.Set(ctx, key, string(raw), ttl)
	return true
}

// Delete removes key from both tiers.
func (f *Facade) Delete(ctx context.Context, key string) {
	if f.remote != nil {
		if err := f.remote.Delete(ctx, key); err != nil {
			f.log.Warn("remote delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	_ = f.local.Delete(ctx, key)
}

// Clear removes every key matching the glob pattern from both tiers and
// returns how many in-process entries were dropped. "*" flushes the
// in-process map entirely.
func (f *Facade) Clear(ctx context.Context, pattern string) int {
	if f.remote != nil {
		if _, err := f.remote.Clear(ctx, pattern); err != nil {
			f.log.Warn("remote clear failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
	n, _ := f.local.Clear(ctx, pattern)
	return n
}

// Stats reports both tiers.
func (f *Facade) Stats(ctx context.Context) Stats {
	st := Stats{Local: f.local.Stats(ctx)}
	if f.remote != nil {
		remote := f.remote.Stats(ctx)
		st.Remote = &remote
	}
	return st
}

// Healthy runs the sentinel set/get/delete cycle used by the health
// checker.
func (f *Facade) Healthy(ctx context.Context) error {
	const key = "health:sentinel"
	if ok := f.Set(ctx, key, "ok", 10*time.Second); !ok {
		return fmt.Errorf("cache: sentinel set failed")
	}
	var v string
	if ok := f.Get(ctx, key, &v); !ok || v != "ok" {
		return fmt.Errorf("cache: sentinel get failed")
	}
	f.Delete(ctx, key)
	return nil
}
