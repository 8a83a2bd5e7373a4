package resultcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures region construction.
type Options struct {
	// RedisAddr, when non-empty, is dialed as the shared region. An
	// empty address skips Redis entirely and goes straight to the
	// in-process map.
	RedisAddr string
	Namespace string
	MaxItems  int
}

// New attempts to build a Redis-backed region and falls back to an
// in-process map if the region cannot be created or pinged, per
// spec.md §4.1/§7 ("Cache region creation failed... degrade to
// process-local map; continue"). The returned Cache is always usable;
// callers cannot and must not distinguish which implementation they
// got.
func New(ctx context.Context, opts Options, log *zap.SugaredLogger) Cache {
	if opts.RedisAddr == "" {
		log.Infow("resultcache: no redis address configured, using in-process map")
		return NewMemoryCache(opts.MaxItems)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.RedisAddr,
		DialTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cache := NewRedisCache(client, opts.Namespace, opts.MaxItems)
	if err := cache.Ping(pingCtx); err != nil {
		log.Warnw("resultcache: region unreachable, degrading to in-process map",
			"addr", opts.RedisAddr, "error", err)
		_ = client.Close()
		return NewMemoryCache(opts.MaxItems)
	}

	log.Infow("resultcache: using shared region", "addr", opts.RedisAddr, "namespace", opts.Namespace)
	return cache
}
