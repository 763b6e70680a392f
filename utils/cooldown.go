package utils

import (
	"context"
	"time"
)

// TryAcquire claims key for ttl when nobody holds it. Redis SETNX is preferred;
// without Redis the claim is process-local. Redis errors fail open.
func TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	if rc := GetRedis(); rc != nil {
		ctx2, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		ok, err := rc.SetNX(ctx2, key, "1", ttl).Result()
		if err != nil {
			Sugar.Warnf("cooldown setnx failed key=%s err=%v", key, err)
			return true
		}
		return ok
	}
	return localKeys.setNX(key, ttl)
}

// Release drops a claim taken with TryAcquire.
func Release(ctx context.Context, key string) {
	if rc := GetRedis(); rc != nil {
		ctx2, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		_ = rc.Del(ctx2, key).Err()
		return
	}
	localKeys.del(key)
}

// Remaining reports how long key stays claimed, 0 when free or unknown.
func Remaining(ctx context.Context, key string) time.Duration {
	if rc := GetRedis(); rc != nil {
		ctx2, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		d, err := rc.TTL(ctx2, key).Result()
		if err != nil || d < 0 {
			return 0
		}
		return d
	}
	return localKeys.remaining(key)
}
