package utils

import (
	"context"
	"time"
)

const blacklistPrefix = "jwt:blacklist:"

// BlacklistToken revokes a token until its natural expiry.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, blacklistPrefix+token, "1", ttl).Err(); err == nil {
			return
		}
		Sugar.Warn("token blacklist write to redis failed, keeping it in memory")
	}
	localKeys.set(blacklistPrefix+token, ttl)
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(token string) bool {
	if localKeys.remaining(blacklistPrefix+token) > 0 {
		return true
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, blacklistPrefix+token).Result()
		if err != nil {
			// fail-open to avoid locking everyone out while Redis is down
			return false
		}
		return n > 0
	}
	return false
}
