package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/pixelwall/internal/domain"
)

// admitScript atomically admits an identity when it has no live cooldown key.
// Returns 0 on admission, otherwise the remaining cooldown in milliseconds.
// A key without expiry can only come from outside this script and is reset.
var admitScript = goredis.NewScript(`
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if ok then
  return 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 0
end
return ttl
`)

// CooldownGate is the shared cooldown store for multi-instance deployments.
// Each admission is a key whose TTL is the cooldown window, so expired records
// vanish on their own.
type CooldownGate struct {
	rdb    goredis.Scripter
	window time.Duration
}

var _ domain.CooldownGate = (*CooldownGate)(nil)

func NewCooldownGate(rdb goredis.Scripter, window time.Duration) *CooldownGate {
	return &CooldownGate{rdb: rdb, window: window}
}

// TryAdmit stores now as the key's value for inspection only; the Redis server
// clock measures the window so that every instance agrees on it.
func (g *CooldownGate) TryAdmit(ctx context.Context, identity string, now time.Time) (domain.Admission, error) {
	remainingMs, err := admitScript.Run(ctx, g.rdb,
		[]string{cooldownKey(identity)},
		now.UnixMilli(), g.window.Milliseconds(),
	).Int64()
	if err != nil {
		return domain.Admission{}, fmt.Errorf("cooldown script failed: %w", err)
	}

	if remainingMs == 0 {
		return domain.Admit(), nil
	}
	return domain.Reject(time.Duration(remainingMs) * time.Millisecond), nil
}

func cooldownKey(identity string) string {
	return "cooldown:" + identity
}
