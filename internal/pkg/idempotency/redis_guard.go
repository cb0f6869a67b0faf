package idempotency

import (
	"context"
	"fmt"
	"time"

	"inventory-core/internal/pkg/redis"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const releaseScriptName = "idempotency_release"

// RedisGuard 用 SET NX 抢占 key，值是本实例的 owner token，
// 释放时用 Lua 比较后删除，避免误删别的实例抢到的 key。
// 进程内不保存任何 key，过期完全交给 Redis 的 TTL。
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) (*RedisGuard, error) {
	if err := client.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, fmt.Errorf("failed to load idempotency release script: %w", err)
	}
	if prefix == "" {
		prefix = "idem"
	}
	return &RedisGuard{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		owner:  uuid.NewString(),
	}, nil
}

func (g *RedisGuard) redisKey(key string) string {
	// hash tag 保证集群模式下同一个 key 落在同一个 slot
	return fmt.Sprintf("%s:{%s}", g.prefix, key)
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.GetClient().SetNX(ctx, g.redisKey(key), g.owner, g.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "acquire idempotency key %s", key)
	}
	return ok, nil
}

// Release 只删除本实例持有的 key；key 已过期或属于别的实例时什么也不做。
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if _, err := g.client.RunScript(ctx, releaseScriptName, []string{g.redisKey(key)}, g.owner); err != nil {
		return errors.Wrapf(err, "release idempotency key %s", key)
	}
	return nil
}

var releaseScript = `
-- KEYS[1]: 幂等 key
-- ARGV[1]: 抢占时写入的 owner token
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`
