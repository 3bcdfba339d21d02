package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const acquireLuaScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
    redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
    return 1
end
return 0
`

const renewLuaScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
    return 1
end
return 0
`

const releaseLuaScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    redis.call("DEL", KEYS[1])
    return 1
end
return 0
`

// RedisLocker stores leases as plain keys holding the owner token. Renew and
// release compare the token server-side so a stale owner cannot touch a lease
// that expired and was re-acquired.
type RedisLocker struct {
	client        redis.UniversalClient
	prefix        string
	acquireScript *redis.Script
	renewScript   *redis.Script
	releaseScript *redis.Script
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{
		client:        client,
		prefix:        prefix,
		acquireScript: redis.NewScript(acquireLuaScript),
		renewScript:   redis.NewScript(renewLuaScript),
		releaseScript: redis.NewScript(releaseLuaScript),
	}
}

func (r *RedisLocker) redisKey(key string) string {
	return fmt.Sprintf("%s:lock:%s", r.prefix, key)
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{Key: key, Token: newToken(), TTL: ttl}
	ok, err := r.acquireScript.Run(ctx, r.client, []string{r.redisKey(key)}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, ErrBusy
	}
	return lease, nil
}

func (r *RedisLocker) Renew(ctx context.Context, lease *Lease) error {
	ok, err := r.renewScript.Run(ctx, r.client, []string{r.redisKey(lease.Key)}, lease.Token, lease.TTL.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *RedisLocker) Release(ctx context.Context, lease *Lease) error {
	ok, err := r.releaseScript.Run(ctx, r.client, []string{r.redisKey(lease.Key)}, lease.Token).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}
