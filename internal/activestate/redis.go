package activestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"duel-arena/internal/duel"

	"github.com/redis/go-redis/v9"
)

// Entries are hashes with fields "v" (version) and "data" (JSON state).
// ARGV[1] is the expected version or -1 for an unconditional write.
const writeLuaScript = `
local cur = redis.call("HGET", KEYS[1], "v")
if not cur then cur = "0" end
if ARGV[1] ~= "-1" and cur ~= ARGV[1] then
    return -1
end
local nextv = tonumber(cur) + 1
redis.call("HSET", KEYS[1], "v", nextv, "data", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return nextv
`

type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	writeScript *redis.Script
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:      client,
		prefix:      prefix,
		ttl:         ttl,
		writeScript: redis.NewScript(writeLuaScript),
	}
}

func (r *RedisStore) key(duelID string) string {
	return fmt.Sprintf("%s:active:%s", r.prefix, duelID)
}

func (r *RedisStore) Get(ctx context.Context, duelID string) (*duel.ActiveState, error) {
	vals, err := r.client.HMGet(ctx, r.key(duelID), "v", "data").Result()
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, ErrNotFound
	}
	version, err := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode active state version: %w", err)
	}
	var st duel.ActiveState
	if err := json.Unmarshal([]byte(fmt.Sprint(vals[1])), &st); err != nil {
		return nil, fmt.Errorf("decode active state: %w", err)
	}
	st.Version = version
	return &st, nil
}

func (r *RedisStore) Set(ctx context.Context, st *duel.ActiveState) error {
	return r.write(ctx, st, -1)
}

func (r *RedisStore) CompareAndSwap(ctx context.Context, st *duel.ActiveState, expect int64) error {
	return r.write(ctx, st, expect)
}

func (r *RedisStore) Delete(ctx context.Context, duelID string) error {
	return r.client.Del(ctx, r.key(duelID)).Err()
}

func (r *RedisStore) write(ctx context.Context, st *duel.ActiveState, expect int64) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	next, err := r.writeScript.Run(ctx, r.client, []string{r.key(st.DuelID)},
		strconv.FormatInt(expect, 10), string(data), r.ttl.Milliseconds()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrVersionMismatch
		}
		return err
	}
	if next < 0 {
		return ErrVersionMismatch
	}
	st.Version = next
	return nil
}
