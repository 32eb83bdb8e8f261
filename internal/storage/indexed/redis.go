package indexed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// appendScript performs an atomic index check + write: it rejects an
// append whose idx is not past the stream's last index, the same way
// the teacher's Lua scripts replace a check-then-write round trip with a
// single atomic one.
var appendScript = redis.NewScript(`
local last = tonumber(redis.call('HGET', KEYS[1], 'last') or '0')
local idx = tonumber(ARGV[1])
if last ~= 0 and idx <= last then
    return redis.error_reply('stale index')
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[1], 'last', ARGV[1])
local first = redis.call('HGET', KEYS[1], 'first')
if not first or first == false then
    redis.call('HSET', KEYS[1], 'first', ARGV[1])
end
return 1
`)

// RedisStorage implements Storage against go-redis, using one hash per
// stream for entries (field = index, value = bytes) and a sibling meta hash
// for first/last bookkeeping. Grounded on internal/store/redis.go's
// pipeline + Lua-script idioms.
type RedisStorage struct {
	client   *redis.Client
	replicas int
}

func NewRedisStorage(addr, password string, db int, replicas int) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	if replicas <= 0 {
		replicas = 1
	}
	return &RedisStorage{client: client, replicas: replicas}, nil
}

func (r *RedisStorage) dataKey(ns Namespace, key string) string { return fmt.Sprintf("wx:%s:d:%s", ns, key) }
func (r *RedisStorage) metaKey(ns Namespace, key string) string { return fmt.Sprintf("wx:%s:m:%s", ns, key) }

func (r *RedisStorage) Append(ctx context.Context, ns Namespace, key string, idx uint64, value []byte) error {
	meta, data := r.metaKey(ns, key), r.dataKey(ns, key)
	return appendScript.Run(ctx, r.client, []string{meta, data}, idx, value).Err()
}

func (r *RedisStorage) Read(ctx context.Context, ns Namespace, key string, from, to uint64) ([][]byte, error) {
	fields := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		fields = append(fields, strconv.FormatUint(i, 10))
	}
	vals, err := r.client.HMGet(ctx, r.dataKey(ns, key), fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, []byte(s))
	}
	return out, nil
}

func (r *RedisStorage) metaUint(ctx context.Context, ns Namespace, key, field string) (uint64, error) {
	v, err := r.client.HGet(ctx, r.metaKey(ns, key), field).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func (r *RedisStorage) FirstIndex(ctx context.Context, ns Namespace, key string) (uint64, error) {
	return r.metaUint(ctx, ns, key, "first")
}

func (r *RedisStorage) LastIndex(ctx context.Context, ns Namespace, key string) (uint64, error) {
	return r.metaUint(ctx, ns, key, "last")
}

func (r *RedisStorage) Length(ctx context.Context, ns Namespace, key string) (uint64, error) {
	n, err := r.client.HLen(ctx, r.dataKey(ns, key)).Result()
	return uint64(n), err
}

func (r *RedisStorage) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	n, err := r.Length(ctx, ns, key)
	return n > 0, err
}

func (r *RedisStorage) Delete(ctx context.Context, ns Namespace, key string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.dataKey(ns, key))
	pipe.Del(ctx, r.metaKey(ns, key))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) DropPrefix(ctx context.Context, ns Namespace, key string, upTo uint64) error {
	fields, err := r.client.HKeys(ctx, r.dataKey(ns, key)).Result()
	if err != nil {
		return err
	}
	var toDrop []string
	var newFirst uint64
	first := ^uint64(0)
	for _, f := range fields {
		idx, perr := strconv.ParseUint(f, 10, 64)
		if perr != nil {
			continue
		}
		if idx <= upTo {
			toDrop = append(toDrop, f)
			continue
		}
		if idx < first {
			first = idx
		}
	}
	if len(toDrop) > 0 {
		if err := r.client.HDel(ctx, r.dataKey(ns, key), toDrop...).Err(); err != nil {
			return err
		}
	}
	remaining, err := r.Length(ctx, ns, key)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return r.client.Del(ctx, r.metaKey(ns, key)).Err()
	}
	newFirst = first
	return r.client.HSet(ctx, r.metaKey(ns, key), "first", newFirst).Err()
}

func (r *RedisStorage) Scan(ctx context.Context, ns Namespace, pattern string, cursor uint64, count int) (uint64, []string, error) {
	match := fmt.Sprintf("wx:%s:d:*%s*", ns, pattern)
	keys, next, err := r.client.Scan(ctx, cursor, match, int64(count)).Result()
	if err != nil {
		return 0, nil, err
	}
	prefix := fmt.Sprintf("wx:%s:d:", ns)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return next, out, nil
}

func (r *RedisStorage) WaitForReplicas(ctx context.Context, ns Namespace, key string, n int, timeout time.Duration) (int, error) {
	clamped := n
	if clamped > r.replicas {
		clamped = r.replicas
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	observed, err := r.client.Wait(cctx, clamped, timeout).Result()
	if err != nil {
		return 0, nil
	}
	if int(observed) > clamped {
		observed = int64(clamped)
	}
	return int(observed), nil
}

func (r *RedisStorage) NumberOfReplicas() int { return r.replicas }

func (r *RedisStorage) Close() error { return r.client.Close() }

var _ Storage = (*RedisStorage)(nil)
