package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// promoteScript atomically moves due ids from the delayed set to the wait list.
var promoteScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// stalledScript requeues active ids whose lease expired. An id with no lease
// was claimed by a worker that died before leasing it; it gets a fresh lease
// so a live claimer has time to record its own.
var stalledScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local stalled = {}
for _, id in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
  local lease_end = redis.call('ZSCORE', KEYS[2], id)
  if not lease_end then
    redis.call('ZADD', KEYS[2], 'NX', now + tonumber(ARGV[2]), id)
  elseif tonumber(lease_end) <= now then
    redis.call('LREM', KEYS[1], 1, id)
    redis.call('ZREM', KEYS[2], id)
    redis.call('LPUSH', KEYS[3], id)
    table.insert(stalled, id)
  end
end
return stalled
`)

const promoteBatch = 100

// RedisBackend keeps queue state in Redis:
//
//	bz:queue:<q>:job:<id>   hash {job, progress}
//	bz:queue:<q>:wait       list (LPUSH in, BLMOVE out)
//	bz:queue:<q>:active     list
//	bz:queue:<q>:leases     sorted set of active ids scored by lease end (ms)
//	bz:queue:<q>:delayed    sorted set scored by ready time (ms)
//	bz:queue:<q>:completed  list of retained ids
//	bz:queue:<q>:failed     list of retained ids
type RedisBackend struct {
	client goredis.UniversalClient
}

func NewRedisBackend(client goredis.UniversalClient) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisBackend{client: client}, nil
}

func jobKey(queue, id string) string    { return redis.BuildKey("queue", queue, "job", id) }
func listKey(queue, name string) string { return redis.BuildKey("queue", queue, name) }

func (b *RedisBackend) Save(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.client.HSet(ctx, jobKey(job.Queue, job.ID), "job", payload, "progress", job.Progress).Err()
}

func (b *RedisBackend) Load(ctx context.Context, queue, id string) (*Job, error) {
	fields, err := b.client.HGetAll(ctx, jobKey(queue, id)).Result()
	if err != nil {
		return nil, err
	}
	raw, ok := fields["job"]
	if !ok {
		return nil, ErrJobNotFound
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if p, err := strconv.Atoi(fields["progress"]); err == nil {
		job.Progress = p
	}
	return &job, nil
}

func (b *RedisBackend) SetProgress(ctx context.Context, queue, id string, progress int) error {
	return b.client.HSet(ctx, jobKey(queue, id), "progress", progress).Err()
}

func (b *RedisBackend) Push(ctx context.Context, queue, id string) error {
	return b.client.LPush(ctx, listKey(queue, "wait"), id).Err()
}

func (b *RedisBackend) Schedule(ctx context.Context, queue, id string, at time.Time) error {
	return b.client.ZAdd(ctx, listKey(queue, "delayed"), goredis.Z{
		Score:  float64(at.UnixMilli()),
		Member: id,
	}).Err()
}

func (b *RedisBackend) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	keys := []string{listKey(queue, "delayed"), listKey(queue, "wait")}
	n, err := promoteScript.Run(ctx, b.client, keys, now.UnixMilli(), promoteBatch).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (b *RedisBackend) Claim(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	id, err := b.client.BLMove(ctx, listKey(queue, "wait"), listKey(queue, "active"), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return id, err
}

func (b *RedisBackend) Lease(ctx context.Context, queue, id string, until time.Time) error {
	return b.client.ZAdd(ctx, listKey(queue, "leases"), goredis.Z{
		Score:  float64(until.UnixMilli()),
		Member: id,
	}).Err()
}

func (b *RedisBackend) RequeueStalled(ctx context.Context, queue string, now time.Time, lease time.Duration) ([]string, error) {
	keys := []string{listKey(queue, "active"), listKey(queue, "leases"), listKey(queue, "wait")}
	ids, err := stalledScript.Run(ctx, b.client, keys, now.UnixMilli(), lease.Milliseconds()).StringSlice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return ids, err
}

func (b *RedisBackend) Ack(ctx context.Context, queue, id string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, listKey(queue, "active"), 1, id)
		pipe.ZRem(ctx, listKey(queue, "leases"), id)
		return nil
	})
	return err
}

func (b *RedisBackend) Retain(ctx context.Context, queue string, status Status, id string, keep int) error {
	key := listKey(queue, string(status))
	var evicted *goredis.StringSliceCmd
	_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, id)
		evicted = pipe.LRange(ctx, key, int64(keep), -1)
		pipe.LTrim(ctx, key, 0, int64(keep-1))
		return nil
	})
	if err != nil {
		return err
	}
	stale := evicted.Val()
	if len(stale) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stale))
	for _, old := range stale {
		keys = append(keys, jobKey(queue, old))
	}
	return b.client.Del(ctx, keys...).Err()
}
