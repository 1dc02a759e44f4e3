package bucket

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/platform/middleware/requesttime"
)

// RedisBucketStore keeps one sorted set per key, scored by hit time in
// nanoseconds. Trim, count, add and expire run as one Lua script, so a hit
// over the limit is never written and concurrent callers never see it.
type RedisBucketStore struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

// slidingWindowScript: KEYS[1] bucket; ARGV now_ns, cutoff_ns, member, limit, window_ms.
// Returns {allowed, count, oldest member}.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[4]) then
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0)
return {allowed, count, oldest[1] or ''}
`)

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	if err := validate(key, limit); err != nil {
		return nil, err
	}

	now := requesttime.Now(ctx)
	cutoff := now.Add(-limit.Window)
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	windowMS := max(limit.Window.Milliseconds(), 1)

	reply, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixNano(), cutoff.UnixNano(), member, limit.Requests, windowMS).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit script: %w", err)
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("redis rate limit script: unexpected reply %v", reply)
	}
	allowed, _ := reply[0].(int64)
	count, _ := reply[1].(int64)
	oldest, _ := reply[2].(string)

	resetAt := now.Add(limit.Window)
	if t, ok := hitTime(oldest); ok {
		resetAt = t.Add(limit.Window)
	}
	if allowed != 1 {
		return models.NewResult(false, limit.Requests, 0, resetAt, now), nil
	}
	return models.NewResult(true, limit.Requests, limit.Requests-int(count), resetAt, now), nil
}

// hitTime reads the exact hit time from a member; the float score only
// carries about a quarter microsecond of precision.
func hitTime(member string) (time.Time, bool) {
	nanos, _, found := strings.Cut(member, "-")
	if !found {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis reset rate limit: %w", err)
	}
	return nil
}
