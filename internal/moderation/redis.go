package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript 在一个有序集合上实现与 SlidingWindow 相同的语义：
// 先删除窗口外的成员，计数已达上限则拒绝且不写入。
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
if redis.call('ZCARD', key) >= limit then
    return 0
end
redis.call('ZADD', key, now_ms, member)
redis.call('PEXPIRE', key, window_ms)
return 1
`)

// RedisWindow 把窗口存放在 Redis 中，多个进程共享同一份计数。
// Redis 出错时放行（返回 true 和错误），由调用方记录日志。
type RedisWindow struct {
	rdb    *redis.Client
	clock  clock.Clock
	prefix string
	limit  int
	window time.Duration
}

func NewRedisWindow(rdb *redis.Client, c clock.Clock, limit int, window time.Duration) *RedisWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisWindow{rdb: rdb, clock: c, prefix: "neochat:rl", limit: limit, window: window}
}

func (w *RedisWindow) Allow(ctx context.Context, sender string) (bool, error) {
	now := w.clock.Now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	res, err := slidingScript.Run(ctx, w.rdb, []string{w.prefix + ":" + sender},
		now, w.window.Milliseconds(), w.limit, member).Int()
	if err != nil {
		return true, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}

// NewRedisClient 连接 Redis 并做一次 Ping，失败时返回错误，调用方可退回进程内限流。
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
