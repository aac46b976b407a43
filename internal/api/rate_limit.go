package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// uploadLimiter 以固定时间窗口统计每个客户端的上传次数，计数存放在 Redis 中，
// 多个 API 实例共享同一份额度。
type uploadLimiter struct {
	counter redisRateCounter
	limit   int
	window  time.Duration
	now     func() time.Time
}

func newUploadLimiter(counter redisRateCounter, limit int) *uploadLimiter {
	return &uploadLimiter{
		counter: counter,
		limit:   limit,
		window:  time.Minute,
		now:     time.Now,
	}
}

// allow 记录一次上传并返回是否仍在额度内。
func (l *uploadLimiter) allow(ctx context.Context, client string) (bool, error) {
	bucket := l.now().UTC().Truncate(l.window).Unix()
	key := fmt.Sprintf("upload_rate:%s:%d", client, bucket)

	count, err := l.counter.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %q: %w", key, err)
	}
	if count == 1 {
		// 过期失败只会让计数多留一段时间，不影响本次判断。
		_ = l.counter.Expire(ctx, key, l.window).Err()
	}
	return count <= int64(l.limit), nil
}
