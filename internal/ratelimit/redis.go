package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
)

// RedisLimiter Redis ZSET 滑动窗口限流器
// 每次请求以纳秒时间戳为 score 写入 ZSET，窗口外成员先清理再计数。
// 清理、写入、计数在同一个事务管道里完成，每个并发请求读到的计数
// 都包含自身，同一 key 的并发调用不会互相放行超额请求。
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow 判定当前请求是否放行
// Redis 不可达时视为不放行（保守拒绝），错误由调用方记录。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (model.RateLimitDecision, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)

	// 成员用 uuid 去重，避免同一纳秒内并发请求互相覆盖
	member := uuid.New().String()

	// 先写后数：每个并发请求的计数都包含自身，超额由事后 ZRem 回收
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, l.window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return closedDecision(now, l.window), fmt.Errorf("限流计数失败: %w", err)
	}

	count := int(countCmd.Val())
	if count > l.limit {
		// 被拒绝的请求不占窗口配额
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			l.logger.Warn("限流记录回收失败", zap.String("key", key), zap.Error(err))
		}
		return model.RateLimitDecision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   l.resetAt(oldestCmd.Val(), now),
		}, nil
	}

	return model.RateLimitDecision{
		Allowed:   true,
		Remaining: l.limit - count,
		ResetAt:   now.Add(l.window).Unix(),
	}, nil
}

// resetAt 由窗口内最早的请求推算重置时间
func (l *RedisLimiter) resetAt(oldest []redis.Z, now time.Time) int64 {
	if len(oldest) == 0 {
		return now.Add(l.window).Unix()
	}
	oldestAt := time.Unix(0, int64(oldest[0].Score))
	return oldestAt.Add(l.window).Unix()
}
