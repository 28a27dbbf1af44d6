package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/botdeck/botdeck-go/internal/model"
)

// Limiter 滑动窗口限流器
// Allow 对同一 key 的并发调用必须原子生效。
// 后端不可达时实现方必须返回 Allowed=false（宁可拒绝，不可放行），
// 同时返回错误供调用方记录。
type Limiter interface {
	Allow(ctx context.Context, key string) (model.RateLimitDecision, error)
}

// Key 构造限流 key：bot:{botId}:session:{sessionId}
func Key(botID, sessionID string) string {
	return fmt.Sprintf("bot:%s:session:%s", botID, sessionID)
}

// closedDecision 后端故障时的保守判定
func closedDecision(now time.Time, window time.Duration) model.RateLimitDecision {
	return model.RateLimitDecision{
		Allowed:   false,
		Remaining: 0,
		ResetAt:   now.Add(window).Unix(),
	}
}
