package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/botdeck/botdeck-go/internal/model"
)

// MemoryLimiter 进程内滑动窗口限流器
// 单实例部署和测试场景使用，窗口语义与 Redis 实现一致。
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryLimiter 创建内存限流器
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string][]time.Time),
	}
}

// WithClock 替换时钟（测试用）
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow 判定当前请求是否放行
func (l *MemoryLimiter) Allow(_ context.Context, key string) (model.RateLimitDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	// 清理窗口外的记录
	kept := l.entries[key][:0]
	for _, at := range l.entries[key] {
		if at.After(windowStart) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= l.limit {
		l.entries[key] = kept
		return model.RateLimitDecision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   kept[0].Add(l.window).Unix(),
		}, nil
	}

	kept = append(kept, now)
	l.entries[key] = kept

	return model.RateLimitDecision{
		Allowed:   true,
		Remaining: l.limit - len(kept),
		ResetAt:   now.Add(l.window).Unix(),
	}, nil
}
