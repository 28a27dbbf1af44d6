package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/botdeck/botdeck-go/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient 创建 Redis 客户端
// 限流计数器依赖该连接，启动时必须验证可达，避免带病上线。
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return client, nil
}
