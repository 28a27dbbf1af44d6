package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
)

// ChatLogStore 聊天日志追加存储
type ChatLogStore interface {
	InsertChatLog(ctx context.Context, entry model.ChatLogEntry) error
}

// ChatLogService 聊天日志服务
// 「日志失败绝不影响用户请求」的不变量收敛在这里：
// 异步写入、吞掉所有错误（含 panic），只留诊断日志。
type ChatLogService struct {
	store  ChatLogStore
	logger *zap.Logger
}

// NewChatLogService 创建聊天日志服务
func NewChatLogService(store ChatLogStore, logger *zap.Logger) *ChatLogService {
	return &ChatLogService{
		store:  store,
		logger: logger,
	}
}

// Append 异步追加一条日志（发出后不等待结果）
func (s *ChatLogService) Append(entry model.ChatLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Warn("聊天日志写入 panic", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.store.InsertChatLog(ctx, entry); err != nil {
			s.logger.Warn("聊天日志写入失败",
				zap.String("botId", entry.BotID),
				zap.String("sessionId", entry.SessionID),
				zap.String("role", entry.Role),
				zap.Error(err))
		}
	}()
}
