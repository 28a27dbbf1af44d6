package model

import (
	"errors"
	"fmt"
	"time"
)

// 聊天管线的错误分类（按 HTTP 语义划分）
var (
	ErrInvalidRequest  = errors.New("请求参数无效")
	ErrGibberish       = errors.New("无法理解的消息")
	ErrUnauthorized    = errors.New("API Key 无效")
	ErrBotNotFound     = errors.New("机器人不存在")
	ErrModelInvocation = errors.New("模型调用失败")
)

// RateLimitError 限流错误，携带重试提示信息
type RateLimitError struct {
	Decision RateLimitDecision
}

func (e *RateLimitError) Error() string {
	return "请求过于频繁"
}

// BotProfile 机器人配置快照（只读，由外部配置库维护）
type BotProfile struct {
	BotID           string   `json:"botId"`
	Persona         string   `json:"persona"`
	Mission         string   `json:"mission"`
	FallbackMessage string   `json:"fallbackMessage"`
	BusinessName    string   `json:"businessName"`
	AllowedModels   []string `json:"allowedModels"`
}

// HistoryEntry 对话历史条目
type HistoryEntry struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// ChatTurnRequest 单轮聊天请求
type ChatTurnRequest struct {
	BotID         string         `json:"botId"`
	SessionID     string         `json:"sessionId"`
	Message       string         `json:"message"`
	ChatHistory   []HistoryEntry `json:"history"`
	APIKeyToken   string         `json:"-"` // 来自 Authorization 头，可选
	ModelOverride string         `json:"model,omitempty"`
}

// ChatTurnResult 单轮聊天结果（调用方唯一依赖的契约）
type ChatTurnResult struct {
	Answer             string   `json:"answer"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
}

// RateLimitDecision 限流判定结果
type RateLimitDecision struct {
	Allowed   bool  `json:"allowed"`
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"resetAt"` // 窗口重置时间（epoch 秒）
}

// ChatLogEntry 聊天日志条目（外部追加存储，尽力而为）
type ChatLogEntry struct {
	ID             string         `json:"id"`
	BotID          string         `json:"botId"`
	SessionID      string         `json:"sessionId"`
	Role           string         `json:"role"` // user, assistant
	Message        string         `json:"message"`
	History        []HistoryEntry `json:"history,omitempty"`
	TokensUsed     int            `json:"tokensUsed,omitempty"`
	ResponseTimeMs int64          `json:"responseTimeMs,omitempty"`
	Model          string         `json:"model,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ModelUsage 一次模型调用的用量统计
type ModelUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens 总 token 数
func (u ModelUsage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// InvalidRequestError 构造带说明的请求错误
func InvalidRequestError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}
