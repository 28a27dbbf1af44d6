package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
	"github.com/botdeck/botdeck-go/internal/ratelimit"
)

const (
	// 接受的历史条目上限，超出即拒绝
	maxHistoryEntries = 20
	// 实际送入提示词的最近历史条数（上下文窗口预算）
	promptHistoryEntries = 10
)

// sessionIDPattern 会话 ID 格式：字母数字、下划线、连字符，8~64 位
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ProfileStore 机器人配置查询
type ProfileStore interface {
	// GetBotProfile 未找到时返回 (nil, nil)
	GetBotProfile(ctx context.Context, botID string) (*model.BotProfile, error)
}

// APIKeyStore API Key 查询
type APIKeyStore interface {
	// LookupAPIKey 返回令牌绑定的机器人 ID，未知令牌返回空串
	LookupAPIKey(ctx context.Context, token string) (string, error)
}

// ContextRetriever 知识检索（软依赖，实现方必须吞掉一切错误）
type ContextRetriever interface {
	Retrieve(ctx context.Context, botID, query string) []string
}

// ModelInvoker 模型调用
type ModelInvoker interface {
	Invoke(ctx context.Context, systemPrompt string, history []model.HistoryEntry, userMessage, modelName string) (string, model.ModelUsage, error)
	DefaultModel() string
}

// ChatService 聊天管线
// 单轮请求的完整流程：校验 → 鉴权 → 取配置 → 垃圾过滤 → 限流 →
// 知识检索 → 寒暄短路 → 提示词 → 模型调用 → 输出修复 → 日志。
// 每轮请求无共享可变状态，协调全部委托给外部计数器与追加日志。
type ChatService struct {
	profiles  ProfileStore
	keys      APIKeyStore
	limiter   ratelimit.Limiter
	retriever ContextRetriever
	invoker   ModelInvoker
	chatLog   *ChatLogService
	prompt    *PromptBuilder
	logger    *zap.Logger
}

// NewChatService 创建聊天管线
func NewChatService(
	profiles ProfileStore,
	keys APIKeyStore,
	limiter ratelimit.Limiter,
	retriever ContextRetriever,
	invoker ModelInvoker,
	chatLog *ChatLogService,
	prompt *PromptBuilder,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		profiles:  profiles,
		keys:      keys,
		limiter:   limiter,
		retriever: retriever,
		invoker:   invoker,
		chatLog:   chatLog,
		prompt:    prompt,
		logger:    logger,
	}
}

// HandleTurn 处理一轮聊天
// 终止性错误以 model 包的哨兵错误返回，由 handler 映射为 HTTP 状态码。
func (s *ChatService) HandleTurn(ctx context.Context, req *model.ChatTurnRequest) (*model.ChatTurnResult, error) {
	// 1. 请求校验
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// 2. API Key 校验：存在时必须绑定到当前机器人，先于一切处理
	if req.APIKeyToken != "" {
		boundBotID, err := s.keys.LookupAPIKey(ctx, req.APIKeyToken)
		if err != nil {
			// 凭据库故障按保守策略拒绝
			s.logger.Error("API Key 查询失败", zap.Error(err))
			return nil, model.ErrUnauthorized
		}
		if boundBotID == "" || boundBotID != req.BotID {
			return nil, model.ErrUnauthorized
		}
	}

	// 3. 机器人配置
	profile, err := s.profiles.GetBotProfile(ctx, req.BotID)
	if err != nil {
		return nil, fmt.Errorf("读取机器人配置失败: %w", err)
	}
	if profile == nil {
		return nil, model.ErrBotNotFound
	}

	// 4. 垃圾输入过滤：命中后不再产生任何模型开销，但用户消息仍尽力记录
	if IsGibberish(req.Message) {
		s.logUserMessage(req, "")
		return nil, model.ErrGibberish
	}

	// 5. 限流：计数器后端故障时 Allow 返回不放行（保守拒绝）
	decision, err := s.limiter.Allow(ctx, ratelimit.Key(req.BotID, req.SessionID))
	if err != nil {
		s.logger.Warn("限流后端异常，保守拒绝",
			zap.String("botId", req.BotID),
			zap.Error(err))
	}
	if !decision.Allowed {
		return nil, &model.RateLimitError{Decision: decision}
	}

	// 6. 知识检索（软依赖，失败即空上下文）
	snippets := s.safeRetrieve(ctx, req.BotID, req.Message)

	// 7. 寒暄短路：无知识上下文且是明显的客套话时，兜底话术原样返回
	if len(snippets) == 0 && IsObviouslyOutOfScope(req.Message) {
		result := &model.ChatTurnResult{
			Answer:             FallbackMessage(profile),
			SuggestedQuestions: []string{},
		}
		s.logTurn(req, result.Answer, "", model.ModelUsage{}, 0)
		return result, nil
	}

	// 8. 提示词与模型调用
	systemPrompt := s.prompt.Build(profile, snippets)
	modelName := s.resolveModel(profile, req.ModelOverride)
	history := trimHistory(req.ChatHistory)

	start := time.Now()
	raw, usage, err := s.invoker.Invoke(ctx, systemPrompt, history, req.Message, modelName)
	if err != nil {
		// 超时与后端错误视为硬失败；用户消息仍尽力记录
		s.logUserMessage(req, modelName)
		return nil, fmt.Errorf("%w: %v", model.ErrModelInvocation, err)
	}

	// 9. 输出修复：无法恢复结构时统一替换为兜底话术
	result := ParseModelOutput(raw, FallbackMessage(profile))

	// 10. 每轮两条日志：先用户后助手
	s.logTurn(req, result.Answer, modelName, usage, time.Since(start).Milliseconds())

	return &result, nil
}

// safeRetrieve 知识检索的故障隔离边界
// 检索实现自身已吞错误，这里再兜一层 panic，保证检索永远不会中断聊天。
func (s *ChatService) safeRetrieve(ctx context.Context, botID, query string) (snippets []string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("知识检索 panic，降级为空上下文",
				zap.String("botId", botID),
				zap.Any("panic", r))
			snippets = nil
		}
	}()
	return s.retriever.Retrieve(ctx, botID, query)
}

// resolveModel 模型选择
// 仅允许配置白名单内的覆盖；无效覆盖静默退回默认模型，从不拒绝请求。
func (s *ChatService) resolveModel(profile *model.BotProfile, override string) string {
	if override == "" {
		return s.invoker.DefaultModel()
	}
	for _, allowed := range profile.AllowedModels {
		if allowed == override {
			return override
		}
	}
	s.logger.Debug("模型覆盖不在白名单，退回默认模型",
		zap.String("botId", profile.BotID),
		zap.String("override", override))
	return s.invoker.DefaultModel()
}

// validateRequest 请求形状校验
func validateRequest(req *model.ChatTurnRequest) error {
	if req.BotID == "" {
		return model.InvalidRequestError("缺少机器人 ID")
	}
	if req.Message == "" {
		return model.InvalidRequestError("消息不能为空")
	}
	if !sessionIDPattern.MatchString(req.SessionID) {
		return model.InvalidRequestError("会话 ID 格式无效")
	}
	if len(req.ChatHistory) > maxHistoryEntries {
		return model.InvalidRequestError("历史记录过长")
	}
	for _, entry := range req.ChatHistory {
		if entry.Role != "user" && entry.Role != "assistant" {
			return model.InvalidRequestError("历史记录角色无效")
		}
	}
	return nil
}

// trimHistory 保留最近的若干条历史（上下文窗口预算，静默丢弃更早的）
func trimHistory(history []model.HistoryEntry) []model.HistoryEntry {
	if len(history) <= promptHistoryEntries {
		return history
	}
	return history[len(history)-promptHistoryEntries:]
}

// logTurn 记录一轮完整对话：用户消息与助手回复各一条
func (s *ChatService) logTurn(req *model.ChatTurnRequest, answer, modelName string, usage model.ModelUsage, elapsedMs int64) {
	s.logUserMessage(req, modelName)
	s.chatLog.Append(model.ChatLogEntry{
		BotID:          req.BotID,
		SessionID:      req.SessionID,
		Role:           "assistant",
		Message:        answer,
		TokensUsed:     usage.TotalTokens(),
		ResponseTimeMs: elapsedMs,
		Model:          modelName,
	})
}

// logUserMessage 记录用户侧消息（带历史快照）
func (s *ChatService) logUserMessage(req *model.ChatTurnRequest, modelName string) {
	s.chatLog.Append(model.ChatLogEntry{
		BotID:     req.BotID,
		SessionID: req.SessionID,
		Role:      "user",
		Message:   req.Message,
		History:   req.ChatHistory,
		Model:     modelName,
	})
}
