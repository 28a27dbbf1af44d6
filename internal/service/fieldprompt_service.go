package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
)

// FieldPromptService 配置字段生成服务
// 后台编辑机器人时按字段类型生成候选文案。字段类型是封闭枚举，
// 模板映射必须全覆盖，新增枚举值时漏写分支会 panic 暴露而不是静默失配。
type FieldPromptService struct {
	invoker ModelInvoker
	logger  *zap.Logger
}

// NewFieldPromptService 创建配置字段生成服务
func NewFieldPromptService(invoker ModelInvoker, logger *zap.Logger) *FieldPromptService {
	return &FieldPromptService{
		invoker: invoker,
		logger:  logger,
	}
}

// Generate 为指定字段生成文案
// 输出为纯文本，去掉模型可能加上的引号与围栏。
func (s *FieldPromptService) Generate(ctx context.Context, profile *model.BotProfile, kind model.FieldKind) (string, error) {
	systemPrompt := fieldSystemPrompt(kind, profile)

	raw, _, err := s.invoker.Invoke(ctx, systemPrompt, nil, fieldUserPrompt(kind), s.invoker.DefaultModel())
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrModelInvocation, err)
	}

	text := strings.TrimSpace(stripCodeFences(raw))
	text = strings.Trim(text, `"`)
	if text == "" {
		return "", fmt.Errorf("%w: 生成结果为空", model.ErrModelInvocation)
	}
	return text, nil
}

// fieldSystemPrompt 字段类型到系统提示词的全映射
func fieldSystemPrompt(kind model.FieldKind, profile *model.BotProfile) string {
	business := profile.BusinessName
	if business == "" {
		business = "the business"
	}

	base := fmt.Sprintf("You are a copywriter for %s, a business configuring its customer chatbot. Respond with plain text only, no quotes, no markdown.", business)

	switch kind {
	case model.FieldPersona:
		return base + " Write a chatbot persona description: tone of voice, personality and style, 2-3 sentences."
	case model.FieldMission:
		return base + " Write a one-paragraph mission statement describing what the chatbot helps customers with."
	case model.FieldFallback:
		return base + " Write a short, polite fallback message the chatbot will use verbatim when it cannot answer. One sentence."
	case model.FieldBusinessName:
		return base + " Suggest a concise display name for this business suitable for a chat widget header."
	default:
		// 封闭枚举，走到这里说明新增枚举值漏配模板
		panic(fmt.Sprintf("缺少字段模板: %v", kind))
	}
}

// fieldUserPrompt 字段类型到用户侧指令的全映射
func fieldUserPrompt(kind model.FieldKind) string {
	switch kind {
	case model.FieldPersona:
		return "Generate the persona now."
	case model.FieldMission:
		return "Generate the mission now."
	case model.FieldFallback:
		return "Generate the fallback message now."
	case model.FieldBusinessName:
		return "Generate the display name now."
	default:
		panic(fmt.Sprintf("缺少字段指令: %v", kind))
	}
}
