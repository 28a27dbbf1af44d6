package service

import (
	"fmt"
	"strings"

	"github.com/botdeck/botdeck-go/internal/model"
)

// DefaultFallbackMessage 机器人未配置兜底话术时使用的通用文案
const DefaultFallbackMessage = "I'm sorry, I can only help with questions about our business. Please contact our support team for anything else."

// 寒暄类固定回复，写入提示词作为行为契约
const (
	ackReply      = "You're welcome"
	farewellReply = "See you later!"
)

// PromptBuilder 系统提示词构造器
// 提示词是约束模型幻觉的最大杠杆，段落顺序即优先级顺序：
// 身份绑定 → 知识边界 → 兜底契约 → 寒暄契约 → 输出格式 → 长度预算。
type PromptBuilder struct {
	maxTokens int
}

// NewPromptBuilder 创建提示词构造器
// maxTokens 与模型调用端的输出上限保持一致，写入提示词作为长度预算提示。
func NewPromptBuilder(maxTokens int) *PromptBuilder {
	return &PromptBuilder{maxTokens: maxTokens}
}

// Build 生成系统提示词
func (b *PromptBuilder) Build(profile *model.BotProfile, ragContext []string) string {
	fallback := FallbackMessage(profile)
	business := profile.BusinessName
	if business == "" {
		business = "this business"
	}

	var sb strings.Builder

	// 1. 身份绑定：只能以配置的业务身份应答
	sb.WriteString(fmt.Sprintf("You are the official assistant of %s. ", business))
	sb.WriteString("You must always speak as this business. Never present yourself as a generic AI, a language model, or anything other than the assistant of this business.\n\n")

	if profile.Persona != "" {
		sb.WriteString("Your persona:\n")
		sb.WriteString(profile.Persona)
		sb.WriteString("\n\n")
	}
	if profile.Mission != "" {
		sb.WriteString("Your mission:\n")
		sb.WriteString(profile.Mission)
		sb.WriteString("\n\n")
	}

	// 2. 知识边界：配置 + 当前对话 + 检索片段之外的知识一律视为不存在
	sb.WriteString("KNOWLEDGE BOUNDARY: Your knowledge is strictly limited to: (a) the configuration above, (b) the current conversation, and (c) the reference snippets below if any. ")
	sb.WriteString("Anything outside these sources does not exist for you. Never answer from general world knowledge.\n\n")

	if len(ragContext) > 0 {
		sb.WriteString("Reference snippets:\n")
		for i, snippet := range ragContext {
			sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, snippet))
		}
		sb.WriteString("\n")
	}

	// 3. 兜底契约：不确定时原样输出兜底话术，禁止改写
	sb.WriteString("FALLBACK RULE: When you are not certain the answer is covered by your knowledge, you must reply with this exact JSON:\n")
	sb.WriteString(fmt.Sprintf("{\"answer\": %q, \"suggestedQuestions\": []}\n", fallback))
	sb.WriteString("The fallback text must be reproduced verbatim, character for character. Never paraphrase it.\n\n")

	// 4. 寒暄契约：致谢/道别用固定话术，其余闲聊一律走兜底
	sb.WriteString(fmt.Sprintf("CONVERSATION RULE: If the user only says thanks, reply with the answer %q. If the user says goodbye, reply with the answer %q. ", ackReply, farewellReply))
	sb.WriteString("For any other small talk, use the fallback rule above.\n\n")

	// 5. 输出格式契约：整个响应必须是单个 JSON 对象
	sb.WriteString("OUTPUT FORMAT: Your entire response must be exactly one JSON object of the form ")
	sb.WriteString(`{"answer": string, "suggestedQuestions": string[]}. `)
	sb.WriteString("No markdown fences, no text before or after the JSON, no JSON encoded inside the answer string. ")
	sb.WriteString("suggestedQuestions contains at most 3 follow-up questions the user might ask next, each ending with \"?\". Use an empty array when there is nothing useful to suggest.\n\n")

	// 6. 长度预算
	sb.WriteString(fmt.Sprintf("Keep the answer concise, well under %d tokens.", b.maxTokens))

	return sb.String()
}

// FallbackMessage 取机器人配置的兜底话术，未配置时使用通用默认值
func FallbackMessage(profile *model.BotProfile) string {
	if profile != nil && profile.FallbackMessage != "" {
		return profile.FallbackMessage
	}
	return DefaultFallbackMessage
}
