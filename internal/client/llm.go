package client

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/config"
	"github.com/botdeck/botdeck-go/internal/model"
)

const defaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// LLMClient 大模型客户端（OpenAI 兼容接口）
// 进程启动时由组装根构造一次并注入，不做全局缓存。
type LLMClient struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
	timeout      time.Duration
	logger       *zap.Logger
}

// NewLLMClient 创建大模型客户端
func NewLLMClient(cfg config.LLMConfig, logger *zap.Logger) (*LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("缺少 LLM API Key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	} else {
		clientCfg.BaseURL = defaultBaseURL
	}

	return &LLMClient{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.Model,
		maxTokens:    cfg.MaxTokens,
		timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:       logger,
	}, nil
}

// DefaultModel 默认模型名
func (c *LLMClient) DefaultModel() string {
	return c.defaultModel
}

// Invoke 单轮模型调用
// 消息顺序固定为 [system, ...history, user]；低温度偏向确定性输出；
// 请求 JSON 约束生成作为结构化输出的第一道防线；
// 超时通过 context 取消，超时即失败，不接受半截输出。
func (c *LLMClient) Invoke(ctx context.Context, systemPrompt string, history []model.HistoryEntry, userMessage, modelName string) (string, model.ModelUsage, error) {
	if modelName == "" {
		modelName = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, entry := range history {
		role := openai.ChatMessageRoleUser
		if entry.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: entry.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("模型调用失败",
			zap.String("model", modelName),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", model.ModelUsage{}, fmt.Errorf("模型调用失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", model.ModelUsage{}, fmt.Errorf("模型未返回任何结果")
	}

	usage := model.ModelUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	c.logger.Debug("模型调用完成",
		zap.String("model", modelName),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, usage, nil
}
