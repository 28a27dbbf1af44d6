package client

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/config"
)

const defaultEmbeddingModel = "text-embedding-v3"

// EmbeddingClient 文本向量化客户端（OpenAI 兼容接口）
type EmbeddingClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewEmbeddingClient 创建 Embedding 客户端
func NewEmbeddingClient(cfg config.LLMConfig, logger *zap.Logger) (*EmbeddingClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("缺少 LLM API Key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	} else {
		clientCfg.BaseURL = defaultBaseURL
	}

	embModel := cfg.EmbeddingModel
	if embModel == "" {
		embModel = defaultEmbeddingModel
	}

	return &EmbeddingClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  embModel,
		logger: logger,
	}, nil
}

// GetEmbedding 获取单个文本的向量
func (c *EmbeddingClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.GetEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("向量化结果为空")
	}
	return embeddings[0], nil
}

// GetEmbeddings 批量获取文本向量
func (c *EmbeddingClient) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("向量化失败: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("向量化结果数量不符: 期望 %d 实际 %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		result[item.Index] = item.Embedding
	}
	return result, nil
}
