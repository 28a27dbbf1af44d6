package service

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/config"
)

// Embedder 文本向量化客户端
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	// 切分后单个知识块的最大字符数
	maxChunkChars = 1000
)

// KnowledgeService 知识库服务
// 每个机器人一个向量集合，入库切块向量化，检索返回 Top-K 片段。
// 检索是软依赖：任何失败都降级为空上下文，绝不中断聊天。
type KnowledgeService struct {
	db              *chromem.DB
	embedder        Embedder
	topK            int
	snippetMaxChars int
	minScore        float32
	logger          *zap.Logger
}

// NewKnowledgeService 创建知识库服务
// persistPath 非空时使用持久化索引，否则使用内存索引。
func NewKnowledgeService(cfg config.RAGConfig, embedder Embedder, logger *zap.Logger) (*KnowledgeService, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("创建向量库失败: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &KnowledgeService{
		db:              db,
		embedder:        embedder,
		topK:            cfg.TopK,
		snippetMaxChars: cfg.SnippetMaxChars,
		minScore:        cfg.MinScore,
		logger:          logger,
	}, nil
}

// Retrieve 为一次聊天检索相关知识片段
// 最多返回 topK 条，每条截断到 snippetMaxChars 字符。
// 任何错误（网络、空索引、集合缺失）都吞掉并返回空结果。
func (s *KnowledgeService) Retrieve(ctx context.Context, botID, query string) []string {
	collection := s.db.GetCollection(s.collectionName(botID), s.embeddingFunc())
	if collection == nil {
		s.logger.Debug("机器人尚无知识索引", zap.String("botId", botID))
		return nil
	}

	count := collection.Count()
	if count == 0 {
		return nil
	}

	n := s.topK
	if n > count {
		n = count
	}

	results, err := collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		s.logger.Warn("知识检索失败，降级为空上下文",
			zap.String("botId", botID),
			zap.Error(err))
		return nil
	}

	snippets := make([]string, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.minScore {
			continue
		}
		snippets = append(snippets, TruncateSnippet(r.Content, s.snippetMaxChars))
	}

	s.logger.Debug("知识检索完成",
		zap.String("botId", botID),
		zap.Int("results", len(snippets)))

	return snippets
}

// Ingest 将机器人的配置文本重建为知识索引
// 尽力而为的离线操作，不在聊天热路径上。
func (s *KnowledgeService) Ingest(ctx context.Context, botID string, texts []string) (int, error) {
	name := s.collectionName(botID)

	var chunks []string
	for _, text := range texts {
		chunks = append(chunks, splitIntoChunks(text, maxChunkChars)...)
	}

	if len(chunks) == 0 {
		// 空入库等于清空索引
		if err := s.db.DeleteCollection(name); err != nil {
			return 0, fmt.Errorf("清理旧索引失败: %w", err)
		}
		return 0, nil
	}

	// 向量化先于任何删除：中途失败时旧索引原样保留，检索不受影响
	embeddings, err := s.embedder.GetEmbeddings(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("知识向量化失败: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("向量数量不匹配: %d != %d", len(embeddings), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        uuid.New().String(),
			Content:   chunk,
			Embedding: embeddings[i],
		}
	}

	// 全量重建：丢弃旧集合，写入带预计算向量的新文档
	if err := s.db.DeleteCollection(name); err != nil {
		return 0, fmt.Errorf("清理旧索引失败: %w", err)
	}

	collection, err := s.db.GetOrCreateCollection(name, map[string]string{"botId": botID}, s.embeddingFunc())
	if err != nil {
		return 0, fmt.Errorf("创建知识索引失败: %w", err)
	}

	if err := collection.AddDocuments(ctx, docs, 2); err != nil {
		return 0, fmt.Errorf("写入知识索引失败: %w", err)
	}

	s.logger.Info("知识索引已重建",
		zap.String("botId", botID),
		zap.Int("chunks", len(docs)))

	return len(docs), nil
}

// Count 机器人知识块数量
func (s *KnowledgeService) Count(botID string) int {
	collection := s.db.GetCollection(s.collectionName(botID), s.embeddingFunc())
	if collection == nil {
		return 0
	}
	return collection.Count()
}

// collectionName 机器人对应的集合名
func (s *KnowledgeService) collectionName(botID string) string {
	return "bot-" + botID
}

// embeddingFunc 适配向量化客户端到 chromem 的接口
func (s *KnowledgeService) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.GetEmbedding(ctx, text)
	}
}

// TruncateSnippet 截断片段到最大字符数（按 rune 计）
func TruncateSnippet(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

// splitIntoChunks 按段落切分文本，超长段落再按长度硬切
func splitIntoChunks(text string, maxChars int) []string {
	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)
		for len(runes) > maxChars {
			chunks = append(chunks, string(runes[:maxChars]))
			runes = runes[maxChars:]
		}
		if len(runes) > 0 {
			chunks = append(chunks, string(runes))
		}
	}
	return chunks
}
