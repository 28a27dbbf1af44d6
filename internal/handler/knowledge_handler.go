package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
	"github.com/botdeck/botdeck-go/internal/service"
)

// KnowledgeHandler 知识库管理处理器
// 入库是离线的尽力而为操作，不在聊天热路径上。
type KnowledgeHandler struct {
	knowledgeService *service.KnowledgeService
	profiles         service.ProfileStore
	logger           *zap.Logger
}

// NewKnowledgeHandler 创建知识库管理处理器
func NewKnowledgeHandler(knowledgeService *service.KnowledgeService, profiles service.ProfileStore, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		knowledgeService: knowledgeService,
		profiles:         profiles,
		logger:           logger,
	}
}

// ingestRequestBody 入库请求体
type ingestRequestBody struct {
	Texts []string `json:"texts" binding:"required"`
}

// Ingest 重建机器人的知识索引
// POST /api/bots/:botId/knowledge
func (h *KnowledgeHandler) Ingest(c *gin.Context) {
	botID := c.Param("botId")

	var body ingestRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": "请求体格式无效"})
		return
	}

	profile, err := h.profiles.GetBotProfile(c.Request.Context(), botID)
	if err != nil {
		h.logger.Error("读取机器人配置失败", zap.String("botId", botID), zap.Error(err))
		c.JSON(500, gin.H{"error": "服务暂时不可用"})
		return
	}
	if profile == nil {
		c.JSON(404, gin.H{"error": "机器人不存在"})
		return
	}

	// 配置文本默认纳入索引
	texts := body.Texts
	if profile.Persona != "" {
		texts = append(texts, profile.Persona)
	}
	if profile.Mission != "" {
		texts = append(texts, profile.Mission)
	}

	chunks, err := h.knowledgeService.Ingest(c.Request.Context(), botID, texts)
	if err != nil {
		h.logger.Error("知识索引重建失败", zap.String("botId", botID), zap.Error(err))
		c.JSON(500, gin.H{"error": "知识索引重建失败"})
		return
	}

	c.JSON(200, gin.H{
		"status": "success",
		"chunks": chunks,
	})
}

// Stats 知识库统计
// GET /api/bots/:botId/knowledge/stats
func (h *KnowledgeHandler) Stats(c *gin.Context) {
	botID := c.Param("botId")
	c.JSON(200, gin.H{
		"botId":  botID,
		"chunks": h.knowledgeService.Count(botID),
	})
}

// fieldGenerateRequestBody 字段生成请求体
type fieldGenerateRequestBody struct {
	Field string `json:"field" binding:"required"`
}

// FieldHandler 配置字段生成处理器
type FieldHandler struct {
	fieldService *service.FieldPromptService
	profiles     service.ProfileStore
	logger       *zap.Logger
}

// NewFieldHandler 创建配置字段生成处理器
func NewFieldHandler(fieldService *service.FieldPromptService, profiles service.ProfileStore, logger *zap.Logger) *FieldHandler {
	return &FieldHandler{
		fieldService: fieldService,
		profiles:     profiles,
		logger:       logger,
	}
}

// Generate 为指定配置字段生成候选文案
// POST /api/bots/:botId/generate-field
func (h *FieldHandler) Generate(c *gin.Context) {
	botID := c.Param("botId")

	var body fieldGenerateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": "请求体格式无效"})
		return
	}

	kind, err := model.ParseFieldKind(body.Field)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.profiles.GetBotProfile(c.Request.Context(), botID)
	if err != nil {
		h.logger.Error("读取机器人配置失败", zap.String("botId", botID), zap.Error(err))
		c.JSON(500, gin.H{"error": "服务暂时不可用"})
		return
	}
	if profile == nil {
		c.JSON(404, gin.H{"error": "机器人不存在"})
		return
	}

	text, err := h.fieldService.Generate(c.Request.Context(), profile, kind)
	if err != nil {
		h.logger.Error("字段生成失败",
			zap.String("botId", botID),
			zap.String("field", kind.String()),
			zap.Error(err))
		c.JSON(500, gin.H{"error": "生成失败，请稍后重试"})
		return
	}

	c.JSON(200, gin.H{
		"field": kind.String(),
		"text":  text,
	})
}
