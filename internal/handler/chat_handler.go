package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
	"github.com/botdeck/botdeck-go/internal/service"
)

// ChatHandler 聊天接口处理器
type ChatHandler struct {
	chatService *service.ChatService
	logger      *zap.Logger
}

// NewChatHandler 创建聊天接口处理器
func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// chatRequestBody 聊天请求体
type chatRequestBody struct {
	SessionID string               `json:"sessionId"`
	Message   string               `json:"message"`
	History   []model.HistoryEntry `json:"history"`
	Model     string               `json:"model"`
}

// Chat 处理一轮聊天
// POST /api/bots/:botId/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var body chatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": "请求体格式无效"})
		return
	}

	req := &model.ChatTurnRequest{
		BotID:         c.Param("botId"),
		SessionID:     body.SessionID,
		Message:       body.Message,
		ChatHistory:   body.History,
		ModelOverride: body.Model,
		APIKeyToken:   bearerToken(c.GetHeader("Authorization")),
	}

	result, err := h.chatService.HandleTurn(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, req, err)
		return
	}

	c.JSON(200, result)
}

// writeError 错误分类映射为 HTTP 状态码
// 对外只暴露简短的通用文案，不泄露任何底层错误细节。
func (h *ChatHandler) writeError(c *gin.Context, req *model.ChatTurnRequest, err error) {
	var rle *model.RateLimitError

	switch {
	case errors.Is(err, model.ErrGibberish):
		c.JSON(400, gin.H{"error": "无法理解的消息"})

	case errors.Is(err, model.ErrInvalidRequest):
		c.JSON(400, gin.H{"error": err.Error()})

	case errors.Is(err, model.ErrUnauthorized):
		c.JSON(401, gin.H{"error": "API Key 无效"})

	case errors.Is(err, model.ErrBotNotFound):
		c.JSON(404, gin.H{"error": "机器人不存在"})

	case errors.As(err, &rle):
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rle.Decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(rle.Decision.ResetAt, 10))
		c.JSON(429, gin.H{
			"error":     "请求过于频繁，请稍后重试",
			"remaining": rle.Decision.Remaining,
			"resetAt":   rle.Decision.ResetAt,
		})

	default:
		h.logger.Error("聊天处理失败",
			zap.String("botId", req.BotID),
			zap.String("sessionId", req.SessionID),
			zap.Error(err))
		c.JSON(500, gin.H{"error": "服务暂时不可用，请稍后重试"})
	}
}

// bearerToken 从 Authorization 头提取 Bearer 令牌
func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return ""
}
