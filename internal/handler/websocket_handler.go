package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
	"github.com/botdeck/botdeck-go/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 控件嵌在任意客户站点里，Origin 无法预先枚举；
		// 鉴权依赖 botId + 会话格式校验与限流
		return true
	},
}

// WebSocketHandler 控件 WebSocket 通道
// 每条入站 CHAT 帧走与 REST 接口完全相同的聊天管线。
type WebSocketHandler struct {
	sessionService *service.SessionService
	chatService    *service.ChatService
	logger         *zap.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(sessionService *service.SessionService, chatService *service.ChatService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessionService: sessionService,
		chatService:    chatService,
		logger:         logger,
	}
}

// HandleWebSocket WebSocket 连接入口
// GET /ws/chat?botId=...&sessionId=...
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	botID := c.Query("botId")
	sessionID := c.Query("sessionId")
	if botID == "" || sessionID == "" {
		c.JSON(400, gin.H{"error": "缺少 botId 或 sessionId"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	h.sessionService.Register(sessionID, botID, conn, c.ClientIP())
	defer h.sessionService.Remove(sessionID)

	h.logger.Info("控件连接建立",
		zap.String("botId", botID),
		zap.String("sessionId", sessionID))

	// 消息循环
	for {
		var msg model.WidgetMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket 读取错误", zap.Error(err))
			}
			break
		}

		h.handleMessage(botID, sessionID, &msg)
	}

	h.logger.Info("控件连接断开", zap.String("sessionId", sessionID))
}

// handleMessage 处理控件消息
func (h *WebSocketHandler) handleMessage(botID, sessionID string, msg *model.WidgetMessage) {
	switch msg.Type {
	case model.WidgetTypeChat:
		// 异步跑管线，结果推回同一连接
		go h.processChat(botID, sessionID, msg)

	case model.WidgetTypeHeartbeat:
		h.sessionService.UpdateHeartbeat(sessionID)
		h.logger.Debug("收到心跳", zap.String("sessionId", sessionID))

	default:
		h.logger.Warn("未知消息类型",
			zap.String("sessionId", sessionID),
			zap.String("type", msg.Type))
	}
}

// processChat 控件消息走聊天管线
func (h *WebSocketHandler) processChat(botID, sessionID string, msg *model.WidgetMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req := &model.ChatTurnRequest{
		BotID:         botID,
		SessionID:     sessionID,
		Message:       msg.Message,
		ChatHistory:   msg.History,
		ModelOverride: msg.Model,
	}

	result, err := h.chatService.HandleTurn(ctx, req)
	if err != nil {
		h.sessionService.Send(sessionID, model.WidgetResponse{
			MessageID: msg.MessageID,
			Type:      model.WidgetTypeError,
			Error:     widgetErrorText(err),
			Timestamp: time.Now(),
		})
		return
	}

	h.sessionService.Send(sessionID, model.WidgetResponse{
		MessageID:          msg.MessageID,
		Type:               model.WidgetTypeAnswer,
		Answer:             result.Answer,
		SuggestedQuestions: result.SuggestedQuestions,
		Timestamp:          time.Now(),
	})
}

// widgetErrorText 控件侧错误文案（与 REST 一致，简短通用）
func widgetErrorText(err error) string {
	var rle *model.RateLimitError
	switch {
	case errors.Is(err, model.ErrGibberish):
		return "无法理解的消息"
	case errors.Is(err, model.ErrInvalidRequest):
		return err.Error()
	case errors.Is(err, model.ErrUnauthorized):
		return "API Key 无效"
	case errors.Is(err, model.ErrBotNotFound):
		return "机器人不存在"
	case errors.As(err, &rle):
		return "请求过于频繁，请稍后重试"
	default:
		return "服务暂时不可用，请稍后重试"
	}
}
