package model

import "time"

// 控件通道的消息类型
const (
	WidgetTypeChat      = "CHAT"
	WidgetTypeHeartbeat = "HEARTBEAT"
	WidgetTypeAnswer    = "ANSWER"
	WidgetTypeError     = "ERROR"
)

// WidgetMessage 嵌入控件经 WebSocket 发来的消息
type WidgetMessage struct {
	MessageID string         `json:"messageId"`
	Type      string         `json:"type"` // CHAT, HEARTBEAT
	Message   string         `json:"message,omitempty"`
	History   []HistoryEntry `json:"history,omitempty"`
	Model     string         `json:"model,omitempty"`
}

// WidgetResponse 推送给控件的响应
type WidgetResponse struct {
	MessageID          string    `json:"messageId,omitempty"`
	Type               string    `json:"type"` // ANSWER, ERROR
	Answer             string    `json:"answer,omitempty"`
	SuggestedQuestions []string  `json:"suggestedQuestions,omitempty"`
	Error              string    `json:"error,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}
