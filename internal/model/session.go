package model

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WidgetSession 一条控件 WebSocket 连接
// 以会话 ID 为主键，一个会话同一时刻只保留一条连接。
type WidgetSession struct {
	SessionID     string
	BotID         string
	Conn          *websocket.Conn
	ClientIP      string
	LastHeartbeat time.Time
	MissedBeats   int
	mu            sync.RWMutex // 保护会话字段
}

// UpdateHeartbeat 更新心跳时间
func (s *WidgetSession) UpdateHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = time.Now()
	s.MissedBeats = 0
}

// LastBeat 最近一次心跳时间
// 心跳检测器与 UpdateHeartbeat 并发，读取必须走会话锁。
func (s *WidgetSession) LastBeat() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastHeartbeat
}

// Missed 当前丢失心跳次数
func (s *WidgetSession) Missed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MissedBeats
}

// IncrementMissedBeats 增加丢失心跳次数
func (s *WidgetSession) IncrementMissedBeats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MissedBeats++
}

// ShouldBeCleaned 判断是否应该清理
func (s *WidgetSession) ShouldBeCleaned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MissedBeats >= 3
}

// WriteMessage 向 WebSocket 写入消息（线程安全）
func (s *WidgetSession) WriteMessage(message interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteJSON(message)
}
