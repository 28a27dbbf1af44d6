package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/model"
)

var (
	ErrSessionOffline = fmt.Errorf("会话不在线")
)

// SessionService 控件连接管理服务
// 维护在线的控件 WebSocket 会话，心跳检测清理失活连接。
type SessionService struct {
	sessions map[string]*model.WidgetSession // sessionId -> session
	mu       sync.RWMutex                    // 读写锁保护
	logger   *zap.Logger
}

// NewSessionService 创建控件连接管理服务
func NewSessionService(logger *zap.Logger) *SessionService {
	s := &SessionService{
		sessions: make(map[string]*model.WidgetSession),
		logger:   logger,
	}

	// 启动心跳检测
	go s.heartbeatChecker()

	return s
}

// Register 注册控件会话
func (s *SessionService) Register(sessionID, botID string, conn *websocket.Conn, clientIP string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 同一会话重连时关闭旧连接
	if existing, ok := s.sessions[sessionID]; ok {
		s.logger.Info("会话重新连接，关闭旧连接",
			zap.String("sessionId", sessionID))
		existing.Conn.Close()
	}

	s.sessions[sessionID] = &model.WidgetSession{
		SessionID:     sessionID,
		BotID:         botID,
		Conn:          conn,
		ClientIP:      clientIP,
		LastHeartbeat: time.Now(),
		MissedBeats:   0,
	}

	s.logger.Info("控件会话注册成功",
		zap.String("sessionId", sessionID),
		zap.String("botId", botID))
}

// Send 向指定会话推送消息
func (s *SessionService) Send(sessionID string, message interface{}) error {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		s.logger.Warn("会话不在线，消息推送失败", zap.String("sessionId", sessionID))
		return ErrSessionOffline
	}

	if err := session.WriteMessage(message); err != nil {
		s.logger.Error("消息推送失败",
			zap.String("sessionId", sessionID),
			zap.Error(err))
		// 异步清理无效连接
		go s.Remove(sessionID)
		return err
	}

	return nil
}

// UpdateHeartbeat 更新心跳时间
func (s *SessionService) UpdateHeartbeat(sessionID string) bool {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	session.UpdateHeartbeat()
	s.logger.Debug("心跳已更新", zap.String("sessionId", sessionID))
	return true
}

// Remove 移除会话
func (s *SessionService) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		s.logger.Info("控件会话已移除", zap.String("sessionId", sessionID))
	}
}

// OnlineCount 在线会话数
func (s *SessionService) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// heartbeatChecker 心跳检测器
func (s *SessionService) heartbeatChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()

		now := time.Now()
		for sessionID, session := range s.sessions {
			if now.Sub(session.LastBeat()) > 60*time.Second {
				session.IncrementMissedBeats()

				if session.ShouldBeCleaned() {
					s.logger.Info("清理失活会话",
						zap.String("sessionId", sessionID),
						zap.Int("missedBeats", session.Missed()))

					session.Conn.Close()
					delete(s.sessions, sessionID)
				} else {
					s.logger.Warn("会话心跳丢失",
						zap.String("sessionId", sessionID),
						zap.Int("missedBeats", session.Missed()))
				}
			}
		}

		s.mu.Unlock()
	}
}
