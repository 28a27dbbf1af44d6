package store

import (
	"context"
	"fmt"
	"time"

	supabase "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/config"
	"github.com/botdeck/botdeck-go/internal/model"
)

// SupabaseStore 配置库访问层
// 机器人配置与 API Key 为读多写少的数据，读取走进程内 TTL 缓存；
// 聊天日志为只追加写入。
type SupabaseStore struct {
	client   *supabase.Client
	profiles *ttlCache[*model.BotProfile]
	keys     *ttlCache[string]
	logger   *zap.Logger
}

// botProfileRow bot_profiles 表行结构
type botProfileRow struct {
	BotID           string   `json:"bot_id"`
	Persona         string   `json:"persona"`
	Mission         string   `json:"mission"`
	FallbackMessage string   `json:"fallback_message"`
	BusinessName    string   `json:"business_name"`
	AllowedModels   []string `json:"allowed_models"`
}

// apiKeyRow api_keys 表行结构
type apiKeyRow struct {
	Token string `json:"token"`
	BotID string `json:"bot_id"`
}

// chatLogRow chat_logs 表行结构
type chatLogRow struct {
	ID             string `json:"id"`
	BotID          string `json:"bot_id"`
	SessionID      string `json:"session_id"`
	Role           string `json:"role"`
	Message        string `json:"message"`
	History        any    `json:"history,omitempty"`
	TokensUsed     int    `json:"tokens_used,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
	Model          string `json:"model,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// NewSupabaseStore 创建配置库访问层
func NewSupabaseStore(cfg config.SupabaseConfig, logger *zap.Logger) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("缺少 Supabase URL")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("缺少 Supabase API Key")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 Supabase 客户端失败: %w", err)
	}

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second

	return &SupabaseStore{
		client:   client,
		profiles: newTTLCache[*model.BotProfile](ttl),
		keys:     newTTLCache[string](ttl),
		logger:   logger,
	}, nil
}

// GetBotProfile 查询机器人配置，未找到时返回 (nil, nil)
func (s *SupabaseStore) GetBotProfile(ctx context.Context, botID string) (*model.BotProfile, error) {
	if cached, ok := s.profiles.get(botID); ok {
		return cached, nil
	}

	var rows []botProfileRow
	_, err := s.client.From("bot_profiles").
		Select("*", "", false).
		Eq("bot_id", botID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("查询机器人配置失败: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	profile := &model.BotProfile{
		BotID:           row.BotID,
		Persona:         row.Persona,
		Mission:         row.Mission,
		FallbackMessage: row.FallbackMessage,
		BusinessName:    row.BusinessName,
		AllowedModels:   row.AllowedModels,
	}

	s.profiles.set(botID, profile)
	return profile, nil
}

// LookupAPIKey 根据令牌查询其绑定的机器人 ID，未知令牌返回空串
func (s *SupabaseStore) LookupAPIKey(ctx context.Context, token string) (string, error) {
	if cached, ok := s.keys.get(token); ok {
		return cached, nil
	}

	var rows []apiKeyRow
	_, err := s.client.From("api_keys").
		Select("bot_id,token", "", false).
		Eq("token", token).
		ExecuteTo(&rows)
	if err != nil {
		return "", fmt.Errorf("查询 API Key 失败: %w", err)
	}

	if len(rows) == 0 {
		return "", nil
	}

	s.keys.set(token, rows[0].BotID)
	return rows[0].BotID, nil
}

// InsertChatLog 追加一条聊天日志
func (s *SupabaseStore) InsertChatLog(ctx context.Context, entry model.ChatLogEntry) error {
	row := chatLogRow{
		ID:             entry.ID,
		BotID:          entry.BotID,
		SessionID:      entry.SessionID,
		Role:           entry.Role,
		Message:        entry.Message,
		TokensUsed:     entry.TokensUsed,
		ResponseTimeMs: entry.ResponseTimeMs,
		Model:          entry.Model,
		CreatedAt:      entry.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(entry.History) > 0 {
		row.History = entry.History
	}

	_, _, err := s.client.From("chat_logs").
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("写入聊天日志失败: %w", err)
	}
	return nil
}
