package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	LLM       LLMConfig       `yaml:"llm"`
	RAG       RAGConfig       `yaml:"rag"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SupabaseConfig 配置库（机器人配置 / API Key / 聊天日志）
type SupabaseConfig struct {
	URL             string `yaml:"url"`
	APIKey          string `yaml:"apiKey"`
	CacheTTLSeconds int    `yaml:"cacheTtlSeconds"`
}

// LLMConfig 大模型配置（OpenAI 兼容接口）
type LLMConfig struct {
	APIKey         string `yaml:"apiKey"`
	BaseURL        string `yaml:"baseUrl"`
	Model          string `yaml:"model"` // 默认模型
	EmbeddingModel string `yaml:"embeddingModel"`
	MaxTokens      int    `yaml:"maxTokens"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// RAGConfig 知识检索配置
type RAGConfig struct {
	TopK            int     `yaml:"topK"`
	SnippetMaxChars int     `yaml:"snippetMaxChars"`
	MinScore        float32 `yaml:"minScore"`
	PersistPath     string  `yaml:"persistPath"` // 为空时使用内存索引
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Limit         int `yaml:"limit"`
	WindowSeconds int `yaml:"windowSeconds"`
}

// Window 返回滑动窗口时长
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyDefaults()

	// 密钥优先取环境变量，便于部署时不落盘
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SUPABASE_API_KEY"); v != "" {
		cfg.Supabase.APIKey = v
	}

	return &cfg, nil
}

// applyDefaults 填充缺省值
func (c *Config) applyDefaults() {
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 50
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 3
	}
	if c.RAG.SnippetMaxChars == 0 {
		c.RAG.SnippetMaxChars = 1500
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 20
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Supabase.CacheTTLSeconds == 0 {
		c.Supabase.CacheTTLSeconds = 300
	}
}
