package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/botdeck/botdeck-go/internal/client"
	"github.com/botdeck/botdeck-go/internal/config"
	"github.com/botdeck/botdeck-go/internal/handler"
	"github.com/botdeck/botdeck-go/internal/middleware"
	"github.com/botdeck/botdeck-go/internal/ratelimit"
	"github.com/botdeck/botdeck-go/internal/service"
	"github.com/botdeck/botdeck-go/internal/store"
	"github.com/botdeck/botdeck-go/pkg/logger"
	"github.com/botdeck/botdeck-go/pkg/redis"
)

func main() {
	// 本地开发时从 .env 读取密钥，文件不存在则忽略
	_ = godotenv.Load()

	configPath := "configs/chat-api.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("chat-api 服务启动中...")

	// 初始化 Redis（限流后端）
	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}
	defer redisClient.Close()

	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window(), zapLogger)

	// 初始化 Supabase 存储
	supabaseStore, err := store.NewSupabaseStore(cfg.Supabase, zapLogger)
	if err != nil {
		log.Fatalf("初始化 Supabase 失败: %v", err)
	}

	// 初始化 LLM 与 Embedding 客户端
	llmClient, err := client.NewLLMClient(cfg.LLM, zapLogger)
	if err != nil {
		log.Fatalf("初始化 LLM 客户端失败: %v", err)
	}
	embeddingClient, err := client.NewEmbeddingClient(cfg.LLM, zapLogger)
	if err != nil {
		log.Fatalf("初始化 Embedding 客户端失败: %v", err)
	}

	// 初始化知识库服务
	knowledgeService, err := service.NewKnowledgeService(cfg.RAG, embeddingClient, zapLogger)
	if err != nil {
		log.Fatalf("初始化知识库失败: %v", err)
	}

	// 组装聊天管线
	chatLogService := service.NewChatLogService(supabaseStore, zapLogger)
	promptBuilder := service.NewPromptBuilder(cfg.LLM.MaxTokens)
	chatService := service.NewChatService(
		supabaseStore,
		supabaseStore,
		limiter,
		knowledgeService,
		llmClient,
		chatLogService,
		promptBuilder,
		zapLogger,
	)

	fieldService := service.NewFieldPromptService(llmClient, zapLogger)
	sessionService := service.NewSessionService(zapLogger)

	chatHandler := handler.NewChatHandler(chatService, zapLogger)
	knowledgeHandler := handler.NewKnowledgeHandler(knowledgeService, supabaseStore, zapLogger)
	fieldHandler := handler.NewFieldHandler(fieldService, supabaseStore, zapLogger)
	wsHandler := handler.NewWebSocketHandler(sessionService, chatService, zapLogger)

	r := gin.Default()
	r.Use(middleware.CORS())

	// 聊天主链路
	r.POST("/api/bots/:botId/chat", chatHandler.Chat)

	// 知识库管理
	r.POST("/api/bots/:botId/knowledge", knowledgeHandler.Ingest)
	r.GET("/api/bots/:botId/knowledge/stats", knowledgeHandler.Stats)

	// 机器人字段生成
	r.POST("/api/bots/:botId/generate-field", fieldHandler.Generate)

	// 挂件 WebSocket 通道
	r.GET("/ws/chat", wsHandler.HandleWebSocket)

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP", "service": cfg.Server.Name})
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zapLogger.Info("chat-api 服务启动成功",
		zap.Int("port", cfg.Server.Port),
		zap.Int("rate_limit", cfg.RateLimit.Limit))

	if err := r.Run(addr); err != nil {
		zapLogger.Fatal("服务启动失败", zap.Error(err))
	}
}
