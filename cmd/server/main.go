// Package main 是应用程序的入口点。
package main

import (
	"context"
	"convai-builder-go/internal/config"
	"convai-builder-go/internal/handler"
	"convai-builder-go/internal/middleware"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/pipeline"
	"convai-builder-go/internal/repository"
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/database"
	"convai-builder-go/pkg/es"
	"convai-builder-go/pkg/kafka"
	"convai-builder-go/pkg/llm"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/mail"
	"convai-builder-go/pkg/storage"
	"convai-builder-go/pkg/token"
	"convai-builder-go/pkg/tts"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("CONVAI_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 后台任务随 rootCtx 一起退出
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 初始化数据库、Redis 与外部存储
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	database.AutoMigrate(&model.Bot{}, &model.Conversation{}, &model.Message{}, &model.TTSUsage{})
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	producer := kafka.InitProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化外部协作方
	llmClient, err := llm.NewClient(rootCtx, cfg.LLM)
	if err != nil {
		log.Fatal("初始化 LLM 客户端失败", err)
	}
	ttsClient, err := tts.NewClient(rootCtx, cfg.TTS)
	if err != nil {
		log.Fatal("初始化 TTS 客户端失败", err)
	}
	if cfg.TTS.APIKey == "" {
		log.Warnf("未配置 tts.api_key，回复将不带语音")
	}
	mailer := mail.NewMailer(cfg.Mail)
	audioStore := storage.NewAudioStore(storage.MinioClient, cfg.MinIO)

	// 5. 初始化 Repository
	botRepo := repository.NewBotRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	usageRepo := repository.NewUsageRepository(database.DB)
	historyCache := repository.NewHistoryCache(database.RDB)
	turnLock := repository.NewTurnLock(database.RDB)

	// 6. 初始化 Service (依赖注入)
	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" {
		jwtSecret = token.GenerateRandomString(32)
		log.Warnf("未配置 jwt.secret，已生成临时密钥，重启后 token 失效")
	}
	jwtManager := token.NewJWTManager(jwtSecret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)

	voiceService := service.NewVoiceService(llmClient, cfg.LLM.VoiceModel)
	usageService := service.NewUsageService(usageRepo, mailer, cfg.TTS.MonthlyCharLimit)
	speechService := service.NewSpeechService(ttsClient, audioStore, usageService)
	botService := service.NewBotService(botRepo, historyCache, voiceService, audioStore, producer)
	conversationService := service.NewConversationService(botRepo, conversationRepo, messageRepo, historyCache, audioStore, producer)
	chatService := service.NewChatService(service.ChatDeps{
		BotRepo:          botRepo,
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		HistoryCache:     historyCache,
		TurnLock:         turnLock,
		LLMClient:        llmClient,
		SpeechService:    speechService,
		AudioStore:       audioStore,
		Publisher:        producer,
	}, service.ChatOptions{
		HistoryWindow:    cfg.Chat.HistoryWindow,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		MaxTokens:        cfg.LLM.Generation.MaxTokens,
		TurnLockTTL:      time.Duration(cfg.Chat.TurnLockSeconds) * time.Second,
	})
	searchService := service.NewSearchService(func(ctx context.Context, query, botID string, size int) ([]model.MessageSearchHit, int64, error) {
		return es.SearchMessages(ctx, cfg.Elasticsearch.IndexName, query, botID, size)
	})
	authService := service.NewAuthService(cfg.Admin, jwtManager)
	adminService := service.NewAdminService(botRepo, conversationService, voiceService, usageService, producer)
	janitor := service.NewAudioJanitor(audioStore, messageRepo, cfg.Audio.RetentionDays)

	// 7. 启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(voiceService, botRepo, conversationRepo, messageRepo, pipeline.ESIndex{IndexName: cfg.Elasticsearch.IndexName})
	go kafka.StartConsumer(rootCtx, cfg.Kafka, processor)

	// 8. 定时清理过期语音
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Audio.CleanupCron, func() {
		if _, err := janitor.Sweep(rootCtx); err != nil {
			log.Error("定时清理语音文件失败", err)
		}
	}); err != nil {
		log.Fatal("无效的 audio.cleanup_cron", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.SetFuncMap(handler.TemplateFuncs())
	r.LoadHTMLGlob(filepath.Join(cfg.Server.TemplatesDir, "*.html"))
	r.Static("/static", cfg.Server.StaticDir)

	// 10. 注册路由
	secure := cfg.Server.SecureCookies
	botHandler := handler.NewBotHandler(botService, secure)
	chatHandler := handler.NewChatHandler(chatService, conversationService, secure)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/", botHandler.List)
	r.GET("/create", botHandler.NewForm)
	r.POST("/create", botHandler.Create)
	r.GET("/edit/:id", botHandler.EditForm)
	r.POST("/edit/:id", botHandler.Update)
	r.GET("/delete/:id", botHandler.ConfirmDelete)
	r.POST("/delete/:id", botHandler.Delete)

	chat := r.Group("/chat/:botID")
	{
		chat.GET("", chatHandler.Page)
		chat.POST("/send", chatHandler.Send)
		chat.POST("/clear", chatHandler.Clear)
		chat.GET("/ws", chatHandler.Stream)
	}

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			authHandler := handler.NewAuthHandler(authService)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
		{
			adminHandler := handler.NewAdminHandler(adminService, janitor)
			admin.GET("/usage", adminHandler.Usage)
			admin.POST("/bots/reselect-voices", adminHandler.ReselectVoices)
			admin.POST("/audio/cleanup", adminHandler.CleanupAudio)
			admin.GET("/bots/:id/conversations", handler.NewConversationHandler(conversationService).ListByBot)
			admin.GET("/messages/search", handler.NewSearchHandler(searchService).SearchMessages)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 先停止后台任务，再关闭 HTTP 服务器
	stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
