// 命令 reselect-voices 为所有已存在的机器人同步重新选择 TTS 声音。
package main

import (
	"context"
	"convai-builder-go/internal/config"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/database"
	"convai-builder-go/pkg/llm"
	"convai-builder-go/pkg/log"
	"flag"
	"fmt"
	"os"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	config.Init(*configPath)
	cfg := config.Conf
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	database.AutoMigrate(&model.Bot{})

	ctx := context.Background()
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		log.Fatal("初始化 LLM 客户端失败", err)
	}

	botRepo := repository.NewBotRepository(database.DB)
	voiceService := service.NewVoiceService(llmClient, cfg.LLM.VoiceModel)
	// 同步重选只依赖机器人仓库与声音服务
	adminService := service.NewAdminService(botRepo, nil, voiceService, nil, nil)

	changes, err := adminService.ReselectVoices(ctx)
	updated := 0
	for _, change := range changes {
		fmt.Println(change.String())
		if change.Changed {
			updated++
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nSummary: Updated %d of %d bots\n", updated, len(changes))
}
