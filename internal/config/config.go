// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Admin         AdminConfig         `mapstructure:"admin"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	TTS           TTSConfig           `mapstructure:"tts"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Mail          MailConfig          `mapstructure:"mail"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`
	TemplatesDir  string `mapstructure:"templates_dir"`
	StaticDir     string `mapstructure:"static_dir"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // mysql 或 postgres
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AdminConfig 管理后台账号，密码以 bcrypt 哈希保存。
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint             string `mapstructure:"endpoint"`
	AccessKeyID          string `mapstructure:"access_key_id"`
	SecretAccessKey      string `mapstructure:"secret_access_key"`
	UseSSL               bool   `mapstructure:"use_ssl"`
	BucketName           string `mapstructure:"bucket_name"`
	PresignExpiryMinutes int    `mapstructure:"presign_expiry_minutes"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"` // openai 或 gemini
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	VoiceModel string              `mapstructure:"voice_model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	TopP      float64 `mapstructure:"top_p"`
	MaxTokens int     `mapstructure:"max_tokens"`
}

// TTSConfig 存储 Google Cloud Text-to-Speech 的配置。
type TTSConfig struct {
	APIKey           string `mapstructure:"api_key"`
	LanguageCode     string `mapstructure:"language_code"`
	AudioEncoding    string `mapstructure:"audio_encoding"`
	MonthlyCharLimit int    `mapstructure:"monthly_char_limit"`
}

// ChatConfig 控制对话窗口与单轮请求的约束。
type ChatConfig struct {
	HistoryWindow    int `mapstructure:"history_window"`
	MaxMessageLength int `mapstructure:"max_message_length"`
	TurnLockSeconds  int `mapstructure:"turn_lock_seconds"`
}

// AudioConfig 控制语音文件的保留策略。
type AudioConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	CleanupCron   string `mapstructure:"cleanup_cron"`
}

// MailConfig 用于发送 TTS 用量告警邮件，SMTPHost 为空时不发送。
type MailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	AlertTo  string `mapstructure:"alert_to"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.templates_dir", "web/templates")
	v.SetDefault("server.static_dir", "web/static")
	v.SetDefault("server.secure_cookies", false)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire_hours", 2)
	v.SetDefault("jwt.refresh_token_expire_days", 7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "convai-tasks")
	v.SetDefault("kafka.group_id", "convai-builder-consumer")

	v.SetDefault("elasticsearch.addresses", "http://localhost:9200")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "chat_messages")

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "convai-audio")
	v.SetDefault("minio.presign_expiry_minutes", 60)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://models.github.ai/inference")
	v.SetDefault("llm.model", "openai/gpt-4o")
	v.SetDefault("llm.voice_model", "openai/gpt-4o-mini")
	v.SetDefault("llm.generation.top_p", 1.0)
	v.SetDefault("llm.generation.max_tokens", 600)

	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.language_code", "en-US")
	v.SetDefault("tts.audio_encoding", "MP3")
	v.SetDefault("tts.monthly_char_limit", 10000)

	v.SetDefault("chat.history_window", 10)
	v.SetDefault("chat.max_message_length", 1000)
	v.SetDefault("chat.turn_lock_seconds", 120)

	v.SetDefault("audio.retention_days", 7)
	v.SetDefault("audio.cleanup_cron", "0 3 * * *")

	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.alert_to", "")
}

// Load 读取 .env 与 YAML 配置文件，环境变量（CONVAI_ 前缀）优先级最高。
func Load(configPath string) (Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CONVAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
