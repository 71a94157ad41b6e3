package config

import (
	"log"
	"os"
	"time"

	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

// config/config.go
type Config struct {
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	DBDriver      string `env:"DB_DRIVER"`
	DSN           string `env:"DSN"`
	Log           logger.LogConfig
	EncryptionKey string `env:"FIELD_ENCRYPTION_KEY"`
	SessionSecret string `env:"SESSION_SECRET"`
	JWTSecret     string `env:"JWT_SECRET"`
	APIPrefix     string `env:"API_PREFIX"`
	AdminPrefix   string `env:"ADMIN_PREFIX"`

	CampLanguage string `env:"CAMP_LANGUAGE"`
	TimeZone     string `env:"TIME_ZONE"`

	RateLimit    string `env:"RATE_LIMIT"`
	APIRateLimit string `env:"API_RATE_LIMIT"`

	CacheType    string `env:"CACHE_TYPE"`
	RedisURL     string `env:"REDIS_URL"`
	GatewayRelay bool   `env:"GATEWAY_RELAY"`

	Translator       TranslatorConfig
	Vision           VisionConfig
	Storage          StorageConfig
	EnrichWorkers    int `env:"ENRICH_WORKERS"`
	EnrichQueue      int `env:"ENRICH_QUEUE"`
	Surveillance     SurveillanceConfig
	MetricsEnabled   bool `env:"METRICS_ENABLED"`
	StaticMediaServe bool `env:"MEDIA_SERVE"`
	Backup           BackupConfig
}

type TranslatorConfig struct {
	Provider string        `env:"TRANSLATOR_PROVIDER"` // azure|openai
	Key      string        `env:"AZURE_TRANSLATOR_KEY"`
	Endpoint string        `env:"AZURE_TRANSLATOR_ENDPOINT"`
	Region   string        `env:"AZURE_TRANSLATOR_REGION"`
	Timeout  time.Duration `env:"TRANSLATE_TIMEOUT"`
}

type VisionConfig struct {
	AzureKey        string        `env:"AZURE_OPENAI_KEY"`
	AzureEndpoint   string        `env:"AZURE_OPENAI_ENDPOINT"`
	AzureDeployment string        `env:"AZURE_OPENAI_DEPLOYMENT"`
	AzureAPIVersion string        `env:"AZURE_OPENAI_API_VERSION"`
	OpenAIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"`
	OpenAIModel     string        `env:"OPENAI_MODEL"`
	Timeout         time.Duration `env:"VISION_TIMEOUT"`
}

type StorageConfig struct {
	Driver    string `env:"STORAGE_DRIVER"` // local|minio
	MediaRoot string `env:"MEDIA_ROOT"`
	MediaURL  string `env:"MEDIA_URL"`
}

type SurveillanceConfig struct {
	Schedule  string        `env:"SURVEILLANCE_SCHEDULE"`
	Window    time.Duration `env:"SURVEILLANCE_WINDOW"`
	Threshold int           `env:"SURVEILLANCE_THRESHOLD"`
}

// BackupConfig 数据库快照，Schedule 为空时不启用
type BackupConfig struct {
	Schedule string `env:"BACKUP_SCHEDULE"`
	Path     string `env:"BACKUP_PATH"`
	Keep     int    `env:"BACKUP_KEEP"`
	Upload   bool   `env:"BACKUP_UPLOAD"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		Addr:     util.GetEnvOr("ADDR", ":8000"),
		Mode:     util.GetEnvOr("MODE", "debug"),
		DBDriver: util.GetEnvOr("DB_DRIVER", "sqlite"),
		DSN:      util.GetEnvOr("DSN", "triage.db"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		EncryptionKey: util.GetEnv("FIELD_ENCRYPTION_KEY"),
		SessionSecret: util.GetEnv("SESSION_SECRET"),
		JWTSecret:     util.GetEnv("JWT_SECRET"),
		APIPrefix:     util.GetEnvOr("API_PREFIX", "/api"),
		AdminPrefix:   util.GetEnvOr("ADMIN_PREFIX", "/admin"),
		CampLanguage:  util.GetEnvOr("CAMP_LANGUAGE", "no"),
		TimeZone:      util.GetEnvOr("TIME_ZONE", "Europe/Oslo"),
		RateLimit:     util.GetEnvOr("RATE_LIMIT", "30-M"),
		APIRateLimit:  util.GetEnvOr("API_RATE_LIMIT", "120-M"),
		CacheType:     util.GetEnvOr("CACHE_TYPE", "local"),
		RedisURL:      util.GetEnv("REDIS_URL"),
		GatewayRelay:  util.GetBoolEnv("GATEWAY_RELAY"),
		Translator: TranslatorConfig{
			Provider: util.GetEnvOr("TRANSLATOR_PROVIDER", "azure"),
			Key:      util.GetEnv("AZURE_TRANSLATOR_KEY"),
			Endpoint: util.GetEnv("AZURE_TRANSLATOR_ENDPOINT"),
			Region:   util.GetEnvOr("AZURE_TRANSLATOR_REGION", "global"),
			Timeout:  util.GetDurationEnvOr("TRANSLATE_TIMEOUT", 5*time.Second),
		},
		Vision: VisionConfig{
			AzureKey:        util.GetEnv("AZURE_OPENAI_KEY"),
			AzureEndpoint:   util.GetEnv("AZURE_OPENAI_ENDPOINT"),
			AzureDeployment: util.GetEnvOr("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
			AzureAPIVersion: util.GetEnvOr("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
			OpenAIKey:       util.GetEnv("OPENAI_API_KEY"),
			OpenAIBaseURL:   util.GetEnv("OPENAI_BASE_URL"),
			OpenAIModel:     util.GetEnvOr("OPENAI_MODEL", "gpt-4o"),
			Timeout:         util.GetDurationEnvOr("VISION_TIMEOUT", 20*time.Second),
		},
		Storage: StorageConfig{
			Driver:    util.GetEnvOr("STORAGE_DRIVER", "local"),
			MediaRoot: util.GetEnvOr("MEDIA_ROOT", "./media"),
			MediaURL:  util.GetEnvOr("MEDIA_URL", "/media/"),
		},
		EnrichWorkers: util.GetIntEnvOr("ENRICH_WORKERS", 8),
		EnrichQueue:   util.GetIntEnvOr("ENRICH_QUEUE", 256),
		Surveillance: SurveillanceConfig{
			Schedule:  util.GetEnvOr("SURVEILLANCE_SCHEDULE", "*/15 * * * *"),
			Window:    util.GetDurationEnvOr("SURVEILLANCE_WINDOW", 60*time.Minute),
			Threshold: util.GetIntEnvOr("SURVEILLANCE_THRESHOLD", 5),
		},
		MetricsEnabled:   util.GetEnvOr("METRICS_ENABLED", "true") != "false",
		StaticMediaServe: util.GetEnvOr("MEDIA_SERVE", "true") != "false",
		Backup: BackupConfig{
			Schedule: util.GetEnv("BACKUP_SCHEDULE"),
			Path:     util.GetEnvOr("BACKUP_PATH", "./backups"),
			Keep:     util.GetIntEnvOr("BACKUP_KEEP", 7),
			Upload:   util.GetBoolEnv("BACKUP_UPLOAD"),
		},
	}
	return nil
}

// Location resolves TimeZone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
