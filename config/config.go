package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// 开奖数据源配置
	DrawAPIBaseURL       string
	DrawAPITimeout       time.Duration
	DrawRequestsPerSec   float64
	FetchMaxAttempts     int
	FetchBaseBackoff     time.Duration
	FetchAttemptTimeout  time.Duration
	PrizeBreakdownSource bool // 是否抓取奖级明细页面

	// 数据库配置 (空 = 内存存储)
	DatabaseURL string
	AutoMigrate bool

	// 缓存与消息
	RedisURL     string
	CacheTTL     time.Duration
	AMQPURL      string
	AMQPExchange string

	// 服务器配置
	Port string

	// 其他配置
	Environment string
	LogLevel    string
	LogFormat   string

	// 同步配置
	SyncSchedule          string
	SyncTimezone          string
	SyncRetryAfter        time.Duration
	SyncMaxRoundsPerCycle int
	SyncOnStart           bool
	SeedCSVPath           string

	// 号码生成配置
	GeneratorMaxAttempts int
	GeneratorPresetsFile string
	ExcludeRecentRounds  int
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// 开奖数据源配置
		DrawAPIBaseURL:       getEnv("DRAW_API_BASE_URL", "https://www.dhlottery.co.kr"),
		DrawAPITimeout:       getEnvDuration("DRAW_API_TIMEOUT", 15*time.Second),
		DrawRequestsPerSec:   getEnvFloat("DRAW_API_RPS", 2),
		FetchMaxAttempts:     getEnvInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBaseBackoff:     getEnvDuration("FETCH_BASE_BACKOFF", 500*time.Millisecond),
		FetchAttemptTimeout:  getEnvDuration("FETCH_ATTEMPT_TIMEOUT", 10*time.Second),
		PrizeBreakdownSource: getEnv("PRIZE_BREAKDOWN", "true") == "true",

		// 数据库配置
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AutoMigrate: getEnv("AUTO_MIGRATE", "true") == "true",

		// 缓存与消息
		RedisURL:     getEnv("REDIS_URL", ""),
		CacheTTL:     getEnvDuration("CACHE_TTL", 24*time.Hour),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "lotto.events"),

		// 服务器配置
		Port: getEnv("PORT", "8080"),

		// 其他配置
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),

		// 同步配置
		SyncSchedule:          getEnv("SYNC_SCHEDULE", "*/15 * * * *"),
		SyncTimezone:          getEnv("SYNC_TIMEZONE", "Asia/Seoul"),
		SyncRetryAfter:        getEnvDuration("SYNC_RETRY_AFTER", 30*time.Minute),
		SyncMaxRoundsPerCycle: getEnvInt("SYNC_MAX_ROUNDS_PER_CYCLE", 52),
		SyncOnStart:           getEnv("SYNC_ON_START", "true") == "true",
		SeedCSVPath:           getEnv("SEED_CSV_PATH", ""),

		// 号码生成配置
		GeneratorMaxAttempts: getEnvInt("GENERATOR_MAX_ATTEMPTS", 100000),
		GeneratorPresetsFile: getEnv("GENERATOR_PRESETS_FILE", ""),
		ExcludeRecentRounds:  getEnvInt("EXCLUDE_RECENT_ROUNDS", 0),
	}
}

// Location resolves SyncTimezone. Korea has no daylight saving time, so a
// fixed +09:00 zone is used when the tz database is unavailable.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SyncTimezone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// UseDatabase reports whether a Postgres store is configured.
func (c *Config) UseDatabase() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result int
	fmt.Sscanf(value, "%d", &result)
	if result == 0 {
		return defaultValue
	}
	return result
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result float64
	fmt.Sscanf(value, "%g", &result)
	if result <= 0 {
		return defaultValue
	}
	return result
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
