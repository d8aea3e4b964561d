package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string
	LogLevel string

	RedisAddr string
	RedisDB   int

	// 上游礼品下单 API 的默认地址；运行时可通过 settings 接口切换并持久化到 DB。
	DefaultBaseURL string

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	EventsEnabled bool
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string

	// Redis Stream outbox（结算结果先入流，Relay 异步转 Kafka）
	CheckoutEventStream   string
	CheckoutEventGroup    string
	CheckoutEventConsumer string

	// 结算接口限流、草稿与商品缓存策略
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	DraftTTL           time.Duration
	CatalogCacheTTL    time.Duration
	MaxInFlight        int
	CatalogGetRetries  int

	MetricsEnabled bool
}

// Load 读取并校验配置，缺失时使用默认值。存在 .env 时先加载。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DBPath:                getEnv("DB_PATH", "giftshop.db"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:               0,
		DefaultBaseURL:        getEnv("DEFAULT_BASE_URL", "https://api.example.com"),
		KafkaBrokers:          splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "giftshop-checkouts"),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "giftshop-history-consumer"),
		CheckoutEventStream:   getEnv("CHECKOUT_EVENT_STREAM", "giftshop:checkout_events"),
		CheckoutEventGroup:    getEnv("CHECKOUT_EVENT_GROUP", "giftshop-relay-group"),
		CheckoutEventConsumer: getEnv("CHECKOUT_EVENT_CONSUMER", "giftshop-relay-1"),
		CheckoutRateLimit:     5,
		CheckoutRateWindow:    10 * time.Second,
		DraftTTL:              30 * time.Minute,
		CatalogCacheTTL:       5 * time.Minute,
		MaxInFlight:           4,
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.EventsEnabled, err = getEnvBool("EVENTS_ENABLED", false); err != nil {
		return AppConfig{}, fmt.Errorf("invalid EVENTS_ENABLED: %w", err)
	}
	if cfg.MetricsEnabled, err = getEnvBool("METRICS_ENABLED", false); err != nil {
		return AppConfig{}, fmt.Errorf("invalid METRICS_ENABLED: %w", err)
	}

	rateLimit, err := getEnvInt("CHECKOUT_RATE_LIMIT", cfg.CheckoutRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_RATE_LIMIT must be > 0")
	}
	cfg.CheckoutRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("CHECKOUT_RATE_WINDOW_SEC", int(cfg.CheckoutRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_RATE_WINDOW_SEC must be > 0")
	}
	cfg.CheckoutRateWindow = time.Duration(rateWindowSec) * time.Second

	draftTTLMin, err := getEnvInt("DRAFT_TTL_MIN", int(cfg.DraftTTL.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid DRAFT_TTL_MIN: %w", err)
	}
	if draftTTLMin <= 0 {
		return AppConfig{}, fmt.Errorf("DRAFT_TTL_MIN must be > 0")
	}
	cfg.DraftTTL = time.Duration(draftTTLMin) * time.Minute

	cacheTTLSec, err := getEnvInt("CATALOG_CACHE_TTL_SEC", int(cfg.CatalogCacheTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATALOG_CACHE_TTL_SEC: %w", err)
	}
	if cacheTTLSec <= 0 {
		return AppConfig{}, fmt.Errorf("CATALOG_CACHE_TTL_SEC must be > 0")
	}
	cfg.CatalogCacheTTL = time.Duration(cacheTTLSec) * time.Second

	inFlight, err := getEnvInt("MAX_IN_FLIGHT", cfg.MaxInFlight)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MAX_IN_FLIGHT: %w", err)
	}
	if inFlight <= 0 {
		return AppConfig{}, fmt.Errorf("MAX_IN_FLIGHT must be > 0")
	}
	cfg.MaxInFlight = inFlight

	if cfg.CatalogGetRetries, err = getEnvInt("CATALOG_GET_RETRIES", 0); err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATALOG_GET_RETRIES: %w", err)
	}
	if cfg.CatalogGetRetries < 0 || cfg.CatalogGetRetries > 3 {
		return AppConfig{}, fmt.Errorf("CATALOG_GET_RETRIES must be between 0 and 3")
	}

	if !strings.HasPrefix(cfg.DefaultBaseURL, "http://") && !strings.HasPrefix(cfg.DefaultBaseURL, "https://") {
		return AppConfig{}, fmt.Errorf("DEFAULT_BASE_URL must be an http(s) url")
	}

	if cfg.EventsEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
	}
	if cfg.CheckoutEventStream == "" {
		return AppConfig{}, fmt.Errorf("CHECKOUT_EVENT_STREAM must not be empty")
	}
	if cfg.CheckoutEventGroup == "" {
		return AppConfig{}, fmt.Errorf("CHECKOUT_EVENT_GROUP must not be empty")
	}
	if cfg.CheckoutEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("CHECKOUT_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
