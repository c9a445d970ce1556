package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Relay  RelayConfig
	Store  StoreConfig
	Events EventsConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Relay:  relay,
		Store:  store,
		Events: loadEventsConfig(),
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// WelcomeMode decides who sees the system welcome message.
type WelcomeMode string

const (
	WelcomeSelf      WelcomeMode = "self"
	WelcomeBroadcast WelcomeMode = "broadcast"
)

// DuplicatePolicy decides what happens when a client identifier that already
// has a live session connects again.
type DuplicatePolicy string

const (
	DuplicateSupersede DuplicatePolicy = "supersede"
	DuplicateEvict     DuplicatePolicy = "evict"
	DuplicateReject    DuplicatePolicy = "reject"
)

// RelayConfig 描述消息中继的运行参数。
type RelayConfig struct {
	HistoryLimit    int
	WelcomeMode     WelcomeMode
	DuplicatePolicy DuplicatePolicy
	CookieName      string
	SendBuffer      int
	PersistQueue    int
	PersistTimeout  time.Duration
	AllowAnyOrigin  bool
}

func loadRelayConfig() (RelayConfig, error) {
	historyLimit := 100
	if override, err := parseOptionalIntEnv("RELAY_HISTORY_LIMIT"); err != nil {
		return RelayConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	welcome := WelcomeMode(strings.ToLower(getEnvOrDefault("RELAY_WELCOME_MODE", string(WelcomeSelf))))
	switch welcome {
	case WelcomeSelf, WelcomeBroadcast:
	default:
		return RelayConfig{}, fmt.Errorf("invalid RELAY_WELCOME_MODE value %q", welcome)
	}

	policy := DuplicatePolicy(strings.ToLower(getEnvOrDefault("RELAY_DUPLICATE_POLICY", string(DuplicateSupersede))))
	switch policy {
	case DuplicateSupersede, DuplicateEvict, DuplicateReject:
	default:
		return RelayConfig{}, fmt.Errorf("invalid RELAY_DUPLICATE_POLICY value %q", policy)
	}

	sendBuffer, err := parseIntEnvOrDefault("RELAY_SEND_BUFFER", 64)
	if err != nil {
		return RelayConfig{}, err
	}
	persistQueue, err := parseIntEnvOrDefault("RELAY_PERSIST_QUEUE", 256)
	if err != nil {
		return RelayConfig{}, err
	}
	persistTimeoutMs, err := parseIntEnvOrDefault("RELAY_PERSIST_TIMEOUT_MS", 5000)
	if err != nil {
		return RelayConfig{}, err
	}
	anyOrigin, err := parseBoolEnv("RELAY_ALLOW_ANY_ORIGIN", true)
	if err != nil {
		return RelayConfig{}, err
	}

	return RelayConfig{
		HistoryLimit:    historyLimit,
		WelcomeMode:     welcome,
		DuplicatePolicy: policy,
		CookieName:      getEnvOrDefault("RELAY_COOKIE_NAME", "userId"),
		SendBuffer:      sendBuffer,
		PersistQueue:    persistQueue,
		PersistTimeout:  time.Duration(persistTimeoutMs) * time.Millisecond,
		AllowAnyOrigin:  anyOrigin,
	}, nil
}

// StoreConfig 描述持久化后端配置。
type StoreConfig struct {
	Driver          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	PostgresDSN     string
}

func loadStoreConfig() (StoreConfig, error) {
	redisDB, err := parseIntEnvOrDefault("REDIS_DB", 0)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Driver:          strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory")),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:   strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:         redisDB,
		RedisPrefix:     getEnvOrDefault("REDIS_PREFIX", "relay"),
		MongoURI:        getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnvOrDefault("MONGO_DATABASE", "relay"),
		MongoCollection: getEnvOrDefault("MONGO_COLLECTION", "relay_state"),
		PostgresDSN:     strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
	}

	if cfg.Driver == "postgres" && cfg.PostgresDSN == "" {
		return StoreConfig{}, fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=postgres")
	}
	return cfg, nil
}

// EventsConfig 描述消息镜像（NATS）配置。
type EventsConfig struct {
	NatsURL     string
	NatsSubject string
	NatsName    string
}

// Enabled 表示是否配置了 NATS 地址。
func (c EventsConfig) Enabled() bool {
	return c.NatsURL != ""
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		NatsURL:     strings.TrimSpace(os.Getenv("NATS_URL")),
		NatsSubject: getEnvOrDefault("NATS_SUBJECT", "relay.messages"),
		NatsName:    getEnvOrDefault("NATS_NAME", "z-relay"),
	}
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseIntEnvOrDefault(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *val)
	}
	return *val, nil
}
