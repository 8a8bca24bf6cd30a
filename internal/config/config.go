package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Store        StoreConfig        `mapstructure:"store"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	NATS         NATSConfig         `mapstructure:"nats"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Pagination   PaginationConfig   `mapstructure:"pagination"`
	Workers      WorkersConfig      `mapstructure:"workers"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Push         PushConfig         `mapstructure:"push"`
}

type AppConfig struct {
	Name       string `mapstructure:"name"`
	Port       int    `mapstructure:"port"`
	HealthPort int    `mapstructure:"health_port"`
	Mode       string `mapstructure:"mode"`
	LogLevel   string `mapstructure:"log_level"`
	NodeID     int64  `mapstructure:"node_id"`
}

type JWTConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	Expire    time.Duration `mapstructure:"expire"`
}

// StoreConfig 存储驱动：postgres 为生产配置，sqlite 用于单机开发
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type PaginationConfig struct {
	MaxPageSize int `mapstructure:"max_page_size"`
}

type WorkersConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

type SubscriptionConfig struct {
	BufferSize int           `mapstructure:"buffer_size"`
	KeepAlive  time.Duration `mapstructure:"keep_alive"`
}

type PushConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load 从指定路径加载配置，.env 文件中的变量先于环境变量覆盖生效
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "im-chat")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.health_port", 8081)
	v.SetDefault("app.mode", "release")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.node_id", 1)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "chat.db")
	v.SetDefault("database.query_timeout", 5*time.Second)
	v.SetDefault("redis.session_ttl", 10*time.Minute)
	v.SetDefault("pagination.max_page_size", 100)
	v.SetDefault("workers.count", 8)
	v.SetDefault("workers.queue_size", 1024)
	v.SetDefault("subscription.buffer_size", 64)
	v.SetDefault("subscription.keep_alive", 15*time.Second)
	v.SetDefault("push.timeout", 5*time.Second)
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.Port = GetEnvInt("CHAT_PORT", c.App.Port)
	c.App.Mode = GetEnv("CHAT_MODE", c.App.Mode)
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)

	// JWT
	c.JWT.SecretKey = GetEnv("JWT_SECRET", c.JWT.SecretKey)
	c.JWT.Expire = GetEnvDuration("JWT_EXPIRE", c.JWT.Expire)

	// Store
	c.Store.Driver = GetEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.SQLitePath = GetEnv("SQLITE_PATH", c.Store.SQLitePath)

	// Database
	c.Database.Host = GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("POSTGRES_DB", c.Database.Name)
	c.Database.MaxOpenConns = GetEnvInt("POSTGRES_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = GetEnvInt("POSTGRES_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	// Redis
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)

	// NATS
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)

	// Push
	c.Push.Endpoint = GetEnv("PUSH_ENDPOINT", c.Push.Endpoint)
	c.Push.APIKey = GetEnv("PUSH_API_KEY", c.Push.APIKey)
}

// UsePostgres 是否使用 PostgreSQL 存储
func (c *Config) UsePostgres() bool {
	return strings.EqualFold(c.Store.Driver, "postgres")
}

// GetEnv 读取字符串环境变量
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt 读取整型环境变量，解析失败时使用默认值
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetEnvDuration 读取时长环境变量，如 "30m"
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
