package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Github     GithubConfig     `mapstructure:"github"`
	Generation GenerationConfig `mapstructure:"generation"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Lock       LockConfig       `mapstructure:"lock"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Queue      QueueConfig      `mapstructure:"queue"`
	OSS        OSSConfig        `mapstructure:"oss"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type GithubConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PrimaryBranch  string        `mapstructure:"primary_branch"`
	FallbackBranch string        `mapstructure:"fallback_branch"`
	MaxFiles       int           `mapstructure:"max_files"`
	PerFileChars   int           `mapstructure:"per_file_chars"`
}

type GenerationConfig struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PaymentConfig struct {
	APIBaseURL    string `mapstructure:"api_base_url"`
	APIKey        string `mapstructure:"api_key"`
	StoreID       string `mapstructure:"store_id"`
	VariantID     string `mapstructure:"variant_id"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	RedirectURL   string `mapstructure:"redirect_url"`
}

type LockConfig struct {
	Backend         string        `mapstructure:"backend"` // database, redis
	StalenessWindow time.Duration `mapstructure:"staleness_window"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type QueueConfig struct {
	ReportQueue   string        `mapstructure:"report_queue"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	ReportGrace   time.Duration `mapstructure:"report_grace"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InflightTTL   time.Duration `mapstructure:"inflight_ttl"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("github.timeout", 15*time.Second)
	v.SetDefault("github.primary_branch", "main")
	v.SetDefault("github.fallback_branch", "master")
	v.SetDefault("github.max_files", 20)
	v.SetDefault("github.per_file_chars", 2000)
	v.SetDefault("generation.provider", "gemini")
	v.SetDefault("generation.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("generation.model", "gemini-1.5-flash")
	v.SetDefault("generation.timeout", 90*time.Second)
	v.SetDefault("payment.api_base_url", "https://api.lemonsqueezy.com")
	v.SetDefault("lock.backend", "database")
	v.SetDefault("lock.staleness_window", 10*time.Minute)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("queue.report_queue", "report_jobs")
	v.SetDefault("queue.max_workers", 2)
	v.SetDefault("queue.sweep_interval", 5*time.Minute)
	v.SetDefault("queue.report_grace", 15*time.Minute)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.inflight_ttl", 30*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// 密钥类配置允许直接使用原有的环境变量名
var envAliases = map[string]string{
	"github.token":           "GITHUB_TOKEN",
	"generation.api_key":     "GEMINI_API_KEY",
	"payment.api_key":        "LEMON_SQUEEZY_API_KEY",
	"payment.store_id":       "LEMON_SQUEEZY_STORE_ID",
	"payment.variant_id":     "LEMON_SQUEEZY_VARIANT_ID",
	"payment.webhook_secret": "LEMONSQUEEZY_WEBHOOK_SECRET",
}

func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 检查必填项，返回缺失的可选项用于启动告警
func (c *Config) Validate() (warnings []string, err error) {
	var missing []string
	if c.Database.Driver != "sqlite" && c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Database.Database == "" {
		missing = append(missing, "database.database")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if len(missing) > 0 {
		return nil, errors.New("missing required config: " + strings.Join(missing, ", "))
	}

	optional := map[string]string{
		"generation.api_key":     c.Generation.APIKey,
		"github.token":           c.Github.Token,
		"payment.api_key":        c.Payment.APIKey,
		"payment.store_id":       c.Payment.StoreID,
		"payment.variant_id":     c.Payment.VariantID,
		"payment.webhook_secret": c.Payment.WebhookSecret,
	}
	for key, val := range optional {
		if val == "" {
			warnings = append(warnings, key)
		}
	}
	sort.Strings(warnings)
	return warnings, nil
}
