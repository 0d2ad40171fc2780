package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Database（可选，设置后令牌存入 Postgres）
	DatabaseURL string

	// Smartcar API
	SmartcarClientID     string
	SmartcarClientSecret string
	SmartcarRedirectURI  string
	SmartcarMode         string // live, test, simulated
	SmartcarAuthURL      string
	SmartcarTokenURL     string
	SmartcarAPIHost      string
	Brands               []string

	// 外部调用
	HTTPTimeout       time.Duration
	BrandFetchTimeout time.Duration
	FetchConcurrency  int
	ProviderRPS       float64
	ProviderBurst     int

	// 缓存与刷新
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration
	RefreshInterval    time.Duration

	// 存储路径
	TokenFile string
	NotesDir  string

	// 地图
	GoogleMapsAPIKey string
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:           getEnv("PORT", "8000"),
		Debug:                getEnvBool("DEBUG", false),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		SmartcarClientID:     getEnv("SMARTCAR_CLIENT_ID", ""),
		SmartcarClientSecret: getEnv("SMARTCAR_CLIENT_SECRET", ""),
		SmartcarRedirectURI:  getEnv("REDIRECT_URI", ""),
		SmartcarMode:         getEnv("SMARTCAR_MODE", "live"),
		SmartcarAuthURL:      getEnv("SMARTCAR_AUTH_URL", "https://connect.smartcar.com/oauth/authorize"),
		SmartcarTokenURL:     getEnv("SMARTCAR_TOKEN_URL", "https://auth.smartcar.com/oauth/token"),
		SmartcarAPIHost:      getEnv("SMARTCAR_API_HOST", "https://api.smartcar.com/v2.0"),
		Brands:               getEnvList("BRANDS", []string{"toyota", "subaru"}),
		HTTPTimeout:          getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		BrandFetchTimeout:    getEnvDuration("BRAND_FETCH_TIMEOUT", 60*time.Second),
		FetchConcurrency:     getEnvInt("FETCH_CONCURRENCY", 0),
		ProviderRPS:          getEnvFloat("PROVIDER_RPS", 10),
		ProviderBurst:        getEnvInt("PROVIDER_BURST", 20),
		CacheTTL:             getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSweepInterval:   getEnvDuration("CACHE_SWEEP_INTERVAL", time.Minute),
		RefreshInterval:      getEnvDuration("REFRESH_INTERVAL", 10*time.Minute),
		TokenFile:            getEnv("TOKEN_FILE", "tokens.json"),
		NotesDir:             getEnv("NOTES_DIR", "notes"),
		GoogleMapsAPIKey:     getEnv("GOOGLE_API_MAPS_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 校验必填配置
func (c *Config) Validate() error {
	var errs []error
	if c.SmartcarClientID == "" {
		errs = append(errs, errors.New("SMARTCAR_CLIENT_ID is required"))
	}
	if c.SmartcarClientSecret == "" {
		errs = append(errs, errors.New("SMARTCAR_CLIENT_SECRET is required"))
	}
	if c.SmartcarRedirectURI == "" {
		errs = append(errs, errors.New("REDIRECT_URI is required"))
	}
	if len(c.Brands) == 0 {
		errs = append(errs, errors.New("BRANDS must list at least one brand"))
	}
	if c.CacheTTL <= 0 || c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("CACHE_TTL and REFRESH_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList 逗号分隔的列表，统一小写
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
