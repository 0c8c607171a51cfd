package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	TokenTTLHrs int      `mapstructure:"TOKEN_TTL_HOURS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string `mapstructure:"GEMINI_MODEL"`
	ExpoPushURL  string `mapstructure:"EXPO_PUSH_URL"`

	AnalysisWorkers    int `mapstructure:"ANALYSIS_WORKERS"`
	AnalysisQueueSize  int `mapstructure:"ANALYSIS_QUEUE_SIZE"`
	AnalysisTimeoutSec int `mapstructure:"ANALYSIS_TIMEOUT_SECONDS"`

	MaxUploadMB int `mapstructure:"MAX_UPLOAD_MB"`

	RateLimitRPS       float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
	AuthRateLimitRPS   float64 `mapstructure:"AUTH_RATE_LIMIT_RPS"`
	AuthRateLimitBurst int     `mapstructure:"AUTH_RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_TTL_HOURS", 168)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("ANALYSIS_WORKERS", 2)
	v.SetDefault("ANALYSIS_QUEUE_SIZE", 128)
	v.SetDefault("ANALYSIS_TIMEOUT_SECONDS", 60)
	v.SetDefault("MAX_UPLOAD_MB", 15)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("AUTH_RATE_LIMIT_RPS", 0.5)
	v.SetDefault("AUTH_RATE_LIMIT_BURST", 20)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("TOKEN_TTL_HOURS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("GEMINI_API_KEY")
	v.BindEnv("GEMINI_MODEL")
	v.BindEnv("EXPO_PUSH_URL")
	v.BindEnv("ANALYSIS_WORKERS")
	v.BindEnv("ANALYSIS_QUEUE_SIZE")
	v.BindEnv("ANALYSIS_TIMEOUT_SECONDS")
	v.BindEnv("MAX_UPLOAD_MB")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("AUTH_RATE_LIMIT_RPS")
	v.BindEnv("AUTH_RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-do-not-use-in-production"
		log.Println("WARNING: JWT_SECRET not set; using insecure development secret")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a real JWT secret is required, and the AI worker needs an API key to do
// anything useful.
func (c *Config) Validate() error {
	if !c.IsDev() && (c.JWTSecret == "" || c.JWTSecret == "dev-secret-do-not-use-in-production") {
		return fmt.Errorf("JWT_SECRET must be set when ENV=%q", c.Env)
	}
	if c.AnalysisWorkers < 1 {
		return fmt.Errorf("ANALYSIS_WORKERS must be at least 1, got %d", c.AnalysisWorkers)
	}
	if c.AnalysisQueueSize < 1 {
		return fmt.Errorf("ANALYSIS_QUEUE_SIZE must be at least 1, got %d", c.AnalysisQueueSize)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be at least 1, got %d", c.MaxUploadMB)
	}
	if c.IsProduction() && c.GeminiAPIKey == "" {
		log.Println("WARNING: GEMINI_API_KEY is empty; AI analysis will fall back to manual review for every case")
	}
	return nil
}
