// config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env      string `validate:"required|in:development,production"`
		Timezone string `validate:"required"`
		BaseURL  string `validate:"required"`
	}
	Log struct {
		Level string `validate:"required|in:debug,info,warn,error"`
	}
	Server struct {
		Port string `validate:"required"`
	}
	DB   DBConfig
	Auth struct {
		JWTSecret string
		Issuer    string
	}
	Stripe struct {
		SecretKey  string
		WebhookKey string
		PriceID    string
	}
	GPT struct {
		APIKey    string
		Model     string
		BaseURL   string
		MaxTokens int
	}
	Telegram struct {
		Token string
	}
	Email struct {
		Region string
		From   string
	}
	Limits struct {
		FreeMonthlyQuestions int `validate:"required|min:1"`
	}
	Cache struct {
		Enabled bool
		SizeMB  int
		TTL     time.Duration
	}
	Metrics struct {
		Enabled bool
	}
	ShutdownTimeout time.Duration
}

// DBConfig selects and tunes the storage driver.
type DBConfig struct {
	Driver       string `validate:"required|in:postgres,memory"`
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("$HOME/.minuto")

	setDefaults(v)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// No file: build the config from the environment alone.
		cfg := fromEnv(v)
		return cfg, cfg.Validate()
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("App.Env", "production")
	v.SetDefault("App.Timezone", "America/Sao_Paulo")
	v.SetDefault("App.BaseURL", "http://localhost:8080")
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("DB.Driver", "postgres")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("GPT.Model", "gpt-4.1-mini")
	v.SetDefault("GPT.MaxTokens", 1500)
	v.SetDefault("Limits.FreeMonthlyQuestions", 5)
	v.SetDefault("Cache.Enabled", true)
	v.SetDefault("Cache.SizeMB", 8)
	v.SetDefault("Cache.TTL", time.Hour)
	v.SetDefault("Metrics.Enabled", true)
}

func fromEnv(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.Env = getEnvOr("APP_ENV", v.GetString("App.Env"))
	cfg.App.Timezone = getEnvOr("APP_TIMEZONE", v.GetString("App.Timezone"))
	cfg.App.BaseURL = getEnvOr("APP_BASE_URL", v.GetString("App.BaseURL"))
	cfg.Log.Level = getEnvOr("LOG_LEVEL", v.GetString("Log.Level"))
	cfg.Server.Port = getEnvOr("SERVER_PORT", v.GetString("Server.Port"))

	cfg.DB.Driver = getEnvOr("DB_DRIVER", v.GetString("DB.Driver"))
	cfg.DB.Host = getEnvOr("DB_HOST", "localhost")
	cfg.DB.Port = getEnvOr("DB_PORT", "5432")
	cfg.DB.User = getEnvOr("DB_USER", "postgres")
	cfg.DB.Password = getEnvOr("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnvOr("DB_NAME", "minuto")
	cfg.DB.SSLMode = getEnvOr("DB_SSL_MODE", "disable")
	cfg.DB.MaxOpenConns = v.GetInt("DB.MaxOpenConns")
	cfg.DB.MaxIdleConns = v.GetInt("DB.MaxIdleConns")
	cfg.DB.ConnLifetime = v.GetDuration("DB.ConnLifetime")

	cfg.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
	cfg.Auth.Issuer = os.Getenv("AUTH_ISSUER")
	cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookKey = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Stripe.PriceID = os.Getenv("STRIPE_PRICE_ID")
	cfg.GPT.APIKey = os.Getenv("GPT_API_KEY")
	cfg.GPT.Model = getEnvOr("GPT_MODEL", v.GetString("GPT.Model"))
	cfg.GPT.BaseURL = os.Getenv("GPT_BASE_URL")
	cfg.GPT.MaxTokens = v.GetInt("GPT.MaxTokens")
	cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	cfg.Email.Region = os.Getenv("EMAIL_AWS_REGION")
	cfg.Email.From = os.Getenv("EMAIL_FROM")

	cfg.Limits.FreeMonthlyQuestions = v.GetInt("Limits.FreeMonthlyQuestions")
	cfg.Cache.Enabled = v.GetBool("Cache.Enabled")
	cfg.Cache.SizeMB = v.GetInt("Cache.SizeMB")
	cfg.Cache.TTL = v.GetDuration("Cache.TTL")
	cfg.Metrics.Enabled = v.GetBool("Metrics.Enabled")
	cfg.ShutdownTimeout = v.GetDuration("ShutdownTimeout")

	return cfg
}

// Validate checks every section and the cross-field rules gookit cannot express.
func (c *Config) Validate() error {
	sections := []interface{}{&c.App, &c.Log, &c.Server, &c.DB, &c.Limits}
	for _, section := range sections {
		v := validate.Struct(section)
		if !v.Validate() {
			return fmt.Errorf("invalid config: %s", v.Errors.One())
		}
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.App.Timezone, err)
	}
	if c.App.Env == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("invalid config: Auth.JWTSecret is required in production")
	}
	return nil
}

// Location returns the configured calendar timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper function to get environment variable with default value
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
