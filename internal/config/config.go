package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/spf13/viper"
)

type AppConfig struct {
	API      *APIConfig      `mapstructure:"api"`
	Gin      *GinConfig      `mapstructure:"gin"`
	Postgres *PostgresConfig `mapstructure:"postgres"`
	Redis    *RedisConfig    `mapstructure:"redis"`
	Log      *LogConfig      `mapstructure:"log"`
}

type APIConfig struct {
	Port               string        `mapstructure:"port"`
	BaseURL            string        `mapstructure:"base_url"`
	Environment        string        `mapstructure:"environment"`
	JWTSigningKey      string        `mapstructure:"jwt_signing_key"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	ResetTokenTTL      time.Duration `mapstructure:"reset_token_ttl"`
	ResetRateLimit     time.Duration `mapstructure:"reset_rate_limit"`
	AllowedCORSDomains []string      `mapstructure:"allowed_cors_domains"`
}

type GinConfig struct {
	Mode string `mapstructure:"mode"`
}

type PostgresConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"sslmode"`
	// SQLitePath is used when Driver is "sqlite".
	SQLitePath string `mapstructure:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", "8080")
	v.SetDefault("api.base_url", "localhost:8080")
	v.SetDefault("api.environment", EnvDevelopment)
	v.SetDefault("api.token_ttl", 24*time.Hour)
	v.SetDefault("api.reset_token_ttl", time.Hour)
	v.SetDefault("api.reset_rate_limit", time.Minute)
	v.SetDefault("api.allowed_cors_domains", []string{"http://localhost:5173"})
	v.SetDefault("gin.mode", "debug")
	v.SetDefault("postgres.driver", "postgres")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.sqlite_path", "loyalty.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

// Load reads the yaml file at path and overlays LOYALTY_* environment variables.
func Load(path string) (*AppConfig, error) {
	conf, _, err := load(path)
	return conf, err
}

// LoadAndWatch behaves like Load but also reports log level changes made to
// the file while the process is running.
func LoadAndWatch(path string, onLogLevel func(level string)) (*AppConfig, error) {
	conf, v, err := load(path)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onLogLevel(v.GetString("log.level"))
	})
	v.WatchConfig()

	return conf, nil
}

func load(path string) (*AppConfig, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("v.ReadInConfig -> %w", err)
	}

	conf := &AppConfig{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, nil, fmt.Errorf("v.Unmarshal -> %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, nil, fmt.Errorf("conf.Validate -> %w", err)
	}

	return conf, v, nil
}

func (c *AppConfig) Validate() error {
	err := validation.ValidateStruct(
		c,
		validation.Field(&c.API, validation.Required),
		validation.Field(&c.Gin, validation.Required),
		validation.Field(&c.Postgres, validation.Required),
		validation.Field(&c.Log, validation.Required),
	)
	if err != nil {
		return err
	}

	return validation.ValidateStruct(
		c.Postgres,
		validation.Field(&c.Postgres.Driver, validation.Required, validation.In("postgres", "sqlite")),
	)
}

func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.Environment, validation.Required, validation.In(EnvDevelopment, EnvTest, EnvProduction)),
		validation.Field(&c.JWTSigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.TokenTTL, validation.Required),
		validation.Field(&c.ResetTokenTTL, validation.Required),
	)
}
