// Package config loads the service configuration from a JSON file and
// OUTPLAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joaodesousa/outplay-forms/internal/cms"
	"github.com/joaodesousa/outplay-forms/internal/mail"
	"github.com/joaodesousa/outplay-forms/internal/revalidate"
)

// Config holds all configuration for the forms service.
type Config struct {
	General    GeneralConfig       `mapstructure:"general"`
	RateLimit  RateLimitConfig     `mapstructure:"ratelimit"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Storyblok  cms.StoryblokConfig `mapstructure:"storyblok"`
	Ghost      cms.GhostConfig     `mapstructure:"ghost"`
	Resend     mail.ResendConfig   `mapstructure:"resend"`
	Webhook    WebhookConfig       `mapstructure:"webhook"`
	Admin      AdminConfig         `mapstructure:"admin"`
	Revalidate revalidate.Config   `mapstructure:"revalidate"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// RateLimitConfig defines the sliding-window submission quotas.
type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	NewsletterMax int           `mapstructure:"newsletter_max"`
	ContactMax    int           `mapstructure:"contact_max"`
	// Store selects where quota state lives: "memory" for a single
	// instance, "redis" when the quota must hold across instances.
	Store string `mapstructure:"store"`
}

func (r RateLimitConfig) Validate() error {
	if r.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be > 0")
	}
	if r.NewsletterMax <= 0 || r.ContactMax <= 0 {
		return fmt.Errorf("ratelimit quotas must be > 0")
	}
	if r.Store != "memory" && r.Store != "redis" {
		return fmt.Errorf("ratelimit.store must be memory or redis")
	}
	return nil
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("redis.port required")
	}
	return nil
}

// WebhookConfig holds the shared secret for inbound CMS webhooks. An empty
// secret means open mode: signatures are not checked.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// AdminConfig protects the admin read endpoints.
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LoadConfig loads config from file (or the default search paths when path
// is empty) plus OUTPLAY_* environment variables. A missing config file is
// fine; a malformed one is fatal.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":8090")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("ratelimit.window", time.Hour)
	viper.SetDefault("ratelimit.newsletter_max", 3)
	viper.SetDefault("ratelimit.contact_max", 5)
	viper.SetDefault("ratelimit.store", "memory")
	viper.SetDefault("resend.throttle_per_sec", 2)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("OUTPLAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.RateLimit.Validate(); err != nil {
		panic(err)
	}
	if config.RateLimit.Store == "redis" {
		if err := config.Redis.Validate(); err != nil {
			panic(err)
		}
	}
	return &config
}
