/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the kyc-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	AutoMigrate             bool   `mapstructure:"AUTO_MIGRATE"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix          string `mapstructure:"REDIS_KEY_PREFIX"`
	VerdictDedupeTTLSeconds int    `mapstructure:"VERDICT_DEDUPE_TTL_SECONDS"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	EventsExchange          string `mapstructure:"KYC_EVENTS_EXCHANGE"`
	VerdictEventQueue       string `mapstructure:"VERDICT_EVENT_QUEUE"`
	ClerkJWKSURL            string `mapstructure:"CLERK_JWKS_URL"`
	ClerkAudience           string `mapstructure:"CLERK_AUDIENCE"`
	ClerkIssuer             string `mapstructure:"CLERK_ISSUER"`
	AllowHeaderAuthFallback bool   `mapstructure:"AUTH_ALLOW_HEADER_FALLBACK"`
	CORSAllowedOrigins      string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	SumsubBaseURL           string `mapstructure:"SUMSUB_BASE_URL"`
	SumsubAppToken          string `mapstructure:"SUMSUB_APP_TOKEN"`
	SumsubSecretKey         string `mapstructure:"SUMSUB_SECRET_KEY"`
	SumsubWebhookSecret     string `mapstructure:"SUMSUB_WEBHOOK_SECRET"`
	SumsubLevelName         string `mapstructure:"SUMSUB_LEVEL_NAME"`
	VerdictPollSchedule     string `mapstructure:"VERDICT_POLL_SCHEDULE"`
	VerdictPollStaleMinutes int    `mapstructure:"VERDICT_POLL_STALE_MINUTES"`
	VerdictPollBatchSize    int    `mapstructure:"VERDICT_POLL_BATCH_SIZE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AUTO_MIGRATE", true)
	viper.SetDefault("REDIS_KEY_PREFIX", "kyc:verdict")
	viper.SetDefault("VERDICT_DEDUPE_TTL_SECONDS", 3600)
	viper.SetDefault("KYC_EVENTS_EXCHANGE", "kyc_events")
	viper.SetDefault("VERDICT_EVENT_QUEUE", "kyc_service.verdicts")
	viper.SetDefault("AUTH_ALLOW_HEADER_FALLBACK", false)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("SUMSUB_BASE_URL", "https://api.sumsub.com")
	viper.SetDefault("SUMSUB_LEVEL_NAME", "basic-kyc-level")
	viper.SetDefault("VERDICT_POLL_SCHEDULE", "@every 10m")
	viper.SetDefault("VERDICT_POLL_STALE_MINUTES", 30)
	viper.SetDefault("VERDICT_POLL_BATCH_SIZE", 50)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "KYC_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("VERDICT_DEDUPE_TTL_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("KYC_EVENTS_EXCHANGE")
	_ = viper.BindEnv("VERDICT_EVENT_QUEUE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("CLERK_AUDIENCE")
	_ = viper.BindEnv("CLERK_ISSUER")
	_ = viper.BindEnv("AUTH_ALLOW_HEADER_FALLBACK")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("SUMSUB_BASE_URL")
	_ = viper.BindEnv("SUMSUB_APP_TOKEN")
	_ = viper.BindEnv("SUMSUB_SECRET_KEY")
	_ = viper.BindEnv("SUMSUB_WEBHOOK_SECRET", "SUMSUB_WEBHOOK_SECRET", "SUMSUB_WEBHOOK_SECRET_KEY")
	_ = viper.BindEnv("SUMSUB_LEVEL_NAME")
	_ = viper.BindEnv("VERDICT_POLL_SCHEDULE")
	_ = viper.BindEnv("VERDICT_POLL_STALE_MINUTES")
	_ = viper.BindEnv("VERDICT_POLL_BATCH_SIZE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisKeyPrefix), ":")
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "kyc:verdict"
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = "kyc_events"
	}
	config.SumsubBaseURL = strings.TrimSuffix(strings.TrimSpace(config.SumsubBaseURL), "/")
	config.SumsubWebhookSecret = strings.TrimSpace(config.SumsubWebhookSecret)

	if config.VerdictDedupeTTLSeconds <= 0 {
		config.VerdictDedupeTTLSeconds = 3600
	}
	if config.VerdictPollStaleMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive verdict poll staleness; using default\" value=%d", config.VerdictPollStaleMinutes)
		config.VerdictPollStaleMinutes = 30
	}
	if config.VerdictPollBatchSize <= 0 {
		config.VerdictPollBatchSize = 50
	}
	if config.VerdictPollBatchSize > 500 {
		log.Printf("level=warn component=config msg=\"verdict poll batch size too high; capping at 500\" value=%d", config.VerdictPollBatchSize)
		config.VerdictPollBatchSize = 500
	}

	return
}

// CORSOrigins splits the configured origin list.
func (c Config) CORSOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// SumsubConfigured reports whether API credentials for SumSub are present.
func (c Config) SumsubConfigured() bool {
	return strings.TrimSpace(c.SumsubAppToken) != "" && strings.TrimSpace(c.SumsubSecretKey) != ""
}
