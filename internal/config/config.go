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

// Config holds all the configuration variables for the pass-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	PassEventExchange         string `mapstructure:"PASS_EVENT_EXCHANGE"`
	InstallationQueue         string `mapstructure:"INSTALLATION_QUEUE"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	BulkChunkSize             int    `mapstructure:"BULK_CHUNK_SIZE"`
	BulkConcurrency           int    `mapstructure:"BULK_CONCURRENCY"`
	ScanPageSize              int    `mapstructure:"SCAN_PAGE_SIZE"`
	IngestEventBuffer         int    `mapstructure:"INGEST_EVENT_BUFFER"`
	OverdueJobSchedule        string `mapstructure:"OVERDUE_JOB_SCHEDULE"`
	NotificationResetSchedule string `mapstructure:"NOTIFICATION_RESET_SCHEDULE"`
	DueSoonJobSchedule        string `mapstructure:"DUE_SOON_JOB_SCHEDULE"`
	DueSoonWindowDays         int    `mapstructure:"DUE_SOON_WINDOW_DAYS"`
	MetricsEnabled            bool   `mapstructure:"METRICS_ENABLED"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PASS_EVENT_EXCHANGE", "pass_service.pass_events")
	viper.SetDefault("INSTALLATION_QUEUE", "pass_service.wallet_installations")
	viper.SetDefault("BULK_CHUNK_SIZE", 500)
	viper.SetDefault("BULK_CONCURRENCY", 8)
	viper.SetDefault("SCAN_PAGE_SIZE", 1000)
	viper.SetDefault("INGEST_EVENT_BUFFER", 64)
	viper.SetDefault("OVERDUE_JOB_SCHEDULE", "0 2 * * *")
	viper.SetDefault("NOTIFICATION_RESET_SCHEDULE", "30 2 * * *")
	viper.SetDefault("DUE_SOON_JOB_SCHEDULE", "0 9 * * *")
	viper.SetDefault("DUE_SOON_WINDOW_DAYS", 3)
	viper.SetDefault("METRICS_ENABLED", true)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PASS_EVENT_EXCHANGE")
	_ = viper.BindEnv("INSTALLATION_QUEUE")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PASS_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("BULK_CHUNK_SIZE")
	_ = viper.BindEnv("BULK_CONCURRENCY")
	_ = viper.BindEnv("SCAN_PAGE_SIZE")
	_ = viper.BindEnv("INGEST_EVENT_BUFFER")
	_ = viper.BindEnv("OVERDUE_JOB_SCHEDULE")
	_ = viper.BindEnv("NOTIFICATION_RESET_SCHEDULE")
	_ = viper.BindEnv("DUE_SOON_JOB_SCHEDULE")
	_ = viper.BindEnv("DUE_SOON_WINDOW_DAYS")
	_ = viper.BindEnv("METRICS_ENABLED")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PASS_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)

	// Coerce unusable tuning values back to their defaults rather than
	// failing startup; the defaults are always safe.
	if config.BulkChunkSize <= 0 {
		log.Printf("level=warn component=config msg=\"invalid BULK_CHUNK_SIZE; using default\" value=%d", config.BulkChunkSize)
		config.BulkChunkSize = 500
	}
	if config.BulkConcurrency <= 0 {
		log.Printf("level=warn component=config msg=\"invalid BULK_CONCURRENCY; using default\" value=%d", config.BulkConcurrency)
		config.BulkConcurrency = 8
	}
	if config.ScanPageSize <= 0 {
		config.ScanPageSize = 1000
	}
	if config.IngestEventBuffer <= 0 {
		config.IngestEventBuffer = 64
	}
	if config.DueSoonWindowDays < 0 {
		log.Printf("level=warn component=config msg=\"negative DUE_SOON_WINDOW_DAYS; coercing to zero\" value=%d", config.DueSoonWindowDays)
		config.DueSoonWindowDays = 0
	}

	return
}
