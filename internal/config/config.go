package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr              string `mapstructure:"LISTEN_ADDR"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	SnapshotFile            string `mapstructure:"SNAPSHOT_FILE"`
	SnapshotIntervalMinutes int    `mapstructure:"SNAPSHOT_INTERVAL_MINUTES"`
	StaticDir               string `mapstructure:"STATIC_DIR"`
}

// SnapshotInterval returns the configured snapshot period.
func (c *Config) SnapshotInterval() time.Duration {
	if c.SnapshotIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SnapshotIntervalMinutes) * time.Minute
}

var AppConfig *Config

// LoadConfig loads the configuration from a .env file and environment variables.
func LoadConfig() {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.SetDefault("LISTEN_ADDR", ":3000")
	viper.SetDefault("SNAPSHOT_FILE", "chat_data.json")
	viper.SetDefault("SNAPSHOT_INTERVAL_MINUTES", 5)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Warning: .env file not found, loading from environment variables")
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
