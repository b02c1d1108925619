package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is read from MM_* environment variables. CLI flags override it.
type Config struct {
	DBPath    string `env:"MM_DB_PATH" envDefault:"./moment-meter.db"`
	Port      int    `env:"MM_PORT" envDefault:"8080"`
	LogLevel  string `env:"MM_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"MM_LOG_FORMAT" envDefault:"console"`

	KafkaBrokers []string `env:"MM_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"MM_KAFKA_TOPIC" envDefault:"moment-events"`
	KafkaGroupID string   `env:"MM_KAFKA_GROUP" envDefault:"moment-meter"`

	FunnelsFile string `env:"MM_FUNNELS_FILE"`
	TokenFile   string `env:"MM_TOKEN_FILE"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// KafkaEnabled reports whether stream ingestion should start.
func (c Config) KafkaEnabled() bool {
	for _, b := range c.KafkaBrokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}
