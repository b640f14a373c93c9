package relay

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/timerboard/go/internal/timers"
	"gopkg.in/yaml.v3"
)

// Config holds configuration for the timer board relay
type Config struct {
	Port            string           `yaml:"port"`
	AllowedOrigins  []string         `yaml:"allowed_origins"`
	DuplicatePolicy string           `yaml:"duplicate_policy"`
	LogLevel        string           `yaml:"log_level"`
	Connection      ConnectionConfig `yaml:"connection"`
	Mirror          MirrorConfig     `yaml:"mirror"`
}

// DefaultConfig returns the relay defaults. Browser origins default to the
// board UI dev server on both loopback and the LAN address.
func DefaultConfig() Config {
	lanIP := LocalIPv4()
	return Config{
		Port: "3001",
		AllowedOrigins: []string{
			"http://localhost:5173",
			fmt.Sprintf("http://%s:5173", lanIP),
		},
		DuplicatePolicy: string(timers.DuplicateReject),
		LogLevel:        "info",
		Connection:      DefaultConnectionConfig(),
		Mirror:          DefaultMirrorConfig(),
	}
}

// LoadConfig layers an optional YAML file and then environment variables on
// top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Port = getEnv("RELAY_PORT", cfg.Port)
	cfg.DuplicatePolicy = getEnv("DUPLICATE_POLICY", cfg.DuplicatePolicy)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	cfg.Connection.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(cfg.Connection.MaxMessageSize)))
	cfg.Connection.SendBufferSize = getEnvAsInt("WS_SEND_BUFFER", cfg.Connection.SendBufferSize)
	cfg.Connection.WriteTimeout = getEnvAsDuration("WS_WRITE_TIMEOUT", cfg.Connection.WriteTimeout)
	cfg.Connection.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", cfg.Connection.ReadTimeout)
	cfg.Connection.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", cfg.Connection.PingInterval)
	cfg.Mirror.URL = getEnv("NATS_URL", cfg.Mirror.URL)
	cfg.Mirror.StreamName = getEnv("NATS_STREAM", cfg.Mirror.StreamName)

	return cfg, cfg.Validate()
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q: %w", c.Port, err)
	}
	if _, err := timers.ParseDuplicatePolicy(c.DuplicatePolicy); err != nil {
		return err
	}
	if c.Connection.SendBufferSize <= 0 {
		return fmt.Errorf("send buffer size must be positive, got %d", c.Connection.SendBufferSize)
	}
	if c.Connection.PingInterval >= c.Connection.ReadTimeout {
		return fmt.Errorf("ping interval %s must be shorter than read timeout %s",
			c.Connection.PingInterval, c.Connection.ReadTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
