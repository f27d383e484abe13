package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
)

// Config holds ingress configuration.
type Config struct {
	// Network settings
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Message settings
	MaxMessageSize int64 `yaml:"max_message_size"`

	// Anti-cheat escalation
	ThreatQueueSize int `yaml:"threat_queue_size"`

	// Logging
	LogLevel log.Level `yaml:"log_level"`
}

// DefaultConfig returns the default ingress configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageSize:  64 * 1024,
		ThreatQueueSize: 1024,
		LogLevel:        log.LevelInfo,
	}
}

// LoadConfig reads YAML overrides on top of the defaults. A missing path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
